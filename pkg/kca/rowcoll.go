/*
Copyright 2026 The Kca Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package kca

// Schema describes the payload row layout that ROWCOLL owns. RowLen is
// the total width of one payload row in bytes; RowKeyLen is the width
// of its leading row-key column, used by RemoveKeys and Has.
type Schema struct {
	Descriptor string // opaque "rowdef" string persisted verbatim
	RowLen     int
	RowKeyLen  int
}

// RowCollection is the ROWCOLL collaborator: an ordered, deduplicated
// multiset of fixed-width payload rows backing one metadata entry.
type RowCollection interface {
	// Len reports the live row count.
	Len() int
	// Serialize exports the collection to a blob sized for the given
	// slot capacity (capacity*schema.RowLen bytes of rows plus a
	// fixed header recording the live count).
	Serialize(capacity int) ([]byte, error)
	// Union appends other's rows into the receiver, then sorts and
	// deduplicates.
	Union(other RowCollection)
	// Sort orders rows by their full content.
	Sort()
	// Dedupe removes rows that are exact duplicates, keeping the
	// first occurrence.
	Dedupe()
	// Trim releases any capacity beyond what Len needs.
	Trim()
	// Has reports whether a row with the given row-key is present.
	Has(rowKey []byte) bool
	// RemoveKeys removes every row whose row-key is in rowKeys and
	// returns the number of rows removed.
	RemoveKeys(rowKeys [][]byte) int
}

// BlobHeaderLen is the fixed overhead prefixed to every serialized
// collection blob: a 4-byte little-endian live-row count.
const BlobHeaderLen = 4
