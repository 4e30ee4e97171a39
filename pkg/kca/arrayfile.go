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

// RowSchema describes the fixed shape of every record in an ArrayFile:
// a key of KeyLen bytes followed by a blob of BlobLen bytes. BlobLen is
// overhead plus capacity*chunkSize for whatever collection encoding the
// caller uses; ArrayFile itself never interprets the blob.
type RowSchema struct {
	KeyLen  int
	BlobLen int
}

// Record is one (key, blob) pair read from or written to a slot.
type Record struct {
	Key  []byte
	Blob []byte
}

// ArrayFile is the ARRAY_FILE collaborator: a fixed-width-record file
// addressed by slot index, with deleted slots tracked for reuse.
type ArrayFile interface {
	// Size returns the total slot count, including deleted slots.
	Size() int
	// Free returns the count of deleted, reusable slots.
	Free() int
	// Get reads the record at slot. It is an error to call Get on a
	// slot beyond Size.
	Get(slot int) (Record, error)
	// Add writes rec into a reused or newly grown slot and returns
	// its index.
	Add(rec Record) (slot int, err error)
	// Set overwrites the record already occupying slot.
	Set(slot int, rec Record) error
	// Remove marks slot deleted and eligible for reuse.
	Remove(slot int) error
	// ContentRows lazily iterates every non-deleted slot in
	// ascending order. batchSize is a read-size hint that an
	// implementation may ignore.
	ContentRows(batchSize int) RecordIterator
	// Close releases the underlying handle.
	Close() error
}

// RecordIterator walks the live slots of an ArrayFile.
type RecordIterator interface {
	// Next advances to the next live slot, returning false at end of
	// file or on error (check Err to distinguish the two).
	Next() bool
	// Slot returns the index of the current record.
	Slot() int
	// Record returns the current record.
	Record() Record
	// Err returns the first error encountered during iteration.
	Err() error
}
