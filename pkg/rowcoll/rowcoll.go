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

// Package rowcoll implements kca.RowCollection: a sorted, deduplicated
// slice of fixed-width payload rows keyed by their leading row-key
// column.
package rowcoll

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/luccioman/kca/pkg/kca"
)

// Collection is a sorted, deduplicated multiset of fixed-width rows.
type Collection struct {
	schema kca.Schema
	rows   [][]byte
}

// New returns an empty Collection for the given schema.
func New(schema kca.Schema) kca.RowCollection {
	return &Collection{schema: schema}
}

// FromBlob decodes a collection previously produced by Serialize: a
// 4-byte little-endian live-row count followed by capacity rows of
// schema.RowLen bytes each (only the first live-count rows are
// meaningful; the remainder is unused slot capacity).
func FromBlob(blob []byte, schema kca.Schema) (kca.RowCollection, error) {
	if len(blob) < kca.BlobHeaderLen {
		return nil, fmt.Errorf("rowcoll: blob too short (%d bytes)", len(blob))
	}
	n := int(uint32(blob[0]) | uint32(blob[1])<<8 | uint32(blob[2])<<16 | uint32(blob[3])<<24)
	body := blob[kca.BlobHeaderLen:]
	if schema.RowLen <= 0 {
		return nil, fmt.Errorf("rowcoll: schema row length must be positive")
	}
	if n*schema.RowLen > len(body) {
		return nil, fmt.Errorf("rowcoll: blob declares %d live rows but only has room for %d", n, len(body)/schema.RowLen)
	}
	rows := make([][]byte, n)
	for i := 0; i < n; i++ {
		row := make([]byte, schema.RowLen)
		copy(row, body[i*schema.RowLen:(i+1)*schema.RowLen])
		rows[i] = row
	}
	return &Collection{schema: schema, rows: rows}, nil
}

// FromRows builds a Collection directly from already-decoded rows,
// sorting and deduping them. Used by callers (e.g. cmd/kca-tool) that
// assemble rows from an external encoding rather than a stored blob.
func FromRows(rows [][]byte, schema kca.Schema) kca.RowCollection {
	c := &Collection{schema: schema, rows: rows}
	c.Sort()
	c.Dedupe()
	return c
}

func (c *Collection) Len() int { return len(c.rows) }

// Serialize exports the collection into a blob sized for capacity
// rows: a 4-byte live-count header followed by capacity*RowLen bytes,
// the first Len() of which hold the live rows.
func (c *Collection) Serialize(capacity int) ([]byte, error) {
	if len(c.rows) > capacity {
		return nil, fmt.Errorf("rowcoll: %d live rows exceed slot capacity %d", len(c.rows), capacity)
	}
	blob := make([]byte, kca.BlobHeaderLen+capacity*c.schema.RowLen)
	n := uint32(len(c.rows))
	blob[0] = byte(n)
	blob[1] = byte(n >> 8)
	blob[2] = byte(n >> 16)
	blob[3] = byte(n >> 24)
	for i, row := range c.rows {
		copy(blob[kca.BlobHeaderLen+i*c.schema.RowLen:], row)
	}
	return blob, nil
}

// Union appends other's rows into c, then sorts and dedupes. Only a
// *Collection's rows are appended; any other RowCollection
// implementation leaves c unchanged.
func (c *Collection) Union(other kca.RowCollection) {
	o, ok := other.(*Collection)
	if !ok {
		return
	}
	c.rows = append(c.rows, o.rows...)
	c.Sort()
	c.Dedupe()
}

func (c *Collection) Sort() {
	sort.Slice(c.rows, func(i, j int) bool {
		return bytes.Compare(c.rows[i], c.rows[j]) < 0
	})
}

// Dedupe removes rows that are byte-for-byte identical, keeping the
// first occurrence. Callers must Sort before calling Dedupe.
func (c *Collection) Dedupe() {
	if len(c.rows) < 2 {
		return
	}
	out := c.rows[:1]
	for _, row := range c.rows[1:] {
		if !bytes.Equal(row, out[len(out)-1]) {
			out = append(out, row)
		}
	}
	c.rows = out
}

// Trim releases any spare capacity beyond Len.
func (c *Collection) Trim() {
	if cap(c.rows) == len(c.rows) {
		return
	}
	trimmed := make([][]byte, len(c.rows))
	copy(trimmed, c.rows)
	c.rows = trimmed
}

func (c *Collection) rowKey(row []byte) []byte {
	n := c.schema.RowKeyLen
	if n <= 0 || n > len(row) {
		n = len(row)
	}
	return row[:n]
}

func (c *Collection) Has(rowKey []byte) bool {
	for _, row := range c.rows {
		if bytes.Equal(c.rowKey(row), rowKey) {
			return true
		}
	}
	return false
}

// RemoveKeys removes every row whose row-key is in rowKeys and
// returns the count of rows removed.
func (c *Collection) RemoveKeys(rowKeys [][]byte) int {
	if len(rowKeys) == 0 {
		return 0
	}
	out := c.rows[:0]
	removed := 0
	for _, row := range c.rows {
		rk := c.rowKey(row)
		match := false
		for _, target := range rowKeys {
			if bytes.Equal(rk, target) {
				match = true
				break
			}
		}
		if match {
			removed++
			continue
		}
		out = append(out, row)
	}
	c.rows = out
	return removed
}
