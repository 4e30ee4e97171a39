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

package rowcoll

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/luccioman/kca/pkg/kca"
)

func testSchema() kca.Schema {
	return kca.Schema{RowLen: 4, RowKeyLen: 2}
}

func row(rowKey, value byte) []byte {
	return []byte{rowKey, 0, value, 0}
}

func TestFromRowsSortsAndDedupes(t *testing.T) {
	c := FromRows([][]byte{row(3, 1), row(1, 1), row(3, 1), row(2, 1)}, testSchema())
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	schema := testSchema()
	c := FromRows([][]byte{row(1, 9), row(2, 9)}, schema)

	blob, err := c.Serialize(4)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if want := kca.BlobHeaderLen + 4*schema.RowLen; len(blob) != want {
		t.Fatalf("Serialize blob length = %d, want %d", len(blob), want)
	}

	decoded, err := FromBlob(blob, schema)
	if err != nil {
		t.Fatalf("FromBlob: %v", err)
	}
	if decoded.Len() != 2 {
		t.Fatalf("FromBlob roundtrip Len() = %d, want 2", decoded.Len())
	}
	if !decoded.Has([]byte{1, 0}) || !decoded.Has([]byte{2, 0}) {
		t.Errorf("FromBlob roundtrip missing expected row keys")
	}

	reserialized, err := decoded.Serialize(4)
	if err != nil {
		t.Fatalf("Serialize(decoded): %v", err)
	}
	if diff := cmp.Diff(blob, reserialized); diff != "" {
		t.Errorf("Serialize after FromBlob round-trip differs (-want +got):\n%s", diff)
	}
}

func TestSerializeRejectsOversizedCollection(t *testing.T) {
	c := FromRows([][]byte{row(1, 1), row(2, 1), row(3, 1)}, testSchema())
	if _, err := c.Serialize(2); err == nil {
		t.Fatal("Serialize with capacity below Len(): expected error, got nil")
	}
}

func TestUnionDedupesAcrossBothSides(t *testing.T) {
	schema := testSchema()
	a := FromRows([][]byte{row(1, 1), row(2, 1)}, schema)
	b := New(schema)
	b.Union(FromRows([][]byte{row(2, 1), row(3, 1)}, schema))
	a.Union(b)
	if a.Len() != 3 {
		t.Fatalf("Union Len() = %d, want 3", a.Len())
	}
}

func TestRemoveKeys(t *testing.T) {
	c := FromRows([][]byte{row(1, 1), row(2, 1), row(3, 1)}, testSchema())
	removed := c.RemoveKeys([][]byte{{2, 0}, {9, 0}})
	if removed != 1 {
		t.Fatalf("RemoveKeys removed = %d, want 1", removed)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() after RemoveKeys = %d, want 2", c.Len())
	}
	if c.Has([]byte{2, 0}) {
		t.Error("Has(2) still true after RemoveKeys")
	}
}

func TestTrimReleasesSpareCapacity(t *testing.T) {
	col := FromRows([][]byte{row(1, 1), row(2, 1), row(3, 1)}, testSchema())
	c := col.(*Collection)
	c.rows = append(c.rows[:0:0], c.rows...)
	c.RemoveKeys([][]byte{{1, 0}})
	c.Trim()
	if cap(c.rows) != len(c.rows) {
		t.Errorf("Trim left spare capacity: len=%d cap=%d", len(c.rows), cap(c.rows))
	}
}

func TestFromBlobRejectsTruncatedBlob(t *testing.T) {
	if _, err := FromBlob([]byte{1, 2}, testSchema()); err == nil {
		t.Fatal("FromBlob on a too-short blob: expected error, got nil")
	}
}

func TestSortOrdersByFullContent(t *testing.T) {
	c := &Collection{schema: testSchema(), rows: [][]byte{row(2, 0), row(1, 0)}}
	c.Sort()
	if !bytes.Equal(c.rows[0], row(1, 0)) {
		t.Errorf("Sort() left rows[0] = %x, want %x", c.rows[0], row(1, 0))
	}
}
