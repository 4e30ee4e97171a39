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

package arraystore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/luccioman/kca/pkg/kca"
)

func schema() kca.RowSchema {
	return kca.RowSchema{KeyLen: 4, BlobLen: 8}
}

func rec(key byte, blob byte) kca.Record {
	return kca.Record{
		Key:  []byte{key, 0, 0, 0},
		Blob: bytes.Repeat([]byte{blob}, 8),
	}
}

func openTemp(t *testing.T) kca.ArrayFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub.04.0008.00.00.kca")
	af, err := Open(path, schema())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { af.Close() })
	return af
}

func TestAddGrowsAndReuses(t *testing.T) {
	af := openTemp(t)

	s0, err := af.Add(rec(1, 0xAA))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	s1, err := af.Add(rec(2, 0xBB))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if s0 == s1 {
		t.Fatalf("Add returned the same slot twice: %d", s0)
	}
	if af.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", af.Size())
	}

	if err := af.Remove(s0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if af.Free() != 1 {
		t.Fatalf("Free() = %d, want 1", af.Free())
	}

	s2, err := af.Add(rec(3, 0xCC))
	if err != nil {
		t.Fatalf("Add after Remove: %v", err)
	}
	if s2 != s0 {
		t.Fatalf("Add after Remove: got slot %d, want reused slot %d", s2, s0)
	}
	if af.Size() != 2 {
		t.Fatalf("Size() after reuse = %d, want 2 (no growth)", af.Size())
	}
}

func TestGetReturnsWhatWasWritten(t *testing.T) {
	af := openTemp(t)
	want := rec(7, 0x42)
	slot, err := af.Add(want)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := af.Get(slot)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got.Key, want.Key) || !bytes.Equal(got.Blob, want.Blob) {
		t.Errorf("Get(%d) = %+v, want %+v", slot, got, want)
	}
}

func TestSetOverwritesInPlace(t *testing.T) {
	af := openTemp(t)
	slot, err := af.Add(rec(1, 0xAA))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := af.Set(slot, rec(1, 0xFF)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := af.Get(slot)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got.Blob, bytes.Repeat([]byte{0xFF}, 8)) {
		t.Errorf("Get after Set: blob = %x, want all-0xFF", got.Blob)
	}
	if af.Size() != 1 {
		t.Errorf("Size() after Set = %d, want 1 (no growth)", af.Size())
	}
}

func TestContentRowsSkipsDeletedSlots(t *testing.T) {
	af := openTemp(t)
	s0, _ := af.Add(rec(1, 0xAA))
	_, _ = af.Add(rec(2, 0xBB))
	s2, _ := af.Add(rec(3, 0xCC))
	if err := af.Remove(s0); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	it := af.ContentRows(2)
	var keys []byte
	for it.Next() {
		keys = append(keys, it.Record().Key[0])
	}
	if err := it.Err(); err != nil {
		t.Fatalf("ContentRows iteration: %v", err)
	}
	want := []byte{2, 3}
	if !bytes.Equal(keys, want) {
		t.Errorf("ContentRows keys = %v, want %v", keys, want)
	}
	_ = s2
}

func TestReopenRebuildsFreeBitset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stub.04.0008.00.00.kca")
	af, err := Open(path, schema())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s0, _ := af.Add(rec(1, 0xAA))
	_, _ = af.Add(rec(2, 0xBB))
	if err := af.Remove(s0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := af.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, schema())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Size() != 2 {
		t.Fatalf("Size() after reopen = %d, want 2", reopened.Size())
	}
	if reopened.Free() != 1 {
		t.Fatalf("Free() after reopen = %d, want 1", reopened.Free())
	}
}
