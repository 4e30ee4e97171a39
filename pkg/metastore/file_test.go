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

package metastore

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/luccioman/kca/pkg/kca"
)

func openFile(t *testing.T) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub.index")
	fs, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestFileGetPutRemove(t *testing.T) {
	fs := openFile(t)
	e := kca.MetaEntry{Key: []byte{1, 2, 3, 4}, ChunkSize: 16, ChunkCount: 3, ClusterIdx: 1, IndexPos: 5}

	if err := fs.Put(e); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := fs.Get(e.Key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(e, got, cmpopts.IgnoreFields(kca.MetaEntry{}, "LastRead", "LastWrote")); diff != "" {
		t.Errorf("Get roundtrip mismatch (-want +got):\n%s", diff)
	}

	if _, ok, err := fs.Remove(e.Key); err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := fs.Get(e.Key); ok {
		t.Fatal("Get after Remove: still present")
	}
}

func TestFileAddUniqueRejectsDuplicate(t *testing.T) {
	fs := openFile(t)
	e := kca.MetaEntry{Key: []byte{9}}
	if err := fs.AddUnique(e); err != nil {
		t.Fatalf("AddUnique: %v", err)
	}
	if err := fs.AddUnique(e); err == nil {
		t.Fatal("AddUnique of an existing key: expected error, got nil")
	}
}

func TestFilePutMultipleStampsTimestamp(t *testing.T) {
	fs := openFile(t)
	entries := []kca.MetaEntry{
		{Key: []byte{1}},
		{Key: []byte{2}},
	}
	if err := fs.PutMultiple(entries, 12345); err != nil {
		t.Fatalf("PutMultiple: %v", err)
	}
	for _, want := range entries {
		got, ok, err := fs.Get(want.Key)
		if err != nil || !ok {
			t.Fatalf("Get(%v): ok=%v err=%v", want.Key, ok, err)
		}
		if got.LastWrote != 12345 {
			t.Errorf("Get(%v).LastWrote = %d, want 12345", want.Key, got.LastWrote)
		}
	}
}

func TestFileSize(t *testing.T) {
	fs := openFile(t)
	n, err := fs.Size()
	if err != nil || n != 0 {
		t.Fatalf("Size() on empty store = %d, %v, want 0, nil", n, err)
	}
	fs.Put(kca.MetaEntry{Key: []byte{1}})
	fs.Put(kca.MetaEntry{Key: []byte{2}})
	n, err = fs.Size()
	if err != nil || n != 2 {
		t.Fatalf("Size() = %d, %v, want 2, nil", n, err)
	}
}

func TestFileRowsInKeyOrder(t *testing.T) {
	fs := openFile(t)
	for _, k := range []byte{3, 1, 2} {
		fs.Put(kca.MetaEntry{Key: []byte{k}})
	}
	it := fs.Rows(false, nil)
	var got []byte
	for it.Next() {
		got = append(got, it.Entry().Key[0])
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Rows iteration: %v", err)
	}
	want := []byte{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Rows() produced %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Rows()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFileRowsRotatingWraps(t *testing.T) {
	fs := openFile(t)
	for _, k := range []byte{1, 2, 3, 4} {
		fs.Put(kca.MetaEntry{Key: []byte{k}})
	}
	it := fs.Rows(true, []byte{3})
	var got []byte
	for it.Next() {
		got = append(got, it.Entry().Key[0])
	}
	if err := it.Err(); err != nil {
		t.Fatalf("rotating Rows iteration: %v", err)
	}
	want := []byte{3, 4, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("rotating Rows() produced %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rotating Rows()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFileReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stub.index")

	fs, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Put(kca.MetaEntry{Key: []byte{7}, ChunkCount: 2}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok, err := reopened.Get([]byte{7})
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if got.ChunkCount != 2 {
		t.Errorf("Get after reopen: ChunkCount = %d, want 2", got.ChunkCount)
	}
}
