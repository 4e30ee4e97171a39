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
	"testing"

	"github.com/luccioman/kca/pkg/kca"
)

func entry(key byte) kca.MetaEntry {
	return kca.MetaEntry{Key: []byte{key}, ChunkSize: 8, ChunkCount: 1}
}

func TestMemAddUniqueRejectsDuplicate(t *testing.T) {
	mk := NewMem()
	if err := mk.AddUnique(entry(1)); err != nil {
		t.Fatalf("AddUnique: %v", err)
	}
	if err := mk.AddUnique(entry(1)); err == nil {
		t.Fatal("AddUnique of an existing key: expected error, got nil")
	}
}

func TestMemGetPutRemove(t *testing.T) {
	mk := NewMem()
	if _, ok, err := mk.Get([]byte{1}); err != nil || ok {
		t.Fatalf("Get of absent key: ok=%v err=%v, want false, nil", ok, err)
	}
	if err := mk.Put(entry(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := mk.Get([]byte{1})
	if err != nil || !ok {
		t.Fatalf("Get after Put: ok=%v err=%v", ok, err)
	}
	if got.ChunkSize != 8 {
		t.Errorf("Get after Put: ChunkSize = %d, want 8", got.ChunkSize)
	}
	if _, ok, err := mk.Remove([]byte{1}); err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mk.Get([]byte{1}); ok {
		t.Fatal("Get after Remove: still present")
	}
}

func TestMemSize(t *testing.T) {
	mk := NewMem()
	mk.Put(entry(1))
	mk.Put(entry(2))
	mk.Put(entry(1)) // upsert, not a new key
	n, err := mk.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if n != 2 {
		t.Errorf("Size() = %d, want 2", n)
	}
}

func TestMemRowsInKeyOrder(t *testing.T) {
	mk := NewMem()
	for _, k := range []byte{3, 1, 2} {
		mk.Put(entry(k))
	}
	it := mk.Rows(false, nil)
	var got []byte
	for it.Next() {
		got = append(got, it.Entry().Key[0])
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

func TestMemRowsRotatingWraps(t *testing.T) {
	mk := NewMem()
	for _, k := range []byte{1, 2, 3, 4} {
		mk.Put(entry(k))
	}
	it := mk.Rows(true, []byte{3})
	var got []byte
	for it.Next() {
		got = append(got, it.Entry().Key[0])
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

func TestMemRowsNonRotatingStopsAtEnd(t *testing.T) {
	mk := NewMem()
	for _, k := range []byte{1, 2, 3, 4} {
		mk.Put(entry(k))
	}
	it := mk.Rows(false, []byte{3})
	var got []byte
	for it.Next() {
		got = append(got, it.Entry().Key[0])
	}
	want := []byte{3, 4}
	if len(got) != len(want) {
		t.Fatalf("non-rotating Rows() produced %v, want %v", got, want)
	}
}
