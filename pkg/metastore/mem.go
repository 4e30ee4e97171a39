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

// Package metastore provides two kca.MetaStore implementations: Mem,
// an in-memory ordered map for tests and bootstrap-from-empty stores,
// and File, a disk-backed table built on modernc.org/kv.
package metastore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/luccioman/kca/pkg/kca"
)

// Mem is a naive in-memory kca.MetaStore, useful for tests and for
// small stores that never need to survive a process restart.
type Mem struct {
	mu      sync.Mutex
	entries map[string]kca.MetaEntry
	order   []string // sorted keys, kept in sync with entries
}

// NewMem returns an empty in-memory MetaStore.
func NewMem() *Mem {
	return &Mem{entries: make(map[string]kca.MetaEntry)}
}

func (mk *Mem) Get(key []byte) (kca.MetaEntry, bool, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	e, ok := mk.entries[string(key)]
	if !ok {
		return kca.MetaEntry{}, false, nil
	}
	return e.Clone(), true, nil
}

func (mk *Mem) Has(key []byte) (bool, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	_, ok := mk.entries[string(key)]
	return ok, nil
}

func (mk *Mem) AddUnique(entry kca.MetaEntry) error {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	k := string(entry.Key)
	if _, exists := mk.entries[k]; exists {
		return fmt.Errorf("metastore: key %q already exists", entry.Key)
	}
	mk.insertOrder(k)
	mk.entries[k] = entry.Clone()
	return nil
}

func (mk *Mem) Put(entry kca.MetaEntry) error {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	k := string(entry.Key)
	if _, exists := mk.entries[k]; !exists {
		mk.insertOrder(k)
	}
	mk.entries[k] = entry.Clone()
	return nil
}

func (mk *Mem) PutMultiple(entries []kca.MetaEntry, ts uint16) error {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	for _, entry := range entries {
		entry.LastWrote = ts
		k := string(entry.Key)
		if _, exists := mk.entries[k]; !exists {
			mk.insertOrder(k)
		}
		mk.entries[k] = entry.Clone()
	}
	return nil
}

func (mk *Mem) Remove(key []byte) (kca.MetaEntry, bool, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	k := string(key)
	e, ok := mk.entries[k]
	if !ok {
		return kca.MetaEntry{}, false, nil
	}
	delete(mk.entries, k)
	mk.removeOrder(k)
	return e, true, nil
}

func (mk *Mem) Size() (int, error) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return len(mk.entries), nil
}

func (mk *Mem) Rows(rotating bool, startKey []byte) kca.MetaIterator {
	mk.mu.Lock()
	keys := append([]string(nil), mk.order...)
	mk.mu.Unlock()

	start := 0
	if startKey != nil {
		start = sort.SearchStrings(keys, string(startKey))
	}
	total := len(keys) - start
	if rotating {
		total = len(keys)
	}
	return &memIterator{mk: mk, keys: keys, pos: start, total: total}
}

func (mk *Mem) Close() error { return nil }

func (mk *Mem) insertOrder(k string) {
	i := sort.SearchStrings(mk.order, k)
	mk.order = append(mk.order, "")
	copy(mk.order[i+1:], mk.order[i:])
	mk.order[i] = k
}

func (mk *Mem) removeOrder(k string) {
	i := sort.SearchStrings(mk.order, k)
	if i < len(mk.order) && mk.order[i] == k {
		mk.order = append(mk.order[:i], mk.order[i+1:]...)
	}
}

type memIterator struct {
	mk      *Mem
	keys    []string
	pos     int
	visited int
	total   int
	cur     kca.MetaEntry
}

func (it *memIterator) Next() bool {
	for it.visited < it.total && len(it.keys) > 0 {
		idx := it.pos % len(it.keys)
		k := it.keys[idx]
		it.pos++
		it.visited++

		it.mk.mu.Lock()
		e, ok := it.mk.entries[k]
		it.mk.mu.Unlock()
		if !ok {
			continue // removed since the snapshot was taken
		}
		it.cur = e.Clone()
		return true
	}
	return false
}

func (it *memIterator) Entry() kca.MetaEntry { return it.cur }
func (it *memIterator) Err() error           { return nil }
func (it *memIterator) Close() error         { return nil }
