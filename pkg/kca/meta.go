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

import "time"

// epoch is the reference point for the 16-bit day counters stored in
// a MetaEntry; 2000-01-01 per the on-disk format.
var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// daysSince2000 returns the number of whole days between epoch and t,
// clamped to fit the 16-bit column.
func daysSince2000(t time.Time) uint16 {
	d := t.UTC().Sub(epoch) / (24 * time.Hour)
	if d < 0 {
		return 0
	}
	if d > 0xffff {
		return 0xffff
	}
	return uint16(d)
}

// today is daysSince2000(time.Now()), split out so tests can't
// accidentally depend on wall-clock time leaking into assertions.
func today() uint16 {
	return daysSince2000(time.Now())
}

// MetaEntry is the per-key record kept in the MetaStore (KV_TABLE).
type MetaEntry struct {
	Key         []byte
	ChunkSize   uint32 // payload row width P at time of write
	ChunkCount  uint32 // live rows in the collection
	ClusterIdx  uint32 // partition number holding the collection
	Flags       uint32 // reserved, always zero
	IndexPos    uint32 // slot index inside the array file
	LastRead    uint16 // days since 2000-01-01
	LastWrote   uint16 // days since 2000-01-01
}

// Clone returns a deep copy so callers can mutate without aliasing a
// MetaStore's internal state.
func (e MetaEntry) Clone() MetaEntry {
	k := make([]byte, len(e.Key))
	copy(k, e.Key)
	e.Key = k
	return e
}

// MetaStore is the KV_TABLE collaborator: an ordered table mapping a
// key to its MetaEntry.
type MetaStore interface {
	// Get returns the entry for key, or ok=false if absent.
	Get(key []byte) (entry MetaEntry, ok bool, err error)
	// Has reports whether key has an entry, without decoding it.
	Has(key []byte) (bool, error)
	// AddUnique inserts entry and fails if key already exists.
	AddUnique(entry MetaEntry) error
	// Put upserts entry.
	Put(entry MetaEntry) error
	// PutMultiple upserts entries in bulk, stamping LastWrote = ts on
	// every one. Implementations are free to reorder for locality.
	PutMultiple(entries []MetaEntry, ts uint16) error
	// Remove deletes the entry for key, returning it if it existed.
	Remove(key []byte) (entry MetaEntry, ok bool, err error)
	// Size returns the number of entries.
	Size() (int, error)
	// Rows lazily iterates entries in key order starting at startKey
	// (or from the smallest key if startKey is nil). If rotating is
	// true, iteration wraps to the smallest key at the end and stops
	// upon revisiting startKey.
	Rows(rotating bool, startKey []byte) MetaIterator
	// Close releases the underlying handle.
	Close() error
}

// MetaIterator walks entries of a MetaStore.
type MetaIterator interface {
	// Next advances to the next entry, returning false at end of
	// iteration or on error (check Err to distinguish the two).
	Next() bool
	// Entry returns the current entry.
	Entry() MetaEntry
	// Err returns the first error encountered during iteration.
	Err() error
	// Close releases any resources held by the iterator.
	Close() error
}
