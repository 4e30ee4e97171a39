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

// CollectionIterator lazily traverses (key, collection) pairs in
// metadata-store key order. Each Next performs one metadata read and
// one read-and-repair, exactly like Get. Mutating the Index between
// Next calls may invalidate the iterator; continuing to iterate past
// a concurrent write on the same key is undefined behavior.
type CollectionIterator struct {
	idx  *Index
	meta MetaIterator

	key  []byte
	coll RowCollection
	err  error
	done bool
}

// KeyCollections returns an iterator starting at startKey (or the
// smallest key if startKey is nil). If rotate is true, the underlying
// MetaStore wraps to the smallest key at the end and stops upon
// revisiting startKey; see MetaStore.Rows.
func (idx *Index) KeyCollections(startKey []byte, rotate bool) *CollectionIterator {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return &CollectionIterator{
		idx:  idx,
		meta: idx.meta.Rows(rotate, startKey),
	}
}

// Next advances the iterator, skipping any entry that self-heal
// determines is stale (in which case the underlying key has already
// been repaired away or relocated). It returns false at the end of
// iteration or on error; once the Index is closed, Err reports
// ErrClosed.
func (it *CollectionIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	it.idx.mu.Lock()
	closed := it.idx.closed
	it.idx.mu.Unlock()
	if closed {
		it.err = ErrClosed
		return false
	}
	for it.meta.Next() {
		entry := it.meta.Entry()

		it.idx.mu.Lock()
		if it.idx.closed {
			it.idx.mu.Unlock()
			it.err = ErrClosed
			return false
		}
		coll, ok, err := it.idx.repairRead(entry.Key, entry, false)
		it.idx.mu.Unlock()

		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			// Stale entry, already healed away; move on.
			continue
		}
		it.key = entry.Key
		it.coll = coll
		return true
	}
	if err := it.meta.Err(); err != nil {
		it.err = err
		return false
	}
	it.done = true
	return false
}

// Key returns the key of the current pair.
func (it *CollectionIterator) Key() []byte { return it.key }

// Collection returns the collection of the current pair.
func (it *CollectionIterator) Collection() RowCollection { return it.coll }

// Err returns the first error encountered during iteration.
func (it *CollectionIterator) Err() error { return it.err }

// Close releases the underlying metadata iterator.
func (it *CollectionIterator) Close() error {
	return it.meta.Close()
}
