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

// Package kca implements a persistent keyed-collection index: a
// disk-resident map from a fixed-width key to a variable-length,
// deduplicated row-collection, stored across capacity-tiered
// fixed-slot array files with a metadata index kept consistent under
// faults. See Open for how to construct one.
package kca

import (
	"bytes"
	"fmt"
	"log"
	"sync"
)

// Options configures a new or reopened Index. The three collaborator
// hooks (MetaStore, OpenArrayFile, NewCollection/DecodeCollection) are
// the KV_TABLE, ARRAY_FILE and ROWCOLL interfaces of the design;
// packages arraystore, metastore and rowcoll provide the concrete
// implementations this module ships.
type Options struct {
	Dir  string
	Stub string

	KeyLen    int // K, fixed key width in bytes
	RowLen    int // P, current default payload row width in bytes
	RowKeyLen int // width of the row-key column within a payload row
	RowDef    string

	LoadFactor    int // L, defaults to 4 if zero
	MaxPartitions int // 0 means unbounded

	MetaStore        MetaStore
	OpenArrayFile    ArrayOpener
	NewCollection    func(schema Schema) RowCollection
	DecodeCollection func(blob []byte, schema Schema) (RowCollection, error)
}

func (o Options) validate() error {
	switch {
	case o.Dir == "":
		return fmt.Errorf("kca: Options.Dir is required")
	case o.Stub == "":
		return fmt.Errorf("kca: Options.Stub is required")
	case o.KeyLen <= 0:
		return fmt.Errorf("kca: Options.KeyLen must be positive")
	case o.RowLen <= 0:
		return fmt.Errorf("kca: Options.RowLen must be positive")
	case o.MetaStore == nil:
		return fmt.Errorf("kca: Options.MetaStore is required")
	case o.OpenArrayFile == nil:
		return fmt.Errorf("kca: Options.OpenArrayFile is required")
	case o.NewCollection == nil:
		return fmt.Errorf("kca: Options.NewCollection is required")
	case o.DecodeCollection == nil:
		return fmt.Errorf("kca: Options.DecodeCollection is required")
	}
	return nil
}

// Index is the persistent keyed-collection store (IndexCore, C6). A
// single mutex serializes every public method that reads or writes
// the metadata store or the array files.
type Index struct {
	opts   Options
	namer  FileNamer
	sizing PartitionSizing
	schema Schema

	mu               sync.Mutex
	meta             MetaStore
	registry         *ArrayRegistry
	closed           bool
	maxPartitionSeen int // highest partition any live collection has occupied
}

// BatchItem is one entry of a MergeMultiple call.
type BatchItem struct {
	Key        []byte
	Collection RowCollection
}

// Open constructs an Index over opts, checking the persisted schema
// descriptor (PropertyGuard) and bootstrapping the metadata store from
// the array files already on disk if opts.MetaStore starts out empty.
func Open(opts Options) (*Index, error) {
	if opts.LoadFactor == 0 {
		opts.LoadFactor = 4
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	namer := FileNamer{Dir: opts.Dir, Stub: opts.Stub}
	sizing := PartitionSizing{LoadFactor: opts.LoadFactor, MaxPartitions: opts.MaxPartitions}

	guard := PropertyGuard{Path: namer.PropertiesPath(opts.LoadFactor, opts.RowLen)}
	if err := guard.Check(opts.RowDef); err != nil {
		return nil, err
	}

	registry := NewArrayRegistry(namer, sizing, opts.KeyLen, opts.OpenArrayFile)

	idx := &Index{
		opts:     opts,
		namer:    namer,
		sizing:   sizing,
		schema:   Schema{Descriptor: opts.RowDef, RowLen: opts.RowLen, RowKeyLen: opts.RowKeyLen},
		meta:     opts.MetaStore,
		registry: registry,
	}

	n, err := idx.meta.Size()
	if err != nil {
		idx.registry.CloseAll()
		return nil, errIO(nil, err)
	}
	if n == 0 {
		idx.mu.Lock()
		err := idx.bootstrapLocked()
		idx.mu.Unlock()
		if err != nil {
			idx.registry.CloseAll()
			return nil, err
		}
	}
	return idx, nil
}

func wellFormedKey(k []byte, keyLen int) bool {
	if len(k) != keyLen {
		return false
	}
	for _, b := range k {
		if b != 0 {
			return true
		}
	}
	return false
}

func (idx *Index) newEmptyCollection() RowCollection {
	return idx.opts.NewCollection(idx.schema)
}

// Put overwrites the collection stored under key. See spec §4.6 for
// the full case analysis (new-insert, total-delete, in-place replace,
// transit); this method dispatches to the shared writeCollection
// helper for the common write-then-commit shape.
func (idx *Index) Put(key []byte, coll RowCollection) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	entry, ok, err := idx.meta.Get(key)
	if err != nil {
		return errIO(key, err)
	}
	if !ok {
		if coll.Len() == 0 {
			return nil
		}
		newEntry, err := idx.writeCollection(key, coll, nil)
		if err != nil {
			return err
		}
		return wrapIO(key, idx.meta.AddUnique(newEntry))
	}
	if coll.Len() == 0 {
		return idx.totalDelete(key, entry)
	}
	newEntry, err := idx.writeCollection(key, coll, &entry)
	if err != nil {
		return err
	}
	return wrapIO(key, idx.meta.Put(newEntry))
}

// Merge unions coll into whatever is already stored under key (or
// performs a new-insert if key is absent), then applies
// replace-or-transit exactly like Put.
func (idx *Index) Merge(key []byte, coll RowCollection) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	entry, ok, err := idx.meta.Get(key)
	if err != nil {
		return errIO(key, err)
	}
	if !ok {
		if coll.Len() == 0 {
			return nil
		}
		newEntry, err := idx.writeCollection(key, coll, nil)
		if err != nil {
			return err
		}
		return wrapIO(key, idx.meta.AddUnique(newEntry))
	}

	existing, _, err := idx.repairRead(key, entry, false)
	if err != nil {
		return err
	}
	if existing == nil {
		// The entry we just fetched was stale and has already been
		// repaired away (self-heal erased or relocated it); treat
		// this merge as a fresh insert under the original key.
		newEntry, err := idx.writeCollection(key, coll, nil)
		if err != nil {
			return err
		}
		return wrapIO(key, idx.meta.AddUnique(newEntry))
	}
	existing.Union(coll)

	// repairRead may have adjusted ChunkCount in place; re-fetch so
	// writeCollection sees the authoritative slot location.
	fresh, ok, err := idx.meta.Get(key)
	if err != nil {
		return errIO(key, err)
	}
	if !ok {
		newEntry, err := idx.writeCollection(key, existing, nil)
		if err != nil {
			return err
		}
		return wrapIO(key, idx.meta.AddUnique(newEntry))
	}
	newEntry, err := idx.writeCollection(key, existing, &fresh)
	if err != nil {
		return err
	}
	return wrapIO(key, idx.meta.Put(newEntry))
}

// MergeMultiple is the batched form of Merge (MergeBatch, C8): it
// partitions the batch into new-inserts (written immediately) and
// merges of existing keys (buffered), then commits every buffered
// metadata mutation in one PutMultiple call.
func (idx *Index) MergeMultiple(items []BatchItem) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	var buffer []MetaEntry
	for _, it := range items {
		entry, ok, err := idx.meta.Get(it.Key)
		if err != nil {
			return errIO(it.Key, err)
		}
		if !ok {
			if it.Collection.Len() == 0 {
				continue
			}
			newEntry, err := idx.writeCollection(it.Key, it.Collection, nil)
			if err != nil {
				return err
			}
			if err := idx.meta.AddUnique(newEntry); err != nil {
				return errIO(it.Key, err)
			}
			continue
		}

		existing, _, err := idx.repairRead(it.Key, entry, false)
		if err != nil {
			return err
		}
		if existing == nil {
			if it.Collection.Len() == 0 {
				continue
			}
			newEntry, err := idx.writeCollection(it.Key, it.Collection, nil)
			if err != nil {
				return err
			}
			if err := idx.meta.AddUnique(newEntry); err != nil {
				return errIO(it.Key, err)
			}
			continue
		}
		existing.Union(it.Collection)

		fresh, ok, err := idx.meta.Get(it.Key)
		if err != nil {
			return errIO(it.Key, err)
		}
		if !ok {
			newEntry, err := idx.writeCollection(it.Key, existing, nil)
			if err != nil {
				return err
			}
			if err := idx.meta.AddUnique(newEntry); err != nil {
				return errIO(it.Key, err)
			}
			continue
		}
		newEntry, err := idx.writeCollection(it.Key, existing, &fresh)
		if err != nil {
			return err
		}
		buffer = append(buffer, newEntry)
	}
	if len(buffer) == 0 {
		return nil
	}
	return wrapIO(nil, idx.meta.PutMultiple(buffer, today()))
}

// Remove deletes every row of key's collection whose row-key (the
// payload row's leading column) appears in rowKeys, and returns the
// number of rows actually removed.
func (idx *Index) Remove(key []byte, rowKeys [][]byte) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return 0, ErrClosed
	}

	entry, ok, err := idx.meta.Get(key)
	if err != nil {
		return 0, errIO(key, err)
	}
	if !ok {
		return 0, nil
	}
	coll, _, err := idx.repairRead(key, entry, false)
	if err != nil {
		return 0, err
	}
	if coll == nil {
		return 0, nil
	}
	removed := coll.RemoveKeys(rowKeys)

	fresh, ok, err := idx.meta.Get(key)
	if err != nil {
		return removed, errIO(key, err)
	}
	if !ok {
		return removed, nil
	}
	if coll.Len() == 0 {
		return removed, idx.totalDelete(key, fresh)
	}
	newEntry, err := idx.writeCollection(key, coll, &fresh)
	if err != nil {
		return removed, err
	}
	return removed, wrapIO(key, idx.meta.Put(newEntry))
}

// Get returns the collection stored under key, or ok=false if absent.
func (idx *Index) Get(key []byte) (coll RowCollection, ok bool, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, false, ErrClosed
	}
	entry, found, err := idx.meta.Get(key)
	if err != nil {
		return nil, false, errIO(key, err)
	}
	if !found {
		return nil, false, nil
	}
	coll, found, err = idx.repairRead(key, entry, false)
	if err != nil {
		return nil, false, err
	}
	return coll, found, nil
}

// Delete returns the collection stored under key and removes both the
// slot and the metadata entry.
func (idx *Index) Delete(key []byte) (coll RowCollection, ok bool, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, false, ErrClosed
	}
	entry, found, err := idx.meta.Get(key)
	if err != nil {
		return nil, false, errIO(key, err)
	}
	if !found {
		return nil, false, nil
	}
	coll, found, err = idx.repairRead(key, entry, true)
	if err != nil {
		return nil, false, err
	}
	return coll, found, nil
}

// Size returns the number of keys currently indexed.
func (idx *Index) Size() (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return 0, ErrClosed
	}
	n, err := idx.meta.Size()
	return n, wrapIO(nil, err)
}

// Has reports whether key has a metadata entry.
func (idx *Index) Has(key []byte) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return false, ErrClosed
	}
	ok, err := idx.meta.Has(key)
	return ok, wrapIO(key, err)
}

// IndexSize returns the chunk_count recorded for key without loading
// the collection.
func (idx *Index) IndexSize(key []byte) (int, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return 0, false, ErrClosed
	}
	entry, ok, err := idx.meta.Get(key)
	if err != nil {
		return 0, false, errIO(key, err)
	}
	if !ok {
		return 0, false, nil
	}
	return int(entry.ChunkCount), true, nil
}

// Schema returns the payload schema this Index was opened with.
func (idx *Index) Schema() Schema {
	return idx.schema
}

// MinMem is an advisory upper bound on the working-set bytes needed
// to sort the largest collection currently held by the store. When
// MaxPartitions is unbounded (0), the configured value can't supply
// that bound itself, so the highest partition any Put/Merge/Remove
// has actually populated is used instead.
func (idx *Index) MinMem() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	highest := idx.sizing.MaxPartitions
	if highest == 0 {
		highest = idx.maxPartitionSeen
	}
	return idx.sizing.minMem(idx.opts.RowLen, highest)
}

// bumpMaxPartitionSeen records that partition now holds a live
// collection, for MinMem's unbounded-MaxPartitions fallback. Callers
// hold idx.mu.
func (idx *Index) bumpMaxPartitionSeen(partition int) {
	if partition > idx.maxPartitionSeen {
		idx.maxPartitionSeen = partition
	}
}

// Close closes the metadata store first, then every cached array file
// exactly once. Further error-returning calls on idx after Close
// return ErrClosed.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	idx.closed = true

	var first error
	if err := idx.meta.Close(); err != nil {
		first = errIO(nil, err)
	}
	if err := idx.registry.CloseAll(); err != nil && first == nil {
		first = err
	}
	return first
}

// writeCollection performs the array-file side of a write (new-insert,
// in-place replace, or transit) and returns the metadata entry that
// should be committed afterward. It never touches the metadata store;
// callers decide whether to AddUnique, Put, or buffer the result, per
// the crash-ordering rule that array writes precede metadata writes.
func (idx *Index) writeCollection(key []byte, coll RowCollection, existing *MetaEntry) (MetaEntry, error) {
	n := coll.Len()
	partition, err := idx.sizing.partitionFor(n)
	if err != nil {
		return MetaEntry{}, err
	}
	capacity := idx.sizing.slotCapacity(partition)
	idx.bumpMaxPartitionSeen(partition)

	if existing == nil {
		blob, err := coll.Serialize(capacity)
		if err != nil {
			return MetaEntry{}, errIO(key, err)
		}
		array, err := idx.registry.GetOrOpen(partition, idx.opts.RowLen)
		if err != nil {
			return MetaEntry{}, err
		}
		slot, err := array.Add(Record{Key: append([]byte(nil), key...), Blob: blob})
		if err != nil {
			return MetaEntry{}, errIO(key, err)
		}
		return MetaEntry{
			Key:        append([]byte(nil), key...),
			ChunkSize:  uint32(idx.opts.RowLen),
			ChunkCount: uint32(n),
			ClusterIdx: uint32(partition),
			IndexPos:   uint32(slot),
			LastWrote:  today(),
		}, nil
	}

	old := *existing
	if int(old.ClusterIdx) == partition && int(old.ChunkSize) == idx.opts.RowLen {
		blob, err := coll.Serialize(capacity)
		if err != nil {
			return MetaEntry{}, errIO(key, err)
		}
		array, err := idx.registry.GetOrOpen(partition, int(old.ChunkSize))
		if err != nil {
			return MetaEntry{}, err
		}
		if err := array.Set(int(old.IndexPos), Record{Key: append([]byte(nil), key...), Blob: blob}); err != nil {
			return MetaEntry{}, errIO(key, err)
		}
		updated := old
		updated.ChunkCount = uint32(n)
		updated.LastWrote = today()
		return updated, nil
	}

	// Transit: the old slot is freed first, then the collection is
	// appended to its new partition, always at the current default
	// chunk size; old chunk sizes are legal on read but never written,
	// so a collection stored at an old chunk size always takes this
	// path, even when its partition is unchanged.
	oldArray, err := idx.registry.GetOrOpen(int(old.ClusterIdx), int(old.ChunkSize))
	if err != nil {
		return MetaEntry{}, err
	}
	if err := oldArray.Remove(int(old.IndexPos)); err != nil {
		return MetaEntry{}, errIO(key, err)
	}
	blob, err := coll.Serialize(capacity)
	if err != nil {
		return MetaEntry{}, errIO(key, err)
	}
	newArray, err := idx.registry.GetOrOpen(partition, idx.opts.RowLen)
	if err != nil {
		return MetaEntry{}, err
	}
	slot, err := newArray.Add(Record{Key: append([]byte(nil), key...), Blob: blob})
	if err != nil {
		return MetaEntry{}, errIO(key, err)
	}
	updated := old
	updated.ChunkSize = uint32(idx.opts.RowLen)
	updated.ChunkCount = uint32(n)
	updated.ClusterIdx = uint32(partition)
	updated.IndexPos = uint32(slot)
	updated.LastWrote = today()
	return updated, nil
}

// totalDelete marks entry's slot deleted and erases its metadata.
func (idx *Index) totalDelete(key []byte, entry MetaEntry) error {
	array, err := idx.registry.GetOrOpen(int(entry.ClusterIdx), int(entry.ChunkSize))
	if err != nil {
		return err
	}
	if err := array.Remove(int(entry.IndexPos)); err != nil {
		return errIO(key, err)
	}
	_, _, err = idx.meta.Remove(key)
	return wrapIO(key, err)
}

// repairRead implements the common read-and-repair path (spec §4.6):
// it loads the array slot entry points at, heals any discrepancy it
// can diagnose locally, and optionally deletes the slot and metadata
// entry afterward. A nil collection with ok=false and a nil error
// means the entry was stale and has already been repaired away (the
// requested key is now effectively absent); callers that need to keep
// writing under the same key should treat that as "absent" and
// re-fetch from the metadata store if they need the corrected entry.
func (idx *Index) repairRead(key []byte, entry MetaEntry, deleteAfter bool) (RowCollection, bool, error) {
	array, err := idx.registry.GetOrOpen(int(entry.ClusterIdx), int(entry.ChunkSize))
	if err != nil {
		return nil, false, err
	}

	if entry.IndexPos >= uint32(array.Size()) {
		return nil, false, errCorruption(key, fmt.Errorf("slot %d absent from partition %d", entry.IndexPos, entry.ClusterIdx))
	}
	rec, err := array.Get(int(entry.IndexPos))
	if err != nil {
		return nil, false, errIO(key, err)
	}

	if !wellFormedKey(rec.Key, idx.opts.KeyLen) {
		log.Printf("kca: malformed key at partition %d slot %d, erasing slot and metadata", entry.ClusterIdx, entry.IndexPos)
		if err := array.Remove(int(entry.IndexPos)); err != nil {
			return nil, false, errIO(key, err)
		}
		if _, _, err := idx.meta.Remove(key); err != nil {
			return nil, false, errIO(key, err)
		}
		return idx.newEmptyCollection(), true, nil
	}

	if !bytes.Equal(rec.Key, key) {
		log.Printf("kca: stale metadata entry for key %q: slot %d of partition %d actually holds key %q, relocating", key, entry.IndexPos, entry.ClusterIdx, rec.Key)
		if _, _, err := idx.meta.Remove(key); err != nil {
			return nil, false, errIO(key, err)
		}
		fresh := entry
		fresh.Key = append([]byte(nil), rec.Key...)
		if err := idx.meta.Put(fresh); err != nil {
			return nil, false, errIO(key, err)
		}
		return nil, false, nil
	}

	coll, err := idx.opts.DecodeCollection(rec.Blob, idx.schema)
	if err != nil {
		return nil, false, errCorruption(key, err)
	}
	if uint32(coll.Len()) != entry.ChunkCount {
		log.Printf("kca: stale chunk_count for key %q: metadata said %d, blob has %d, correcting", key, entry.ChunkCount, coll.Len())
		entry.ChunkCount = uint32(coll.Len())
		if err := idx.meta.Put(entry); err != nil {
			return nil, false, errIO(key, err)
		}
	}

	if deleteAfter {
		if err := array.Remove(int(entry.IndexPos)); err != nil {
			return nil, false, errIO(key, err)
		}
		if _, _, err := idx.meta.Remove(key); err != nil {
			return nil, false, errIO(key, err)
		}
	}
	return coll, true, nil
}

func wrapIO(key []byte, err error) error {
	if err == nil {
		return nil
	}
	return errIO(key, err)
}
