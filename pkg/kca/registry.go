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

import "sync"

// ArrayOpener creates or opens the ArrayFile backing a single
// (partition, chunk size) tier. Concrete stores (e.g. package
// arraystore) implement this function to plug into ArrayRegistry.
type ArrayOpener func(path string, schema RowSchema) (ArrayFile, error)

type registryKey struct {
	partition int
	chunkSize int
}

// ArrayRegistry lazily opens and caches ArrayFile handles keyed by
// (partition, chunk size). It holds no lock of its own beyond what's
// needed to protect the cache map; callers (IndexCore) are already
// single-mutator, so handles themselves are never accessed
// concurrently.
type ArrayRegistry struct {
	namer  FileNamer
	sizing PartitionSizing
	keyLen int
	open   ArrayOpener

	mu      sync.Mutex
	handles map[registryKey]ArrayFile
}

// NewArrayRegistry constructs an empty registry. open is called the
// first time a given (partition, chunk size) pair is requested.
func NewArrayRegistry(namer FileNamer, sizing PartitionSizing, keyLen int, open ArrayOpener) *ArrayRegistry {
	return &ArrayRegistry{
		namer:   namer,
		sizing:  sizing,
		keyLen:  keyLen,
		open:    open,
		handles: make(map[registryKey]ArrayFile),
	}
}

// GetOrOpen returns the cached handle for (partition, chunkSize),
// opening or creating the backing file (always at serial 0) if this
// is the first request for that tier.
func (r *ArrayRegistry) GetOrOpen(partition, chunkSize int) (ArrayFile, error) {
	key := registryKey{partition, chunkSize}

	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.handles[key]; ok {
		return f, nil
	}
	path := r.namer.ArrayPath(r.sizing.LoadFactor, chunkSize, partition, 0)
	schema := RowSchema{
		KeyLen:  r.keyLen,
		BlobLen: BlobHeaderLen + r.sizing.slotCapacity(partition)*chunkSize,
	}
	f, err := r.open(path, schema)
	if err != nil {
		return nil, errIO(nil, err)
	}
	r.handles[key] = f
	return f, nil
}

// CloseAll releases every cached handle exactly once. The first error
// from an individual handle is returned; the registry is emptied
// regardless.
func (r *ArrayRegistry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for key, f := range r.handles {
		if err := f.Close(); err != nil && first == nil {
			first = errIO(nil, err)
		}
		delete(r.handles, key)
	}
	return first
}
