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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"modernc.org/kv"

	"github.com/luccioman/kca/pkg/kca"
)

// entryLen is the fixed width of a MetaEntry value: ChunkSize(4) +
// ChunkCount(4) + ClusterIdx(4) + Flags(4) + IndexPos(4) +
// LastRead(2) + LastWrote(2).
const entryLen = 4 + 4 + 4 + 4 + 4 + 2 + 2

// File is a disk-backed kca.MetaStore built on modernc.org/kv, the
// maintained continuation of github.com/cznic/kv.
type File struct {
	path string
	mu   sync.Mutex
	db   *kv.DB
}

// Open opens the metadata database at path, creating it if absent.
func Open(path string) (*File, error) {
	opts := &kv.Options{}
	var db *kv.DB
	var err error
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		db, err = kv.Create(path, opts)
	} else {
		db, err = kv.Open(path, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("metastore: opening %s: %w", path, err)
	}
	return &File{path: path, db: db}, nil
}

func encodeMetaEntry(e kca.MetaEntry) []byte {
	buf := make([]byte, entryLen)
	binary.LittleEndian.PutUint32(buf[0:4], e.ChunkSize)
	binary.LittleEndian.PutUint32(buf[4:8], e.ChunkCount)
	binary.LittleEndian.PutUint32(buf[8:12], e.ClusterIdx)
	binary.LittleEndian.PutUint32(buf[12:16], e.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], e.IndexPos)
	binary.LittleEndian.PutUint16(buf[20:22], e.LastRead)
	binary.LittleEndian.PutUint16(buf[22:24], e.LastWrote)
	return buf
}

func decodeMetaEntry(key, val []byte) (kca.MetaEntry, error) {
	if len(val) != entryLen {
		return kca.MetaEntry{}, fmt.Errorf("metastore: corrupt value for key %q: length %d, want %d", key, len(val), entryLen)
	}
	return kca.MetaEntry{
		Key:        append([]byte(nil), key...),
		ChunkSize:  binary.LittleEndian.Uint32(val[0:4]),
		ChunkCount: binary.LittleEndian.Uint32(val[4:8]),
		ClusterIdx: binary.LittleEndian.Uint32(val[8:12]),
		Flags:      binary.LittleEndian.Uint32(val[12:16]),
		IndexPos:   binary.LittleEndian.Uint32(val[16:20]),
		LastRead:   binary.LittleEndian.Uint16(val[20:22]),
		LastWrote:  binary.LittleEndian.Uint16(val[22:24]),
	}, nil
}

func (fs *File) Get(key []byte) (kca.MetaEntry, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	val, err := fs.db.Get(nil, key)
	if err != nil {
		return kca.MetaEntry{}, false, err
	}
	if val == nil {
		return kca.MetaEntry{}, false, nil
	}
	entry, err := decodeMetaEntry(key, val)
	return entry, err == nil, err
}

func (fs *File) Has(key []byte) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	val, err := fs.db.Get(nil, key)
	return val != nil, err
}

func (fs *File) AddUnique(entry kca.MetaEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	val, err := fs.db.Get(nil, entry.Key)
	if err != nil {
		return err
	}
	if val != nil {
		return fmt.Errorf("metastore: key %q already exists", entry.Key)
	}
	return fs.db.Set(entry.Key, encodeMetaEntry(entry))
}

func (fs *File) Put(entry kca.MetaEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.db.Set(entry.Key, encodeMetaEntry(entry))
}

func (fs *File) PutMultiple(entries []kca.MetaEntry, ts uint16) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	good := false
	if err := fs.db.BeginTransaction(); err != nil {
		return err
	}
	defer func() {
		if !good {
			fs.db.Rollback()
		}
	}()
	for _, e := range entries {
		e.LastWrote = ts
		if err := fs.db.Set(e.Key, encodeMetaEntry(e)); err != nil {
			return err
		}
	}
	good = true
	return fs.db.Commit()
}

func (fs *File) Remove(key []byte) (kca.MetaEntry, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	val, err := fs.db.Get(nil, key)
	if err != nil {
		return kca.MetaEntry{}, false, err
	}
	if val == nil {
		return kca.MetaEntry{}, false, nil
	}
	entry, err := decodeMetaEntry(key, val)
	if err != nil {
		return kca.MetaEntry{}, false, err
	}
	if err := fs.db.Delete(key); err != nil {
		return kca.MetaEntry{}, false, err
	}
	return entry, true, nil
}

func (fs *File) Size() (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	enum, err := fs.db.SeekFirst()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		_, _, err := enum.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (fs *File) Rows(rotating bool, startKey []byte) kca.MetaIterator {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var enum *kv.Enumerator
	var err error
	if startKey != nil {
		enum, _, err = fs.db.Seek(startKey)
	} else {
		enum, err = fs.db.SeekFirst()
	}
	if err == io.EOF {
		return &fileIterator{done: true}
	}
	return &fileIterator{fs: fs, rotating: rotating, enum: enum, err: err}
}

func (fs *File) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.db.Close()
}

type fileIterator struct {
	fs       *File
	rotating bool
	enum     *kv.Enumerator
	wrapped  bool
	sentinel []byte
	done     bool
	err      error
	cur      kca.MetaEntry
}

func (it *fileIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	it.fs.mu.Lock()
	defer it.fs.mu.Unlock()

	for {
		k, v, err := it.enum.Next()
		if err == io.EOF {
			if !it.rotating || it.wrapped {
				it.done = true
				return false
			}
			it.wrapped = true
			enum, err := it.fs.db.SeekFirst()
			if err == io.EOF {
				it.done = true
				return false
			}
			if err != nil {
				it.err = err
				return false
			}
			it.enum = enum
			continue
		}
		if err != nil {
			it.err = err
			return false
		}
		if it.sentinel != nil && bytes.Equal(k, it.sentinel) {
			it.done = true
			return false
		}
		if it.sentinel == nil {
			it.sentinel = append([]byte(nil), k...)
		}
		entry, err := decodeMetaEntry(k, v)
		if err != nil {
			it.err = err
			return false
		}
		it.cur = entry
		return true
	}
}

func (it *fileIterator) Entry() kca.MetaEntry { return it.cur }
func (it *fileIterator) Err() error           { return it.err }
func (it *fileIterator) Close() error         { return nil }
