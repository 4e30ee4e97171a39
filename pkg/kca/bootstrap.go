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

import (
	"log"
	"os"
	"time"
)

// bootstrapReportInterval is how often bootstrapLocked logs progress
// while scanning a large store.
const bootstrapReportInterval = 30 * time.Second

// bootstrapLocked rebuilds the metadata store by scanning every array
// file already on disk for stub. It runs once, from Open, only when
// the metadata store is empty. The caller holds idx.mu.
func (idx *Index) bootstrapLocked() error {
	entries, err := os.ReadDir(idx.opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errIO(nil, err)
	}

	type found struct {
		path      string
		partition int
		chunkSize int
	}
	var files []found
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		parsed, ok := idx.namer.ParseArrayName(de.Name())
		if !ok {
			continue
		}
		if parsed.Serial != 0 {
			// Tolerated for future migration, never produced by
			// this core; bootstrap only reads serial 0 files.
			continue
		}
		files = append(files, found{
			path:      idx.namer.ArrayPath(parsed.LoadFactor, parsed.ChunkSize, parsed.Partition, 0),
			partition: parsed.Partition,
			chunkSize: parsed.ChunkSize,
		})
	}
	if len(files) == 0 {
		return nil
	}

	totalSlots := 0
	opened := make([]ArrayFile, 0, len(files))
	for _, f := range files {
		array, err := idx.registry.GetOrOpen(f.partition, f.chunkSize)
		if err != nil {
			return err
		}
		opened = append(opened, array)
		totalSlots += array.Size()
		idx.bumpMaxPartitionSeen(f.partition)
	}

	ts := today()
	processed := 0
	start := time.Now()
	lastReport := start

	for i, f := range files {
		array := opened[i]
		it := array.ContentRows(256)
		for it.Next() {
			rec := it.Record()
			entry := MetaEntry{
				Key:        append([]byte(nil), rec.Key...),
				ChunkSize:  uint32(f.chunkSize),
				ChunkCount: uint32(LiveRowCount(rec.Blob)),
				ClusterIdx: uint32(f.partition),
				IndexPos:   uint32(it.Slot()),
				LastRead:   ts,
				LastWrote:  ts,
			}
			if err := idx.meta.AddUnique(entry); err != nil {
				return errIO(entry.Key, err)
			}
			processed++

			if now := time.Now(); now.Sub(lastReport) >= bootstrapReportInterval {
				elapsed := now.Sub(start)
				rate := float64(processed) / elapsed.Seconds()
				remaining := totalSlots - processed
				eta := time.Duration(0)
				if rate > 0 {
					eta = time.Duration(float64(remaining)/rate) * time.Second
				}
				log.Printf("kca: bootstrap %s: %d/%d slots, eta %s", idx.opts.Stub, processed, totalSlots, eta)
				lastReport = now
			}
		}
		if err := it.Err(); err != nil {
			return errIO(nil, err)
		}
	}
	return nil
}

// LiveRowCount reads the 4-byte little-endian live-row count prefixed
// to every serialized collection blob, per BlobHeaderLen.
func LiveRowCount(blob []byte) int {
	if len(blob) < BlobHeaderLen {
		return 0
	}
	return int(uint32(blob[0]) | uint32(blob[1])<<8 | uint32(blob[2])<<16 | uint32(blob[3])<<24)
}
