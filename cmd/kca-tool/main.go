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

// Command kca-tool is a demo driver for package kca: it opens a store
// described by a JSON config file and exposes put/get/merge/remove/
// delete/ls/verify as subcommands.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/luccioman/kca/pkg/arraystore"
	"github.com/luccioman/kca/pkg/kca"
	"github.com/luccioman/kca/pkg/kcaconfig"
	"github.com/luccioman/kca/pkg/metastore"
	"github.com/luccioman/kca/pkg/rowcoll"
)

func init() {
	log.SetPrefix("kca-tool: ")
	log.SetFlags(0)
}

var flagConfig = flag.String("config", "", "path to a JSON store config (see kcaconfig)")

func main() {
	flag.Usage = usage
	flag.Parse()
	if *flagConfig == "" || flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	cfg, err := kcaconfig.ReadFile(*flagConfig)
	if err != nil {
		log.Fatalf("reading config: %v", err)
	}

	if cmd == "verify" {
		if err := runVerify(cfg); err != nil {
			log.Fatal(err)
		}
		return
	}

	idx, err := openIndex(cfg)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			log.Printf("closing store: %v", err)
		}
	}()

	if err := dispatch(idx, cmd, args); err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: kca-tool -config FILE COMMAND [args...]

commands:
  put KEY ROWHEX...         overwrite KEY's collection
  merge KEY ROWHEX...       union ROWHEX... into KEY's collection
  remove KEY ROWKEYHEX...   remove rows by leading row-key
  get KEY                   print the row count of KEY's collection
  delete KEY                remove KEY's collection, print its row count
  ls                        list every key with its collection's row count
  verify                    read-only consistency check, no mutation

KEY, ROWHEX and ROWKEYHEX are hex-encoded byte strings.
`)
}

func openIndex(cfg kcaconfig.StoreConfig) (*kca.Index, error) {
	var meta kca.MetaStore
	switch cfg.MetaStore {
	case "mem":
		meta = metastore.NewMem()
	case "file":
		f, err := metastore.Open(filepath.Join(cfg.Dir, cfg.Stub+".index"))
		if err != nil {
			return nil, err
		}
		meta = f
	default:
		return nil, fmt.Errorf("unknown metaStore kind %q", cfg.MetaStore)
	}

	opts := kca.Options{
		Dir:              cfg.Dir,
		Stub:             cfg.Stub,
		KeyLen:           cfg.KeyLen,
		RowLen:           cfg.RowLen,
		RowKeyLen:        cfg.RowKeyLen,
		RowDef:           cfg.RowDef,
		LoadFactor:       cfg.LoadFactor,
		MaxPartitions:    cfg.MaxPartitions,
		MetaStore:        meta,
		OpenArrayFile:    arraystore.Open,
		NewCollection:    rowcoll.New,
		DecodeCollection: rowcoll.FromBlob,
	}
	return kca.Open(opts)
}

func dispatch(idx *kca.Index, cmd string, args []string) error {
	switch cmd {
	case "put":
		return cmdPutOrMerge(idx, args, idx.Put)
	case "merge":
		return cmdPutOrMerge(idx, args, idx.Merge)
	case "remove":
		return cmdRemove(idx, args)
	case "get":
		return cmdGet(idx, args)
	case "delete":
		return cmdDelete(idx, args)
	case "ls":
		return cmdLs(idx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdPutOrMerge(idx *kca.Index, args []string, op func([]byte, kca.RowCollection) error) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: KEY ROWHEX...")
	}
	key, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("bad key: %v", err)
	}
	coll, err := rowsFromHex(idx.Schema(), args[1:])
	if err != nil {
		return err
	}
	return op(key, coll)
}

func cmdRemove(idx *kca.Index, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: KEY ROWKEYHEX...")
	}
	key, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("bad key: %v", err)
	}
	var rowKeys [][]byte
	for _, h := range args[1:] {
		rk, err := hex.DecodeString(h)
		if err != nil {
			return fmt.Errorf("bad row key %q: %v", h, err)
		}
		rowKeys = append(rowKeys, rk)
	}
	n, err := idx.Remove(key, rowKeys)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d rows\n", n)
	return nil
}

func cmdGet(idx *kca.Index, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: KEY")
	}
	key, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("bad key: %v", err)
	}
	coll, ok, err := idx.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("(absent)")
		return nil
	}
	fmt.Printf("%d rows\n", coll.Len())
	return nil
}

func cmdDelete(idx *kca.Index, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: KEY")
	}
	key, err := hex.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("bad key: %v", err)
	}
	coll, ok, err := idx.Delete(key)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("(absent)")
		return nil
	}
	fmt.Printf("deleted, had %d rows\n", coll.Len())
	return nil
}

func cmdLs(idx *kca.Index, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	start := fs.String("start", "", "hex key to start from")
	rotate := fs.Bool("rotate", false, "wrap around to the smallest key")
	fs.Parse(args)

	var startKey []byte
	if *start != "" {
		k, err := hex.DecodeString(*start)
		if err != nil {
			return fmt.Errorf("bad -start: %v", err)
		}
		startKey = k
	}

	it := idx.KeyCollections(startKey, *rotate)
	defer it.Close()
	for it.Next() {
		fmt.Printf("%x\t%d rows\n", it.Key(), it.Collection().Len())
	}
	return it.Err()
}

func rowsFromHex(schema kca.Schema, hexRows []string) (kca.RowCollection, error) {
	var rows [][]byte
	for _, h := range hexRows {
		row, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("bad row %q: %v", h, err)
		}
		if schema.RowLen > 0 && len(row) != schema.RowLen {
			return nil, fmt.Errorf("row %q has length %d, want %d", h, len(row), schema.RowLen)
		}
		rows = append(rows, row)
	}
	return rowcoll.FromRows(rows, schema), nil
}

// runVerify is the offline consistency pass: it walks every array
// file under the configured store, recomputes each live slot's blob
// live-count, and reports any slot whose metadata entry disagrees or
// is missing, without mutating either the array files or the
// metadata store.
func runVerify(cfg kcaconfig.StoreConfig) error {
	var meta kca.MetaStore
	switch cfg.MetaStore {
	case "mem":
		fmt.Println("verify: metaStore \"mem\" has nothing durable to check against; skipping")
		return nil
	case "file":
		f, err := metastore.Open(filepath.Join(cfg.Dir, cfg.Stub+".index"))
		if err != nil {
			return err
		}
		defer f.Close()
		meta = f
	default:
		return fmt.Errorf("unknown metaStore kind %q", cfg.MetaStore)
	}

	namer := kca.FileNamer{Dir: cfg.Dir, Stub: cfg.Stub}
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return err
	}

	problems := 0
	checked := 0
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		parsed, ok := namer.ParseArrayName(de.Name())
		if !ok || parsed.Serial != 0 {
			continue
		}
		path := namer.ArrayPath(cfg.LoadFactor, parsed.ChunkSize, parsed.Partition, 0)
		sizing := kca.PartitionSizing{LoadFactor: cfg.LoadFactor}
		blobLen := kca.BlobHeaderLen + sizing.SlotCapacity(parsed.Partition)*parsed.ChunkSize
		array, err := arraystore.Open(path, kca.RowSchema{KeyLen: cfg.KeyLen, BlobLen: blobLen})
		if err != nil {
			return fmt.Errorf("opening %s: %v", path, err)
		}

		it := array.ContentRows(256)
		for it.Next() {
			checked++
			rec := it.Record()
			liveCount := kca.LiveRowCount(rec.Blob)

			entry, found, err := meta.Get(rec.Key)
			switch {
			case err != nil:
				return err
			case !found:
				problems++
				fmt.Printf("partition %d slot %d: key %x has no metadata entry (live count %d)\n",
					parsed.Partition, it.Slot(), rec.Key, liveCount)
			case int(entry.ClusterIdx) != parsed.Partition || int(entry.IndexPos) != it.Slot():
				problems++
				fmt.Printf("partition %d slot %d: metadata for key %x points elsewhere (partition %d slot %d)\n",
					parsed.Partition, it.Slot(), rec.Key, entry.ClusterIdx, entry.IndexPos)
			case int(entry.ChunkCount) != liveCount:
				problems++
				fmt.Printf("partition %d slot %d: metadata chunk_count %d disagrees with blob live count %d for key %x\n",
					parsed.Partition, it.Slot(), entry.ChunkCount, liveCount, rec.Key)
			}
		}
		if err := it.Err(); err != nil {
			array.Close()
			return err
		}
		array.Close()
	}

	fmt.Printf("checked %d slots, found %d problem(s)\n", checked, problems)
	return nil
}
