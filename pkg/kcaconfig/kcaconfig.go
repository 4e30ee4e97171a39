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

// Package kcaconfig reads the JSON file that describes a kca store to
// cmd/kca-tool: where it lives on disk, its key and row layout, and
// which MetaStore backend to open it with.
package kcaconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// StoreConfig is the on-disk shape of a kca store's config file. Every
// field maps onto a field of kca.Options or a choice of kca.MetaStore
// backend; there is nothing else a kca-tool invocation needs to know.
type StoreConfig struct {
	Dir  string `json:"dir"`
	Stub string `json:"stub"`

	KeyLen    int    `json:"keyLen"`
	RowLen    int    `json:"rowLen"`
	RowKeyLen int    `json:"rowKeyLen"`
	RowDef    string `json:"rowDef"`

	LoadFactor    int `json:"loadFactor"`    // defaults to 4 if zero
	MaxPartitions int `json:"maxPartitions"` // 0 means unbounded

	// MetaStore selects the kca.MetaStore backend: "file" (the
	// default) for metastore.File, or "mem" for metastore.Mem.
	MetaStore string `json:"metaStore"`
}

var (
	errMissingDir        = errors.New(`kcaconfig: missing required key "dir"`)
	errMissingStub       = errors.New(`kcaconfig: missing required key "stub"`)
	errMissingRowDef     = errors.New(`kcaconfig: missing required key "rowDef"`)
	errInvalidKeyLen     = errors.New(`kcaconfig: "keyLen" must be a positive integer`)
	errInvalidRowLen     = errors.New(`kcaconfig: "rowLen" must be a positive integer`)
	errInvalidRowKeyLen  = errors.New(`kcaconfig: "rowKeyLen" must be a positive integer`)
	errInvalidLoadFactor = errors.New(`kcaconfig: "loadFactor" must be a positive integer`)
	errNegativeMaxParts  = errors.New(`kcaconfig: "maxPartitions" must not be negative`)
)

// ReadFile reads and parses the store config at configPath, rejecting
// any key that isn't one of StoreConfig's fields, applies defaults,
// and validates the result.
func ReadFile(configPath string) (StoreConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return StoreConfig{}, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg StoreConfig
	if err := dec.Decode(&cfg); err != nil {
		return StoreConfig{}, fmt.Errorf("kcaconfig: parsing %s: %v", configPath, err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return StoreConfig{}, err
	}
	return cfg, nil
}

func (c *StoreConfig) setDefaults() {
	if c.LoadFactor == 0 {
		c.LoadFactor = 4
	}
	if c.MetaStore == "" {
		c.MetaStore = "file"
	}
}

// Validate reports the first problem with c, or nil if c is
// well-formed. It does not know the set of valid MetaStore kinds;
// cmd/kca-tool rejects an unrecognized one itself when it switches on
// c.MetaStore to pick a backend.
func (c StoreConfig) Validate() error {
	switch {
	case c.Dir == "":
		return errMissingDir
	case c.Stub == "":
		return errMissingStub
	case c.RowDef == "":
		return errMissingRowDef
	case c.KeyLen <= 0:
		return errInvalidKeyLen
	case c.RowLen <= 0:
		return errInvalidRowLen
	case c.RowKeyLen <= 0:
		return errInvalidRowKeyLen
	case c.LoadFactor <= 0:
		return errInvalidLoadFactor
	case c.MaxPartitions < 0:
		return errNegativeMaxParts
	}
	return nil
}
