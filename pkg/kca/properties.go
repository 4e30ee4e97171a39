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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
)

// PropertyGuard persists and checks the payload schema descriptor
// (the "rowdef") stored alongside a store's array files. It refuses
// to open a store whose caller-provided schema is not a
// prefix-compatible extension of whatever was last persisted there.
type PropertyGuard struct {
	Path string
}

// Check loads the property file at g.Path, if any, and verifies that
// descriptor subsumes the stored rowdef. It then (re)writes the
// property file with descriptor. A missing property file is treated
// as "anything is compatible" — this is the first store at this
// path.
func (g PropertyGuard) Check(descriptor string) error {
	stored, err := g.read()
	if err != nil {
		return errIO(nil, err)
	}
	if stored != "" && !subsumes(stored, descriptor) {
		return errSchemaIncompatible(fmt.Errorf("stored rowdef %q is not extended by %q", stored, descriptor))
	}
	if err := g.write(descriptor); err != nil {
		return errIO(nil, err)
	}
	return nil
}

// read returns the stored rowdef, or "" if no property file exists
// yet.
func (g PropertyGuard) read() (string, error) {
	f, err := os.Open(g.Path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == "rowdef" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", sc.Err()
}

// write atomically rewrites the property file so a crash never leaves
// a torn file behind.
func (g PropertyGuard) write(descriptor string) error {
	content := fmt.Sprintf("rowdef = %s\n", descriptor)
	return atomic.WriteFile(g.Path, strings.NewReader(content))
}

// subsumes reports whether extended is a prefix-compatible extension
// of stored: extended may append new comma-separated columns after
// stored's columns, but may not reorder or resize any column stored
// already names. A descriptor subsumes itself.
func subsumes(stored, extended string) bool {
	storedCols := splitColumns(stored)
	extCols := splitColumns(extended)
	if len(extCols) < len(storedCols) {
		return false
	}
	for i, c := range storedCols {
		if extCols[i] != c {
			return false
		}
	}
	return true
}

func splitColumns(descriptor string) []string {
	parts := strings.Split(descriptor, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cols = append(cols, p)
		}
	}
	return cols
}
