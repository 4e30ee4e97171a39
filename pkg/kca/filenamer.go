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
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// FileNamer derives array-file and property-file paths from the
// (stub, load-factor, chunk-size, partition, serial) tuple. stub is
// the store's base name and dir the directory holding every file for
// this store.
type FileNamer struct {
	Dir  string
	Stub string
}

// arrayNamePattern matches "<stub>.<LF>.<CS>.<PN>.<SN>.kca" with
// zero-padded uppercase hex fields of width 2, 4, 2, 2.
var arrayNamePattern = regexp.MustCompile(`^(.+)\.([0-9A-F]{2})\.([0-9A-F]{4})\.([0-9A-F]{2})\.([0-9A-F]{2})\.kca$`)

// ParsedArrayName is the decoded form of an array file name.
type ParsedArrayName struct {
	Stub       string
	LoadFactor int
	ChunkSize  int
	Partition  int
	Serial     int
}

// ArrayPath returns the path of the array file for the given load
// factor, chunk size, partition and serial.
func (fn FileNamer) ArrayPath(loadFactor, chunkSize, partition, serial int) string {
	name := fmt.Sprintf("%s.%02X.%04X.%02X.%02X.kca", fn.Stub, loadFactor, chunkSize, partition, serial)
	return filepath.Join(fn.Dir, name)
}

// PropertiesPath returns the path of the property file for the given
// load factor and chunk size.
func (fn FileNamer) PropertiesPath(loadFactor, chunkSize int) string {
	name := fmt.Sprintf("%s.%02X.%04X.properties", fn.Stub, loadFactor, chunkSize)
	return filepath.Join(fn.Dir, name)
}

// ParseArrayName parses a bare file name (no directory component)
// against this namer's stub, reporting ok=false for anything that
// doesn't match the exact array-file shape or belongs to another
// stub. Other files in the directory are meant to be ignored by the
// caller when ok is false.
func (fn FileNamer) ParseArrayName(name string) (parsed ParsedArrayName, ok bool) {
	m := arrayNamePattern.FindStringSubmatch(name)
	if m == nil || m[1] != fn.Stub {
		return ParsedArrayName{}, false
	}
	lf, err1 := strconv.ParseInt(m[2], 16, 32)
	cs, err2 := strconv.ParseInt(m[3], 16, 32)
	pn, err3 := strconv.ParseInt(m[4], 16, 32)
	sn, err4 := strconv.ParseInt(m[5], 16, 32)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return ParsedArrayName{}, false
	}
	return ParsedArrayName{
		Stub:       m[1],
		LoadFactor: int(lf),
		ChunkSize:  int(cs),
		Partition:  int(pn),
		Serial:     int(sn),
	}, true
}
