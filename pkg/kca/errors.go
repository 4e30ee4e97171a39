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

import "fmt"

// Kind classifies an Error. Kinds that are self-healed on the read
// path (STALE_KEY, STALE_COUNT, BAD_KEY) never surface as an Error;
// they are logged at the point of correction instead.
type Kind int

const (
	// IO wraps a failure from the underlying ArrayFile or MetaStore.
	IO Kind = iota
	// CapacityExceeded is returned when a collection no longer fits
	// any configured partition.
	CapacityExceeded
	// SchemaIncompatible is returned by Open when the stored rowdef
	// is not subsumed by the requested one.
	SchemaIncompatible
	// Corruption is returned when a metadata entry points at a slot
	// that the array file no longer has.
	Corruption
	// Closed is returned by any error-returning Index method, and by
	// a CollectionIterator, after Close.
	Closed
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case CapacityExceeded:
		return "capacity exceeded"
	case SchemaIncompatible:
		return "schema incompatible"
	case Corruption:
		return "corruption"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the error type returned by every public Index operation.
// It carries enough context to make a log line actionable without
// callers resorting to string matching; use errors.As to recover one.
type Error struct {
	Kind Kind
	Key  []byte // nil if not key-specific
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		if e.Key != nil {
			return fmt.Sprintf("kca: %s: key %q", e.Kind, e.Key)
		}
		return fmt.Sprintf("kca: %s", e.Kind)
	}
	if e.Key != nil {
		return fmt.Sprintf("kca: %s: key %q: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("kca: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, ErrClosed) works regardless of Key/Err contents.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Key == nil && t.Err == nil
}

// ErrClosed is returned by every error-returning Index method once
// Close has run; MinMem and Schema return no error and keep answering
// from in-memory state.
var ErrClosed = &Error{Kind: Closed}

func errIO(key []byte, err error) error {
	return &Error{Kind: IO, Key: key, Err: err}
}

func errCorruption(key []byte, err error) error {
	return &Error{Kind: Corruption, Key: key, Err: err}
}

func errCapacityExceeded(key []byte) error {
	return &Error{Kind: CapacityExceeded, Key: key}
}

func errSchemaIncompatible(err error) error {
	return &Error{Kind: SchemaIncompatible, Err: err}
}
