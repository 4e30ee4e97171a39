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

import "testing"

func TestPartitionSizingSlotCapacity(t *testing.T) {
	s := PartitionSizing{LoadFactor: 4}
	cases := []struct {
		n    int
		want int
	}{
		{0, 4},
		{1, 16},
		{2, 64},
		{3, 256},
	}
	for _, c := range cases {
		if got := s.slotCapacity(c.n); got != c.want {
			t.Errorf("slotCapacity(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestPartitionSizingPartitionFor(t *testing.T) {
	s := PartitionSizing{LoadFactor: 4}
	cases := []struct {
		count int
		want  int
	}{
		{0, 0},
		{1, 0},
		{4, 0},  // L^1
		{5, 1},  // just over L^1
		{16, 1}, // L^2
		{17, 2}, // just over L^2
		{64, 2}, // L^3
		{65, 3},
	}
	for _, c := range cases {
		got, err := s.partitionFor(c.count)
		if err != nil {
			t.Fatalf("partitionFor(%d): unexpected error: %v", c.count, err)
		}
		if got != c.want {
			t.Errorf("partitionFor(%d) = %d, want %d", c.count, got, c.want)
		}
	}
}

func TestPartitionSizingMaxPartitions(t *testing.T) {
	s := PartitionSizing{LoadFactor: 4, MaxPartitions: 2}
	if _, err := s.partitionFor(64); err != nil {
		t.Fatalf("partitionFor(64) at the boundary: unexpected error: %v", err)
	}
	_, err := s.partitionFor(65)
	if err == nil {
		t.Fatal("partitionFor(65) beyond MaxPartitions: expected error, got nil")
	}
	var kerr *Error
	if !isKcaErr(err, &kerr) || kerr.Kind != CapacityExceeded {
		t.Fatalf("partitionFor(65) error = %v, want Kind=CapacityExceeded", err)
	}
}

func TestPartitionSizingMinMem(t *testing.T) {
	s := PartitionSizing{LoadFactor: 4, MaxPartitions: 2}
	// slotCapacity(2) = 64, rowLen 10 -> 2*64*10
	if got, want := s.minMem(10, 2), 1280; got != want {
		t.Errorf("minMem(10, 2) = %d, want %d", got, want)
	}
}

func TestPartitionSizingMinMemUsesCallerSuppliedPartition(t *testing.T) {
	// MaxPartitions == 0 (unbounded) carries no usable bound itself;
	// Index.MinMem is responsible for passing the highest partition
	// actually observed instead. minMem just trusts whatever it's given.
	s := PartitionSizing{LoadFactor: 4, MaxPartitions: 0}
	if got, want := s.minMem(10, 0), 80; got != want {
		t.Errorf("minMem(10, 0) = %d, want %d", got, want)
	}
	if got, want := s.minMem(10, 3), 5120; got != want {
		t.Errorf("minMem(10, 3) = %d, want %d", got, want)
	}
}

func isKcaErr(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}
