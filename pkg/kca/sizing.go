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

// PartitionSizing maps a collection's row count to the partition that
// holds it, and a partition index back to its slot capacity. Partition
// n holds collections of size (L^n, L^(n+1)]; its slot capacity is
// L^(n+1). MaxPartitions, if non-zero, bounds the highest partition
// partitionFor will return before it raises CapacityExceeded.
type PartitionSizing struct {
	LoadFactor    int
	MaxPartitions int // 0 means unbounded
}

// SlotCapacity returns L^(n+1), the slot width in rows of partition
// n. Exported for tools (e.g. cmd/kca-tool's verify pass) that need
// to derive a partition's blob layout without an open Index.
func (s PartitionSizing) SlotCapacity(n int) int {
	return s.slotCapacity(n)
}

// slotCapacity returns L^(n+1), the slot width in rows of partition n.
func (s PartitionSizing) slotCapacity(n int) int {
	c := 1
	for i := 0; i <= n; i++ {
		c *= s.LoadFactor
	}
	return c
}

// partitionFor returns the least n >= 0 with L^(n+1) >= max(count, 1).
// It returns an error if that partition exceeds MaxPartitions.
func (s PartitionSizing) partitionFor(count int) (int, error) {
	if count < 1 {
		count = 1
	}
	n := 0
	c := s.LoadFactor
	for c < count {
		n++
		c *= s.LoadFactor
	}
	if s.MaxPartitions > 0 && n > s.MaxPartitions {
		return 0, errCapacityExceeded(nil)
	}
	return n, nil
}

// minMem is the advisory upper bound on working-set bytes needed to
// sort the largest collection held in partition highestPartition:
// 2*L^(highestPartition+1)*P. Callers pass MaxPartitions when it is
// set; when MaxPartitions is 0 (unbounded), MaxPartitions itself is
// the smallest partition's capacity rather than the largest, so the
// caller must pass the highest partition actually observed in the
// store instead.
func (s PartitionSizing) minMem(rowLen, highestPartition int) int {
	return 2 * s.slotCapacity(highestPartition) * rowLen
}
