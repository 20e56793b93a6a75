// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"fmt"
	"iter"
)

// Address is an offset into the linear address space of a flash device.
type Address uint32

// Add advances the address by n bytes.
func (a Address) Add(n int) Address {
	return Address(uint32(a) + uint32(n))
}

// Sub moves the address back by n bytes, saturating at zero.
func (a Address) Sub(n int) Address {
	if uint32(n) > uint32(a) {
		return 0
	}
	return Address(uint32(a) - uint32(n))
}

// Diff returns the number of bytes from b up to a, or zero if b lies above a.
func (a Address) Diff(b Address) int {
	if b > a {
		return 0
	}
	return int(a - b)
}

// Offset returns the address as a plain byte offset.
func (a Address) Offset() int {
	return int(a)
}

func (a Address) String() string {
	return fmt.Sprintf("0x%08x", uint32(a))
}

// Region is anything that can tell whether an address falls within it.
type Region interface {
	Contains(address Address) bool
}

// Span is a contiguous region with a known start and exclusive end.
type Span interface {
	Region
	Location() Address
	End() Address
}

// Overlap is the part of a write that lands on a single block.
type Overlap[B Span] struct {
	Data    []byte
	Block   B
	Address Address
}

// Overlaps partitions data, to be placed at address, by the blocks it
// touches. Blocks are visited in the order the sequence produces them, which
// is ascending for every map in this module.
func Overlaps[B Span](blocks iter.Seq[B], data []byte, address Address) iter.Seq[Overlap[B]] {
	return func(yield func(Overlap[B]) bool) {
		if len(data) == 0 {
			return
		}

		end := uint64(address) + uint64(len(data))

		for block := range blocks {
			blockStart := uint64(block.Location())
			blockEnd := uint64(block.End())

			if blockEnd <= uint64(address) {
				continue
			}
			if blockStart >= end {
				return
			}

			start := max(blockStart, uint64(address))
			stop := min(blockEnd, end)

			overlap := Overlap[B]{
				Data:    data[start-uint64(address) : stop-uint64(address)],
				Block:   block,
				Address: Address(start),
			}

			if !yield(overlap) {
				return
			}
		}
	}
}
