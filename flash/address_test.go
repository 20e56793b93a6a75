// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressArithmeticSaturates(t *testing.T) {
	a := Address(0x100)

	assert.Equal(t, Address(0x180), a.Add(0x80))
	assert.Equal(t, Address(0x80), a.Sub(0x80))
	assert.Equal(t, Address(0), a.Sub(0x200))
	assert.Equal(t, 0x80, a.Diff(0x80))
	assert.Equal(t, 0, Address(0x80).Diff(a))
	assert.Equal(t, 0x100, a.Offset())
	assert.Equal(t, "0x00000100", a.String())
}

func TestOverlapsSplitsAtBlockBoundaries(t *testing.T) {
	blocks := Blocks(0x1000, 0x10, 0x10, 0x20, 0x10)
	data := make([]byte, 0x28)
	for i := range data {
		data[i] = byte(i)
	}

	overlaps := slices.Collect(Overlaps(blocks, data, 0x1008))
	require.Len(t, overlaps, 3)

	assert.Equal(t, 0, overlaps[0].Block.Index)
	assert.Equal(t, Address(0x1008), overlaps[0].Address)
	assert.Equal(t, data[:0x8], overlaps[0].Data)

	assert.Equal(t, 1, overlaps[1].Block.Index)
	assert.Equal(t, Address(0x1010), overlaps[1].Address)
	assert.Equal(t, data[0x8:0x18], overlaps[1].Data)

	assert.Equal(t, 2, overlaps[2].Block.Index)
	assert.Equal(t, Address(0x1020), overlaps[2].Address)
	assert.Equal(t, data[0x18:], overlaps[2].Data)
}

func TestOverlapsCoversDataExactlyOnce(t *testing.T) {
	blocks := Blocks(0, 7, 13, 4, 32, 9, 64)

	for address := Address(0); address < 40; address += 3 {
		for size := 0; size < 80; size += 5 {
			data := make([]byte, size)
			covered := 0
			next := address

			for ov := range Overlaps(blocks, data, address) {
				assert.Equal(t, next, ov.Address)
				assert.True(t, ov.Block.Contains(ov.Address))
				assert.LessOrEqual(t, ov.Address.Add(len(ov.Data)), ov.Block.End())
				covered += len(ov.Data)
				next = next.Add(len(ov.Data))
			}

			if uint64(address)+uint64(size) <= 129 {
				assert.Equal(t, size, covered, "address %s size %d", address, size)
			}
		}
	}
}

func TestOverlapsEmptyData(t *testing.T) {
	assert.Empty(t, slices.Collect(Overlaps(Blocks(0, 16), nil, 0)))
}

func TestOverlapsStopsEarly(t *testing.T) {
	n := 0
	for range Overlaps(Blocks(0, 4, 4, 4, 4), make([]byte, 16), 0) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestBitSubset(t *testing.T) {
	assert.True(t, IsBitSubset([]byte{0x00, 0x0f}, []byte{0xff, 0x0f}))
	assert.True(t, IsBitSubset(nil, []byte{0x00}))
	assert.False(t, IsBitSubset([]byte{0x10}, []byte{0x0f}))
	assert.False(t, IsBitSubset([]byte{0x00, 0x00}, []byte{0xff}))

	assert.True(t, IsSet(0x02, 1))
	assert.False(t, IsSet(0x02, 0))
}
