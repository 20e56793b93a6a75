// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGeometries = []Geometry{
	{Base: 0, PageSize: 256, PagesPerSubsector: 16, SubsectorsPerSector: 16, Sectors: 8},
	{Base: 0x0800_0000, PageSize: 4, PagesPerSubsector: 2, SubsectorsPerSector: 3, Sectors: 5},
	{Base: 0x100, PageSize: 8192, PagesPerSubsector: 1, SubsectorsPerSector: 1, Sectors: 4},
}

func count[T any](seq iter.Seq[T]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}

func TestMemoryMapCounts(t *testing.T) {
	for _, g := range testGeometries {
		m, err := NewMemoryMap(g)
		require.NoError(t, err)

		assert.Equal(t, m.Size()/g.PageSize, count(m.Pages()))
		assert.Equal(t, g.Subsectors(), count(m.Subsectors()))
		assert.Equal(t, g.Sectors, count(m.Sectors()))

		for sector := range m.Sectors() {
			assert.Equal(t, g.SubsectorsPerSector, count(sector.Subsectors()))
			assert.Equal(t, g.PagesPerSector(), count(sector.Pages()))
		}
	}
}

func TestMemoryMapIsContiguous(t *testing.T) {
	for _, g := range testGeometries {
		m := MustMemoryMap(g)

		next := m.Location()
		for page := range m.Pages() {
			assert.Equal(t, next, page.Location())
			next = page.End()
		}
		assert.Equal(t, m.End(), next)

		next = m.Location()
		for sector := range m.Sectors() {
			assert.Equal(t, next, sector.Location())
			next = sector.End()
		}
		assert.Equal(t, m.End(), next)
	}
}

func TestSubsectorsNestInOneSector(t *testing.T) {
	m := MustMemoryMap(testGeometries[1])

	for subsector := range m.Subsectors() {
		owners := 0
		for sector := range m.Sectors() {
			if sector.Contains(subsector.Location()) && sector.Contains(subsector.End().Sub(1)) {
				owners++
			}
		}
		assert.Equal(t, 1, owners, "subsector %d", subsector.Index())

		for page := range subsector.Pages() {
			assert.True(t, subsector.Contains(page.Location()))
		}
	}
}

func TestLookupIsTotalAndUnique(t *testing.T) {
	g := testGeometries[1]
	m := MustMemoryMap(g)

	for a := m.Location(); a < m.End(); a++ {
		page, ok := m.PageAt(a)
		require.True(t, ok)
		assert.True(t, page.Contains(a))

		subsector, ok := m.SubsectorAt(a)
		require.True(t, ok)
		assert.True(t, subsector.Contains(a))

		sector, ok := m.SectorAt(a)
		require.True(t, ok)
		assert.True(t, sector.Contains(a))

		owners := 0
		for p := range m.Pages() {
			if p.Contains(a) {
				owners++
			}
		}
		assert.Equal(t, 1, owners)
	}
}

func TestLookupOutOfRange(t *testing.T) {
	m := MustMemoryMap(testGeometries[1])

	_, ok := m.PageAt(m.End())
	assert.False(t, ok)
	_, ok = m.SectorAt(m.Location().Sub(1))
	assert.False(t, ok)
	_, ok = m.SubsectorAt(0)
	assert.False(t, ok)
}

func TestGeometryValidation(t *testing.T) {
	_, err := NewMemoryMap(Geometry{PageSize: 256, PagesPerSubsector: 16, SubsectorsPerSector: 16})
	assert.Error(t, err)

	_, err = NewMemoryMap(Geometry{Base: 0xffff_0000, PageSize: 0x1_0000, PagesPerSubsector: 1, SubsectorsPerSector: 1, Sectors: 2})
	assert.Error(t, err)

	assert.Panics(t, func() { MustMemoryMap(Geometry{}) })
}

func TestBlockAtOnNonUniformBlocks(t *testing.T) {
	blocks := Blocks(0x0800_0000, 0x4000, 0x4000, 0x1_0000)

	b, ok := BlockAt(blocks, 0x0800_5000)
	require.True(t, ok)
	assert.Equal(t, 1, b.Index)

	b, ok = BlockAt(blocks, 0x0801_7fff)
	require.True(t, ok)
	assert.Equal(t, 2, b.Index)

	_, ok = BlockAt(blocks, 0x0801_8000)
	assert.False(t, ok)
}
