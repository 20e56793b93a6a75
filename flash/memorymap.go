// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"errors"
	"iter"
)

// Geometry describes a flash device made of equally sized sectors, each split
// into subsectors, each split into pages.
type Geometry struct {
	Base                Address
	PageSize            int
	PagesPerSubsector   int
	SubsectorsPerSector int
	Sectors             int
}

func (g Geometry) Validate() error {
	if g.PageSize <= 0 || g.PagesPerSubsector <= 0 || g.SubsectorsPerSector <= 0 || g.Sectors <= 0 {
		return errors.New("flash geometry needs positive sizes and counts")
	}
	if uint64(g.Base)+uint64(g.Size()) >= 1<<32 {
		return errors.New("flash geometry exceeds the 32 bit address space")
	}
	return nil
}

func (g Geometry) PagesPerSector() int {
	return g.PagesPerSubsector * g.SubsectorsPerSector
}

func (g Geometry) SubsectorSize() int {
	return g.PageSize * g.PagesPerSubsector
}

func (g Geometry) SectorSize() int {
	return g.SubsectorSize() * g.SubsectorsPerSector
}

func (g Geometry) Subsectors() int {
	return g.Sectors * g.SubsectorsPerSector
}

func (g Geometry) Pages() int {
	return g.Subsectors() * g.PagesPerSubsector
}

func (g Geometry) Size() int {
	return g.Sectors * g.SectorSize()
}

// MemoryMap iterates and looks up the blocks of a Geometry. Every sequence it
// hands out is derived from the geometry alone, so it can be ranged over any
// number of times.
type MemoryMap struct {
	geometry Geometry
}

func NewMemoryMap(geometry Geometry) (MemoryMap, error) {
	if err := geometry.Validate(); err != nil {
		return MemoryMap{}, err
	}
	return MemoryMap{geometry: geometry}, nil
}

// MustMemoryMap is NewMemoryMap for geometries fixed at compile time.
func MustMemoryMap(geometry Geometry) MemoryMap {
	m, err := NewMemoryMap(geometry)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MemoryMap) Geometry() Geometry {
	return m.geometry
}

func (m MemoryMap) Location() Address {
	return m.geometry.Base
}

func (m MemoryMap) End() Address {
	return m.geometry.Base.Add(m.geometry.Size())
}

func (m MemoryMap) Size() int {
	return m.geometry.Size()
}

func (m MemoryMap) Contains(address Address) bool {
	return address >= m.Location() && address < m.End()
}

func (m MemoryMap) Sectors() iter.Seq[Sector] {
	return indexed(0, m.geometry.Sectors, func(i int) Sector { return Sector{m.geometry, i} })
}

func (m MemoryMap) Subsectors() iter.Seq[Subsector] {
	return indexed(0, m.geometry.Subsectors(), func(i int) Subsector { return Subsector{m.geometry, i} })
}

func (m MemoryMap) Pages() iter.Seq[Page] {
	return indexed(0, m.geometry.Pages(), func(i int) Page { return Page{m.geometry, i} })
}

// SectorAt returns the sector containing address.
func (m MemoryMap) SectorAt(address Address) (Sector, bool) {
	i, ok := m.indexOf(address, m.geometry.SectorSize())
	return Sector{m.geometry, i}, ok
}

// SubsectorAt returns the subsector containing address.
func (m MemoryMap) SubsectorAt(address Address) (Subsector, bool) {
	i, ok := m.indexOf(address, m.geometry.SubsectorSize())
	return Subsector{m.geometry, i}, ok
}

// PageAt returns the page containing address.
func (m MemoryMap) PageAt(address Address) (Page, bool) {
	i, ok := m.indexOf(address, m.geometry.PageSize)
	return Page{m.geometry, i}, ok
}

func (m MemoryMap) indexOf(address Address, size int) (int, bool) {
	if !m.Contains(address) {
		return 0, false
	}
	return address.Diff(m.geometry.Base) / size, true
}

// Sector is the largest erase unit of a uniform map.
type Sector struct {
	geometry Geometry
	index    int
}

func (s Sector) Index() int {
	return s.index
}

func (s Sector) Size() int {
	return s.geometry.SectorSize()
}

func (s Sector) Location() Address {
	return s.geometry.Base.Add(s.index * s.Size())
}

func (s Sector) End() Address {
	return s.Location().Add(s.Size())
}

func (s Sector) Contains(a Address) bool {
	return contains(s, a)
}

func (s Sector) Block() Block {
	return Block{Index: s.index, Start: s.Location(), Size: s.Size()}
}

func (s Sector) Subsectors() iter.Seq[Subsector] {
	n := s.geometry.SubsectorsPerSector
	return indexed(s.index*n, (s.index+1)*n, func(i int) Subsector { return Subsector{s.geometry, i} })
}

func (s Sector) Pages() iter.Seq[Page] {
	n := s.geometry.PagesPerSector()
	return indexed(s.index*n, (s.index+1)*n, func(i int) Page { return Page{s.geometry, i} })
}

type Subsector struct {
	geometry Geometry
	index    int
}

func (s Subsector) Index() int {
	return s.index
}

func (s Subsector) Size() int {
	return s.geometry.SubsectorSize()
}

func (s Subsector) Location() Address {
	return s.geometry.Base.Add(s.index * s.Size())
}

func (s Subsector) End() Address {
	return s.Location().Add(s.Size())
}

func (s Subsector) Contains(a Address) bool {
	return contains(s, a)
}

func (s Subsector) Block() Block {
	return Block{Index: s.index, Start: s.Location(), Size: s.Size()}
}

func (s Subsector) Pages() iter.Seq[Page] {
	n := s.geometry.PagesPerSubsector
	return indexed(s.index*n, (s.index+1)*n, func(i int) Page { return Page{s.geometry, i} })
}

// Page is the smallest programmable unit of a uniform map.
type Page struct {
	geometry Geometry
	index    int
}

func (p Page) Index() int {
	return p.index
}

func (p Page) Size() int {
	return p.geometry.PageSize
}

func (p Page) Location() Address {
	return p.geometry.Base.Add(p.index * p.Size())
}

func (p Page) End() Address {
	return p.Location().Add(p.Size())
}

func (p Page) Contains(a Address) bool {
	return contains(p, a)
}

func (p Page) Block() Block {
	return Block{Index: p.index, Start: p.Location(), Size: p.Size()}
}

// Block is a generic erase block, used by devices whose blocks are not all
// the same size.
type Block struct {
	Index int
	Start Address
	Size  int
}

func (b Block) Location() Address {
	return b.Start
}

func (b Block) End() Address {
	return b.Start.Add(b.Size)
}

func (b Block) Contains(a Address) bool {
	return contains(b, a)
}

// Blocks lays out consecutive blocks with the given sizes starting at base.
func Blocks(base Address, sizes ...int) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		start := base
		for i, size := range sizes {
			if !yield(Block{Index: i, Start: start, Size: size}) {
				return
			}
			start = start.Add(size)
		}
	}
}

// BlocksOf converts a sequence of map blocks to generic blocks.
func BlocksOf[B interface{ Block() Block }](seq iter.Seq[B]) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for b := range seq {
			if !yield(b.Block()) {
				return
			}
		}
	}
}

// BlockAt finds the block of seq containing address.
func BlockAt[B Span](seq iter.Seq[B], address Address) (B, bool) {
	for b := range seq {
		if b.Contains(address) {
			return b, true
		}
	}
	var zero B
	return zero, false
}

func contains(s Span, a Address) bool {
	return a >= s.Location() && a < s.End()
}

func indexed[T any](from, to int, mk func(int) T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := from; i < to; i++ {
			if !yield(mk(i)) {
				return
			}
		}
	}
}
