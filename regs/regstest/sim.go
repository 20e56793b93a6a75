// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package regstest simulates a register bus for driver tests.
package regstest

import (
	"encoding/binary"
	"fmt"

	"github.com/bbnote/gohal/regs"
)

// Sim is an in-memory regs.Bus. Registers default to zero, memory regions
// are backed by byte slices and hooks let a test model peripheral behaviour.
type Sim struct {
	registers map[uint32]uint32
	regions   []region
	onRead    map[uint32]func(uint32) uint32
	onWrite   map[uint32]func(old, value uint32) uint32

	// Writes lists every register write in order.
	Writes []Write
}

// Write is a recorded register write.
type Write struct {
	Address uint32
	Value   uint32
}

type region struct {
	base uint32
	data []byte
}

var _ regs.Bus = (*Sim)(nil)

func NewSim() *Sim {
	return &Sim{
		registers: map[uint32]uint32{},
		onRead:    map[uint32]func(uint32) uint32{},
		onWrite:   map[uint32]func(uint32, uint32) uint32{},
	}
}

// AddMemory maps data at base. Writes through the bus change data.
func (s *Sim) AddMemory(base uint32, data []byte) {
	s.regions = append(s.regions, region{base: base, data: data})
}

// OnRead installs a hook returning the value a read of address sees,
// given the stored value.
func (s *Sim) OnRead(address uint32, hook func(stored uint32) uint32) {
	s.onRead[address] = hook
}

// OnWrite installs a hook deciding what gets stored when address is
// written.
func (s *Sim) OnWrite(address uint32, hook func(old, value uint32) uint32) {
	s.onWrite[address] = hook
}

// Poke stores value without running hooks or recording the write.
func (s *Sim) Poke(address, value uint32) {
	s.registers[address] = value
}

// Peek returns the stored value without running hooks.
func (s *Sim) Peek(address uint32) uint32 {
	return s.registers[address]
}

// WritesTo lists the values written to address.
func (s *Sim) WritesTo(address uint32) []uint32 {
	var values []uint32
	for _, w := range s.Writes {
		if w.Address == address {
			values = append(values, w.Value)
		}
	}
	return values
}

func (s *Sim) memory(address uint32, n int) ([]byte, bool) {
	for _, r := range s.regions {
		if address >= r.base && uint64(address)+uint64(n) <= uint64(r.base)+uint64(len(r.data)) {
			off := address - r.base
			return r.data[off : off+uint32(n)], true
		}
	}
	return nil, false
}

func (s *Sim) Read32(address uint32) (uint32, error) {
	if mem, ok := s.memory(address, 4); ok {
		return binary.LittleEndian.Uint32(mem), nil
	}

	v := s.registers[address]

	if hook, ok := s.onRead[address]; ok {
		v = hook(v)
	}
	return v, nil
}

func (s *Sim) Write32(address uint32, value uint32) error {
	if mem, ok := s.memory(address, 4); ok {
		binary.LittleEndian.PutUint32(mem, value)
		return nil
	}

	s.Writes = append(s.Writes, Write{Address: address, Value: value})

	if hook, ok := s.onWrite[address]; ok {
		value = hook(s.registers[address], value)
	}
	s.registers[address] = value
	return nil
}

func (s *Sim) ReadMem(address uint32, buffer []byte) error {
	mem, ok := s.memory(address, len(buffer))

	if !ok {
		return fmt.Errorf("no memory mapped at 0x%08x+%d", address, len(buffer))
	}

	copy(buffer, mem)
	return nil
}

func (s *Sim) WriteMem(address uint32, data []byte) error {
	mem, ok := s.memory(address, len(data))

	if !ok {
		return fmt.Errorf("no memory mapped at 0x%08x+%d", address, len(data))
	}

	copy(mem, data)
	return nil
}
