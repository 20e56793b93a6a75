// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package qspitest

import (
	"fmt"

	"github.com/bbnote/gohal/qspi"
)

// Opcodes understood by NorChip.
const (
	OpPageProgram  = 0x02
	OpRead         = 0x03
	OpWriteDisable = 0x04
	OpReadStatus   = 0x05
	OpWriteEnable  = 0x06
	OpReadIDJedec  = 0x9f
	OpReadID       = 0x9e
	OpBulkErase    = 0xc7
	OpSectorErase  = 0xd8
)

const (
	statusWIP = 1 << 0
	statusWEL = 1 << 1
)

// NorChip simulates a serial NOR flash: erased bytes read 0xff, programming
// clears bits, page programs wrap inside their page and every modifying
// command needs the write enable latch.
type NorChip struct {
	Memory       []byte
	PageSize     int
	SectorSize   int
	Manufacturer byte

	// BusyPolls is how many status reads report write in progress after
	// a modifying command.
	BusyPolls int

	// Instructions lists every executed instruction.
	Instructions []byte

	wel  bool
	busy int
}

var _ qspi.Indirect = (*NorChip)(nil)

func NewNorChip(size, pageSize, sectorSize int, manufacturer byte) *NorChip {
	c := &NorChip{
		Memory:       make([]byte, size),
		PageSize:     pageSize,
		SectorSize:   sectorSize,
		Manufacturer: manufacturer,
	}
	for i := range c.Memory {
		c.Memory[i] = 0xff
	}
	return c
}

// Count returns how often instruction was executed.
func (c *NorChip) Count(instruction byte) int {
	n := 0
	for _, i := range c.Instructions {
		if i == instruction {
			n++
		}
	}
	return n
}

// SetBusy makes the next n status reads report write in progress.
func (c *NorChip) SetBusy(n int) {
	c.busy = n
}

func (c *NorChip) status() byte {
	var s byte
	if c.busy > 0 {
		c.busy--
		s |= statusWIP
	}
	if c.wel {
		s |= statusWEL
	}
	return s
}

func (c *NorChip) modify() bool {
	if !c.wel || c.busy > 0 {
		return false
	}
	c.wel = false
	c.busy = c.BusyPolls
	return true
}

func (c *NorChip) ExecuteCommand(command *qspi.Command) error {
	ins, ok := command.Instruction()
	if !ok {
		return fmt.Errorf("nor chip: command without instruction")
	}

	c.Instructions = append(c.Instructions, ins)
	address, _ := command.Address()
	data := command.Data()

	switch ins {
	case OpReadStatus:
		if len(data) > 0 {
			data[0] = c.status()
		}
	case OpReadID, OpReadIDJedec:
		if len(data) > 0 {
			data[0] = c.Manufacturer
		}
	case OpWriteEnable:
		c.wel = true
	case OpWriteDisable:
		c.wel = false
	case OpRead:
		for i := range data {
			data[i] = c.Memory[(int(address)+i)%len(c.Memory)]
		}
	case OpPageProgram:
		if c.modify() {
			page := int(address) / c.PageSize * c.PageSize
			offset := int(address) - page
			for i, b := range data {
				c.Memory[page+(offset+i)%c.PageSize] &= b
			}
		}
	case OpSectorErase:
		if c.modify() {
			start := int(address) / c.SectorSize * c.SectorSize
			for i := start; i < start+c.SectorSize; i++ {
				c.Memory[i] = 0xff
			}
		}
	case OpBulkErase:
		if c.modify() {
			for i := range c.Memory {
				c.Memory[i] = 0xff
			}
		}
	default:
		return fmt.Errorf("nor chip: unknown instruction 0x%02x", ins)
	}
	return nil
}
