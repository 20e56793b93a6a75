// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package qspi describes QSPI transactions in indirect mode, where every
// transfer goes through an explicit command rather than a memory mapping.
package qspi

import "fmt"

// Direction of a command's data phase.
type Direction int

const (
	NoData Direction = iota
	ReadData
	WriteData
)

// Command is a single QSPI transaction: an optional instruction, an optional
// address, a number of dummy cycles and an optional data phase.
type Command struct {
	instruction    byte
	hasInstruction bool
	address        uint32
	hasAddress     bool
	direction      Direction
	data           []byte
	dummyCycles    uint8
}

func NewCommand() *Command {
	return &Command{}
}

func (c *Command) WithInstruction(instruction byte) *Command {
	c.instruction = instruction
	c.hasInstruction = true
	return c
}

func (c *Command) WithAddress(address uint32) *Command {
	c.address = address
	c.hasAddress = true
	return c
}

// WithReadData makes the executor fill buffer during the data phase.
func (c *Command) WithReadData(buffer []byte) *Command {
	c.direction = ReadData
	c.data = buffer
	return c
}

// WithWriteData sends data during the data phase.
func (c *Command) WithWriteData(data []byte) *Command {
	c.direction = WriteData
	c.data = data
	return c
}

func (c *Command) WithDummyCycles(cycles uint8) *Command {
	c.dummyCycles = cycles
	return c
}

func (c *Command) Instruction() (byte, bool) { return c.instruction, c.hasInstruction }
func (c *Command) Address() (uint32, bool)   { return c.address, c.hasAddress }
func (c *Command) Direction() Direction      { return c.direction }
func (c *Command) Data() []byte              { return c.data }
func (c *Command) DummyCycles() uint8        { return c.dummyCycles }

func (c *Command) String() string {
	s := "qspi"
	if c.hasInstruction {
		s += fmt.Sprintf(" ins=0x%02x", c.instruction)
	}
	if c.hasAddress {
		s += fmt.Sprintf(" addr=0x%06x", c.address)
	}
	switch c.direction {
	case ReadData:
		s += fmt.Sprintf(" read=%d", len(c.data))
	case WriteData:
		s += fmt.Sprintf(" write=%d", len(c.data))
	}
	if c.dummyCycles > 0 {
		s += fmt.Sprintf(" dummy=%d", c.dummyCycles)
	}
	return s
}

// Indirect executes commands on a QSPI peripheral in indirect mode.
// ExecuteCommand may return nb.ErrWouldBlock while the peripheral is busy.
type Indirect interface {
	ExecuteCommand(command *Command) error
}
