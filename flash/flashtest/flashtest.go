// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package flashtest provides in-memory flash devices for tests.
package flashtest

import (
	"fmt"
	"iter"

	"github.com/bbnote/gohal/flash"
)

// Op names a controller operation recorded by Controller.
type Op int

const (
	OpErase Op = iota
	OpProgram
	OpMassErase
)

func (o Op) String() string {
	switch o {
	case OpErase:
		return "erase"
	case OpProgram:
		return "program"
	case OpMassErase:
		return "mass-erase"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Record is one operation issued to a Controller.
type Record struct {
	Op      Op
	Address flash.Address
	Size    int
}

// Controller is an in-memory flash.Controller with NOR semantics: erase sets
// every bit, programming can only clear bits.
type Controller struct {
	Base   flash.Address
	Memory []byte

	// BusyPolls is how many Busy calls report true after each operation.
	BusyPolls int

	// FailErase and FailProgram make the next matching operation report a
	// failure through TakeFailure.
	FailErase   bool
	FailProgram bool

	Records []Record

	busy   int
	failed bool
}

func NewController(base flash.Address, size int) *Controller {
	c := &Controller{Base: base, Memory: make([]byte, size)}
	c.fill()
	return c
}

func (c *Controller) fill() {
	for i := range c.Memory {
		c.Memory[i] = 0xff
	}
}

func (c *Controller) offset(address flash.Address, n int) (int, error) {
	off := address.Diff(c.Base)

	if address < c.Base || off+n > len(c.Memory) {
		return 0, flash.ErrAddressOutOfRange
	}
	return off, nil
}

// SetBusy makes the next n Busy calls report true.
func (c *Controller) SetBusy(n int) {
	c.busy = n
}

func (c *Controller) Busy() (bool, error) {
	if c.busy > 0 {
		c.busy--
		return true, nil
	}
	return false, nil
}

func (c *Controller) EraseBlock(block flash.Block) error {
	off, err := c.offset(block.Location(), block.Size)

	if err != nil {
		return err
	}

	c.Records = append(c.Records, Record{Op: OpErase, Address: block.Location(), Size: block.Size})
	c.busy = c.BusyPolls

	if c.FailErase {
		c.FailErase = false
		c.failed = true
		return nil
	}

	for i := off; i < off+block.Size; i++ {
		c.Memory[i] = 0xff
	}
	return nil
}

func (c *Controller) Program(address flash.Address, data []byte) error {
	off, err := c.offset(address, len(data))

	if err != nil {
		return err
	}

	c.Records = append(c.Records, Record{Op: OpProgram, Address: address, Size: len(data)})
	c.busy = c.BusyPolls

	if c.FailProgram {
		c.FailProgram = false
		c.failed = true
		return nil
	}

	for i, b := range data {
		c.Memory[off+i] &= b
	}
	return nil
}

func (c *Controller) MassErase() error {
	c.Records = append(c.Records, Record{Op: OpMassErase, Address: c.Base, Size: len(c.Memory)})
	c.busy = c.BusyPolls
	c.fill()
	return nil
}

func (c *Controller) TakeFailure() (bool, error) {
	failed := c.failed
	c.failed = false
	return failed, nil
}

func (c *Controller) ReadRaw(address flash.Address, data []byte) error {
	off, err := c.offset(address, len(data))

	if err != nil {
		return err
	}

	copy(data, c.Memory[off:])
	return nil
}

// Count returns how many operations of kind op were recorded.
func (c *Controller) Count(op Op) int {
	n := 0
	for _, r := range c.Records {
		if r.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets the recorded operations.
func (c *Controller) Reset() {
	c.Records = nil
}

// FakeFlash is a flash.Engine over an in-memory Controller laid out by a
// MemoryMap: sectors are erased, pages programmed.
type FakeFlash struct {
	*flash.Engine
	*Controller

	Map flash.MemoryMap
}

// New builds a FakeFlash. With skipEraseWhenSubset it behaves like an
// external NOR chip.
func New(geometry flash.Geometry, skipEraseWhenSubset bool) (*FakeFlash, error) {
	memoryMap, err := flash.NewMemoryMap(geometry)

	if err != nil {
		return nil, err
	}

	controller := NewController(memoryMap.Location(), memoryMap.Size())

	engine, err := flash.NewEngine(controller, flash.Layout{
		Label: "fake",
		Start: memoryMap.Location(),
		End:   memoryMap.End(),
		EraseBlocks: func() iter.Seq[flash.Block] {
			return flash.BlocksOf(memoryMap.Sectors())
		},
		ProgramUnit:         geometry.PageSize,
		Alignment:           1,
		TransferSize:        geometry.SectorSize(),
		SkipEraseWhenSubset: skipEraseWhenSubset,
		ReadsWaitForIdle:    true,
	})

	if err != nil {
		return nil, err
	}

	return &FakeFlash{Engine: engine, Controller: controller, Map: memoryMap}, nil
}

// Must is New for tests that cannot continue without a device.
func Must(geometry flash.Geometry, skipEraseWhenSubset bool) *FakeFlash {
	f, err := New(geometry, skipEraseWhenSubset)
	if err != nil {
		panic(err)
	}
	return f
}
