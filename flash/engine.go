// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"errors"
	"iter"
	"time"

	"github.com/bbnote/gohal"
	"github.com/bbnote/gohal/nb"
)

// Layout tells the Engine how a device is organised and which write policy
// it follows.
type Layout struct {
	Label string

	// Start and End bound the addressable range, End exclusive.
	Start Address
	End   Address

	// EraseBlocks lists the erase blocks in ascending address order.
	EraseBlocks func() iter.Seq[Block]

	// ProgramUnit is the largest chunk handed to Controller.Program at once.
	// Chunks never cross a unit boundary.
	ProgramUnit int

	// Alignment applies to both the start address and the length of writes.
	Alignment int

	// TransferSize is the staging buffer size of WriteFromBlocks.
	TransferSize int

	// SkipEraseWhenSubset enables erase avoidance for NOR semantics: data
	// that only clears bits is programmed over the current content.
	SkipEraseWhenSubset bool

	// ReadsWaitForIdle makes reads report ErrWouldBlock while busy.
	ReadsWaitForIdle bool

	// RangeError is returned for accesses outside [Start, End).
	// Defaults to ErrAddressOutOfRange.
	RangeError error

	// Timeout bounds every wait for an operation to complete. Zero waits
	// forever.
	Timeout time.Duration

	// Now is the clock used for Timeout. Defaults to time.Now.
	Now func() time.Time
}

// Engine implements ReadWrite for any Controller.
//
// An Engine exclusively owns its controller and is not safe for concurrent
// use.
type Engine struct {
	controller Controller
	layout     Layout
	scratch    []byte
}

var _ ReadWrite = (*Engine)(nil)

func NewEngine(controller Controller, layout Layout) (*Engine, error) {
	if controller == nil {
		return nil, errors.New("flash engine needs a controller")
	}
	if layout.EraseBlocks == nil {
		return nil, errors.New("flash engine needs an erase block layout")
	}
	if layout.End <= layout.Start {
		return nil, errors.New("flash engine needs a non empty address range")
	}
	if layout.ProgramUnit <= 0 {
		return nil, errors.New("flash engine needs a positive program unit")
	}
	if layout.Alignment <= 0 {
		layout.Alignment = 1
	}
	if layout.TransferSize <= 0 {
		layout.TransferSize = 4096
	}
	if layout.RangeError == nil {
		layout.RangeError = ErrAddressOutOfRange
	}
	if layout.Now == nil {
		layout.Now = time.Now
	}

	return &Engine{controller: controller, layout: layout}, nil
}

func (e *Engine) Label() string {
	return e.layout.Label
}

func (e *Engine) Range() (Address, Address) {
	return e.layout.Start, e.layout.End
}

// Controller returns the controller the engine drives.
func (e *Engine) Controller() Controller {
	return e.controller
}

func (e *Engine) inRange(address Address, length int) bool {
	return address >= e.layout.Start && uint64(address)+uint64(length) <= uint64(e.layout.End)
}

func (e *Engine) aligned(address Address, length int) bool {
	a := uint32(e.layout.Alignment)
	return uint32(address)%a == 0 && uint32(length)%a == 0
}

func (e *Engine) idle() error {
	busy, err := e.controller.Busy()

	if err != nil {
		return err
	}
	if busy {
		return ErrWouldBlock
	}
	return nil
}

// waitUntilIdle polls the controller until the last operation completed.
func (e *Engine) waitUntilIdle() error {
	if e.layout.Timeout <= 0 {
		return nb.Block(e.idle)
	}

	start := e.layout.Now()

	for {
		err := e.idle()

		if !nb.IsWouldBlock(err) {
			return err
		}

		if e.layout.Now().Sub(start) > e.layout.Timeout {
			gohal.Logger().Warnf("%s: gave up waiting after %v", e.layout.Label, e.layout.Timeout)
			return ErrTimeOut
		}
	}
}

func (e *Engine) read(address Address, data []byte) error {
	if e.layout.ReadsWaitForIdle {
		if err := e.idle(); err != nil {
			return err
		}
	}

	return e.controller.ReadRaw(address, data)
}

// Read copies len(data) bytes starting at address into data.
func (e *Engine) Read(address Address, data []byte) error {
	if !e.inRange(address, len(data)) {
		return e.layout.RangeError
	}

	return e.read(address, data)
}

// Write stores data at address, erasing and reprogramming every erase block
// it touches while keeping the rest of those blocks intact.
//
// Blocks are processed in ascending order. A failure leaves the blocks
// before the failing one written and is reported as *PartialWriteError.
func (e *Engine) Write(address Address, data []byte) error {
	if !e.aligned(address, len(data)) {
		return ErrMisalignedAccess
	}
	if !e.inRange(address, len(data)) {
		return e.layout.RangeError
	}
	if err := e.idle(); err != nil {
		return err
	}

	for overlap := range Overlaps(e.layout.EraseBlocks(), data, address) {
		if err := e.writeBlock(overlap); err != nil {
			gohal.Logger().Debugf("%s: write failed in block %d: %v", e.layout.Label, overlap.Block.Index, err)
			return &PartialWriteError{Resume: overlap.Address, Err: err}
		}
	}

	return nil
}

func (e *Engine) blockBuffer(size int) []byte {
	if cap(e.scratch) < size {
		e.scratch = make([]byte, size)
	}
	return e.scratch[:size]
}

func (e *Engine) writeBlock(overlap Overlap[Block]) error {
	block := overlap.Block
	content := e.blockBuffer(block.Size)

	err := nb.Block(func() error { return e.read(block.Location(), content) })

	if err != nil {
		return err
	}

	offset := overlap.Address.Diff(block.Location())

	if e.layout.SkipEraseWhenSubset && IsBitSubset(overlap.Data, content[offset:]) {
		gohal.Logger().Tracef("%s: block %d already allows the new data, skipping erase", e.layout.Label, block.Index)
		return e.program(block, overlap.Data, overlap.Address)
	}

	copy(content[offset:], overlap.Data)

	if err := e.eraseBlock(block); err != nil {
		return err
	}

	return e.program(block, content, block.Location())
}

func (e *Engine) eraseBlock(block Block) error {
	gohal.Logger().Debugf("%s: erasing block %d at %s (%d bytes)", e.layout.Label, block.Index, block.Location(), block.Size)

	err := nb.Block(func() error { return e.controller.EraseBlock(block) })

	if err != nil {
		return err
	}

	if err := e.waitUntilIdle(); err != nil {
		return err
	}

	failed, err := e.controller.TakeFailure()

	if err != nil {
		return err
	}
	if failed {
		return ErrPageEraseFailed
	}
	return nil
}

// programUnits splits a block into program units.
func (e *Engine) programUnits(block Block) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		unit := e.layout.ProgramUnit

		for offset, i := 0, 0; offset < block.Size; offset, i = offset+unit, i+1 {
			size := min(unit, block.Size-offset)

			if !yield(Block{Index: i, Start: block.Location().Add(offset), Size: size}) {
				return
			}
		}
	}
}

func (e *Engine) program(block Block, data []byte, address Address) error {
	for unit := range Overlaps(e.programUnits(block), data, address) {
		gohal.Logger().Tracef("%s: programming %d bytes at %s", e.layout.Label, len(unit.Data), unit.Address)

		err := nb.Block(func() error { return e.controller.Program(unit.Address, unit.Data) })

		if err != nil {
			return err
		}

		if err := e.waitUntilIdle(); err != nil {
			return err
		}
	}

	failed, err := e.controller.TakeFailure()

	if err != nil {
		return err
	}
	if failed {
		return ErrWriteFailed
	}
	return nil
}

// Erase erases the whole device.
func (e *Engine) Erase() error {
	if err := e.idle(); err != nil {
		return err
	}

	gohal.Logger().Debugf("%s: mass erase", e.layout.Label)

	if err := e.controller.MassErase(); err != nil {
		return err
	}

	if err := e.waitUntilIdle(); err != nil {
		return err
	}

	failed, err := e.controller.TakeFailure()

	if err != nil {
		return err
	}
	if failed {
		return ErrMassEraseFailed
	}
	return nil
}

// WriteFromBlocks writes fixed size chunks through a staging buffer of the
// layout's transfer size.
func (e *Engine) WriteFromBlocks(address Address, blockSize int, blocks iter.Seq[[]byte]) error {
	return WriteFromBlocks(e, e.layout.TransferSize, address, blockSize, blocks)
}

// Bytes streams the device content starting at address.
func (e *Engine) Bytes(address Address) *ReadIterator {
	return NewReadIterator(e, address)
}
