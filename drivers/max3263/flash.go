// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package max3263 drives the on-chip peripherals of the Maxim MAX3263x
// family through a register bus.
package max3263

import (
	"encoding/binary"
	"iter"

	"github.com/bbnote/gohal"
	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/regs"
)

const (
	flcBase = 0x4000_2000

	flcFaddr   = flcBase + 0x00
	flcCtrl    = flcBase + 0x08
	flcIntr    = flcBase + 0x24
	flcFdata   = flcBase + 0x30
	flcPerform = flcBase + 0x3c

	ctrlWrite     = 1 << 0
	ctrlMassErase = 1 << 1
	ctrlPageErase = 1 << 2
	ctrlBusy      = ctrlWrite | ctrlMassErase | ctrlPageErase

	intrFailed = 1 << 1

	performEnBack2BackRds = 1 << 0
	performEnMergeGrabGnt = 1 << 8
	performEnPreventFail  = 1 << 12
	performAutoTacc       = 1 << 16
	performAutoClkdiv     = 1 << 20

	unlockKey     = 0x2
	pageEraseCode = 0x55
	massEraseCode = 0xaa
)

var (
	ctrlEraseCode = regs.Field{Shift: 8, Width: 8}
	ctrlUnlock    = regs.Field{Shift: 28, Width: 4}
)

var Geometry = flash.Geometry{
	Base:                0,
	PageSize:            8 * 1024,
	PagesPerSubsector:   1,
	SubsectorsPerSector: 1,
	Sectors:             256,
}

// Flash is the internal flash of the chip, programmed one word at a time.
type Flash struct {
	*flash.Engine
}

// NewFlash configures the controller's performance options.
func NewFlash(bus regs.Bus) (*Flash, error) {
	err := bus.Write32(flcPerform, performEnBack2BackRds|performEnMergeGrabGnt|
		performAutoTacc|performAutoClkdiv|performEnPreventFail)

	if err != nil {
		return nil, err
	}

	memoryMap := flash.MustMemoryMap(Geometry)

	engine, err := flash.NewEngine(&flc{bus: bus}, flash.Layout{
		Label: "MAX3263 flash (internal)",
		Start: memoryMap.Location(),
		End:   memoryMap.End(),
		EraseBlocks: func() iter.Seq[flash.Block] {
			return flash.BlocksOf(memoryMap.Pages())
		},
		ProgramUnit:  4,
		Alignment:    4,
		TransferSize: 4 * 1024,
	})

	if err != nil {
		return nil, err
	}

	return &Flash{Engine: engine}, nil
}

type flc struct {
	bus regs.Bus
}

func (f *flc) Busy() (bool, error) {
	return regs.IsSet(f.bus, flcCtrl, ctrlBusy)
}

func (f *flc) unlock(eraseCode uint32) error {
	ctrl, err := f.bus.Read32(flcCtrl)

	if err != nil {
		return err
	}

	ctrl = ctrlUnlock.Put(ctrl, unlockKey)
	ctrl = ctrlEraseCode.Put(ctrl, eraseCode)
	return f.bus.Write32(flcCtrl, ctrl)
}

func (f *flc) lock() error {
	return regs.Clear(f.bus, flcCtrl, ctrlUnlock.Mask()|ctrlEraseCode.Mask())
}

func (f *flc) clearErrors() error {
	return regs.Clear(f.bus, flcIntr, intrFailed)
}

func (f *flc) EraseBlock(block flash.Block) error {
	if err := f.clearErrors(); err != nil {
		return err
	}
	if err := f.unlock(pageEraseCode); err != nil {
		return err
	}
	if err := f.bus.Write32(flcFaddr, uint32(block.Location())); err != nil {
		return err
	}
	return regs.Set(f.bus, flcCtrl, ctrlPageErase)
}

// Program writes a single word.
func (f *flc) Program(address flash.Address, data []byte) error {
	if uint32(address)%4 != 0 || len(data) != 4 {
		return flash.ErrMisalignedAccess
	}
	if err := f.unlock(0); err != nil {
		return err
	}
	if err := f.bus.Write32(flcFaddr, uint32(address)); err != nil {
		return err
	}
	if err := f.bus.Write32(flcFdata, binary.LittleEndian.Uint32(data)); err != nil {
		return err
	}
	return regs.Set(f.bus, flcCtrl, ctrlWrite)
}

func (f *flc) MassErase() error {
	if err := f.clearErrors(); err != nil {
		return err
	}
	if err := f.unlock(massEraseCode); err != nil {
		return err
	}

	gohal.Logger().Debug("max3263: mass erase")
	return regs.Set(f.bus, flcCtrl, ctrlMassErase)
}

// TakeFailure finishes an operation: it locks the controller and reads and
// clears the failed flag.
func (f *flc) TakeFailure() (bool, error) {
	if err := f.lock(); err != nil {
		return false, err
	}

	failed, err := regs.IsSet(f.bus, flcIntr, intrFailed)

	if err != nil {
		return false, err
	}
	return failed, f.clearErrors()
}

func (f *flc) ReadRaw(address flash.Address, data []byte) error {
	return f.bus.ReadMem(uint32(address), data)
}
