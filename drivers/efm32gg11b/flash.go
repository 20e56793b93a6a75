// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package efm32gg11b drives the on-chip peripherals of the Silicon Labs
// EFM32GG11B family through a register bus.
package efm32gg11b

import (
	"encoding/binary"
	"iter"

	"github.com/bbnote/gohal"
	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/regs"
)

const (
	mscBase = 0x4000_0000

	mscWriteCtrl = mscBase + 0x008
	mscWriteCmd  = mscBase + 0x00c
	mscAddrB     = mscBase + 0x010
	mscWData     = mscBase + 0x018
	mscStatus    = mscBase + 0x01c
	mscLock      = mscBase + 0x040
	mscMassLock  = mscBase + 0x054

	writeCtrlWren = 1 << 0

	writeCmdLaddrim    = 1 << 0
	writeCmdErasePage  = 1 << 1
	writeCmdWriteOnce  = 1 << 3
	writeCmdEraseMain0 = 1 << 8
	writeCmdEraseMain1 = 1 << 9

	statusBusy         = 1 << 0
	statusLocked       = 1 << 1
	statusInvAddr      = 1 << 2
	statusWDataReady   = 1 << 3
	statusWordTimeout  = 1 << 4
	statusEraseAborted = 1 << 5

	unlockCode    = 0x1b71
	massEraseCode = 0x631a

	pollAttempts = 100_000
)

var Geometry = flash.Geometry{
	Base:                0,
	PageSize:            4 * 1024,
	PagesPerSubsector:   1,
	SubsectorsPerSector: 1,
	Sectors:             512,
}

// Flash is the internal flash of the chip, memory mapped at address zero.
// Pages are always erased before they are programmed.
type Flash struct {
	*flash.Engine
	msc *msc
}

// NewFlash unlocks the memory system controller for writing.
func NewFlash(bus regs.Bus) (*Flash, error) {
	m := &msc{bus: bus}

	if err := bus.Write32(mscLock, unlockCode); err != nil {
		return nil, err
	}
	if err := regs.Set(bus, mscWriteCtrl, writeCtrlWren); err != nil {
		return nil, err
	}

	memoryMap := flash.MustMemoryMap(Geometry)

	engine, err := flash.NewEngine(m, flash.Layout{
		Label: "efm32gg11b flash (Internal)",
		Start: memoryMap.Location(),
		End:   memoryMap.End(),
		EraseBlocks: func() iter.Seq[flash.Block] {
			return flash.BlocksOf(memoryMap.Pages())
		},
		ProgramUnit:  Geometry.PageSize,
		Alignment:    4,
		TransferSize: 4 * 1024,
		RangeError:   flash.ErrMemoryNotReachable,
	})

	if err != nil {
		return nil, err
	}

	return &Flash{Engine: engine, msc: m}, nil
}

// Close locks the controller again.
func (f *Flash) Close() error {
	if err := f.msc.bus.Write32(mscLock, 0); err != nil {
		return err
	}
	return regs.Clear(f.msc.bus, mscWriteCtrl, writeCtrlWren)
}

type msc struct {
	bus regs.Bus
}

func (m *msc) Busy() (bool, error) {
	return regs.IsSet(m.bus, mscStatus, statusBusy)
}

func (m *msc) waitUntilNotBusy() error {
	return regs.WaitFor(m.bus, mscStatus, statusBusy, 0, pollAttempts)
}

func (m *msc) loadAddress(address flash.Address) error {
	if err := m.bus.Write32(mscAddrB, uint32(address)); err != nil {
		return err
	}
	if err := m.bus.Write32(mscWriteCmd, writeCmdLaddrim); err != nil {
		return err
	}
	return m.verifyStatus()
}

func (m *msc) verifyStatus() error {
	status, err := m.bus.Read32(mscStatus)

	if err != nil {
		return err
	}

	switch {
	case status&statusInvAddr != 0:
		return flash.ErrInvalidAddress
	case status&statusLocked != 0:
		return flash.ErrMemoryIsLocked
	}
	return nil
}

func (m *msc) EraseBlock(block flash.Block) error {
	if err := m.loadAddress(block.Location()); err != nil {
		return err
	}
	return m.bus.Write32(mscWriteCmd, writeCmdErasePage)
}

// Program writes whole words, waiting for the write buffer between them.
func (m *msc) Program(address flash.Address, data []byte) error {
	if uint32(address)%4 != 0 || len(data)%4 != 0 {
		return flash.ErrMisalignedAccess
	}
	if err := m.loadAddress(address); err != nil {
		return err
	}

	for i := 0; i < len(data); i += 4 {
		if err := regs.WaitFor(m.bus, mscStatus, statusWDataReady, statusWDataReady, pollAttempts); err != nil {
			return flash.WrapError(flash.ErrorTimeOut, err)
		}
		if err := m.bus.Write32(mscWData, binary.LittleEndian.Uint32(data[i:])); err != nil {
			return err
		}
		if err := m.bus.Write32(mscWriteCmd, writeCmdWriteOnce); err != nil {
			return err
		}
		if err := m.waitUntilNotBusy(); err != nil {
			return flash.WrapError(flash.ErrorTimeOut, err)
		}
	}

	return nil
}

// MassErase erases both main banks.
func (m *msc) MassErase() error {
	if err := m.bus.Write32(mscMassLock, massEraseCode); err != nil {
		return err
	}

	for _, cmd := range []uint32{writeCmdEraseMain0, writeCmdEraseMain1} {
		if err := m.bus.Write32(mscWriteCmd, cmd); err != nil {
			return err
		}
		if err := m.waitUntilNotBusy(); err != nil {
			return flash.WrapError(flash.ErrorTimeOut, err)
		}
	}

	gohal.Logger().Debug("efm32gg11b: both main banks erased")
	return m.bus.Write32(mscMassLock, 0)
}

// TakeFailure reports an aborted erase or a word write timeout of the last
// operation. Both flags clear with the next command.
func (m *msc) TakeFailure() (bool, error) {
	status, err := m.bus.Read32(mscStatus)
	return status&(statusWordTimeout|statusEraseAborted) != 0, err
}

func (m *msc) ReadRaw(address flash.Address, data []byte) error {
	return m.bus.ReadMem(uint32(address), data)
}
