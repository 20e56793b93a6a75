// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package stm32f4 drives the on-chip peripherals of the STM32F4 family
// through a register bus.
package stm32f4

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/bbnote/gohal"
	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/regs"
)

const (
	flashBase = 0x4002_3c00

	flashKeyr = flashBase + 0x04
	flashSr   = flashBase + 0x0c
	flashCr   = flashBase + 0x10

	key1 = 0x4567_0123
	key2 = 0xcdef_89ab

	srEop    = 1 << 0
	srOperr  = 1 << 1
	srWrperr = 1 << 4
	srPgaerr = 1 << 5
	srPgperr = 1 << 6
	srPgserr = 1 << 7
	srBsy    = 1 << 16
	srErrors = srOperr | srWrperr | srPgaerr | srPgperr | srPgserr

	crPg   = 1 << 0
	crSer  = 1 << 1
	crMer  = 1 << 2
	crStrt = 1 << 16
	crLock = 1 << 31

	psizeX32 = 0b10
)

var (
	crSnb   = regs.Field{Shift: 3, Width: 4}
	crPsize = regs.Field{Shift: 8, Width: 2}
)

// Base is where the main flash is mapped.
const Base flash.Address = 0x0800_0000

// SectorSizes is the sector layout of the 1 MiB parts.
var SectorSizes = []int{
	16 * 1024, 16 * 1024, 16 * 1024, 16 * 1024,
	64 * 1024,
	128 * 1024, 128 * 1024, 128 * 1024, 128 * 1024, 128 * 1024, 128 * 1024, 128 * 1024,
}

// Size is the total size of the main flash.
func Size() int {
	total := 0
	for _, s := range SectorSizes {
		total += s
	}
	return total
}

// Flash is the main flash memory, erased by sector and programmed by word.
type Flash struct {
	*flash.Engine
	ctrl *controller
}

// NewFlash unlocks the flash control register.
func NewFlash(bus regs.Bus) (*Flash, error) {
	c := &controller{bus: bus}

	if err := c.unlock(); err != nil {
		return nil, err
	}

	engine, err := flash.NewEngine(c, flash.Layout{
		Label: "stm32f4 flash (Internal)",
		Start: Base,
		End:   Base.Add(Size()),
		EraseBlocks: func() iter.Seq[flash.Block] {
			return flash.Blocks(Base, SectorSizes...)
		},
		ProgramUnit:  4,
		Alignment:    4,
		TransferSize: 16 * 1024,
	})

	if err != nil {
		return nil, err
	}

	return &Flash{Engine: engine, ctrl: c}, nil
}

// Lock relocks the control register until the next NewFlash.
func (f *Flash) Lock() error {
	return regs.Set(f.ctrl.bus, flashCr, crLock)
}

type controller struct {
	bus regs.Bus
}

func (c *controller) unlock() error {
	locked, err := regs.IsSet(c.bus, flashCr, crLock)

	if err != nil || !locked {
		return err
	}
	if err := c.bus.Write32(flashKeyr, key1); err != nil {
		return err
	}
	if err := c.bus.Write32(flashKeyr, key2); err != nil {
		return err
	}

	if locked, err = regs.IsSet(c.bus, flashCr, crLock); err != nil {
		return err
	}
	if locked {
		return flash.ErrMemoryIsLocked
	}
	return nil
}

func (c *controller) Busy() (bool, error) {
	return regs.IsSet(c.bus, flashSr, srBsy)
}

func (c *controller) start(set uint32) error {
	if err := c.bus.Write32(flashSr, srErrors|srEop); err != nil {
		return err
	}

	cr := crPsize.Put(0, psizeX32) | set
	if err := regs.Modify(c.bus, flashCr, crPg|crSer|crMer|crSnb.Mask()|crPsize.Mask(), cr); err != nil {
		return err
	}
	return regs.Set(c.bus, flashCr, crStrt)
}

func (c *controller) EraseBlock(block flash.Block) error {
	if block.Index < 0 || block.Index >= len(SectorSizes) {
		return fmt.Errorf("%w: sector %d", flash.ErrInvalidAddress, block.Index)
	}
	return c.start(crSer | crSnb.Put(0, uint32(block.Index)))
}

// Program writes one word with the PG bit set.
func (c *controller) Program(address flash.Address, data []byte) error {
	if uint32(address)%4 != 0 || len(data) != 4 {
		return flash.ErrMisalignedAccess
	}

	if err := c.bus.Write32(flashSr, srErrors|srEop); err != nil {
		return err
	}
	if err := regs.Modify(c.bus, flashCr, crSer|crMer|crPsize.Mask(), crPg|crPsize.Put(0, psizeX32)); err != nil {
		return err
	}
	return c.bus.Write32(uint32(address), binary.LittleEndian.Uint32(data))
}

func (c *controller) MassErase() error {
	gohal.Logger().Debug("stm32f4: mass erase")
	return c.start(crMer)
}

// TakeFailure reads and clears the error flags and leaves programming mode.
func (c *controller) TakeFailure() (bool, error) {
	sr, err := c.bus.Read32(flashSr)

	if err != nil {
		return false, err
	}

	if sr&srErrors != 0 {
		gohal.Logger().Debugf("stm32f4: flash status 0x%08x", sr)

		if err := c.bus.Write32(flashSr, sr&srErrors); err != nil {
			return false, err
		}
	}

	if err := regs.Clear(c.bus, flashCr, crPg|crSer|crMer); err != nil {
		return false, err
	}
	return sr&srErrors != 0, nil
}

func (c *controller) ReadRaw(address flash.Address, data []byte) error {
	return c.bus.ReadMem(uint32(address), data)
}
