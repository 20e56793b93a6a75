// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package spinor drives serial NOR flash chips attached through a QSPI
// peripheral in indirect mode.
package spinor

import (
	"iter"
	"time"

	"github.com/bbnote/gohal"
	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/nb"
	"github.com/bbnote/gohal/qspi"
)

type opcode byte

const (
	opPageProgram  opcode = 0x02
	opRead         opcode = 0x03
	opWriteDisable opcode = 0x04
	opReadStatus   opcode = 0x05
	opWriteEnable  opcode = 0x06
	opBulkErase    opcode = 0xc7
	opSectorErase  opcode = 0xd8
)

// Chip describes a supported part.
type Chip struct {
	Label         string
	IDInstruction byte
	Manufacturer  byte
	Geometry      flash.Geometry
}

var standardGeometry = flash.Geometry{
	Base:                0,
	PageSize:            256,
	PagesPerSubsector:   16,
	SubsectorsPerSector: 16,
	Sectors:             256,
}

var (
	N25Q128A = Chip{
		Label:         "Micron n25q128a (External)",
		IDInstruction: 0x9e,
		Manufacturer:  0x20,
		Geometry:      standardGeometry,
	}

	IS25LP128F = Chip{
		Label:         "ISSI is25lp128f (External)",
		IDInstruction: 0x9f,
		Manufacturer:  0x9d,
		Geometry:      standardGeometry,
	}
)

// Options tune a Device.
type Options struct {
	// Timeout bounds the wait for an erase or page program to finish.
	// Zero keeps polling until the chip is idle.
	Timeout time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Status is the decoded status register.
type Status struct {
	WriteInProgress  bool
	WriteEnableLatch bool
}

// Device is a NOR flash chip exposed as flash.ReadWrite.
type Device struct {
	*flash.Engine

	chip       Chip
	memoryMap  flash.MemoryMap
	controller *controller
}

// New checks the manufacturer ID and returns the driver for chip.
func New(q qspi.Indirect, chip Chip, opts Options) (*Device, error) {
	memoryMap, err := flash.NewMemoryMap(chip.Geometry)

	if err != nil {
		return nil, err
	}

	c := &controller{qspi: q, memoryMap: memoryMap}

	if err := c.verifyID(chip); err != nil {
		return nil, err
	}

	engine, err := flash.NewEngine(c, flash.Layout{
		Label: chip.Label,
		Start: memoryMap.Location(),
		End:   memoryMap.End(),
		EraseBlocks: func() iter.Seq[flash.Block] {
			return flash.BlocksOf(memoryMap.Sectors())
		},
		ProgramUnit:         chip.Geometry.PageSize,
		Alignment:           1,
		TransferSize:        chip.Geometry.SectorSize(),
		SkipEraseWhenSubset: true,
		ReadsWaitForIdle:    true,
		RangeError:          flash.ErrAddressOutOfRange,
		Timeout:             opts.Timeout,
		Now:                 opts.Clock,
	})

	if err != nil {
		return nil, err
	}

	gohal.Logger().Infof("%s: manufacturer 0x%02x, %d KiB", chip.Label, chip.Manufacturer, memoryMap.Size()/1024)

	return &Device{Engine: engine, chip: chip, memoryMap: memoryMap, controller: c}, nil
}

func (d *Device) Chip() Chip {
	return d.chip
}

func (d *Device) Map() flash.MemoryMap {
	return d.memoryMap
}

// Status reads the status register.
func (d *Device) Status() (Status, error) {
	return d.controller.status()
}

type controller struct {
	qspi      qspi.Indirect
	memoryMap flash.MemoryMap
}

func (c *controller) execute(op opcode, address *flash.Address, read, write []byte) error {
	command := qspi.NewCommand().WithInstruction(byte(op))

	if address != nil {
		command.WithAddress(uint32(*address))
	}
	if read != nil {
		command.WithReadData(read)
	} else if write != nil {
		command.WithWriteData(write)
	}

	if err := nb.Block(func() error { return c.qspi.ExecuteCommand(command) }); err != nil {
		return flash.WrapError(flash.ErrorTransport, err)
	}
	return nil
}

func (c *controller) verifyID(chip Chip) error {
	response := make([]byte, 1)
	command := qspi.NewCommand().WithInstruction(chip.IDInstruction).WithReadData(response)

	if err := nb.Block(func() error { return c.qspi.ExecuteCommand(command) }); err != nil {
		return flash.WrapError(flash.ErrorTransport, err)
	}

	if response[0] != chip.Manufacturer {
		gohal.Logger().Errorf("%s: manufacturer id 0x%02x, expected 0x%02x", chip.Label, response[0], chip.Manufacturer)
		return flash.ErrWrongManufacturerId
	}
	return nil
}

func (c *controller) status() (Status, error) {
	response := make([]byte, 1)

	if err := c.execute(opReadStatus, nil, response, nil); err != nil {
		return Status{}, err
	}

	return Status{
		WriteInProgress:  flash.IsSet(response[0], 0),
		WriteEnableLatch: flash.IsSet(response[0], 1),
	}, nil
}

func (c *controller) Busy() (bool, error) {
	s, err := c.status()
	return s.WriteInProgress, err
}

func (c *controller) idle() error {
	busy, err := c.Busy()

	if err != nil {
		return err
	}
	if busy {
		return flash.ErrWouldBlock
	}
	return nil
}

func (c *controller) EraseBlock(block flash.Block) error {
	if err := c.idle(); err != nil {
		return err
	}
	if err := c.execute(opWriteEnable, nil, nil, nil); err != nil {
		return err
	}

	address := block.Location()
	return c.execute(opSectorErase, &address, nil, nil)
}

// Program writes data inside a single page.
func (c *controller) Program(address flash.Address, data []byte) error {
	page, ok := c.memoryMap.PageAt(address)

	if !ok || uint64(address)+uint64(len(data)) > uint64(page.End()) {
		return flash.ErrMisalignedAccess
	}
	if err := c.idle(); err != nil {
		return err
	}
	if err := c.execute(opWriteEnable, nil, nil, nil); err != nil {
		return err
	}
	return c.execute(opPageProgram, &address, nil, data)
}

func (c *controller) MassErase() error {
	if err := c.execute(opWriteEnable, nil, nil, nil); err != nil {
		return err
	}
	if err := c.execute(opBulkErase, nil, nil, nil); err != nil {
		return err
	}
	return c.execute(opWriteDisable, nil, nil, nil)
}

// TakeFailure always reports success, the chip has no failure flag in its
// status register.
func (c *controller) TakeFailure() (bool, error) {
	return false, nil
}

func (c *controller) ReadRaw(address flash.Address, data []byte) error {
	return c.execute(opRead, &address, data, nil)
}
