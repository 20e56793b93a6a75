// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package qspi

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"

	"github.com/bbnote/gohal"
)

// ChipSelect drives the active low select line of a SPI device.
type ChipSelect interface {
	Set(high bool) error
}

// SPIBridge runs indirect commands over a plain single line SPI bus. The
// instruction goes out as one byte followed by a 24 bit big endian address
// and one byte per eight dummy cycles.
type SPIBridge struct {
	bus drivers.SPI
	cs  ChipSelect
	buf []byte
}

var _ Indirect = (*SPIBridge)(nil)

func NewSPIBridge(bus drivers.SPI, cs ChipSelect) (*SPIBridge, error) {
	if bus == nil || cs == nil {
		return nil, errors.New("spi bridge needs a bus and a chip select")
	}
	if err := cs.Set(true); err != nil {
		return nil, err
	}
	return &SPIBridge{bus: bus, cs: cs}, nil
}

func (b *SPIBridge) header(command *Command) []byte {
	b.buf = b.buf[:0]

	if ins, ok := command.Instruction(); ok {
		b.buf = append(b.buf, ins)
	}
	if addr, ok := command.Address(); ok {
		b.buf = append(b.buf, byte(addr>>16), byte(addr>>8), byte(addr))
	}
	for i := uint8(0); i < command.DummyCycles()/8; i++ {
		b.buf = append(b.buf, 0)
	}
	return b.buf
}

func (b *SPIBridge) ExecuteCommand(command *Command) (err error) {
	if command.DummyCycles()%8 != 0 {
		return fmt.Errorf("spi bridge cannot clock %d dummy cycles", command.DummyCycles())
	}

	if err := b.cs.Set(false); err != nil {
		return err
	}
	defer func() {
		if csErr := b.cs.Set(true); err == nil {
			err = csErr
		}
	}()

	gohal.Logger().Tracef("spi bridge: %v", command)

	if header := b.header(command); len(header) > 0 {
		if err := b.bus.Tx(header, nil); err != nil {
			return err
		}
	}

	switch command.Direction() {
	case ReadData:
		return b.bus.Tx(nil, command.Data())
	case WriteData:
		return b.bus.Tx(command.Data(), nil)
	}
	return nil
}
