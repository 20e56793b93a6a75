// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package efm32gg11b

import (
	"github.com/bbnote/gohal/gpio"
	"github.com/bbnote/gohal/regs"
)

const (
	gpioBase   = 0x4008_8000
	portStride = 0x30

	portModeL = 0x04
	portModeH = 0x08
	portDout  = 0x0c
	portDin   = 0x1c

	modeDisabled = 0x0
	modeInput    = 0x1
	modePushPull = 0x4
)

// Ports lists ports A to L with 16 pins each.
var Ports = func() []gpio.Port {
	ports := make([]gpio.Port, 0, 12)
	for name := 'A'; name <= 'L'; name++ {
		ports = append(ports, gpio.Port{Name: string(name), Pins: 16})
	}
	return ports
}()

// PinDriver programs pin modes through MODEL and MODEH. Peripherals are
// routed to pins by their own ROUTE registers, so the alternate function
// index is the raw four bit pin mode the peripheral needs, e.g. 4 for push
// pull or 8 for wired and.
type PinDriver struct {
	bus regs.Bus
}

func NewPinDriver(bus regs.Bus) *PinDriver {
	return &PinDriver{bus: bus}
}

// NewGpio returns a claim registry for every pin of the chip.
func NewGpio(bus regs.Bus) *gpio.Registry {
	return gpio.NewRegistry(Ports, NewPinDriver(bus))
}

func portRegister(port int, offset uint32) uint32 {
	return gpioBase + uint32(port)*portStride + offset
}

func (d *PinDriver) SetMode(pin gpio.PinID, mode gpio.Mode, function uint8) error {
	var value uint32

	switch mode {
	case gpio.ModeDisabled:
		value = modeDisabled
	case gpio.ModeInput:
		value = modeInput
	case gpio.ModeOutput:
		value = modePushPull
	case gpio.ModeAlternate:
		if function > 0xf {
			return gpio.ErrUnsupportedMode
		}
		value = uint32(function)
	default:
		return gpio.ErrUnsupportedMode
	}

	register := portRegister(pin.Port, portModeL)
	index := pin.Index

	if index >= 8 {
		register = portRegister(pin.Port, portModeH)
		index -= 8
	}

	field := regs.Field{Shift: uint(index) * 4, Width: 4}
	return regs.Modify(d.bus, register, field.Mask(), field.Put(0, value))
}

func (d *PinDriver) Read(pin gpio.PinID) (bool, error) {
	return regs.IsSet(d.bus, portRegister(pin.Port, portDin), 1<<pin.Index)
}

func (d *PinDriver) Write(pin gpio.PinID, high bool) error {
	mask := uint32(1) << pin.Index

	if high {
		return regs.Set(d.bus, portRegister(pin.Port, portDout), mask)
	}
	return regs.Clear(d.bus, portRegister(pin.Port, portDout), mask)
}
