// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package max3263

import (
	"strconv"

	"github.com/bbnote/gohal/gpio"
	"github.com/bbnote/gohal/regs"
)

const (
	gpioBase = 0x4000_a000

	gpioOutMode = gpioBase + 0x060
	gpioOutVal  = gpioBase + 0x0a0
	gpioFuncSel = gpioBase + 0x0c0
	gpioInMode  = gpioBase + 0x0e0
	gpioInVal   = gpioBase + 0x100

	outModeHighZ  = 0x0
	outModeNormal = 0x5

	inModeNormal = 0x0

	funcSelGpio = 0x0
)

// Ports lists ports 0 to 8. Port 8 only bonds out two pins.
var Ports = func() []gpio.Port {
	ports := make([]gpio.Port, 0, 9)
	for i := 0; i < 8; i++ {
		ports = append(ports, gpio.Port{Name: strconv.Itoa(i), Pins: 8})
	}
	return append(ports, gpio.Port{Name: "8", Pins: 2})
}()

// PinDriver selects pin functions through FUNC_SEL and drives pins through
// OUT_MODE and OUT_VAL.
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

func nibble(pin gpio.PinID) regs.Field {
	return regs.Field{Shift: uint(pin.Index) * 4, Width: 4}
}

func (d *PinDriver) put(base uint32, field regs.Field, pin gpio.PinID, value uint32) error {
	address := base + uint32(pin.Port)*4
	return regs.Modify(d.bus, address, field.Mask(), field.Put(0, value))
}

func (d *PinDriver) SetMode(pin gpio.PinID, mode gpio.Mode, function uint8) error {
	fn, out := uint32(funcSelGpio), uint32(outModeHighZ)

	switch mode {
	case gpio.ModeDisabled, gpio.ModeInput:
	case gpio.ModeOutput:
		out = outModeNormal
	case gpio.ModeAlternate:
		if function == funcSelGpio || function > 0xf {
			return gpio.ErrUnsupportedMode
		}
		fn = uint32(function)
	default:
		return gpio.ErrUnsupportedMode
	}

	if err := d.put(gpioFuncSel, nibble(pin), pin, fn); err != nil {
		return err
	}
	if err := d.put(gpioInMode, regs.Field{Shift: uint(pin.Index) * 2, Width: 2}, pin, inModeNormal); err != nil {
		return err
	}
	return d.put(gpioOutMode, nibble(pin), pin, out)
}

func (d *PinDriver) Read(pin gpio.PinID) (bool, error) {
	return regs.IsSet(d.bus, gpioInVal+uint32(pin.Port)*4, 1<<pin.Index)
}

func (d *PinDriver) Write(pin gpio.PinID, high bool) error {
	address := gpioOutVal + uint32(pin.Port)*4
	mask := uint32(1) << pin.Index

	if high {
		return regs.Set(d.bus, address, mask)
	}
	return regs.Clear(d.bus, address, mask)
}
