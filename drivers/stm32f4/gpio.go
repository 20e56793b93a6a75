// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stm32f4

import (
	"github.com/bbnote/gohal/gpio"
	"github.com/bbnote/gohal/regs"
)

const (
	gpioBase   = 0x4002_0000
	portStride = 0x400

	gpioModer = 0x00
	gpioIdr   = 0x10
	gpioBsrr  = 0x18
	gpioAfrl  = 0x20
	gpioAfrh  = 0x24

	moderInput     = 0b00
	moderOutput    = 0b01
	moderAlternate = 0b10
	moderAnalog    = 0b11
)

// Ports lists ports A to K with 16 pins each.
var Ports = func() []gpio.Port {
	ports := make([]gpio.Port, 0, 11)
	for name := 'A'; name <= 'K'; name++ {
		ports = append(ports, gpio.Port{Name: string(name), Pins: 16})
	}
	return ports
}()

// PinDriver programs MODER and the alternate function registers. Disabled
// pins are put in analog mode.
type PinDriver struct {
	bus regs.Bus
}

func NewPinDriver(bus regs.Bus) *PinDriver {
	return &PinDriver{bus: bus}
}

func NewGpio(bus regs.Bus) *gpio.Registry {
	return gpio.NewRegistry(Ports, NewPinDriver(bus))
}

func register(port int, offset uint32) uint32 {
	return gpioBase + uint32(port)*portStride + offset
}

func (d *PinDriver) SetMode(pin gpio.PinID, mode gpio.Mode, function uint8) error {
	var moder uint32

	switch mode {
	case gpio.ModeDisabled:
		moder = moderAnalog
	case gpio.ModeInput:
		moder = moderInput
	case gpio.ModeOutput:
		moder = moderOutput
	case gpio.ModeAlternate:
		if function > 15 {
			return gpio.ErrUnsupportedMode
		}

		afr, index := uint32(gpioAfrl), pin.Index
		if index >= 8 {
			afr, index = gpioAfrh, index-8
		}

		field := regs.Field{Shift: uint(index) * 4, Width: 4}
		if err := regs.Modify(d.bus, register(pin.Port, afr), field.Mask(), field.Put(0, uint32(function))); err != nil {
			return err
		}
		moder = moderAlternate
	default:
		return gpio.ErrUnsupportedMode
	}

	field := regs.Field{Shift: uint(pin.Index) * 2, Width: 2}
	return regs.Modify(d.bus, register(pin.Port, gpioModer), field.Mask(), field.Put(0, moder))
}

func (d *PinDriver) Read(pin gpio.PinID) (bool, error) {
	return regs.IsSet(d.bus, register(pin.Port, gpioIdr), 1<<pin.Index)
}

// Write uses the atomic set/reset register.
func (d *PinDriver) Write(pin gpio.PinID, high bool) error {
	bit := uint32(1) << pin.Index

	if !high {
		bit <<= 16
	}
	return d.bus.Write32(register(pin.Port, gpioBsrr), bit)
}
