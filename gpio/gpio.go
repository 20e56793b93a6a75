// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package gpio hands out exclusive, mode typed handles to GPIO pins.
//
// A Registry owns every pin of a chip. Each pin can be claimed once for the
// lifetime of the registry; the returned handle is the only way to touch
// the pin. Changing a pin's mode consumes the handle and returns a new one
// of a different type, so input operations are only available on an
// InputPin, output operations only on an OutputPin.
package gpio

import (
	"errors"
	"fmt"

	"github.com/boljen/go-bitmap"

	"github.com/bbnote/gohal"
)

type Mode int

const (
	ModeDisabled Mode = iota
	ModeInput
	ModeOutput
	ModeAlternate
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeAlternate:
		return "alternate"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

var (
	// ErrPinMoved is returned by a handle that was consumed by a mode change.
	ErrPinMoved = errors.New("pin handle was consumed by a mode change")

	// ErrUnsupportedMode is returned by drivers for modes the hardware lacks.
	ErrUnsupportedMode = errors.New("pin mode not supported")
)

// Port describes one GPIO port of a chip.
type Port struct {
	Name string
	Pins int
}

// PinID identifies a physical pin by its position in the port table.
type PinID struct {
	Port  int
	Index int
}

// PinDriver performs the register accesses behind mode changes and pin I/O.
type PinDriver interface {
	SetMode(pin PinID, mode Mode, function uint8) error
	Read(pin PinID) (bool, error)
	Write(pin PinID, high bool) error
}

// Registry is the claim table of a chip's pins.
type Registry struct {
	ports   []Port
	offsets []int
	claimed bitmap.Bitmap
	driver  PinDriver
}

func NewRegistry(ports []Port, driver PinDriver) *Registry {
	r := &Registry{ports: ports, offsets: make([]int, len(ports)), driver: driver}

	total := 0
	for i, p := range ports {
		r.offsets[i] = total
		total += p.Pins
	}

	r.claimed = bitmap.New(total)
	return r
}

// Ports returns the port table.
func (r *Registry) Ports() []Port {
	return r.ports
}

func (r *Registry) lookup(port string, index int) (PinID, int, bool) {
	for i, p := range r.ports {
		if p.Name != port {
			continue
		}
		if index < 0 || index >= p.Pins {
			return PinID{}, 0, false
		}
		return PinID{Port: i, Index: index}, r.offsets[i] + index, true
	}
	return PinID{}, 0, false
}

// IsClaimed reports whether the pin has been handed out.
func (r *Registry) IsClaimed(port string, index int) bool {
	_, bit, ok := r.lookup(port, index)
	return ok && r.claimed.Get(bit)
}

func (r *Registry) claim(port string, index int, mode Mode, function uint8) (*pinCore, bool) {
	id, bit, ok := r.lookup(port, index)

	if !ok || r.claimed.Get(bit) {
		return nil, false
	}

	if err := r.driver.SetMode(id, mode, function); err != nil {
		gohal.Logger().Warnf("gpio: claiming %s%d as %v failed: %v", port, index, mode, err)
		return nil, false
	}

	r.claimed.Set(bit, true)
	gohal.Logger().Debugf("gpio: claimed %s%d as %v", port, index, mode)

	return &pinCore{registry: r, id: id}, true
}

// ClaimDisabled claims a pin and disables it.
func (r *Registry) ClaimDisabled(port string, index int) (DisabledPin, bool) {
	core, ok := r.claim(port, index, ModeDisabled, 0)
	if !ok {
		return DisabledPin{}, false
	}
	return DisabledPin{handle{core, core.generation}}, true
}

func (r *Registry) ClaimAsInput(port string, index int) (InputPin, bool) {
	core, ok := r.claim(port, index, ModeInput, 0)
	if !ok {
		return InputPin{}, false
	}
	return InputPin{handle{core, core.generation}}, true
}

func (r *Registry) ClaimAsOutput(port string, index int) (OutputPin, bool) {
	core, ok := r.claim(port, index, ModeOutput, 0)
	if !ok {
		return OutputPin{}, false
	}
	return OutputPin{handle{core, core.generation}}, true
}

// ClaimWithAlternateFunction claims a pin and routes it to peripheral
// function af.
func (r *Registry) ClaimWithAlternateFunction(af uint8, port string, index int) (AlternatePin, bool) {
	core, ok := r.claim(port, index, ModeAlternate, af)
	if !ok {
		return AlternatePin{}, false
	}
	return AlternatePin{handle{core, core.generation}, af}, true
}
