// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gpio

import "fmt"

// pinCore is shared by every handle ever issued for one pin. Only the
// handle whose generation matches is usable.
type pinCore struct {
	registry   *Registry
	id         PinID
	generation int
}

type handle struct {
	core       *pinCore
	generation int
}

func (h handle) valid() error {
	if h.core == nil || h.core.generation != h.generation {
		return ErrPinMoved
	}
	return nil
}

// ID returns the pin's position in the port table.
func (h handle) ID() PinID {
	if h.core == nil {
		return PinID{}
	}
	return h.core.id
}

func (h handle) String() string {
	if h.core == nil {
		return "pin(nil)"
	}
	return fmt.Sprintf("%s%d", h.core.registry.ports[h.core.id.Port].Name, h.core.id.Index)
}

// transition consumes h and programs the new mode.
func (h handle) transition(mode Mode, function uint8) (handle, error) {
	if err := h.valid(); err != nil {
		return handle{}, err
	}

	if err := h.core.registry.driver.SetMode(h.core.id, mode, function); err != nil {
		return handle{}, err
	}

	h.core.generation++
	return handle{h.core, h.core.generation}, nil
}

func (h handle) asDisabled() (DisabledPin, error) {
	next, err := h.transition(ModeDisabled, 0)
	return DisabledPin{next}, err
}

func (h handle) asInput() (InputPin, error) {
	next, err := h.transition(ModeInput, 0)
	return InputPin{next}, err
}

func (h handle) asOutput() (OutputPin, error) {
	next, err := h.transition(ModeOutput, 0)
	return OutputPin{next}, err
}

func (h handle) asAlternateFunction(af uint8) (AlternatePin, error) {
	next, err := h.transition(ModeAlternate, af)
	return AlternatePin{next, af}, err
}

// DisabledPin is a claimed pin that is neither driven nor sampled.
type DisabledPin struct {
	handle
}

func (p DisabledPin) AsInput() (InputPin, error)   { return p.asInput() }
func (p DisabledPin) AsOutput() (OutputPin, error) { return p.asOutput() }

func (p DisabledPin) AsAlternateFunction(af uint8) (AlternatePin, error) {
	return p.asAlternateFunction(af)
}

// InputPin samples its pin.
type InputPin struct {
	handle
}

func (p InputPin) IsHigh() (bool, error) {
	if err := p.valid(); err != nil {
		return false, err
	}
	return p.core.registry.driver.Read(p.core.id)
}

func (p InputPin) IsLow() (bool, error) {
	high, err := p.IsHigh()
	return !high, err
}

func (p InputPin) AsOutput() (OutputPin, error)     { return p.asOutput() }
func (p InputPin) AsDisabled() (DisabledPin, error) { return p.asDisabled() }

func (p InputPin) AsAlternateFunction(af uint8) (AlternatePin, error) {
	return p.asAlternateFunction(af)
}

// OutputPin drives its pin.
type OutputPin struct {
	handle
}

func (p OutputPin) Set(high bool) error {
	if err := p.valid(); err != nil {
		return err
	}
	return p.core.registry.driver.Write(p.core.id, high)
}

func (p OutputPin) SetHigh() error { return p.Set(true) }
func (p OutputPin) SetLow() error  { return p.Set(false) }

// IsSetHigh reads back the pad level.
func (p OutputPin) IsSetHigh() (bool, error) {
	if err := p.valid(); err != nil {
		return false, err
	}
	return p.core.registry.driver.Read(p.core.id)
}

func (p OutputPin) Toggle() error {
	high, err := p.IsSetHigh()
	if err != nil {
		return err
	}
	return p.Set(!high)
}

func (p OutputPin) AsInput() (InputPin, error)       { return p.asInput() }
func (p OutputPin) AsDisabled() (DisabledPin, error) { return p.asDisabled() }

func (p OutputPin) AsAlternateFunction(af uint8) (AlternatePin, error) {
	return p.asAlternateFunction(af)
}

// AlternatePin is routed to an on-chip peripheral.
type AlternatePin struct {
	handle
	function uint8
}

// Function is the alternate function index the pin is routed to.
func (p AlternatePin) Function() uint8 {
	return p.function
}

func (p AlternatePin) AsInput() (InputPin, error)       { return p.asInput() }
func (p AlternatePin) AsOutput() (OutputPin, error)     { return p.asOutput() }
func (p AlternatePin) AsDisabled() (DisabledPin, error) { return p.asDisabled() }
