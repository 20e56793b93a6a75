// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package regs gives drivers access to memory mapped peripheral registers,
// either directly on the target or remotely through a debug probe.
package regs

import (
	"errors"
	"fmt"
)

// Bus reads and writes 32 bit registers and plain memory of a target.
type Bus interface {
	Read32(address uint32) (uint32, error)
	Write32(address uint32, value uint32) error
	ReadMem(address uint32, buffer []byte) error
	WriteMem(address uint32, data []byte) error
}

var ErrPollExhausted = errors.New("register did not reach the expected value")

// Modify clears then sets bits of the register at address.
func Modify(bus Bus, address uint32, clear, set uint32) error {
	v, err := bus.Read32(address)

	if err != nil {
		return err
	}

	return bus.Write32(address, (v&^clear)|set)
}

// Set sets mask in the register at address.
func Set(bus Bus, address, mask uint32) error {
	return Modify(bus, address, 0, mask)
}

// Clear clears mask in the register at address.
func Clear(bus Bus, address, mask uint32) error {
	return Modify(bus, address, mask, 0)
}

// IsSet reports whether any bit of mask is set in the register at address.
func IsSet(bus Bus, address, mask uint32) (bool, error) {
	v, err := bus.Read32(address)
	return v&mask != 0, err
}

// WaitFor polls the register at address until value&mask == want, giving
// up after attempts reads.
func WaitFor(bus Bus, address, mask, want uint32, attempts int) error {
	for i := 0; i < attempts; i++ {
		v, err := bus.Read32(address)

		if err != nil {
			return err
		}
		if v&mask == want {
			return nil
		}
	}

	return fmt.Errorf("%w: 0x%08x & 0x%08x != 0x%08x", ErrPollExhausted, address, mask, want)
}

// Field is a bit field inside a register.
type Field struct {
	Shift uint
	Width uint
}

func (f Field) Mask() uint32 {
	return ((1 << f.Width) - 1) << f.Shift
}

func (f Field) Get(v uint32) uint32 {
	return (v & f.Mask()) >> f.Shift
}

// Put returns v with the field replaced by x.
func (f Field) Put(v, x uint32) uint32 {
	return (v &^ f.Mask()) | ((x << f.Shift) & f.Mask())
}
