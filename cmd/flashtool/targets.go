// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bbnote/gohal/drivers/efm32gg11b"
	"github.com/bbnote/gohal/drivers/max3263"
	"github.com/bbnote/gohal/drivers/stm32f4"
	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/regs"
)

// target describes a supported microcontroller family.
type target struct {
	ramStart uint32
	ramSize  uint32

	// open returns the internal flash and a function releasing it
	open func(bus regs.Bus) (flash.ReadWrite, func() error, error)
}

var targets = map[string]target{
	"stm32f4": {
		ramStart: 0x2000_0000,
		ramSize:  128 * 1024,
		open: func(bus regs.Bus) (flash.ReadWrite, func() error, error) {
			f, err := stm32f4.NewFlash(bus)
			if err != nil {
				return nil, nil, err
			}
			return f, f.Lock, nil
		},
	},
	"efm32gg11b": {
		ramStart: 0x2000_0000,
		ramSize:  512 * 1024,
		open: func(bus regs.Bus) (flash.ReadWrite, func() error, error) {
			f, err := efm32gg11b.NewFlash(bus)
			if err != nil {
				return nil, nil, err
			}
			return f, f.Close, nil
		},
	},
	"max3263": {
		ramStart: 0x2000_0000,
		ramSize:  512 * 1024,
		open: func(bus regs.Bus) (flash.ReadWrite, func() error, error) {
			f, err := max3263.NewFlash(bus)
			if err != nil {
				return nil, nil, err
			}
			return f, func() error { return nil }, nil
		},
	},
}

func targetNames() []string {
	return slices.Sorted(maps.Keys(targets))
}

func lookupTarget(name string) (target, error) {
	t, ok := targets[strings.ToLower(name)]

	if !ok {
		return target{}, fmt.Errorf("unknown target %q, supported: %s", name, strings.Join(targetNames(), ", "))
	}

	return t, nil
}
