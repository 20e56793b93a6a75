// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

// Package stlink talks to ST-Link/V2 and ST-Link/V3 debug probes over USB
// and exposes the memory of the attached target through SWD.
package stlink

import (
	"errors"
	"fmt"
	"time"

	"github.com/bbnote/gohal"
	"github.com/bbnote/gohal/regs"
	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
)

const (
	AllVids gousb.ID = 0xffff
	AllPids gousb.ID = 0xffff

	DefaultSpeedKHz = 1800
)

var _ regs.Bus = (*Probe)(nil)

type Config struct {
	vid               gousb.ID
	pid               gousb.ID
	serial            string
	speedKHz          uint32
	connectUnderReset bool
}

func NewConfig(vid gousb.ID, pid gousb.ID, serial string, speedKHz uint32, connectUnderReset bool) *Config {
	if speedKHz == 0 {
		speedKHz = DefaultSpeedKHz
	}

	return &Config{
		vid:               vid,
		pid:               pid,
		serial:            serial,
		speedKHz:          speedKHz,
		connectUnderReset: connectUnderReset,
	}
}

// Probe is an opened debug probe in SWD mode.
type Probe struct {
	link    link
	version Version
	vid     gousb.ID
	pid     gousb.ID
	serial  string
	mode    Mode

	speedKHz     uint32
	maxMemPacket uint32
	openedAps    bitmap.Bitmap

	sleep func(time.Duration)
}

// Open finds the probe described by config, switches it to SWD and
// prepares memory access to the target.
func Open(config *Config) (*Probe, error) {
	l, err := openUsbLink(config)

	if err != nil {
		return nil, err
	}

	serial, _ := l.device.SerialNumber()

	h, err := newProbe(l, serial, config)

	if err != nil {
		l.close()
		return nil, err
	}

	h.vid, h.pid = l.device.Desc.Vendor, l.device.Desc.Product

	return h, nil
}

func newProbe(l link, serial string, config *Config) (*Probe, error) {
	h := &Probe{
		link:         l,
		serial:       serial,
		maxMemPacket: 1 << 10,
		openedAps:    bitmap.New(accessPortMaximum + 1),
		sleep:        time.Sleep,
	}

	if err := h.usbParseVersion(); err != nil {
		return nil, err
	}

	if h.version.api == jTagApiV1 {
		return nil, errors.New("swd not supported by jtag api v1")
	}

	if err := h.usbInitMode(config.connectUnderReset, config.speedKHz); err != nil {
		return nil, err
	}

	if err := h.openAccessPort(0); err != nil {
		return nil, err
	}

	if cpuid, err := h.Read32(cpuIdBaseRegister); err == nil {
		// Cortex-M3/M4 have a 4096 byte auto increment range
		if part := (cpuid >> 4) & 0xf; part == 4 || part == 3 {
			h.maxMemPacket = 1 << 12
		}
	}

	gohal.Logger().Debugf("using TAR auto increment: %d", h.maxMemPacket)

	return h, nil
}

func (h *Probe) Close() error {
	gohal.Logger().Debugf("close ST-Link device [%s:%s]", h.vid, h.pid)

	if err := h.usbLeaveMode(h.mode); err != nil {
		gohal.Logger().Debug("leaving debug mode: ", err)
	}

	return h.link.close()
}

func (h *Probe) Version() Version {
	return h.version
}

func (h *Probe) Serial() string {
	return h.serial
}

// SpeedKHz returns the interface clock in use.
func (h *Probe) SpeedKHz() uint32 {
	return h.speedKHz
}

func (h *Probe) TargetVoltage() (float32, error) {
	if !h.version.hasFlag(flagHasTargetVolt) {
		return -1.0, errors.New("device does not support voltage measurement")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetTargetVoltage)

	if err := h.usbTransferNoErrCheck(ctx, 8); err != nil {
		return -1.0, err
	}

	reference := uint32At(ctx.dataBytes(), 0)
	measured := uint32At(ctx.dataBytes(), 4)

	var targetVoltage float32

	if reference > 0 {
		targetVoltage = 2 * (float32(measured) * (1.2 / float32(reference)))
	}

	gohal.Logger().Debugf("target voltage: %.2fV", targetVoltage)

	return targetVoltage, nil
}

// IdCode reads the debug port identification of the target.
func (h *Probe) IdCode() (uint32, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2ReadIdCodes)

	if err := h.usbTransferErrCheck(ctx, 12); err != nil {
		return 0, fmt.Errorf("could not read id code: %w", err)
	}

	return uint32At(ctx.dataBytes(), 4), nil
}
