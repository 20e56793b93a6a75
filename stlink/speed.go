// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"errors"
	"math"

	"github.com/bbnote/gohal"
)

type speedMap struct {
	speed   uint32
	divisor int
}

var swdKHzToSpeedMap = [...]speedMap{
	{4000, 0},
	{1800, 1}, // default
	{1200, 2},
	{950, 3},
	{480, 7},
	{240, 15},
	{125, 31},
	{100, 40},
	{50, 79},
	{25, 158},
	{15, 265},
	{5, 798},
}

// matchSpeedMap returns the index of the fastest speed not above khz, or
// the slowest available speed if every entry is faster. Entries of zero
// are unused. exact reports a perfect hit.
func matchSpeedMap(smap []speedMap, khz uint32) (index int, exact bool, err error) {
	index = -1
	lastValid := -1
	diff := uint32(math.MaxUint32)

	for i, s := range smap {
		if s.speed == 0 {
			continue
		}

		if lastValid == -1 || s.speed < smap[lastValid].speed {
			lastValid = i
		}

		if s.speed == khz {
			return i, true, nil
		}

		if s.speed < khz && khz-s.speed < diff {
			diff = khz - s.speed
			index = i
		}
	}

	if lastValid == -1 {
		return -1, false, errors.New("no usable interface speed")
	}

	if index == -1 {
		index = lastValid
	}

	return index, false, nil
}

// SetSpeed selects the interface clock closest to khz and returns the
// speed actually used.
func (h *Probe) SetSpeed(khz uint32) (uint32, error) {
	if h.version.api == jTagApiV3 {
		return h.setSpeedV3(khz)
	}

	if !h.version.hasFlag(flagHasSwdSetFreq) {
		return khz, errors.New("cannot change speed on old firmware")
	}

	index, exact, err := matchSpeedMap(swdKHzToSpeedMap[:], khz)

	if err != nil {
		return khz, err
	}

	if !exact {
		gohal.Logger().Debugf("unable to match requested speed %d kHz, using %d kHz", khz, swdKHzToSpeedMap[index].speed)
	}

	if err := h.usbSetSwdClk(uint16(swdKHzToSpeedMap[index].divisor)); err != nil {
		return khz, err
	}

	h.speedKHz = swdKHzToSpeedMap[index].speed

	return h.speedKHz, nil
}

func (h *Probe) setSpeedV3(khz uint32) (uint32, error) {
	smap, err := h.usbGetComFreq()

	if err != nil {
		return khz, err
	}

	index, _, err := matchSpeedMap(smap, khz)

	if err != nil {
		return khz, err
	}

	if err := h.usbSetComFreq(smap[index].speed); err != nil {
		return khz, err
	}

	h.speedKHz = smap[index].speed

	return h.speedKHz, nil
}

func (h *Probe) usbSetSwdClk(divisor uint16) error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2SwdSetFreq)
	ctx.cmdBuffer.writeUint16LE(divisor)

	return h.usbCmdAllowRetry(ctx, 2)
}

func (h *Probe) usbGetComFreq() ([]speedMap, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV3GetComFreq)
	ctx.cmdBuffer.WriteByte(0) // swd

	if err := h.usbTransferErrCheck(ctx, 52); err != nil {
		return nil, err
	}

	data := ctx.dataBytes()
	size := min(int(data[8]), comFreqNb)
	smap := make([]speedMap, size)

	for i := range smap {
		smap[i] = speedMap{speed: uint32At(data, 12+4*i), divisor: i}
	}

	return smap, nil
}

func (h *Probe) usbSetComFreq(frequency uint32) error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV3SetComFreq)
	ctx.cmdBuffer.WriteByte(0) // swd
	ctx.cmdBuffer.WriteByte(0)
	ctx.cmdBuffer.writeUint32LE(frequency)

	return h.usbTransferErrCheck(ctx, 8)
}
