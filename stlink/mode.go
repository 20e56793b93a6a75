// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"errors"
	"fmt"

	"github.com/bbnote/gohal"
)

func modeFromDevice(mode byte) Mode {
	switch mode {
	case deviceModeDfu:
		return ModeDfu
	case deviceModeDebug:
		return ModeDebugSwd
	case deviceModeSwim:
		return ModeDebugSwim
	case deviceModeMass:
		return ModeMass
	default:
		return ModeUnknown
	}
}

func (h *Probe) usbModeEnter(mode Mode) error {
	if mode != ModeDebugSwd {
		return fmt.Errorf("cannot enter %s mode", mode)
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2Enter)
	ctx.cmdBuffer.WriteByte(debugEnterSwdNoReset)

	return h.usbCmdAllowRetry(ctx, 2)
}

func (h *Probe) usbCurrentMode() (byte, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetCurrentMode)

	if err := h.usbTransferNoErrCheck(ctx, 2); err != nil {
		return 0, err
	}

	return ctx.dataBytes()[0], nil
}

func (h *Probe) usbLeaveMode(mode Mode) error {
	ctx := h.initTransfer(transferIncoming)

	switch mode {
	case ModeDebugSwd:
		ctx.cmdBuffer.WriteByte(cmdDebug)
		ctx.cmdBuffer.WriteByte(debugExit)

	case ModeDebugSwim:
		ctx.cmdBuffer.WriteByte(cmdSwim)
		ctx.cmdBuffer.WriteByte(swimExit)

	case ModeDfu:
		ctx.cmdBuffer.WriteByte(cmdDfu)
		ctx.cmdBuffer.WriteByte(dfuExit)

	case ModeMass:
		return errors.New("cannot leave mass storage mode")

	default:
		return errors.New("unknown ST-Link mode")
	}

	return h.usbTransferNoErrCheck(ctx, 0)
}

func (h *Probe) usbAssertSrst(state byte) error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2DriveNrst)
	ctx.cmdBuffer.WriteByte(state)

	return h.usbCmdAllowRetry(ctx, 2)
}

// usbInitMode leaves whatever mode the probe is in and enters SWD.
func (h *Probe) usbInitMode(connectUnderReset bool, speedKHz uint32) error {
	mode, err := h.usbCurrentMode()

	if err != nil {
		return fmt.Errorf("could not get usb mode: %w", err)
	}

	gohal.Logger().Tracef("device mode before switching: %s (0x%02x)", modeFromDevice(mode), mode)

	if current := modeFromDevice(mode); current != ModeUnknown && current != ModeMass {
		if err = h.usbLeaveMode(current); err != nil {
			gohal.Logger().Warn("error occurred while trying to leave mode: ", err)
		}
	}

	if mode, err = h.usbCurrentMode(); err != nil {
		return fmt.Errorf("could not get usb mode: %w", err)
	}

	// the probe needs target vdd for reliable debugging
	if mode != deviceModeDfu {
		if voltage, err := h.TargetVoltage(); err != nil {
			gohal.Logger().Debug(err)
		} else if voltage < 1.5 {
			gohal.Logger().Warnf("target voltage %.2fV may be too low for reliable debugging", voltage)
		}
	}

	if h.version.hasFlag(flagHasSwdSetFreq) || h.version.api == jTagApiV3 {
		if _, err := h.SetSpeed(speedKHz); err != nil {
			gohal.Logger().Warn("could not set interface speed: ", err)
		}
	}

	if connectUnderReset {
		gohal.Logger().Trace("assert reset before entering swd")

		// failure is ignored, reset is asserted again after mode enter
		h.usbAssertSrst(nrstLow)
	}

	if err = h.usbModeEnter(ModeDebugSwd); err != nil {
		return err
	}

	h.mode = ModeDebugSwd

	if connectUnderReset {
		if err = h.usbAssertSrst(nrstLow); err != nil {
			return err
		}
	}

	if mode, err = h.usbCurrentMode(); err != nil {
		return err
	}

	gohal.Logger().Tracef("device mode after mode enter: %s (0x%02x)", modeFromDevice(mode), mode)

	return nil
}
