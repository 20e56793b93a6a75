// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"encoding/binary"
	"fmt"

	"github.com/bbnote/gohal"
	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
)

// Version describes the probe hardware and its firmware.
type Version struct {
	Stlink int
	Jtag   int
	Swim   int
	Msd    int
	Bridge int

	api   apiVersion
	flags bitmap.Bitmap
}

func (v Version) hasFlag(flag int) bool {
	if v.flags == nil {
		return false
	}

	return v.flags.Get(flag)
}

func (v Version) String() string {
	s := fmt.Sprintf("V%d", v.Stlink)

	if v.Jtag > 0 || v.Msd != 0 {
		s += fmt.Sprintf("J%d", v.Jtag)
	}

	if v.Msd > 0 {
		s += fmt.Sprintf("M%d", v.Msd)
	}

	if v.Swim > 0 {
		s += fmt.Sprintf("S%d", v.Swim)
	}

	if v.Bridge > 0 {
		s += fmt.Sprintf("B%d", v.Bridge)
	}

	return s
}

// decodeVersion parses the six byte answer of cmdGetVersion. needsEx is
// set for V3 probes, whose real version is only reported by
// debugApiV3GetVersionEx.
func decodeVersion(raw []byte) (v Version, vid, pid gousb.ID, needsEx bool) {
	version := binary.BigEndian.Uint16(raw)

	v.Stlink = int((version >> 12) & 0x0f)
	x := int((version >> 6) & 0x3f)
	y := int(version & 0x3f)

	vid = gousb.ID(uint16At(raw, 2))
	pid = gousb.ID(uint16At(raw, 4))

	switch pid {
	case stLinkV21Pid, stLinkV21NoMsdPid:
		if (x <= 22 && y == 7) || (x >= 25 && y >= 7 && y <= 12) {
			v.Msd = x
			v.Swim = y
		} else {
			v.Jtag = x
			v.Msd = y
		}

	default:
		v.Jtag = x
		v.Swim = y
	}

	return v, vid, pid, v.Stlink == 3 && x == 0 && y == 0
}

func decodeVersionEx(raw []byte) (v Version, vid, pid gousb.ID) {
	v.Stlink = int(raw[0])
	v.Swim = int(raw[1])
	v.Jtag = int(raw[2])
	v.Msd = int(raw[3])
	v.Bridge = int(raw[4])

	return v, gousb.ID(uint16At(raw, 8)), gousb.ID(uint16At(raw, 10))
}

// applyFeatures derives the api version and feature flags from the
// firmware version.
func (v *Version) applyFeatures() {
	flags := bitmap.New(flagCount)

	switch v.Stlink {
	case 1:
		// ST-LINK/V1 from J11 switch to api-v2 (and support SWD)
		if v.Jtag >= 11 {
			v.api = jTagApiV2
		} else {
			v.api = jTagApiV1
		}

	case 2:
		v.api = jTagApiV2

		// trace and target voltage
		if v.Jtag >= 13 {
			flags.Set(flagHasTrace, true)
		}

		if v.Jtag >= 15 {
			flags.Set(flagHasGetLastRwStatus2, true)
		}

		if v.Jtag >= 22 {
			flags.Set(flagHasSwdSetFreq, true)
		}

		if v.Jtag >= 24 {
			flags.Set(flagHasJtagSetFreq, true)
			flags.Set(flagHasDapReg, true)
		}

		if v.Jtag >= 24 && v.Jtag < 32 {
			flags.Set(flagQuirkJtagDpRead, true)
		}

		if v.Jtag >= 26 {
			flags.Set(flagHasMem16Bit, true)
		}

		if v.Jtag >= 28 {
			flags.Set(flagHasApInit, true)
		}

		if v.Jtag >= 29 {
			flags.Set(flagFixCloseAp, true)
		}

		if v.Jtag >= 32 {
			flags.Set(flagHasDpBankSel, true)
		}

	case 3:
		// a superset of ST-LINK/V2
		v.api = jTagApiV3

		flags.Set(flagHasTrace, true)
		flags.Set(flagHasGetLastRwStatus2, true)
		flags.Set(flagHasDapReg, true)
		flags.Set(flagHasMem16Bit, true)
		flags.Set(flagHasApInit, true)
		flags.Set(flagFixCloseAp, true)

		if v.Jtag >= 2 {
			flags.Set(flagHasDpBankSel, true)
		}

		if v.Jtag >= 6 {
			flags.Set(flagHasRw8Bytes512, true)
		}
	}

	v.flags = flags
}

func (h *Probe) usbParseVersion() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetVersion)

	if err := h.usbTransferNoErrCheck(ctx, 6); err != nil {
		return err
	}

	version, vid, pid, needsEx := decodeVersion(ctx.dataBytes())

	if needsEx {
		ctxV3 := h.initTransfer(transferIncoming)

		ctxV3.cmdBuffer.WriteByte(debugApiV3GetVersionEx)

		if err := h.usbTransferNoErrCheck(ctxV3, 12); err != nil {
			return err
		}

		version, vid, pid = decodeVersionEx(ctxV3.dataBytes())
	}

	version.applyFeatures()

	h.version = version
	h.vid = vid
	h.pid = pid

	gohal.Logger().Debugf("parsed ST-Link version [%s] for [%s]", version, h.serial)

	return nil
}
