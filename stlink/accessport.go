// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"fmt"

	"github.com/bbnote/gohal"
)

// openAccessPort initialises an access port once per probe session.
func (h *Probe) openAccessPort(apsel int) error {
	// nothing to do on old versions
	if !h.version.hasFlag(flagHasApInit) {
		return nil
	}

	if apsel < 0 || apsel > accessPortMaximum {
		return fmt.Errorf("access port %d out of range", apsel)
	}

	if h.openedAps.Get(apsel) {
		return nil
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2InitAccessPort)
	ctx.cmdBuffer.WriteByte(byte(apsel))

	if err := h.usbTransferErrCheck(ctx, 2); err != nil {
		return fmt.Errorf("could not init access port %d: %w", apsel, err)
	}

	gohal.Logger().Debugf("access port %d enabled", apsel)
	h.openedAps.Set(apsel, true)

	return nil
}
