// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package stlink

import (
	"fmt"
	"time"

	"github.com/bbnote/gohal"
)

type transferDirection uint8

const (
	transferIncoming transferDirection = iota
	transferOutgoing
)

type transferCtx struct {
	direction  transferDirection
	cmdBuffer  *buffer
	dataBuffer *buffer
}

func (h *Probe) initTransfer(direction transferDirection) *transferCtx {
	return &transferCtx{
		direction:  direction,
		cmdBuffer:  newBuffer(cmdSizeV2),
		dataBuffer: newBuffer(0),
	}
}

func (ctx *transferCtx) dataBytes() []byte {
	return ctx.dataBuffer.Bytes()
}

// usbTransferNoErrCheck sends the command and moves size bytes of payload
// in the direction of the transfer.
func (h *Probe) usbTransferNoErrCheck(ctx *transferCtx, size uint32) error {
	if ctx.cmdBuffer.Len() > cmdSizeV2 {
		return fmt.Errorf("command of %d bytes exceeds packet size", ctx.cmdBuffer.Len())
	}

	cmd := make([]byte, cmdSizeV2)
	copy(cmd, ctx.cmdBuffer.Bytes())

	if err := h.link.write(cmd); err != nil {
		return err
	}

	if size == 0 {
		return nil
	}

	if ctx.direction == transferOutgoing {
		return h.link.write(ctx.dataBytes()[:size])
	}

	data := make([]byte, size)

	if _, err := h.link.read(data); err != nil {
		return err
	}

	ctx.dataBuffer.Reset()
	ctx.dataBuffer.Write(data)

	return nil
}

func (h *Probe) usbTransferErrCheck(ctx *transferCtx, size uint32) error {
	if err := h.usbTransferNoErrCheck(ctx, size); err != nil {
		return err
	}

	return statusError(h.mode, ctx.dataBytes()[0])
}

// usbCmdAllowRetry repeats a command as long as the probe answers with a
// wait status, backing off exponentially.
func (h *Probe) usbCmdAllowRetry(ctx *transferCtx, size uint32) error {
	return h.retryOnWait(func() error {
		return h.usbTransferErrCheck(ctx, size)
	})
}

func (h *Probe) retryOnWait(op func() error) error {
	for retries := 0; ; retries++ {
		err := op()

		if !IsWait(err) || retries >= maximumWaitRetries {
			return err
		}

		delay := time.Millisecond << retries
		gohal.Logger().Tracef("probe reported wait, retrying in %v", delay)
		h.sleep(delay)
	}
}

func (h *Probe) usbGetReadWriteStatus() error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)

	if h.version.hasFlag(flagHasGetLastRwStatus2) {
		ctx.cmdBuffer.WriteByte(debugApiV2GetLastRWStatus2)

		return h.usbTransferErrCheck(ctx, 12)
	}

	ctx.cmdBuffer.WriteByte(debugApiV2GetLastRWStatus)

	return h.usbTransferErrCheck(ctx, 2)
}
