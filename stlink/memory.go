// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package stlink

import (
	"encoding/binary"
	"fmt"
)

func (h *Probe) usbReadMem(command byte, addr uint32, buffer []byte) error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(command)
	ctx.cmdBuffer.writeUint32LE(addr)
	ctx.cmdBuffer.writeUint16LE(uint16(len(buffer)))

	readLen := uint32(len(buffer))

	// a single byte read still answers with two bytes
	if readLen == 1 {
		readLen++
	}

	if err := h.usbTransferNoErrCheck(ctx, readLen); err != nil {
		return err
	}

	copy(buffer, ctx.dataBytes())

	return h.usbGetReadWriteStatus()
}

func (h *Probe) usbWriteMem(command byte, addr uint32, data []byte) error {
	ctx := h.initTransfer(transferOutgoing)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(command)
	ctx.cmdBuffer.writeUint32LE(addr)
	ctx.cmdBuffer.writeUint16LE(uint16(len(data)))
	ctx.dataBuffer.Write(data)

	if err := h.usbTransferNoErrCheck(ctx, uint32(len(data))); err != nil {
		return err
	}

	return h.usbGetReadWriteStatus()
}

func (h *Probe) maxReadWrite8() int {
	if h.version.hasFlag(flagHasRw8Bytes512) {
		return v3MaxReadWrite8
	}

	return maxReadWrite8
}

// maxBlockSize keeps a 32 bit transfer inside one TAR auto increment window.
func maxBlockSize(tarAutoIncrBlock uint32, addr uint32) int {
	maxTarBlock := tarAutoIncrBlock - ((tarAutoIncrBlock - 1) & addr)

	if maxTarBlock == 0 {
		maxTarBlock = 4
	}

	return int(min(maxTarBlock, dataBufferSize))
}

// chunk decides how many bytes starting at addr go into the next transfer
// and whether it may use 32 bit accesses.
func (h *Probe) chunk(addr uint32, remaining int) (int, bool) {
	if misalignment := int(addr % 4); misalignment != 0 || remaining < 4 {
		n := remaining

		if misalignment != 0 {
			n = min(n, 4-misalignment)
		}

		return min(n, h.maxReadWrite8()), false
	}

	return min(remaining&^3, maxBlockSize(h.maxMemPacket, addr)), true
}

// ReadMem fills buffer with target memory starting at address. Unaligned
// head and tail bytes use 8 bit accesses, the rest 32 bit accesses.
func (h *Probe) ReadMem(address uint32, buffer []byte) error {
	for len(buffer) > 0 {
		n, word := h.chunk(address, len(buffer))
		part := buffer[:n]

		err := h.retryOnWait(func() error {
			if word {
				return h.usbReadMem(debugReadMem32Bit, address, part)
			}
			return h.usbReadMem(debugReadMem8Bit, address, part)
		})

		if err != nil {
			return fmt.Errorf("read of %d bytes at 0x%08x: %w", n, address, err)
		}

		buffer = buffer[n:]
		address += uint32(n)
	}

	return nil
}

// WriteMem writes data to target memory starting at address.
func (h *Probe) WriteMem(address uint32, data []byte) error {
	for len(data) > 0 {
		n, word := h.chunk(address, len(data))
		part := data[:n]

		err := h.retryOnWait(func() error {
			if word {
				return h.usbWriteMem(debugWriteMem32Bit, address, part)
			}
			return h.usbWriteMem(debugWriteMem8Bit, address, part)
		})

		if err != nil {
			return fmt.Errorf("write of %d bytes at 0x%08x: %w", n, address, err)
		}

		data = data[n:]
		address += uint32(n)
	}

	return nil
}

// Read32 reads one register of the target.
func (h *Probe) Read32(address uint32) (uint32, error) {
	var word [4]byte

	if address%4 != 0 {
		return 0, newUsbError(fmt.Sprintf("unaligned register access at 0x%08x", address), ErrorTargetUnalignedAccess)
	}

	if err := h.ReadMem(address, word[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(word[:]), nil
}

// Write32 writes one register of the target.
func (h *Probe) Write32(address uint32, value uint32) error {
	if address%4 != 0 {
		return newUsbError(fmt.Sprintf("unaligned register access at 0x%08x", address), ErrorTargetUnalignedAccess)
	}

	return h.WriteMem(address, binary.LittleEndian.AppendUint32(nil, value))
}
