// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// based on https://github.com/phryniszak/strtt

// Package rtt reads and writes SEGGER RTT channels of a running target
// through any memory access path, typically a debug probe.
package rtt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bbnote/gohal"
)

// Memory is the part of regs.Bus the channels need.
type Memory interface {
	ReadMem(address uint32, buffer []byte) error
	WriteMem(address uint32, data []byte) error
}

const (
	controlBlockSize = 24
	channelSize      = 24
	maxChannels      = 32

	// field offsets inside a channel descriptor
	wrOffOffset = 12
	rdOffOffset = 16
)

var controlBlockId = []byte("SEGGER RTT")

var ErrNoControlBlock = errors.New("could not find SEGGER RTT control block id")

type Channel struct {
	Name   string
	Buffer uint32
	Size   uint32
	WrOff  uint32
	RdOff  uint32
	Flags  uint32
}

// Pending returns the number of bytes between the read and write offsets.
func (c Channel) Pending() uint32 {
	if c.Size == 0 {
		return 0
	}

	if c.WrOff >= c.RdOff {
		return c.WrOff - c.RdOff
	}

	return c.Size - c.RdOff + c.WrOff
}

// Rtt is a located control block on the target.
type Rtt struct {
	mem     Memory
	address uint32
	up      []Channel
	down    []Channel
}

// Find searches ram for the control block and reads the channel table.
func Find(mem Memory, ramStart uint32, ramSize uint32) (*Rtt, error) {
	ram := make([]byte, ramSize)

	gohal.Logger().Debugf("searching RTT control block in %d bytes of ram at 0x%08x", ramSize, ramStart)

	if err := mem.ReadMem(ramStart, ram); err != nil {
		return nil, err
	}

	occ := bytes.Index(ram, controlBlockId)

	if occ == -1 || occ+controlBlockSize > len(ram) {
		return nil, ErrNoControlBlock
	}

	r := &Rtt{mem: mem, address: ramStart + uint32(occ)}

	numUp := binary.LittleEndian.Uint32(ram[occ+16:])
	numDown := binary.LittleEndian.Uint32(ram[occ+20:])

	if numUp == 0 || numDown == 0 || numUp+numDown > maxChannels {
		return nil, fmt.Errorf("implausible RTT channel count %d up, %d down", numUp, numDown)
	}

	r.up = make([]Channel, numUp)
	r.down = make([]Channel, numDown)

	gohal.Logger().Infof("found RTT control block at address 0x%08x", r.address)

	if err := r.Update(true); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Rtt) Address() uint32 {
	return r.address
}

func (r *Rtt) Up() []Channel {
	return r.up
}

func (r *Rtt) Down() []Channel {
	return r.down
}

func (r *Rtt) channelAddress(index int) uint32 {
	return r.address + controlBlockSize + uint32(index)*channelSize
}

// Update refreshes the offsets of all channels.
func (r *Rtt) Update(readNames bool) error {
	total := len(r.up) + len(r.down)
	raw := make([]byte, total*channelSize)

	if err := r.mem.ReadMem(r.channelAddress(0), raw); err != nil {
		return err
	}

	for i := range total {
		desc := raw[i*channelSize:]
		channel := r.channel(i)

		channel.Buffer = binary.LittleEndian.Uint32(desc[4:])
		channel.Size = binary.LittleEndian.Uint32(desc[8:])
		channel.WrOff = binary.LittleEndian.Uint32(desc[wrOffOffset:])
		channel.RdOff = binary.LittleEndian.Uint32(desc[rdOffOffset:])
		channel.Flags = binary.LittleEndian.Uint32(desc[20:])

		if name := binary.LittleEndian.Uint32(desc); readNames && name != 0 {
			channel.Name = r.readName(name)

			gohal.Logger().Debugf("%d. channel %q, size %d, flags %d, buffer 0x%08x, rdOff %d, wrOff %d",
				i, channel.Name, channel.Size, channel.Flags, channel.Buffer, channel.RdOff, channel.WrOff)
		}
	}

	return nil
}

func (r *Rtt) channel(index int) *Channel {
	if index < len(r.up) {
		return &r.up[index]
	}

	return &r.down[index-len(r.up)]
}

func (r *Rtt) readName(address uint32) string {
	raw := make([]byte, 32)

	if err := r.mem.ReadMem(address, raw); err != nil {
		return ""
	}

	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}

	return string(raw)
}

// Read drains every up channel holding data and hands it to callback.
func (r *Rtt) Read(callback func(channel int, data []byte) error) error {
	if err := r.Update(false); err != nil {
		return err
	}

	for i := range r.up {
		channel := &r.up[i]

		if channel.Pending() == 0 {
			continue
		}

		data, err := r.drain(i, channel)

		if err != nil {
			return err
		}

		if err := callback(i, data); err != nil {
			return err
		}
	}

	return nil
}

func (r *Rtt) drain(index int, channel *Channel) ([]byte, error) {
	if channel.RdOff >= channel.Size || channel.WrOff >= channel.Size {
		return nil, fmt.Errorf("channel %d offsets out of range", index)
	}

	data := make([]byte, channel.Pending())
	head := data

	if channel.WrOff < channel.RdOff {
		head = data[:channel.Size-channel.RdOff]

		if err := r.mem.ReadMem(channel.Buffer, data[len(head):]); err != nil {
			return nil, err
		}
	}

	if err := r.mem.ReadMem(channel.Buffer+channel.RdOff, head); err != nil {
		return nil, err
	}

	channel.RdOff = channel.WrOff

	return data, r.writeOffset(index, rdOffOffset, channel.RdOff)
}

// Write puts as much of data into down channel index as fits and returns
// the number of bytes written.
func (r *Rtt) Write(index int, data []byte) (int, error) {
	if index < 0 || index >= len(r.down) {
		return 0, fmt.Errorf("no down channel %d", index)
	}

	if err := r.Update(false); err != nil {
		return 0, err
	}

	channel := &r.down[index]

	if channel.Size == 0 {
		return 0, nil
	}

	if channel.RdOff >= channel.Size || channel.WrOff >= channel.Size {
		return 0, fmt.Errorf("down channel %d offsets out of range", index)
	}

	free := channel.Size - 1 - channel.Pending()
	n := min(uint32(len(data)), free)

	for written := uint32(0); written < n; {
		part := min(n-written, channel.Size-channel.WrOff)

		if err := r.mem.WriteMem(channel.Buffer+channel.WrOff, data[written:written+part]); err != nil {
			return int(written), err
		}

		written += part
		channel.WrOff = (channel.WrOff + part) % channel.Size
	}

	return int(n), r.writeOffset(len(r.up)+index, wrOffOffset, channel.WrOff)
}

func (r *Rtt) writeOffset(index int, field uint32, value uint32) error {
	return r.mem.WriteMem(r.channelAddress(index)+field, binary.LittleEndian.AppendUint32(nil, value))
}
