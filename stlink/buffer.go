// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"bytes"
	"encoding/binary"
)

type buffer struct {
	bytes.Buffer
}

func newBuffer(initSize int) *buffer {
	b := &buffer{}

	b.Grow(initSize)

	return b
}

func (buf *buffer) writeUint32LE(value uint32) {
	buf.Write(binary.LittleEndian.AppendUint32(nil, value))
}

func (buf *buffer) writeUint16LE(value uint16) {
	buf.Write(binary.LittleEndian.AppendUint16(nil, value))
}

// uint16At and uint32At read little endian values and yield zero when
// the response was shorter than expected.
func uint16At(data []byte, offset int) uint16 {
	if len(data) < offset+2 {
		return 0
	}

	return binary.LittleEndian.Uint16(data[offset:])
}

func uint32At(data []byte, offset int) uint32 {
	if len(data) < offset+4 {
		return 0
	}

	return binary.LittleEndian.Uint32(data[offset:])
}
