// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package qspitest provides QSPI test doubles.
package qspitest

import (
	"bytes"

	"github.com/bbnote/gohal/qspi"
)

// CommandRecord is a command seen by MockQspi.
type CommandRecord struct {
	Instruction     byte
	HasInstruction  bool
	Address         uint32
	HasAddress      bool
	Data            []byte
	LengthRequested int
	DummyCycles     uint8
}

// Contains reports whether the record carried exactly data.
func (r CommandRecord) Contains(data []byte) bool {
	return r.Data != nil && bytes.Equal(r.Data, data)
}

// MockQspi records every command and answers reads from a queue. A read
// with nothing queued leaves the buffer untouched.
type MockQspi struct {
	Records []CommandRecord
	ToRead  [][]byte
}

var _ qspi.Indirect = (*MockQspi)(nil)

// QueueRead appends a response for the next read command.
func (m *MockQspi) QueueRead(data ...byte) {
	m.ToRead = append(m.ToRead, data)
}

// Clear forgets records and queued reads.
func (m *MockQspi) Clear() {
	m.Records = nil
	m.ToRead = nil
}

// Instructions lists the recorded instructions in order.
func (m *MockQspi) Instructions() []byte {
	ins := make([]byte, 0, len(m.Records))
	for _, r := range m.Records {
		ins = append(ins, r.Instruction)
	}
	return ins
}

func (m *MockQspi) ExecuteCommand(command *qspi.Command) error {
	record := CommandRecord{DummyCycles: command.DummyCycles()}
	record.Instruction, record.HasInstruction = command.Instruction()
	record.Address, record.HasAddress = command.Address()

	switch command.Direction() {
	case qspi.WriteData:
		record.Data = bytes.Clone(command.Data())
	case qspi.ReadData:
		record.Data = bytes.Clone(command.Data())
		record.LengthRequested = len(command.Data())
	}

	m.Records = append(m.Records, record)

	if command.Direction() == qspi.ReadData && len(m.ToRead) > 0 {
		copy(command.Data(), m.ToRead[0])
		m.ToRead = m.ToRead[1:]
	}
	return nil
}
