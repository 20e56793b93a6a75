// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package qspi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	sent     [][]byte
	response []byte
	fail     error
}

func (b *fakeBus) Tx(w, r []byte) error {
	if b.fail != nil {
		return b.fail
	}
	if w != nil {
		b.sent = append(b.sent, bytes.Clone(w))
	}
	copy(r, b.response)
	return nil
}

func (b *fakeBus) Transfer(w byte) (byte, error) {
	b.sent = append(b.sent, []byte{w})
	return 0, b.fail
}

type fakeSelect struct {
	levels []bool
}

func (s *fakeSelect) Set(high bool) error {
	s.levels = append(s.levels, high)
	return nil
}

func TestCommandBuilder(t *testing.T) {
	buf := make([]byte, 4)
	c := NewCommand().WithInstruction(0x0b).WithAddress(0x123456).WithDummyCycles(8).WithReadData(buf)

	ins, ok := c.Instruction()
	assert.True(t, ok)
	assert.Equal(t, byte(0x0b), ins)

	addr, ok := c.Address()
	assert.True(t, ok)
	assert.Equal(t, uint32(0x123456), addr)

	assert.Equal(t, ReadData, c.Direction())
	assert.Equal(t, uint8(8), c.DummyCycles())
	assert.Equal(t, "qspi ins=0x0b addr=0x123456 read=4 dummy=8", c.String())

	_, ok = NewCommand().Address()
	assert.False(t, ok)
}

func TestSPIBridgeFramesCommands(t *testing.T) {
	bus := &fakeBus{response: []byte{0x20}}
	cs := &fakeSelect{}

	bridge, err := NewSPIBridge(bus, cs)
	require.NoError(t, err)

	id := make([]byte, 1)
	require.NoError(t, bridge.ExecuteCommand(NewCommand().WithInstruction(0x9e).WithReadData(id)))
	assert.Equal(t, byte(0x20), id[0])
	assert.Equal(t, [][]byte{{0x9e}}, bus.sent)

	bus.sent = nil
	data := []byte{1, 2, 3}
	require.NoError(t, bridge.ExecuteCommand(NewCommand().WithInstruction(0x02).WithAddress(0x010203).WithWriteData(data)))
	assert.Equal(t, [][]byte{{0x02, 0x01, 0x02, 0x03}, data}, bus.sent)

	bus.sent = nil
	require.NoError(t, bridge.ExecuteCommand(NewCommand().WithInstruction(0x0b).WithAddress(0).WithDummyCycles(8).WithReadData(make([]byte, 2))))
	assert.Equal(t, [][]byte{{0x0b, 0, 0, 0, 0}}, bus.sent)

	assert.Equal(t, []bool{true, false, true, false, true, false, true}, cs.levels)
}

func TestSPIBridgeErrors(t *testing.T) {
	bus := &fakeBus{}
	cs := &fakeSelect{}
	bridge, err := NewSPIBridge(bus, cs)
	require.NoError(t, err)

	assert.Error(t, bridge.ExecuteCommand(NewCommand().WithInstruction(0x6b).WithDummyCycles(4)))

	bus.fail = errors.New("bus fault")
	assert.ErrorIs(t, bridge.ExecuteCommand(NewCommand().WithInstruction(0x06)), bus.fail)
	assert.Equal(t, true, cs.levels[len(cs.levels)-1])

	_, err = NewSPIBridge(nil, cs)
	assert.Error(t, err)
}
