// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package efm32gg11b

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/nb"
	"github.com/bbnote/gohal/regs/regstest"
)

// simMSC models the memory system controller on top of a register sim.
type simMSC struct {
	*regstest.Sim
	memory []byte
	busy   int
	erases int
}

func newSimMSC() *simMSC {
	s := &simMSC{Sim: regstest.NewSim(), memory: make([]byte, Geometry.Size())}
	for i := range s.memory {
		s.memory[i] = 0xff
	}
	s.AddMemory(0, s.memory)

	s.OnRead(mscStatus, func(uint32) uint32 {
		status := uint32(statusWDataReady)
		if s.busy > 0 {
			s.busy--
			status |= statusBusy
		}
		if s.Peek(mscLock) != unlockCode {
			status |= statusLocked
		}
		if int(s.Peek(mscAddrB)) >= len(s.memory) {
			status |= statusInvAddr
		}
		return status
	})

	s.OnWrite(mscWriteCmd, func(_, cmd uint32) uint32 {
		addr := int(s.Peek(mscAddrB))

		switch {
		case cmd&writeCmdErasePage != 0:
			page := addr / Geometry.PageSize * Geometry.PageSize
			s.fill(page, page+Geometry.PageSize)
			s.erases++
			s.busy = 2
		case cmd&writeCmdWriteOnce != 0:
			word := make([]byte, 4)
			binary.LittleEndian.PutUint32(word, s.Peek(mscWData))
			for i, b := range word {
				s.memory[addr+i] &= b
			}
			s.Poke(mscAddrB, uint32(addr+4))
			s.busy = 1
		case cmd&(writeCmdEraseMain0|writeCmdEraseMain1) != 0 && s.Peek(mscMassLock) == massEraseCode:
			half := len(s.memory) / 2
			if cmd&writeCmdEraseMain0 != 0 {
				s.fill(0, half)
			} else {
				s.fill(half, len(s.memory))
			}
			s.busy = 3
		}
		return cmd
	})
	return s
}

func (s *simMSC) fill(from, to int) {
	for i := from; i < to; i++ {
		s.memory[i] = 0xff
	}
}

func TestNewFlashUnlocksController(t *testing.T) {
	sim := newSimMSC()
	f, err := NewFlash(sim)
	require.NoError(t, err)

	assert.Equal(t, []uint32{unlockCode}, sim.WritesTo(mscLock))
	assert.Equal(t, uint32(writeCtrlWren), sim.Peek(mscWriteCtrl))
	assert.Equal(t, "efm32gg11b flash (Internal)", f.Label())

	start, end := f.Range()
	assert.Equal(t, flash.Address(0), start)
	assert.Equal(t, flash.Address(2*1024*1024), end)

	require.NoError(t, f.Close())
	assert.Equal(t, uint32(0), sim.Peek(mscLock))
	assert.Equal(t, uint32(0), sim.Peek(mscWriteCtrl))
}

func TestWriteAcrossPages(t *testing.T) {
	sim := newSimMSC()
	f, err := NewFlash(sim)
	require.NoError(t, err)

	before := bytes.Repeat([]byte{0x11}, 0x40)
	require.NoError(t, nb.Block(func() error { return f.Write(0xfe0, before) }))

	update := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, nb.Block(func() error { return f.Write(0xffc, update) }))

	got := make([]byte, 0x40)
	require.NoError(t, f.Read(0xfe0, got))

	want := bytes.Clone(before)
	copy(want[0x1c:], update)
	assert.Equal(t, want, got)
	assert.Equal(t, 4, sim.erases)
}

func TestAccessValidation(t *testing.T) {
	f, err := NewFlash(newSimMSC())
	require.NoError(t, err)

	assert.ErrorIs(t, f.Write(0x2, []byte{1, 2, 3, 4}), flash.ErrMisalignedAccess)
	assert.ErrorIs(t, f.Write(0x4, []byte{1, 2}), flash.ErrMisalignedAccess)

	_, end := f.Range()
	assert.ErrorIs(t, f.Read(end-2, make([]byte, 4)), flash.ErrMemoryNotReachable)
	assert.ErrorIs(t, f.Write(end, []byte{1, 2, 3, 4}), flash.ErrMemoryNotReachable)
}

func TestBusyControllerYields(t *testing.T) {
	sim := newSimMSC()
	f, err := NewFlash(sim)
	require.NoError(t, err)

	sim.busy = 1
	assert.ErrorIs(t, f.Write(0, []byte{0, 0, 0, 0}), flash.ErrWouldBlock)
	sim.busy = 1
	assert.ErrorIs(t, f.Erase(), flash.ErrWouldBlock)
	assert.Empty(t, sim.WritesTo(mscWriteCmd))
}

func TestLockedControllerRefusesWrites(t *testing.T) {
	sim := newSimMSC()
	f, err := NewFlash(sim)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = f.Write(0x100, []byte{0, 0, 0, 0})
	assert.ErrorIs(t, err, flash.ErrMemoryIsLocked)
	assert.Equal(t, flash.KindHardware, flash.Kind(err))
}

func TestMassErase(t *testing.T) {
	sim := newSimMSC()
	f, err := NewFlash(sim)
	require.NoError(t, err)

	require.NoError(t, f.Write(0x1000, make([]byte, 16)))
	require.NoError(t, f.Write(0x10_0000+0x1000, make([]byte, 16)))

	require.NoError(t, f.Erase())
	assert.Equal(t, []uint32{massEraseCode, 0}, sim.WritesTo(mscMassLock))
	assert.Equal(t, bytes.Repeat([]byte{0xff}, len(sim.memory)), sim.memory)
}

func TestGpioModes(t *testing.T) {
	sim := regstest.NewSim()
	registry := NewGpio(sim)

	out, ok := registry.ClaimAsOutput("A", 3)
	require.True(t, ok)
	assert.Equal(t, uint32(0x4000), sim.Peek(portRegister(0, portModeL)))

	_, ok = registry.ClaimAsInput("B", 9)
	require.True(t, ok)
	assert.Equal(t, uint32(0x10), sim.Peek(portRegister(1, portModeH)))

	_, ok = registry.ClaimWithAlternateFunction(8, "L", 15)
	require.True(t, ok)
	assert.Equal(t, uint32(0x8000_0000), sim.Peek(portRegister(11, portModeH)))

	_, ok = registry.ClaimAsInput("M", 0)
	assert.False(t, ok)

	require.NoError(t, out.SetHigh())
	assert.Equal(t, uint32(1<<3), sim.Peek(portRegister(0, portDout)))
	require.NoError(t, out.SetLow())
	assert.Equal(t, uint32(0), sim.Peek(portRegister(0, portDout)))

	in, err := out.AsInput()
	require.NoError(t, err)
	sim.Poke(portRegister(0, portDin), 1<<3)
	high, err := in.IsHigh()
	require.NoError(t, err)
	assert.True(t, high)
	assert.Equal(t, uint32(0x1000), sim.Peek(portRegister(0, portModeL)))

	_, ok = registry.ClaimWithAlternateFunction(0x10, "C", 0)
	assert.False(t, ok)
}
