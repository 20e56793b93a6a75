// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stm32f4

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/regs/regstest"
)

type simFlash struct {
	*regstest.Sim
	memory    []byte
	busy      int
	erased    []uint32
	keys      []uint32
	failErase bool
}

func newSimFlash() *simFlash {
	s := &simFlash{Sim: regstest.NewSim(), memory: bytes.Repeat([]byte{0x00}, Size())}
	s.AddMemory(uint32(Base), s.memory)
	s.Poke(flashCr, crLock)

	s.OnWrite(flashKeyr, func(_, value uint32) uint32 {
		s.keys = append(s.keys, value)
		n := len(s.keys)
		if n >= 2 && s.keys[n-2] == key1 && s.keys[n-1] == key2 {
			s.Poke(flashCr, s.Peek(flashCr)&^crLock)
		}
		return value
	})

	s.OnRead(flashSr, func(stored uint32) uint32 {
		if s.busy > 0 {
			s.busy--
			return stored | srBsy
		}
		return stored
	})

	s.OnWrite(flashSr, func(old, value uint32) uint32 {
		return old &^ value
	})

	s.OnWrite(flashCr, func(old, value uint32) uint32 {
		if old&crLock != 0 {
			return old
		}
		if value&crStrt == 0 {
			return value
		}

		switch {
		case s.failErase:
			s.Poke(flashSr, s.Peek(flashSr)|srPgserr)
		case value&crSer != 0:
			snb := crSnb.Get(value)
			s.erased = append(s.erased, snb)
			start := 0
			for _, size := range SectorSizes[:snb] {
				start += size
			}
			copy(s.memory[start:], bytes.Repeat([]byte{0xff}, SectorSizes[snb]))
			s.busy = 3
		case value&crMer != 0:
			copy(s.memory, bytes.Repeat([]byte{0xff}, len(s.memory)))
			s.busy = 3
		}
		return value &^ crStrt
	})
	return s
}

func TestUnlockSequence(t *testing.T) {
	sim := newSimFlash()
	f, err := NewFlash(sim)
	require.NoError(t, err)

	assert.Equal(t, []uint32{key1, key2}, sim.keys)
	assert.Zero(t, sim.Peek(flashCr)&crLock)

	require.NoError(t, f.Lock())
	assert.NotZero(t, sim.Peek(flashCr)&crLock)

	_, err = NewFlash(sim)
	require.NoError(t, err)
	assert.Len(t, sim.keys, 4)
}

func TestKeysRejected(t *testing.T) {
	sim := newSimFlash()
	sim.OnWrite(flashKeyr, func(_, v uint32) uint32 { return v })

	_, err := NewFlash(sim)
	assert.ErrorIs(t, err, flash.ErrMemoryIsLocked)
}

func TestSectorLayout(t *testing.T) {
	assert.Equal(t, 1024*1024, Size())

	f, err := NewFlash(newSimFlash())
	require.NoError(t, err)

	start, end := f.Range()
	assert.Equal(t, flash.Address(0x0800_0000), start)
	assert.Equal(t, flash.Address(0x0810_0000), end)
	assert.Equal(t, "stm32f4 flash (Internal)", f.Label())
}

func TestWriteAcrossUnevenSectors(t *testing.T) {
	sim := newSimFlash()
	f, err := NewFlash(sim)
	require.NoError(t, err)

	data := []byte("sector three and four")
	data = append(data, make([]byte, 4-len(data)%4)...)
	address := Base.Add(0x1_0000 - 8)

	require.NoError(t, f.Write(address, data))
	assert.Equal(t, []uint32{3, 4}, sim.erased)

	got := make([]byte, len(data))
	require.NoError(t, f.Read(address, got))
	assert.Equal(t, data, got)

	assert.Equal(t, make([]byte, 8), sim.memory[0xc000:0xc008], "rest of sector 3 kept")
	assert.Zero(t, sim.Peek(flashCr)&(crPg|crSer|crMer))
}

func TestSectorEraseFailure(t *testing.T) {
	sim := newSimFlash()
	f, err := NewFlash(sim)
	require.NoError(t, err)

	sim.failErase = true
	err = f.Write(Base.Add(0x2_0000), []byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, flash.ErrPageEraseFailed)
	assert.Zero(t, sim.Peek(flashSr)&srErrors)

	assert.ErrorIs(t, f.Erase(), flash.ErrMassEraseFailed)
}

func TestMassEraseAndValidation(t *testing.T) {
	sim := newSimFlash()
	f, err := NewFlash(sim)
	require.NoError(t, err)

	require.NoError(t, f.Erase())
	assert.Equal(t, bytes.Repeat([]byte{0xff}, len(sim.memory)), sim.memory)

	assert.ErrorIs(t, f.Read(Base.Add(Size()-2), make([]byte, 4)), flash.ErrAddressOutOfRange)
	assert.ErrorIs(t, f.Write(Base.Add(2), make([]byte, 4)), flash.ErrMisalignedAccess)

	sim.busy = 1
	assert.ErrorIs(t, f.Erase(), flash.ErrWouldBlock)
}

func TestGpio(t *testing.T) {
	sim := regstest.NewSim()
	registry := NewGpio(sim)

	out, ok := registry.ClaimAsOutput("A", 5)
	require.True(t, ok)
	assert.Equal(t, uint32(0x400), sim.Peek(register(0, gpioModer)))

	require.NoError(t, out.SetLow())
	require.NoError(t, out.SetHigh())
	assert.Equal(t, []uint32{1 << 21, 1 << 5}, sim.WritesTo(register(0, gpioBsrr)))

	_, ok = registry.ClaimWithAlternateFunction(7, "B", 12)
	require.True(t, ok)
	assert.Equal(t, uint32(0x7_0000), sim.Peek(register(1, gpioAfrh)))
	assert.Equal(t, uint32(0x200_0000), sim.Peek(register(1, gpioModer)))

	_, ok = registry.ClaimDisabled("K", 15)
	require.True(t, ok)
	assert.Equal(t, uint32(0xc000_0000), sim.Peek(register(10, gpioModer)))

	_, ok = registry.ClaimAsInput("L", 0)
	assert.False(t, ok)
}
