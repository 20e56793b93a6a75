// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type modeChange struct {
	pin      PinID
	mode     Mode
	function uint8
}

type fakeDriver struct {
	modes  []modeChange
	levels map[PinID]bool
	reject Mode
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{levels: map[PinID]bool{}, reject: -1}
}

func (d *fakeDriver) SetMode(pin PinID, mode Mode, function uint8) error {
	if mode == d.reject {
		return ErrUnsupportedMode
	}
	d.modes = append(d.modes, modeChange{pin, mode, function})
	return nil
}

func (d *fakeDriver) Read(pin PinID) (bool, error) {
	return d.levels[pin], nil
}

func (d *fakeDriver) Write(pin PinID, high bool) error {
	d.levels[pin] = high
	return nil
}

var testPorts = []Port{{"A", 16}, {"B", 16}, {"C", 16}, {"8", 2}}

func TestPinsCanOnlyBeClaimedOnce(t *testing.T) {
	r := NewRegistry(testPorts, newFakeDriver())

	_, ok := r.ClaimAsOutput("A", 3)
	assert.True(t, ok)
	_, ok = r.ClaimAsOutput("A", 3)
	assert.False(t, ok)
	_, ok = r.ClaimAsInput("A", 3)
	assert.False(t, ok)

	_, ok = r.ClaimAsOutput("C", 8)
	assert.True(t, ok)
	_, ok = r.ClaimWithAlternateFunction(2, "C", 8)
	assert.False(t, ok)
	_, ok = r.ClaimDisabled("C", 8)
	assert.False(t, ok)

	_, ok = r.ClaimAsInput("B", 3)
	assert.True(t, ok, "same index on another port is a different pin")
	assert.True(t, r.IsClaimed("B", 3))
	assert.False(t, r.IsClaimed("B", 4))
}

func TestClaimOutOfRange(t *testing.T) {
	r := NewRegistry(testPorts, newFakeDriver())

	_, ok := r.ClaimAsInput("Z", 0)
	assert.False(t, ok)
	_, ok = r.ClaimAsInput("A", 16)
	assert.False(t, ok)
	_, ok = r.ClaimAsOutput("8", 2)
	assert.False(t, ok)
	_, ok = r.ClaimAsOutput("A", -1)
	assert.False(t, ok)

	_, ok = r.ClaimAsOutput("8", 1)
	assert.True(t, ok)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry(testPorts, newFakeDriver())
	b := NewRegistry(testPorts, newFakeDriver())

	_, ok := a.ClaimAsInput("A", 0)
	require.True(t, ok)
	_, ok = b.ClaimAsInput("A", 0)
	assert.True(t, ok)
}

func TestClaimProgramsMode(t *testing.T) {
	d := newFakeDriver()
	r := NewRegistry(testPorts, d)

	pin, ok := r.ClaimWithAlternateFunction(7, "B", 10)
	require.True(t, ok)
	assert.Equal(t, uint8(7), pin.Function())
	assert.Equal(t, "B10", pin.String())
	assert.Equal(t, []modeChange{{PinID{1, 10}, ModeAlternate, 7}}, d.modes)
}

func TestFailedClaimLeavesPinFree(t *testing.T) {
	d := newFakeDriver()
	d.reject = ModeAlternate
	r := NewRegistry(testPorts, d)

	_, ok := r.ClaimWithAlternateFunction(1, "A", 1)
	assert.False(t, ok)
	assert.False(t, r.IsClaimed("A", 1))

	_, ok = r.ClaimAsInput("A", 1)
	assert.True(t, ok)
}

func TestTransitionsConsumeHandles(t *testing.T) {
	d := newFakeDriver()
	r := NewRegistry(testPorts, d)

	out, ok := r.ClaimAsOutput("A", 5)
	require.True(t, ok)

	require.NoError(t, out.SetHigh())
	high, err := out.IsSetHigh()
	require.NoError(t, err)
	assert.True(t, high)
	require.NoError(t, out.Toggle())
	assert.False(t, d.levels[PinID{0, 5}])

	in, err := out.AsInput()
	require.NoError(t, err)
	assert.ErrorIs(t, out.SetLow(), ErrPinMoved)
	_, err = out.AsDisabled()
	assert.ErrorIs(t, err, ErrPinMoved)

	d.levels[PinID{0, 5}] = true
	high, err = in.IsHigh()
	require.NoError(t, err)
	assert.True(t, high)
	low, err := in.IsLow()
	require.NoError(t, err)
	assert.False(t, low)

	disabled, err := in.AsDisabled()
	require.NoError(t, err)
	_, err = in.IsHigh()
	assert.ErrorIs(t, err, ErrPinMoved)

	af, err := disabled.AsAlternateFunction(3)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), af.Function())

	back, err := af.AsOutput()
	require.NoError(t, err)
	assert.NoError(t, back.SetLow())

	modes := make([]Mode, 0, len(d.modes))
	for _, m := range d.modes {
		modes = append(modes, m.mode)
	}
	assert.Equal(t, []Mode{ModeOutput, ModeInput, ModeDisabled, ModeAlternate, ModeOutput}, modes)
}

func TestFailedTransitionKeepsHandle(t *testing.T) {
	d := newFakeDriver()
	r := NewRegistry(testPorts, d)

	in, ok := r.ClaimAsInput("C", 0)
	require.True(t, ok)

	d.reject = ModeAlternate
	_, err := in.AsAlternateFunction(1)
	assert.ErrorIs(t, err, ErrUnsupportedMode)

	_, err = in.IsHigh()
	assert.NoError(t, err)
}

func TestZeroHandleIsUnusable(t *testing.T) {
	var p OutputPin
	assert.ErrorIs(t, p.SetHigh(), ErrPinMoved)
	assert.Equal(t, "pin(nil)", p.String())
}
