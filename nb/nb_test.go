// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package nb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func busyFor(n int, result error) func() error {
	calls := 0
	return func() error {
		calls++
		if calls <= n {
			return ErrWouldBlock
		}
		return result
	}
}

func TestBlockRetriesUntilDone(t *testing.T) {
	assert.NoError(t, Block(busyFor(5, nil)))

	failure := errors.New("failed")
	assert.Equal(t, failure, Block(busyFor(3, failure)))
}

func TestBlockRecognisesWrappedWouldBlock(t *testing.T) {
	calls := 0
	err := Block(func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("page program: %w", ErrWouldBlock)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBlockValue(t *testing.T) {
	calls := 0
	v, err := BlockValue(func() (int, error) {
		calls++
		if calls < 4 {
			return 0, ErrWouldBlock
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPollStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Poll(ctx, time.Millisecond, func() error { return ErrWouldBlock })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollReturnsResult(t *testing.T) {
	err := Poll(context.Background(), time.Microsecond, busyFor(2, nil))
	assert.NoError(t, err)
	assert.True(t, IsWouldBlock(fmt.Errorf("x: %w", ErrWouldBlock)))
	assert.False(t, IsWouldBlock(errors.New("other")))
}
