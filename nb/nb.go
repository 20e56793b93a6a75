// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package nb models non-blocking hardware operations. An operation either
// completes, fails, or returns ErrWouldBlock when the hardware is still busy
// with a previous action and the call has to be issued again later.
package nb

import (
	"context"
	"errors"
	"time"
)

// ErrWouldBlock is returned by non-blocking operations while the hardware is busy.
var ErrWouldBlock = errors.New("operation would block")

// IsWouldBlock reports whether err carries ErrWouldBlock.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

// Block calls op until it returns something other than ErrWouldBlock.
//
// It spins without yielding, which is only correct when nothing else
// competes for the caller's time. Use Poll when running on a host.
func Block(op func() error) error {
	for {
		err := op()

		if !IsWouldBlock(err) {
			return err
		}
	}
}

// BlockValue is Block for operations producing a value.
func BlockValue[T any](op func() (T, error)) (T, error) {
	for {
		value, err := op()

		if !IsWouldBlock(err) {
			return value, err
		}
	}
}

// Poll calls op every interval until it stops reporting ErrWouldBlock or
// ctx is done.
func Poll(ctx context.Context, interval time.Duration, op func() error) error {
	for {
		err := op()

		if !IsWouldBlock(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
