// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package xmodem receives files sent with the XMODEM-CRC protocol as a
// sequence of fixed size blocks.
package xmodem

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/bbnote/gohal"
	"github.com/sigurn/crc16"
)

const BlockSize = 128

const (
	soh      = 0x01
	eot      = 0x04
	ack      = 0x06
	nak      = 0x15
	can      = 0x18
	crcStart = 'C'

	DefaultMaxRetries = 10
)

var (
	ErrCancelled      = errors.New("transfer cancelled by sender")
	ErrAborted        = errors.New("transfer aborted by receiver")
	ErrTooManyRetries = errors.New("too many retries")
	ErrSequence       = errors.New("block out of sequence")
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum is the CRC-16/XMODEM of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Receiver reads one file from port. Reads from port should time out
// with os.ErrDeadlineExceeded so lost frames are requested again.
type Receiver struct {
	port       io.ReadWriter
	MaxRetries int

	err      error
	received int
}

func NewReceiver(port io.ReadWriter) *Receiver {
	return &Receiver{port: port, MaxRetries: DefaultMaxRetries}
}

// Err returns the error that ended the transfer, nil after a complete file.
func (r *Receiver) Err() error {
	return r.err
}

// Received returns the number of accepted blocks.
func (r *Receiver) Received() int {
	return r.received
}

func (r *Receiver) send(b ...byte) error {
	_, err := r.port.Write(b)
	return err
}

func (r *Receiver) cancel() {
	if err := r.send(can, can); err != nil {
		gohal.Logger().Debug("could not cancel transfer: ", err)
	}
}

// Blocks yields every received block in order. The slice is only valid
// until the next iteration. Stopping the iteration cancels the transfer.
func (r *Receiver) Blocks() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		r.err = r.receive(yield)
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

func (r *Receiver) receive(yield func([]byte) bool) error {
	var frame [2 + BlockSize + 2]byte
	var header [1]byte

	expected := byte(1)
	retries := 0

	// a receiver in crc mode announces itself with 'C' until the first frame
	retry := func(reason string) error {
		retries++

		if retries > r.MaxRetries {
			r.cancel()
			return fmt.Errorf("%w: %s", ErrTooManyRetries, reason)
		}

		gohal.Logger().Tracef("xmodem retry %d: %s", retries, reason)

		if r.received == 0 {
			return r.send(crcStart)
		}

		return r.send(nak)
	}

	if err := r.send(crcStart); err != nil {
		return err
	}

	for {
		if _, err := io.ReadFull(r.port, header[:]); err != nil {
			if !isTimeout(err) {
				return err
			}

			if err := retry("timeout waiting for frame"); err != nil {
				return err
			}
			continue
		}

		switch header[0] {
		case eot:
			gohal.Logger().Debugf("xmodem transfer complete after %d blocks", r.received)
			return r.send(ack)

		case can:
			return ErrCancelled

		case soh:

		default:
			if err := retry(fmt.Sprintf("unexpected byte 0x%02x", header[0])); err != nil {
				return err
			}
			continue
		}

		if _, err := io.ReadFull(r.port, frame[:]); err != nil {
			if !isTimeout(err) {
				return err
			}

			if err := retry("timeout inside frame"); err != nil {
				return err
			}
			continue
		}

		block, complement := frame[0], frame[1]
		data := frame[2 : 2+BlockSize]
		crc := uint16(frame[2+BlockSize])<<8 | uint16(frame[3+BlockSize])

		if block != ^complement || Checksum(data) != crc {
			if err := retry(fmt.Sprintf("corrupt block %d", block)); err != nil {
				return err
			}
			continue
		}

		if block == expected-1 && r.received > 0 {
			// our ack got lost, the sender repeats the last block
			if err := r.send(ack); err != nil {
				return err
			}
			continue
		}

		if block != expected {
			r.cancel()
			return fmt.Errorf("%w: got %d, want %d", ErrSequence, block, expected)
		}

		if !yield(data) {
			r.cancel()
			return ErrAborted
		}

		r.received++
		expected++
		retries = 0

		if err := r.send(ack); err != nil {
			return err
		}
	}
}
