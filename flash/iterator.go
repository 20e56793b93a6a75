// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"io"
	"iter"

	"github.com/bbnote/gohal/nb"
)

const readIteratorBufferSize = 2048

// ReadIterator streams bytes from a Reader, refilling an internal buffer
// with blocking reads as it is consumed. It stops at the end of the device
// or on the first read error, which Err reports afterwards.
type ReadIterator struct {
	reader  Reader
	address Address
	buffer  [readIteratorBufferSize]byte
	filled  int
	pos     int
	err     error
	done    bool
}

func NewReadIterator(reader Reader, address Address) *ReadIterator {
	return &ReadIterator{reader: reader, address: address}
}

// Address is the device address of the next byte.
func (it *ReadIterator) Address() Address {
	return it.address
}

// Err returns the read error that stopped the iterator, if any.
func (it *ReadIterator) Err() error {
	return it.err
}

func (it *ReadIterator) refill() bool {
	if it.done {
		return false
	}

	_, end := it.reader.Range()
	available := end.Diff(it.address)

	if available == 0 {
		it.done = true
		return false
	}

	chunk := it.buffer[:min(available, len(it.buffer))]

	err := nb.Block(func() error { return it.reader.Read(it.address, chunk) })

	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.filled = len(chunk)
	it.pos = 0
	return true
}

// Next returns the next byte, or false once the iterator is exhausted.
func (it *ReadIterator) Next() (byte, bool) {
	if it.pos >= it.filled && !it.refill() {
		return 0, false
	}

	b := it.buffer[it.pos]
	it.pos++
	it.address = it.address.Add(1)
	return b, true
}

// All yields the remaining bytes.
func (it *ReadIterator) All() iter.Seq[byte] {
	return func(yield func(byte) bool) {
		for {
			b, ok := it.Next()

			if !ok || !yield(b) {
				return
			}
		}
	}
}

func (it *ReadIterator) Read(p []byte) (int, error) {
	n := 0

	for n < len(p) {
		if it.pos >= it.filled && !it.refill() {
			break
		}

		copied := copy(p[n:], it.buffer[it.pos:it.filled])
		it.pos += copied
		it.address = it.address.Add(copied)
		n += copied
	}

	if n == 0 && len(p) > 0 {
		if it.err != nil {
			return 0, it.err
		}
		return 0, io.EOF
	}
	return n, nil
}

var _ io.Reader = (*ReadIterator)(nil)
