// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"fmt"
	"iter"

	"github.com/bbnote/gohal/nb"
)

// Reader is the read half of a flash device.
type Reader interface {
	Read(address Address, data []byte) error
	Range() (Address, Address)
}

// Writer is the write half of a flash device.
type Writer interface {
	Write(address Address, data []byte) error
}

// ReadWrite is the uniform byte addressable contract every flash driver
// offers. Every operation besides Range and Label may return ErrWouldBlock.
type ReadWrite interface {
	Reader
	Writer

	Label() string

	// Erase erases the whole device.
	Erase() error

	// WriteFromBlocks writes a stream of blockSize chunks starting at address.
	WriteFromBlocks(address Address, blockSize int, blocks iter.Seq[[]byte]) error

	// Bytes streams the device content starting at address.
	Bytes(address Address) *ReadIterator
}

// WriteFromBlocks collects fixed size chunks in a staging buffer of
// transferSize bytes and hands every full buffer to w. The last, possibly
// shorter, buffer is flushed at the end.
//
// transferSize must be a multiple of blockSize and every chunk must be
// exactly blockSize long. Write calls block until the device is idle.
func WriteFromBlocks(w Writer, transferSize int, address Address, blockSize int, blocks iter.Seq[[]byte]) error {
	if blockSize <= 0 || transferSize < blockSize || transferSize%blockSize != 0 {
		return fmt.Errorf("transfer size %d is not a multiple of block size %d", transferSize, blockSize)
	}

	staging := make([]byte, 0, transferSize)
	next := address

	flush := func() error {
		if len(staging) == 0 {
			return nil
		}

		err := nb.Block(func() error { return w.Write(next, staging) })

		if err != nil {
			return err
		}

		next = next.Add(len(staging))
		staging = staging[:0]
		return nil
	}

	for chunk := range blocks {
		if len(chunk) != blockSize {
			return fmt.Errorf("got a %d byte chunk at %s, want %d bytes", len(chunk), next.Add(len(staging)), blockSize)
		}

		staging = append(staging, chunk...)

		if len(staging) == transferSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}
