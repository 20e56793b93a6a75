// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

// Controller issues single primitive operations to one flash device. Each
// silicon family or external chip protocol provides its own implementation;
// the Engine builds the byte addressable read/write contract on top of it.
//
// EraseBlock, Program and MassErase only start an operation. They return
// ErrWouldBlock without touching the hardware if it is busy, and the Engine
// polls Busy until the started operation has completed.
type Controller interface {
	// Busy reports whether the device is still executing an operation.
	Busy() (bool, error)

	// EraseBlock erases one erase block.
	EraseBlock(block Block) error

	// Program writes data at address. data never crosses a program unit.
	Program(address Address, data []byte) error

	// MassErase erases the whole device.
	MassErase() error

	// TakeFailure returns the controller's failure flag and clears it.
	// Devices without such a flag always return false.
	TakeFailure() (bool, error)

	// ReadRaw copies device content at address into data.
	ReadRaw(address Address, data []byte) error
}
