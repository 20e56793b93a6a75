// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bbnote/gohal/nb"
)

// Serialize stores a fixed size value at address in little endian layout.
// The layout is tied to the Go type definition, so data written by one
// build is only guaranteed readable by a build with the same type.
func Serialize(w Writer, address Address, value any) error {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, value); err != nil {
		return fmt.Errorf("serialize at %s: %w", address, err)
	}

	data := buf.Bytes()
	return nb.Block(func() error { return w.Write(address, data) })
}

// Deserialize loads a value stored by Serialize into value, which must be
// a pointer to a fixed size type.
func Deserialize(r Reader, address Address, value any) error {
	size := binary.Size(value)

	if size < 0 {
		return fmt.Errorf("deserialize at %s: %T has no fixed size", address, value)
	}

	data := make([]byte, size)

	if err := nb.Block(func() error { return r.Read(address, data) }); err != nil {
		return err
	}

	return binary.Read(bytes.NewReader(data), binary.LittleEndian, value)
}
