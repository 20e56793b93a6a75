// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const hexdumpWidth = 16

// hexdump prints data as address, hex bytes and printable characters.
// Erased bytes (0xff) are dimmed.
func hexdump(w io.Writer, address uint32, data []byte, colored bool) error {
	addr := color.New(color.FgCyan)
	erased := color.New(color.Faint)

	if !colored {
		addr.DisableColor()
		erased.DisableColor()
	}

	for offset := 0; offset < len(data); offset += hexdumpWidth {
		line := data[offset:min(offset+hexdumpWidth, len(data))]

		var hex, text strings.Builder

		for i := range hexdumpWidth {
			if i == hexdumpWidth/2 {
				hex.WriteByte(' ')
			}

			if i >= len(line) {
				hex.WriteString("   ")
				continue
			}

			b := line[i]
			cell := fmt.Sprintf("%02x ", b)

			if b == 0xff {
				cell = erased.Sprint(cell)
			}

			hex.WriteString(cell)

			if b >= 0x20 && b < 0x7f {
				text.WriteByte(b)
			} else {
				text.WriteByte('.')
			}
		}

		_, err := fmt.Fprintf(w, "%s  %s |%s|\n", addr.Sprintf("%08x", address+uint32(offset)), hex.String(), text.String())

		if err != nil {
			return err
		}
	}

	return nil
}
