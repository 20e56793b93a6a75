// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/stlink"
	"github.com/fatih/color"
	"github.com/sigurn/crc16"
	"github.com/spf13/cobra"
)

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show probe, target and flash information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFlash(func(probe *stlink.Probe, dev flash.ReadWrite) error {
				label := color.New(color.Bold).SprintFunc()

				fmt.Fprintf(a.out, "%s %s (serial %s, %d kHz)\n", label("probe:  "), probe.Version(), probe.Serial(), probe.SpeedKHz())

				if voltage, err := probe.TargetVoltage(); err == nil {
					fmt.Fprintf(a.out, "%s %.2f V\n", label("voltage:"), voltage)
				}

				id, err := probe.IdCode()

				if err != nil {
					return err
				}

				start, end := dev.Range()

				fmt.Fprintf(a.out, "%s 0x%08x\n", label("idcode: "), id)
				fmt.Fprintf(a.out, "%s %s [%s, %s) %d KiB\n", label("flash:  "), dev.Label(), start, end, end.Diff(start)/1024)

				return nil
			})
		},
	}
}

func (a *app) readCommand() *cobra.Command {
	var address, length uint32
	var out string

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read flash content as hexdump or into a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFlash(func(_ *stlink.Probe, dev flash.ReadWrite) error {
				data := make([]byte, length)

				err := poll(cmd.Context(), func() error {
					return dev.Read(flash.Address(address), data)
				})

				if err != nil {
					return err
				}

				if out != "" {
					return os.WriteFile(out, data, 0o644)
				}

				return hexdump(a.out, address, data, !color.NoColor)
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "address", 0, "start address")
	cmd.Flags().Uint32Var(&length, "length", 256, "number of bytes")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write raw bytes to this file")
	cmd.MarkFlagRequired("address")

	return cmd
}

func (a *app) writeCommand() *cobra.Command {
	var address uint32
	var verify bool

	cmd := &cobra.Command{
		Use:   "write <file>",
		Short: "Write a binary image to flash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])

			if err != nil {
				return err
			}

			image = padImage(image, wordSize)

			return a.withFlash(func(_ *stlink.Probe, dev flash.ReadWrite) error {
				err := poll(cmd.Context(), func() error {
					return dev.Write(flash.Address(address), image)
				})

				if err != nil {
					return err
				}

				a.log.Infof("wrote %d bytes at 0x%08x", len(image), address)

				if !verify {
					return nil
				}

				readBack := make([]byte, len(image))

				err = poll(cmd.Context(), func() error {
					return dev.Read(flash.Address(address), readBack)
				})

				if err != nil {
					return err
				}

				if !bytes.Equal(image, readBack) {
					return fmt.Errorf("verify failed at 0x%08x", address)
				}

				fmt.Fprintln(a.out, color.GreenString("verified"))
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "address", 0, "start address")
	cmd.Flags().BoolVar(&verify, "verify", true, "read the image back after writing")
	cmd.MarkFlagRequired("address")

	return cmd
}

func (a *app) eraseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Erase the whole flash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFlash(func(_ *stlink.Probe, dev flash.ReadWrite) error {
				if err := poll(cmd.Context(), dev.Erase); err != nil {
					return err
				}

				a.log.Infof("%s erased", dev.Label())
				return nil
			})
		},
	}
}

// every supported target programs whole words
const wordSize = 4

// padImage extends image with erased bytes to a multiple of alignment.
func padImage(image []byte, alignment int) []byte {
	if rest := len(image) % alignment; rest != 0 {
		image = append(image, bytes.Repeat([]byte{0xff}, alignment-rest)...)
	}

	return image
}

type crcWriter struct {
	table *crc16.Table
	crc   uint16
}

func newCrcWriter() *crcWriter {
	table := crc16.MakeTable(crc16.CRC16_XMODEM)

	return &crcWriter{table: table, crc: crc16.Init(table)}
}

func (w *crcWriter) Write(p []byte) (int, error) {
	w.crc = crc16.Update(w.crc, p, w.table)
	return len(p), nil
}

func (w *crcWriter) Sum() uint16 {
	return crc16.Complete(w.crc, w.table)
}

// rangeCrc is the CRC-16/XMODEM of length bytes of dev starting at address.
func rangeCrc(dev flash.ReadWrite, address flash.Address, length int64) (uint16, error) {
	w := newCrcWriter()

	if _, err := io.CopyN(w, dev.Bytes(address), length); err != nil {
		return 0, fmt.Errorf("reading %d bytes at %s: %w", length, address, err)
	}

	return w.Sum(), nil
}

func (a *app) crcCommand() *cobra.Command {
	var address, length uint32

	cmd := &cobra.Command{
		Use:   "crc",
		Short: "Print the CRC-16/XMODEM of a flash range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFlash(func(_ *stlink.Probe, dev flash.ReadWrite) error {
				crc, err := rangeCrc(dev, flash.Address(address), int64(length))

				if err != nil {
					return err
				}

				fmt.Fprintf(a.out, "0x%04x\n", crc)
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "address", 0, "start address")
	cmd.Flags().Uint32Var(&length, "length", 0, "number of bytes")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("length")

	return cmd
}
