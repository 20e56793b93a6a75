// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bbnote/gohal/flash"
	"github.com/bbnote/gohal/stlink"
	"github.com/bbnote/gohal/xmodem"
	"github.com/spf13/cobra"
)

// serialPort puts a read deadline in front of every read so the xmodem
// receiver notices lost frames.
type serialPort struct {
	*os.File
	timeout time.Duration
}

func (p *serialPort) Read(b []byte) (int, error) {
	if err := p.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
		return 0, err
	}

	return p.File.Read(b)
}

// receiveImage streams an xmodem transfer from port into dev.
func receiveImage(dev flash.ReadWrite, port io.ReadWriter, address flash.Address) (int, error) {
	receiver := xmodem.NewReceiver(port)

	if err := dev.WriteFromBlocks(address, xmodem.BlockSize, receiver.Blocks()); err != nil {
		return receiver.Received(), err
	}

	if err := receiver.Err(); err != nil {
		return receiver.Received(), err
	}

	return receiver.Received(), nil
}

func (a *app) receiveCommand() *cobra.Command {
	var address uint32
	var port string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive an image over XMODEM-CRC and write it to flash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.OpenFile(port, os.O_RDWR, 0)

			if err != nil {
				return err
			}

			defer file.Close()

			return a.withFlash(func(_ *stlink.Probe, dev flash.ReadWrite) error {
				a.log.Infof("waiting for xmodem transfer on %s", port)

				blocks, err := receiveImage(dev, &serialPort{File: file, timeout: timeout}, flash.Address(address))

				if err != nil {
					return fmt.Errorf("after %d blocks: %w", blocks, err)
				}

				a.log.Infof("received %d bytes at 0x%08x", blocks*xmodem.BlockSize, address)
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "address", 0, "start address")
	cmd.Flags().StringVar(&port, "port", "", "serial device the image arrives on")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "time to wait for a frame")
	cmd.MarkFlagRequired("address")
	cmd.MarkFlagRequired("port")

	return cmd
}
