// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bbnote/gohal"
	"github.com/google/gousb"
)

var (
	supportedVids = []gousb.ID{stLinkVid}
	supportedPids = []gousb.ID{
		stLinkV2Pid, stLinkV21Pid, stLinkV21NoMsdPid,
		stLinkV3UsbLoaderPid, stLinkV3EPid, stLinkV3SPid, stLinkV32VcpPid,
	}
)

// link moves raw command and data packets between host and probe.
type link interface {
	write(data []byte) error
	read(data []byte) (int, error)
	close() error
}

type usbLink struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	rx     *gousb.InEndpoint
	tx     *gousb.OutEndpoint
}

func findDevices(ctx *gousb.Context, vids []gousb.ID, pids []gousb.ID) ([]*gousb.Device, error) {
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !slices.Contains(vids, desc.Vendor) || !slices.Contains(pids, desc.Product) {
			return false
		}

		gohal.Logger().Infof("found usb device [%s:%s] on bus %03d:%03d", desc.Vendor, desc.Product, desc.Bus, desc.Address)
		return true
	})

	if err != nil {
		gohal.Logger().Error("got error during usb device scan: ", err)

		for _, d := range devices {
			d.Close()
		}
		return nil, err
	}

	gohal.Logger().Debugf("found %d matching devices based on vendor and product id list", len(devices))
	return devices, nil
}

// selectDevice picks the probe matching serial and closes all others.
func selectDevice(devices []*gousb.Device, serial string) (*gousb.Device, error) {
	var selected *gousb.Device

	if len(devices) == 0 {
		return nil, errors.New("could not find any ST-Link connected to computer")
	}

	if serial == "" && len(devices) > 1 {
		for _, d := range devices {
			d.Close()
		}
		return nil, errors.New("could not identify exact ST-Link by given parameters (perhaps a serial no is missing?)")
	}

	for _, dev := range devices {
		if selected == nil && serial == "" {
			selected = dev
			continue
		}

		devSerialNo, _ := dev.SerialNumber()

		if selected == nil && devSerialNo == serial {
			selected = dev
			continue
		}

		dev.Close()
	}

	if selected == nil {
		return nil, fmt.Errorf("could not find ST-Link with serial number %s", serial)
	}

	return selected, nil
}

func openUsbLink(config *Config) (*usbLink, error) {
	var err error

	vids, pids := supportedVids, supportedPids

	if config.vid != AllVids {
		vids = []gousb.ID{config.vid}
	}

	if config.pid != AllPids {
		pids = []gousb.ID{config.pid}
	}

	l := &usbLink{ctx: gousb.NewContext()}

	devices, err := findDevices(l.ctx, vids, pids)

	if err == nil {
		l.device, err = selectDevice(devices, config.serial)
	}

	if err != nil {
		l.close()
		return nil, err
	}

	l.config, err = l.device.Config(1)

	if err != nil {
		l.close()
		return nil, fmt.Errorf("could not request configuration #1 for ST-Link: %w", err)
	}

	l.intf, err = l.config.Interface(0, 0)

	if err != nil {
		l.close()
		return nil, fmt.Errorf("could not claim interface 0,0 for ST-Link: %w", err)
	}

	txNo := txEndpoint

	if l.device.Desc.Product != stLinkV2Pid {
		txNo = txEndpointApiV3
	}

	if l.rx, err = l.intf.InEndpoint(rxEndpoint); err == nil {
		l.tx, err = l.intf.OutEndpoint(txNo)
	}

	if err != nil {
		l.close()
		return nil, fmt.Errorf("could not open ST-Link endpoints: %w", err)
	}

	return l, nil
}

func (l *usbLink) write(data []byte) error {
	written, err := l.tx.Write(data)

	if err != nil {
		return err
	}

	gohal.Logger().Tracef("wrote %d bytes to endpoint", written)
	return nil
}

func (l *usbLink) read(data []byte) (int, error) {
	n, err := l.rx.Read(data)

	if err != nil {
		return 0, err
	}

	gohal.Logger().Tracef("read %d bytes from in endpoint", n)
	return n, nil
}

func (l *usbLink) close() error {
	if l.intf != nil {
		l.intf.Close()
	}

	if l.config != nil {
		l.config.Close()
	}

	if l.device != nil {
		l.device.Close()
	}

	return l.ctx.Close()
}
