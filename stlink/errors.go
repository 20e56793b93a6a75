// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package stlink

import (
	"errors"
	"fmt"

	"github.com/bbnote/gohal"
)

type UsbErrorCode int

const (
	ErrorOK UsbErrorCode = iota
	ErrorWait
	ErrorFail
	ErrorTargetUnalignedAccess
	ErrorCommandNotFound
)

type UsbError struct {
	errorString  string
	UsbErrorCode UsbErrorCode
}

func (e *UsbError) Error() string {
	return e.errorString
}

func newUsbError(msg string, code UsbErrorCode) error {
	return &UsbError{msg, code}
}

// IsWait reports whether err is a wait status the probe wants retried.
func IsWait(err error) bool {
	var usbErr *UsbError

	return errors.As(err, &usbErr) && usbErr.UsbErrorCode == ErrorWait
}

var statusMessages = map[byte]string{
	jTagGetIdCodeError:           "jtag get idcode error",
	jTagWriteError:               "write error",
	swdAccessPortFault:           "swd access port fault",
	swdAccessPortError:           "swd access port error",
	swdAccessPortParityError:     "swd access port parity error",
	swdDebugPortFault:            "swd debug port fault",
	swdDebugPortError:            "swd debug port error",
	swdDebugPortParityError:      "swd debug port parity error",
	swdAccessPortWDataError:      "swd access port wdata error",
	swdAccessPortStickyError:     "swd access port sticky error",
	swdAccessPortStickOrRunError: "swd access port sticky or overrun error",
	badAccessPortError:           "bad access port",
}

// statusError converts the status byte heading a probe response into an error.
func statusError(mode Mode, status byte) error {
	if mode == ModeDebugSwim {
		switch status {
		case swimErrorOk:
			return nil
		case swimErrorBusy:
			return newUsbError("swim is busy", ErrorWait)
		default:
			return newUsbError(fmt.Sprintf("unknown/unexpected status code 0x%02x", status), ErrorFail)
		}
	}

	switch status {
	case debugErrorOk:
		return nil

	case jTagWriteVerifyError:
		gohal.Logger().Debug("write verify error, ignoring")
		return nil

	case debugErrorFault:
		return newUsbError(fmt.Sprintf("swd fault response (0x%02x)", status), ErrorFail)

	case swdAccessPortWait:
		return newUsbError(fmt.Sprintf("wait status swd access port (0x%02x)", status), ErrorWait)

	case swdDebugPortWait:
		return newUsbError(fmt.Sprintf("wait status swd debug port (0x%02x)", status), ErrorWait)
	}

	if msg, ok := statusMessages[status]; ok {
		return newUsbError(msg, ErrorFail)
	}

	return newUsbError(fmt.Sprintf("unknown/unexpected status code 0x%02x", status), ErrorFail)
}
