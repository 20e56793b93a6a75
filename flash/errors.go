// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package flash

import (
	"errors"
	"fmt"

	"github.com/bbnote/gohal/nb"
)

type ErrorCode int

const (
	ErrorOK ErrorCode = iota
	ErrorWouldBlock
	ErrorMisalignedAccess
	ErrorAddressOutOfRange
	ErrorMemoryNotReachable
	ErrorMemoryIsLocked
	ErrorInvalidAddress
	ErrorPageEraseFailed
	ErrorMassEraseFailed
	ErrorWriteFailed
	ErrorWrongManufacturerId
	ErrorTimeOut
	ErrorTransport
)

var errorCodeNames = map[ErrorCode]string{
	ErrorOK:                  "ok",
	ErrorWouldBlock:          "would block",
	ErrorMisalignedAccess:    "misaligned access",
	ErrorAddressOutOfRange:   "address out of range",
	ErrorMemoryNotReachable:  "memory not reachable",
	ErrorMemoryIsLocked:      "memory is locked",
	ErrorInvalidAddress:      "invalid address",
	ErrorPageEraseFailed:     "page erase failed",
	ErrorMassEraseFailed:     "mass erase failed",
	ErrorWriteFailed:         "write failed",
	ErrorWrongManufacturerId: "wrong manufacturer id",
	ErrorTimeOut:             "timed out",
	ErrorTransport:           "transport error",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code %d", int(c))
}

// ErrorKind groups error codes by what a caller is expected to do about them.
type ErrorKind int

const (
	// KindNone is reported for nil errors.
	KindNone ErrorKind = iota
	// KindTransient errors go away by calling again later.
	KindTransient
	// KindValidation errors are programming errors of the caller.
	KindValidation
	// KindHardware errors point to a defective or miswired device.
	KindHardware
)

func (c ErrorCode) Kind() ErrorKind {
	switch c {
	case ErrorOK:
		return KindNone
	case ErrorWouldBlock:
		return KindTransient
	case ErrorMisalignedAccess, ErrorAddressOutOfRange, ErrorMemoryNotReachable, ErrorInvalidAddress:
		return KindValidation
	default:
		return KindHardware
	}
}

// Error is a flash operation failure tagged with an ErrorCode.
type Error struct {
	errorString string
	Code        ErrorCode
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.errorString + ": " + e.cause.Error()
	}
	return e.errorString
}

func (e *Error) Unwrap() error {
	if e.Code == ErrorWouldBlock {
		return nb.ErrWouldBlock
	}
	return e.cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

func NewError(msg string, code ErrorCode) error {
	return &Error{errorString: msg, Code: code}
}

// WrapError tags a lower level failure, e.g. from a bus transfer, with code.
func WrapError(code ErrorCode, cause error) error {
	return &Error{errorString: code.String(), Code: code, cause: cause}
}

// ErrWouldBlock is the "hardware busy, call again" signal.
var ErrWouldBlock = nb.ErrWouldBlock

var (
	ErrMisalignedAccess    = NewError("misaligned access", ErrorMisalignedAccess)
	ErrAddressOutOfRange   = NewError("address out of range", ErrorAddressOutOfRange)
	ErrMemoryNotReachable  = NewError("memory not reachable", ErrorMemoryNotReachable)
	ErrMemoryIsLocked      = NewError("memory is locked", ErrorMemoryIsLocked)
	ErrInvalidAddress      = NewError("invalid address", ErrorInvalidAddress)
	ErrPageEraseFailed     = NewError("page erase failed", ErrorPageEraseFailed)
	ErrMassEraseFailed     = NewError("mass erase failed", ErrorMassEraseFailed)
	ErrWriteFailed         = NewError("write failed", ErrorWriteFailed)
	ErrWrongManufacturerId = NewError("wrong manufacturer id", ErrorWrongManufacturerId)
	ErrTimeOut             = NewError("timed out waiting for the device", ErrorTimeOut)
)

// CodeOf extracts the ErrorCode of err.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrorOK
	}
	if nb.IsWouldBlock(err) {
		return ErrorWouldBlock
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorTransport
}

// Kind classifies err.
func Kind(err error) ErrorKind {
	return CodeOf(err).Kind()
}

// PartialWriteError reports a write that failed after it started modifying
// the device. Everything below Resume holds the new data, everything from
// Resume on is untouched or in an unknown state up to the failing block's end.
type PartialWriteError struct {
	Resume Address
	Err    error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("write interrupted at %s: %v", e.Resume, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}
