// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports caller misuse detected before any I/O.
	ErrInvalidArgument = errors.New("modbus: invalid argument")
	// ErrEncoding reports a request that cannot be framed.
	ErrEncoding = errors.New("modbus: encoding error")
	// ErrTimeout reports that no reply arrived within the response timeout.
	ErrTimeout = errors.New("modbus: request timed out")
	// ErrChecksum reports a frame whose CRC does not match its content.
	ErrChecksum = errors.New("modbus: checksum mismatch")
	// ErrMalformedFrame reports a frame with a valid CRC but an invalid layout.
	ErrMalformedFrame = errors.New("modbus: malformed frame")
	// ErrMismatchedResponse reports a reply that does not answer the request.
	ErrMismatchedResponse = errors.New("modbus: mismatched response")
	// ErrBusy reports that another exchange is in flight.
	ErrBusy = errors.New("modbus: transport busy")
)

// IOError wraps a transport failure. It is fatal to the session: the
// transport must be closed and reconnected before reuse.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("modbus: %s failed: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsIOError reports whether err is, or wraps, an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}

// AsException extracts the slave exception carried by err, if any.
func AsException(err error) (*ExceptionError, bool) {
	var exc *ExceptionError
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}
