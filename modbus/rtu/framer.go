// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"time"

	"github.com/ffutop/modbus-rtu/modbus"
)

// CharTime returns the time to transmit one RTU character at baudRate.
func CharTime(baudRate int) time.Duration {
	if baudRate <= 0 {
		return 0
	}
	return time.Duration(bitsPerChar) * time.Second / time.Duration(baudRate)
}

// SilentInterval returns the t3.5 inter-frame gap for baudRate. Above
// 19200 baud the fixed 1750µs value recommended for serial lines is used.
// See MODBUS over Serial Line - Specification and Implementation Guide (page 13).
func SilentInterval(baudRate int) time.Duration {
	if baudRate <= 0 || baudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return CharTime(baudRate) * 35 / 10
}

// CalculateResponseLength returns the expected length of the response to the
// request frame adu, or 0 when it cannot be determined.
func CalculateResponseLength(adu []byte) int {
	if len(adu) < 6 {
		return 0
	}
	length := MinSize
	switch adu[1] {
	case modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeReadHoldingRegisters:
		count := int(binary.BigEndian.Uint16(adu[4:]))
		length += 1 + count*2
	case modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeWriteMultipleRegisters:
		length += 4
	default:
		return 0
	}
	return length
}
