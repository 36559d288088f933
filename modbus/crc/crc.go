// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the Modbus RTU CRC16 (polynomial 0xA001, initial
// value 0xFFFF).
package crc

const (
	initial    = 0xFFFF
	polynomial = 0xA001
)

// CRC is a running CRC16 accumulator.
type CRC struct {
	value uint16
}

// Reset restores the initial value.
func (crc *CRC) Reset() *CRC {
	crc.value = initial
	return crc
}

// PushBytes folds data into the accumulator.
func (crc *CRC) PushBytes(data []byte) *CRC {
	for _, b := range data {
		crc.value ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc.value&0x0001 != 0 {
				crc.value = crc.value>>1 ^ polynomial
			} else {
				crc.value >>= 1
			}
		}
	}
	return crc
}

// Value returns the checksum. On the wire the low byte comes first.
func (crc *CRC) Value() uint16 {
	return crc.value
}

// Checksum returns the CRC16 of data.
func Checksum(data []byte) uint16 {
	var crc CRC
	return crc.Reset().PushBytes(data).Value()
}

// Append appends the checksum of frame to it, low byte first.
func Append(frame []byte) []byte {
	sum := Checksum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

// Valid reports whether the trailing two bytes of frame hold the checksum of
// the bytes before them.
func Valid(frame []byte) bool {
	n := len(frame)
	if n < 2 {
		return false
	}
	return Checksum(frame[:n-2]) == uint16(frame[n-1])<<8|uint16(frame[n-2])
}
