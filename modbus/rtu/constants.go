// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	// MinSize is slave address, function code and CRC.
	MinSize = 4
	// MaxSize is the largest RTU frame: 253 bytes of PDU plus address and CRC.
	MaxSize = 256

	// ExceptionSize is address, flagged function code, exception code and CRC.
	ExceptionSize = 5

	// bitsPerChar is start bit, 8 data bits, parity (or second stop bit) and stop bit.
	bitsPerChar = 11
)
