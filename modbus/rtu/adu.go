// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/crc"
)

// ApplicationDataUnit is a PDU addressed to one slave on the serial line.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode validates the CRC of a raw frame and splits it into address and PDU.
// The returned data does not alias raw.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("%w: frame length '%v' does not meet minimum '%v'", modbus.ErrMalformedFrame, length, MinSize)
		return
	}
	if length > MaxSize {
		err = fmt.Errorf("%w: frame length '%v' exceeds maximum '%v'", modbus.ErrMalformedFrame, length, MaxSize)
		return
	}

	// Calculate checksum
	expected := crc.Checksum(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != expected {
		err = fmt.Errorf("%w: crc '%04x' does not match expected '%04x'", modbus.ErrChecksum, checksum, expected)
		return
	}
	adu = &ApplicationDataUnit{}
	adu.SlaveID = raw[0]
	adu.Pdu.FunctionCode = raw[1]
	adu.Pdu.Data = append([]byte(nil), raw[2:length-2]...)
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		err = fmt.Errorf("%w: length of data '%v' must not be bigger than '%v'", modbus.ErrEncoding, length, MaxSize)
		return
	}
	raw = make([]byte, 2, length)

	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	raw = append(raw, adu.Pdu.Data...)
	raw = crc.Append(raw)
	return
}

// Verify checks that resp answers req: same slave and same function code,
// ignoring the exception flag.
func (req *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) (err error) {
	// Slave address must match
	if req.SlaveID != resp.SlaveID {
		err = fmt.Errorf("%w: response slave id '%v' does not match request '%v'", modbus.ErrMismatchedResponse, resp.SlaveID, req.SlaveID)
		return
	}
	if req.Pdu.FunctionCode&^modbus.ExceptionFlag != resp.Pdu.FunctionCode&^modbus.ExceptionFlag {
		err = fmt.Errorf("%w: response function '%v' does not match request '%v'", modbus.ErrMismatchedResponse,
			resp.Pdu.FunctionCode&^modbus.ExceptionFlag, req.Pdu.FunctionCode)
		return
	}
	return
}
