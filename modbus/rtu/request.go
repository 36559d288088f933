// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
)

// Request is a master request before framing. Quantity is the register count
// for reads; Values holds the single value of 0x06 or the block of 0x10.
type Request struct {
	SlaveID      byte
	FunctionCode byte
	Address      uint16
	Quantity     uint16
	Values       []uint16
}

// NewReadHoldingRegisters builds a 0x03 request.
func NewReadHoldingRegisters(slaveID byte, address, quantity uint16) *Request {
	return &Request{SlaveID: slaveID, FunctionCode: modbus.FuncCodeReadHoldingRegisters, Address: address, Quantity: quantity}
}

// NewReadInputRegisters builds a 0x04 request.
func NewReadInputRegisters(slaveID byte, address, quantity uint16) *Request {
	return &Request{SlaveID: slaveID, FunctionCode: modbus.FuncCodeReadInputRegisters, Address: address, Quantity: quantity}
}

// NewWriteSingleRegister builds a 0x06 request.
func NewWriteSingleRegister(slaveID byte, address, value uint16) *Request {
	return &Request{SlaveID: slaveID, FunctionCode: modbus.FuncCodeWriteSingleRegister, Address: address, Quantity: 1, Values: []uint16{value}}
}

// NewWriteMultipleRegisters builds a 0x10 request. values is copied.
func NewWriteMultipleRegisters(slaveID byte, address uint16, values []uint16) *Request {
	return &Request{
		SlaveID:      slaveID,
		FunctionCode: modbus.FuncCodeWriteMultipleRegisters,
		Address:      address,
		Quantity:     uint16(len(values)),
		Values:       append([]uint16(nil), values...),
	}
}

// Broadcast reports whether the request is addressed to every slave.
func (r *Request) Broadcast() bool {
	return r.SlaveID == modbus.BroadcastAddress
}

// IsRead reports whether the request reads registers.
func (r *Request) IsRead() bool {
	return r.FunctionCode == modbus.FuncCodeReadHoldingRegisters || r.FunctionCode == modbus.FuncCodeReadInputRegisters
}

// Validate checks the request against the protocol limits and the slave
// address range. Violations wrap modbus.ErrInvalidArgument.
func (r *Request) Validate() error {
	if r.SlaveID > modbus.MaxSlaveAddress {
		return fmt.Errorf("%w: slave id '%v' is reserved", modbus.ErrInvalidArgument, r.SlaveID)
	}
	if r.Broadcast() && r.IsRead() {
		return fmt.Errorf("%w: %s cannot be broadcast", modbus.ErrInvalidArgument, modbus.FunctionName(r.FunctionCode))
	}
	return r.checkLimits(modbus.ErrInvalidArgument)
}

func (r *Request) checkLimits(kind error) error {
	var count, max int
	switch r.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		count, max = int(r.Quantity), modbus.MaxReadRegisters
	case modbus.FuncCodeWriteSingleRegister:
		if len(r.Values) != 1 {
			return fmt.Errorf("%w: write single register needs exactly one value, got %d", kind, len(r.Values))
		}
		return nil
	case modbus.FuncCodeWriteMultipleRegisters:
		count, max = len(r.Values), modbus.MaxWriteRegisters
	default:
		return fmt.Errorf("%w: unsupported function code: 0x%02X", kind, r.FunctionCode)
	}

	if count < 1 || count > max {
		return fmt.Errorf("%w: %s quantity '%v' must be between 1 and %v", kind, modbus.FunctionName(r.FunctionCode), count, max)
	}
	if int(r.Address)+count > 0x10000 {
		return fmt.Errorf("%w: address range %v+%v exceeds register space", kind, r.Address, count)
	}
	return nil
}

// PDU serializes the function-specific payload with big-endian fields.
func (r *Request) PDU() (modbus.ProtocolDataUnit, error) {
	if err := r.checkLimits(modbus.ErrEncoding); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	var data []byte
	switch r.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		data = make([]byte, 4)
		binary.BigEndian.PutUint16(data[0:], r.Address)
		binary.BigEndian.PutUint16(data[2:], r.Quantity)
	case modbus.FuncCodeWriteSingleRegister:
		data = make([]byte, 4)
		binary.BigEndian.PutUint16(data[0:], r.Address)
		binary.BigEndian.PutUint16(data[2:], r.Values[0])
	case modbus.FuncCodeWriteMultipleRegisters:
		// Address(2) + Quantity(2) + ByteCount(1) + Values(2N)
		data = make([]byte, 5+2*len(r.Values))
		binary.BigEndian.PutUint16(data[0:], r.Address)
		binary.BigEndian.PutUint16(data[2:], uint16(len(r.Values)))
		data[4] = byte(2 * len(r.Values))
		for i, v := range r.Values {
			binary.BigEndian.PutUint16(data[5+2*i:], v)
		}
	}
	return modbus.ProtocolDataUnit{FunctionCode: r.FunctionCode, Data: data}, nil
}

// ADU wraps the request PDU with its slave address.
func (r *Request) ADU() (*ApplicationDataUnit, error) {
	pdu, err := r.PDU()
	if err != nil {
		return nil, err
	}
	return &ApplicationDataUnit{SlaveID: r.SlaveID, Pdu: pdu}, nil
}

// Encode returns the complete request frame including the CRC trailer.
func (r *Request) Encode() ([]byte, error) {
	adu, err := r.ADU()
	if err != nil {
		return nil, err
	}
	return adu.Encode()
}

// DecodeRequest parses a request frame, as a slave would.
func DecodeRequest(raw []byte) (*Request, error) {
	adu, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return ParseRequest(adu)
}

// ParseRequest interprets the PDU of a CRC-checked request frame.
func ParseRequest(adu *ApplicationDataUnit) (*Request, error) {
	data := adu.Pdu.Data
	req := &Request{SlaveID: adu.SlaveID, FunctionCode: adu.Pdu.FunctionCode}

	switch adu.Pdu.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: read request payload is %d bytes, want 4", modbus.ErrMalformedFrame, len(data))
		}
		req.Address = binary.BigEndian.Uint16(data[0:])
		req.Quantity = binary.BigEndian.Uint16(data[2:])
	case modbus.FuncCodeWriteSingleRegister:
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: write single payload is %d bytes, want 4", modbus.ErrMalformedFrame, len(data))
		}
		req.Address = binary.BigEndian.Uint16(data[0:])
		req.Quantity = 1
		req.Values = []uint16{binary.BigEndian.Uint16(data[2:])}
	case modbus.FuncCodeWriteMultipleRegisters:
		if len(data) < 5 {
			return nil, fmt.Errorf("%w: write multiple payload is %d bytes, want at least 5", modbus.ErrMalformedFrame, len(data))
		}
		req.Address = binary.BigEndian.Uint16(data[0:])
		req.Quantity = binary.BigEndian.Uint16(data[2:])
		byteCount := int(data[4])
		if byteCount != len(data)-5 || byteCount != 2*int(req.Quantity) {
			return nil, fmt.Errorf("%w: byte count '%v' does not match quantity '%v' and payload '%v'",
				modbus.ErrMalformedFrame, byteCount, req.Quantity, len(data)-5)
		}
		req.Values = make([]uint16, req.Quantity)
		for i := range req.Values {
			req.Values[i] = binary.BigEndian.Uint16(data[5+2*i:])
		}
	default:
		return nil, fmt.Errorf("%w: unsupported function code: 0x%02X", modbus.ErrMalformedFrame, adu.Pdu.FunctionCode)
	}
	return req, nil
}
