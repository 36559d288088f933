// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-rtu/modbus"
)

// Response is a decoded slave reply. Registers is set for reads; Address and
// Value hold the write confirmation (Value is the register value for 0x06 and
// the quantity for 0x10). ExceptionCode is set when FunctionCode carries the
// exception flag.
type Response struct {
	SlaveID       byte
	FunctionCode  byte
	Registers     []uint16
	Address       uint16
	Value         uint16
	ExceptionCode modbus.ExceptionCode
}

// IsException reports whether the slave rejected the request.
func (r *Response) IsException() bool {
	return r.FunctionCode&modbus.ExceptionFlag != 0
}

// Err returns the slave exception as an error, or nil.
func (r *Response) Err() error {
	if !r.IsException() {
		return nil
	}
	return &modbus.ExceptionError{SlaveID: r.SlaveID, FunctionCode: r.FunctionCode, ExceptionCode: r.ExceptionCode}
}

// DecodeResponse validates and parses a reply frame.
func DecodeResponse(raw []byte) (*Response, error) {
	adu, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return ParseResponse(adu)
}

// ParseResponse interprets the PDU of a CRC-checked reply frame.
func ParseResponse(adu *ApplicationDataUnit) (*Response, error) {
	data := adu.Pdu.Data
	resp := &Response{SlaveID: adu.SlaveID, FunctionCode: adu.Pdu.FunctionCode}

	if adu.Pdu.IsException() {
		if n := MinSize + len(data); n != ExceptionSize {
			return nil, fmt.Errorf("%w: exception frame is %d bytes, want %d", modbus.ErrMalformedFrame, n, ExceptionSize)
		}
		resp.ExceptionCode = modbus.ExceptionCode(data[0])
		return resp, nil
	}

	switch adu.Pdu.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if len(data) < 1 {
			return nil, fmt.Errorf("%w: missing byte count", modbus.ErrMalformedFrame)
		}
		byteCount := int(data[0])
		if byteCount != len(data)-1 {
			return nil, fmt.Errorf("%w: response byte count '%v' does not match count '%v'", modbus.ErrMalformedFrame, byteCount, len(data)-1)
		}
		if byteCount%2 != 0 {
			return nil, fmt.Errorf("%w: odd register byte count '%v'", modbus.ErrMalformedFrame, byteCount)
		}
		resp.Registers = make([]uint16, byteCount/2)
		for i := range resp.Registers {
			resp.Registers[i] = binary.BigEndian.Uint16(data[1+2*i:])
		}
	case modbus.FuncCodeWriteSingleRegister, modbus.FuncCodeWriteMultipleRegisters:
		if len(data) != 4 {
			return nil, fmt.Errorf("%w: write confirmation is %d bytes, want 4", modbus.ErrMalformedFrame, len(data))
		}
		resp.Address = binary.BigEndian.Uint16(data[0:])
		resp.Value = binary.BigEndian.Uint16(data[2:])
	default:
		return nil, fmt.Errorf("%w: unsupported function code: 0x%02X", modbus.ErrMalformedFrame, adu.Pdu.FunctionCode)
	}
	return resp, nil
}

// Match checks that resp answers r. A reply from another slave, for another
// function, or confirming different registers is a mismatched response.
func (r *Request) Match(resp *Response) error {
	if resp.SlaveID != r.SlaveID {
		return fmt.Errorf("%w: response slave id '%v' does not match request '%v'", modbus.ErrMismatchedResponse, resp.SlaveID, r.SlaveID)
	}
	if resp.FunctionCode&^modbus.ExceptionFlag != r.FunctionCode {
		return fmt.Errorf("%w: response function '%v' does not match request '%v'", modbus.ErrMismatchedResponse,
			resp.FunctionCode&^modbus.ExceptionFlag, r.FunctionCode)
	}
	if resp.IsException() {
		return nil
	}

	switch r.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if len(resp.Registers) != int(r.Quantity) {
			return fmt.Errorf("%w: got %d registers, requested %d", modbus.ErrMismatchedResponse, len(resp.Registers), r.Quantity)
		}
	case modbus.FuncCodeWriteSingleRegister:
		if resp.Address != r.Address || resp.Value != r.Values[0] {
			return fmt.Errorf("%w: confirmed %v=%v, requested %v=%v", modbus.ErrMismatchedResponse, resp.Address, resp.Value, r.Address, r.Values[0])
		}
	case modbus.FuncCodeWriteMultipleRegisters:
		if resp.Address != r.Address || int(resp.Value) != len(r.Values) {
			return fmt.Errorf("%w: confirmed %v registers at %v, requested %v at %v", modbus.ErrMismatchedResponse, resp.Value, resp.Address, len(r.Values), r.Address)
		}
	}
	return nil
}

// Encode frames the response, as a slave would send it.
func (r *Response) Encode() ([]byte, error) {
	var data []byte
	switch {
	case r.IsException():
		data = []byte{byte(r.ExceptionCode)}
	case r.FunctionCode == modbus.FuncCodeReadHoldingRegisters || r.FunctionCode == modbus.FuncCodeReadInputRegisters:
		if len(r.Registers) > modbus.MaxReadRegisters {
			return nil, fmt.Errorf("%w: %d registers exceed %d", modbus.ErrEncoding, len(r.Registers), modbus.MaxReadRegisters)
		}
		data = make([]byte, 1+2*len(r.Registers))
		data[0] = byte(2 * len(r.Registers))
		for i, v := range r.Registers {
			binary.BigEndian.PutUint16(data[1+2*i:], v)
		}
	case r.FunctionCode == modbus.FuncCodeWriteSingleRegister || r.FunctionCode == modbus.FuncCodeWriteMultipleRegisters:
		data = make([]byte, 4)
		binary.BigEndian.PutUint16(data[0:], r.Address)
		binary.BigEndian.PutUint16(data[2:], r.Value)
	default:
		return nil, fmt.Errorf("%w: unsupported function code: 0x%02X", modbus.ErrEncoding, r.FunctionCode)
	}
	adu := &ApplicationDataUnit{SlaveID: r.SlaveID, Pdu: modbus.ProtocolDataUnit{FunctionCode: r.FunctionCode, Data: data}}
	return adu.Encode()
}
