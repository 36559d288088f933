// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package modbus holds the protocol vocabulary shared by the RTU codec, the
master engine and the transports: function codes, exception codes, the
protocol data unit and the error taxonomy.
*/
package modbus

const (
	// FuncCodeReadHoldingRegisters 16-bit wise access
	FuncCodeReadHoldingRegisters = 0x03
	// FuncCodeReadInputRegisters 16-bit wise access
	FuncCodeReadInputRegisters = 0x04
	// FuncCodeWriteSingleRegister 16-bit wise access
	FuncCodeWriteSingleRegister = 0x06
	// FuncCodeWriteMultipleRegisters 16-bit wise access
	FuncCodeWriteMultipleRegisters = 0x10

	// ExceptionFlag is set on the function code of an exception response.
	ExceptionFlag = 0x80
)

// Protocol maxima for a single RTU frame.
const (
	MaxReadRegisters  = 125
	MaxWriteRegisters = 123
)

// Slave addressing.
const (
	BroadcastAddress = 0
	MaxSlaveAddress  = 247
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// IsException reports whether the PDU carries a slave exception.
func (pdu ProtocolDataUnit) IsException() bool {
	return pdu.FunctionCode&ExceptionFlag != 0
}

// ExceptionPDU builds the exception reply a slave sends for funcCode.
func ExceptionPDU(funcCode byte, code ExceptionCode) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: funcCode | ExceptionFlag,
		Data:         []byte{byte(code)},
	}
}

// FunctionName returns a short name for the supported function codes.
func FunctionName(code byte) string {
	switch code &^ ExceptionFlag {
	case FuncCodeReadHoldingRegisters:
		return "read holding registers"
	case FuncCodeReadInputRegisters:
		return "read input registers"
	case FuncCodeWriteSingleRegister:
		return "write single register"
	case FuncCodeWriteMultipleRegisters:
		return "write multiple registers"
	default:
		return "unsupported"
	}
}
