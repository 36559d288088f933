// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// ExceptionCode is the single data byte of a slave exception response.
type ExceptionCode byte

const (
	ExceptionCodeIllegalFunction                    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue                   ExceptionCode = 0x03
	ExceptionCodeServerDeviceFailure                ExceptionCode = 0x04
	ExceptionCodeAcknowledge                        ExceptionCode = 0x05
	ExceptionCodeServerDeviceBusy                   ExceptionCode = 0x06
	ExceptionCodeMemoryParityError                  ExceptionCode = 0x08
	ExceptionCodeGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

// ExceptionKind classifies an exception code.
type ExceptionKind int

const (
	UnknownSlaveException ExceptionKind = iota
	IllegalFunction
	IllegalDataAddress
	IllegalDataValue
	SlaveDeviceFailure
	Acknowledge
	SlaveDeviceBusy
	MemoryParityError
	GatewayPathUnavailable
	GatewayTargetFailedToRespond
)

var exceptionKinds = map[ExceptionCode]ExceptionKind{
	ExceptionCodeIllegalFunction:                    IllegalFunction,
	ExceptionCodeIllegalDataAddress:                 IllegalDataAddress,
	ExceptionCodeIllegalDataValue:                   IllegalDataValue,
	ExceptionCodeServerDeviceFailure:                SlaveDeviceFailure,
	ExceptionCodeAcknowledge:                        Acknowledge,
	ExceptionCodeServerDeviceBusy:                   SlaveDeviceBusy,
	ExceptionCodeMemoryParityError:                  MemoryParityError,
	ExceptionCodeGatewayPathUnavailable:             GatewayPathUnavailable,
	ExceptionCodeGatewayTargetDeviceFailedToRespond: GatewayTargetFailedToRespond,
}

// Kind maps the code to its exception kind. Unrecognized codes map to
// UnknownSlaveException.
func (c ExceptionCode) Kind() ExceptionKind {
	if k, ok := exceptionKinds[c]; ok {
		return k
	}
	return UnknownSlaveException
}

func (k ExceptionKind) String() string {
	switch k {
	case IllegalFunction:
		return "illegal function"
	case IllegalDataAddress:
		return "illegal data address"
	case IllegalDataValue:
		return "illegal data value"
	case SlaveDeviceFailure:
		return "slave device failure"
	case Acknowledge:
		return "acknowledge"
	case SlaveDeviceBusy:
		return "slave device busy"
	case MemoryParityError:
		return "memory parity error"
	case GatewayPathUnavailable:
		return "gateway path unavailable"
	case GatewayTargetFailedToRespond:
		return "gateway target device failed to respond"
	default:
		return "unknown"
	}
}

// ExceptionError is returned when the addressed slave answered with an
// exception response.
type ExceptionError struct {
	SlaveID       byte
	FunctionCode  byte
	ExceptionCode ExceptionCode
}

// Kind returns the decoded exception kind.
func (e *ExceptionError) Kind() ExceptionKind {
	return e.ExceptionCode.Kind()
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception '%v' (%s), slave '%v', function '%v'",
		byte(e.ExceptionCode), e.Kind(), e.SlaveID, e.FunctionCode&^ExceptionFlag)
}
