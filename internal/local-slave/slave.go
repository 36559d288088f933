// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package localslave

import (
	"github.com/ffutop/modbus-rtu/internal/local-slave/model"
	"github.com/ffutop/modbus-rtu/internal/local-slave/persistence"
	"github.com/ffutop/modbus-rtu/modbus"
	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
)

// LocalSlave answers register requests from a DataModel.
type LocalSlave struct {
	model   *model.DataModel
	storage persistence.Storage
}

// NewLocalSlave creates a new LocalSlave. storage may be nil.
func NewLocalSlave(m *model.DataModel, storage persistence.Storage) *LocalSlave {
	if storage == nil {
		storage = persistence.NewMemoryStorage()
	}
	return &LocalSlave{model: m, storage: storage}
}

// Model returns the register tables served by the slave.
func (s *LocalSlave) Model() *model.DataModel {
	return s.model
}

// Process executes the request PDU against the register tables and returns
// the reply PDU, which is an exception PDU when the request is rejected.
func (s *LocalSlave) Process(pdu modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch pdu.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleRegister,
		modbus.FuncCodeWriteMultipleRegisters:
	default:
		return modbus.ExceptionPDU(pdu.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}

	req, err := rtupacket.ParseRequest(&rtupacket.ApplicationDataUnit{Pdu: pdu})
	if err != nil {
		return modbus.ExceptionPDU(pdu.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if code, ok := checkRequest(req); !ok {
		return modbus.ExceptionPDU(pdu.FunctionCode, code)
	}

	resp := &rtupacket.Response{FunctionCode: req.FunctionCode}
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		resp.Registers, err = s.model.ReadHoldingRegisters(req.Address, req.Quantity)
	case modbus.FuncCodeReadInputRegisters:
		resp.Registers, err = s.model.ReadInputRegisters(req.Address, req.Quantity)
	case modbus.FuncCodeWriteSingleRegister:
		resp.Address, resp.Value = req.Address, req.Values[0]
		err = s.write(req.Address, req.Values)
	case modbus.FuncCodeWriteMultipleRegisters:
		resp.Address, resp.Value = req.Address, req.Quantity
		err = s.write(req.Address, req.Values)
	}
	if err != nil {
		return modbus.ExceptionPDU(pdu.FunctionCode, modbus.ExceptionCodeServerDeviceFailure)
	}

	raw, err := resp.Encode()
	if err != nil {
		return modbus.ExceptionPDU(pdu.FunctionCode, modbus.ExceptionCodeServerDeviceFailure)
	}
	// strip slave address and CRC
	return modbus.ProtocolDataUnit{FunctionCode: raw[1], Data: raw[2 : len(raw)-2]}
}

func (s *LocalSlave) write(address uint16, values []uint16) error {
	if err := s.model.WriteHoldingRegisters(address, values); err != nil {
		return err
	}
	s.storage.OnWrite(model.TableHoldingRegisters, address, uint16(len(values)))
	return nil
}

// checkRequest reports the exception a slave raises for req: a bad quantity
// is an illegal value, a range past the register space an illegal address.
func checkRequest(req *rtupacket.Request) (modbus.ExceptionCode, bool) {
	count, max := 1, 1
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		count, max = int(req.Quantity), modbus.MaxReadRegisters
	case modbus.FuncCodeWriteMultipleRegisters:
		count, max = len(req.Values), modbus.MaxWriteRegisters
	}
	if count < 1 || count > max {
		return modbus.ExceptionCodeIllegalDataValue, false
	}
	if int(req.Address)+count > model.MaxAddress+1 {
		return modbus.ExceptionCodeIllegalDataAddress, false
	}
	return 0, true
}
