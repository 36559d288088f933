// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535
)

// TableType represents the type of Modbus register table.
type TableType int

const (
	TableHoldingRegisters TableType = iota
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableHoldingRegisters:
		return "holding"
	case TableInputRegisters:
		return "input"
	}
	return fmt.Sprintf("table(%d)", int(t))
}

// DataModel holds the register tables of a simulated slave.
// Both tables cover the full 16-bit address space.
type DataModel struct {
	mu sync.RWMutex

	// 4x Holding Registers (Read/Write).
	HoldingRegisters []uint16
	// 3x Input Registers (Read Only from the bus).
	InputRegisters []uint16
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}
}

func (m *DataModel) table(t TableType) []uint16 {
	if t == TableInputRegisters {
		return m.InputRegisters
	}
	return m.HoldingRegisters
}

// Read returns a copy of quantity registers of table t starting at address.
func (m *DataModel) Read(t TableType, address, quantity uint16) ([]uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, int(quantity)); err != nil {
		return nil, err
	}
	out := make([]uint16, quantity)
	copy(out, m.table(t)[address:])
	return out, nil
}

// Write stores values into table t starting at address.
func (m *DataModel) Write(t TableType, address uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, len(values)); err != nil {
		return err
	}
	copy(m.table(t)[address:], values)
	return nil
}

// ReadHoldingRegisters reads a range of holding registers.
func (m *DataModel) ReadHoldingRegisters(address, quantity uint16) ([]uint16, error) {
	return m.Read(TableHoldingRegisters, address, quantity)
}

// ReadInputRegisters reads a range of input registers.
func (m *DataModel) ReadInputRegisters(address, quantity uint16) ([]uint16, error) {
	return m.Read(TableInputRegisters, address, quantity)
}

// WriteHoldingRegisters writes a range of holding registers.
func (m *DataModel) WriteHoldingRegisters(address uint16, values []uint16) error {
	return m.Write(TableHoldingRegisters, address, values)
}

func validateRange(address uint16, quantity int) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+quantity > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
