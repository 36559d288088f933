// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/ffutop/modbus-rtu/internal/local-slave/model"
)

// On-disk layout, shared by file and mmap storage:
//
//	HoldingRegisters: 65536 * 2 bytes (Offset 0)
//	InputRegisters:   65536 * 2 bytes (Offset 131072)
//
// Total Size: 262144 bytes
const (
	sizeTable = (model.MaxAddress + 1) * 2
	totalSize = 2 * sizeTable

	offsetHolding = 0
	offsetInput   = offsetHolding + sizeTable
)

// tableOffset returns the byte offset of register address in table t.
func tableOffset(t model.TableType, address uint16) int64 {
	base := offsetHolding
	if t == model.TableInputRegisters {
		base = offsetInput
	}
	return int64(base) + int64(address)*2
}

// openSized opens path for read/write, creating it and fixing its size to
// the register layout.
func openSized(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize %s: %w", path, err)
		}
	}
	return f, nil
}

// mapBytesToModel constructs a DataModel whose register tables alias data.
// The uint16 views use the host's byte order, so a storage file is only
// portable between hosts of the same endianness.
func mapBytesToModel(data []byte) *model.DataModel {
	holding := data[offsetHolding : offsetHolding+sizeTable]
	input := data[offsetInput : offsetInput+sizeTable]
	return &model.DataModel{
		HoldingRegisters: unsafe.Slice((*uint16)(unsafe.Pointer(&holding[0])), sizeTable/2),
		InputRegisters:   unsafe.Slice((*uint16)(unsafe.Pointer(&input[0])), sizeTable/2),
	}
}
