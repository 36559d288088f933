// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"

	"github.com/ffutop/modbus-rtu/internal/local-slave/model"
)

// Storage defines the interface for persisting the local slave data model.
type Storage interface {
	// Load returns the stored data model, or a zeroed one when nothing is stored yet.
	Load() (*model.DataModel, error)

	// Save writes the whole data model to storage.
	Save(model *model.DataModel) error

	// OnWrite is called after quantity registers of table were modified.
	OnWrite(table model.TableType, address, quantity uint16)

	// Close releases the backing resources.
	Close() error
}

// New returns the storage named by kind ("memory", "file" or "mmap").
func New(kind, path string) (Storage, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file":
		if path == "" {
			return nil, fmt.Errorf("file persistence requires a path")
		}
		return NewFileStorage(path), nil
	case "mmap":
		if path == "" {
			return nil, fmt.Errorf("mmap persistence requires a path")
		}
		return NewMmapStorage(path), nil
	}
	return nil, fmt.Errorf("unknown persistence type %q", kind)
}
