// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/modbus-rtu/internal/local-slave/model"
)

// FileStorage keeps the register image in memory and writes modified
// ranges back to a regular file.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the register image, creating an empty one if needed.
func (fs *FileStorage) Load() (*model.DataModel, error) {
	f, err := openSized(fs.path)
	if err != nil {
		return nil, err
	}

	data := make([]byte, totalSize)
	if _, err := io.ReadFull(f, data); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", fs.path, err)
	}
	fs.file = f
	fs.data = data
	return mapBytesToModel(data), nil
}

// Save writes the whole image and syncs it to disk.
func (fs *FileStorage) Save(*model.DataModel) error {
	if fs.file == nil {
		return nil
	}
	if _, err := fs.file.WriteAt(fs.data, 0); err != nil {
		return fmt.Errorf("failed to write %s: %w", fs.path, err)
	}
	return fs.file.Sync()
}

// OnWrite writes the modified register range and syncs it to disk.
func (fs *FileStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if fs.file == nil {
		return
	}
	off := tableOffset(table, address)
	chunk := fs.data[off : off+int64(quantity)*2]
	if _, err := fs.file.WriteAt(chunk, off); err != nil {
		slog.Error("Failed to write registers", "path", fs.path, "table", table, "address", address, "err", err)
		return
	}
	if err := fs.file.Sync(); err != nil {
		slog.Error("Failed to sync file", "path", fs.path, "err", err)
	}
}

// Close closes the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
