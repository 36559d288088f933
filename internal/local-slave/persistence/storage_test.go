// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/ffutop/modbus-rtu/internal/local-slave/model"
)

func TestNew(t *testing.T) {
	s, err := New("", "")
	assert.NilError(t, err)
	_, ok := s.(*MemoryStorage)
	assert.Check(t, ok, "default storage is %T", s)

	_, err = New("file", "")
	assert.ErrorContains(t, err, "requires a path")

	_, err = New("sql", "x.db")
	assert.ErrorContains(t, err, "unknown persistence type")
}

func TestStorage_Reload(t *testing.T) {
	for _, kind := range []string{"file", "mmap"} {
		t.Run(kind, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "registers.bin")

			s, err := New(kind, path)
			assert.NilError(t, err)
			m, err := s.Load()
			assert.NilError(t, err)

			assert.NilError(t, m.WriteHoldingRegisters(114, []uint16{10, 20, 30, 0, 1}))
			s.OnWrite(model.TableHoldingRegisters, 114, 5)
			assert.NilError(t, m.Write(model.TableInputRegisters, 0, []uint16{0xBEEF}))
			assert.NilError(t, s.Save(m))
			assert.NilError(t, s.Close())

			fi, err := os.Stat(path)
			assert.NilError(t, err)
			assert.Equal(t, fi.Size(), int64(totalSize))

			s, err = New(kind, path)
			assert.NilError(t, err)
			m, err = s.Load()
			assert.NilError(t, err)
			defer s.Close()

			got, err := m.ReadHoldingRegisters(114, 5)
			assert.NilError(t, err)
			assert.Check(t, is.DeepEqual(got, []uint16{10, 20, 30, 0, 1}))

			in, err := m.ReadInputRegisters(0, 1)
			assert.NilError(t, err)
			assert.Check(t, is.DeepEqual(in, []uint16{0xBEEF}))
		})
	}
}

func TestFileStorage_OnWriteOnlyTouchesRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.bin")
	s := NewFileStorage(path)
	m, err := s.Load()
	assert.NilError(t, err)
	defer s.Close()

	assert.NilError(t, m.WriteHoldingRegisters(0, []uint16{1, 2}))
	// only the first register is reported as written
	s.OnWrite(model.TableHoldingRegisters, 0, 1)

	raw, err := os.ReadFile(path)
	assert.NilError(t, err)
	assert.Check(t, raw[0] != 0 || raw[1] != 0, "first register not persisted")
	assert.Check(t, raw[2] == 0 && raw[3] == 0, "second register persisted early")
}
