// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"
	bugst "go.bug.st/serial"

	"github.com/ffutop/modbus-rtu/transport"
)

const (
	// Default timeout
	serialIdleTimeout = 60 * time.Second
	// pollInterval bounds each driver read so the pump notices a closed port.
	pollInterval = 50 * time.Millisecond
)

// inputFlusher is implemented by drivers that can discard the kernel input buffer.
type inputFlusher interface {
	ResetInputBuffer() error
}

// serialPort has configuration and I/O controller.
type serialPort struct {
	// Serial port configuration.
	serial.Config

	Driver         string
	IdleTimeout    time.Duration
	SilentInterval time.Duration

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	reader       *transport.IdleReader
	lastActivity time.Time
	closeTimer   *time.Timer
}

func (sp *serialPort) Connect(ctx context.Context) (err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.connect(ctx)
}

// connect connects to the serial port if it is not connected. Caller must hold the mutex.
func (sp *serialPort) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if sp.port == nil {
		port, err := sp.open()
		if err != nil {
			return fmt.Errorf("could not open %s: %w", sp.Config.Address, err)
		}
		slog.Info("serial port opened", "device", sp.Config.Address, "driver", sp.Driver, "baudRate", sp.BaudRate, "parity", sp.Parity)
		sp.port = port
	}
	if sp.reader == nil {
		sp.reader = transport.NewIdleReader(sp.port, sp.SilentInterval, isReadTimeout)
		// whatever the line carried before we opened it is not a reply
		if err := sp.flush(); err != nil {
			return err
		}
	}
	return nil
}

// flush drops stale input. Caller must hold the mutex.
func (sp *serialPort) flush() error {
	if sp.reader != nil {
		if n := sp.reader.Flush(); n > 0 {
			slog.Debug("discarded stale input", "device", sp.Config.Address, "bytes", n)
		}
	}
	if f, ok := sp.port.(inputFlusher); ok {
		if err := f.ResetInputBuffer(); err != nil {
			return fmt.Errorf("reset input buffer: %w", err)
		}
	}
	return nil
}

func (sp *serialPort) open() (io.ReadWriteCloser, error) {
	switch sp.Driver {
	case "bugst":
		return openBugst(&sp.Config)
	default:
		cfg := sp.Config
		cfg.Timeout = pollInterval
		return serial.Open(&cfg)
	}
}

// openBugst opens the port with go.bug.st/serial, which can reset the input
// buffer but has no RS485 settings.
func openBugst(cfg *serial.Config) (io.ReadWriteCloser, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch cfg.Parity {
	case "E":
		mode.Parity = bugst.EvenParity
	case "O":
		mode.Parity = bugst.OddParity
	default:
		mode.Parity = bugst.NoParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	} else {
		mode.StopBits = bugst.OneStopBit
	}
	if cfg.RS485.Enabled {
		slog.Warn("RS485 settings are ignored by the bugst driver", "device", cfg.Address)
	}

	port, err := bugst.Open(cfg.Address, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// isReadTimeout reports driver errors that only mean no byte arrived in time.
func isReadTimeout(err error) bool {
	return errors.Is(err, serial.ErrTimeout)
}

func (sp *serialPort) Close() (err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.close()
}

// close closes the serial port if it is connected. Caller must hold the mutex.
func (sp *serialPort) close() (err error) {
	if sp.reader != nil {
		sp.reader.Stop()
		sp.reader = nil
	}
	if sp.port != nil {
		err = sp.port.Close()
		sp.port = nil
	}
	return
}

func (sp *serialPort) startCloseTimer() {
	if sp.IdleTimeout <= 0 {
		return
	}
	if sp.closeTimer == nil {
		sp.closeTimer = time.AfterFunc(sp.IdleTimeout, sp.closeIdle)
	} else {
		sp.closeTimer.Reset(sp.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (sp *serialPort) closeIdle() {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.IdleTimeout <= 0 || sp.port == nil {
		return
	}

	if idle := time.Since(sp.lastActivity); idle >= sp.IdleTimeout {
		slog.Debug("closing serial port due to idle timeout", "device", sp.Config.Address, "idle", idle)
		sp.close()
	}
}
