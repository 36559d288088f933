// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/grid-x/serial"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/ffutop/modbus-rtu/modbus"
	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
)

var errNotConnected = errors.New("serial port not connected")

// Client is a serial line transport for the RTU master.
type Client struct {
	serialPort
}

// NewClient allocates and initializes a RTU Client.
func NewClient(cfg config.SerialConfig) *Client {
	client := &Client{}

	client.serialPort.Config = serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
		RS485: serial.RS485Config{
			Enabled:            cfg.RS485.Enabled,
			DelayRtsBeforeSend: cfg.RS485.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.RS485.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RS485.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RS485.RtsHighAfterSend,
			RxDuringTx:         cfg.RS485.RxDuringTx,
		},
	}
	client.Driver = cfg.Driver
	client.SilentInterval = cfg.SilentInterval
	if client.SilentInterval <= 0 {
		client.SilentInterval = rtupacket.SilentInterval(cfg.BaudRate)
	}
	client.IdleTimeout = cfg.IdleTimeout
	if client.IdleTimeout < 0 {
		client.IdleTimeout = serialIdleTimeout
	}
	return client
}

// Write opens the port if needed and sends one frame.
func (mb *Client) Write(ctx context.Context, frame []byte) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return &modbus.IOError{Op: "open", Err: err}
	}
	mb.lastActivity = time.Now()
	mb.startCloseTimer()

	slog.Debug("send to modbus slave", "device", mb.Config.Address, "request", hex.EncodeToString(frame))
	if _, err := mb.port.Write(frame); err != nil {
		return &modbus.IOError{Op: "write", Err: err}
	}
	return nil
}

// ReadUntilIdle collects one reply delimited by the silent interval.
func (mb *Client) ReadUntilIdle(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.reader == nil {
		return nil, &modbus.IOError{Op: "read", Err: errNotConnected}
	}
	data, err := mb.reader.ReadUntilIdle(ctx, maxBytes, timeout)
	mb.lastActivity = time.Now()
	if err != nil {
		return nil, err
	}
	slog.Debug("recv from modbus slave", "device", mb.Config.Address, "response", hex.EncodeToString(data))
	return data, nil
}

// Flush drops buffered bytes, including the driver's input queue when the
// driver supports it. A closed port has nothing to drop; opening it flushes.
func (mb *Client) Flush() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.flush(); err != nil {
		return &modbus.IOError{Op: "flush", Err: err}
	}
	return nil
}
