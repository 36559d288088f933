// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/ffutop/modbus-rtu/modbus"
	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/transport"
)

const (
	tcpTimeout = 10 * time.Second
)

var errNotConnected = errors.New("not connected")

// Client carries RTU frames over a TCP-to-serial bridge. The byte stream is
// delimited by silence exactly like a serial line.
type Client struct {
	Address        string
	Timeout        time.Duration
	SilentInterval time.Duration

	mu     sync.Mutex
	conn   net.Conn
	reader *transport.IdleReader
}

// NewClient allocates and initializes a TCP Client.
func NewClient(address string) *Client {
	return &Client{
		Address:        address,
		Timeout:        tcpTimeout,
		SilentInterval: rtupacket.SilentInterval(0),
	}
}

// NewClientFromConfig applies the bridge settings from cfg.
func NewClientFromConfig(cfg config.TcpConfig) *Client {
	mb := NewClient(cfg.Address)
	if cfg.Timeout > 0 {
		mb.Timeout = cfg.Timeout
	}
	if cfg.SilentInterval > 0 {
		mb.SilentInterval = cfg.SilentInterval
	}
	return mb
}

// Write dials the bridge if needed and sends one frame.
func (mb *Client) Write(ctx context.Context, frame []byte) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return &modbus.IOError{Op: "dial", Err: err}
	}

	if err := mb.conn.SetWriteDeadline(time.Now().Add(mb.Timeout)); err != nil {
		mb.close()
		return &modbus.IOError{Op: "write", Err: err}
	}
	slog.Debug("send to modbus slave", "addr", mb.Address, "request", hex.EncodeToString(frame))
	if _, err := mb.conn.Write(frame); err != nil {
		// force a reconnect on the next exchange
		mb.close()
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
	if err != nil {
		if modbus.IsIOError(err) {
			mb.close()
		}
		return nil, err
	}
	slog.Debug("recv from modbus slave", "addr", mb.Address, "response", hex.EncodeToString(data))
	return data, nil
}

// Flush drops bytes received outside an exchange.
func (mb *Client) Flush() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.reader != nil {
		if n := mb.reader.Flush(); n > 0 {
			slog.Debug("discarded stale input", "addr", mb.Address, "bytes", n)
		}
	}
	return nil
}

// Connect implements transport.Connector.
func (mb *Client) Connect(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.connect(ctx)
}

// Close implements transport.Connector.
func (mb *Client) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.close()
	return nil
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (mb *Client) connect(ctx context.Context) error {
	if mb.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: mb.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", mb.Address)
	if err != nil {
		return err
	}
	slog.Info("connected to RTU over TCP bridge", "addr", mb.Address)
	mb.conn = conn
	mb.reader = transport.NewIdleReader(conn, mb.SilentInterval, nil)
	if n := mb.reader.Flush(); n > 0 {
		slog.Debug("discarded stale input", "addr", mb.Address, "bytes", n)
	}
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (mb *Client) close() {
	if mb.reader != nil {
		mb.reader.Stop()
		mb.reader = nil
	}
	if mb.conn != nil {
		mb.conn.Close()
		mb.conn = nil
	}
}
