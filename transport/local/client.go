// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu/internal/config"
	localslave "github.com/ffutop/modbus-rtu/internal/local-slave"
	"github.com/ffutop/modbus-rtu/internal/local-slave/persistence"
	"github.com/ffutop/modbus-rtu/modbus"
	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
)

// Client is an in-process transport wired to a simulated slave. Frames are
// decoded and answered the way a device on the line would: frames for other
// addresses and corrupted frames get no reply, broadcasts are executed
// silently.
type Client struct {
	SlaveID byte

	slave   *localslave.LocalSlave
	storage persistence.Storage

	mu      sync.Mutex
	replies [][]byte
}

// NewClient creates a new Local Client.
func NewClient(cfg config.LocalConfig) (*Client, error) {
	storage, err := persistence.New(cfg.Persistence.Type, cfg.Persistence.Path)
	if err != nil {
		return nil, err
	}
	slog.Info("Initializing local slave", "slaveID", cfg.SlaveID, "persistence", cfg.Persistence.Type, "path", cfg.Persistence.Path)

	m, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s persistence: %w", cfg.Persistence.Type, err)
	}
	return NewClientWithSlave(byte(cfg.SlaveID), localslave.NewLocalSlave(m, storage), storage), nil
}

// NewClientWithSlave wraps an existing slave.
func NewClientWithSlave(slaveID byte, slave *localslave.LocalSlave, storage persistence.Storage) *Client {
	return &Client{SlaveID: slaveID, slave: slave, storage: storage}
}

// Slave returns the simulated device.
func (c *Client) Slave() *localslave.LocalSlave {
	return c.slave
}

// Write hands the frame to the simulated slave.
func (c *Client) Write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Debug("send to local slave", "request", hex.EncodeToString(frame))

	adu, err := rtupacket.Decode(frame)
	if err != nil {
		slog.Debug("local slave dropped frame", "err", err)
		return nil
	}
	if adu.SlaveID != c.SlaveID && adu.SlaveID != modbus.BroadcastAddress {
		return nil
	}

	pdu := c.slave.Process(adu.Pdu)
	if adu.SlaveID == modbus.BroadcastAddress {
		return nil
	}
	reply, err := (&rtupacket.ApplicationDataUnit{SlaveID: c.SlaveID, Pdu: pdu}).Encode()
	if err != nil {
		return &modbus.IOError{Op: "write", Err: err}
	}

	c.mu.Lock()
	c.replies = append(c.replies, reply)
	c.mu.Unlock()
	return nil
}

// ReadUntilIdle returns the next queued reply, or times out like a silent line.
func (c *Client) ReadUntilIdle(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	c.mu.Lock()
	if len(c.replies) > 0 {
		reply := c.replies[0]
		c.replies = c.replies[1:]
		c.mu.Unlock()
		if maxBytes > 0 && len(reply) > maxBytes {
			reply = reply[:maxBytes]
		}
		slog.Debug("recv from local slave", "response", hex.EncodeToString(reply))
		return reply, nil
	}
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: no reply within %v", modbus.ErrTimeout, timeout)
	}
}

// Flush drops queued replies.
func (c *Client) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = nil
	return nil
}

// Connect is a no-op for local slave.
func (c *Client) Connect(ctx context.Context) error {
	return nil
}

// Close closes the storage.
func (c *Client) Close() error {
	return c.storage.Close()
}
