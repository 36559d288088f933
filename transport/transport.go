// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"time"
)

// Transport is the byte-level, half-duplex channel the master engine drives.
// RTU frames carry no length field for every function, so a reply ends when
// the line stays silent for one silent interval.
//
// Implementations report a missing reply as modbus.ErrTimeout and channel
// failures as *modbus.IOError.
type Transport interface {
	// Write sends one complete frame.
	Write(ctx context.Context, frame []byte) error
	// ReadUntilIdle waits up to timeout for the first byte, then collects
	// bytes until the line is idle or maxBytes have arrived.
	ReadUntilIdle(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error)
	// Flush discards any buffered input.
	Flush() error
}

// Connector opens and closes the underlying channel.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// Conn is a transport with an explicit lifecycle.
type Conn interface {
	Transport
	Connector
}
