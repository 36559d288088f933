// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu/modbus"
)

const (
	maxFrameSize = 256
	// flushLimit bounds Flush on a line that never goes quiet.
	flushLimit = 4 * maxFrameSize
)

// IdleReader turns a blocking byte stream into idle-delimited frames. A pump
// goroutine moves bytes from the stream into a channel so that a receive can
// be abandoned on timeout or cancellation without losing the stream.
//
// IdleReader is not safe for concurrent use; the master engine serializes
// exchanges.
type IdleReader struct {
	r       io.Reader
	silence time.Duration
	// ignore reports read errors that only mean "no data yet", such as a
	// serial driver read timeout.
	ignore func(error) bool

	chunks    chan []byte
	errc      chan error
	done     chan struct{}
	stopOnce sync.Once

	pending []byte
	err     error
}

// NewIdleReader returns a reader delimiting frames on r by silence. It starts
// consuming r immediately; call Stop to release it.
func NewIdleReader(r io.Reader, silence time.Duration, ignore func(error) bool) *IdleReader {
	ir := &IdleReader{
		r:       r,
		silence: silence,
		ignore:  ignore,
		chunks:  make(chan []byte, 64),
		errc:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go ir.pump()
	return ir
}

func (ir *IdleReader) pump() {
	buf := make([]byte, maxFrameSize)
	for {
		n, err := ir.r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case ir.chunks <- chunk:
			case <-ir.done:
				return
			}
		}
		if err != nil {
			if ir.ignore != nil && ir.ignore(err) {
				continue
			}
			select {
			case ir.errc <- err:
			case <-ir.done:
			}
			return
		}
	}
}

// ReadUntilIdle implements the receive half of Transport. A read failure is
// sticky: once the stream failed every later call returns *modbus.IOError.
func (ir *IdleReader) ReadUntilIdle(ctx context.Context, maxBytes int, timeout time.Duration) ([]byte, error) {
	if ir.err != nil {
		return nil, &modbus.IOError{Op: "read", Err: ir.err}
	}
	if maxBytes <= 0 || maxBytes > maxFrameSize {
		maxBytes = maxFrameSize
	}

	first := time.NewTimer(timeout)
	defer first.Stop()
	firstC := first.C

	var idle *time.Timer
	var idleC <-chan time.Time
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()

	var buf []byte
	add := func(b []byte) bool {
		buf = append(buf, b...)
		if len(buf) >= maxBytes {
			ir.pending = append(ir.pending, buf[maxBytes:]...)
			buf = buf[:maxBytes]
			return true
		}
		firstC = nil
		if idle != nil {
			idle.Stop()
		}
		idle = time.NewTimer(ir.silence)
		idleC = idle.C
		return false
	}

	if len(ir.pending) > 0 {
		leftover := ir.pending
		ir.pending = nil
		if add(leftover) {
			return buf, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-firstC:
			return nil, fmt.Errorf("%w: no reply within %v", modbus.ErrTimeout, timeout)
		case <-idleC:
			return buf, nil
		case chunk := <-ir.chunks:
			if add(chunk) {
				return buf, nil
			}
		case err := <-ir.errc:
			ir.err = err
			// the pump queues data before the error that stopped it
			for drained := false; !drained; {
				select {
				case chunk := <-ir.chunks:
					if add(chunk) {
						return buf, nil
					}
				default:
					drained = true
				}
			}
			if len(buf) > 0 {
				return buf, nil
			}
			return nil, &modbus.IOError{Op: "read", Err: err}
		}
	}
}

// Flush discards input until the line has been quiet for one silent interval
// and returns the number of bytes dropped.
func (ir *IdleReader) Flush() int {
	n := len(ir.pending)
	ir.pending = nil

	quiet := time.NewTimer(ir.silence)
	defer quiet.Stop()
	for n < flushLimit {
		select {
		case chunk := <-ir.chunks:
			n += len(chunk)
			if !quiet.Stop() {
				<-quiet.C
			}
			quiet.Reset(ir.silence)
		case <-quiet.C:
			return n
		}
	}
	return n
}

// Err returns the read failure that stopped the pump, if any.
func (ir *IdleReader) Err() error {
	return ir.err
}

// Stop releases the pump goroutine. The underlying stream must be closed to
// unblock a pending Read.
func (ir *IdleReader) Stop() {
	ir.stopOnce.Do(func() { close(ir.done) })
}
