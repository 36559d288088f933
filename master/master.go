// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package master drives Modbus RTU request/response exchanges over a
transport. Each operation is one complete exchange:

	Idle -> Sending -> AwaitingReply -> Decoding -> Success | SlaveException | Failed

Exchanges are serialized; there is never more than one request outstanding
on the transport. The engine does not retry, see package session.
*/
package master

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/transport"
)

const defaultTimeout = time.Second

// State is a step of the exchange state machine.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingReply
	StateDecoding
	StateSuccess
	StateSlaveException
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting-reply"
	case StateDecoding:
		return "decoding"
	case StateSuccess:
		return "success"
	case StateSlaveException:
		return "slave-exception"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Config holds the timing of an exchange.
type Config struct {
	// Timeout bounds the wait for the first reply byte.
	Timeout time.Duration
	// SilentInterval is the minimum line idle time between frames.
	SilentInterval time.Duration
	// RejectWhenBusy fails a call with modbus.ErrBusy instead of queueing
	// it behind the exchange in flight.
	RejectWhenBusy bool
}

// Master is the RTU master engine. It owns its transport exclusively.
type Master struct {
	tr  transport.Transport
	cfg Config

	// sem holds a token while an exchange owns the transport.
	sem          chan struct{}
	lastActivity time.Time
}

// New returns an engine driving tr.
func New(tr transport.Transport, cfg Config) *Master {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Master{
		tr:  tr,
		cfg: cfg,
		sem: make(chan struct{}, 1),
	}
}

func (m *Master) acquire(ctx context.Context) error {
	if m.cfg.RejectWhenBusy {
		select {
		case m.sem <- struct{}{}:
			return nil
		default:
			return modbus.ErrBusy
		}
	}
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Master) release() {
	<-m.sem
}

// Execute runs one exchange for req. It returns the decoded response, or nil
// for a broadcast. A slave exception is returned as *modbus.ExceptionError
// together with the response that carried it.
func (m *Master) Execute(ctx context.Context, req *rtu.Request) (*rtu.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	frame, err := req.Encode()
	if err != nil {
		return nil, err
	}

	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	return m.exchange(ctx, req, frame)
}

// exchange runs the state machine. Caller must hold the token.
func (m *Master) exchange(ctx context.Context, req *rtu.Request, frame []byte) (*rtu.Response, error) {
	log := slog.With("slave", req.SlaveID, "function", modbus.FunctionName(req.FunctionCode))
	fail := func(err error) (*rtu.Response, error) {
		log.Debug("exchange finished", "state", StateFailed, "err", err)
		return nil, err
	}

	if err := m.waitSilence(ctx); err != nil {
		return fail(err)
	}

	log.Debug("exchange state", "state", StateSending, "request", hex.EncodeToString(frame))
	// a cancelled or failed exchange may have left bytes behind
	if err := m.tr.Flush(); err != nil {
		return fail(err)
	}
	err := m.tr.Write(ctx, frame)
	m.lastActivity = time.Now()
	if err != nil {
		return fail(err)
	}

	if req.Broadcast() {
		log.Debug("exchange finished", "state", StateSuccess, "broadcast", true)
		return nil, nil
	}

	log.Debug("exchange state", "state", StateAwaitingReply, "timeout", m.cfg.Timeout)
	maxBytes := rtu.CalculateResponseLength(frame)
	if maxBytes == 0 {
		maxBytes = rtu.MaxSize
	}
	raw, err := m.tr.ReadUntilIdle(ctx, maxBytes, m.cfg.Timeout)
	m.lastActivity = time.Now()
	if err != nil {
		return fail(err)
	}

	log.Debug("exchange state", "state", StateDecoding, "response", hex.EncodeToString(raw))
	adu, err := rtu.Decode(raw)
	if err != nil {
		return fail(err)
	}
	// cross-talk is decided on address and function before the payload is trusted
	sent := rtu.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode}}
	if err := sent.Verify(adu); err != nil {
		return fail(err)
	}
	resp, err := rtu.ParseResponse(adu)
	if err != nil {
		return fail(err)
	}
	if err := req.Match(resp); err != nil {
		return fail(err)
	}
	if err := resp.Err(); err != nil {
		log.Debug("exchange finished", "state", StateSlaveException, "err", err)
		return resp, err
	}

	log.Debug("exchange finished", "state", StateSuccess)
	return resp, nil
}

// waitSilence delays until the line has been idle for one silent interval.
func (m *Master) waitSilence(ctx context.Context) error {
	if m.cfg.SilentInterval <= 0 || m.lastActivity.IsZero() {
		return nil
	}
	wait := m.cfg.SilentInterval - time.Since(m.lastActivity)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Flush discards stale input on the transport. It waits for any exchange
// in flight to complete.
func (m *Master) Flush(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer m.release()
	return m.tr.Flush()
}

// ReadHoldingRegisters reads quantity holding registers (0x03) starting at address.
func (m *Master) ReadHoldingRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	return registers(m.Execute(ctx, rtu.NewReadHoldingRegisters(slaveID, address, quantity)))
}

// ReadInputRegisters reads quantity input registers (0x04) starting at address.
func (m *Master) ReadInputRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	return registers(m.Execute(ctx, rtu.NewReadInputRegisters(slaveID, address, quantity)))
}

// WriteSingleRegister writes value (0x06) to the register at address.
func (m *Master) WriteSingleRegister(ctx context.Context, slaveID byte, address, value uint16) error {
	_, err := m.Execute(ctx, rtu.NewWriteSingleRegister(slaveID, address, value))
	return err
}

// WriteMultipleRegisters writes values (0x10) starting at address.
func (m *Master) WriteMultipleRegisters(ctx context.Context, slaveID byte, address uint16, values []uint16) error {
	_, err := m.Execute(ctx, rtu.NewWriteMultipleRegisters(slaveID, address, values))
	return err
}

func registers(resp *rtu.Response, err error) ([]uint16, error) {
	if err != nil {
		return nil, err
	}
	return resp.Registers, nil
}
