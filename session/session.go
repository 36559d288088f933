// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package session wraps the master engine with bounded retries and the
// transport lifecycle.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ffutop/modbus-rtu/master"
	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/transport"
)

// DefaultRetryCount is the number of additional attempts after a transient failure.
const DefaultRetryCount = 3

// Config holds the retry policy and the engine timing.
type Config struct {
	RetryCount int
	RetryPause time.Duration
	Master     master.Config
}

// Session owns one transport and the engine driving it.
type Session struct {
	ID uuid.UUID

	cfg       Config
	engine    *master.Master
	connector transport.Connector
	log       *slog.Logger
}

// New creates a session on tr. When tr also implements transport.Connector,
// a fatal I/O error closes it and the next exchange reopens it.
func New(tr transport.Transport, cfg Config) *Session {
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	id := uuid.New()
	s := &Session{
		ID:     id,
		cfg:    cfg,
		engine: master.New(tr, cfg.Master),
		log:    slog.With("session", id.String()),
	}
	if c, ok := tr.(transport.Connector); ok {
		s.connector = c
	}
	return s
}

// Retryable reports whether err is transient line trouble worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, modbus.ErrTimeout) ||
		errors.Is(err, modbus.ErrChecksum) ||
		errors.Is(err, modbus.ErrMalformedFrame) ||
		errors.Is(err, modbus.ErrMismatchedResponse)
}

// Connect opens the transport.
func (s *Session) Connect(ctx context.Context) error {
	if s.connector == nil {
		return nil
	}
	if err := s.connector.Connect(ctx); err != nil {
		return &modbus.IOError{Op: "connect", Err: err}
	}
	return nil
}

// Close closes the transport.
func (s *Session) Close() error {
	if s.connector == nil {
		return nil
	}
	return s.connector.Close()
}

// Execute runs req, retrying transient failures up to RetryCount times. The
// last error is returned unchanged.
func (s *Session) Execute(ctx context.Context, req *rtu.Request) (*rtu.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := s.engine.Execute(ctx, req)
		if err == nil {
			return resp, nil
		}

		if modbus.IsIOError(err) {
			s.log.Warn("transport failed, closing", "slave", req.SlaveID, "err", err)
			if cerr := s.Close(); cerr != nil {
				s.log.Debug("close failed", "err", cerr)
			}
			return resp, err
		}
		if !Retryable(err) || attempt >= s.cfg.RetryCount || ctx.Err() != nil {
			return resp, err
		}

		s.log.Warn("retrying request", "slave", req.SlaveID, "function", modbus.FunctionName(req.FunctionCode),
			"attempt", attempt+1, "retries", s.cfg.RetryCount, "err", err)
		if ferr := s.engine.Flush(ctx); ferr != nil {
			if modbus.IsIOError(ferr) {
				s.Close()
			}
			return nil, ferr
		}
		if err := sleep(ctx, s.cfg.RetryPause); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ReadHoldingRegisters reads quantity holding registers starting at address.
func (s *Session) ReadHoldingRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	resp, err := s.Execute(ctx, rtu.NewReadHoldingRegisters(slaveID, address, quantity))
	if err != nil {
		return nil, err
	}
	return resp.Registers, nil
}

// ReadInputRegisters reads quantity input registers starting at address.
func (s *Session) ReadInputRegisters(ctx context.Context, slaveID byte, address, quantity uint16) ([]uint16, error) {
	resp, err := s.Execute(ctx, rtu.NewReadInputRegisters(slaveID, address, quantity))
	if err != nil {
		return nil, err
	}
	return resp.Registers, nil
}

// WriteSingleRegister writes value to the register at address.
func (s *Session) WriteSingleRegister(ctx context.Context, slaveID byte, address, value uint16) error {
	_, err := s.Execute(ctx, rtu.NewWriteSingleRegister(slaveID, address, value))
	return err
}

// WriteMultipleRegisters writes values starting at address.
func (s *Session) WriteMultipleRegisters(ctx context.Context, slaveID byte, address uint16, values []uint16) error {
	_, err := s.Execute(ctx, rtu.NewWriteMultipleRegisters(slaveID, address, values))
	return err
}
