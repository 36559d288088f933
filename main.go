// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/ffutop/modbus-rtu/master"
	"github.com/ffutop/modbus-rtu/modbus"
	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
	"github.com/ffutop/modbus-rtu/session"
	"github.com/ffutop/modbus-rtu/transport"
	"github.com/ffutop/modbus-rtu/transport/local"
	"github.com/ffutop/modbus-rtu/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-rtu/transport/rtu-over-tcp"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute returns the process exit code. Resources it opens are released
// before it returns.
func execute(args []string) int {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.RegisterFlags(fs)
	start := fs.Uint16("start", 114, "First holding register to write and read back.")
	values := fs.UintSlice("values", []uint{10, 20, 30, 0, 1}, "Register values to write.")
	fs.Parse(args)

	configFile, _ := fs.GetString("config")
	cfg, err := config.LoadConfig(configFile, fs)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return 1
	}

	setupLogger(cfg.Log)

	regs, err := toRegisters(*values)
	if err != nil {
		slog.Error("Invalid --values", "err", err)
		return 2
	}

	tr, mcfg, err := newTransport(cfg)
	if err != nil {
		slog.Error("Failed to create transport", "transport", cfg.Transport, "err", err)
		return 1
	}
	mcfg.RejectWhenBusy = cfg.RejectWhenBusy

	s := session.New(tr, session.Config{
		RetryCount: cfg.RetryCount,
		RetryPause: cfg.RetryPause,
		Master:     mcfg,
	})
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting Modbus RTU master", "session", s.ID, "transport", cfg.Transport, "slave", cfg.SlaveID)
	if err := s.Connect(ctx); err != nil {
		slog.Error("Failed to connect", "err", err)
		return 1
	}

	if err := run(ctx, s, byte(cfg.SlaveID), *start, regs); err != nil {
		report(err)
		return 1
	}
	slog.Info("Goodbye.")
	return 0
}

// run writes regs at start, then reads them back and compares.
func run(ctx context.Context, s *session.Session, slaveID byte, start uint16, regs []uint16) error {
	if err := s.WriteMultipleRegisters(ctx, slaveID, start, regs); err != nil {
		return fmt.Errorf("write registers: %w", err)
	}
	slog.Info("Registers written", "slave", slaveID, "start", start, "values", regs)

	if slaveID == modbus.BroadcastAddress {
		return nil
	}
	got, err := s.ReadHoldingRegisters(ctx, slaveID, start, uint16(len(regs)))
	if err != nil {
		return fmt.Errorf("read registers: %w", err)
	}
	slog.Info("Registers read", "slave", slaveID, "start", start, "values", got)

	if !slices.Equal(got, regs) {
		return fmt.Errorf("read back %v, wrote %v", got, regs)
	}
	return nil
}

func report(err error) {
	if exc, ok := modbus.AsException(err); ok {
		slog.Error("Slave rejected request", "slave", exc.SlaveID, "kind", exc.Kind().String(), "code", byte(exc.ExceptionCode))
		return
	}
	switch {
	case errors.Is(err, modbus.ErrTimeout):
		slog.Error("Slave did not respond", "err", err)
	case errors.Is(err, modbus.ErrInvalidArgument):
		slog.Error("Invalid request", "err", err)
	case modbus.IsIOError(err):
		slog.Error("Transport failure", "err", err)
	default:
		slog.Error("Exchange failed", "err", err)
	}
}

func toRegisters(values []uint) ([]uint16, error) {
	regs := make([]uint16, len(values))
	for i, v := range values {
		if v > 0xFFFF {
			return nil, fmt.Errorf("value %d at index %d exceeds 16 bits", v, i)
		}
		regs[i] = uint16(v)
	}
	return regs, nil
}

// newTransport builds the transport selected by cfg.Transport along with the
// exchange timing that suits it.
func newTransport(cfg *config.Config) (transport.Transport, master.Config, error) {
	switch cfg.Transport {
	case "rtu":
		client := rtu.NewClient(cfg.Serial)
		return client, master.Config{Timeout: cfg.Serial.Timeout, SilentInterval: client.SilentInterval}, nil
	case "rtu-over-tcp":
		client := rtuovertcp.NewClientFromConfig(cfg.Tcp)
		return client, master.Config{Timeout: client.Timeout, SilentInterval: client.SilentInterval}, nil
	case "local":
		client, err := local.NewClient(cfg.Local)
		if err != nil {
			return nil, master.Config{}, err
		}
		return client, master.Config{Timeout: cfg.Serial.Timeout, SilentInterval: rtupacket.SilentInterval(cfg.Serial.BaudRate)}, nil
	}
	return nil, master.Config{}, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
