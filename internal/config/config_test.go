// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
transport: rtu
slave_id: 17
retry_count: 5
retry_pause: 50ms
serial:
  device: /dev/ttyS1
  baud_rate: 19200
  parity: e
  stop_bits: 2
  timeout: 250ms
  rs485:
    enabled: true
    delay_rts_before_send: 2ms
log:
  level: debug
`)

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.SlaveID != 17 || cfg.RetryCount != 5 || cfg.RetryPause != 50*time.Millisecond {
		t.Errorf("unexpected top level: %+v", cfg)
	}
	s := cfg.Serial
	if s.Device != "/dev/ttyS1" || s.BaudRate != 19200 || s.Parity != "E" || s.StopBits != 2 || s.DataBits != 8 {
		t.Errorf("unexpected serial config: %+v", s)
	}
	if s.Timeout != 250*time.Millisecond {
		t.Errorf("Timeout = %v", s.Timeout)
	}
	if !s.RS485.Enabled || s.RS485.DelayRtsBeforeSend != 2*time.Millisecond {
		t.Errorf("unexpected rs485 config: %+v", s.RS485)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "log:\n  level: warn\n"), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Transport != "rtu" || cfg.SlaveID != 1 || cfg.RetryCount != 3 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	s := cfg.Serial
	if s.Device != "/dev/ttyUSB0" || s.BaudRate != 9600 || s.Parity != "O" || s.Timeout != time.Second || s.Driver != "gridx" {
		t.Errorf("unexpected serial defaults: %+v", s)
	}
	if cfg.Local.Persistence.Type != "memory" {
		t.Errorf("Local.Persistence.Type = %q", cfg.Local.Persistence.Type)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "slave_id: 4\nserial:\n  baud_rate: 19200\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--baud_rate", "38400", "--timeout", "2s", "-t", "local"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, fs)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Serial.BaudRate != 38400 {
		t.Errorf("BaudRate = %d, want flag value 38400", cfg.Serial.BaudRate)
	}
	if cfg.Serial.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Serial.Timeout)
	}
	if cfg.Transport != "local" {
		t.Errorf("Transport = %q", cfg.Transport)
	}
	// unset flags keep the file value
	if cfg.SlaveID != 4 {
		t.Errorf("SlaveID = %d, want file value 4", cfg.SlaveID)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"SlaveID", "slave_id: 248\n"},
		{"Parity", "serial:\n  parity: X\n"},
		{"StopBits", "serial:\n  stop_bits: 3\n"},
		{"RetryCount", "retry_count: -1\n"},
		{"Transport", "transport: tcp\n"},
		{"BridgeAddress", "transport: rtu-over-tcp\n"},
		{"Driver", "serial:\n  driver: tarm\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content), nil); err == nil {
				t.Errorf("LoadConfig(%q) succeeded, want error", tt.content)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Error("LoadConfig succeeded for a missing explicit file")
	}
}
