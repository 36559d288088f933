// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Transport      string        `mapstructure:"transport"`        // "rtu", "rtu-over-tcp", "local"
	SlaveID        int           `mapstructure:"slave_id"`         // Default device id
	RetryCount     int           `mapstructure:"retry_count"`      // Additional attempts after a transient failure
	RetryPause     time.Duration `mapstructure:"retry_pause"`      // Pause before each retry
	RejectWhenBusy bool          `mapstructure:"reject_when_busy"` // Fail concurrent callers instead of queueing

	Serial SerialConfig `mapstructure:"serial"` // Used if Transport is "rtu"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Transport is "rtu-over-tcp"
	Local  LocalConfig  `mapstructure:"local"`  // Used if Transport is "local"
	Log    LogConfig    `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device         string        `mapstructure:"device"`
	Driver         string        `mapstructure:"driver"` // "gridx" (default) or "bugst"
	BaudRate       int           `mapstructure:"baud_rate"`
	DataBits       int           `mapstructure:"data_bits"`
	Parity         string        `mapstructure:"parity"`
	StopBits       int           `mapstructure:"stop_bits"`
	Timeout        time.Duration `mapstructure:"timeout"`         // Response timeout
	SilentInterval time.Duration `mapstructure:"silent_interval"` // 0 derives t3.5 from BaudRate
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`    // Close the port after inactivity, 0 keeps it open

	RS485 RS485Config `mapstructure:"rs485"`
}

// RS485Config is passed through to the serial driver.
type RS485Config struct {
	Enabled            bool          `mapstructure:"enabled"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// TcpConfig defines the TCP-to-serial bridge settings
type TcpConfig struct {
	Address        string        `mapstructure:"address"` // e.g. "192.168.1.100:4001"
	Timeout        time.Duration `mapstructure:"timeout"` // Dial and response timeout
	SilentInterval time.Duration `mapstructure:"silent_interval"`
}

// LocalConfig defines settings for the simulated slave device
type LocalConfig struct {
	SlaveID     int               `mapstructure:"slave_id"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", "rtu")
	v.SetDefault("slave_id", 1)
	v.SetDefault("retry_count", 3)
	v.SetDefault("retry_pause", 0)
	v.SetDefault("reject_when_busy", false)

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.driver", "gridx")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "O")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", time.Second)
	v.SetDefault("serial.idle_timeout", 60*time.Second)

	v.SetDefault("tcp.timeout", time.Second)

	v.SetDefault("local.slave_id", 1)
	v.SetDefault("local.persistence.type", "memory")

	v.SetDefault("log.level", "info")
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"transport":   "transport",
	"slave_id":    "slave_id",
	"retry_count": "retry_count",
	"device":      "serial.device",
	"baud_rate":   "serial.baud_rate",
	"parity":      "serial.parity",
	"timeout":     "serial.timeout",
	"address":     "tcp.address",
	"log_level":   "log.level",
	"log_file":    "log.file",
}

// RegisterFlags defines the command-line overrides understood by LoadConfig.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("transport", "t", "rtu", "Transport: rtu, rtu-over-tcp or local.")
	fs.IntP("slave_id", "a", 1, "Slave address of the device.")
	fs.IntP("retry_count", "N", 3, "Maximum number of retries.")
	fs.StringP("device", "p", "/dev/ttyUSB0", "Serial port device name.")
	fs.IntP("baud_rate", "s", 9600, "Serial port speed.")
	fs.String("parity", "O", "Serial port parity (N, E, O).")
	fs.DurationP("timeout", "W", time.Second, "Response wait time.")
	fs.String("address", "", "TCP-to-serial bridge address (host:port).")
	fs.StringP("log_level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log_file", "L", "", "Log file name ('-' for logging to STDOUT only).")
}

// LoadConfig loads configuration from defaults, an optional file and the
// flags registered with RegisterFlags. Only flags set on the command line
// override the file. fs may be nil.
func LoadConfig(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbusrtu/")
		v.AddConfigPath("$HOME/.modbusrtu")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit file must exist; the search path is optional
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	s.Driver = strings.ToLower(s.Driver)
	if s.Timeout == 0 {
		s.Timeout = time.Second
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Transport {
	case "rtu", "rtu-over-tcp", "local":
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.SlaveID < 0 || c.SlaveID > 247 {
		return fmt.Errorf("slave_id %d out of range 0-247", c.SlaveID)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry_count must not be negative")
	}

	switch c.Serial.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity %q", c.Serial.Parity)
	}
	if c.Serial.DataBits < 5 || c.Serial.DataBits > 8 {
		return fmt.Errorf("invalid data_bits %d", c.Serial.DataBits)
	}
	if c.Serial.StopBits != 1 && c.Serial.StopBits != 2 {
		return fmt.Errorf("invalid stop_bits %d", c.Serial.StopBits)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("invalid baud_rate %d", c.Serial.BaudRate)
	}
	switch c.Serial.Driver {
	case "gridx", "bugst":
	default:
		return fmt.Errorf("unknown serial driver %q", c.Serial.Driver)
	}

	if c.Transport == "rtu-over-tcp" && c.Tcp.Address == "" {
		return fmt.Errorf("tcp.address is required for rtu-over-tcp")
	}
	if c.Local.SlaveID < 1 || c.Local.SlaveID > 247 {
		return fmt.Errorf("local.slave_id %d out of range 1-247", c.Local.SlaveID)
	}
	return nil
}
