package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blethroughput/internal/device"
	"github.com/srg/blethroughput/internal/report"
	"github.com/srg/blethroughput/internal/throughput"
	"gopkg.in/yaml.v3"
)

// Accepted ranges.
const (
	MinIntervalMillis = 20
	MaxIntervalMillis = 4000
	MinMTU            = 23
	MaxMTU            = 250
	MinFixedTime      = 1
	MaxFixedTime      = 599
	MinFixedAmount    = 1000
	MaxFixedAmount    = 9_999_999
	MaxDeviceName     = 29 // 31 byte legacy payload minus the AD header
)

// Config holds application configuration. Zero values are replaced with the
// `default` tags; a YAML profile and then CLI flags override them.
type Config struct {
	LogLevel string `yaml:"log_level" default:"error"`
	Format   string `yaml:"format" default:"text"`

	DeviceName   string `yaml:"device_name" default:"Throughput Tester"`
	Mode         string `yaml:"mode" default:"free"`
	FixedTime    uint32 `yaml:"time" default:"5"`
	FixedAmount  uint32 `yaml:"amount" default:"50000"`
	PHY          string `yaml:"phy" default:"1m"`
	IntervalMS   uint32 `yaml:"interval_ms" default:"50"`
	MTU          uint16 `yaml:"mtu" default:"250"`
	Subscription string `yaml:"subscription" default:"notification"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	QueueSize      int           `yaml:"queue_size" default:"512"`
	HistorySize    int           `yaml:"history_size" default:"16"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML profile over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML profile over the defaults. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if _, err := report.ParseFormat(c.Format); err != nil {
		errs = append(errs, err)
	}
	if c.DeviceName == "" {
		errs = append(errs, errors.New("device name must not be empty"))
	} else if len(c.DeviceName) > MaxDeviceName {
		errs = append(errs, fmt.Errorf("device name must be at most %d bytes", MaxDeviceName))
	}

	mode, err := throughput.ParseMode(c.Mode)
	if err != nil {
		errs = append(errs, err)
	}
	switch mode {
	case throughput.ModeFixedTime:
		if c.FixedTime < MinFixedTime || c.FixedTime > MaxFixedTime {
			errs = append(errs, fmt.Errorf("fixed time must be between %d and %d seconds, got %d", MinFixedTime, MaxFixedTime, c.FixedTime))
		}
	case throughput.ModeFixedAmount:
		if c.FixedAmount < MinFixedAmount || c.FixedAmount > MaxFixedAmount {
			errs = append(errs, fmt.Errorf("fixed amount must be between %d and %d bytes, got %d", MinFixedAmount, MaxFixedAmount, c.FixedAmount))
		}
	}

	if _, err := device.ParsePHY(c.PHY); err != nil {
		errs = append(errs, err)
	}
	if c.IntervalMS < MinIntervalMillis || c.IntervalMS > MaxIntervalMillis {
		errs = append(errs, fmt.Errorf("connection interval must be between %d and %d ms, got %d", MinIntervalMillis, MaxIntervalMillis, c.IntervalMS))
	}
	if c.MTU < MinMTU || c.MTU > MaxMTU {
		errs = append(errs, fmt.Errorf("MTU must be between %d and %d, got %d", MinMTU, MaxMTU, c.MTU))
	}
	if kind, err := device.ParseSubscriptionKind(c.Subscription); err != nil {
		errs = append(errs, err)
	} else if kind == device.SubscribeNone {
		errs = append(errs, errors.New("subscription must be notification or indication"))
	}

	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect timeout must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("queue size must be positive"))
	}
	if c.HistorySize <= 0 {
		errs = append(errs, errors.New("history size must be positive"))
	}

	return errors.Join(errs...)
}

// Session converts a validated config into the controller's session config.
func (c *Config) Session() (throughput.SessionConfig, error) {
	if err := c.Validate(); err != nil {
		return throughput.SessionConfig{}, err
	}

	mode, _ := throughput.ParseMode(c.Mode)
	phy, _ := device.ParsePHY(c.PHY)
	kind, _ := device.ParseSubscriptionKind(c.Subscription)

	s := throughput.DefaultSessionConfig()
	s.DeviceName = c.DeviceName
	s.ConnectionInterval = throughput.MillisToInterval(float64(c.IntervalMS))
	s.PHY = phy
	s.MTU = c.MTU
	s.Subscription = kind
	s.Mode = mode
	s.FixedTime = c.FixedTime
	s.FixedAmount = c.FixedAmount
	return s, nil
}

// OutputFormat returns the parsed report format.
func (c *Config) OutputFormat() report.Format {
	f, err := report.ParseFormat(c.Format)
	if err != nil {
		return report.FormatText
	}
	return f
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
