// Package config defines the CLI configuration structure.
package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/yndnr/tcpctl-go/internal/core/domain"
	"github.com/yndnr/tcpctl-go/internal/infra/netsock"
)

// Supported output formats.
var outputFormats = []string{"table", "json", "yaml"}

// Supported log levels and formats.
var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// CLIConfig is the configuration for tcpctl (~/.tcpctl/cli.yaml).
type CLIConfig struct {
	// DefaultPort is used by open when no port is given.
	DefaultPort uint16 `koanf:"default_port" json:"default_port" yaml:"default_port"`

	// Family is the address family used by open without -6 (ipv4, ipv6).
	Family string `koanf:"family" json:"family" yaml:"family"`

	// Output is the default output format (table, json, yaml).
	Output string `koanf:"output" json:"output" yaml:"output"`

	Log     LogConfig     `koanf:"log" json:"log" yaml:"log"`
	Resolve ResolveConfig `koanf:"resolve" json:"resolve" yaml:"resolve"`
	Connect ConnectConfig `koanf:"connect" json:"connect" yaml:"connect"`
	History HistoryConfig `koanf:"history" json:"history" yaml:"history"`
	UI      UIConfig      `koanf:"ui" json:"ui" yaml:"ui"`
}

// LogConfig controls diagnostics on stderr.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}

// ResolveConfig bounds name lookups.
type ResolveConfig struct {
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
}

// MarshalYAML writes durations in their text form.
func (r ResolveConfig) MarshalYAML() (any, error) {
	return map[string]string{"timeout": r.Timeout.String()}, nil
}

// MarshalJSON writes durations in their text form.
func (r ResolveConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"timeout": r.Timeout.String()})
}

// ConnectConfig paces connect retries after an interrupted system call.
type ConnectConfig struct {
	RetryInterval time.Duration `koanf:"retry_interval" json:"retry_interval" yaml:"retry_interval"`
	RetryBurst    int           `koanf:"retry_burst" json:"retry_burst" yaml:"retry_burst"`
}

// MarshalYAML writes durations in their text form.
func (c ConnectConfig) MarshalYAML() (any, error) {
	return struct {
		RetryInterval string `yaml:"retry_interval"`
		RetryBurst    int    `yaml:"retry_burst"`
	}{c.RetryInterval.String(), c.RetryBurst}, nil
}

// MarshalJSON writes durations in their text form.
func (c ConnectConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RetryInterval string `json:"retry_interval"`
		RetryBurst    int    `json:"retry_burst"`
	}{c.RetryInterval.String(), c.RetryBurst})
}

// HistoryConfig controls the REPL history file.
type HistoryConfig struct {
	File    string `koanf:"file" json:"file" yaml:"file"`
	MaxSize int    `koanf:"max_size" json:"max_size" yaml:"max_size"`
}

// UIConfig holds terminal presentation settings.
type UIConfig struct {
	Spinner bool `koanf:"spinner" json:"spinner" yaml:"spinner"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		DefaultPort: domain.DefaultPort,
		Family:      domain.FamilyIPv4.String(),
		Output:      "table",
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Resolve: ResolveConfig{
			Timeout: netsock.DefaultResolveTimeout,
		},
		Connect: ConnectConfig{
			RetryInterval: 10 * time.Millisecond,
			RetryBurst:    1,
		},
		History: HistoryConfig{
			File:    DefaultHistoryPath(),
			MaxSize: 1000,
		},
	}
}

// defaultsMap flattens Default() into koanf keys.
func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"default_port":           int(d.DefaultPort),
		"family":                 d.Family,
		"output":                 d.Output,
		"log.level":              d.Log.Level,
		"log.format":             d.Log.Format,
		"resolve.timeout":        d.Resolve.Timeout.String(),
		"connect.retry_interval": d.Connect.RetryInterval.String(),
		"connect.retry_burst":    d.Connect.RetryBurst,
		"history.file":           d.History.File,
		"history.max_size":       d.History.MaxSize,
		"ui.spinner":             d.UI.Spinner,
	}
}

// AddressFamily returns the parsed Family setting.
func (c *CLIConfig) AddressFamily() domain.Family {
	f, _ := domain.ParseFamily(c.Family)
	return f
}

// Validate checks that every setting is usable.
func (c *CLIConfig) Validate() error {
	if c.DefaultPort == 0 {
		return domain.ErrInvalidArgument.WithDetails("default_port must be 1-65535")
	}
	if _, err := domain.ParseFamily(c.Family); err != nil {
		return err
	}
	if !slices.Contains(outputFormats, strings.ToLower(c.Output)) {
		return domain.ErrInvalidArgument.WithDetails(
			fmt.Sprintf("output must be one of %s, got %q", strings.Join(outputFormats, ", "), c.Output))
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return domain.ErrInvalidArgument.WithDetails(
			fmt.Sprintf("log.level must be one of %s, got %q", strings.Join(logLevels, ", "), c.Log.Level))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		return domain.ErrInvalidArgument.WithDetails(
			fmt.Sprintf("log.format must be one of %s, got %q", strings.Join(logFormats, ", "), c.Log.Format))
	}
	if c.Resolve.Timeout < 0 {
		return domain.ErrInvalidArgument.WithDetails("resolve.timeout must not be negative")
	}
	if c.Connect.RetryInterval < 0 {
		return domain.ErrInvalidArgument.WithDetails("connect.retry_interval must not be negative")
	}
	if c.Connect.RetryBurst < 1 {
		return domain.ErrInvalidArgument.WithDetails("connect.retry_burst must be at least 1")
	}
	if c.History.MaxSize < 0 {
		return domain.ErrInvalidArgument.WithDetails("history.max_size must not be negative")
	}
	return nil
}
