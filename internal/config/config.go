// Package config loads the lmsctl JSON configuration file. Every field is
// optional; getters fall back to defaults for anything the file omits, and
// command line flags override whatever the file sets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/serialport"
)

// DefaultConfigPath is the example configuration shipped with the repo.
const DefaultConfigPath = "config/lmsctl.example.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Driver backends.
const (
	DriverSerial = "serial"
	DriverSim    = "sim"
)

// Config is the root configuration.
type Config struct {
	// Driver selects the device backend: "serial" or "sim".
	Driver *string `json:"driver,omitempty"`
	// DefaultBaud is used by the host when init is given no rate.
	DefaultBaud *int `json:"default_baud,omitempty"`
	// ReadTimeout bounds the wait for one device reply, e.g. "2s".
	ReadTimeout *string `json:"read_timeout,omitempty"`

	Serial  *SerialConfig  `json:"serial,omitempty"`
	Grab    *GrabConfig    `json:"grab,omitempty"`
	Archive *ArchiveConfig `json:"archive,omitempty"`
	Admin   *AdminConfig   `json:"admin,omitempty"`
}

// SerialConfig holds line framing settings.
type SerialConfig struct {
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`
}

// GrabConfig tunes the grab command.
type GrabConfig struct {
	// TolerateTimeouts keeps a device attached when a grab times out.
	TolerateTimeouts *bool `json:"tolerate_timeouts,omitempty"`
}

// ArchiveConfig points at the scan archive database.
type ArchiveConfig struct {
	Path *string `json:"path,omitempty"`
}

// AdminConfig controls the debug HTTP listener.
type AdminConfig struct {
	Listen *string `json:"listen,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json extension
// and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.Driver != nil {
		switch *c.Driver {
		case DriverSerial, DriverSim:
		default:
			return fmt.Errorf("driver must be %q or %q, got %q", DriverSerial, DriverSim, *c.Driver)
		}
	}

	if c.DefaultBaud != nil && driver.BaudFromInt(*c.DefaultBaud) == driver.BaudUnknown {
		return fmt.Errorf("default_baud must be one of 9600, 19200, 38400, 500000, got %d", *c.DefaultBaud)
	}

	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout '%s': %w", *c.ReadTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("read_timeout must be positive, got %s", d)
		}
	}

	if _, err := c.PortOptions(driver.Baud9600).Normalize(); err != nil {
		return fmt.Errorf("invalid serial settings: %w", err)
	}
	return nil
}

// GetDriver returns the driver backend, "serial" by default.
func (c *Config) GetDriver() string {
	if c.Driver == nil || *c.Driver == "" {
		return DriverSerial
	}
	return *c.Driver
}

// GetDefaultBaud returns the default rate, 9600 by default.
func (c *Config) GetDefaultBaud() driver.Baud {
	if c.DefaultBaud == nil {
		return driver.Baud9600
	}
	return driver.BaudFromInt(*c.DefaultBaud)
}

// GetReadTimeout returns the reply timeout.
func (c *Config) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return serialport.DefaultReadTimeout
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil || d <= 0 {
		return serialport.DefaultReadTimeout
	}
	return d
}

// GetTolerateTimeouts reports whether grab timeouts keep the device
// attached. It is false by default.
func (c *Config) GetTolerateTimeouts() bool {
	if c.Grab == nil || c.Grab.TolerateTimeouts == nil {
		return false
	}
	return *c.Grab.TolerateTimeouts
}

// GetArchivePath returns the archive database path, empty when archiving is
// off.
func (c *Config) GetArchivePath() string {
	if c.Archive == nil || c.Archive.Path == nil {
		return ""
	}
	return *c.Archive.Path
}

// GetAdminListen returns the debug listener address, empty when disabled.
func (c *Config) GetAdminListen() string {
	if c.Admin == nil || c.Admin.Listen == nil {
		return ""
	}
	return *c.Admin.Listen
}

// PortOptions builds serial port options for baud from the configuration.
func (c *Config) PortOptions(baud driver.Baud) serialport.PortOptions {
	opts := serialport.PortOptions{
		BaudRate:    int(baud),
		ReadTimeout: c.GetReadTimeout(),
	}
	if c.Serial != nil {
		if c.Serial.DataBits != nil {
			opts.DataBits = *c.Serial.DataBits
		}
		if c.Serial.StopBits != nil {
			opts.StopBits = *c.Serial.StopBits
		}
		if c.Serial.Parity != nil {
			opts.Parity = *c.Serial.Parity
		}
	}
	return opts
}
