// Package config loads the bus description used by `busq poll`.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

const (
	AdapterMCP2221 = "mcp2221"
	AdapterGeneric = "generic"
	AdapterNanoPi  = "nanopi"
	AdapterSim     = "sim"

	ExecutorPolled = "polled"
	ExecutorAsync  = "async"

	KindTC74     = "tc74"
	KindHIH6021  = "hih6021"
	KindMCP23017 = "mcp23017"
	KindBMA220   = "bma220"
	KindAGS02MA  = "ags02ma"
	KindSHTC3    = "shtc3"
	KindBH1750   = "bh1750"
)

// MaxDeviceAddress is the highest address a device driver accepts. The
// drivers talk to 7-bit devices only.
const MaxDeviceAddress = 0x7F

// Config describes one bus and the devices polled on it.
type Config struct {
	// Adapter selects the bus transport: mcp2221, generic, nanopi or sim.
	Adapter string `yaml:"adapter"`

	// Device is the periph bus name for the generic adapter (e.g. "/dev/i2c-1").
	Device string `yaml:"device,omitempty"`

	// Bus is the gobot bus number for the nanopi adapter. Negative selects
	// the adaptor default.
	Bus int `yaml:"bus,omitempty"`

	// DeviceIndex selects the MCP2221 when several are plugged in.
	DeviceIndex int `yaml:"device_index,omitempty"`

	// Executor is polled or async.
	Executor string `yaml:"executor"`

	// Speed is the bus clock, e.g. "100kHz". Empty keeps the adapter default.
	Speed string `yaml:"speed,omitempty"`

	// Timeout bounds a single transfer.
	Timeout time.Duration `yaml:"timeout"`

	// Interval is the time between two polling rounds.
	Interval time.Duration `yaml:"interval"`

	Devices []Device `yaml:"devices"`
}

// Device is a single bus peripheral.
type Device struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Address uint16 `yaml:"address,omitempty"`
}

// Default returns the configuration used for missing fields.
func Default() Config {
	return Config{
		Adapter:  AdapterMCP2221,
		Device:   "/dev/i2c-1",
		Bus:      -1,
		Executor: ExecutorPolled,
		Timeout:  100 * time.Millisecond,
		Interval: time.Second,
	}
}

// Load reads and validates a YAML configuration file. Unknown fields are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Adapter {
	case AdapterMCP2221, AdapterGeneric, AdapterNanoPi, AdapterSim:
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}
	switch c.Executor {
	case ExecutorPolled, ExecutorAsync:
	default:
		return fmt.Errorf("unknown executor %q", c.Executor)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if _, err := c.Frequency(); err != nil {
		return err
	}
	names := map[string]bool{}
	for i, d := range c.Devices {
		switch d.Kind {
		case KindTC74, KindHIH6021, KindMCP23017, KindBMA220, KindAGS02MA, KindSHTC3, KindBH1750:
		default:
			return fmt.Errorf("device %d: unknown kind %q", i, d.Kind)
		}
		if d.Address > MaxDeviceAddress {
			return fmt.Errorf("device %d: address %#x out of range", i, d.Address)
		}
		if d.Name == "" {
			c.Devices[i].Name = fmt.Sprintf("%s-%d", d.Kind, i)
		}
		if names[c.Devices[i].Name] {
			return fmt.Errorf("device %d: duplicate name %q", i, c.Devices[i].Name)
		}
		names[c.Devices[i].Name] = true
	}
	return nil
}

// Frequency parses Speed. Zero means the adapter default.
func (c *Config) Frequency() (physic.Frequency, error) {
	var f physic.Frequency
	if c.Speed == "" {
		return 0, nil
	}
	if err := f.Set(c.Speed); err != nil {
		return 0, fmt.Errorf("invalid speed %q: %w", c.Speed, err)
	}
	return f, nil
}
