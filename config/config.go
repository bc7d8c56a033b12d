// Package config loads the host-side YAML configuration for twimngr.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"twimngr/core"
)

// Backends accepted in bus.backend.
const (
	BackendSim    = "sim"
	BackendPeriph = "periph"
	BackendBridge = "bridge"
)

// Device kinds accepted in devices[].kind.
const (
	KindMLX90615 = "mlx90615"
	KindLP5024   = "lp5024"
	KindTMP102   = "tmp102"
)

// Config is the root of the YAML document.
type Config struct {
	QueueSize  int      `yaml:"queue_size"`
	Scratch    Scratch  `yaml:"scratch"`
	Bus        Bus      `yaml:"bus"`
	MuxAddress int      `yaml:"mux_address"` // 0 when no mux is fitted
	Devices    []Device `yaml:"devices"`
}

// Scratch sizes the block pool behind AllocScratch.
type Scratch struct {
	Blocks    int `yaml:"blocks"`
	BlockSize int `yaml:"block_size"`
}

// Bus selects and tunes the bus controller.
type Bus struct {
	Backend      string        `yaml:"backend"`
	Name         string        `yaml:"name"` // periph bus name, "" for the first one
	FrequencyHz  uint32        `yaml:"frequency_hz"`
	Serial       Serial        `yaml:"serial"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
	Breaker      Breaker       `yaml:"breaker"`
}

// Serial describes the bridge's serial link.
type Serial struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// Breaker tunes the bridge circuit breaker.
type Breaker struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// Device is one peripheral on the bus.
type Device struct {
	Kind    string `yaml:"kind"`
	Name    string `yaml:"name"`
	Address int    `yaml:"address"` // 0 selects the driver default
	Channel *int   `yaml:"channel"` // mux channel, nil when wired directly
}

// Default returns a configuration for the simulated bus with no devices.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, fills in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in missing values
func applyDefaults(cfg *Config) {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 8
	}
	if cfg.Scratch.Blocks == 0 {
		cfg.Scratch.Blocks = core.DefaultScratchBlocks
	}
	if cfg.Scratch.BlockSize == 0 {
		cfg.Scratch.BlockSize = core.DefaultScratchBlockSize
	}

	b := &cfg.Bus
	if b.Backend == "" {
		b.Backend = BackendSim
	}
	if b.FrequencyHz == 0 {
		b.FrequencyHz = 400000
	}
	if b.Serial.Baud == 0 {
		b.Serial.Baud = 250000
	}
	if b.Serial.ReadTimeoutMs == 0 {
		b.Serial.ReadTimeoutMs = 100
	}
	if b.ReplyTimeout == 0 {
		b.ReplyTimeout = 100 * time.Millisecond
	}
	if b.Breaker.MaxFailures == 0 {
		b.Breaker.MaxFailures = 3
	}
	if b.Breaker.Cooldown == 0 {
		b.Breaker.Cooldown = 2 * time.Second
	}

	for i := range cfg.Devices {
		if cfg.Devices[i].Name == "" {
			cfg.Devices[i].Name = fmt.Sprintf("%s-%d", cfg.Devices[i].Kind, i)
		}
	}
}

// Find returns the first device of the given kind.
func (c *Config) Find(kind string) (Device, bool) {
	for _, d := range c.Devices {
		if d.Kind == kind {
			return d, true
		}
	}
	return Device{}, false
}

// ManagerConfig returns the core.Config the file describes.
func (c *Config) ManagerConfig() core.Config {
	return core.Config{
		Bus:       core.BusConfig{Frequency: c.Bus.FrequencyHz},
		Allocator: core.NewBlockPool(c.Scratch.Blocks, c.Scratch.BlockSize),
	}
}

// ReadTimeout returns the serial read timeout as a duration.
func (s Serial) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}
