package config

import (
	"fmt"
	"strings"

	"twimngr/devices/tca9548a"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateQueue(cfg, ve)
	validateBus(cfg, ve)
	validateDevices(cfg, ve)
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateQueue(cfg *Config, ve *ValidationError) {
	if cfg.QueueSize <= 0 {
		ve.Add("queue_size must be > 0")
	}
	if cfg.Scratch.Blocks <= 0 {
		ve.Add("scratch.blocks must be > 0")
	}
	if cfg.Scratch.BlockSize <= 0 {
		ve.Add("scratch.block_size must be > 0")
	}
}

func validateBus(cfg *Config, ve *ValidationError) {
	b := cfg.Bus
	switch b.Backend {
	case BackendSim, BackendPeriph:
	case BackendBridge:
		if b.Serial.Device == "" {
			ve.Add("bus.serial.device is required for the bridge backend")
		}
		if b.Serial.Baud <= 0 {
			ve.Add("bus.serial.baud must be > 0")
		}
		if b.ReplyTimeout <= 0 {
			ve.Add("bus.reply_timeout must be > 0")
		}
		if b.Breaker.Cooldown <= 0 {
			ve.Add("bus.breaker.cooldown must be > 0")
		}
	default:
		ve.Add("bus.backend %q is not one of sim, periph, bridge", b.Backend)
	}
	if b.FrequencyHz != 100000 && b.FrequencyHz != 400000 {
		ve.Add("bus.frequency_hz must be 100000 or 400000, got %d", b.FrequencyHz)
	}
}

func validateDevices(cfg *Config, ve *ValidationError) {
	if cfg.MuxAddress < 0 || cfg.MuxAddress > 0x7F {
		ve.Add("mux_address 0x%x is not a 7-bit address", cfg.MuxAddress)
	}

	names := make(map[string]bool)
	for i, d := range cfg.Devices {
		switch d.Kind {
		case KindMLX90615, KindLP5024, KindTMP102:
		default:
			ve.Add("devices[%d].kind %q is not supported", i, d.Kind)
		}
		if names[d.Name] {
			ve.Add("devices[%d].name %q is used twice", i, d.Name)
		}
		names[d.Name] = true

		if d.Address < 0 || d.Address > 0x7F {
			ve.Add("devices[%d].address 0x%x is not a 7-bit address", i, d.Address)
		}
		if d.Channel != nil {
			if cfg.MuxAddress == 0 {
				ve.Add("devices[%d].channel set but mux_address is not", i)
			}
			if *d.Channel < 0 || *d.Channel >= tca9548a.Channels {
				ve.Add("devices[%d].channel %d out of range 0-%d", i, *d.Channel, tca9548a.Channels-1)
			}
		}
	}
}
