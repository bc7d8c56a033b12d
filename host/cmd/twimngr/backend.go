package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c"
	"tinygo.org/x/drivers/tmp102"

	"twimngr/config"
	"twimngr/core"
	"twimngr/devices/lp5024"
	"twimngr/devices/mlx90615"
	"twimngr/host/bridge"
	"twimngr/host/periphbus"
	"twimngr/host/serial"
	"twimngr/host/simbus"
)

// simLatency approximates a short 400kHz transfer.
const simLatency = 200 * time.Microsecond

// defaultSimDevices populate the simulated bus when the config lists none.
var defaultSimDevices = []config.Device{
	{Kind: config.KindMLX90615, Name: "mlx90615"},
	{Kind: config.KindLP5024, Name: "lp5024"},
	{Kind: config.KindTMP102, Name: "tmp102"},
}

func openBackend(cfg *config.Config, log *slog.Logger) (core.BusController, error) {
	switch cfg.Bus.Backend {
	case config.BackendSim:
		return simbus.NewController(newSimBus(cfg), log), nil
	case config.BackendPeriph:
		c, err := periphbus.Open(cfg.Bus.Name, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendBridge:
		c, err := bridge.Open(serialConfig(cfg, cfg.Bus.Serial.ReadTimeoutMs), bridgeConfig(cfg), log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Bus.Backend)
	}
}

func serialConfig(cfg *config.Config, readTimeoutMs int) *serial.Config {
	return &serial.Config{
		Device:      cfg.Bus.Serial.Device,
		Baud:        cfg.Bus.Serial.Baud,
		ReadTimeout: readTimeoutMs,
	}
}

func bridgeConfig(cfg *config.Config) bridge.Config {
	return bridge.Config{
		ReplyTimeout: cfg.Bus.ReplyTimeout,
		MaxFailures:  cfg.Bus.Breaker.MaxFailures,
		Cooldown:     cfg.Bus.Breaker.Cooldown,
	}
}

// newSimBus builds a simulated bus holding a model of every configured device.
func newSimBus(cfg *config.Config) *simbus.Bus {
	b := simbus.New(simLatency)

	devices := cfg.Devices
	if len(devices) == 0 {
		devices = defaultSimDevices
	}
	for _, d := range devices {
		switch d.Kind {
		case config.KindMLX90615:
			dev := b.Attach(uint16(addressOr(d, mlx90615.Address)))
			dev.SetWordLE(mlx90615.RegID0, mlx90615.ID0)
			dev.SetWordLE(mlx90615.RegTAmb, 0x3A3C) // 25.01 C
			dev.SetWordLE(mlx90615.RegTObj, 0x3C80) // 36.61 C
		case config.KindLP5024:
			b.Attach(uint16(addressOr(d, lp5024.Address)))
		case config.KindTMP102:
			dev := b.Attach(uint16(addressOr(d, tmp102.Address)))
			dev.SetWordBE(tmp102.RegConfiguration, 0x60A0)
			dev.SetWordBE(tmp102.RegTemperature, 0x1780) // 23.5 C
		}
	}

	if cfg.MuxAddress != 0 {
		mux := b.Attach(uint16(cfg.MuxAddress))
		mux.OnWrite = func(d *simbus.Device, w []byte) {
			d.Set(0, w[0])
			d.Seek(0)
		}
	}
	return b
}

func addressOr(d config.Device, def core.Address) core.Address {
	if d.Address != 0 {
		return core.Address(d.Address)
	}
	return def
}

// serveBridge turns this host into a bridge: requests arriving on the
// serial port run on the local bus.
func serveBridge(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var bus i2c.Bus
	switch cfg.Bus.Backend {
	case config.BackendSim:
		bus = newSimBus(cfg)
	case config.BackendPeriph:
		closer, err := periphbus.OpenBus(cfg.Bus.Name)
		if err != nil {
			return err
		}
		defer closer.Close()
		bus = closer
	default:
		return errors.New("bridge-serve needs the sim or periph backend for the local bus")
	}

	// Blocking reads; the far end decides the pace.
	port, err := serial.Open(serialConfig(cfg, 0))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	log.Info("serving bridge requests", "device", cfg.Bus.Serial.Device, "bus", bus.String())
	r := &bridge.Responder{Bus: bus, Log: log}
	if err := r.Serve(port); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
