package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"tinygo.org/x/drivers/tmp102"

	"twimngr/config"
	"twimngr/core"
	"twimngr/devices/lp5024"
	"twimngr/devices/mlx90615"
	"twimngr/devices/txbus"
)

// Probe range used by scan; the rest is reserved.
const (
	scanFirst = 0x08
	scanLast  = 0x77
)

func (a *app) scan(ctx context.Context) error {
	var found []string
	var b [1]byte
	for addr := core.Address(scanFirst); addr <= scanLast; addr++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := a.mngr.Perform(core.Rx(addr, b[:], 0), a.idle)
		switch {
		case err == nil:
			found = append(found, fmt.Sprintf("0x%02x", addr))
		case errors.Is(err, core.ErrBusNACK):
		default:
			return fmt.Errorf("probe 0x%02x: %w", addr, err)
		}
	}
	fmt.Fprintf(a.out, "%d device(s): %s\n", len(found), strings.Join(found, " "))
	return nil
}

func (a *app) read(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: read ADDR REG N")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	reg, err := parseByte(args[1])
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid length %q", args[2])
	}

	buf := make([]byte, n)
	if err := a.mngr.ReadRegisterBlocking(addr, reg, buf, a.idle); err != nil {
		return fmt.Errorf("read 0x%02x[0x%02x]: %w", addr, reg, err)
	}
	fmt.Fprintf(a.out, "0x%02x[0x%02x]: % x\n", addr, reg, buf)
	return nil
}

func (a *app) write(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: write ADDR REG BYTES...")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	reg, err := parseByte(args[1])
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(args)-2)
	for _, s := range args[2:] {
		v, err := parseByte(s)
		if err != nil {
			return err
		}
		data = append(data, v)
	}

	if err := a.mngr.WriteRegisterBlocking(addr, reg, data, a.idle); err != nil {
		return fmt.Errorf("write 0x%02x[0x%02x]: %w", addr, reg, err)
	}
	fmt.Fprintf(a.out, "0x%02x[0x%02x] <- % x\n", addr, reg, data)
	return nil
}

// sample is one thermometer reading.
type sample struct {
	name  string
	what  string
	value float32
}

func (a *app) temp(ctx context.Context) error {
	samples, err := a.readTemperatures(ctx)
	for _, s := range samples {
		fmt.Fprintf(a.out, "%s %s: %.2f C\n", s.name, s.what, s.value)
	}
	return err
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(a.out)
	interval := fs.Duration("interval", time.Second, "Sampling interval")
	count := fs.Int("count", 0, "Stop after this many samples (0 = until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("invalid interval %v", *interval)
	}

	limiter := rate.NewLimiter(rate.Every(*interval), 1)
	for i := 0; *count == 0 || i < *count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		samples, err := a.readTemperatures(ctx)
		if err != nil {
			a.log.Warn("sample failed", "error", err)
			continue
		}
		parts := make([]string, len(samples))
		for j, s := range samples {
			parts[j] = fmt.Sprintf("%s.%s=%.2f", s.name, s.what, s.value)
		}
		fmt.Fprintf(a.out, "%s %s\n", time.Now().Format(time.TimeOnly), strings.Join(parts, " "))
	}
	return nil
}

func (a *app) leds(args []string) error {
	if len(args) != 3 {
		return errors.New("usage: leds R G B")
	}
	var rgb [3]uint8
	for i, s := range args {
		v, err := parseByte(s)
		if err != nil {
			return err
		}
		rgb[i] = v
	}

	d := a.deviceOf(config.KindLP5024)
	if err := a.selectChannel(d); err != nil {
		return err
	}

	var mu sync.Mutex
	var failed error
	leds := lp5024.New(a.mngr, addressOr(d, lp5024.Address))
	leds.OnError = func(reg uint8, err error) {
		mu.Lock()
		if failed == nil {
			failed = fmt.Errorf("lp5024 register 0x%02x: %w", reg, err)
		}
		mu.Unlock()
	}

	cfg := lp5024.DefaultConfig()
	cfg.LEDConfig0 = 0xFF // All modules follow the bank color
	if err := leds.Init(cfg); err != nil {
		return err
	}
	if err := leds.SetBankColor(lp5024.RGB{Red: rgb[0], Green: rgb[1], Blue: rgb[2]}); err != nil {
		return err
	}
	a.drain()

	mu.Lock()
	defer mu.Unlock()
	return failed
}

// readTemperatures reads every configured thermometer, or the MLX90615 at
// its default address when none is configured.
func (a *app) readTemperatures(ctx context.Context) ([]sample, error) {
	var devices []config.Device
	for _, d := range a.cfg.Devices {
		if d.Kind == config.KindMLX90615 || d.Kind == config.KindTMP102 {
			devices = append(devices, d)
		}
	}
	if len(devices) == 0 {
		devices = []config.Device{{Kind: config.KindMLX90615, Name: "mlx90615"}}
	}

	var samples []sample
	for _, d := range devices {
		if err := a.selectChannel(d); err != nil {
			return samples, err
		}
		var err error
		switch d.Kind {
		case config.KindMLX90615:
			samples, err = a.readMLX90615(ctx, d, samples)
		case config.KindTMP102:
			samples, err = a.readTMP102(d, samples)
		}
		if err != nil {
			return samples, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	return samples, nil
}

func (a *app) readMLX90615(ctx context.Context, d config.Device, samples []sample) ([]sample, error) {
	events := make(chan mlx90615.Event, 2)
	sensor := mlx90615.New(a.mngr)
	sensor.Configure(mlx90615.Config{Address: addressOr(d, mlx90615.Address), Idle: a.idle})
	if err := sensor.Init(func(evt *mlx90615.Event) {
		events <- *evt
	}); err != nil {
		return samples, err
	}

	if err := sensor.ReadAmbientFloat(); err != nil {
		return samples, err
	}
	if err := sensor.ReadObjectFloat(); err != nil {
		return samples, err
	}

	for range 2 {
		select {
		case evt := <-events:
			switch evt.Type {
			case mlx90615.EvtAmbTempFloatReady:
				samples = append(samples, sample{name: d.Name, what: "ambient", value: evt.FloatTemp})
			case mlx90615.EvtObjTempFloatReady:
				samples = append(samples, sample{name: d.Name, what: "object", value: evt.FloatTemp})
			case mlx90615.EvtError:
				return samples, evt.Err
			}
		case <-ctx.Done():
			return samples, ctx.Err()
		}
	}
	return samples, nil
}

func (a *app) readTMP102(d config.Device, samples []sample) ([]sample, error) {
	sensor := tmp102.New(txbus.New(a.mngr, a.idle))
	sensor.Configure(tmp102.Config{Address: uint8(addressOr(d, tmp102.Address))})
	if !sensor.Connected() {
		return samples, errors.New("tmp102 not responding")
	}
	milli, err := sensor.ReadTemperature()
	if err != nil {
		return samples, err
	}
	return append(samples, sample{name: d.Name, what: "temp", value: float32(milli) / 1000}), nil
}

// deviceOf returns the configured device of kind, or a default one.
func (a *app) deviceOf(kind string) config.Device {
	if d, ok := a.cfg.Find(kind); ok {
		return d
	}
	return config.Device{Kind: kind, Name: kind}
}

// selectChannel queues the mux switch for d. Queue order keeps it ahead of
// the device's own transfers.
func (a *app) selectChannel(d config.Device) error {
	if d.Channel == nil || a.mux == nil {
		return nil
	}
	if a.mux.Selected() == 1<<*d.Channel {
		return nil
	}
	return a.mux.Select(*d.Channel)
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return uint8(v), nil
}

func parseAddress(s string) (core.Address, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > core.AddressMask {
		return 0, fmt.Errorf("invalid 7-bit address %q", s)
	}
	return core.Address(v), nil
}
