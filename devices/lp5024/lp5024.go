// Package lp5024 implements a driver for the TI LP5024 24-channel RGB LED
// driver. Every operation is a queued register write; failures are logged
// and reported through OnError.
package lp5024

import (
	"errors"

	"twimngr/core"
)

var ErrInvalidLED = errors.New("lp5024: LED index out of range")

// LED selects one of the eight RGB modules.
type LED uint8

const (
	LED0 LED = iota
	LED1
	LED2
	LED3
	LED4
	LED5
	LED6
	LED7
	LEDCount
)

// Color selects one output of an RGB module.
type Color uint8

const (
	Blue Color = iota
	Green
	Red
)

// MaxCurrent selects the output current limit.
type MaxCurrent uint8

const (
	MaxCurrent25mA5 MaxCurrent = iota
	MaxCurrent35mA
)

// RGB is one color triple. The chip stores it blue first.
type RGB struct {
	Red, Green, Blue uint8
}

func (c RGB) bytes() []byte {
	return []byte{c.Blue, c.Green, c.Red}
}

// Config mirrors the first four registers.
type Config struct {
	ChipEnable     bool
	LEDGlobalOff   bool
	MaxCurrent     MaxCurrent
	PWMDithering   bool
	AutoIncrement  bool
	PowerSave      bool
	LogScale       bool
	LEDConfig0     uint8 // Bank mode per LED, bit n = LEDn
	BankBrightness uint8
}

// DefaultConfig enables the chip with the datasheet reset values.
func DefaultConfig() Config {
	return Config{
		ChipEnable:     true,
		PWMDithering:   true,
		AutoIncrement:  true,
		PowerSave:      true,
		LogScale:       true,
		BankBrightness: 0xFF,
	}
}

func (c Config) registers() []byte {
	var cfg0, cfg1 uint8
	if c.ChipEnable {
		cfg0 |= config0ChipEn
	}
	if c.LEDGlobalOff {
		cfg1 |= config1LEDGlobalOff
	}
	if c.MaxCurrent == MaxCurrent35mA {
		cfg1 |= config1MaxCurrent35mA
	}
	if c.PWMDithering {
		cfg1 |= config1PWMDithering
	}
	if c.AutoIncrement {
		cfg1 |= config1AutoIncrement
	}
	if c.PowerSave {
		cfg1 |= config1PowerSave
	}
	if c.LogScale {
		cfg1 |= config1LogScale
	}
	return []byte{cfg0, cfg1, c.LEDConfig0, c.BankBrightness}
}

// state is shared between a device and its broadcast view.
type state struct {
	config Config
}

// Device is an LP5024 on a managed bus.
type Device struct {
	mngr    *core.Manager
	address core.Address
	state   *state

	// OnError, if set, receives write failures from the completion context.
	OnError func(reg uint8, err error)
}

// New creates a driver for the chip at address.
func New(m *core.Manager, address core.Address) *Device {
	return &Device{
		mngr:    m,
		address: address,
		state:   &state{},
	}
}

// Broadcast returns a view of d that writes to every LP5024 on the bus.
// It shares d's cached configuration.
func (d *Device) Broadcast() *Device {
	return &Device{
		mngr:    d.mngr,
		address: BroadcastAddress,
		state:   d.state,
		OnError: d.OnError,
	}
}

// Address returns the address writes go to.
func (d *Device) Address() core.Address {
	return d.address
}

// Init resets the chip and writes the configuration block.
func (d *Device) Init(cfg Config) error {
	core.DebugPrintln("[LP5024] Initialising 0x" + core.Hex8(uint8(d.address)))
	if err := d.Reset(); err != nil {
		return err
	}
	if err := d.write(RegDeviceConfig0, cfg.registers()...); err != nil {
		return err
	}
	d.state.config = cfg
	return nil
}

// Config returns the cached configuration.
func (d *Device) Config() Config {
	return d.state.config
}

// Reset restores every register to its default.
func (d *Device) Reset() error {
	return d.write(RegReset, 0xFF)
}

// SetLEDConfig0 selects which LEDs follow the bank color.
func (d *Device) SetLEDConfig0(v uint8) error {
	if err := d.write(RegLEDConfig0, v); err != nil {
		return err
	}
	d.state.config.LEDConfig0 = v
	return nil
}

// EnableBankMode moves led in or out of bank control.
func (d *Device) EnableBankMode(led LED, enable bool) error {
	if led >= LEDCount {
		return ErrInvalidLED
	}
	v := d.state.config.LEDConfig0
	if enable {
		v |= 1 << led
	} else {
		v &^= 1 << led
	}
	return d.SetLEDConfig0(v)
}

// SetBankColor sets the bank A/B/C color.
func (d *Device) SetBankColor(c RGB) error {
	return d.write(RegBankAColor, c.bytes()...)
}

// SetLEDColor sets all three outputs of led.
func (d *Device) SetLEDColor(led LED, c RGB) error {
	if led >= LEDCount {
		return ErrInvalidLED
	}
	return d.write(RegOut0Color+uint8(led)*3, c.bytes()...)
}

// SetLEDBrightness sets the brightness of led.
func (d *Device) SetLEDBrightness(led LED, brightness uint8) error {
	if led >= LEDCount {
		return ErrInvalidLED
	}
	return d.write(RegLED0Brightness+uint8(led), brightness)
}

// SetOutput sets a single color output of led.
func (d *Device) SetOutput(led LED, color Color, value uint8) error {
	if led >= LEDCount || color > Red {
		return ErrInvalidLED
	}
	return d.write(RegOut0Color+uint8(led)*3+uint8(color), value)
}

func (d *Device) write(reg uint8, data ...byte) error {
	return d.mngr.WriteRegister(d.address, reg, data, core.Completion{
		Callback: d.complete,
		Event:    reg,
	})
}

func (d *Device) complete(err error, t *core.Transaction) {
	if err == nil {
		return
	}
	core.DebugPrintln("[LP5024] Write 0x" + core.Hex8(t.Event) + " failed: " + err.Error())
	if d.OnError != nil {
		d.OnError(t.Event, err)
	}
}
