// Package simbus simulates I2C peripherals as register files behind a
// periph.io i2c.Bus. The CLI's sim backend and the device driver tests run
// the manager against it.
package simbus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"twimngr/core"
	"twimngr/host/periphbus"
)

// Device is one simulated peripheral: 256 byte-wide registers with an
// auto-incrementing register pointer. The first byte of a write sets the
// pointer; further bytes store from there. Reads return bytes from the
// pointer onwards.
//
// Commands set up with SetWordLE or SetWordBE hold one 16-bit value
// instead, as on SMBus-style chips: a read returns that word over and over
// and never runs into the neighbouring command.
type Device struct {
	mu    sync.Mutex
	regs  [256]byte
	words map[uint8][2]byte
	ptr   uint8

	// OnWrite, if set, sees every write after it was applied
	OnWrite func(d *Device, w []byte)
}

// Set stores data starting at reg.
func (d *Device) Set(reg uint8, data ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, b := range data {
		d.regs[reg+uint8(i)] = b
	}
}

// Seek moves the register pointer, as a device with a single control
// register would after every access.
func (d *Device) Seek(reg uint8) {
	d.mu.Lock()
	d.ptr = reg
	d.mu.Unlock()
}

// SetWordLE makes reg a word command holding v, low byte first on the wire.
func (d *Device) SetWordLE(reg uint8, v uint16) {
	d.setWord(reg, [2]byte{byte(v), byte(v >> 8)})
}

// SetWordBE makes reg a word command holding v, high byte first on the wire.
func (d *Device) SetWordBE(reg uint8, v uint16) {
	d.setWord(reg, [2]byte{byte(v >> 8), byte(v)})
}

func (d *Device) setWord(reg uint8, w [2]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.words == nil {
		d.words = make(map[uint8][2]byte)
	}
	d.words[reg] = w
}

// Get returns n bytes starting at reg. A word command repeats its two bytes.
func (d *Device) Get(reg uint8, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, n)
	if w, ok := d.words[reg]; ok {
		for i := range out {
			out[i] = w[i%2]
		}
		return out
	}
	for i := range out {
		out[i] = d.regs[reg+uint8(i)]
	}
	return out
}

func (d *Device) tx(w, r []byte) {
	d.mu.Lock()
	if len(w) > 0 {
		d.ptr = w[0]
		if word, ok := d.words[d.ptr]; ok {
			copy(word[:], w[1:])
			d.words[d.ptr] = word
		} else {
			for _, b := range w[1:] {
				d.regs[d.ptr] = b
				d.ptr++
			}
		}
	}
	if word, ok := d.words[d.ptr]; ok {
		for i := range r {
			r[i] = word[i%2]
		}
	} else {
		for i := range r {
			r[i] = d.regs[d.ptr]
			d.ptr++
		}
	}
	hook := d.OnWrite
	d.mu.Unlock()

	if hook != nil && len(w) > 0 {
		hook(d, w)
	}
}

// Bus is a simulated I2C segment. Addresses with no device NACK.
type Bus struct {
	mu      sync.Mutex
	devices map[uint16]*Device
	nack    map[uint16]bool
	speed   physic.Frequency
	latency time.Duration
	rec     []i2ctest.IO
}

var _ i2c.Bus = (*Bus)(nil)

// New returns an empty bus. latency is added to every transfer.
func New(latency time.Duration) *Bus {
	return &Bus{
		devices: make(map[uint16]*Device),
		nack:    make(map[uint16]bool),
		latency: latency,
	}
}

// Attach adds a device at addr and returns it.
func (b *Bus) Attach(addr uint16) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &Device{}
	b.devices[addr] = d
	return d
}

// Device returns the device attached at addr, or nil.
func (b *Bus) Device(addr uint16) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.devices[addr]
}

// SetNACK makes addr refuse (or accept again) every transfer.
func (b *Bus) SetNACK(addr uint16, on bool) {
	b.mu.Lock()
	b.nack[addr] = on
	b.mu.Unlock()
}

// Ops returns the transfers seen so far, read data included.
func (b *Bus) Ops() []i2ctest.IO {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]i2ctest.IO(nil), b.rec...)
}

func (b *Bus) String() string {
	return "simbus"
}

// Tx implements i2c.Bus.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	dev := b.devices[addr]
	nack := b.nack[addr]
	latency := b.latency
	b.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	if dev == nil || nack {
		return fmt.Errorf("simbus: 0x%02x: %w", addr, core.ErrBusNACK)
	}
	dev.tx(w, r)

	b.mu.Lock()
	b.rec = append(b.rec, i2ctest.IO{
		Addr: addr,
		W:    append([]byte(nil), w...),
		R:    append([]byte(nil), r...),
	})
	b.mu.Unlock()
	return nil
}

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	b.speed = f
	b.mu.Unlock()
	return nil
}

// Speed returns the last speed set.
func (b *Bus) Speed() physic.Frequency {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

// NewController returns a bus controller that runs transfers on b.
func NewController(b *Bus, log *slog.Logger) *periphbus.Controller {
	return periphbus.New(b, log)
}
