// Package tca9548a drives the TCA9548A 8-channel I2C switch. Channel
// changes are queued like any other transfer, so a switch followed by
// device traffic reaches the bus in that order.
package tca9548a

import (
	"errors"

	"twimngr/core"
)

// Address is the default address with A0-A2 low.
const Address = 0x70

// Channels is the number of downstream segments.
const Channels = 8

var ErrInvalidChannel = errors.New("tca9548a: channel out of range")

// Device is a TCA9548A on a managed bus.
type Device struct {
	mngr    *core.Manager
	address core.Address
	mask    uint8

	// OnError, if set, receives failed channel switches.
	OnError func(mask uint8, err error)
}

// New creates a driver for the switch at address.
func New(m *core.Manager, address core.Address) *Device {
	return &Device{mngr: m, address: address}
}

// SetChannels queues a write connecting every channel set in mask.
func (d *Device) SetChannels(mask uint8) error {
	err := d.mngr.WriteBytes(d.address, []byte{mask}, core.Completion{
		Callback: d.complete,
		Event:    mask,
	})
	if err != nil {
		return err
	}
	d.mask = mask
	return nil
}

// Select connects channel ch alone.
func (d *Device) Select(ch int) error {
	if ch < 0 || ch >= Channels {
		return ErrInvalidChannel
	}
	return d.SetChannels(1 << ch)
}

// Selected returns the mask most recently queued.
func (d *Device) Selected() uint8 {
	return d.mask
}

// ReadChannels reads the control register back, waiting for the result.
func (d *Device) ReadChannels(idle func()) (uint8, error) {
	var b [1]byte
	if err := d.mngr.Perform(core.Rx(d.address, b[:], 0), idle); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) complete(err error, t *core.Transaction) {
	if err == nil {
		return
	}
	core.DebugPrintln("[TCA9548A] Select 0x" + core.Hex8(t.Event) + " failed: " + err.Error())
	if d.OnError != nil {
		d.OnError(t.Event, err)
	}
}
