// Package mlx90615 implements a driver for the MLX90615 infrared
// thermometer on top of the TWI transaction manager.
//
// Init reads the chip ID synchronously. Temperature reads and the sleep
// command are queued; results arrive through the event handler from the
// manager's completion context.
package mlx90615

import (
	"errors"
	"time"

	"twimngr/core"
)

// ErrNotFound is returned by Init when the chip ID does not match.
var ErrNotFound = errors.New("mlx90615: chip ID mismatch")

// EventType says what an Event carries.
type EventType uint8

const (
	EvtAmbTempInt8Ready EventType = iota
	EvtObjTempInt8Ready
	EvtAmbTempFloatReady
	EvtObjTempFloatReady
	EvtSleepEntered
	EvtError
)

// Event is delivered to the handler once per queued operation.
type Event struct {
	Device    *Device
	Type      EventType
	Int8Temp  int8    // EvtAmbTempInt8Ready, EvtObjTempInt8Ready
	FloatTemp float32 // EvtAmbTempFloatReady, EvtObjTempFloatReady
	Err       error   // EvtError
}

// Handler receives driver events. It runs in the manager's completion
// context and must not block.
type Handler func(evt *Event)

// Device is an MLX90615 on a managed bus.
type Device struct {
	mngr    *core.Manager
	address core.Address
	idle    func()
	handler Handler
}

// Config is the configuration for the MLX90615.
type Config struct {
	Address core.Address // Defaults to Address

	// Idle runs while Init waits for the ID read. Defaults to a 1ms sleep.
	Idle func()
}

// New creates a driver for a sensor reachable through m.
func New(m *core.Manager) *Device {
	return &Device{
		mngr:    m,
		address: Address,
		idle:    waitOneMillisecond,
	}
}

// Configure applies cfg.
func (d *Device) Configure(cfg Config) {
	if cfg.Address != 0 {
		d.address = cfg.Address
	}
	if cfg.Idle != nil {
		d.idle = cfg.Idle
	}
}

func waitOneMillisecond() {
	time.Sleep(time.Millisecond)
}

// Init stores handler and checks the chip ID with a blocking read.
func (d *Device) Init(handler Handler) error {
	d.handler = handler

	var id [2]byte
	if err := d.mngr.ReadRegisterBlocking(d.address, RegID0, id[:], d.idle); err != nil {
		return err
	}
	if uint16(id[0])|uint16(id[1])<<8 != ID0 {
		return ErrNotFound
	}
	return nil
}

// ReadAmbientInt8 queues an ambient temperature read in whole degrees.
func (d *Device) ReadAmbientInt8() error {
	return d.read(RegTAmb, EvtAmbTempInt8Ready)
}

// ReadObjectInt8 queues an object temperature read in whole degrees.
func (d *Device) ReadObjectInt8() error {
	return d.read(RegTObj, EvtObjTempInt8Ready)
}

// ReadAmbientFloat queues an ambient temperature read.
func (d *Device) ReadAmbientFloat() error {
	return d.read(RegTAmb, EvtAmbTempFloatReady)
}

// ReadObjectFloat queues an object temperature read.
func (d *Device) ReadObjectFloat() error {
	return d.read(RegTObj, EvtObjTempFloatReady)
}

// Sleep queues the enter-sleep command.
func (d *Device) Sleep() error {
	return d.mngr.WriteRegister(d.address, cmdEnterSleep, []byte{cmdEnterSleepPEC}, core.Completion{
		Callback: d.complete,
		Event:    uint8(EvtSleepEntered),
	})
}

func (d *Device) read(reg uint8, evt EventType) error {
	return d.mngr.ReadRegister(d.address, reg, 2, core.Completion{
		Callback: d.complete,
		Event:    uint8(evt),
	})
}

func (d *Device) complete(err error, t *core.Transaction) {
	evt := Event{Device: d, Type: EventType(t.Event)}

	if err != nil {
		core.DebugPrintln("[MLX90615] Error: " + err.Error())
		if d.handler != nil {
			evt.Type = EvtError
			evt.Err = err
			d.handler(&evt)
		}
		return
	}
	if d.handler == nil {
		return
	}

	switch evt.Type {
	case EvtAmbTempInt8Ready, EvtObjTempInt8Ready:
		evt.Int8Temp = int8(RawToCelsius(t.Transfer.Secondary))
	case EvtAmbTempFloatReady, EvtObjTempFloatReady:
		evt.FloatTemp = RawToCelsius(t.Transfer.Secondary)
	}
	d.handler(&evt)
}

// RawToCelsius converts a little-endian temperature word. The top bit is
// an error flag and is ignored.
func RawToCelsius(raw []byte) float32 {
	v := (uint16(raw[0]) | uint16(raw[1])<<8) & 0x7FFF
	return float32(v)*0.02 - 273.15
}
