// Package machinebus drives a TinyGo I2C peripheral as a core.BusController.
//
// machine.I2C transfers block until the bus is done, so Begin runs each one
// in its own goroutine and reports the result from there. Nothing here
// depends on a particular chip; the firmware passes its machine.I2C and a
// function applying the bus clock.
package machinebus

import (
	"strings"
	"sync"

	"tinygo.org/x/drivers"

	"twimngr/core"
)

// Configurer applies the bus clock, typically machine.I2C.Configure.
type Configurer func(frequency uint32) error

// Controller runs transfers on a drivers.I2C.
type Controller struct {
	bus       drivers.I2C
	configure Configurer

	mu      sync.Mutex
	handler core.EventHandler
	enabled bool
	busy    bool
	gen     uint32
}

// New wraps bus. configure may be nil when the bus is already set up.
func New(bus drivers.I2C, configure Configurer) *Controller {
	return &Controller{bus: bus, configure: configure}
}

func (c *Controller) Init(cfg core.BusConfig, handler core.EventHandler) error {
	if handler == nil {
		return core.ErrInit
	}
	if c.configure != nil {
		if err := c.configure(cfg.Frequency); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
	return nil
}

func (c *Controller) Enable() {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
}

func (c *Controller) Disable() {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
}

// Uninit forgets the transfer in flight; its completion is dropped.
func (c *Controller) Uninit() {
	c.mu.Lock()
	c.enabled = false
	c.busy = false
	c.gen++
	c.mu.Unlock()
}

// Begin runs xfer on its own goroutine. drivers.I2C.Tx always ends with a
// STOP, so a transfer that must hold the bus gets core.ErrInvalidTransfer.
func (c *Controller) Begin(xfer core.Transfer) error {
	if xfer.HoldsBus() {
		return core.ErrInvalidTransfer
	}
	c.mu.Lock()
	if !c.enabled || c.busy || c.handler == nil {
		c.mu.Unlock()
		return core.ErrBusBusy
	}
	c.busy = true
	gen := c.gen
	c.mu.Unlock()

	go c.run(xfer, gen)
	return nil
}

func (c *Controller) run(xfer core.Transfer, gen uint32) {
	err := Classify(c.bus.Tx(uint16(xfer.Address), xfer.WriteData(), xfer.ReadData()))

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.busy = false
	h := c.handler
	c.mu.Unlock()

	h(err)
}

// Classify maps a machine.I2C error onto the core.ErrBus* kinds. The
// machine package keeps its I2C errors unexported, so only their text is
// available.
func Classify(err error) error {
	if err == nil || core.IsBusError(err) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nack"), strings.Contains(msg, "ack expected"):
		return core.Wrap(core.ErrBusNACK, err)
	case strings.Contains(msg, "arbitration"):
		return core.Wrap(core.ErrBusArbitration, err)
	case strings.Contains(msg, "timeout"):
		return core.Wrap(core.ErrBusTimeout, err)
	case strings.Contains(msg, "busy"):
		return core.Wrap(core.ErrBusBusy, err)
	}
	return core.Wrap(core.ErrBusFault, err)
}
