// Package periphbus runs manager transfers on a periph.io I2C bus, such as
// a Linux /dev/i2c-N adapter.
package periphbus

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"twimngr/core"
)

// Controller is a core.BusController backed by an i2c.Bus. Transfers run on
// a single worker goroutine which also delivers the completion.
type Controller struct {
	bus    i2c.Bus
	closer io.Closer
	log    *slog.Logger

	mu      sync.Mutex
	handler core.EventHandler
	enabled bool
	busy    bool
	gen     uint64 // bumped by Uninit to drop late completions
	work    chan job
	quit    chan struct{}
	wg      sync.WaitGroup
}

type job struct {
	xfer core.Transfer
	gen  uint64
}

// New wraps bus. The caller keeps ownership of bus.
func New(bus i2c.Bus, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{bus: bus, log: log}
}

// OpenBus initializes the periph host drivers and opens the named bus
// ("" selects the first one found).
func OpenBus(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return bus, nil
}

// Open returns a controller on the bus OpenBus finds. Uninit closes it.
func Open(name string, log *slog.Logger) (*Controller, error) {
	bus, err := OpenBus(name)
	if err != nil {
		return nil, err
	}
	c := New(bus, log)
	c.closer = bus
	return c, nil
}

func (c *Controller) Init(cfg core.BusConfig, handler core.EventHandler) error {
	if handler == nil {
		return errors.New("periphbus: nil event handler")
	}
	if cfg.Frequency > 0 {
		if err := c.bus.SetSpeed(physic.Frequency(cfg.Frequency) * physic.Hertz); err != nil {
			// Some adapters have a fixed clock; carry on at their speed.
			c.log.Warn("i2c set speed failed", "bus", c.bus.String(), "hz", cfg.Frequency, "error", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.work != nil {
		return errors.New("periphbus: already initialized")
	}
	c.handler = handler
	c.work = make(chan job, 1)
	c.quit = make(chan struct{})
	c.wg.Add(1)
	go c.worker(c.work, c.quit)

	c.log.Debug("i2c controller ready", "bus", c.bus.String(), "hz", cfg.Frequency)
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

// Uninit stops the worker. A transfer still running on the bus finishes but
// its completion is dropped.
func (c *Controller) Uninit() {
	c.mu.Lock()
	quit := c.quit
	c.quit = nil
	c.work = nil
	c.busy = false
	c.enabled = false
	c.gen++
	c.mu.Unlock()

	if quit != nil {
		close(quit)
		c.wg.Wait()
	}
	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			c.log.Warn("i2c bus close failed", "error", err)
		}
		c.closer = nil
	}
}

// Begin hands xfer to the worker. Returns core.ErrBusBusy if the controller
// is disabled or still running the previous transfer. i2c.Bus.Tx always ends
// with a STOP, so a transfer that must hold the bus gets
// core.ErrInvalidTransfer.
func (c *Controller) Begin(xfer core.Transfer) error {
	if xfer.HoldsBus() {
		return core.ErrInvalidTransfer
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.work == nil || c.busy {
		return core.ErrBusBusy
	}
	c.busy = true
	c.work <- job{xfer: xfer, gen: c.gen}
	return nil
}

func (c *Controller) worker(work <-chan job, quit <-chan struct{}) {
	defer c.wg.Done()
	for {
		select {
		case <-quit:
			return
		case j := <-work:
			err := c.run(j.xfer)

			c.mu.Lock()
			if j.gen != c.gen {
				c.mu.Unlock()
				continue
			}
			c.busy = false
			h := c.handler
			c.mu.Unlock()

			h(err)
		}
	}
}

func (c *Controller) run(xfer core.Transfer) error {
	addr := uint16(xfer.Address)
	var err error
	switch xfer.Direction {
	case core.Write:
		err = c.bus.Tx(addr, xfer.Primary, nil)
	case core.Read:
		err = c.bus.Tx(addr, nil, xfer.Primary)
	case core.WriteRead:
		// periph always issues a repeated start between the phases
		err = c.bus.Tx(addr, xfer.Primary, xfer.Secondary)
	default:
		return core.ErrInvalidTransfer
	}
	if err != nil {
		c.log.Debug("i2c transfer failed",
			"addr", fmt.Sprintf("0x%02x", addr),
			"dir", xfer.Direction.String(),
			"error", err)
	}
	return Classify(err)
}

// Classify maps a bus error onto the core.ErrBus* kinds, keeping the cause.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if core.IsBusError(err) {
		return err
	}
	if kind := classifyErrno(err); kind != nil {
		return core.Wrap(kind, err)
	}
	return core.Wrap(core.ErrBusFault, err)
}
