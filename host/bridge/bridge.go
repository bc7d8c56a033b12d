// Package bridge drives a USB-serial I2C bridge. The host sends one framed
// request per transfer; the bridge runs it on its own I2C port and answers
// with the status and any bytes read.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"twimngr/core"
	"twimngr/host/serial"
	"twimngr/protocol"
)

// Defaults for zero Config fields.
const (
	DefaultReplyTimeout = 100 * time.Millisecond
	DefaultMaxFailures  = 3
	DefaultCooldown     = 2 * time.Second
)

// errLink marks failures of the serial link itself. Only these count
// against the breaker; a NACK is a healthy answer.
var errLink = errors.New("bridge: link failure")

// Config tunes the link.
type Config struct {
	// ReplyTimeout bounds the wait for each reply
	ReplyTimeout time.Duration

	// MaxFailures consecutive link failures open the breaker
	MaxFailures uint32

	// Cooldown is how long the breaker stays open before probing again
	Cooldown time.Duration
}

// Controller is a core.BusController talking to a bridge over port.
type Controller struct {
	port    serial.Port
	cfg     Config
	log     *slog.Logger
	breaker *gobreaker.TwoStepCircuitBreaker[struct{}]
	scanner *protocol.FrameScanner

	mu       sync.Mutex
	handler  core.EventHandler
	enabled  bool
	seq      uint8
	tag      uint8
	inflight *request

	stop       chan struct{}
	readerDone chan struct{}
}

// request is the transfer waiting for its reply.
type request struct {
	tag   uint8
	xfer  core.Transfer
	done  func(err error) // breaker outcome
	timer *time.Timer
}

// New creates a controller on port. Init starts reading; Uninit closes port.
func New(port serial.Port, cfg Config, log *slog.Logger) *Controller {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Controller{
		port:    port,
		cfg:     cfg,
		log:     log,
		scanner: protocol.NewFrameScanner(),
		seq:     protocol.MessageDest,
	}
	maxFailures := cfg.MaxFailures
	c.breaker = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "i2c-bridge",
		MaxRequests: 1, // one probe while half-open
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("bridge breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, errLink)
		},
	})
	return c
}

// Open opens the serial device and wraps it in a controller.
func Open(scfg *serial.Config, cfg Config, log *slog.Logger) (*Controller, error) {
	port, err := serial.Open(scfg)
	if err != nil {
		return nil, err
	}
	// Drop whatever a previous session left in the receive buffer
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush serial port: %w", err)
	}
	return New(port, cfg, log), nil
}

func (c *Controller) Init(cfg core.BusConfig, handler core.EventHandler) error {
	if handler == nil {
		return errors.New("bridge: nil event handler")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return errors.New("bridge: already initialized")
	}
	c.handler = handler
	c.stop = make(chan struct{})
	c.readerDone = make(chan struct{})
	go c.readLoop(c.stop, c.readerDone)

	// The bridge runs its port at a fixed clock
	if cfg.Frequency != 0 {
		c.log.Debug("bridge ignores bus frequency", "hz", cfg.Frequency)
	}
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

// Uninit abandons the request in flight, stops the reader and closes the port.
func (c *Controller) Uninit() {
	c.mu.Lock()
	stop, readerDone := c.stop, c.readerDone
	c.stop, c.readerDone = nil, nil
	c.enabled = false
	req := c.inflight
	c.inflight = nil
	c.mu.Unlock()

	if req != nil {
		req.timer.Stop()
		req.done(nil)
	}
	if stop == nil {
		return
	}
	close(stop)
	if err := c.port.Close(); err != nil {
		c.log.Warn("serial close failed", "error", err)
	}
	<-readerDone
}

// State reports the breaker state.
func (c *Controller) State() gobreaker.State {
	return c.breaker.State()
}

// Begin sends xfer to the bridge. It fails fast with core.ErrBusBusy while
// the breaker is open or a request is outstanding. The bridge runs every
// request as one transfer ending in a STOP, so a transfer that must hold the
// bus gets core.ErrInvalidTransfer.
func (c *Controller) Begin(xfer core.Transfer) error {
	if xfer.HoldsBus() {
		return core.ErrInvalidTransfer
	}
	req := protocol.Request{
		Address: uint8(xfer.Address),
		Write:   xfer.WriteData(),
		ReadLen: uint8(len(xfer.ReadData())),
	}
	if xfer.Flags&core.NoStop != 0 {
		req.Flags |= protocol.FlagNoStop
	}
	if len(xfer.ReadData()) > protocol.MaxReadLen || !req.Fits() {
		return core.Wrap(core.ErrInvalidTransfer, protocol.ErrFrameTooLarge)
	}

	c.mu.Lock()
	if !c.enabled || c.stop == nil || c.inflight != nil {
		c.mu.Unlock()
		return core.ErrBusBusy
	}
	done, err := c.breaker.Allow()
	if err != nil {
		c.mu.Unlock()
		return core.Wrap(core.ErrBusBusy, err)
	}

	c.tag++
	req.Tag = c.tag
	seq := c.seq
	c.seq = protocol.NextSequence(c.seq)
	msg, err := protocol.EncodeFrame(seq, req.Encode)
	if err != nil {
		c.mu.Unlock()
		done(nil)
		return core.Wrap(core.ErrInvalidTransfer, err)
	}

	pending := &request{tag: req.Tag, xfer: xfer, done: done}
	pending.timer = time.AfterFunc(c.cfg.ReplyTimeout, func() {
		c.complete(pending, nil, core.Wrap(core.ErrBusTimeout, errLink))
	})
	c.inflight = pending
	c.mu.Unlock()

	if _, err := c.port.Write(msg); err != nil {
		c.mu.Lock()
		owned := c.inflight == pending
		if owned {
			c.inflight = nil
		}
		c.mu.Unlock()
		if owned {
			pending.timer.Stop()
			done(errLink)
			return core.Wrap(core.ErrBusFault, err)
		}
		// Timeout already reported it
	}
	return nil
}

// complete finishes req if it is still the one in flight.
func (c *Controller) complete(req *request, reply *protocol.Reply, err error) {
	c.mu.Lock()
	if c.inflight != req {
		c.mu.Unlock()
		return
	}
	c.inflight = nil
	h := c.handler
	c.mu.Unlock()

	req.timer.Stop()
	if reply != nil && err == nil {
		if rd := req.xfer.ReadData(); len(reply.Read) != len(rd) {
			err = core.Wrap(core.ErrBusFault, errLink)
		} else {
			copy(rd, reply.Read)
		}
	}
	req.done(err)
	h(err)
}

func (c *Controller) readLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buffer := make([]byte, 256)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := c.port.Read(buffer)
		if n > 0 {
			c.scanner.Write(buffer[:n])
			c.dispatch()
		}
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				c.log.Warn("bridge link closed", "error", err)
				return
			}
			c.log.Debug("serial read error", "error", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// dispatch matches every complete frame to the request in flight.
func (c *Controller) dispatch() {
	for {
		frame, ok := c.scanner.Next()
		if !ok {
			return
		}
		reply, err := protocol.DecodeReply(frame.Payload)
		if err != nil {
			c.log.Debug("dropping bridge frame", "seq", frame.Sequence, "error", err)
			continue
		}

		c.mu.Lock()
		req := c.inflight
		c.mu.Unlock()
		if req == nil || req.tag != reply.Tag {
			c.log.Debug("stale bridge reply", "tag", reply.Tag)
			continue
		}
		c.complete(req, &reply, reply.Status.Err())
	}
}
