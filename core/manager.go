// Package core implements the TWI (I2C) transaction manager.
//
// Peripheral drivers that share one I2C controller hand their transfers to a
// Manager instead of driving the controller directly. The manager keeps a
// bounded FIFO of pending transactions, keeps exactly one transfer in flight
// and calls each transaction's callback from the controller's completion
// context before starting the next one.
package core

import "runtime"

// Callback is invoked once per transaction after its transfer finished.
// t is a copy of the transaction and is only valid during the call; any
// scratch memory it references is released as soon as the callback returns.
type Callback func(err error, t *Transaction)

// Transaction is one queued unit of work.
type Transaction struct {
	Transfer Transfer
	Callback Callback
	Context  any   // Caller data, passed back untouched
	Event    uint8 // Caller-defined tag, passed back untouched

	// Scratch, when set, backs the transfer buffers. The manager releases it
	// after Callback returns. If Schedule fails it stays with the caller.
	Scratch *Scratch
}

// Config holds Init parameters.
type Config struct {
	Bus BusConfig

	// Allocator serves AllocScratch. Nil selects a BlockPool of
	// DefaultScratchBlocks x DefaultScratchBlockSize.
	Allocator Allocator
}

// Stats counts dispatcher activity since Init.
type Stats struct {
	Scheduled     uint32 // Accepted by Schedule
	Rejected      uint32 // Refused with ErrQueueFull
	Started       uint32 // Accepted by the controller
	StartFailures uint32 // Refused by the controller
	Completed     uint32 // Callbacks delivered, any result
	Failed        uint32 // Callbacks delivered with an error
}

// Manager serializes transactions on one bus controller.
type Manager struct {
	bus   BusController
	alloc Allocator
	queue *queue

	// Guarded by the critical section
	current   Transaction
	inFlight  bool
	ready     bool
	callbackG uint64 // completionToken of the goroutine running a callback, 0 if none
	stats     Stats
	trace     traceRing
}

// New creates a manager for bus with room for queueSize pending transactions.
// The transaction in flight does not occupy a queue slot.
func New(bus BusController, queueSize int) *Manager {
	mustHold(bus != nil, "nil bus controller")
	mustHold(queueSize > 0, "queue size must be positive")
	return &Manager{
		bus:   bus,
		queue: newQueue(queueSize),
	}
}

// Init configures and enables the controller and makes the manager accept work.
func (m *Manager) Init(cfg Config) error {
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = NewBlockPool(DefaultScratchBlocks, DefaultScratchBlockSize)
	}

	if err := m.bus.Init(cfg.Bus, m.HandleEvent); err != nil {
		return Wrap(ErrInit, err)
	}
	m.bus.Enable()

	state := disableInterrupts()
	m.alloc = alloc
	m.inFlight = false
	m.ready = true
	m.stats = Stats{}
	restoreInterrupts(state)

	return nil
}

// Uninit releases the controller. Transactions still queued are dropped
// without a callback and their scratch goes back to the allocator. The
// scratch of an abandoned transfer in flight is not returned, since the
// controller may still be writing to it.
func (m *Manager) Uninit() {
	state := disableInterrupts()
	m.ready = false
	restoreInterrupts(state)

	m.bus.Disable()
	m.bus.Uninit()

	state = disableInterrupts()
	m.inFlight = false
	m.current = Transaction{}
	restoreInterrupts(state)

	for {
		state = disableInterrupts()
		t, ok := m.queue.pop()
		restoreInterrupts(state)
		if !ok {
			return
		}
		if t.Scratch != nil {
			t.Scratch.Release()
		}
	}
}

// Schedule queues t and starts it right away if the bus is idle.
// Returns ErrQueueFull when no slot is free; nothing is retried internally.
func (m *Manager) Schedule(t Transaction) error {
	if err := t.Transfer.Validate(); err != nil {
		return err
	}

	state := disableInterrupts()
	if !m.ready {
		restoreInterrupts(state)
		return ErrNotInitialized
	}
	ok := m.queue.push(t)
	if ok {
		m.stats.Scheduled++
		m.trace.record(EvtSchedule, t.Transfer.Address, false)
	} else {
		m.stats.Rejected++
		m.trace.record(EvtQueueFull, t.Transfer.Address, true)
	}
	restoreInterrupts(state)

	if !ok {
		return ErrQueueFull
	}

	m.startNext(false)
	return nil
}

// startNext pops and starts queued transactions until one is accepted by the
// controller or the queue runs dry. force skips the idle check; it is set
// when the caller is finishing the current transaction.
func (m *Manager) startNext(force bool) {
	for {
		var xfer Transfer
		start := false

		state := disableInterrupts()
		if force || !m.inFlight {
			var t Transaction
			ok := false
			if m.ready {
				t, ok = m.queue.pop()
			}
			if ok {
				m.current = t
				m.inFlight = true
				xfer = t.Transfer
				start = true
				m.trace.record(EvtStart, xfer.Address, false)
			} else {
				m.inFlight = false
			}
		}
		restoreInterrupts(state)

		if !start {
			return
		}

		err := m.bus.Begin(xfer)
		if err == nil {
			state = disableInterrupts()
			m.stats.Started++
			restoreInterrupts(state)
			return
		}

		// The controller refused the transfer; no completion will follow.
		state = disableInterrupts()
		m.stats.StartFailures++
		m.trace.record(EvtStartFail, xfer.Address, true)
		restoreInterrupts(state)

		m.finish(err)
		force = true
	}
}

// HandleEvent is the controller's completion entry point. It reports the
// result of the transfer in flight and starts the next queued one.
func (m *Manager) HandleEvent(err error) {
	state := disableInterrupts()
	busy := m.inFlight
	restoreInterrupts(state)
	mustHold(busy, "bus event with no transaction in flight")

	m.finish(err)
	m.startNext(true)
}

// finish delivers err for the current transaction and releases its scratch.
// The current slot stays valid until the next startNext pops over it.
func (m *Manager) finish(err error) {
	t := m.current

	state := disableInterrupts()
	m.stats.Completed++
	if err != nil {
		m.stats.Failed++
	}
	m.trace.record(EvtComplete, t.Transfer.Address, err != nil)
	restoreInterrupts(state)

	if t.Callback != nil {
		m.runCallback(err, &t)
	}
	if t.Scratch != nil {
		t.Scratch.Release()
	}
}

// runCallback marks the calling goroutine as the completion context while
// the callback runs.
func (m *Manager) runCallback(err error, t *Transaction) {
	g := completionToken()
	state := disableInterrupts()
	prev := m.callbackG
	m.callbackG = g
	restoreInterrupts(state)

	defer func() {
		state := disableInterrupts()
		m.callbackG = prev
		restoreInterrupts(state)
	}()
	t.Callback(err, t)
}

// inCallback reports whether the caller is running one of m's callbacks.
func (m *Manager) inCallback() bool {
	g := completionToken()
	state := disableInterrupts()
	cb := m.callbackG
	restoreInterrupts(state)
	return cb != 0 && cb == g
}

// Perform schedules xfer and waits for its result. idle, if non-nil, is
// called on every spin (a delay, a log flush). The completion context must
// keep running while Perform spins, so calling it from an interrupt handler
// or from a completion callback panics.
func (m *Manager) Perform(xfer Transfer, idle func()) error {
	mustHold(!inInterrupt(), "Perform called from interrupt context")
	mustHold(!m.inCallback(), "Perform called from a completion callback")

	done := make(chan struct{})
	var result error
	t := Transaction{
		Transfer: xfer,
		Callback: func(err error, _ *Transaction) {
			result = err
			close(done)
		},
	}

	if err := m.Schedule(t); err != nil {
		return err
	}

	for {
		select {
		case <-done:
			return result
		default:
		}
		if idle != nil {
			idle()
		}
		// Backends that complete from a goroutine need a chance to run
		// under a cooperative scheduler.
		runtime.Gosched()
	}
}

// AllocScratch reserves size bytes of scratch memory for a transaction.
func (m *Manager) AllocScratch(size int) (*Scratch, error) {
	state := disableInterrupts()
	alloc := m.alloc
	restoreInterrupts(state)

	if alloc == nil {
		return nil, ErrNotInitialized
	}
	buf := alloc.Alloc(size)
	if buf == nil {
		return nil, ErrNoMemory
	}
	return newScratch(alloc, buf), nil
}

// IsIdle reports whether no transfer is in flight.
func (m *Manager) IsIdle() bool {
	state := disableInterrupts()
	idle := !m.inFlight
	restoreInterrupts(state)
	return idle
}

// Queued returns the number of transactions waiting behind the one in flight.
func (m *Manager) Queued() int {
	state := disableInterrupts()
	n := m.queue.len()
	restoreInterrupts(state)
	return n
}

// Capacity returns the queue size given to New.
func (m *Manager) Capacity() int {
	return m.queue.capacity()
}

// Stats returns a snapshot of the dispatcher counters.
func (m *Manager) Stats() Stats {
	state := disableInterrupts()
	s := m.stats
	restoreInterrupts(state)
	return s
}
