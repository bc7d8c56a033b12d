package core

import (
	"sync"
	"testing"
)

// simBus is a BusController for tests. It records every started transfer,
// flags overlapping starts and completes either on demand (Complete) or
// synchronously inside Begin when immediate is set.
type simBus struct {
	t *testing.T

	mu        sync.Mutex
	handler   EventHandler
	cfg       BusConfig
	enabled   bool
	inFlight  bool
	begun     []Transfer
	rejects   []error // consumed one per Begin; nil entries accept
	results   []error // immediate mode: consumed one per transfer
	immediate bool
	fill      func(xfer Transfer) // runs before an immediate completion
	started   chan Transfer
	uninits   int
	initErr   error
}

func newSimBus(t *testing.T) *simBus {
	return &simBus{t: t, started: make(chan Transfer, 64)}
}

func (b *simBus) Init(cfg BusConfig, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initErr != nil {
		return b.initErr
	}
	b.cfg = cfg
	b.handler = handler
	return nil
}

func (b *simBus) Enable() {
	b.mu.Lock()
	b.enabled = true
	b.mu.Unlock()
}

func (b *simBus) Disable() {
	b.mu.Lock()
	b.enabled = false
	b.mu.Unlock()
}

func (b *simBus) Uninit() {
	b.mu.Lock()
	b.uninits++
	b.inFlight = false
	b.mu.Unlock()
}

func (b *simBus) Begin(xfer Transfer) error {
	b.mu.Lock()
	if b.inFlight {
		b.t.Errorf("Begin(0x%02x) while another transfer is in flight", xfer.Address)
	}
	if len(b.rejects) > 0 {
		err := b.rejects[0]
		b.rejects = b.rejects[1:]
		if err != nil {
			b.mu.Unlock()
			return err
		}
	}
	b.begun = append(b.begun, xfer)
	b.inFlight = true
	immediate := b.immediate
	fill := b.fill
	var result error
	if immediate && len(b.results) > 0 {
		result = b.results[0]
		b.results = b.results[1:]
	}
	b.mu.Unlock()

	select {
	case b.started <- xfer:
	default:
	}
	if immediate {
		if fill != nil {
			fill(xfer)
		}
		b.Complete(result)
	}
	return nil
}

// Complete delivers the completion of the transfer in flight.
func (b *simBus) Complete(err error) {
	b.mu.Lock()
	if !b.inFlight {
		b.mu.Unlock()
		b.t.Fatalf("Complete with nothing in flight")
		return
	}
	b.inFlight = false
	h := b.handler
	b.mu.Unlock()
	h(err)
}

func (b *simBus) Begun() []Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Transfer(nil), b.begun...)
}

func (b *simBus) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// countingAllocator asserts on double free and tracks live buffers.
type countingAllocator struct {
	t      *testing.T
	mu     sync.Mutex
	live   map[*byte]bool
	allocs int
	frees  int
	limit  int
}

func newCountingAllocator(t *testing.T) *countingAllocator {
	return &countingAllocator{t: t, live: make(map[*byte]bool)}
}

func (a *countingAllocator) Alloc(size int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limit > 0 && len(a.live) >= a.limit {
		return nil
	}
	buf := make([]byte, size)
	a.live[&buf[0]] = true
	a.allocs++
	return buf
}

func (a *countingAllocator) Free(buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.live[&buf[0]] {
		a.t.Errorf("free of unknown or already freed buffer")
		return
	}
	delete(a.live, &buf[0])
	a.frees++
}

func (a *countingAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// newTestManager returns an initialized manager on a fresh simBus.
func newTestManager(t *testing.T, queueSize int) (*Manager, *simBus, *countingAllocator) {
	t.Helper()
	bus := newSimBus(t)
	alloc := newCountingAllocator(t)
	m := New(bus, queueSize)
	if err := m.Init(Config{Bus: BusConfig{Frequency: 400000}, Allocator: alloc}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m, bus, alloc
}
