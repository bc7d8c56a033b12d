package core

// Dispatcher trace event kinds
const (
	EvtSchedule  = 1 // Transaction accepted into the queue
	EvtQueueFull = 2 // Transaction refused, queue full
	EvtStart     = 3 // Transaction popped and handed to the controller
	EvtStartFail = 4 // Controller refused to start the transfer
	EvtComplete  = 5 // Callback delivered
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem
)

// TraceEvent captures one dispatcher step.
type TraceEvent struct {
	Kind    uint8
	Seq     uint32 // Monotonic per manager
	Address Address
	Failed  bool
}

// traceRing is guarded by the manager's critical section.
type traceRing struct {
	events [TraceRingSize]TraceEvent
	head   uint8
	seq    uint32
}

func (r *traceRing) record(kind uint8, addr Address, failed bool) {
	r.seq++
	r.events[r.head] = TraceEvent{
		Kind:    kind,
		Seq:     r.seq,
		Address: addr,
		Failed:  failed,
	}
	r.head = (r.head + 1) % TraceRingSize
}

// Trace returns the recorded events, oldest first.
func (m *Manager) Trace() []TraceEvent {
	state := disableInterrupts()
	ring := m.trace
	restoreInterrupts(state)

	out := make([]TraceEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := ring.events[(ring.head+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// DumpTrace writes the trace through w, one line per event. Useful when the
// bus hangs and no completion ever arrives.
func (m *Manager) DumpTrace(w DebugWriter) {
	if w == nil {
		return
	}

	events := m.Trace()
	w("[TWI] === Trace Dump ===")
	for i := range events {
		evt := &events[i]
		line := "[TWI] #" + utoa(uint64(evt.Seq)) + " " + traceName(evt.Kind) +
			" addr=0x" + hex8(uint8(evt.Address))
		if evt.Failed {
			line += " FAILED"
		}
		w(line)
	}
	st := m.Stats()
	w("[TWI] scheduled=" + utoa(uint64(st.Scheduled)) +
		" rejected=" + utoa(uint64(st.Rejected)) +
		" completed=" + utoa(uint64(st.Completed)) +
		" failed=" + utoa(uint64(st.Failed)) +
		" queued=" + itoa(m.Queued()))
	w("[TWI] === End Dump ===")
}

func traceName(kind uint8) string {
	switch kind {
	case EvtSchedule:
		return "SCHEDULE"
	case EvtQueueFull:
		return "QUEUE_FULL!"
	case EvtStart:
		return "START"
	case EvtStartFail:
		return "START_FAIL!"
	case EvtComplete:
		return "COMPLETE"
	}
	return "UNKNOWN"
}
