package core

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRecordsDispatcherSteps(t *testing.T) {
	m, bus, _ := newTestManager(t, 1)

	require.NoError(t, m.Schedule(Transaction{Transfer: Tx(0x11, []byte{1}, 0)}))
	require.NoError(t, m.Schedule(Transaction{Transfer: Tx(0x12, []byte{1}, 0)}))
	assert.ErrorIs(t, m.Schedule(Transaction{Transfer: Tx(0x13, []byte{1}, 0)}), ErrQueueFull)
	bus.Complete(ErrBusNACK)

	var kinds []uint8
	for _, evt := range m.Trace() {
		kinds = append(kinds, evt.Kind)
	}
	assert.Equal(t, []uint8{
		EvtSchedule, EvtStart, // 0x11
		EvtSchedule,  // 0x12
		EvtQueueFull, // 0x13
		EvtComplete,  // 0x11 failed
		EvtStart,     // 0x12
	}, kinds)

	events := m.Trace()
	assert.True(t, events[4].Failed)
	assert.Equal(t, Address(0x11), events[4].Address)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
	}
}

func TestTraceRingKeepsNewest(t *testing.T) {
	m, bus, _ := newTestManager(t, 1)
	bus.immediate = true

	for i := 0; i < 40; i++ {
		require.NoError(t, m.Schedule(Transaction{Transfer: Tx(Address(i), []byte{1}, 0)}))
	}

	events := m.Trace()
	require.Len(t, events, TraceRingSize)
	last := events[len(events)-1]
	assert.Equal(t, uint8(EvtComplete), last.Kind)
	assert.Equal(t, Address(39), last.Address)
	assert.Equal(t, uint32(120), last.Seq)
}

func TestDumpTrace(t *testing.T) {
	m, bus, _ := newTestManager(t, 2)
	require.NoError(t, m.Schedule(Transaction{Transfer: Tx(0x5B, []byte{1}, 0)}))
	bus.Complete(ErrBusTimeout)

	var lines []string
	m.DumpTrace(func(s string) { lines = append(lines, s) })

	out := strings.Join(lines, "\n")
	assert.Contains(t, out, "SCHEDULE addr=0x5b")
	assert.Contains(t, out, "COMPLETE addr=0x5b FAILED")
	assert.Contains(t, out, "completed=1 failed=1 queued=0")
	m.DumpTrace(nil)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "0", Itoa(0))
	assert.Equal(t, "-42", Itoa(-42))
	assert.Equal(t, "4294967295", utoa(4294967295))
	assert.Equal(t, "18446744073709551615", utoa(math.MaxUint64))
	assert.Equal(t, strconv.Itoa(math.MaxInt), itoa(math.MaxInt))
	assert.Equal(t, strconv.Itoa(math.MinInt), itoa(math.MinInt))
	assert.Equal(t, "0a", Hex8(10))
	assert.Equal(t, "ff", Hex8(0xFF))
}
