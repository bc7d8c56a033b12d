package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitResolvesWithReadData(t *testing.T) {
	m, bus, alloc := newTestManager(t, 4)

	s, err := m.AllocScratch(3)
	require.NoError(t, err)
	buf := s.Bytes()
	buf[0] = 0x27

	p, err := m.Submit(TxRx(0x5B, buf[:1], buf[1:], 0), s)
	require.NoError(t, err)

	select {
	case <-p.Done():
		t.Fatal("resolved before completion")
	default:
	}
	assert.Nil(t, p.Data())

	xfer := <-bus.started
	copy(xfer.Secondary, []byte{0x12, 0x34})
	bus.Complete(nil)

	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []byte{0x12, 0x34}, p.Data())
	assert.True(t, s.Released())
	assert.Equal(t, 0, alloc.Live())
}

func TestSubmitReportsBusError(t *testing.T) {
	m, bus, _ := newTestManager(t, 4)

	p, err := m.Submit(Tx(0x40, []byte{1, 2}, 0), nil)
	require.NoError(t, err)
	bus.Complete(ErrBusArbitration)

	<-p.Done()
	assert.ErrorIs(t, p.Err(), ErrBusArbitration)
	assert.Nil(t, p.Data())
}

func TestPendingWaitHonoursContext(t *testing.T) {
	m, bus, _ := newTestManager(t, 4)

	p, err := m.Submit(Tx(0x40, []byte{1}, 0), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)

	// The transaction was not withdrawn.
	assert.False(t, m.IsIdle())
	bus.Complete(nil)
	assert.NoError(t, p.Wait(context.Background()))
}

func TestSubmitQueueFullKeepsScratch(t *testing.T) {
	m, _, alloc := newTestManager(t, 1)
	require.NoError(t, m.Schedule(Transaction{Transfer: Tx(0x10, []byte{1}, 0)}))
	require.NoError(t, m.Schedule(Transaction{Transfer: Tx(0x10, []byte{2}, 0)}))

	s, err := m.AllocScratch(2)
	require.NoError(t, err)
	_, err = m.Submit(Tx(0x10, s.Bytes(), 0), s)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, s.Released())

	s.Release()
	assert.Equal(t, 0, alloc.Live())
}
