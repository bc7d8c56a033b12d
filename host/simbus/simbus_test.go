package simbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"twimngr/core"
)

func TestRegisterFile(t *testing.T) {
	b := New(0)
	d := b.Attach(0x5B)
	d.SetWordLE(0x0E, 0xCBE0)

	r := make([]byte, 2)
	require.NoError(t, b.Tx(0x5B, []byte{0x0E}, r))
	assert.Equal(t, []byte{0xE0, 0xCB}, r)

	require.NoError(t, b.Tx(0x5B, []byte{0x10, 1, 2, 3}, nil))
	assert.Equal(t, []byte{1, 2, 3}, d.Get(0x10, 3))

	// Pointer continues after the last access
	require.NoError(t, b.Tx(0x5B, nil, r))
	assert.Equal(t, d.Get(0x13, 2), r)

	assert.Len(t, b.Ops(), 3)
}

func TestWordCommands(t *testing.T) {
	b := New(0)
	d := b.Attach(0x5B)
	d.SetWordLE(0x26, 0x3A3C)
	d.SetWordLE(0x27, 0x3C80)

	r := make([]byte, 2)
	require.NoError(t, b.Tx(0x5B, []byte{0x26}, r))
	assert.Equal(t, []byte{0x3C, 0x3A}, r)
	require.NoError(t, b.Tx(0x5B, []byte{0x27}, r))
	assert.Equal(t, []byte{0x80, 0x3C}, r)

	// Adjacent big-endian words keep their own values
	tmp := b.Attach(0x48)
	tmp.SetWordBE(0x01, 0x60A0)
	tmp.SetWordBE(0x00, 0x1780)
	require.NoError(t, b.Tx(0x48, []byte{0x01}, r))
	assert.Equal(t, []byte{0x60, 0xA0}, r)

	long := make([]byte, 3)
	require.NoError(t, b.Tx(0x48, []byte{0x00}, long))
	assert.Equal(t, []byte{0x17, 0x80, 0x17}, long)

	// Reads without a command byte stay on the word
	require.NoError(t, b.Tx(0x48, nil, r))
	assert.Equal(t, []byte{0x17, 0x80}, r)

	require.NoError(t, b.Tx(0x48, []byte{0x01, 0x61, 0xA1}, nil))
	assert.Equal(t, []byte{0x61, 0xA1}, tmp.Get(0x01, 2))
	assert.Equal(t, []byte{0x17, 0x80}, tmp.Get(0x00, 2))
}

func TestMissingAndNACKedDevices(t *testing.T) {
	b := New(0)
	b.Attach(0x28)

	assert.ErrorIs(t, b.Tx(0x29, []byte{0}, nil), core.ErrBusNACK)

	b.SetNACK(0x28, true)
	assert.ErrorIs(t, b.Tx(0x28, []byte{0}, nil), core.ErrBusNACK)
	b.SetNACK(0x28, false)
	assert.NoError(t, b.Tx(0x28, []byte{0}, nil))
}

func TestOnWriteHook(t *testing.T) {
	b := New(0)
	d := b.Attach(0x70)
	var seen []byte
	d.OnWrite = func(_ *Device, w []byte) { seen = append([]byte(nil), w...) }

	require.NoError(t, b.Tx(0x70, []byte{0x04}, nil))
	assert.Equal(t, []byte{0x04}, seen)
}

func TestManagerOnSimulatedBus(t *testing.T) {
	b := New(0)
	d := b.Attach(0x28)
	m := core.New(NewController(b, nil), 4)
	require.NoError(t, m.Init(core.Config{Bus: core.BusConfig{Frequency: 400000}}))
	defer m.Uninit()
	assert.Equal(t, 400*physic.KiloHertz, b.Speed())

	done := make(chan error, 2)
	cb := func(err error, _ *core.Transaction) { done <- err }
	require.NoError(t, m.WriteRegister(0x28, 0x40, []byte{0x11, 0x22}, core.Completion{Callback: cb}))
	require.NoError(t, m.WriteRegister(0x29, 0x40, []byte{0x33}, core.Completion{Callback: cb}))

	assert.NoError(t, <-done)
	assert.ErrorIs(t, <-done, core.ErrBusNACK)
	assert.Equal(t, []byte{0x11, 0x22}, d.Get(0x40, 2))
}
