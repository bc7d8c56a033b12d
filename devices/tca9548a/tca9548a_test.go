package tca9548a

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"twimngr/core"
	"twimngr/host/simbus"
)

// muxModel behaves like the switch: a write sets the control byte and a
// read returns it.
func muxModel(bus *simbus.Bus) *simbus.Device {
	mux := bus.Attach(Address)
	mux.OnWrite = func(d *simbus.Device, w []byte) {
		d.Set(0, w[0])
		d.Seek(0)
	}
	return mux
}

func TestSelectIsOrderedWithDeviceTraffic(t *testing.T) {
	bus := simbus.New(0)
	muxModel(bus)
	bus.Attach(0x5B)

	m := core.New(simbus.NewController(bus, nil), 8)
	require.NoError(t, m.Init(core.Config{}))
	defer m.Uninit()

	mux := New(m, Address)
	require.NoError(t, mux.Select(3))
	require.NoError(t, m.WriteRegister(0x5B, 0x01, []byte{0xAA}, core.Completion{}))
	require.NoError(t, mux.Select(5))

	got, err := mux.ReadChannels(nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(1<<5), got)
	assert.Equal(t, uint8(1<<5), mux.Selected())

	ops := bus.Ops()
	require.Len(t, ops, 4)
	assert.Equal(t, i2ctest.IO{Addr: Address, W: []byte{0x08}}, ops[0])
	assert.Equal(t, uint16(0x5B), ops[1].Addr)
	assert.Equal(t, []byte{0x20}, ops[2].W)
}

func TestSelectRange(t *testing.T) {
	m := core.New(simbus.NewController(simbus.New(0), nil), 2)
	require.NoError(t, m.Init(core.Config{}))
	defer m.Uninit()

	mux := New(m, Address)
	assert.ErrorIs(t, mux.Select(-1), ErrInvalidChannel)
	assert.ErrorIs(t, mux.Select(Channels), ErrInvalidChannel)
}

func TestFailedSwitchReported(t *testing.T) {
	bus := simbus.New(0)
	m := core.New(simbus.NewController(bus, nil), 2)
	require.NoError(t, m.Init(core.Config{}))
	defer m.Uninit()

	failed := make(chan uint8, 1)
	mux := New(m, Address)
	mux.OnError = func(mask uint8, err error) {
		assert.ErrorIs(t, err, core.ErrBusNACK)
		failed <- mask
	}
	require.NoError(t, mux.SetChannels(0x81))
	assert.Equal(t, uint8(0x81), <-failed)
}
