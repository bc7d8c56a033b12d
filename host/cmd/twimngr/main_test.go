package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twimngr/config"
	"twimngr/core"
	"twimngr/devices/lp5024"
	"twimngr/devices/tca9548a"
	"twimngr/host/simbus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApp wires an app to a simulated bus the test can inspect.
func newTestApp(t *testing.T, cfg *config.Config) (*app, *simbus.Bus, *bytes.Buffer) {
	t.Helper()
	sim := newSimBus(cfg)
	m := core.New(simbus.NewController(sim, discardLogger()), cfg.QueueSize)
	require.NoError(t, m.Init(cfg.ManagerConfig()))
	t.Cleanup(m.Uninit)

	out := &bytes.Buffer{}
	a := &app{cfg: cfg, log: discardLogger(), out: out, mngr: m}
	if cfg.MuxAddress != 0 {
		a.mux = tca9548a.New(m, core.Address(cfg.MuxAddress))
	}
	return a, sim, out
}

func TestRunScan(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), config.Default(), discardLogger(), &out, []string{"scan"})
	require.NoError(t, err)
	assert.Equal(t, "3 device(s): 0x28 0x48 0x5b\n", out.String())
}

func TestReadWrite(t *testing.T) {
	a, sim, out := newTestApp(t, config.Default())
	ctx := context.Background()

	require.NoError(t, a.exec(ctx, []string{"read", "0x5b", "0x26", "2"}))
	assert.Equal(t, "0x5b[0x26]: 3c 3a\n", out.String())

	out.Reset()
	require.NoError(t, a.exec(ctx, []string{"write", "0x28", "0x10", "1", "0x02", "3"}))
	assert.Equal(t, "0x28[0x10] <- 01 02 03\n", out.String())

	assert.Equal(t, []byte{1, 2, 3}, sim.Device(0x28).Get(0x10, 3))
	ops := sim.Ops()
	last := ops[len(ops)-1]
	assert.Equal(t, uint16(0x28), last.Addr)
	assert.Equal(t, []byte{0x10, 1, 2, 3}, last.W)

	assert.ErrorIs(t, a.exec(ctx, []string{"read", "0x30", "0", "1"}), core.ErrBusNACK)
	assert.ErrorContains(t, a.exec(ctx, []string{"read", "0x80", "0", "1"}), "invalid 7-bit address")
	assert.ErrorContains(t, a.exec(ctx, []string{"write", "0x28", "0", "256"}), "invalid byte")
	assert.ErrorContains(t, a.exec(ctx, []string{"read", "0x28"}), "usage")
}

func TestTempDefaultSensor(t *testing.T) {
	a, _, out := newTestApp(t, config.Default())

	require.NoError(t, a.exec(context.Background(), []string{"temp"}))
	assert.Equal(t, "mlx90615 ambient: 25.01 C\nmlx90615 object: 36.61 C\n", out.String())
}

func TestTempBehindMux(t *testing.T) {
	cfg, err := config.Parse([]byte(`
mux_address: 0x70
devices:
  - kind: tmp102
    name: board
    channel: 3
  - kind: mlx90615
    name: ir
    channel: 5
`))
	require.NoError(t, err)
	a, sim, out := newTestApp(t, cfg)

	require.NoError(t, a.exec(context.Background(), []string{"temp"}))
	assert.Equal(t, "board temp: 23.50 C\nir ambient: 25.01 C\nir object: 36.61 C\n", out.String())

	var switches []byte
	for _, op := range sim.Ops() {
		if op.Addr == 0x70 {
			switches = append(switches, op.W...)
		}
	}
	assert.Equal(t, []byte{1 << 3, 1 << 5}, switches)
	assert.Equal(t, uint8(1<<5), a.mux.Selected())
}

func TestLeds(t *testing.T) {
	a, sim, _ := newTestApp(t, config.Default())

	require.NoError(t, a.exec(context.Background(), []string{"leds", "10", "20", "30"}))

	chip := sim.Device(lp5024.Address)
	require.NotNil(t, chip)
	assert.Equal(t, []byte{30, 20, 10}, chip.Get(lp5024.RegBankAColor, 3))
	assert.Equal(t, byte(0xFF), chip.Get(lp5024.RegLEDConfig0, 1)[0])
}

func TestWatch(t *testing.T) {
	a, _, out := newTestApp(t, config.Default())

	require.NoError(t, a.exec(context.Background(), []string{"watch", "-interval", "1ms", "-count", "2"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Contains(t, l, "mlx90615.ambient=25.01 mlx90615.object=36.61")
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	a, _, _ := newTestApp(t, config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, a.exec(ctx, []string{"watch", "-interval", "1h"}))
}

func TestTraceDumpsAfterCommand(t *testing.T) {
	a, _, out := newTestApp(t, config.Default())

	require.NoError(t, a.exec(context.Background(), []string{"trace", "read", "0x5b", "0x26", "2"}))
	s := out.String()
	assert.Contains(t, s, "[TWI] === Trace Dump ===")
	assert.Contains(t, s, "START addr=0x5b")
	assert.Contains(t, s, "completed=1 failed=0")
}

func TestUnknownCommand(t *testing.T) {
	a, _, _ := newTestApp(t, config.Default())
	assert.ErrorContains(t, a.exec(context.Background(), []string{"frobnicate"}), `unknown command "frobnicate"`)
}

func TestLoadConfigBackendOverride(t *testing.T) {
	cfg, err := loadConfig("", config.BackendPeriph)
	require.NoError(t, err)
	assert.Equal(t, config.BackendPeriph, cfg.Bus.Backend)

	_, err = loadConfig("", config.BackendBridge)
	assert.ErrorContains(t, err, "bus.serial.device")
}
