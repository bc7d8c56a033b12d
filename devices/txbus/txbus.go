// Package txbus lets stock TinyGo drivers share a managed bus. Bus
// implements drivers.I2C by running each Tx through the manager's queue and
// waiting for it, so driver calls interleave safely with queued traffic.
package txbus

import (
	"tinygo.org/x/drivers"

	"twimngr/core"
)

// Bus adapts a core.Manager to drivers.I2C. It must not be used from the
// manager's completion context.
type Bus struct {
	mngr *core.Manager
	idle func()
}

var _ drivers.I2C = (*Bus)(nil)

// New returns a Bus on m. idle runs while a transfer is pending.
func New(m *core.Manager, idle func()) *Bus {
	return &Bus{mngr: m, idle: idle}
}

// Tx writes w and then reads into r with a repeated start. Either may be
// empty, not both.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > core.AddressMask {
		return core.ErrInvalidTransfer
	}
	a := core.Address(addr)

	var xfer core.Transfer
	switch {
	case len(w) > 0 && len(r) > 0:
		xfer = core.TxRx(a, w, r, 0)
	case len(w) > 0:
		xfer = core.Tx(a, w, 0)
	case len(r) > 0:
		xfer = core.Rx(a, r, 0)
	default:
		return core.ErrInvalidTransfer
	}
	return b.mngr.Perform(xfer, b.idle)
}

// ReadRegister reads len(data) bytes starting at reg.
func (b *Bus) ReadRegister(addr uint8, reg uint8, data []byte) error {
	return b.mngr.ReadRegisterBlocking(core.Address(addr), reg, data, b.idle)
}

// WriteRegister writes data starting at reg.
func (b *Bus) WriteRegister(addr uint8, reg uint8, data []byte) error {
	return b.mngr.WriteRegisterBlocking(core.Address(addr), reg, data, b.idle)
}
