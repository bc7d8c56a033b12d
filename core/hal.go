package core

// Pin identifies a GPIO pin used for SCL/SDA.
type Pin uint8

// BusConfig is handed to the bus controller once, at Init.
type BusConfig struct {
	SCL       Pin
	SDA       Pin
	Frequency uint32 // Bus clock in Hz (100000 or 400000 on nRF TWI)
	Priority  uint8  // Interrupt priority of the completion handler
}

// EventHandler receives the completion of a started transfer.
// err is nil on success, otherwise one of the ErrBus* errors (possibly wrapped).
type EventHandler func(err error)

// BusController is the abstract I2C peripheral the manager drives.
//
// The controller executes one transfer at a time. Begin starts a transfer
// asynchronously; the EventHandler given to Init is then called exactly once
// for it, from the controller's completion context (interrupt handler or
// backend goroutine). If Begin returns an error the handler is not called for
// that transfer.
type BusController interface {
	// Init configures pins, clock and interrupt priority and stores handler.
	Init(cfg BusConfig, handler EventHandler) error

	// Enable powers up the peripheral.
	Enable()

	// Disable powers down the peripheral.
	Disable()

	// Uninit releases the peripheral. A transfer in flight is abandoned
	// without calling the handler.
	Uninit()

	// Begin starts xfer. Returns ErrBusBusy when the hardware cannot accept
	// a transfer right now.
	Begin(xfer Transfer) error
}
