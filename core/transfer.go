package core

// Address is a 7-bit I2C peripheral address.
type Address uint8

// AddressMask keeps the 7 address bits.
const AddressMask = 0x7F

// Direction selects the shape of a transfer.
type Direction uint8

const (
	// Write sends Primary.
	Write Direction = iota
	// Read fills Primary.
	Read
	// WriteRead sends Primary, issues a repeated start and fills Secondary.
	WriteRead
)

// Flags modify how the controller finishes a transfer.
type Flags uint8

const (
	// NoStop leaves the bus claimed after the transfer (no STOP condition).
	// On WriteRead it covers the repeated start between the phases, which
	// every controller issues. On a plain Write or Read the controller must
	// be able to hold the bus; controllers that cannot refuse it in Begin
	// with ErrInvalidTransfer.
	NoStop Flags = 1 << iota
)

// Transfer describes one bus operation.
type Transfer struct {
	Address   Address
	Direction Direction
	Primary   []byte
	Secondary []byte
	Flags     Flags
}

// Tx builds a write transfer.
func Tx(addr Address, data []byte, flags Flags) Transfer {
	return Transfer{
		Address:   addr & AddressMask,
		Direction: Write,
		Primary:   data,
		Flags:     flags,
	}
}

// Rx builds a read transfer.
func Rx(addr Address, buf []byte, flags Flags) Transfer {
	return Transfer{
		Address:   addr & AddressMask,
		Direction: Read,
		Primary:   buf,
		Flags:     flags,
	}
}

// TxRx builds a combined write-then-read transfer.
func TxRx(addr Address, w, r []byte, flags Flags) Transfer {
	return Transfer{
		Address:   addr & AddressMask,
		Direction: WriteRead,
		Primary:   w,
		Secondary: r,
		Flags:     flags,
	}
}

// Validate checks the descriptor invariants.
func (t *Transfer) Validate() error {
	if t.Address > AddressMask {
		return ErrInvalidTransfer
	}
	if len(t.Primary) == 0 {
		return ErrInvalidTransfer
	}
	switch t.Direction {
	case Write, Read:
	case WriteRead:
		if len(t.Secondary) == 0 {
			return ErrInvalidTransfer
		}
	default:
		return ErrInvalidTransfer
	}
	return nil
}

// HoldsBus reports whether the transfer asks to end without a STOP and keep
// the bus claimed for whatever comes next.
func (t *Transfer) HoldsBus() bool {
	return t.Flags&NoStop != 0 && t.Direction != WriteRead
}

// ReadData returns the slice a read phase fills, or nil for a plain write.
func (t *Transfer) ReadData() []byte {
	switch t.Direction {
	case Read:
		return t.Primary
	case WriteRead:
		return t.Secondary
	}
	return nil
}

// WriteData returns the bytes sent on the bus, or nil for a plain read.
func (t *Transfer) WriteData() []byte {
	if t.Direction == Read {
		return nil
	}
	return t.Primary
}

func (d Direction) String() string {
	switch d {
	case Write:
		return "write"
	case Read:
		return "read"
	case WriteRead:
		return "write-read"
	}
	return "unknown"
}
