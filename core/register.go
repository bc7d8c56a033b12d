package core

// Completion bundles what a register helper passes through to the callback.
type Completion struct {
	Callback Callback
	Context  any
	Event    uint8
}

// WriteRegister queues a write of reg followed by data. The bytes are copied
// into scratch memory, so data may be reused as soon as this returns.
func (m *Manager) WriteRegister(addr Address, reg uint8, data []byte, c Completion) error {
	s, err := m.AllocScratch(len(data) + 1)
	if err != nil {
		return err
	}
	buf := s.Bytes()
	buf[0] = reg
	copy(buf[1:], data)

	return m.scheduleScratch(Tx(addr, buf, 0), s, c)
}

// WriteBytes queues a raw write with no register prefix.
func (m *Manager) WriteBytes(addr Address, data []byte, c Completion) error {
	s, err := m.AllocScratch(len(data))
	if err != nil {
		return err
	}
	copy(s.Bytes(), data)

	return m.scheduleScratch(Tx(addr, s.Bytes(), 0), s, c)
}

// ReadRegister queues a read of n bytes starting at reg. The callback finds
// the data in t.Transfer.Secondary.
func (m *Manager) ReadRegister(addr Address, reg uint8, n int, c Completion) error {
	if n <= 0 {
		return ErrInvalidTransfer
	}
	s, err := m.AllocScratch(n + 1)
	if err != nil {
		return err
	}
	buf := s.Bytes()
	buf[0] = reg

	return m.scheduleScratch(TxRx(addr, buf[:1], buf[1:], 0), s, c)
}

// ReadRegisterBlocking reads len(buf) bytes starting at reg into buf and
// waits for the result. Meant for init sequences.
func (m *Manager) ReadRegisterBlocking(addr Address, reg uint8, buf []byte, idle func()) error {
	cmd := [1]byte{reg}
	return m.Perform(TxRx(addr, cmd[:], buf, NoStop), idle)
}

// WriteRegisterBlocking writes reg followed by data and waits for the result.
func (m *Manager) WriteRegisterBlocking(addr Address, reg uint8, data []byte, idle func()) error {
	buf := make([]byte, len(data)+1)
	buf[0] = reg
	copy(buf[1:], data)
	return m.Perform(Tx(addr, buf, 0), idle)
}

func (m *Manager) scheduleScratch(xfer Transfer, s *Scratch, c Completion) error {
	err := m.Schedule(Transaction{
		Transfer: xfer,
		Callback: c.Callback,
		Context:  c.Context,
		Event:    c.Event,
		Scratch:  s,
	})
	if err != nil {
		s.Release()
	}
	return err
}
