package core

import "context"

// Pending is the channel-based handle for a transaction queued with Submit.
type Pending struct {
	done chan struct{}
	err  error
	data []byte
}

// Submit queues xfer and returns a handle that resolves when it completes.
// If scratch is non-nil it backs the transfer and is released on completion;
// on error it stays with the caller.
func (m *Manager) Submit(xfer Transfer, scratch *Scratch) (*Pending, error) {
	p := &Pending{done: make(chan struct{})}
	err := m.Schedule(Transaction{
		Transfer: xfer,
		Scratch:  scratch,
		Callback: func(err error, t *Transaction) {
			p.err = err
			if rd := t.Transfer.ReadData(); err == nil && rd != nil {
				p.data = append([]byte(nil), rd...)
			}
			close(p.done)
		},
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Done is closed once the transaction completed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the transfer result. Only meaningful after Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Data returns a copy of the bytes read, taken before scratch was released.
func (p *Pending) Data() []byte {
	select {
	case <-p.done:
		return p.data
	default:
		return nil
	}
}

// Wait blocks until completion or ctx is done. A context error does not
// withdraw the transaction; it still runs and completes later.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
