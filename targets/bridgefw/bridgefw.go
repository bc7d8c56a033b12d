// Package bridgefw is the firmware half of the serial I2C bridge. Each
// request frame becomes a queued transaction on the local manager; the
// reply frame is built in the completion callback and handed to the
// transmit function.
package bridgefw

import (
	"errors"

	"twimngr/core"
	"twimngr/protocol"
)

// ScratchSize is the block size the server's allocator must provide.
const ScratchSize = protocol.MaxReadLen

// Server answers bridge requests.
type Server struct {
	mngr *core.Manager
	send func(frame []byte)

	// Counters, for the debug console
	Requests  uint32
	Rejected  uint32
	Malformed uint32
}

// New returns a server on m. send is called once per reply, possibly from
// the completion context; it must copy or consume frame before returning.
func New(m *core.Manager, send func(frame []byte)) *Server {
	return &Server{mngr: m, send: send}
}

// Handle runs one request frame. Requests the queue cannot take are
// answered with StatusBusy right away; malformed frames get no reply.
func (s *Server) Handle(frame protocol.Frame) {
	req, err := protocol.DecodeRequest(frame.Payload)
	if err != nil {
		s.Malformed++
		core.DebugPrintln("[BRIDGE] bad request: " + err.Error())
		return
	}
	s.Requests++

	var scratch *core.Scratch
	if req.ReadLen > 0 {
		if scratch, err = s.mngr.AllocScratch(int(req.ReadLen)); err != nil {
			s.reject(frame.Sequence, req.Tag, protocol.StatusBusy)
			return
		}
	}

	var flags core.Flags
	if req.Flags&protocol.FlagNoStop != 0 {
		flags |= core.NoStop
	}
	addr := core.Address(req.Address)

	var xfer core.Transfer
	switch {
	case scratch != nil && len(req.Write) > 0:
		xfer = core.TxRx(addr, req.Write, scratch.Bytes(), flags)
	case scratch != nil:
		xfer = core.Rx(addr, scratch.Bytes(), flags)
	default:
		xfer = core.Tx(addr, req.Write, flags)
	}

	err = s.mngr.Schedule(core.Transaction{
		Transfer: xfer,
		Callback: s.complete,
		Context:  req.Tag,
		Event:    frame.Sequence,
		Scratch:  scratch,
	})
	if err != nil {
		if scratch != nil {
			scratch.Release()
		}
		status := protocol.StatusFault
		if errors.Is(err, core.ErrQueueFull) {
			status = protocol.StatusBusy
		}
		s.reject(frame.Sequence, req.Tag, status)
	}
}

func (s *Server) complete(err error, t *core.Transaction) {
	reply := protocol.Reply{
		Tag:    t.Context.(uint8),
		Status: protocol.StatusOf(err),
	}
	if err == nil {
		reply.Read = t.Transfer.ReadData()
	}
	s.reply(t.Event, &reply)
}

func (s *Server) reject(seq, tag uint8, status protocol.Status) {
	s.Rejected++
	s.reply(seq, &protocol.Reply{Tag: tag, Status: status})
}

func (s *Server) reply(seq uint8, r *protocol.Reply) {
	msg, err := protocol.EncodeFrame(seq, r.Encode)
	if err != nil {
		core.DebugPrintln("[BRIDGE] reply too large: " + err.Error())
		return
	}
	s.send(msg)
}
