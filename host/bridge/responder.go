package bridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"periph.io/x/conn/v3/i2c"

	"twimngr/host/periphbus"
	"twimngr/protocol"
)

// Responder is the bridge side of the link: it answers requests by running
// them on a local i2c.Bus. A Linux board can act as a bridge with it, and
// tests use it as the far end of the controller.
type Responder struct {
	Bus i2c.Bus
	Log *slog.Logger

	// Drop, if set, is consulted for every request; returning true
	// swallows it without a reply.
	Drop func(req *protocol.Request) bool
}

// Serve answers requests from rw until reading fails. io.EOF ends it cleanly.
func (r *Responder) Serve(rw io.ReadWriter) error {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	scanner := protocol.NewFrameScanner()
	buffer := make([]byte, 256)

	for {
		n, err := rw.Read(buffer)
		if n > 0 {
			scanner.Write(buffer[:n])
			for {
				frame, ok := scanner.Next()
				if !ok {
					break
				}
				if werr := r.answer(rw, frame, log); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (r *Responder) answer(w io.Writer, frame protocol.Frame, log *slog.Logger) error {
	req, err := protocol.DecodeRequest(frame.Payload)
	if err != nil {
		log.Debug("bad bridge request", "seq", frame.Sequence, "error", err)
		return nil
	}
	if r.Drop != nil && r.Drop(&req) {
		return nil
	}

	reply := protocol.Reply{Tag: req.Tag}
	var read []byte
	if req.ReadLen > 0 {
		read = make([]byte, req.ReadLen)
	}
	// i2c.Bus.Tx always ends with a STOP; no-stop only fits between phases
	holdsBus := req.Flags&protocol.FlagNoStop != 0 && (len(req.Write) == 0 || req.ReadLen == 0)
	if holdsBus {
		reply.Status = protocol.StatusFault
		log.Debug("bridge request holds the bus", "addr", fmt.Sprintf("0x%02x", req.Address))
	} else if err := r.Bus.Tx(uint16(req.Address), req.Write, read); err != nil {
		reply.Status = protocol.StatusOf(periphbus.Classify(err))
		log.Debug("bridge transfer failed",
			"addr", fmt.Sprintf("0x%02x", req.Address),
			"status", reply.Status.String(),
			"error", err)
	} else {
		reply.Read = read
	}

	msg, err := protocol.EncodeFrame(frame.Sequence, reply.Encode)
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	return err
}
