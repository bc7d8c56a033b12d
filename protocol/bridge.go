package protocol

import (
	"errors"

	"twimngr/core"
)

// Bridge command IDs
const (
	CmdI2CXfer   = 1 // host -> bridge: tag addr flags write[] read_len
	CmdI2CResult = 2 // bridge -> host: tag status read[]
)

// Request flags
const (
	FlagNoStop = 0x01
)

// Largest write and read a single request may carry. Both leave room for
// the header fields in a MessageLengthMax frame.
const (
	MaxWriteLen = 48
	MaxReadLen  = 48
)

var (
	ErrUnknownCommand = errors.New("protocol: unknown command")
	ErrMalformed      = errors.New("protocol: malformed message")
)

// Status is the bridge's verdict on one transfer.
type Status uint8

const (
	StatusOK Status = iota
	StatusNACK
	StatusArbitration
	StatusTimeout
	StatusBusy
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNACK:
		return "nack"
	case StatusArbitration:
		return "arbitration"
	case StatusTimeout:
		return "timeout"
	case StatusBusy:
		return "busy"
	}
	return "fault"
}

// Err maps s to the core bus error it stands for; StatusOK gives nil.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusNACK:
		return core.ErrBusNACK
	case StatusArbitration:
		return core.ErrBusArbitration
	case StatusTimeout:
		return core.ErrBusTimeout
	case StatusBusy:
		return core.ErrBusBusy
	}
	return core.ErrBusFault
}

// StatusOf is the inverse of Err for a transfer result.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, core.ErrBusNACK):
		return StatusNACK
	case errors.Is(err, core.ErrBusArbitration):
		return StatusArbitration
	case errors.Is(err, core.ErrBusTimeout):
		return StatusTimeout
	case errors.Is(err, core.ErrBusBusy):
		return StatusBusy
	}
	return StatusFault
}

// Request asks the bridge to run one transfer. An empty Write with a
// non-zero ReadLen is a plain read; both set is a write-read with a
// repeated start.
type Request struct {
	Tag     uint8
	Address uint8
	Flags   uint8
	Write   []byte
	ReadLen uint8
}

// Encode writes the request payload, command ID first.
func (r *Request) Encode(output OutputBuffer) {
	EncodeVLQUint(output, CmdI2CXfer)
	EncodeVLQUint(output, uint32(r.Tag))
	EncodeVLQUint(output, uint32(r.Address))
	EncodeVLQUint(output, uint32(r.Flags))
	EncodeVLQBytes(output, r.Write)
	EncodeVLQUint(output, uint32(r.ReadLen))
}

// Fits reports whether the request and its reply each fit in one frame.
func (r *Request) Fits() bool {
	return len(r.Write) <= MaxWriteLen && r.ReadLen <= MaxReadLen &&
		(len(r.Write) > 0 || r.ReadLen > 0)
}

// DecodeRequest parses a request payload.
func DecodeRequest(payload []byte) (Request, error) {
	var r Request
	cmd, err := DecodeVLQUint(&payload)
	if err != nil {
		return r, err
	}
	if cmd != CmdI2CXfer {
		return r, ErrUnknownCommand
	}

	var fields [3]uint32
	for i := range fields {
		if fields[i], err = DecodeVLQUint(&payload); err != nil {
			return r, err
		}
		if fields[i] > 0xFF {
			return r, ErrMalformed
		}
	}
	r.Tag, r.Address, r.Flags = uint8(fields[0]), uint8(fields[1]), uint8(fields[2])

	if r.Write, err = DecodeVLQBytes(&payload); err != nil {
		return r, err
	}
	readLen, err := DecodeVLQUint(&payload)
	if err != nil {
		return r, err
	}
	if readLen > MaxReadLen || len(payload) != 0 {
		return r, ErrMalformed
	}
	r.ReadLen = uint8(readLen)
	return r, nil
}

// Reply carries the outcome of a request, matched by Tag.
type Reply struct {
	Tag    uint8
	Status Status
	Read   []byte
}

// Encode writes the reply payload, command ID first.
func (r *Reply) Encode(output OutputBuffer) {
	EncodeVLQUint(output, CmdI2CResult)
	EncodeVLQUint(output, uint32(r.Tag))
	EncodeVLQUint(output, uint32(r.Status))
	EncodeVLQBytes(output, r.Read)
}

// DecodeReply parses a reply payload.
func DecodeReply(payload []byte) (Reply, error) {
	var r Reply
	cmd, err := DecodeVLQUint(&payload)
	if err != nil {
		return r, err
	}
	if cmd != CmdI2CResult {
		return r, ErrUnknownCommand
	}

	tag, err := DecodeVLQUint(&payload)
	if err != nil {
		return r, err
	}
	status, err := DecodeVLQUint(&payload)
	if err != nil {
		return r, err
	}
	if tag > 0xFF || status > 0xFF {
		return r, ErrMalformed
	}
	r.Tag, r.Status = uint8(tag), Status(status)

	if r.Read, err = DecodeVLQBytes(&payload); err != nil {
		return r, err
	}
	if len(payload) != 0 {
		return r, ErrMalformed
	}
	return r, nil
}
