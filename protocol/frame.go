package protocol

import "errors"

var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum length")

// Frame is one validated message block.
type Frame struct {
	Sequence uint8
	Payload  []byte
}

// EncodeFrame builds a frame around the payload written by frameData.
// The returned slice is owned by the caller.
func EncodeFrame(seq uint8, frameData func(output OutputBuffer)) ([]byte, error) {
	output := NewScratchOutput()

	// Length placeholder and sequence
	output.Output([]byte{0, seq})
	if frameData != nil {
		frameData(output)
	}

	msgLen := output.CurPosition() + MessageTrailerSize
	if output.Overflow() || msgLen > MessageLengthMax {
		return nil, ErrFrameTooLarge
	}
	output.Update(MessagePositionLen, uint8(msgLen))

	crc := CRC16(output.DataSince(0))
	output.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	msg := make([]byte, msgLen)
	copy(msg, output.Result())
	return msg, nil
}

// FrameScanner extracts frames from a byte stream. Bytes are fed through
// Write; Next returns complete frames in arrival order. On a bad length,
// sequence, sync byte or CRC the scanner drops input up to the next sync
// byte and carries on.
type FrameScanner struct {
	buf      []byte
	synced   bool
	dropped  uint32
	maxQueue int
}

// NewFrameScanner returns a scanner that starts synchronized.
func NewFrameScanner() *FrameScanner {
	return &FrameScanner{
		buf:      make([]byte, 0, 2*MessageLengthMax),
		synced:   true,
		maxQueue: 16 * MessageLengthMax,
	}
}

// Write appends stream data. It never fails, which lets it sit behind an
// io.Writer or io.Copy.
func (s *FrameScanner) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	if len(s.buf) > s.maxQueue {
		// Nobody is draining; keep the tail only
		s.buf = append(s.buf[:0], s.buf[len(s.buf)-s.maxQueue:]...)
		s.synced = false
	}
	return len(p), nil
}

// Next returns the next complete frame, or false when more input is needed.
func (s *FrameScanner) Next() (Frame, bool) {
	data := s.buf
	defer func() {
		consumed := len(s.buf) - len(data)
		if consumed > 0 {
			s.buf = append(s.buf[:0], data...)
		}
	}()

	for len(data) > 0 {
		if !s.synced {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				data = data[len(data):]
				return Frame{}, false
			}
			data = data[syncPos+1:]
			s.synced = true
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			s.desync()
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			s.desync()
			continue
		}

		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			s.desync()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			s.desync()
			continue
		}

		payload := make([]byte, msgLen-MessageLengthMin)
		copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])
		data = data[msgLen:]
		return Frame{Sequence: seq, Payload: payload}, true
	}
	return Frame{}, false
}

// Dropped returns how many times the scanner lost synchronization.
func (s *FrameScanner) Dropped() uint32 {
	return s.dropped
}

// Buffered returns the number of bytes waiting for a complete frame.
func (s *FrameScanner) Buffered() int {
	return len(s.buf)
}

func (s *FrameScanner) desync() {
	s.synced = false
	s.dropped++
}
