package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twimngr/core"
)

func TestRequestThroughFrame(t *testing.T) {
	req := Request{Tag: 200, Address: 0x5B, Flags: FlagNoStop, Write: []byte{0x0E}, ReadLen: 2}
	require.True(t, req.Fits())

	msg, err := EncodeFrame(MessageDest, req.Encode)
	require.NoError(t, err)

	s := NewFrameScanner()
	_, _ = s.Write(msg)
	f, ok := s.Next()
	require.True(t, ok)

	got, err := DecodeRequest(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestLargestRequestAndReplyFitOneFrame(t *testing.T) {
	req := Request{Tag: 0xFF, Address: 0x7F, Flags: 0xFF, Write: make([]byte, MaxWriteLen), ReadLen: MaxReadLen}
	_, err := EncodeFrame(0x1F, req.Encode)
	assert.NoError(t, err)

	rep := Reply{Tag: 0xFF, Status: StatusFault, Read: make([]byte, MaxReadLen)}
	_, err = EncodeFrame(0x1F, rep.Encode)
	assert.NoError(t, err)
}

func TestRequestFits(t *testing.T) {
	assert.False(t, (&Request{}).Fits())
	assert.False(t, (&Request{Write: make([]byte, MaxWriteLen+1)}).Fits())
	assert.False(t, (&Request{ReadLen: MaxReadLen + 1}).Fits())
	assert.True(t, (&Request{ReadLen: 1}).Fits())
}

func TestReplyRoundTrip(t *testing.T) {
	rep := Reply{Tag: 3, Status: StatusNACK}
	out := NewScratchOutput()
	rep.Encode(out)

	got, err := DecodeReply(out.Result())
	require.NoError(t, err)
	assert.Equal(t, uint8(3), got.Tag)
	assert.Equal(t, StatusNACK, got.Status)
	assert.Empty(t, got.Read)
}

func TestDecodeRejectsWrongCommand(t *testing.T) {
	out := NewScratchOutput()
	(&Reply{Tag: 1}).Encode(out)
	_, err := DecodeRequest(out.Result())
	assert.ErrorIs(t, err, ErrUnknownCommand)

	out.Reset()
	(&Request{Tag: 1, ReadLen: 1}).Encode(out)
	_, err = DecodeReply(out.Result())
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	out := NewScratchOutput()
	(&Reply{Tag: 1, Read: []byte{1}}).Encode(out)
	out.Output([]byte{0})
	_, err := DecodeReply(out.Result())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeTruncated(t *testing.T) {
	out := NewScratchOutput()
	(&Reply{Tag: 1, Read: []byte{1, 2, 3}}).Encode(out)
	payload := out.Result()
	_, err := DecodeReply(payload[:len(payload)-1])
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "nack", StatusNACK.String())
	assert.Equal(t, "fault", Status(42).String())
}

func TestStatusErrorMapping(t *testing.T) {
	assert.NoError(t, StatusOK.Err())
	assert.Equal(t, StatusOK, StatusOf(nil))

	for _, s := range []Status{StatusNACK, StatusArbitration, StatusTimeout, StatusBusy, StatusFault} {
		assert.Equal(t, s, StatusOf(s.Err()), s.String())
		assert.Equal(t, s, StatusOf(core.Wrap(s.Err(), errors.New("cause"))), s.String())
	}
	assert.ErrorIs(t, Status(42).Err(), core.ErrBusFault)
	assert.Equal(t, StatusFault, StatusOf(errors.New("unclassified")))
}
