package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFrame(t *testing.T, seq uint8, payload []byte) []byte {
	t.Helper()
	msg, err := EncodeFrame(seq, func(output OutputBuffer) {
		output.Output(payload)
	})
	require.NoError(t, err)
	return msg
}

func TestEncodeFrameLayout(t *testing.T) {
	msg := mustFrame(t, 0x12, nil)
	assert.Equal(t, []byte{5, 0x12}, msg[:2])
	crc := CRC16(msg[:2])
	assert.Equal(t, []byte{uint8(crc >> 8), uint8(crc), MessageValueSync}, msg[2:])

	msg = mustFrame(t, MessageDest, []byte{1, 2, 3})
	assert.Len(t, msg, 8)
	assert.Equal(t, uint8(8), msg[MessagePositionLen])
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(MessageDest, func(output OutputBuffer) {
		output.Output(make([]byte, MessagePayloadMax+1))
	})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = EncodeFrame(MessageDest, func(output OutputBuffer) {
		output.Output(make([]byte, MessagePayloadMax))
	})
	assert.NoError(t, err)
}

func TestFrameScannerSplitInput(t *testing.T) {
	s := NewFrameScanner()
	msg := mustFrame(t, 0x13, []byte{9, 8, 7})

	_, _ = s.Write(msg[:4])
	_, ok := s.Next()
	assert.False(t, ok)

	_, _ = s.Write(msg[4:])
	f, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, uint8(0x13), f.Sequence)
	assert.Equal(t, []byte{9, 8, 7}, f.Payload)
	assert.Equal(t, 0, s.Buffered())
}

func TestFrameScannerMultipleFrames(t *testing.T) {
	s := NewFrameScanner()
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, mustFrame(t, MessageDest|uint8(i), []byte{byte(i)})...)
	}
	_, _ = s.Write(stream)

	for i := 0; i < 5; i++ {
		f, ok := s.Next()
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, f.Payload)
	}
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestFrameScannerResyncsAfterGarbage(t *testing.T) {
	s := NewFrameScanner()
	good := mustFrame(t, 0x11, []byte{0x42})

	corrupt := mustFrame(t, 0x10, []byte{1, 2})
	corrupt[3] ^= 0xFF // payload no longer matches the CRC

	_, _ = s.Write([]byte{0x01, 0x02, 0x03})
	_, _ = s.Write(corrupt)
	_, _ = s.Write(good)

	f, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, []byte{0x42}, f.Payload)
	assert.NotZero(t, s.Dropped())
}

func TestFrameScannerRejectsForeignSequence(t *testing.T) {
	s := NewFrameScanner()
	bad := mustFrame(t, 0x20, []byte{1})
	good := mustFrame(t, 0x1F, []byte{2})

	_, _ = s.Write(append(bad, good...))
	f, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, f.Payload)
}

func TestFrameScannerBoundsBacklog(t *testing.T) {
	s := NewFrameScanner()
	_, _ = s.Write(make([]byte, 40*MessageLengthMax))
	assert.LessOrEqual(t, s.Buffered(), 16*MessageLengthMax)

	_, ok := s.Next()
	assert.False(t, ok)

	// A sync byte ends the garbage
	_, _ = s.Write([]byte{MessageValueSync})
	_, _ = s.Write(mustFrame(t, 0x10, []byte{7}))
	f, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, []byte{7}, f.Payload)
}

func TestNextSequence(t *testing.T) {
	assert.Equal(t, uint8(0x11), NextSequence(0x10))
	assert.Equal(t, uint8(0x10), NextSequence(0x1F))
}
