// Package protocol implements the framing and messages spoken between the
// host and a serial I2C bridge.
//
// Frames follow the Klipper block layout: a length byte, a sequence byte,
// a VLQ encoded payload, a CRC16 and a trailing sync byte. The bridge
// executes one I2C transfer per request and answers with one result.
package protocol

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// Sequence byte: fixed high nibble, rolling low nibble
	MessageDest    = 0x10
	MessageSeqMask = 0x0F
)

// NextSequence returns the sequence byte following seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
