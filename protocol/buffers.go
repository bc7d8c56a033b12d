package protocol

// OutputBuffer collects encoded bytes for one frame.
type OutputBuffer interface {
	// Output appends data; bytes beyond the capacity are dropped
	Output(data []byte)

	// CurPosition returns the current write position
	CurPosition() int

	// Update overwrites a byte already written
	Update(pos int, val byte)

	// DataSince returns data from pos to the write position
	DataSince(pos int) []byte
}

// ScratchOutput is an OutputBuffer sized for one frame.
type ScratchOutput struct {
	buf      [MessageLengthMax]byte
	pos      int
	overflow bool
}

// NewScratchOutput creates an empty ScratchOutput.
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Overflow reports whether any Output call was truncated.
func (s *ScratchOutput) Overflow() bool {
	return s.overflow
}

// Result returns the accumulated output data.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset clears the buffer.
func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}
