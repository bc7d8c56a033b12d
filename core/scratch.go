package core

import "sync/atomic"

// Default block pool geometry used when Config.Allocator is nil.
const (
	DefaultScratchBlocks    = 16
	DefaultScratchBlockSize = 32
)

// Allocator hands out scratch memory for queued transfers.
// Alloc returns nil when it cannot satisfy the request.
type Allocator interface {
	Alloc(size int) []byte
	Free(buf []byte)
}

// Scratch is manager-owned memory backing one queued transaction.
// It must be released exactly once; Schedule moves that duty to the manager.
type Scratch struct {
	buf      []byte
	alloc    Allocator
	released uint32
}

// newScratch wraps buf, which alloc produced.
func newScratch(alloc Allocator, buf []byte) *Scratch {
	return &Scratch{buf: buf, alloc: alloc}
}

// Bytes returns the scratch memory. Invalid after Release.
func (s *Scratch) Bytes() []byte {
	return s.buf
}

// Len returns the usable size.
func (s *Scratch) Len() int {
	return len(s.buf)
}

// Released reports whether the memory went back to its allocator.
func (s *Scratch) Released() bool {
	return atomic.LoadUint32(&s.released) != 0
}

// Release returns the memory to its allocator. A second call panics.
func (s *Scratch) Release() {
	mustHold(atomic.CompareAndSwapUint32(&s.released, 0, 1), "scratch released twice")
	buf := s.buf
	s.buf = nil
	s.alloc.Free(buf)
}

// BlockPool is a fixed set of equally sized blocks.
type BlockPool struct {
	blockSize int
	blocks    [][]byte
	free      []int // stack of free block indices
	used      []bool
}

// NewBlockPool allocates count blocks of blockSize bytes up front.
func NewBlockPool(count, blockSize int) *BlockPool {
	mustHold(count > 0 && blockSize > 0, "block pool geometry must be positive")
	storage := make([]byte, count*blockSize)
	p := &BlockPool{
		blockSize: blockSize,
		blocks:    make([][]byte, count),
		free:      make([]int, count),
		used:      make([]bool, count),
	}
	for i := 0; i < count; i++ {
		p.blocks[i] = storage[i*blockSize : (i+1)*blockSize : (i+1)*blockSize]
		p.free[i] = count - 1 - i
	}
	return p
}

// Alloc returns a zeroed slice of size bytes, or nil if size does not fit a
// block or every block is in use.
func (p *BlockPool) Alloc(size int) []byte {
	if size <= 0 || size > p.blockSize {
		return nil
	}

	state := disableInterrupts()
	if len(p.free) == 0 {
		restoreInterrupts(state)
		return nil
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.used[idx] = true
	restoreInterrupts(state)

	buf := p.blocks[idx][:size]
	clear(buf)
	return buf
}

// Free returns buf to the pool. Freeing foreign or already free memory panics.
func (p *BlockPool) Free(buf []byte) {
	mustHold(len(buf) > 0, "free of empty buffer")
	idx := -1
	for i, blk := range p.blocks {
		if &blk[0] == &buf[0] {
			idx = i
			break
		}
	}
	mustHold(idx >= 0, "free of memory not owned by pool")

	state := disableInterrupts()
	ok := p.used[idx]
	if ok {
		p.used[idx] = false
		p.free = append(p.free, idx)
	}
	restoreInterrupts(state)
	mustHold(ok, "block freed twice")
}

// BlockSize returns the largest allocation the pool serves.
func (p *BlockPool) BlockSize() int {
	return p.blockSize
}

// InUse returns the number of allocated blocks.
func (p *BlockPool) InUse() int {
	state := disableInterrupts()
	n := len(p.blocks) - len(p.free)
	restoreInterrupts(state)
	return n
}

// HeapAllocator allocates from the Go heap and counts live buffers.
// Limit caps the live count; zero means unlimited.
type HeapAllocator struct {
	Limit int32
	live  int32
}

// Alloc returns a fresh slice, or nil when Limit buffers are live.
func (h *HeapAllocator) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	if n := atomic.AddInt32(&h.live, 1); h.Limit > 0 && n > h.Limit {
		atomic.AddInt32(&h.live, -1)
		return nil
	}
	return make([]byte, size)
}

// Free drops one live buffer.
func (h *HeapAllocator) Free(buf []byte) {
	mustHold(atomic.AddInt32(&h.live, -1) >= 0, "heap allocator freed more than allocated")
}

// Live returns the number of buffers not yet freed.
func (h *HeapAllocator) Live() int {
	return int(atomic.LoadInt32(&h.live))
}
