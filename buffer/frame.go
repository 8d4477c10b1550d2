package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/mwangi/stratum/storage/disk"
)

// Frame is one slot of the preallocated pool. Its pin count says how many
// callers currently hold it; a pinned frame is never evicted. The latch
// guards data and the dirty bit; callers take it through RLatch/WLatch after
// a successful fetch.
type Frame struct {
	mu     sync.RWMutex
	id     int
	data   []byte
	pins   atomic.Int32
	dirty  bool
	pageId int64
}

func (f *Frame) pin() {
	f.pins.Add(1)
}

func (f *Frame) unpin() int32 {
	return f.pins.Add(-1)
}

// reset rebinds the frame to pageId with a zeroed buffer, no pins and a
// clean dirty bit.
func (f *Frame) reset(pageId int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data = make([]byte, disk.PAGE_SIZE)
	f.pageId = pageId
	f.dirty = false
	f.pins.Store(0)
}

func (f *Frame) PageId() int64 {
	return f.pageId
}

func (f *Frame) PinCount() int {
	return int(f.pins.Load())
}

func (f *Frame) IsDirty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dirty
}

// Data returns the frame's payload buffer. Hold the frame latch while
// touching it.
func (f *Frame) Data() []byte {
	return f.data
}

func (f *Frame) RLatch()   { f.mu.RLock() }
func (f *Frame) RUnlatch() { f.mu.RUnlock() }
func (f *Frame) WLatch()   { f.mu.Lock() }
func (f *Frame) WUnlatch() { f.mu.Unlock() }
