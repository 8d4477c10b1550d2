package buffer

import (
	"sync"

	"github.com/mwangi/stratum/storage/disk"
	"github.com/mwangi/stratum/util"
)

// LogManager is the write-ahead log hook handed to the pool at construction.
// The pool holds it for recovery integration but does not invoke it.
type LogManager interface {
	AppendRecord(record []byte) (lsn int64, err error)
}

// BufferpoolManager caches fixed-size disk pages in a preallocated set of
// frames. A single latch serialises every public operation; the replacer
// carries its own latch and is always acquired after the manager's.
type BufferpoolManager struct {
	mu            sync.Mutex
	frames        []*Frame
	pageTable     map[int64]int
	freeFrames    []int
	replacer      *ClockReplacer
	diskScheduler *disk.DiskScheduler
	logManager    LogManager
}

func NewBufferpoolManager(size int, replacer *ClockReplacer, diskScheduler *disk.DiskScheduler, logManager LogManager) *BufferpoolManager {
	frames := make([]*Frame, size)
	freeFrames := make([]int, size)

	for i := range size {
		frames[i] = &Frame{
			id:     i,
			data:   make([]byte, disk.PAGE_SIZE),
			pageId: disk.INVALID_PAGE_ID,
		}
		freeFrames[i] = i
	}

	return &BufferpoolManager{
		frames:        frames,
		pageTable:     make(map[int64]int),
		freeFrames:    freeFrames,
		replacer:      replacer,
		diskScheduler: diskScheduler,
		logManager:    logManager,
	}
}

// FetchPage pins the frame holding pageId, reading it from disk first if it
// is not resident. Returns util.BufferpoolExhaustedError when every frame is
// pinned.
func (b *BufferpoolManager) FetchPage(pageId int64) (*Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameId, ok := b.pageTable[pageId]; ok {
		frame := b.frames[frameId]
		frame.pin()
		b.replacer.Pin(frameId)
		return frame, nil
	}

	frameId, err := b.acquireFrame()
	if err != nil {
		return nil, err
	}

	frame := b.frames[frameId]
	frame.reset(pageId)
	frame.pin()
	b.pageTable[pageId] = frameId

	resp := <-b.diskScheduler.Schedule(disk.NewRequest(pageId, nil, false))
	if resp.Err != nil {
		// Undo residency so the pool's accounting survives the failed read.
		delete(b.pageTable, pageId)
		frame.reset(disk.INVALID_PAGE_ID)
		b.freeFrames = append(b.freeFrames, frameId)
		return nil, resp.Err
	}

	frame.mu.Lock()
	copy(frame.data, resp.Data)
	frame.mu.Unlock()

	b.replacer.Pin(frameId)
	return frame, nil
}

// NewPage allocates a fresh page id and pins a zeroed frame for it. The
// frame is reserved before the id is allocated so an exhausted pool does not
// leak page ids.
func (b *BufferpoolManager) NewPage() (*Frame, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, err := b.acquireFrame()
	if err != nil {
		return nil, disk.INVALID_PAGE_ID, err
	}

	pageId := b.diskScheduler.AllocatePage()

	frame := b.frames[frameId]
	frame.reset(pageId)
	frame.pin()
	b.pageTable[pageId] = frameId

	return frame, pageId, nil
}

// UnpinPage drops one pin on pageId, recording whether the caller modified
// the page. Returns false on an unbalanced unpin; unpinning a non-resident
// page is a no-op that returns true.
func (b *BufferpoolManager) UnpinPage(pageId int64, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return true
	}

	frame := b.frames[frameId]
	if frame.pins.Load() <= 0 {
		return false
	}

	remaining := frame.unpin()

	frame.mu.Lock()
	frame.dirty = frame.dirty || isDirty
	frame.mu.Unlock()

	if remaining == 0 {
		b.replacer.Unpin(frameId)
	}
	return true
}

// FlushPage writes pageId's frame to disk if it is dirty. Residency and pin
// state are untouched. Returns false when the page is not resident or the
// write fails.
func (b *BufferpoolManager) FlushPage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(pageId)
}

// FlushAllPages flushes every resident page, best effort.
func (b *BufferpoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pageId := range b.pageTable {
		b.flushLocked(pageId)
	}
}

// DeletePage deallocates pageId on disk and, if it is resident and
// unpinned, evicts its frame back to the free list. Returns false when a
// caller still holds the page.
func (b *BufferpoolManager) DeletePage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.diskScheduler.DeallocatePage(pageId)

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return true
	}

	frame := b.frames[frameId]
	if frame.pins.Load() > 0 {
		return false
	}

	b.replacer.Pin(frameId)
	delete(b.pageTable, pageId)
	frame.reset(disk.INVALID_PAGE_ID)
	b.freeFrames = append(b.freeFrames, frameId)
	return true
}

func (b *BufferpoolManager) flushLocked(pageId int64) bool {
	frameId, ok := b.pageTable[pageId]
	if !ok {
		return false
	}

	return b.flushFrame(b.frames[frameId]) == nil
}

// flushFrame writes the frame's page out if dirty and clears the dirty bit.
func (b *BufferpoolManager) flushFrame(frame *Frame) error {
	frame.mu.RLock()
	dirty := frame.dirty
	frame.mu.RUnlock()

	if !dirty {
		return nil
	}

	frame.mu.Lock()
	defer frame.mu.Unlock()

	resp := <-b.diskScheduler.Schedule(disk.NewRequest(frame.pageId, frame.data, true))
	if resp.Err != nil {
		return resp.Err
	}

	frame.dirty = false
	return nil
}

// acquireFrame hands out a frame for a new resident page: free list first,
// then a replacer victim, whose old page is flushed if dirty and dropped
// from the page table. A victim whose flush fails is re-registered with the
// replacer and the error propagated.
func (b *BufferpoolManager) acquireFrame() (int, error) {
	if len(b.freeFrames) > 0 {
		frameId := b.freeFrames[0]
		b.freeFrames = b.freeFrames[1:]
		return frameId, nil
	}

	frameId, ok := b.replacer.Victim()
	if !ok {
		return INVALID_FRAME_ID, util.NewBufferpoolExhaustedError()
	}

	frame := b.frames[frameId]
	if frame.pageId != disk.INVALID_PAGE_ID {
		if err := b.flushFrame(frame); err != nil {
			b.replacer.Unpin(frameId)
			return INVALID_FRAME_ID, err
		}
		delete(b.pageTable, frame.pageId)
	}

	return frameId, nil
}
