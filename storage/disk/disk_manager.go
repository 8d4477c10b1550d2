package disk

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

func NewManager(file *os.File) *diskManager {
	return NewCompressedManager(file, CompressionNone)
}

// NewCompressedManager builds a manager whose page slots are transparently
// compressed on write and decompressed on read.
func NewCompressedManager(file *os.File, compression CompressionType) *diskManager {
	dm := &diskManager{
		dbFile:       file,
		pageCapacity: DEFAULT_PAGE_CAPACITY,
		freePageIds:  []int64{},
		compression:  compression,
	}

	if info, err := file.Stat(); err == nil {
		dm.nextPageId = info.Size() / int64(dm.slotSize())
		if info.Size() > dm.nextPageId*int64(dm.slotSize()) {
			dm.nextPageId++
		}
	}
	if dm.nextPageId > int64(dm.pageCapacity) {
		dm.pageCapacity = int(dm.nextPageId)
	}

	return dm
}

// AllocatePage issues a fresh page id, reusing deallocated ids first. The
// id's file slot is claimed lazily on first write.
func (dm *diskManager) AllocatePage() int64 {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if len(dm.freePageIds) > 0 {
		pageId := dm.freePageIds[0]
		dm.freePageIds = dm.freePageIds[1:]
		return pageId
	}

	pageId := dm.nextPageId
	dm.nextPageId++
	return pageId
}

func (dm *diskManager) DeallocatePage(pageId int64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	for _, id := range dm.freePageIds {
		if id == pageId {
			return
		}
	}
	if pageId >= 0 && pageId < dm.nextPageId {
		dm.freePageIds = append(dm.freePageIds, pageId)
	}
}

func (dm *diskManager) writePage(pageId int64, data []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if pageId < 0 {
		return fmt.Errorf("invalid page id %d", pageId)
	}

	slot := data
	if dm.compression != CompressionNone {
		var err error
		if slot, err = encodePage(data, dm.compression); err != nil {
			return err
		}
	}

	if err := dm.ensureCapacity(pageId); err != nil {
		return err
	}

	offset := pageId * int64(dm.slotSize())
	if _, err := dm.dbFile.WriteAt(slot, offset); err != nil {
		return fmt.Errorf("error writing at offset %d: %v", offset, err)
	}

	return nil
}

func (dm *diskManager) readPage(pageId int64) ([]byte, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if pageId < 0 {
		return nil, fmt.Errorf("invalid page id %d", pageId)
	}

	// A page that has never been written reads back as zeroes.
	info, err := dm.dbFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("error stating db file: %v", err)
	}

	offset := pageId * int64(dm.slotSize())
	if offset+int64(dm.slotSize()) > info.Size() {
		return make([]byte, PAGE_SIZE), nil
	}

	slot := make([]byte, dm.slotSize())
	if _, err := dm.dbFile.ReadAt(slot, offset); err != nil {
		return nil, fmt.Errorf("error reading from offset %d: %v", offset, err)
	}

	if dm.compression != CompressionNone {
		return decodePage(slot)
	}
	return slot, nil
}

// Sync flushes written page data to stable storage.
func (dm *diskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := unix.Fdatasync(int(dm.dbFile.Fd())); err != nil {
		return fmt.Errorf("error syncing db file: %v", err)
	}
	return nil
}

func (dm *diskManager) ensureCapacity(pageId int64) error {
	if pageId < int64(dm.pageCapacity) {
		return nil
	}

	for pageId >= int64(dm.pageCapacity) {
		dm.pageCapacity *= 2
	}
	if err := os.Truncate(dm.dbFile.Name(), int64(dm.pageCapacity)*int64(dm.slotSize())); err != nil {
		return fmt.Errorf("error resizing db file: %v", err)
	}
	return nil
}

func (dm *diskManager) slotSize() int {
	if dm.compression != CompressionNone {
		return PAGE_SIZE + compressedHeaderSize
	}
	return PAGE_SIZE
}

type diskManager struct {
	mu           sync.Mutex
	dbFile       *os.File
	freePageIds  []int64
	nextPageId   int64
	pageCapacity int
	compression  CompressionType
}
