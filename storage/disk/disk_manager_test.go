package disk

import (
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiskManager(t *testing.T) {
	t.Run("allocates sequential page ids", func(t *testing.T) {
		dm := NewManager(createDbFile(t))

		assert.Equal(t, int64(0), dm.AllocatePage())
		assert.Equal(t, int64(1), dm.AllocatePage())
		assert.Equal(t, int64(2), dm.AllocatePage())
	})

	t.Run("deallocated ids are reused first", func(t *testing.T) {
		dm := NewManager(createDbFile(t))

		for range 3 {
			dm.AllocatePage()
		}

		dm.DeallocatePage(1)
		assert.Equal(t, int64(1), dm.AllocatePage())
		assert.Equal(t, int64(3), dm.AllocatePage())
	})

	t.Run("deallocate ignores unknown and duplicate ids", func(t *testing.T) {
		dm := NewManager(createDbFile(t))

		dm.AllocatePage()
		dm.DeallocatePage(99)
		dm.DeallocatePage(0)
		dm.DeallocatePage(0)

		assert.Equal(t, []int64{0}, dm.freePageIds)
	})

	t.Run("reading and writing a page round trips", func(t *testing.T) {
		dm := NewManager(createDbFile(t))

		buf := make([]byte, PAGE_SIZE)
		copy(buf, []byte("hello world"))

		assert.NoError(t, dm.writePage(1, buf))

		res, err := dm.readPage(1)
		assert.NoError(t, err)
		assert.Equal(t, buf, res)
	})

	t.Run("a page that was never written reads as zeroes", func(t *testing.T) {
		dm := NewManager(createDbFile(t))

		res, err := dm.readPage(12)
		assert.NoError(t, err)
		assert.Equal(t, make([]byte, PAGE_SIZE), res)
	})

	t.Run("the db file grows when a write lands past capacity", func(t *testing.T) {
		file := createDbFile(t)
		dm := NewManager(file)
		assert.Equal(t, DEFAULT_PAGE_CAPACITY, dm.pageCapacity)

		buf := make([]byte, PAGE_SIZE)
		assert.NoError(t, dm.writePage(int64(DEFAULT_PAGE_CAPACITY)+4, buf))

		assert.Equal(t, 2*DEFAULT_PAGE_CAPACITY, dm.pageCapacity)
		info, err := os.Stat(file.Name())
		assert.NoError(t, err)
		assert.Equal(t, int64(2*DEFAULT_PAGE_CAPACITY)*PAGE_SIZE, info.Size())
	})

	t.Run("a reopened file continues allocating past its pages", func(t *testing.T) {
		file := createDbFile(t)
		dm := NewManager(file)
		assert.NoError(t, dm.writePage(3, make([]byte, PAGE_SIZE)))

		reopened, err := os.OpenFile(file.Name(), os.O_RDWR, 0644)
		assert.NoError(t, err)
		t.Cleanup(func() {
			_ = reopened.Close()
		})

		dm2 := NewManager(reopened)
		assert.GreaterOrEqual(t, dm2.AllocatePage(), int64(4))
	})

	t.Run("sync flushes without error", func(t *testing.T) {
		dm := NewManager(createDbFile(t))
		assert.NoError(t, dm.writePage(0, make([]byte, PAGE_SIZE)))
		assert.NoError(t, dm.Sync())
	})

	t.Run("rejects negative page ids", func(t *testing.T) {
		dm := NewManager(createDbFile(t))

		assert.Error(t, dm.writePage(-1, make([]byte, PAGE_SIZE)))
		_, err := dm.readPage(-1)
		assert.Error(t, err)
	})
}

func TestCompressedDiskManager(t *testing.T) {
	t.Run("compressed pages round trip", func(t *testing.T) {
		for _, compression := range []CompressionType{CompressionSnappy, CompressionLZ4} {
			dm := NewCompressedManager(createDbFile(t), compression)

			buf := make([]byte, PAGE_SIZE)
			for i := range buf {
				buf[i] = byte(i % 7)
			}

			assert.NoError(t, dm.writePage(2, buf))
			res, err := dm.readPage(2)
			assert.NoError(t, err)
			assert.Equal(t, buf, res)
		}
	})

	t.Run("unwritten compressed slots read as zeroes", func(t *testing.T) {
		dm := NewCompressedManager(createDbFile(t), CompressionSnappy)

		assert.NoError(t, dm.writePage(5, make([]byte, PAGE_SIZE)))

		res, err := dm.readPage(3)
		assert.NoError(t, err)
		assert.Equal(t, make([]byte, PAGE_SIZE), res)
	})
}

func createDbFile(t *testing.T) *os.File {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")

	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file\n%v", err))
	}
	t.Cleanup(func() {
		_ = file.Close()
	})

	return file
}
