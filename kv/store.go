package kv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/mwangi/stratum/buffer"
	"github.com/mwangi/stratum/storage/disk"
	"github.com/mwangi/stratum/util"
	"github.com/vmihailenco/msgpack"
)

var (
	ErrKeyNotFound = errors.New("kv: key not found")
	ErrBucketFull  = errors.New("kv: bucket page full")
)

const (
	storeMagic   uint32 = 0x53544B56
	headerPageId int64  = 0
	numBuckets          = 8
)

type storeHeader struct {
	BucketPageIds []int64
}

type bucketEntry struct {
	Key   string
	Value []byte
}

type bucketPage struct {
	Entries []bucketEntry
}

// Store is a bucket-hashed key/value store layered on the buffer pool. Keys
// hash to one of a fixed set of bucket pages; each bucket holds a
// msgpack-encoded entry list rewritten in place through a write guard.
type Store struct {
	file          *os.File
	bpm           *buffer.BufferpoolManager
	diskScheduler *disk.DiskScheduler
	header        storeHeader
}

// Open wires a store over the db file at path, creating and initialising
// the file if it does not exist yet.
func Open(path string, poolSize int) (*Store, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening db file: %v", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("error stating db file: %v", err)
	}

	diskMgr := disk.NewManager(file)
	diskScheduler := disk.NewScheduler(diskMgr)
	replacer := buffer.NewClockReplacer(poolSize)
	bpm := buffer.NewBufferpoolManager(poolSize, replacer, diskScheduler, nil)

	s := &Store{
		file:          file,
		bpm:           bpm,
		diskScheduler: diskScheduler,
	}

	if info.Size() == 0 {
		err = s.initialize()
	} else {
		err = s.loadHeader()
	}
	if err != nil {
		file.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Put(key string, value []byte) error {
	guard, err := s.bpm.WritePage(s.bucketPageId(key))
	if err != nil {
		return err
	}
	defer guard.Drop()

	bucket, err := util.ToStruct[bucketPage](guard.GetDataMut())
	if err != nil {
		return fmt.Errorf("error decoding bucket page: %v", err)
	}

	replaced := false
	for i, entry := range bucket.Entries {
		if entry.Key == key {
			bucket.Entries[i].Value = value
			replaced = true
			break
		}
	}
	if !replaced {
		bucket.Entries = append(bucket.Entries, bucketEntry{Key: key, Value: value})
	}

	data, err := util.ToByteSlice(bucket)
	if err != nil {
		return ErrBucketFull
	}

	copy(guard.GetDataMut(), data)
	return nil
}

func (s *Store) Get(key string) ([]byte, error) {
	guard, err := s.bpm.ReadPage(s.bucketPageId(key))
	if err != nil {
		return nil, err
	}
	defer guard.Drop()

	bucket, err := util.ToStruct[bucketPage](guard.GetData())
	if err != nil {
		return nil, fmt.Errorf("error decoding bucket page: %v", err)
	}

	for _, entry := range bucket.Entries {
		if entry.Key == key {
			value := make([]byte, len(entry.Value))
			copy(value, entry.Value)
			return value, nil
		}
	}

	return nil, ErrKeyNotFound
}

func (s *Store) Delete(key string) error {
	guard, err := s.bpm.WritePage(s.bucketPageId(key))
	if err != nil {
		return err
	}
	defer guard.Drop()

	bucket, err := util.ToStruct[bucketPage](guard.GetDataMut())
	if err != nil {
		return fmt.Errorf("error decoding bucket page: %v", err)
	}

	for i, entry := range bucket.Entries {
		if entry.Key == key {
			bucket.Entries = append(bucket.Entries[:i], bucket.Entries[i+1:]...)

			data, err := util.ToByteSlice(bucket)
			if err != nil {
				return fmt.Errorf("error encoding bucket page: %v", err)
			}
			copy(guard.GetDataMut(), data)
			return nil
		}
	}

	return ErrKeyNotFound
}

// Close flushes every resident page, syncs the db file and closes it.
func (s *Store) Close() error {
	s.bpm.FlushAllPages()
	if err := s.diskScheduler.Sync(); err != nil {
		return err
	}
	return s.file.Close()
}

func (s *Store) bucketPageId(key string) int64 {
	bucket := xxhash.Sum64String(key) % uint64(len(s.header.BucketPageIds))
	return s.header.BucketPageIds[bucket]
}

// initialize lays out a fresh store: a header page followed by empty bucket
// pages, all created through the pool so the first flush writes them out.
func (s *Store) initialize() error {
	headerGuard, pageId, err := s.bpm.NewWriteGuarded()
	if err != nil {
		return err
	}
	defer headerGuard.Drop()

	if pageId != headerPageId {
		return fmt.Errorf("expected header page id %d, got %d", headerPageId, pageId)
	}

	s.header = storeHeader{BucketPageIds: make([]int64, 0, numBuckets)}
	for range numBuckets {
		guard, bucketPageId, err := s.bpm.NewWriteGuarded()
		if err != nil {
			return err
		}

		data, err := util.ToByteSlice(bucketPage{})
		if err != nil {
			guard.Drop()
			return err
		}
		copy(guard.GetDataMut(), data)
		guard.Drop()

		s.header.BucketPageIds = append(s.header.BucketPageIds, bucketPageId)
	}

	encoded, err := msgpack.Marshal(s.header)
	if err != nil {
		return fmt.Errorf("error encoding store header: %v", err)
	}
	if len(encoded)+4 > disk.PAGE_SIZE {
		return fmt.Errorf("store header larger than a page")
	}

	headerData := headerGuard.GetDataMut()
	binary.BigEndian.PutUint32(headerData[0:4], storeMagic)
	copy(headerData[4:], encoded)

	return nil
}

func (s *Store) loadHeader() error {
	guard, err := s.bpm.ReadPage(headerPageId)
	if err != nil {
		return err
	}
	defer guard.Drop()

	data := guard.GetData()
	if binary.BigEndian.Uint32(data[0:4]) != storeMagic {
		return fmt.Errorf("not a stratum kv store")
	}

	var header storeHeader
	if err := msgpack.Unmarshal(data[4:], &header); err != nil {
		return fmt.Errorf("error decoding store header: %v", err)
	}
	if len(header.BucketPageIds) == 0 {
		return fmt.Errorf("store header has no buckets")
	}

	s.header = header
	return nil
}
