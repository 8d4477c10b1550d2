package disk

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionLZ4
	CompressionSnappy
)

// Compressed slot layout:
//   [0-1]  magic (0xC0DE)
//   [2]    compression type
//   [3]    reserved
//   [4-5]  compressed size
//   [6-7]  reserved
//   [8-11] CRC32 of the uncompressed page
//   [12+]  page image, compressed or raw
const (
	compressedPageMagic  = 0xC0DE
	compressedHeaderSize = 12

	// Pages that don't shrink by at least this many bytes are stored raw.
	minCompressionSavings = 64
)

// encodePage compresses a page image into a full slot-sized buffer. Pages
// that compress poorly are stored raw with CompressionNone in the header.
func encodePage(data []byte, compression CompressionType) ([]byte, error) {
	if len(data) != PAGE_SIZE {
		return nil, fmt.Errorf("page image must be %d bytes, got %d", PAGE_SIZE, len(data))
	}

	var compressed []byte
	switch compression {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compression failed: %v", err)
		}
		compressed = buf[:n]
	case CompressionSnappy:
		compressed = snappy.Encode(nil, data)
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", compression)
	}

	// lz4 reports incompressible blocks as n == 0
	if len(compressed) == 0 || len(data)-len(compressed) < minCompressionSavings {
		compression = CompressionNone
		compressed = data
	}

	slot := make([]byte, PAGE_SIZE+compressedHeaderSize)
	binary.LittleEndian.PutUint16(slot[0:2], compressedPageMagic)
	slot[2] = byte(compression)
	binary.LittleEndian.PutUint16(slot[4:6], uint16(len(compressed)))
	binary.LittleEndian.PutUint32(slot[8:12], crc32.ChecksumIEEE(data))
	copy(slot[compressedHeaderSize:], compressed)

	return slot, nil
}

// decodePage reverses encodePage. Slots without the magic prefix (a grown
// file region that was never written) decode as a zero page.
func decodePage(slot []byte) ([]byte, error) {
	if len(slot) < compressedHeaderSize {
		return nil, fmt.Errorf("slot smaller than compression header: %d bytes", len(slot))
	}

	if binary.LittleEndian.Uint16(slot[0:2]) != compressedPageMagic {
		return make([]byte, PAGE_SIZE), nil
	}

	compression := CompressionType(slot[2])
	compressedSize := int(binary.LittleEndian.Uint16(slot[4:6]))
	checksum := binary.LittleEndian.Uint32(slot[8:12])
	payload := slot[compressedHeaderSize : compressedHeaderSize+compressedSize]

	var data []byte
	switch compression {
	case CompressionNone:
		data = make([]byte, PAGE_SIZE)
		copy(data, payload)
	case CompressionLZ4:
		data = make([]byte, PAGE_SIZE)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %v", err)
		}
		if n != PAGE_SIZE {
			return nil, fmt.Errorf("lz4 decompressed to %d bytes, want %d", n, PAGE_SIZE)
		}
	case CompressionSnappy:
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("snappy decompression failed: %v", err)
		}
		if len(decoded) != PAGE_SIZE {
			return nil, fmt.Errorf("snappy decompressed to %d bytes, want %d", len(decoded), PAGE_SIZE)
		}
		data = decoded
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", compression)
	}

	if got := crc32.ChecksumIEEE(data); got != checksum {
		return nil, fmt.Errorf("page checksum mismatch: got %08x, want %08x", got, checksum)
	}

	return data, nil
}
