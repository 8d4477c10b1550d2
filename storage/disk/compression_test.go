package disk

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageCompression(t *testing.T) {
	t.Run("compressible pages round trip", func(t *testing.T) {
		for _, compression := range []CompressionType{CompressionSnappy, CompressionLZ4} {
			data := make([]byte, PAGE_SIZE)
			for i := range data {
				data[i] = byte(i % 4)
			}

			slot, err := encodePage(data, compression)
			assert.NoError(t, err)
			assert.Len(t, slot, PAGE_SIZE+compressedHeaderSize)
			assert.Equal(t, uint16(compressedPageMagic), binary.LittleEndian.Uint16(slot[0:2]))
			assert.Equal(t, byte(compression), slot[2])

			decoded, err := decodePage(slot)
			assert.NoError(t, err)
			assert.Equal(t, data, decoded)
		}
	})

	t.Run("incompressible pages fall back to raw storage", func(t *testing.T) {
		data := make([]byte, PAGE_SIZE)
		state := uint32(0x2545F491)
		for i := range data {
			state ^= state << 13
			state ^= state >> 17
			state ^= state << 5
			data[i] = byte(state)
		}

		slot, err := encodePage(data, CompressionSnappy)
		assert.NoError(t, err)
		assert.Equal(t, byte(CompressionNone), slot[2])

		decoded, err := decodePage(slot)
		assert.NoError(t, err)
		assert.Equal(t, data, decoded)
	})

	t.Run("a corrupted payload fails the checksum", func(t *testing.T) {
		data := make([]byte, PAGE_SIZE)
		for i := range data {
			data[i] = byte(i % 4)
		}

		slot, err := encodePage(data, CompressionSnappy)
		assert.NoError(t, err)

		slot[compressedHeaderSize] ^= 0xFF
		_, err = decodePage(slot)
		assert.Error(t, err)
	})

	t.Run("a zeroed slot decodes as a zero page", func(t *testing.T) {
		decoded, err := decodePage(make([]byte, PAGE_SIZE+compressedHeaderSize))
		assert.NoError(t, err)
		assert.Equal(t, make([]byte, PAGE_SIZE), decoded)
	})

	t.Run("rejects short pages", func(t *testing.T) {
		_, err := encodePage(make([]byte, 100), CompressionSnappy)
		assert.Error(t, err)
	})
}
