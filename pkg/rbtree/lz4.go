package rbtree

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v4"
)

const uint32Bytes = 4

// A compressed block starts with one marker byte telling whether an LZ4
// block or a raw copy follows. LZ4 refuses incompressible input, and key
// bytes or value words can be exactly that.
const (
	rawBlockMarker = 0x0
	lz4BlockMarker = 0x1
)

// CompressByteSlice compresses a byte slice with LZ4, storing the input
// verbatim when compression does not shrink it.
func CompressByteSlice(data []byte) []byte {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, buf, nil)
	if err != nil || written == 0 || written >= len(data) {
		raw := make([]byte, len(data)+1)
		raw[0] = rawBlockMarker
		copy(raw[1:], data)

		return raw
	}

	compressed := make([]byte, written+1)
	compressed[0] = lz4BlockMarker
	copy(compressed[1:], buf[:written])

	return compressed
}

// DecompressByteSlice restores a block produced by CompressByteSlice into
// result, which the caller allocates at the original length. A corrupt block
// leaves result zeroed.
func DecompressByteSlice(data []byte, result []byte) {
	if len(data) == 0 {
		return
	}

	if data[0] == rawBlockMarker {
		copy(result, data[1:])

		return
	}

	_, _ = lz4.UncompressBlock(data[1:], result)
}

// CompressUint32Slice packs the words little-endian and compresses them.
func CompressUint32Slice(words []uint32) []byte {
	return CompressByteSlice(packUint32(words))
}

// DecompressUint32Slice reverses CompressUint32Slice. The caller allocates
// words at the original element count.
func DecompressUint32Slice(data []byte, words []uint32) {
	packed := make([]byte, len(words)*uint32Bytes)
	DecompressByteSlice(data, packed)
	unpackUint32(packed, words)
}

func packUint32(words []uint32) []byte {
	packed := make([]byte, len(words)*uint32Bytes)
	for i, word := range words {
		binary.LittleEndian.PutUint32(packed[i*uint32Bytes:], word)
	}

	return packed
}

func unpackUint32(packed []byte, words []uint32) {
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(packed[i*uint32Bytes:])
	}
}

// DeltaEncodeUint32Slice rewrites each element as its difference from the
// previous one, in place. Sorted input becomes runs of small values that LZ4
// handles much better.
func DeltaEncodeUint32Slice(words []uint32) {
	for i := len(words) - 1; i > 0; i-- {
		words[i] -= words[i-1]
	}
}

// DeltaDecodeUint32Slice undoes DeltaEncodeUint32Slice with a prefix sum, in
// place.
func DeltaDecodeUint32Slice(words []uint32) {
	for i := 1; i < len(words); i++ {
		words[i] += words[i-1]
	}
}
