package storage

import (
	"math/bits"

	"github.com/HITGYA/Mit-6.830/common"
)

// Bitmap provides a view over a byte slice as a sequence of bits. It does not own the underlying
// bytes; it is used directly over the header of a heap page.
//
// Bit i lives in byte i/8 at position i%8, least significant bit first. This is the heap page
// header layout and must not change.
type Bitmap struct {
	data    []byte
	numBits int
}

// AsBitmap creates a Bitmap view over the provided byte slice, which must hold at least numBits bits.
func AsBitmap(data []byte, numBits int) Bitmap {
	common.Assert(len(data) >= common.CeilDiv(numBits, 8), "bitmap buffer too small")
	return Bitmap{data: data, numBits: numBits}
}

// Len returns the number of addressable bits.
func (b *Bitmap) Len() int {
	return b.numBits
}

// SetBit sets the bit at index i to the given value.
// Returns the previous value of the bit.
func (b *Bitmap) SetBit(i int, on bool) (originalValue bool) {
	common.Assert(i >= 0 && i < b.numBits, "indexing out of bounds")
	mask := byte(1) << uint(i%8)
	ptr := &b.data[i/8]
	originalValue = (*ptr & mask) != 0
	if on {
		*ptr |= mask
	} else {
		*ptr &^= mask
	}
	return originalValue
}

// LoadBit returns the value of the bit at index i.
func (b *Bitmap) LoadBit(i int) bool {
	common.Assert(i >= 0 && i < b.numBits, "indexing out of bounds")
	return b.data[i/8]&(1<<uint(i%8)) != 0
}

// FindFirstZero searches for the first bit set to 0 (false), starting at startHint and wrapping
// around to the beginning. Returns -1 if the bitmap is entirely full.
func (b *Bitmap) FindFirstZero(startHint int) int {
	if r := b.findFirstZeroInRange(startHint, b.numBits); r != -1 {
		return r
	}
	return b.findFirstZeroInRange(0, startHint)
}

func (b *Bitmap) findFirstZeroInRange(start, end int) int {
	common.Assert(start >= 0 && start <= end && end <= b.numBits, "invalid Bitmap range")
	for i := start; i < end; {
		// Skip whole bytes that are full
		if i%8 == 0 && i+8 <= end && b.data[i/8] == 0xFF {
			i += 8
			continue
		}
		if b.data[i/8]&(1<<uint(i%8)) == 0 {
			return i
		}
		i++
	}
	return -1
}

// CountOnes returns the number of set bits.
func (b *Bitmap) CountOnes() int {
	full := b.numBits / 8
	n := 0
	for _, x := range b.data[:full] {
		n += bits.OnesCount8(x)
	}
	for i := full * 8; i < b.numBits; i++ {
		if b.LoadBit(i) {
			n++
		}
	}
	return n
}
