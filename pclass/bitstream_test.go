package pclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBitStreamPackingFixture writes the fixed sequence of bit-widths and
// values, LSB-first within each byte, and checks the exact four resulting
// bytes. Hand-tracing the write order shows every one of the 32 bits
// alternates 1,0,1,0..., which packs to 0x55 0x55 0x55 0x55.
func TestBitStreamPackingFixture(t *testing.T) {
	s := NewBitStream(1)
	writes := []struct {
		bits int
		v    uint64
	}{
		{1, 0b1},
		{2, 0b10},
		{3, 0b010},
		{4, 0b0101},
		{5, 0b10101},
		{6, 0b101010},
		{7, 0b0101010},
		{4, 0b0101},
	}
	for _, w := range writes {
		s.WriteBits(w.v, w.bits)
	}
	require.Equal(t, []byte{0x55, 0x55, 0x55, 0x55}, s.Data())
}

func TestBitStreamCapacityGrowthFixture(t *testing.T) {
	s := NewBitStream(1)
	require.Equal(t, 1, s.Capacity())
	s.WriteBits(0xFF, 8)
	s.WriteBits(0xFF, 8)
	require.Equal(t, 6, s.Capacity())
}

func TestBitStreamRoundTripArbitraryWidths(t *testing.T) {
	for n := 1; n <= 64; n++ {
		s := NewBitStream(1)
		var v uint64
		if n == 64 {
			v = 0xDEADBEEFCAFEBABE
		} else {
			v = (uint64(1) << uint(n)) - 1 // all-ones pattern for width n
		}
		s.WriteBits(v, n)
		s.Seek(BufferPos{}, false)
		got := s.ReadBits(n)
		require.Equalf(t, v, got, "width %d", n)
	}
}

func TestBitStreamWritePreservesSurroundingBits(t *testing.T) {
	s := NewBitStream(1)
	s.WriteBits(0xFF, 8)
	s.Seek(NewBufferPos(0, 2), false)
	s.WriteBits(0, 3) // clear bits 2..4, leave bits 0,1,5,6,7 set
	s.Seek(BufferPos{}, false)
	require.Equal(t, uint64(0b11100011), s.ReadBits(8))
}

func TestBufferPosArithmetic(t *testing.T) {
	p := NewBufferPos(0, 10)
	require.Equal(t, int64(1), p.Byte)
	require.Equal(t, 2, p.Bit)

	p2 := NewBufferPos(2, -3)
	require.Equal(t, int64(1), p2.Byte)
	require.Equal(t, 5, p2.Bit)
}

func TestSegmentAliasesParentStorage(t *testing.T) {
	s := NewBitStream(4)
	s.WriteBits(0, 32)
	seg := s.Segment(NewBufferPos(0, 8), 8)
	seg.WriteBits(0xAB, 8)
	s.Seek(NewBufferPos(1, 0), false)
	require.Equal(t, uint64(0xAB), s.ReadBits(8))
}
