package anvil

import (
	"fmt"
	"math/bits"

	"github.com/astei/anvil2voxel/voxel"
)

// Since 20w17a block indices no longer span two longs.
const paddedStatesDataVersion = 2527

func bitsForPalette(size int) int {
	if size <= 1 {
		return 4
	}
	b := bits.Len(uint(size - 1))
	if b < 4 {
		b = 4
	}
	return b
}

func packedLength(bitsPerEntry int, spanning bool) int {
	if spanning {
		return (voxel.SectionVolume*bitsPerEntry + 63) / 64
	}
	perLong := 64 / bitsPerEntry
	return (voxel.SectionVolume + perLong - 1) / perLong
}

// entryBits picks the entry width for a packed array. Writers occasionally use
// a wider entry than the palette needs, so the array length wins when it maps
// to exactly one width.
func entryBits(dataLen, paletteLen int, spanning bool) (int, error) {
	want := bitsForPalette(paletteLen)
	if packedLength(want, spanning) == dataLen {
		return want, nil
	}
	for b := want + 1; b <= 16; b++ {
		if packedLength(b, spanning) == dataLen {
			return b, nil
		}
	}
	return 0, fmt.Errorf("anvil: %d longs cannot hold 4096 entries for a palette of %d", dataLen, paletteLen)
}

// unpackIndices expands a packed long array into 4096 palette indices.
func unpackIndices(data []uint64, paletteLen int, spanning bool, out *[voxel.SectionVolume]uint16) error {
	if len(data) == 0 {
		if paletteLen > 1 {
			return fmt.Errorf("anvil: missing block data for a palette of %d", paletteLen)
		}
		*out = [voxel.SectionVolume]uint16{}
		return nil
	}

	width, err := entryBits(len(data), paletteLen, spanning)
	if err != nil {
		return err
	}
	mask := uint64(1)<<width - 1

	if spanning {
		for i := range out {
			bit := i * width
			word, offset := bit/64, bit%64
			value := data[word] >> offset
			if offset+width > 64 {
				value |= data[word+1] << (64 - offset)
			}
			out[i] = uint16(value & mask)
		}
		return nil
	}

	perLong := 64 / width
	for i := range out {
		word, offset := i/perLong, (i%perLong)*width
		out[i] = uint16((data[word] >> offset) & mask)
	}
	return nil
}
