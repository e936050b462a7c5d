package voxel

import (
	"github.com/willf/bitset"
)

// Volume is a dense (SizeX, SizeZ, Height) grid of global ids stored with Y
// varying fastest: index = (x*SizeZ + z)*Height + y. YOffset is the slice index
// of the first kept Y slice when the volume has been trimmed.
type Volume struct {
	SizeX   int
	SizeZ   int
	Height  int
	YOffset int
	Data    []GlobalID
}

// NewVolume allocates a zero-filled volume.
func NewVolume(sizeX, sizeZ, height int) *Volume {
	return &Volume{
		SizeX:  sizeX,
		SizeZ:  sizeZ,
		Height: height,
		Data:   make([]GlobalID, sizeX*sizeZ*height),
	}
}

func (v *Volume) index(x, y, z int) int {
	return (x*v.SizeZ+z)*v.Height + y
}

func (v *Volume) At(x, y, z int) GlobalID {
	return v.Data[v.index(x, y, z)]
}

func (v *Volume) Set(x, y, z int, id GlobalID) {
	v.Data[v.index(x, y, z)] = id
}

// occupiedSlices marks every Y slice that holds at least one non-zero voxel.
func (v *Volume) occupiedSlices() *bitset.BitSet {
	mask := bitset.New(uint(v.Height))
	for col := 0; col < v.SizeX*v.SizeZ; col++ {
		column := v.Data[col*v.Height : (col+1)*v.Height]
		for y, id := range column {
			if id != 0 {
				mask.Set(uint(y))
			}
		}
	}
	return mask
}

// TrimY returns the volume cut down to the smallest contiguous Y range that
// covers every non-zero voxel. An all-zero volume is returned unchanged.
func (v *Volume) TrimY() *Volume {
	mask := v.occupiedSlices()
	lo, ok := mask.NextSet(0)
	if !ok {
		return v
	}
	hi := lo
	for i, ok := mask.NextSet(lo + 1); ok; i, ok = mask.NextSet(i + 1) {
		hi = i
	}
	if lo == 0 && int(hi) == v.Height-1 {
		return v
	}

	height := int(hi-lo) + 1
	trimmed := NewVolume(v.SizeX, v.SizeZ, height)
	trimmed.YOffset = v.YOffset + int(lo)
	for col := 0; col < v.SizeX*v.SizeZ; col++ {
		src := v.Data[col*v.Height+int(lo) : col*v.Height+int(hi)+1]
		copy(trimmed.Data[col*height:(col+1)*height], src)
	}
	return trimmed
}

// truncateY keeps the bottom height slices.
func (v *Volume) truncateY(height int) *Volume {
	if height >= v.Height {
		return v
	}
	kept := NewVolume(v.SizeX, v.SizeZ, height)
	kept.YOffset = v.YOffset
	for col := 0; col < v.SizeX*v.SizeZ; col++ {
		copy(kept.Data[col*height:(col+1)*height], v.Data[col*v.Height:col*v.Height+height])
	}
	return kept
}
