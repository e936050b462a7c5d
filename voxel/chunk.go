package voxel

import (
	"errors"
	"fmt"
)

// SectionSize is the edge length of a section in blocks.
const SectionSize = 16

// SectionVolume is the number of blocks in one section.
const SectionVolume = SectionSize * SectionSize * SectionSize

var ErrInvalidChunk = errors.New("voxel: invalid chunk")

// BlockState is a canonical block state string such as "minecraft:stone" or
// `minecraft:wool[color="magenta"]`. Equality is exact string equality.
type BlockState string

// GlobalID is a registry-wide block state id.
type GlobalID uint16

// Palette maps chunk-local indices to block states; the local index is the
// position in the slice.
type Palette []BlockState

// Section is a 16x16x16 block of local palette indices stored in the on-disk
// order: index = y<<8 | z<<4 | x.
type Section struct {
	Y      int
	Blocks [SectionVolume]uint16
}

func sectionIndex(x, y, z int) int {
	return y<<8 | z<<4 | x
}

// At returns the local palette index at the given section-relative position.
func (s *Section) At(x, y, z int) uint16 {
	return s.Blocks[sectionIndex(x, y, z)]
}

// Set stores a local palette index at the given section-relative position.
func (s *Section) Set(x, y, z int, local uint16) {
	s.Blocks[sectionIndex(x, y, z)] = local
}

// Chunk is an immutable snapshot of one chunk column as read from a world.
// Sections are kept sorted by ascending Y.
type Chunk struct {
	X, Z          int
	Sections      []*Section
	Palette       Palette
	InhabitedTime int64
}

// NewChunk builds a chunk and validates it: section Y values must be unique,
// every local index must fall inside the palette and every palette entry must
// be a state the registry can store.
func NewChunk(x, z int, sections []*Section, palette Palette, inhabitedTime int64) (*Chunk, error) {
	for i, state := range palette {
		if !storable(state) {
			return nil, fmt.Errorf("%w: chunk %d,%d palette entry %d is %q", ErrInvalidChunk, x, z, i, state)
		}
	}
	sorted := make([]*Section, 0, len(sections))
	seen := make(map[int]struct{}, len(sections))
	for _, section := range sections {
		if section == nil {
			continue
		}
		if _, dup := seen[section.Y]; dup {
			return nil, fmt.Errorf("%w: chunk %d,%d has duplicate section %d", ErrInvalidChunk, x, z, section.Y)
		}
		seen[section.Y] = struct{}{}
		for _, local := range section.Blocks {
			if int(local) >= len(palette) {
				return nil, fmt.Errorf("%w: chunk %d,%d section %d references index %d outside palette of %d",
					ErrInvalidChunk, x, z, section.Y, local, len(palette))
			}
		}
		sorted = append(sorted, section)
	}
	// insertion sort; a chunk has at most a couple dozen sections
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Y > sorted[j].Y; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return &Chunk{
		X:             x,
		Z:             z,
		Sections:      sorted,
		Palette:       append(Palette(nil), palette...),
		InhabitedTime: inhabitedTime,
	}, nil
}

// ChunkSource yields chunks by world chunk coordinate. Implementations return
// an error wrapping ErrChunkAbsent (or any other error) when a chunk cannot be
// produced; callers treat every failure as an absent chunk.
type ChunkSource interface {
	Chunk(x, z int) (*Chunk, error)
}

var ErrChunkAbsent = errors.New("voxel: chunk absent")
