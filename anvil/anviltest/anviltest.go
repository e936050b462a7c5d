// Package anviltest writes small Anvil worlds for tests. Region files are
// produced with go-mc's region writer so readers are checked against an
// independent implementation.
package anviltest

import (
	"bytes"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/Tnze/go-mc/nbt"
	"github.com/Tnze/go-mc/save/region"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Layout selects the on-disk chunk format.
type Layout int

const (
	// LayoutModern is the 1.18+ root-level layout.
	LayoutModern Layout = iota
	// LayoutPaletted is the 1.16-1.17 Level layout with padded long arrays.
	LayoutPaletted
	// LayoutSpanning is the 1.13-1.15 Level layout with spanning long arrays.
	LayoutSpanning
	// LayoutNumeric is the pre-1.13 Level layout with numeric block ids.
	LayoutNumeric
)

type Block struct {
	Name       string
	Properties map[string]string
}

// Section is one 16x16x16 section. Indices use the on-disk order
// y<<8 | z<<4 | x. Numeric sections use Blocks and Data instead.
type Section struct {
	Y       int
	Palette []Block
	Indices [4096]uint16

	Blocks [4096]byte
	Data   [2048]byte
}

// Set stores a palette index at a section-relative position.
func (s *Section) Set(x, y, z int, idx uint16) {
	s.Indices[y<<8|z<<4|x] = idx
}

// SetNumeric stores a numeric block id and data value at a position.
func (s *Section) SetNumeric(x, y, z int, block, data byte) {
	i := y<<8 | z<<4 | x
	s.Blocks[i] = block
	s.Data[i>>1] |= (data & 0x0f) << ((i & 1) * 4)
}

type Chunk struct {
	X, Z          int
	InhabitedTime int64
	Layout        Layout
	Sections      []*Section
}

func bitsForPalette(size int) int {
	b := bits.Len(uint(size - 1))
	if b < 4 {
		b = 4
	}
	return b
}

// PackIndices packs 4096 palette indices into a long array.
func PackIndices(indices *[4096]uint16, paletteLen int, spanning bool) []uint64 {
	width := bitsForPalette(paletteLen)
	if spanning {
		data := make([]uint64, (4096*width+63)/64)
		for i, v := range indices {
			bit := i * width
			word, offset := bit/64, bit%64
			data[word] |= uint64(v) << offset
			if offset+width > 64 {
				data[word+1] |= uint64(v) >> (64 - offset)
			}
		}
		return data
	}
	perLong := 64 / width
	data := make([]uint64, (4096+perLong-1)/perLong)
	for i, v := range indices {
		data[i/perLong] |= uint64(v) << ((i % perLong) * width)
	}
	return data
}

func paletteNBT(palette []Block) []map[string]any {
	out := make([]map[string]any, 0, len(palette))
	for _, b := range palette {
		entry := map[string]any{"Name": b.Name}
		if len(b.Properties) > 0 {
			entry["Properties"] = b.Properties
		}
		out = append(out, entry)
	}
	return out
}

// NBT builds the chunk's root compound.
func (c *Chunk) NBT() map[string]any {
	switch c.Layout {
	case LayoutModern:
		sections := make([]map[string]any, 0, len(c.Sections))
		for _, s := range c.Sections {
			states := map[string]any{"palette": paletteNBT(s.Palette)}
			if len(s.Palette) > 1 {
				states["data"] = PackIndices(&s.Indices, len(s.Palette), false)
			}
			sections = append(sections, map[string]any{"Y": int8(s.Y), "block_states": states})
		}
		return map[string]any{
			"DataVersion":   int32(3465),
			"xPos":          int32(c.X),
			"yPos":          int32(-4),
			"zPos":          int32(c.Z),
			"Status":        "minecraft:full",
			"InhabitedTime": c.InhabitedTime,
			"sections":      sections,
		}
	default:
		dataVersion := int32(2586)
		sections := make([]map[string]any, 0, len(c.Sections))
		for _, s := range c.Sections {
			entry := map[string]any{"Y": int8(s.Y)}
			switch c.Layout {
			case LayoutNumeric:
				dataVersion = 1343
				entry["Blocks"] = append([]byte(nil), s.Blocks[:]...)
				entry["Data"] = append([]byte(nil), s.Data[:]...)
			case LayoutSpanning:
				dataVersion = 1976
				entry["Palette"] = paletteNBT(s.Palette)
				entry["BlockStates"] = PackIndices(&s.Indices, len(s.Palette), true)
			default:
				entry["Palette"] = paletteNBT(s.Palette)
				entry["BlockStates"] = PackIndices(&s.Indices, len(s.Palette), false)
			}
			sections = append(sections, entry)
		}
		return map[string]any{
			"DataVersion": dataVersion,
			"Level": map[string]any{
				"xPos":          int32(c.X),
				"zPos":          int32(c.Z),
				"InhabitedTime": c.InhabitedTime,
				"Sections":      sections,
			},
		}
	}
}

// Sector encodes the chunk as region sector payload: a compression byte
// followed by the compressed NBT.
func (c *Chunk) Sector(compression byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(compression)
	switch compression {
	case 1:
		w := gzip.NewWriter(&buf)
		if err := nbt.NewEncoder(w).Encode(c.NBT(), ""); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case 2:
		w := zlib.NewWriter(&buf)
		if err := nbt.NewEncoder(w).Encode(c.NBT(), ""); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case 3:
		if err := nbt.NewEncoder(&buf).Encode(c.NBT(), ""); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("anviltest: unknown compression %d", compression)
	}
	return buf.Bytes(), nil
}

func floorMod(a int) int {
	return ((a % 32) + 32) % 32
}

// RegionPath returns the conventional file path of a region inside a world.
func RegionPath(world string, regionX, regionZ int) string {
	return filepath.Join(world, "region", fmt.Sprintf("r.%d.%d.mca", regionX, regionZ))
}

// WriteRegion writes the chunks into a new region file at path, zlib
// compressed. Raw holds extra sector payloads keyed by region offset, used to
// plant corrupt chunks.
func WriteRegion(path string, chunks []*Chunk, raw map[[2]int][]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	r, err := region.Create(path)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		data, err := c.Sector(2)
		if err != nil {
			_ = r.Close()
			return err
		}
		if err := r.WriteSector(floorMod(c.X), floorMod(c.Z), data); err != nil {
			_ = r.Close()
			return err
		}
	}
	for offset, data := range raw {
		if err := r.WriteSector(offset[0], offset[1], data); err != nil {
			_ = r.Close()
			return err
		}
	}
	return r.Close()
}

// WriteLevelDat writes a minimal gzip compressed level.dat.
func WriteLevelDat(world string, dataVersion int32) error {
	if err := os.MkdirAll(world, 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	level := map[string]any{
		"Data": map[string]any{
			"DataVersion": dataVersion,
			"LevelName":   "fixture",
		},
	}
	if err := nbt.NewEncoder(w).Encode(level, ""); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(world, "level.dat"), buf.Bytes(), 0o644)
}
