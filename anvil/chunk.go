package anvil

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Tnze/go-mc/nbt"

	"github.com/astei/anvil2voxel/voxel"
)

// chunkRoot covers both on-disk layouts: 1.18+ keeps everything at the root,
// older versions nest it under Level.
type chunkRoot struct {
	DataVersion   int32            `nbt:"DataVersion"`
	XPos          int32            `nbt:"xPos"`
	ZPos          int32            `nbt:"zPos"`
	InhabitedTime int64            `nbt:"InhabitedTime"`
	Sections      []modernSection  `nbt:"sections"`
	Level         *legacyChunkData `nbt:"Level"`
}

type legacyChunkData struct {
	XPos          int32           `nbt:"xPos"`
	ZPos          int32           `nbt:"zPos"`
	InhabitedTime int64           `nbt:"InhabitedTime"`
	Sections      []legacySection `nbt:"Sections"`
}

type blockStateEntry struct {
	Name       string            `nbt:"Name"`
	Properties map[string]string `nbt:"Properties"`
}

type modernSection struct {
	Y           int8 `nbt:"Y"`
	BlockStates struct {
		Palette []blockStateEntry `nbt:"palette"`
		Data    []uint64          `nbt:"data"`
	} `nbt:"block_states"`
}

// legacySection is either a 1.13-1.17 paletted section or a pre-1.13 numeric one.
type legacySection struct {
	Y           int8              `nbt:"Y"`
	Palette     []blockStateEntry `nbt:"Palette"`
	BlockStates []uint64          `nbt:"BlockStates"`
	Blocks      []byte            `nbt:"Blocks"`
	Add         []byte            `nbt:"Add"`
	Data        []byte            `nbt:"Data"`
}

// Canonical renders a block state as name[k1="v1",k2="v2"] with sorted keys.
func Canonical(name string, properties map[string]string) voxel.BlockState {
	if len(properties) == 0 {
		return voxel.BlockState(name)
	}
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, properties[k])
	}
	b.WriteByte(']')
	return voxel.BlockState(b.String())
}

func legacyNumericState(block uint16, data byte) voxel.BlockState {
	if block == 0 {
		return "minecraft:air"
	}
	return voxel.BlockState(fmt.Sprintf("minecraft:numerical[block=%d,data=%d]", block, data))
}

// paletteBuilder merges per-section palettes into a single chunk palette.
type paletteBuilder struct {
	palette voxel.Palette
	index   map[voxel.BlockState]uint16
}

func newPaletteBuilder() *paletteBuilder {
	return &paletteBuilder{index: make(map[voxel.BlockState]uint16)}
}

func (p *paletteBuilder) add(state voxel.BlockState) uint16 {
	if idx, ok := p.index[state]; ok {
		return idx
	}
	idx := uint16(len(p.palette))
	p.palette = append(p.palette, state)
	p.index[state] = idx
	return idx
}

func (p *paletteBuilder) pairedSection(y int, entries []blockStateEntry, data []uint64, spanning bool) (*voxel.Section, error) {
	remap := make([]uint16, len(entries))
	for i, entry := range entries {
		remap[i] = p.add(Canonical(entry.Name, entry.Properties))
	}

	section := &voxel.Section{Y: y}
	if err := unpackIndices(data, len(entries), spanning, &section.Blocks); err != nil {
		return nil, fmt.Errorf("section %d: %w", y, err)
	}
	for i, raw := range section.Blocks {
		if int(raw) >= len(remap) {
			return nil, fmt.Errorf("section %d: index %d outside palette of %d", y, raw, len(remap))
		}
		section.Blocks[i] = remap[raw]
	}
	return section, nil
}

func (p *paletteBuilder) numericSection(s legacySection) (*voxel.Section, error) {
	if len(s.Blocks) != voxel.SectionVolume {
		return nil, fmt.Errorf("section %d: %d block ids, want %d", s.Y, len(s.Blocks), voxel.SectionVolume)
	}
	nibble := func(arr []byte, i int) byte {
		if len(arr) != voxel.SectionVolume/2 {
			return 0
		}
		return (arr[i>>1] >> ((i & 1) * 4)) & 0x0f
	}

	section := &voxel.Section{Y: int(s.Y)}
	for i, low := range s.Blocks {
		block := uint16(low) | uint16(nibble(s.Add, i))<<8
		section.Blocks[i] = p.add(legacyNumericState(block, nibble(s.Data, i)))
	}
	return section, nil
}

// DecodeChunk decodes one decompressed chunk NBT stream into a validated chunk.
func DecodeChunk(r io.Reader) (*voxel.Chunk, error) {
	var root chunkRoot
	if _, err := nbt.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("anvil: decoding chunk nbt: %w", err)
	}

	builder := newPaletteBuilder()
	var sections []*voxel.Section

	if root.Level == nil {
		for _, s := range root.Sections {
			if len(s.BlockStates.Palette) == 0 {
				continue
			}
			section, err := builder.pairedSection(int(s.Y), s.BlockStates.Palette, s.BlockStates.Data, false)
			if err != nil {
				return nil, fmt.Errorf("anvil: chunk %d,%d: %w", root.XPos, root.ZPos, err)
			}
			sections = append(sections, section)
		}
		return voxel.NewChunk(int(root.XPos), int(root.ZPos), sections, builder.palette, root.InhabitedTime)
	}

	level := root.Level
	spanning := root.DataVersion < paddedStatesDataVersion
	for _, s := range level.Sections {
		var section *voxel.Section
		var err error
		switch {
		case len(s.Palette) > 0:
			section, err = builder.pairedSection(int(s.Y), s.Palette, s.BlockStates, spanning)
		case len(s.Blocks) > 0:
			section, err = builder.numericSection(s)
		default:
			// lighting-only section
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("anvil: chunk %d,%d: %w", level.XPos, level.ZPos, err)
		}
		sections = append(sections, section)
	}
	return voxel.NewChunk(int(level.XPos), int(level.ZPos), sections, builder.palette, level.InhabitedTime)
}
