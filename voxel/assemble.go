package voxel

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultMaxSections bounds the number of vertical sections kept per chunk.
const DefaultMaxSections = 24

// AssemblerOptions describes the vertical extent of the world being read.
// Section slot 0 is the section containing MinY.
type AssemblerOptions struct {
	MinY        int
	MaxY        int
	MaxSections int
	Log         zerolog.Logger
}

// DefaultAssemblerOptions matches a 1.18+ overworld.
func DefaultAssemblerOptions() AssemblerOptions {
	return AssemblerOptions{
		MinY:        -64,
		MaxY:        320,
		MaxSections: DefaultMaxSections,
		Log:         zerolog.Nop(),
	}
}

// Assembler turns the chunks of one region into a single global-id volume.
type Assembler struct {
	translator *Translator
	opts       AssemblerOptions
}

func NewAssembler(registry *Registry, opts AssemblerOptions) *Assembler {
	if opts.MaxSections <= 0 {
		opts.MaxSections = DefaultMaxSections
	}
	return &Assembler{translator: NewTranslator(registry), opts: opts}
}

func (a *Assembler) minSection() int {
	q, _ := floorDivMod(a.opts.MinY, SectionSize)
	return q
}

// DefaultSections is the untrimmed section count used when a region has no
// populated sections at all.
func (a *Assembler) DefaultSections() int {
	sections := a.opts.MaxSections
	if span := a.opts.MaxY - a.opts.MinY; span > 0 {
		if fit := (span + SectionSize - 1) / SectionSize; fit < sections {
			sections = fit
		}
	}
	return sections
}

// Assemble builds the (512, 512, H) volume for region (regionX, regionZ).
// Chunks are pulled from src one at a time and written straight into the
// volume, so only one decoded chunk is held at once. Chunks that src cannot
// produce are treated as empty. The result is trimmed vertically to the
// populated range; an empty region is returned untrimmed at the default height.
func (a *Assembler) Assemble(src ChunkSource, regionX, regionZ int) (*Volume, error) {
	log := a.opts.Log.With().Int("region_x", regionX).Int("region_z", regionZ).Logger()
	minSection := a.minSection()

	volume := NewVolume(RegionBlocks, RegionBlocks, a.opts.MaxSections*SectionSize)
	sections := 0
	var translated [SectionVolume]GlobalID
	for ox := 0; ox < RegionChunks; ox++ {
		for oz := 0; oz < RegionChunks; oz++ {
			cx, cz := RegionOffsetToChunk(regionX, regionZ, ox, oz)
			chunk, err := src.Chunk(cx, cz)
			if err != nil {
				if !errors.Is(err, ErrChunkAbsent) {
					log.Warn().Err(err).Int("chunk_x", cx).Int("chunk_z", cz).Msg("skipping unreadable chunk")
				}
				continue
			}
			if chunk == nil {
				continue
			}

			var table []GlobalID
			for _, section := range chunk.Sections {
				slot := section.Y - minSection
				if slot < 0 || slot >= a.opts.MaxSections {
					continue
				}
				// only palettes of chunks that contribute a section reach the registry
				if table == nil {
					if table, err = a.translator.Table(chunk.Palette); err != nil {
						return nil, fmt.Errorf("region %d,%d chunk %d,%d: %w", regionX, regionZ, chunk.X, chunk.Z, err)
					}
				}
				Translate(table, section, &translated)
				a.place(volume, ox, oz, slot, &translated)
				sections = max(sections, slot+1)
			}
		}
	}

	if sections == 0 {
		return NewVolume(RegionBlocks, RegionBlocks, a.DefaultSections()*SectionSize), nil
	}
	if trimmed := volume.TrimY(); trimmed != volume {
		return trimmed, nil
	}
	return volume.truncateY(sections * SectionSize), nil
}

// place writes one translated section into the volume. Global X interleaves
// the chunk offset with the local block offset, as do Z and Y.
func (a *Assembler) place(volume *Volume, offsetX, offsetZ, slot int, ids *[SectionVolume]GlobalID) {
	baseY := slot * SectionSize
	for x := 0; x < SectionSize; x++ {
		gx := offsetX*SectionSize + x
		for z := 0; z < SectionSize; z++ {
			gz := offsetZ*SectionSize + z
			column := volume.Data[volume.index(gx, baseY, gz):]
			for y := 0; y < SectionSize; y++ {
				column[y] = ids[sectionIndex(x, y, z)]
			}
		}
	}
}
