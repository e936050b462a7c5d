package anvil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/astei/anvil2voxel/voxel"
)

var ErrRegionNotFound = errors.New("anvil: region not found")
var ErrBadRegionName = errors.New("anvil: region file name does not encode coordinates")

// RegionFile is a discovered region file. Dimension is the directory holding
// the region folder relative to the world root; the overworld is "".
type RegionFile struct {
	Path      string
	Dimension string
	X, Z      int
}

// ParseRegionName reads the region coordinates from a name of the form
// r.<x>.<z>.mca; the last two dot-separated stem components are the coordinates.
func ParseRegionName(name string) (x, z int, err error) {
	base := filepath.Base(name)
	if filepath.Ext(base) != ".mca" {
		return 0, 0, fmt.Errorf("%w: %s", ErrBadRegionName, base)
	}
	parts := strings.Split(strings.TrimSuffix(base, ".mca"), ".")
	if len(parts) < 3 {
		return 0, 0, fmt.Errorf("%w: %s", ErrBadRegionName, base)
	}
	if x, err = strconv.Atoi(parts[len(parts)-2]); err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrBadRegionName, base)
	}
	if z, err = strconv.Atoi(parts[len(parts)-1]); err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrBadRegionName, base)
	}
	return x, z, nil
}

// Region holds every chunk that could be decoded from one region file.
type Region struct {
	X, Z   int
	chunks [voxel.RegionChunks][voxel.RegionChunks]*voxel.Chunk
}

// Chunk implements voxel.ChunkSource for the chunks of this region.
func (r *Region) Chunk(x, z int) (*voxel.Chunk, error) {
	rx, rz, ox, oz := voxel.ChunkToRegion(x, z)
	if rx != r.X || rz != r.Z {
		return nil, fmt.Errorf("%w: chunk %d,%d lies in region %d,%d", voxel.ErrChunkAbsent, x, z, rx, rz)
	}
	chunk := r.chunks[ox][oz]
	if chunk == nil {
		return nil, voxel.ErrChunkAbsent
	}
	return chunk, nil
}

// Present reports whether the chunk at the given region offset was decoded.
func (r *Region) Present(offsetX, offsetZ int) bool {
	return r.chunks[offsetX][offsetZ] != nil
}

// Count returns the number of decoded chunks.
func (r *Region) Count() int {
	n := 0
	for ox := range r.chunks {
		for oz := range r.chunks[ox] {
			if r.chunks[ox][oz] != nil {
				n++
			}
		}
	}
	return n
}

// LoadRegion reads and decodes every chunk of the region file at path. A chunk
// that fails to decode is logged and left absent; only failures to open the
// file or read its header are returned.
func LoadRegion(file RegionFile, log zerolog.Logger) (*Region, error) {
	stream, err := OpenRegionStream(file)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	region := &Region{X: file.X, Z: file.Z}
	for ox := 0; ox < voxel.RegionChunks; ox++ {
		for oz := 0; oz < voxel.RegionChunks; oz++ {
			if !stream.reader.ChunkExists(ox, oz) {
				continue
			}
			cx, cz := voxel.RegionOffsetToChunk(file.X, file.Z, ox, oz)
			chunk, err := stream.decodeAt(ox, oz)
			if err != nil {
				log.Warn().Err(err).
					Str("path", file.Path).
					Int("chunk_x", cx).
					Int("chunk_z", cz).
					Msg("skipping chunk")
				continue
			}
			region.chunks[ox][oz] = chunk
		}
	}
	return region, nil
}

// RegionStream decodes the chunks of one region file on demand and keeps
// none of them. It implements voxel.ChunkSource; like Reader it is not safe
// for concurrent use.
type RegionStream struct {
	file   RegionFile
	reader *Reader
}

// OpenRegionStream opens the region file for on-demand chunk reads.
func OpenRegionStream(file RegionFile) (*RegionStream, error) {
	reader, err := OpenReader(file.Path)
	if err != nil {
		return nil, err
	}
	return &RegionStream{file: file, reader: reader}, nil
}

// Chunk decodes the chunk at world chunk coordinates x, z. Empty slots and
// chunks outside this region wrap voxel.ErrChunkAbsent; any other error means
// the stored chunk could not be decoded.
func (s *RegionStream) Chunk(x, z int) (*voxel.Chunk, error) {
	rx, rz, ox, oz := voxel.ChunkToRegion(x, z)
	if rx != s.file.X || rz != s.file.Z {
		return nil, fmt.Errorf("%w: chunk %d,%d lies in region %d,%d", voxel.ErrChunkAbsent, x, z, rx, rz)
	}
	if !s.reader.ChunkExists(ox, oz) {
		return nil, voxel.ErrChunkAbsent
	}
	return s.decodeAt(ox, oz)
}

func (s *RegionStream) decodeAt(offsetX, offsetZ int) (*voxel.Chunk, error) {
	chunk, err := readChunk(s.reader, offsetX, offsetZ)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.file.Path, err)
	}
	cx, cz := voxel.RegionOffsetToChunk(s.file.X, s.file.Z, offsetX, offsetZ)
	if chunk.X != cx || chunk.Z != cz {
		return nil, fmt.Errorf("%s: chunk at %d,%d reports position %d,%d", s.file.Path, cx, cz, chunk.X, chunk.Z)
	}
	return chunk, nil
}

func (s *RegionStream) Close() error {
	return s.reader.Close()
}

func readChunk(reader *Reader, offsetX, offsetZ int) (*voxel.Chunk, error) {
	stream, err := reader.ReadChunk(offsetX, offsetZ)
	if err != nil {
		return nil, err
	}
	return DecodeChunk(stream)
}
