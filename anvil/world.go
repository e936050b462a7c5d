package anvil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/astei/anvil2voxel/voxel"
)

// Worlds created by 1.18 snapshots onward span y -64..320.
const tallWorldDataVersion = 2825

// DiscoverRegionFiles finds every r.<x>.<z>.mca file inside a directory named
// "region" under root, sorted by dimension then coordinates.
func DiscoverRegionFiles(root string) ([]RegionFile, error) {
	var files []RegionFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".mca" || filepath.Base(filepath.Dir(path)) != "region" {
			return nil
		}
		x, z, err := ParseRegionName(path)
		if err != nil {
			return nil
		}
		dim, err := filepath.Rel(root, filepath.Dir(filepath.Dir(path)))
		if err != nil {
			return err
		}
		if dim == "." {
			dim = ""
		}
		files = append(files, RegionFile{Path: path, Dimension: filepath.ToSlash(dim), X: x, Z: z})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Dimension != b.Dimension {
			return a.Dimension < b.Dimension
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return files, nil
}

// World gives access to the chunks of a single dimension of a saved world.
type World struct {
	root      string
	dimension string
	regions   map[[2]int]RegionFile
	minY      int
	maxY      int
	log       zerolog.Logger
}

// OpenWorld indexes the region files of the given dimension ("" for the
// overworld, "DIM-1" for the nether and so on).
func OpenWorld(root, dimension string, log zerolog.Logger) (*World, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("anvil: %s is not a directory", root)
	}

	files, err := DiscoverRegionFiles(root)
	if err != nil {
		return nil, err
	}

	w := &World{
		root:      root,
		dimension: dimension,
		regions:   make(map[[2]int]RegionFile),
		log:       log,
	}
	for _, f := range files {
		if f.Dimension == dimension {
			w.regions[[2]int{f.X, f.Z}] = f
		}
	}
	w.minY, w.maxY = readVerticalBounds(filepath.Join(root, "level.dat"), log)
	return w, nil
}

func readVerticalBounds(levelDat string, log zerolog.Logger) (minY, maxY int) {
	dataVersion, err := readDataVersion(levelDat)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", levelDat).Msg("could not read level.dat, assuming a 1.18+ world")
		}
		return -64, 320
	}
	if dataVersion >= tallWorldDataVersion {
		return -64, 320
	}
	return 0, 256
}

func readDataVersion(levelDat string) (int32, error) {
	f, err := os.Open(levelDat)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	var level struct {
		Data struct {
			DataVersion int32 `nbt:"DataVersion"`
		} `nbt:"Data"`
	}
	if _, err = nbt.NewDecoder(gz).Decode(&level); err != nil {
		return 0, err
	}
	return level.Data.DataVersion, nil
}

// Regions returns the indexed region files, sorted by coordinates.
func (w *World) Regions() []RegionFile {
	files := make([]RegionFile, 0, len(w.regions))
	for _, f := range w.regions {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].X != files[j].X {
			return files[i].X < files[j].X
		}
		return files[i].Z < files[j].Z
	})
	return files
}

// Region returns the region file for the given region coordinates.
func (w *World) Region(regionX, regionZ int) (RegionFile, error) {
	f, ok := w.regions[[2]int{regionX, regionZ}]
	if !ok {
		return RegionFile{}, fmt.Errorf("%w: %d,%d in %s", ErrRegionNotFound, regionX, regionZ, w.root)
	}
	return f, nil
}

// VerticalBounds returns the world's [minY, maxY) block range.
func (w *World) VerticalBounds() (minY, maxY int) {
	return w.minY, w.maxY
}

// ChunkCoords lists every chunk present in the indexed region files.
func (w *World) ChunkCoords() ([][2]int, error) {
	var coords [][2]int
	for _, f := range w.Regions() {
		reader, err := OpenReader(f.Path)
		if err != nil {
			w.log.Warn().Err(err).Str("path", f.Path).Msg("skipping unreadable region")
			continue
		}
		for oz := 0; oz < voxel.RegionChunks; oz++ {
			for ox := 0; ox < voxel.RegionChunks; ox++ {
				if reader.ChunkExists(ox, oz) {
					cx, cz := voxel.RegionOffsetToChunk(f.X, f.Z, ox, oz)
					coords = append(coords, [2]int{cx, cz})
				}
			}
		}
		_ = reader.Close()
	}
	return coords, nil
}

// Chunk reads a single chunk by world chunk coordinate. A missing region or an
// empty slot wraps voxel.ErrChunkAbsent.
func (w *World) Chunk(x, z int) (*voxel.Chunk, error) {
	rx, rz, ox, oz := voxel.ChunkToRegion(x, z)
	f, err := w.Region(rx, rz)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", voxel.ErrChunkAbsent, err.Error())
	}
	reader, err := OpenReader(f.Path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	chunk, err := readChunk(reader, ox, oz)
	if errors.Is(err, ErrNoChunk) {
		return nil, fmt.Errorf("%w: %s", voxel.ErrChunkAbsent, err.Error())
	}
	return chunk, err
}
