package voxfile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/astei/anvil2voxel/loader"
)

// Dir writes one volume file per region into a directory.
type Dir struct {
	root string
	log  zerolog.Logger
}

func NewDir(root string, log zerolog.Logger) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Dir{root: root, log: log}, nil
}

// Path returns where the file for a region lives. Regions outside the
// overworld are kept in a subdirectory named after their dimension.
func (d *Dir) Path(dimension string, regionX, regionZ int) string {
	return filepath.Join(d.root, filepath.FromSlash(dimension), fmt.Sprintf("r.%d.%d.vox", regionX, regionZ))
}

// Put implements loader.Sink. The file is written under a temporary name and
// renamed into place so a crash never leaves a partial volume behind.
func (d *Dir) Put(_ context.Context, result loader.RegionResult) error {
	path := d.Path(result.File.Dimension, result.File.X, result.File.Z)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".vox-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	err = Write(w, &Region{
		X:         result.File.X,
		Z:         result.File.Z,
		Volume:    result.Volume,
		Inhabited: result.Inhabited,
		Present:   result.Present,
	})
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("voxfile: writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil {
		d.log.Info().
			Str("path", path).
			Int("height", result.Volume.Height).
			Str("size", humanize.Bytes(uint64(info.Size()))).
			Msg("wrote volume")
	}
	return nil
}

// Open reads a volume file from disk.
func Open(path string) (*Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}
