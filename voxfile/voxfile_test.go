package voxfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willf/bitset"

	"github.com/astei/anvil2voxel/anvil"
	"github.com/astei/anvil2voxel/loader"
	"github.com/astei/anvil2voxel/voxel"
)

func sampleRegion() *Region {
	volume := voxel.NewVolume(8, 6, 5)
	volume.YOffset = 17
	volume.Set(0, 0, 0, 3)
	volume.Set(7, 4, 5, 65535)
	volume.Set(3, 2, 1, 258)

	var grid voxel.InhabitedGrid
	grid[0][0] = 12
	grid[31][2] = 1 << 40

	present := bitset.New(1024)
	present.Set(0).Set(31*32 + 2).Set(1023)

	return &Region{X: -4, Z: 9, Volume: volume, Inhabited: &grid, Present: present}
}

func TestRoundTrip(t *testing.T) {
	want := sampleRegion()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, want))

	got, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, want.X, got.X)
	assert.Equal(t, want.Z, got.Z)
	assert.Equal(t, want.Volume, got.Volume)
	assert.Equal(t, *want.Inhabited, *got.Inhabited)
	assert.True(t, got.Present.Test(0))
	assert.True(t, got.Present.Test(31*32+2))
	assert.True(t, got.Present.Test(1023))
	assert.Equal(t, uint(3), got.Present.Count())
}

func TestReadRejectsForeignData(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0xB1, 0x0B, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrBadMagic)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleRegion()))
	truncated := buf.Bytes()[:buf.Len()-10]
	_, err = Read(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestDirPut(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out")
	dir, err := NewDir(root, zerolog.Nop())
	require.NoError(t, err)

	r := sampleRegion()
	result := loader.RegionResult{
		File:      anvil.RegionFile{Path: "world/DIM-1/region/r.-4.9.mca", Dimension: "DIM-1", X: -4, Z: 9},
		Volume:    r.Volume,
		Inhabited: r.Inhabited,
		Present:   r.Present,
	}
	require.NoError(t, dir.Put(context.Background(), result))

	path := dir.Path("DIM-1", -4, 9)
	assert.Equal(t, filepath.Join(root, "DIM-1", "r.-4.9.vox"), path)

	got, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, r.Volume, got.Volume)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
