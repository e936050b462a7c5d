package anvil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tnze/go-mc/nbt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astei/anvil2voxel/anvil/anviltest"
	"github.com/astei/anvil2voxel/voxel"
)

func stoneAndLog() *anviltest.Section {
	s := &anviltest.Section{
		Y: 0,
		Palette: []anviltest.Block{
			{Name: "minecraft:air"},
			{Name: "minecraft:stone"},
			{Name: "minecraft:oak_log", Properties: map[string]string{"axis": "y"}},
		},
	}
	s.Set(1, 2, 3, 1)
	s.Set(15, 15, 15, 2)
	return s
}

func decodeFixture(t *testing.T, c *anviltest.Chunk) *voxel.Chunk {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, nbt.NewEncoder(&buf).Encode(c.NBT(), ""))
	chunk, err := DecodeChunk(&buf)
	require.NoError(t, err)
	return chunk
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, voxel.BlockState("minecraft:stone"), Canonical("minecraft:stone", nil))
	assert.Equal(t, voxel.BlockState(`minecraft:wool[color="magenta"]`),
		Canonical("minecraft:wool", map[string]string{"color": "magenta"}))
	assert.Equal(t, voxel.BlockState(`minecraft:stairs[facing="north",half="top"]`),
		Canonical("minecraft:stairs", map[string]string{"half": "top", "facing": "north"}))
}

func TestDecodeChunkLayouts(t *testing.T) {
	for name, layout := range map[string]anviltest.Layout{
		"modern":   anviltest.LayoutModern,
		"paletted": anviltest.LayoutPaletted,
		"spanning": anviltest.LayoutSpanning,
	} {
		t.Run(name, func(t *testing.T) {
			chunk := decodeFixture(t, &anviltest.Chunk{
				X: -3, Z: 7, InhabitedTime: 1234, Layout: layout,
				Sections: []*anviltest.Section{stoneAndLog()},
			})

			assert.Equal(t, -3, chunk.X)
			assert.Equal(t, 7, chunk.Z)
			assert.Equal(t, int64(1234), chunk.InhabitedTime)
			assert.Equal(t, voxel.Palette{"minecraft:air", "minecraft:stone", `minecraft:oak_log[axis="y"]`}, chunk.Palette)
			require.Len(t, chunk.Sections, 1)

			section := chunk.Sections[0]
			assert.Equal(t, uint16(1), section.At(1, 2, 3))
			assert.Equal(t, uint16(2), section.At(15, 15, 15))
			assert.Equal(t, uint16(0), section.At(3, 2, 1))
		})
	}
}

func TestDecodeChunkMergesSectionPalettes(t *testing.T) {
	lower := &anviltest.Section{Y: -1, Palette: []anviltest.Block{{Name: "minecraft:deepslate"}}}
	upper := &anviltest.Section{Y: 0, Palette: []anviltest.Block{{Name: "minecraft:air"}, {Name: "minecraft:deepslate"}}}
	upper.Set(0, 0, 0, 1)

	chunk := decodeFixture(t, &anviltest.Chunk{Layout: anviltest.LayoutModern, Sections: []*anviltest.Section{upper, lower}})

	assert.Equal(t, voxel.Palette{"minecraft:air", "minecraft:deepslate"}, chunk.Palette)
	require.Len(t, chunk.Sections, 2)
	assert.Equal(t, -1, chunk.Sections[0].Y)
	assert.Equal(t, uint16(1), chunk.Sections[0].At(8, 8, 8))
	assert.Equal(t, uint16(1), chunk.Sections[1].At(0, 0, 0))
	assert.Equal(t, uint16(0), chunk.Sections[1].At(1, 0, 0))
}

func TestDecodeNumericChunk(t *testing.T) {
	s := &anviltest.Section{Y: 2}
	s.SetNumeric(0, 0, 0, 1, 0)
	s.SetNumeric(4, 5, 6, 35, 2)

	chunk := decodeFixture(t, &anviltest.Chunk{X: 1, Z: 1, Layout: anviltest.LayoutNumeric, Sections: []*anviltest.Section{s}})

	section := chunk.Sections[0]
	assert.Equal(t, 2, section.Y)
	assert.Equal(t, voxel.BlockState("minecraft:numerical[block=1,data=0]"), chunk.Palette[section.At(0, 0, 0)])
	assert.Equal(t, voxel.BlockState("minecraft:numerical[block=35,data=2]"), chunk.Palette[section.At(4, 5, 6)])
	assert.Equal(t, voxel.BlockState("minecraft:air"), chunk.Palette[section.At(1, 1, 1)])
}

func TestUnpackIndicesRoundTrip(t *testing.T) {
	var indices [voxel.SectionVolume]uint16
	for i := range indices {
		indices[i] = uint16((i * 7) % 37)
	}
	for _, spanning := range []bool{false, true} {
		data := anviltest.PackIndices(&indices, 37, spanning)
		var out [voxel.SectionVolume]uint16
		require.NoError(t, unpackIndices(data, 37, spanning, &out))
		assert.Equal(t, indices, out)
	}
}

func TestUnpackIndicesRejectsBadLength(t *testing.T) {
	var out [voxel.SectionVolume]uint16
	err := unpackIndices(make([]uint64, 3), 5, false, &out)
	assert.Error(t, err)

	err = unpackIndices(nil, 5, false, &out)
	assert.Error(t, err)

	require.NoError(t, unpackIndices(nil, 1, false, &out))
}

func TestParseRegionName(t *testing.T) {
	x, z, err := ParseRegionName("/worlds/a/region/r.-3.12.mca")
	require.NoError(t, err)
	assert.Equal(t, -3, x)
	assert.Equal(t, 12, z)

	for _, bad := range []string{"r.1.mca", "r.a.1.mca", "r.1.2.mcr", "level.dat"} {
		_, _, err := ParseRegionName(bad)
		assert.ErrorIs(t, err, ErrBadRegionName, bad)
	}
}

func writeWorld(t *testing.T) string {
	t.Helper()
	world := t.TempDir()

	require.NoError(t, anviltest.WriteRegion(anviltest.RegionPath(world, 0, 0), []*anviltest.Chunk{
		{X: 0, Z: 0, InhabitedTime: 50, Sections: []*anviltest.Section{stoneAndLog()}},
		{X: 5, Z: 9, InhabitedTime: 7, Sections: []*anviltest.Section{stoneAndLog()}},
	}, map[[2]int][]byte{
		{2, 2}: {2, 0xde, 0xad, 0xbe, 0xef},
	}))
	require.NoError(t, anviltest.WriteRegion(anviltest.RegionPath(world, -1, 0), []*anviltest.Chunk{
		{X: -1, Z: 3, InhabitedTime: 1, Sections: []*anviltest.Section{stoneAndLog()}},
	}, nil))
	require.NoError(t, anviltest.WriteRegion(anviltest.RegionPath(filepath.Join(world, "DIM-1"), 0, 0), []*anviltest.Chunk{
		{X: 0, Z: 0, Sections: []*anviltest.Section{stoneAndLog()}},
	}, nil))
	require.NoError(t, os.WriteFile(filepath.Join(world, "region", "notes.txt"), []byte("x"), 0o644))
	return world
}

func TestDiscoverRegionFiles(t *testing.T) {
	world := writeWorld(t)

	files, err := DiscoverRegionFiles(world)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, RegionFile{Path: anviltest.RegionPath(world, -1, 0), X: -1, Z: 0}, files[0])
	assert.Equal(t, RegionFile{Path: anviltest.RegionPath(world, 0, 0), X: 0, Z: 0}, files[1])
	assert.Equal(t, "DIM-1", files[2].Dimension)
}

func TestLoadRegionSkipsCorruptChunks(t *testing.T) {
	world := writeWorld(t)

	region, err := LoadRegion(RegionFile{Path: anviltest.RegionPath(world, 0, 0), X: 0, Z: 0}, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 2, region.Count())
	assert.True(t, region.Present(0, 0))
	assert.True(t, region.Present(5, 9))
	assert.False(t, region.Present(2, 2))

	chunk, err := region.Chunk(5, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(7), chunk.InhabitedTime)

	_, err = region.Chunk(2, 2)
	assert.ErrorIs(t, err, voxel.ErrChunkAbsent)
	_, err = region.Chunk(40, 0)
	assert.ErrorIs(t, err, voxel.ErrChunkAbsent)

	grid := voxel.InhabitedTimes(region, 0, 0)
	assert.Equal(t, int64(50), grid[0][0])
	assert.Equal(t, int64(7), grid[5][9])
}

func TestLoadRegionMissingFile(t *testing.T) {
	_, err := LoadRegion(RegionFile{Path: filepath.Join(t.TempDir(), "r.0.0.mca")}, zerolog.Nop())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWorldAccess(t *testing.T) {
	world := writeWorld(t)
	require.NoError(t, anviltest.WriteLevelDat(world, 2586))

	w, err := OpenWorld(world, "", zerolog.Nop())
	require.NoError(t, err)

	minY, maxY := w.VerticalBounds()
	assert.Equal(t, 0, minY)
	assert.Equal(t, 256, maxY)
	assert.Len(t, w.Regions(), 2)

	coords, err := w.ChunkCoords()
	require.NoError(t, err)
	assert.ElementsMatch(t, [][2]int{{-1, 3}, {0, 0}, {5, 9}, {2, 2}}, coords)

	chunk, err := w.Chunk(-1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chunk.InhabitedTime)

	_, err = w.Chunk(6, 6)
	assert.ErrorIs(t, err, voxel.ErrChunkAbsent)
	_, err = w.Chunk(100, 100)
	assert.ErrorIs(t, err, voxel.ErrChunkAbsent)

	_, err = w.Region(4, 4)
	assert.ErrorIs(t, err, ErrRegionNotFound)
}

func TestWorldDefaultsToTallBounds(t *testing.T) {
	w, err := OpenWorld(writeWorld(t), "DIM-1", zerolog.Nop())
	require.NoError(t, err)

	minY, maxY := w.VerticalBounds()
	assert.Equal(t, -64, minY)
	assert.Equal(t, 320, maxY)
	assert.Len(t, w.Regions(), 1)
}

func TestReaderRejectsUnknownCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	require.NoError(t, anviltest.WriteRegion(path, nil, map[[2]int][]byte{
		{0, 0}: {9, 1, 2, 3},
		{1, 0}: {130, 1, 2, 3},
	}))

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	assert.True(t, reader.ChunkExists(0, 0))
	assert.False(t, reader.ChunkExists(0, 1))

	_, err = reader.ReadChunk(0, 0)
	assert.ErrorIs(t, err, ErrInvalidCompression)
	_, err = reader.ReadChunk(1, 0)
	assert.ErrorIs(t, err, ErrExternalChunk)
	_, err = reader.ReadChunk(0, 1)
	assert.ErrorIs(t, err, ErrNoChunk)
}

func TestReaderReadsEveryChunkUpToEndOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	offsets := [][2]int{{0, 0}, {1, 0}, {7, 0}, {4, 17}, {31, 31}}
	var chunks []*anviltest.Chunk
	for i, o := range offsets {
		chunks = append(chunks, &anviltest.Chunk{
			X: o[0], Z: o[1], InhabitedTime: int64(i + 1),
			Sections: []*anviltest.Section{stoneAndLog()},
		})
	}
	require.NoError(t, anviltest.WriteRegion(path, chunks, nil))

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	for i, o := range offsets {
		stream, err := reader.ReadChunk(o[0], o[1])
		require.NoError(t, err, "chunk at %v", o)
		chunk, err := DecodeChunk(stream)
		require.NoError(t, err, "chunk at %v", o)
		assert.Equal(t, o[0], chunk.X)
		assert.Equal(t, o[1], chunk.Z)
		assert.Equal(t, int64(i+1), chunk.InhabitedTime)
		assert.Len(t, chunk.Palette, 3)
	}
}

func TestReaderRejectsChunkPastEndOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.0.0.mca")
	require.NoError(t, anviltest.WriteRegion(path, []*anviltest.Chunk{
		{X: 0, Z: 0, Sections: []*anviltest.Section{stoneAndLog()}},
		{X: 3, Z: 0, Sections: []*anviltest.Section{stoneAndLog()}},
	}, nil))

	reader, err := OpenReader(path)
	require.NoError(t, err)
	last, lastSector := 0, int32(0)
	for i, offset := range reader.sectorTable {
		if offset>>8 > lastSector {
			last, lastSector = i, offset>>8
		}
	}
	require.NoError(t, reader.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-8))

	reader, err = OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadChunk(last%32, last/32)
	assert.ErrorIs(t, err, ErrInvalidChunkLength)
}

func TestRegionStreamDecodesOnDemand(t *testing.T) {
	world := writeWorld(t)
	stream, err := OpenRegionStream(RegionFile{Path: anviltest.RegionPath(world, 0, 0), X: 0, Z: 0})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Chunk(5, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(7), chunk.InhabitedTime)

	_, err = stream.Chunk(6, 6)
	assert.ErrorIs(t, err, voxel.ErrChunkAbsent)
	_, err = stream.Chunk(40, 0)
	assert.ErrorIs(t, err, voxel.ErrChunkAbsent)

	_, err = stream.Chunk(2, 2)
	require.Error(t, err)
	assert.NotErrorIs(t, err, voxel.ErrChunkAbsent)
}
