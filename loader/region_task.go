package loader

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/willf/bitset"

	"github.com/astei/anvil2voxel/anvil"
	"github.com/astei/anvil2voxel/voxel"
)

// RegionResult is everything produced for one region file.
type RegionResult struct {
	File      anvil.RegionFile
	Volume    *voxel.Volume
	Inhabited *voxel.InhabitedGrid
	// Present has bit ox*32+oz set for every chunk that was decoded.
	Present *bitset.BitSet
}

// Sink receives region results. Results arrive in completion order, not in
// the order files were submitted.
type Sink interface {
	Put(ctx context.Context, result RegionResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, result RegionResult) error

func (f SinkFunc) Put(ctx context.Context, result RegionResult) error {
	return f(ctx, result)
}

// RegionTask loads a region file, assembles its volume and inhabited-time grid
// and hands both to sink. Registry failures are fatal; anything else fails
// only this file.
func RegionTask(registry *voxel.Registry, opts voxel.AssemblerOptions, sink Sink, metrics *Metrics, log zerolog.Logger) Task {
	return func(ctx context.Context, file anvil.RegionFile) error {
		stream, err := anvil.OpenRegionStream(file)
		if err != nil {
			return err
		}
		defer stream.Close()

		fileOpts := opts
		fileOpts.Log = log.With().Str("path", file.Path).Logger()
		seen := newChunkRecorder(stream)
		volume, err := voxel.NewAssembler(registry, fileOpts).Assemble(seen, file.X, file.Z)
		if err != nil {
			if registryFailure(err) {
				return Fatal(err)
			}
			return err
		}
		if metrics != nil {
			metrics.SetRegistryStates(registry.Len())
		}

		log.Debug().
			Str("path", file.Path).
			Uint("chunks", seen.present.Count()).
			Int("height", volume.Height).
			Int("y_offset", volume.YOffset).
			Msg("assembled region")

		return sink.Put(ctx, RegionResult{
			File:      file,
			Volume:    volume,
			Inhabited: voxel.InhabitedTimes(seen.metadata, file.X, file.Z),
			Present:   seen.present,
		})
	}
}

// registryFailure reports whether err means the registry can no longer be
// trusted, as opposed to bad data in one chunk.
func registryFailure(err error) bool {
	return errors.Is(err, voxel.ErrRegistryBroken) ||
		errors.Is(err, voxel.ErrRegistryFull) ||
		errors.Is(err, os.ErrClosed)
}

// chunkRecorder passes chunks through from a source and remembers which ones
// were produced along with their inhabited time, but not their blocks.
type chunkRecorder struct {
	src      voxel.ChunkSource
	present  *bitset.BitSet
	metadata metadataSource
}

func newChunkRecorder(src voxel.ChunkSource) *chunkRecorder {
	return &chunkRecorder{
		src:      src,
		present:  bitset.New(voxel.RegionChunks * voxel.RegionChunks),
		metadata: make(metadataSource),
	}
}

func (r *chunkRecorder) Chunk(x, z int) (*voxel.Chunk, error) {
	chunk, err := r.src.Chunk(x, z)
	if err != nil || chunk == nil {
		return chunk, err
	}
	_, _, ox, oz := voxel.ChunkToRegion(x, z)
	r.present.Set(uint(ox*voxel.RegionChunks + oz))
	r.metadata[[2]int{x, z}] = &voxel.Chunk{X: x, Z: z, InhabitedTime: chunk.InhabitedTime}
	return chunk, nil
}

// metadataSource serves the block-less chunks a chunkRecorder kept.
type metadataSource map[[2]int]*voxel.Chunk

func (m metadataSource) Chunk(x, z int) (*voxel.Chunk, error) {
	chunk, ok := m[[2]int{x, z}]
	if !ok {
		return nil, voxel.ErrChunkAbsent
	}
	return chunk, nil
}
