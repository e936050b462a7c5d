package voxel

// InhabitedGrid holds one inhabited-time value per chunk of a region, indexed
// [offsetX][offsetZ].
type InhabitedGrid [RegionChunks][RegionChunks]int64

// InhabitedTimes collects the inhabited time of every chunk in a region.
// Chunks src cannot produce count as zero.
func InhabitedTimes(src ChunkSource, regionX, regionZ int) *InhabitedGrid {
	var grid InhabitedGrid
	for ox := 0; ox < RegionChunks; ox++ {
		for oz := 0; oz < RegionChunks; oz++ {
			cx, cz := RegionOffsetToChunk(regionX, regionZ, ox, oz)
			chunk, err := src.Chunk(cx, cz)
			if err != nil || chunk == nil {
				continue
			}
			grid[ox][oz] = chunk.InhabitedTime
		}
	}
	return &grid
}
