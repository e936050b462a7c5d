package voxel

// RegionChunks is the number of chunks along each horizontal axis of a region.
const RegionChunks = 32

// RegionBlocks is the number of blocks along each horizontal axis of a region.
const RegionBlocks = RegionChunks * SectionSize

// ChunkToRegion maps a chunk coordinate to its region and the offset inside
// that region. Offsets are always in [0, 32), including for negative input.
func ChunkToRegion(chunkX, chunkZ int) (regionX, regionZ, offsetX, offsetZ int) {
	regionX, offsetX = floorDivMod(chunkX, RegionChunks)
	regionZ, offsetZ = floorDivMod(chunkZ, RegionChunks)
	return
}

// RegionOffsetToChunk is the inverse of ChunkToRegion.
func RegionOffsetToChunk(regionX, regionZ, offsetX, offsetZ int) (chunkX, chunkZ int) {
	return regionX*RegionChunks + offsetX, regionZ*RegionChunks + offsetZ
}

func floorDivMod(a, b int) (q, r int) {
	q, r = a/b, a%b
	if r < 0 {
		q--
		r += b
	}
	return
}
