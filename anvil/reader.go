package anvil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const anvilMaxOffsets = 1024
const anvilSectorSize = 4096

var ErrNoChunk = errors.New("anvil: chunk not found")
var ErrInvalidChunkLength = errors.New("anvil: invalid chunk length")
var ErrInvalidCompression = errors.New("anvil: invalid compression format")
var ErrExternalChunk = errors.New("anvil: chunk stored in external .mcc file")

type CompressionType byte

const (
	CompressionGzip         CompressionType = 1
	CompressionDeflate      CompressionType = 2
	CompressionNone         CompressionType = 3
	compressionExternalFlag CompressionType = 128
)

// Reader allows you to read an Anvil region file and extract its chunks. The reader is not safe for concurrent
// access; each worker opens its own.
type Reader struct {
	source      io.ReadSeeker
	sectorTable []int32
	size        int64
	Name        string
}

// NewReader creates a Reader. The ownership of the source is transferred to this reader.
func NewReader(source io.ReadSeeker) (reader *Reader, err error) {
	reader = &Reader{
		source:      source,
		sectorTable: make([]int32, anvilMaxOffsets),
	}

	if file, ok := source.(*os.File); ok {
		reader.Name = file.Name()
	}
	if reader.size, err = source.Seek(0, io.SeekEnd); err != nil {
		return
	}
	err = reader.readSectorTable()
	return
}

// OpenReader opens the region file at path.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return reader, nil
}

func (r *Reader) readSectorTable() (err error) {
	_, err = r.source.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}

	rawSectorData := make([]byte, anvilSectorSize)
	_, err = io.ReadFull(r.source, rawSectorData)
	if err != nil {
		return err
	}

	return binary.Read(bytes.NewReader(rawSectorData), binary.BigEndian, r.sectorTable)
}

// ReadChunk reads the chunk at the specified X and Z offsets. Note that these coordinates are relative to the
// region file and are not chunk coordinates. The returned reader yields the decompressed NBT stream.
func (r *Reader) ReadChunk(x, z int) (chunk io.Reader, err error) {
	offset := r.sectorTable[x+z*32]

	sectorNumber := offset >> 8
	occupiedSectors := offset & 0xff
	if sectorNumber == 0 {
		err = ErrNoChunk
		return
	}

	start := int64(sectorNumber) * anvilSectorSize
	if _, err = r.source.Seek(start, io.SeekStart); err != nil {
		return
	}

	// The last sector of a file is not always padded out to a full 4 KiB, so
	// only the bytes the header claims are read.
	var sectorHeader struct {
		Length      int32
		Compression CompressionType
	}
	if err = binary.Read(r.source, binary.BigEndian, &sectorHeader); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChunkLength, err.Error())
	}

	// Length counts the compression byte
	payloadLength := int64(sectorHeader.Length) - 1
	if sectorHeader.Length < 1 ||
		int64(sectorHeader.Length) > int64(occupiedSectors)*anvilSectorSize-4 ||
		start+5+payloadLength > r.size {
		return nil, ErrInvalidChunkLength
	}
	if sectorHeader.Compression&compressionExternalFlag != 0 {
		return nil, ErrExternalChunk
	}

	payload := make([]byte, payloadLength)
	if _, err = io.ReadFull(r.source, payload); err != nil {
		return
	}

	chunkStream := bytes.NewReader(payload)
	switch sectorHeader.Compression {
	case CompressionGzip:
		return gzip.NewReader(chunkStream)
	case CompressionDeflate:
		return zlib.NewReader(chunkStream)
	case CompressionNone:
		return chunkStream, nil
	default:
		return nil, ErrInvalidCompression
	}
}

func (r *Reader) ChunkExists(x, z int) bool {
	return r.sectorTable[x+z*32] != 0
}

func (r *Reader) Close() error {
	if closer, ok := r.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
