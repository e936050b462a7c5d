// Package voxfile stores assembled regions on disk. A file holds a fixed
// header, a chunk presence mask and two zstd frames: the voxel ids and the
// inhabited-time grid.
package voxfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/willf/bitset"

	"github.com/astei/anvil2voxel/voxel"
)

const voxHeader = 0xB0C5
const voxLatestVersion = 1

const presenceBits = voxel.RegionChunks * voxel.RegionChunks

var ErrBadMagic = errors.New("voxfile: not a volume file")
var ErrUnsupportedVersion = errors.New("voxfile: unsupported version")

type header struct {
	Magic   uint16
	Version uint8
	RegionX int32
	RegionZ int32
	SizeX   uint16
	SizeZ   uint16
	Height  uint16
	YOffset uint16
}

// Region is the content of one volume file.
type Region struct {
	X, Z      int
	Volume    *voxel.Volume
	Inhabited *voxel.InhabitedGrid
	Present   *bitset.BitSet
}

// Write encodes region to w.
func Write(w io.Writer, region *Region) error {
	vw := &volumeWriter{writer: w, region: region}
	return vw.writeRegion()
}

type volumeWriter struct {
	writer io.Writer
	region *Region
}

func (w *volumeWriter) writeRegion() (err error) {
	if err = w.writeHeader(); err != nil {
		return
	}
	if err = w.writePresence(); err != nil {
		return
	}
	if err = w.writeVoxels(); err != nil {
		return
	}
	return w.writeInhabited()
}

func (w *volumeWriter) writeHeader() error {
	v := w.region.Volume
	h := header{
		Magic:   voxHeader,
		Version: voxLatestVersion,
		RegionX: int32(w.region.X),
		RegionZ: int32(w.region.Z),
		SizeX:   uint16(v.SizeX),
		SizeZ:   uint16(v.SizeZ),
		Height:  uint16(v.Height),
		YOffset: uint16(v.YOffset),
	}
	return binary.Write(w.writer, binary.BigEndian, h)
}

func (w *volumeWriter) writePresence() error {
	words := make([]uint64, presenceBits/64)
	if w.region.Present != nil {
		copy(words, w.region.Present.Bytes())
	}
	return binary.Write(w.writer, binary.BigEndian, words)
}

func (w *volumeWriter) writeVoxels() error {
	data := w.region.Volume.Data
	raw := make([]byte, len(data)*2)
	for i, id := range data {
		binary.BigEndian.PutUint16(raw[i*2:], uint16(id))
	}
	return w.writeZstdCompressed(raw)
}

func (w *volumeWriter) writeInhabited() error {
	var out bytes.Buffer
	var grid voxel.InhabitedGrid
	if w.region.Inhabited != nil {
		grid = *w.region.Inhabited
	}
	if err := binary.Write(&out, binary.BigEndian, grid); err != nil {
		return err
	}
	return w.writeZstdCompressed(out.Bytes())
}

func (w *volumeWriter) writeZstdCompressed(payload []byte) (err error) {
	uncompressedSize := len(payload)

	var compressedOutput bytes.Buffer
	zstdWriter, err := zstd.NewWriter(&compressedOutput)
	if err != nil {
		return
	}
	if _, err = zstdWriter.Write(payload); err != nil {
		return
	}
	if err = zstdWriter.Close(); err != nil {
		return
	}

	if err = binary.Write(w.writer, binary.BigEndian, uint32(compressedOutput.Len())); err != nil {
		return
	}
	if err = binary.Write(w.writer, binary.BigEndian, uint32(uncompressedSize)); err != nil {
		return
	}
	_, err = compressedOutput.WriteTo(w.writer)
	return
}

// Read decodes a volume file.
func Read(r io.Reader) (*Region, error) {
	var h header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != voxHeader {
		return nil, ErrBadMagic
	}
	if h.Version != voxLatestVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	words := make([]uint64, presenceBits/64)
	if err := binary.Read(r, binary.BigEndian, words); err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	volume := voxel.NewVolume(int(h.SizeX), int(h.SizeZ), int(h.Height))
	volume.YOffset = int(h.YOffset)
	payload, err := readZstdFrame(r, decoder, len(volume.Data)*2)
	if err != nil {
		return nil, fmt.Errorf("voxfile: voxels: %w", err)
	}
	for i := range volume.Data {
		volume.Data[i] = voxel.GlobalID(binary.BigEndian.Uint16(payload[i*2:]))
	}

	var grid voxel.InhabitedGrid
	payload, err = readZstdFrame(r, decoder, binary.Size(grid))
	if err != nil {
		return nil, fmt.Errorf("voxfile: inhabited time: %w", err)
	}
	if err := binary.Read(bytes.NewReader(payload), binary.BigEndian, &grid); err != nil {
		return nil, err
	}

	return &Region{
		X:         int(h.RegionX),
		Z:         int(h.RegionZ),
		Volume:    volume,
		Inhabited: &grid,
		Present:   bitset.From(words),
	}, nil
}

func readZstdFrame(r io.Reader, decoder *zstd.Decoder, want int) ([]byte, error) {
	var sizes struct {
		Compressed   uint32
		Uncompressed uint32
	}
	if err := binary.Read(r, binary.BigEndian, &sizes); err != nil {
		return nil, err
	}
	if int(sizes.Uncompressed) != want {
		return nil, fmt.Errorf("frame holds %d bytes, want %d", sizes.Uncompressed, want)
	}
	compressed := make([]byte, sizes.Compressed)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	out, err := decoder.DecodeAll(compressed, make([]byte, 0, want))
	if err != nil {
		return nil, err
	}
	if len(out) != want {
		return nil, fmt.Errorf("frame decoded to %d bytes, want %d", len(out), want)
	}
	return out, nil
}
