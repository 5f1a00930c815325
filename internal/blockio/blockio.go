// Package blockio maps the filesystem's addressing unit (a block) onto
// one or more sector reads/writes against a device.Device.
//
// See spec §4.1. The source this spec was distilled from decrements its
// sector loop counter instead of incrementing it, so for
// block_in_sectors > 1 it only ever touches the first sector of a
// block — the open question in spec §9 flags this as a bug to fix, not
// to reproduce. GetBlock/PutBlock below iterate ascending over every
// sector composing a block.
package blockio

import (
	"golang.org/x/xerrors"

	"github.com/clothesfs/clothesfs/internal/device"
)

// IO reads and writes whole blocks against a device whose sector size
// evenly divides the configured block size.
type IO struct {
	dev        device.Device
	blockSize  int
	sectorSize int
	blockInSec int // blockSize / sectorSize
}

// New returns an IO layer addressing dev in units of blockSize bytes.
// blockSize must be a multiple of dev.SectorSize() (spec §3: "block
// size = k*sector size for some integer k >= 1").
func New(dev device.Device, blockSize int) (*IO, error) {
	sectorSize := dev.SectorSize()
	if sectorSize <= 0 || blockSize <= 0 || blockSize%sectorSize != 0 {
		return nil, xerrors.Errorf("blockio: block size %d is not a multiple of sector size %d", blockSize, sectorSize)
	}
	return &IO{
		dev:        dev,
		blockSize:  blockSize,
		sectorSize: sectorSize,
		blockInSec: blockSize / sectorSize,
	}, nil
}

// BlockSize returns the configured block size in bytes.
func (io *IO) BlockSize() int { return io.blockSize }

// Blocks returns the number of whole blocks addressable on the device.
func (io *IO) Blocks() uint32 {
	return uint32(io.dev.Size() / int64(io.blockSize))
}

// GetBlock reads block index into out, which must have length
// BlockSize().
func (io *IO) GetBlock(index uint32, out []byte) error {
	if len(out) != io.blockSize {
		return xerrors.Errorf("blockio: GetBlock: buffer length %d != block size %d", len(out), io.blockSize)
	}
	base := int64(index) * int64(io.blockSize)
	for j := 0; j < io.blockInSec; j++ {
		off := base + int64(j)*int64(io.sectorSize)
		sector := out[j*io.sectorSize : (j+1)*io.sectorSize]
		if err := io.dev.ReadAt(sector, off); err != nil {
			return xerrors.Errorf("blockio: GetBlock(%d) sector %d: %w", index, j, err)
		}
	}
	return nil
}

// PutBlock writes in, which must have length BlockSize(), to block
// index. Partial writes are not rolled back if a later sector fails
// (spec §4.1: "the engine relies on the device being non-lossy for
// single-sector writes").
func (io *IO) PutBlock(index uint32, in []byte) error {
	if len(in) != io.blockSize {
		return xerrors.Errorf("blockio: PutBlock: buffer length %d != block size %d", len(in), io.blockSize)
	}
	base := int64(index) * int64(io.blockSize)
	for j := 0; j < io.blockInSec; j++ {
		off := base + int64(j)*int64(io.sectorSize)
		sector := in[j*io.sectorSize : (j+1)*io.sectorSize]
		if err := io.dev.WriteAt(sector, off); err != nil {
			return xerrors.Errorf("blockio: PutBlock(%d) sector %d: %w", index, j, err)
		}
	}
	return nil
}
