package clothesfs

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"golang.org/x/xerrors"

	"github.com/clothesfs/clothesfs/internal/blockio"
)

// magic is the canonical ClothesFS superblock magic: the little-endian
// uint32 read of the byte sequence 00 42 00 41 (spec §3, §4.2). The
// mount-side shape (spec §6) uses this same uint32 value, 0x41004200.
const magic uint32 = 0x41004200

// oldMagic is the earlier, superseded magic (00 42 00 42) spec §4.2 and
// §9 flag as a migration concern. Volumes carrying it are treated as
// not-a-ClothesFS: "the canonical magic is 00 42 00 41; earlier data
// must be treated as not-a-ClothesFS."
const oldMagic uint32 = 0x42004200

// RootBlock is the fixed block index of the root directory's first
// metadata block (spec §3).
const RootBlock uint32 = 1

const superblockSize = 108

// superblockWire is the byte-exact layout of block 0 (spec §3,
// "Superblock (block 0)"). encoding/binary writes struct fields in
// declaration order with no inserted padding, so the field list below is
// the wire format.
type superblockWire struct {
	Reserved      [32]byte
	Magic         uint32
	BlockSize     uint16
	Flags         uint8
	GroupIndex    uint8
	VolumeID      uint64
	VolumeSize    uint64
	VolumeName    [32]byte
	RootBlockIdx  uint32
	UsedBlocks    uint32
	Journal1      uint32
	Journal2      uint32
	FreeChainHead uint32
}

func (sb *superblockWire) marshal() []byte {
	var buf bytes.Buffer
	buf.Grow(superblockSize)
	// binary.Write never fails against a bytes.Buffer for fixed-size data.
	_ = binary.Write(&buf, le, sb)
	return buf.Bytes()
}

func unmarshalSuperblock(b []byte) (superblockWire, error) {
	var sb superblockWire
	if err := binary.Read(bytes.NewReader(b), le, &sb); err != nil {
		return sb, xerrors.Errorf("clothesfs: unmarshal superblock: %w", err)
	}
	return sb, nil
}

// FS is a mounted (or freshly formatted) ClothesFS volume: the per-mount
// context spec §5 describes ("block size, size in bytes, free-chain head
// cache, volume metadata"). Mutations of that context are serialized
// behind mu; reads of immutable fields (block size, volume size) do not
// need it once mounted.
type FS struct {
	bio *blockio.IO

	mu sync.Mutex
	sb superblockWire
}

// blockSize returns the immutable configured block size.
func (fs *FS) blockSize() int { return fs.bio.BlockSize() }

// readBlock is a thin wrapper used throughout the engine.
func (fs *FS) readBlock(index uint32, out []byte) error {
	if err := fs.bio.GetBlock(index, out); err != nil {
		return xerrors.Errorf("%w: %v", ErrIoError, err)
	}
	return nil
}

func (fs *FS) writeBlock(index uint32, in []byte) error {
	if err := fs.bio.PutBlock(index, in); err != nil {
		return xerrors.Errorf("%w: %v", ErrIoError, err)
	}
	return nil
}

func (fs *FS) readSuperblock() (superblockWire, error) {
	buf := make([]byte, fs.blockSize())
	if err := fs.readBlock(0, buf); err != nil {
		return superblockWire{}, err
	}
	return unmarshalSuperblock(buf[:superblockSize])
}

func (fs *FS) writeSuperblock(sb superblockWire) error {
	buf := make([]byte, fs.blockSize())
	copy(buf, sb.marshal())
	return fs.writeBlock(0, buf)
}

// Detect reads block 0 and reports whether it carries the canonical
// ClothesFS magic. Detection is a probe, not an operation that can fail
// (spec §4.2, §7): any I/O error or a mismatched/old magic both result
// in false.
func Detect(bio *blockio.IO) bool {
	if bio.BlockSize() < superblockSize {
		return false
	}
	buf := make([]byte, bio.BlockSize())
	if err := bio.GetBlock(0, buf); err != nil {
		return false
	}
	sb, err := unmarshalSuperblock(buf[:superblockSize])
	if err != nil {
		return false
	}
	return sb.Magic == magic
}

// Mount opens an existing, formatted volume. It fails with
// ErrNotFormatted if the superblock magic does not match (old or
// garbage data both count, per spec §4.2).
func Mount(bio *blockio.IO) (*FS, error) {
	fs := &FS{bio: bio}
	sb, err := fs.readSuperblock()
	if err != nil {
		return nil, err
	}
	if sb.Magic != magic {
		return nil, ErrNotFormatted
	}
	fs.sb = sb
	return fs, nil
}

// Format initializes a fresh volume: it builds the free chain over
// every block but the superblock and the root directory, writes the
// root directory as an empty DIR, and finally writes the superblock
// (spec §4.2, §4.7: "the engine guarantees only that the superblock is
// written last in format, so an interrupted format leaves a filesystem
// that fails detection").
//
// rng supplies the volume id's 8 random bytes; production callers pass
// crypto/rand.Reader, tests inject a deterministic source (spec §9,
// design notes: "becomes a per-mount random source injected at format
// time").
func Format(bio *blockio.IO, volumeName string, rng io.Reader) (*FS, error) {
	fs := &FS{bio: bio}
	blocks := bio.Blocks()
	if blocks < 3 {
		return nil, xerrors.Errorf("%w: device too small for a volume (%d blocks, need at least 3)", ErrInvalidArgument, blocks)
	}

	head, err := fs.formatFreeChain(blocks)
	if err != nil {
		return nil, err
	}

	if err := fs.initMeta(RootBlock, MetaDir); err != nil {
		return nil, err
	}

	var idBuf [8]byte
	if _, err := io.ReadFull(rng, idBuf[:]); err != nil {
		return nil, xerrors.Errorf("clothesfs: format: reading volume id: %w", err)
	}

	var name [32]byte
	copy(name[:], volumeName)

	sb := superblockWire{
		Magic:         magic,
		BlockSize:     uint16(fs.blockSize()),
		VolumeID:      le.Uint64(idBuf[:]),
		VolumeSize:    uint64(blocks) * uint64(fs.blockSize()),
		VolumeName:    name,
		RootBlockIdx:  RootBlock,
		UsedBlocks:    2,
		Journal1:      0,
		Journal2:      0,
		FreeChainHead: head,
	}
	if err := fs.writeSuperblock(sb); err != nil {
		return nil, err
	}
	fs.sb = sb
	return fs, nil
}

// formatFreeChain initializes blocks [2, blocks) as free blocks linked
// in descending index order, so the lowest-numbered block (2) becomes
// the chain head (spec §4.2, §4.3: "allocation order from a fresh
// format is ascending from 2").
func (fs *FS) formatFreeChain(blocks uint32) (head uint32, _ error) {
	var next uint32 = 0
	for idx := blocks - 1; idx >= 2; idx-- {
		if err := fs.writeFreeBlock(idx, next); err != nil {
			return 0, err
		}
		next = idx
		if idx == 2 {
			break
		}
	}
	return next, nil
}
