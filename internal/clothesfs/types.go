// Package clothesfs implements the ClothesFS on-disk format: the
// superblock, the free-block allocator, metadata and payload blocks, and
// the traversal logic used to list, look up, read and remove entries.
//
// Everything in this package operates in units of whole blocks via
// internal/blockio; nothing here knows about sectors or the underlying
// device.
package clothesfs

import "encoding/binary"

// Block kind markers (spec §3 "Invariants": the id field distinguishes
// every block kind).
const (
	metaID    uint16 = 0x0042
	payloadID uint16 = 0x4242

	// freeMagic is written to a free block's first 4 bytes. Only the low
	// byte (0x42) is meaningful per spec §3; the rest is reserved.
	freeMagic uint32 = 0x00000042
)

// Metadata block types (spec §3).
const (
	MetaFile     uint8 = 0x02
	MetaDir      uint8 = 0x04
	MetaFileCont uint8 = 0x08
	MetaDirCont  uint8 = 0x10
)

// Payload block types (spec §3).
const (
	PayloadUsed  uint8 = 0x01
	PayloadFreed uint8 = 0x02
)

// AttribNone is the zero value written to a fresh metadata block's
// attributes byte.
const AttribNone uint8 = 0x00

// MaxNameLen is the host VFS binding's filename length ceiling (spec §6,
// "Mount-side shape"). The metadata block header also imposes a
// block-size-dependent ceiling (see maxNameLenForBlockSize); both are
// enforced, whichever is smaller.
const MaxNameLen = 100

// metaHeaderLen is the fixed portion of a FILE/DIR metadata block
// preceding the (padded) name: id(2) + type(1) + attrib(1) + size(8) +
// namelen(4).
const metaHeaderLen = 16

// metaContHeaderLen is the fixed portion preceding a CONT block's
// pointer table: id(2) + type(1) + attrib(1).
const metaContHeaderLen = 4

// pointerSize is the width of one payload-pointer-table / continuation
// slot.
const pointerSize = 4

// maxNameLenForBlockSize returns the largest name length (in bytes) that
// fits in a FILE/DIR metadata block of the given size, per spec §3:
// "name length <= block_size - 20 - 4".
func maxNameLenForBlockSize(blockSize int) int {
	n := blockSize - 20 - 4
	if n < 0 {
		return 0
	}
	return n
}

// pad4 rounds n up to the next multiple of 4.
func pad4(n int) int {
	return (n + 3) &^ 3
}

// baseType maps a metadata block type to the type family used for
// validation (spec §3: "base_type(FILE) = base_type(FILE_CONT) = FILE").
func baseType(t uint8) uint8 {
	switch t {
	case MetaFile, MetaFileCont:
		return MetaFile
	case MetaDir, MetaDirCont:
		return MetaDir
	default:
		return 0
	}
}

// contTypeFor returns the CONT type that extends t (FILE -> FILE_CONT,
// FILE_CONT -> FILE_CONT, DIR -> DIR_CONT, DIR_CONT -> DIR_CONT).
func contTypeFor(t uint8) uint8 {
	switch baseType(t) {
	case MetaFile:
		return MetaFileCont
	case MetaDir:
		return MetaDirCont
	default:
		return 0
	}
}

// isCont reports whether t is a continuation type.
func isCont(t uint8) bool {
	return t == MetaFileCont || t == MetaDirCont
}

var le = binary.LittleEndian
