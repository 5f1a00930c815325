package clothesfs

import "golang.org/x/xerrors"

// metaHeader reads the 4 bytes every metadata block shares regardless of
// kind: id, type, attributes (spec §3).
func metaHeader(buf []byte) (id uint16, typ, attrib uint8) {
	return le.Uint16(buf[0:2]), buf[2], buf[3]
}

func metaSize(buf []byte) uint64     { return le.Uint64(buf[4:12]) }
func metaNameLen(buf []byte) uint32  { return le.Uint32(buf[12:16]) }
func metaName(buf []byte) string     { n := metaNameLen(buf); return string(buf[16 : 16+n]) }
func metaContPtr(buf []byte) uint32  { return le.Uint32(buf[len(buf)-4:]) }
func setMetaContPtr(buf []byte, v uint32) {
	le.PutUint32(buf[len(buf)-4:], v)
}

// pointerTableStart returns the byte offset of the first pointer-table
// slot in a metadata block, which differs for FILE/DIR blocks (after the
// header and padded name) versus CONT blocks (right after the 4-byte
// header, spec §3: "In CONT blocks, the payload-pointer table starts at
// offset 4").
func pointerTableStart(buf []byte, typ uint8) int {
	if isCont(typ) {
		return metaContHeaderLen
	}
	return pad4(metaHeaderLen + int(metaNameLen(buf)))
}

// initMeta writes a zeroed block whose header identifies it as a fresh
// metadata block of the given type (spec §4.4). It is used for both
// fresh FILE/DIR headers and CONT blocks.
func (fs *FS) initMeta(index uint32, typ uint8) error {
	buf := make([]byte, fs.blockSize())
	le.PutUint16(buf[0:2], metaID)
	buf[2] = typ
	buf[3] = AttribNone
	return fs.writeBlock(index, buf)
}

// updateMeta writes the name and size of an existing FILE/DIR metadata
// block (spec §4.4). It must be called on a block freshly written by
// initMeta so that pointer-table slots following the name are still
// zero.
func (fs *FS) updateMeta(index uint32, name string, size uint64) error {
	if len(name) > MaxNameLen || len(name) > maxNameLenForBlockSize(fs.blockSize()) {
		return xerrors.Errorf("%w: name %q exceeds maximum length", ErrInvalidArgument, name)
	}
	buf := make([]byte, fs.blockSize())
	if err := fs.readBlock(index, buf); err != nil {
		return err
	}
	if id, _, _ := metaHeader(buf); id != metaID {
		return xerrors.Errorf("%w: block %d is not a metadata block", ErrCorruptBlock, index)
	}
	le.PutUint64(buf[4:12], size)
	le.PutUint32(buf[12:16], uint32(len(name)))
	copy(buf[16:16+len(name)], name)
	return fs.writeBlock(index, buf)
}

// dirContinues installs next as the continuation pointer of block index
// (spec §4.4).
func (fs *FS) dirContinues(index uint32, next uint32) error {
	buf := make([]byte, fs.blockSize())
	if err := fs.readBlock(index, buf); err != nil {
		return err
	}
	setMetaContPtr(buf, next)
	return fs.writeBlock(index, buf)
}

// addToMeta appends child to the first zero slot in the payload-pointer
// table of block index (or one of its continuations), allocating a new
// continuation block if every existing block's table is full (spec
// §4.4). want is the base type (MetaFile or MetaDir) the caller expects
// block index's family to match.
func (fs *FS) addToMeta(index uint32, child uint32, want uint8) error {
	if index == 0 {
		return xerrors.Errorf("%w: parent block 0", ErrInvalidArgument)
	}
	buf := make([]byte, fs.blockSize())
	if err := fs.readBlock(index, buf); err != nil {
		return err
	}
	id, typ, _ := metaHeader(buf)
	if id != metaID {
		return xerrors.Errorf("%w: block %d is not a metadata block", ErrCorruptBlock, index)
	}
	if baseType(typ) != want {
		return xerrors.Errorf("%w: block %d has base type %#x, want %#x", ErrCorruptBlock, index, baseType(typ), want)
	}

	start := pointerTableStart(buf, typ)
	end := fs.blockSize() - 4
	for off := start; off+pointerSize <= end; off += pointerSize {
		if le.Uint32(buf[off:off+4]) == 0 {
			le.PutUint32(buf[off:off+4], child)
			return fs.writeBlock(index, buf)
		}
	}

	if next := metaContPtr(buf); next != 0 {
		return fs.addToMeta(next, child, want)
	}

	newIndex, err := fs.takeFreeBlock()
	if err != nil {
		return err
	}
	contType := contTypeFor(typ)
	if err := fs.initMeta(newIndex, contType); err != nil {
		return err
	}
	if err := fs.dirContinues(index, newIndex); err != nil {
		return err
	}
	return fs.addToMeta(newIndex, child, want)
}
