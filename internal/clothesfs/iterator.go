package clothesfs

import "golang.org/x/xerrors"

// Done is returned by Iterator.Next when a directory has no more entries,
// following the iterator.Done convention used across Google's Go client
// libraries rather than io.EOF, since Next returns a value type, not a byte
// stream.
var Done = xerrors.New("clothesfs: no more entries")

// Entry describes one child of a directory (spec §4.6).
type Entry struct {
	Name  string
	Type  uint8 // MetaFile or MetaDir
	Size  uint64
	index uint32
}

// Index returns the entry's metadata block index, which doubles as its
// FUSE inode number in the host VFS binding (spec §6).
func (e Entry) Index() uint32 { return e.index }

// Iterator walks the children of a directory in on-disk pointer-table
// order, following continuation blocks transparently (spec §4.6).
type Iterator struct {
	fs  *FS
	buf []byte
	typ uint8
	off int
	end int
}

// Open returns an Iterator positioned at the first child of dir.
func (fs *FS) Open(dir uint32) (*Iterator, error) {
	buf := make([]byte, fs.blockSize())
	if err := fs.readBlock(dir, buf); err != nil {
		return nil, err
	}
	id, typ, _ := metaHeader(buf)
	if id != metaID || baseType(typ) != MetaDir {
		return nil, xerrors.Errorf("%w: block %d is not a directory", ErrCorruptBlock, dir)
	}
	return &Iterator{
		fs:  fs,
		buf: buf,
		typ: typ,
		off: pointerTableStart(buf, typ),
		end: fs.blockSize() - 4,
	}, nil
}

// advanceBlock moves the iterator to the directory's next continuation
// block, or returns errEndOfChain once the chain is exhausted.
func (it *Iterator) advanceBlock() error {
	next := metaContPtr(it.buf)
	if next == 0 {
		return errEndOfChain
	}
	buf := make([]byte, it.fs.blockSize())
	if err := it.fs.readBlock(next, buf); err != nil {
		return err
	}
	_, typ, _ := metaHeader(buf)
	it.buf = buf
	it.typ = typ
	it.off = pointerTableStart(buf, typ)
	it.end = it.fs.blockSize() - 4
	return nil
}

// Next returns the next child entry, or Done once the directory (and its
// continuation chain) is exhausted.
func (it *Iterator) Next() (Entry, error) {
	for {
		for it.off+pointerSize <= it.end {
			child := le.Uint32(it.buf[it.off : it.off+4])
			it.off += pointerSize
			if child == 0 {
				continue
			}
			return it.fs.statBlock(child)
		}
		if err := it.advanceBlock(); err != nil {
			if xerrors.Is(err, errEndOfChain) {
				return Entry{}, Done
			}
			return Entry{}, err
		}
	}
}

// EntryAt reads the header, name and size of an arbitrary metadata block
// without requiring its parent directory. The host VFS binding (spec §6)
// uses this: FUSE addresses inodes directly by number, and ClothesFS
// metadata block indices already make stable, dense inode numbers.
func (fs *FS) EntryAt(index uint32) (Entry, error) {
	return fs.statBlock(index)
}

// statBlock reads a metadata block's header, name and size into an Entry.
func (fs *FS) statBlock(index uint32) (Entry, error) {
	buf := make([]byte, fs.blockSize())
	if err := fs.readBlock(index, buf); err != nil {
		return Entry{}, err
	}
	id, typ, _ := metaHeader(buf)
	if id != metaID {
		return Entry{}, xerrors.Errorf("%w: block %d is not a metadata block", ErrCorruptBlock, index)
	}
	return Entry{Name: metaName(buf), Type: baseType(typ), Size: metaSize(buf), index: index}, nil
}

// List collects every entry of dir at once (spec §4.6). Most callers doing
// a one-shot directory listing want this instead of driving Iterator
// themselves.
func (fs *FS) List(dir uint32) ([]Entry, error) {
	it, err := fs.Open(dir)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for {
		e, err := it.Next()
		if xerrors.Is(err, Done) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}

// Stat looks up a single named child of dir without building the full
// listing (spec §4.9, added: a convenience the original spec leaves
// implicit in "list, then filter").
func (fs *FS) Stat(dir uint32, name string) (Entry, error) {
	it, err := fs.Open(dir)
	if err != nil {
		return Entry{}, err
	}
	for {
		e, err := it.Next()
		if xerrors.Is(err, Done) {
			return Entry{}, xerrors.Errorf("%w: %q not found", ErrInvalidArgument, name)
		}
		if err != nil {
			return Entry{}, err
		}
		if e.Name == name {
			return e, nil
		}
	}
}

// readPayload reads one payload block's content bytes (spec §4.5).
func (fs *FS) readPayload(index uint32) ([]byte, error) {
	buf := make([]byte, fs.blockSize())
	if err := fs.readBlock(index, buf); err != nil {
		return nil, err
	}
	if le.Uint16(buf[0:2]) != payloadID {
		return nil, xerrors.Errorf("%w: block %d is not a payload block", ErrCorruptBlock, index)
	}
	offset := 4
	if algo := buf[3]; algo != 0 {
		offset = 8
	}
	return append([]byte(nil), buf[offset:]...), nil
}

// Read returns the full contents of a FILE entry, reassembling its payload
// chain in pointer-table order (spec §4.6).
func (fs *FS) Read(e Entry) ([]byte, error) {
	if e.Type != MetaFile {
		return nil, xerrors.Errorf("%w: %q is not a file", ErrInvalidArgument, e.Name)
	}

	out := make([]byte, 0, e.Size)
	block := e.index
	for block != 0 && uint64(len(out)) < e.Size {
		buf := make([]byte, fs.blockSize())
		if err := fs.readBlock(block, buf); err != nil {
			return nil, err
		}
		_, typ, _ := metaHeader(buf)
		start := pointerTableStart(buf, typ)
		end := fs.blockSize() - 4
		for off := start; off+pointerSize <= end && uint64(len(out)) < e.Size; off += pointerSize {
			ptr := le.Uint32(buf[off : off+4])
			if ptr == 0 {
				continue
			}
			chunk, err := fs.readPayload(ptr)
			if err != nil {
				return nil, err
			}
			if remaining := e.Size - uint64(len(out)); uint64(len(chunk)) > remaining {
				chunk = chunk[:remaining]
			}
			out = append(out, chunk...)
		}
		block = metaContPtr(buf)
	}
	return out, nil
}

// freePayloadChain returns every payload block referenced, directly or
// through continuations, by a FILE's metadata chain to the free list.
func (fs *FS) freePayloadChain(metaIndex uint32) error {
	block := metaIndex
	for block != 0 {
		buf := make([]byte, fs.blockSize())
		if err := fs.readBlock(block, buf); err != nil {
			return err
		}
		_, typ, _ := metaHeader(buf)
		start := pointerTableStart(buf, typ)
		end := fs.blockSize() - 4
		for off := start; off+pointerSize <= end; off += pointerSize {
			if ptr := le.Uint32(buf[off : off+4]); ptr != 0 {
				if err := fs.addFreeBlock(ptr); err != nil {
					return err
				}
			}
		}
		block = metaContPtr(buf)
	}
	return nil
}

// freeMetaChain returns a metadata block and every one of its
// continuations to the free list.
func (fs *FS) freeMetaChain(index uint32) error {
	block := index
	for block != 0 {
		buf := make([]byte, fs.blockSize())
		if err := fs.readBlock(block, buf); err != nil {
			return err
		}
		next := metaContPtr(buf)
		if err := fs.addFreeBlock(block); err != nil {
			return err
		}
		block = next
	}
	return nil
}

// clearSlot zeroes the pointer-table slot in dir's chain that references
// child, making it unreachable before any of its blocks are freed.
func (fs *FS) clearSlot(dir uint32, child uint32) error {
	block := dir
	for block != 0 {
		buf := make([]byte, fs.blockSize())
		if err := fs.readBlock(block, buf); err != nil {
			return err
		}
		_, typ, _ := metaHeader(buf)
		start := pointerTableStart(buf, typ)
		end := fs.blockSize() - 4
		for off := start; off+pointerSize <= end; off += pointerSize {
			if le.Uint32(buf[off:off+4]) == child {
				le.PutUint32(buf[off:off+4], 0)
				return fs.writeBlock(block, buf)
			}
		}
		block = metaContPtr(buf)
	}
	return xerrors.Errorf("%w: block %d not found under parent %d", ErrCorruptBlock, child, dir)
}

// Remove deletes a named child of dir (spec §4.8, added). A non-empty
// directory is refused with ErrDirNotEmpty rather than recursively
// deleted, since the source spec leaves recursive removal out of scope.
//
// The parent's pointer to the entry is cleared before any of the entry's
// own blocks are freed, so an interruption between the two leaves at worst
// a leaked chain of blocks, never a dangling reference from the parent.
func (fs *FS) Remove(dir uint32, name string) error {
	e, err := fs.Stat(dir, name)
	if err != nil {
		return err
	}
	if e.Type == MetaDir {
		children, err := fs.List(e.index)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return ErrDirNotEmpty
		}
	}

	if err := fs.clearSlot(dir, e.index); err != nil {
		return err
	}
	if e.Type == MetaFile {
		if err := fs.freePayloadChain(e.index); err != nil {
			return err
		}
	}
	return fs.freeMetaChain(e.index)
}
