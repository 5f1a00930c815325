package clothesfs

import "golang.org/x/xerrors"

// writeFreeBlock writes a free-block header (a 4-byte marker at offset 0
// and the "next free block" pointer at offset block_size-4) to block
// index (spec §3, "Free block").
func (fs *FS) writeFreeBlock(index uint32, next uint32) error {
	buf := make([]byte, fs.blockSize())
	le.PutUint32(buf[0:4], freeMagic)
	le.PutUint32(buf[fs.blockSize()-4:], next)
	return fs.writeBlock(index, buf)
}

// takeFreeBlock pops a block off the head of the free chain (spec §4.3).
// The returned block is not zeroed; callers immediately overwrite it
// with a metadata or payload header.
func (fs *FS) takeFreeBlock() (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	head := fs.sb.FreeChainHead
	if head == 0 {
		return 0, ErrOutOfSpace
	}

	buf := make([]byte, fs.blockSize())
	if err := fs.readBlock(head, buf); err != nil {
		return 0, err
	}
	next := le.Uint32(buf[fs.blockSize()-4:])

	fs.sb.FreeChainHead = next
	fs.sb.UsedBlocks++
	if err := fs.writeSuperblock(fs.sb); err != nil {
		return 0, err
	}
	return head, nil
}

// addFreeBlock pushes index back onto the head of the free chain (spec
// §4.3, §4.6 "remove").
func (fs *FS) addFreeBlock(index uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.writeFreeBlock(index, fs.sb.FreeChainHead); err != nil {
		return err
	}
	fs.sb.FreeChainHead = index
	if fs.sb.UsedBlocks > 0 {
		fs.sb.UsedBlocks--
	}
	return fs.writeSuperblock(fs.sb)
}

// freeChainLen walks the free chain from the cached head and counts its
// blocks. This is a diagnostic helper (spec §8, testable property 1) and
// is not used on any hot path.
func (fs *FS) freeChainLen() (int, error) {
	fs.mu.Lock()
	head := fs.sb.FreeChainHead
	fs.mu.Unlock()

	seen := make(map[uint32]bool)
	n := 0
	buf := make([]byte, fs.blockSize())
	for head != 0 {
		if seen[head] {
			return 0, xerrors.Errorf("%w: free chain cycle at block %d", ErrCorruptBlock, head)
		}
		seen[head] = true
		if err := fs.readBlock(head, buf); err != nil {
			return 0, err
		}
		n++
		head = le.Uint32(buf[fs.blockSize()-4:])
	}
	return n, nil
}
