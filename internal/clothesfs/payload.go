package clothesfs

// initData writes a payload block header and returns the first usable
// content offset within the block (spec §4.5): 4 when no integrity
// algorithm is in use, 8 otherwise. ClothesFS never computes an
// algorithm (spec §1 Non-goals), so algo is always 0 in practice; the
// reserved slot is still accounted for so a future algorithm can be
// dropped in without shifting the format.
func initData(buf []byte, payloadType, algo uint8) int {
	le.PutUint16(buf[0:2], payloadID)
	buf[2] = payloadType
	buf[3] = algo
	if algo == 0 {
		return 4
	}
	return 8
}

// addData splits contents into a chain of payload blocks whose indices
// are appended, in order, to meta's pointer table (spec §4.5).
//
// Each block is fully initialized (header + its slice of content) before
// its index is linked into meta, so that a pointer is only ever
// published once the block it references is valid — the ordering
// guarantee spec §5 states ("every block reachable through a
// parent-side pointer has been initialized before the pointer is
// published") applied literally to the payload chain; see DESIGN.md for
// the discussion of where this clarifies the ordering spec §5's prose
// leaves ambiguous.
func (fs *FS) addData(meta uint32, contents []byte) error {
	index, err := fs.takeFreeBlock()
	if err != nil {
		return err
	}

	buf := make([]byte, fs.blockSize())
	offset := initData(buf, PayloadUsed, 0)
	capacity := fs.blockSize() - offset
	n := len(contents)
	if n > capacity {
		n = capacity
	}
	copy(buf[offset:offset+n], contents[:n])
	if err := fs.writeBlock(index, buf); err != nil {
		return err
	}

	if err := fs.addToMeta(meta, index, MetaFile); err != nil {
		return err
	}

	if n < len(contents) {
		return fs.addData(meta, contents[n:])
	}
	return nil
}
