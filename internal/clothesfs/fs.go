package clothesfs

import "strings"

// Root returns the block index of the volume's root directory.
func (fs *FS) Root() uint32 { return fs.sb.RootBlockIdx }

// BlockSize returns the volume's configured block size.
func (fs *FS) BlockSize() int { return fs.blockSize() }

// Blocks returns the total number of blocks addressable on the volume.
func (fs *FS) Blocks() uint32 { return fs.bio.Blocks() }

// VolumeName returns the volume name recorded at format time.
func (fs *FS) VolumeName() string {
	return strings.TrimRight(string(fs.sb.VolumeName[:]), "\x00")
}

// AddDir creates a new, empty directory named name under parent and
// returns its metadata block index (spec §4.7, "add_dir").
//
// The new block is fully initialized — header, then name — before it is
// linked into parent, so parent never points at a block that isn't yet a
// valid directory.
func (fs *FS) AddDir(parent uint32, name string) (uint32, error) {
	index, err := fs.takeFreeBlock()
	if err != nil {
		return 0, err
	}
	if err := fs.initMeta(index, MetaDir); err != nil {
		return 0, err
	}
	if err := fs.updateMeta(index, name, 0); err != nil {
		return 0, err
	}
	if err := fs.addToMeta(parent, index, MetaDir); err != nil {
		return 0, err
	}
	return index, nil
}

// AddFile creates a new file named name under parent with the given
// contents and returns its metadata block index (spec §4.7, "add_file").
//
// Ordering follows AddDir: the file's own metadata block is initialized
// and named, then linked into parent, and only then does its payload
// chain get allocated and linked into the now-reachable metadata block.
func (fs *FS) AddFile(parent uint32, name string, contents []byte) (uint32, error) {
	index, err := fs.takeFreeBlock()
	if err != nil {
		return 0, err
	}
	if err := fs.initMeta(index, MetaFile); err != nil {
		return 0, err
	}
	if err := fs.updateMeta(index, name, uint64(len(contents))); err != nil {
		return 0, err
	}
	if err := fs.addToMeta(parent, index, MetaDir); err != nil {
		return 0, err
	}
	if len(contents) > 0 {
		if err := fs.addData(index, contents); err != nil {
			return 0, err
		}
	}
	return index, nil
}
