// Package mount binds a ClothesFS volume into the host's file namespace
// over FUSE. This is a thin, read-only adapter: spec §6 describes the
// wire format and the authoring/traversal API; how (or whether) a given
// OS exposes that as a real mount point is explicitly out of scope for
// the format itself. What's here is one concrete, non-production-grade
// binding built on jacobsa/fuse, good enough to `ls` and `cat` a volume.
package mount

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"

	"github.com/clothesfs/clothesfs/internal/blockio"
	core "github.com/clothesfs/clothesfs/internal/clothesfs"
	"github.com/clothesfs/clothesfs/internal/device"
	"github.com/clothesfs/clothesfs/internal/env"
)

// maxConcurrentReads bounds the number of ReadFile/ReadDir calls
// allowed to be in flight against the underlying device at once. FUSE
// dispatches each op on its own goroutine; without a cap, a directory
// tree walk (e.g. `find` or `du`) can fan out one goroutine per entry
// and drive unbounded concurrent device I/O.
const maxConcurrentReads = 32

const help = `clothesfs mount [-flags] <image> <mountpoint>

Mount a ClothesFS volume read-only.

Example:
  % clothesfs mount vol.img /mnt
`

// never is used for FUSE attribute expiration timestamps. ClothesFS
// volumes are immutable from the mount side (spec §6: "no write path is
// required from the mount side"), so cached attributes never go stale.
var never = time.Now().Add(365 * 24 * time.Hour)

// Mount parses args, mounts the named volume at the given mountpoint, and
// returns a join function that blocks until the mount is torn down.
func Mount(ctx context.Context, args []string) (join func(context.Context) error, _ error) {
	fset := flag.NewFlagSet("mount", flag.ExitOnError)
	var (
		blockSize = fset.Int("blocksize", env.BlockSize, "block size the volume was formatted with, in bytes")
		readiness = fset.Int("readiness", -1, "file descriptor on which to send a readiness notification")
	)
	fset.Usage = func() {
		fmt.Fprintln(os.Stderr, help)
		fmt.Fprintln(os.Stderr, "Flags for clothesfs mount:")
		fset.PrintDefaults()
	}
	fset.Parse(args)
	if fset.NArg() != 2 {
		return nil, xerrors.Errorf("syntax: mount [-flags] <image> <mountpoint>")
	}
	image, mountpoint := fset.Arg(0), fset.Arg(1)

	dev, err := device.OpenMapped(image, 512)
	if err != nil {
		return nil, err
	}
	bio, err := blockio.New(dev, *blockSize)
	if err != nil {
		dev.Close()
		return nil, err
	}
	volume, err := core.Mount(bio)
	if err != nil {
		dev.Close()
		return nil, xerrors.Errorf("mounting %s: %w", image, err)
	}

	hostfs := &fuseFS{core: volume, sem: semaphore.NewWeighted(maxConcurrentReads)}
	server := fuseutil.NewFileSystemServer(hostfs)

	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "clothesfs",
		ReadOnly: true,
		Options: map[string]string{
			"allow_other": "",
		},
		EnableSymlinkCaching:   true,
		EnableNoOpenSupport:    true,
		EnableNoOpendirSupport: true,
	})
	if err != nil {
		dev.Close()
		return nil, xerrors.Errorf("fuse.Mount: %w", err)
	}

	join = func(ctx context.Context) error {
		defer dev.Close()
		return mfs.Join(ctx)
	}

	if *readiness != -1 {
		os.NewFile(uintptr(*readiness), "").Close()
	}

	return join, nil
}

// fuseFS implements fuseutil.FileSystem over a mounted ClothesFS volume.
// Inodes are ClothesFS metadata block indices directly: the root
// directory's block index is 1 (spec §3, RootBlock), which conveniently
// coincides with fuseops.RootInodeID, so no inode-remapping table is
// needed the way the teacher's union filesystem required one.
type fuseFS struct {
	fuseutil.NotImplementedFileSystem

	core *core.FS
	sem  *semaphore.Weighted
}

func (fs *fuseFS) attributesFor(e core.Entry) fuseops.InodeAttributes {
	mode := os.FileMode(0444)
	if e.Type == core.MetaDir {
		mode = os.ModeDir | 0555
	}
	return fuseops.InodeAttributes{
		Size:  e.Size,
		Nlink: 1,
		Mode:  mode,
	}
}

func (fs *fuseFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = uint32(fs.core.BlockSize())
	op.Blocks = uint64(fs.core.Blocks())
	op.IoSize = uint32(fs.core.BlockSize())
	return nil
}

func (fs *fuseFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	e, err := fs.core.Stat(uint32(op.Parent), op.Name)
	if err != nil {
		return fuse.ENOENT
	}
	op.Entry.Child = fuseops.InodeID(e.Index())
	op.Entry.Attributes = fs.attributesFor(e)
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never
	return nil
}

func (fs *fuseFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	e, err := fs.core.EntryAt(uint32(op.Inode))
	if err != nil {
		return fuse.EIO
	}
	op.Attributes = fs.attributesFor(e)
	op.AttributesExpiration = never
	return nil
}

func (fs *fuseFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return fuse.ENOSYS // instruct the kernel to skip the OpenDir round trip
}

func (fs *fuseFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	if err := fs.sem.Acquire(ctx, 1); err != nil {
		return fuse.EIO
	}
	defer fs.sem.Release(1)

	entries, err := fs.core.List(uint32(op.Inode))
	if err != nil {
		return fuse.EIO
	}

	var dirents []fuseutil.Dirent
	for _, e := range entries {
		typ := fuseutil.DT_File
		if e.Type == core.MetaDir {
			typ = fuseutil.DT_Directory
		}
		dirents = append(dirents, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(dirents) + 1),
			Inode:  fuseops.InodeID(e.Index()),
			Name:   e.Name,
			Type:   typ,
		})
	}

	if op.Offset > fuseops.DirOffset(len(dirents)) {
		return fuse.EIO
	}
	for _, d := range dirents[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *fuseFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	return fuse.ENOSYS // instruct the kernel to skip the OpenFile round trip
}

func (fs *fuseFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	if err := fs.sem.Acquire(ctx, 1); err != nil {
		return fuse.EIO
	}
	defer fs.sem.Release(1)

	e, err := fs.core.EntryAt(uint32(op.Inode))
	if err != nil {
		return fuse.EIO
	}
	contents, err := fs.core.Read(e)
	if err != nil {
		return fuse.EIO
	}
	if op.Offset >= int64(len(contents)) {
		op.BytesRead = 0
		return nil
	}
	op.BytesRead = copy(op.Dst, contents[op.Offset:])
	return nil
}
