// Package device implements the block-device capability set ClothesFS
// depends on: sector-granular reads and writes at absolute byte offsets.
//
// Everything above this package addresses the volume in blocks, not
// sectors; device is the only layer that knows about the underlying
// storage's native transfer unit.
package device

import (
	"io"
	"os"
	"sync"

	"github.com/orcaman/writerseeker"
	"golang.org/x/exp/mmap"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// Device is the capability set the block I/O layer depends on:
// sector-aligned positioned reads and writes, plus geometry queries. It
// deliberately says nothing about files, paths or mount points — any
// backing store that can satisfy it (a regular file, a raw block device,
// an in-memory buffer) works.
type Device interface {
	// ReadAt reads len(buf) bytes starting at byte offset off. len(buf)
	// must be a multiple of SectorSize().
	ReadAt(buf []byte, off int64) error

	// WriteAt writes len(buf) bytes starting at byte offset off. len(buf)
	// must be a multiple of SectorSize().
	WriteAt(buf []byte, off int64) error

	// SectorSize returns the device's native transfer unit in bytes
	// (typically 512).
	SectorSize() int

	// Size returns the total addressable size of the device in bytes.
	Size() int64
}

// File is a Device backed by a regular file or a raw block device node,
// using positioned pread/pwrite so that concurrent mount-side readers
// never need to share (or serialize on) a single file offset.
type File struct {
	f          *os.File
	sectorSize int
	size       int64
}

// OpenFile opens path for reading and writing as a Device with the given
// sector size. The file is not resized; callers that want to format a
// fresh volume must create it at the desired size first (see
// CreateFile).
func OpenFile(path string, sectorSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, xerrors.Errorf("device.OpenFile: %w", err)
	}
	return newFile(f, sectorSize)
}

// OpenFileReadOnly opens path read-only as a Device. This is the mode the
// mount side uses (spec.md: "No write path is required from the mount
// side").
func OpenFileReadOnly(path string, sectorSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, xerrors.Errorf("device.OpenFileReadOnly: %w", err)
	}
	return newFile(f, sectorSize)
}

// CreateFile creates (or truncates) path to exactly size bytes and
// returns it as a writable Device, for use by format().
func CreateFile(path string, size int64, sectorSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, xerrors.Errorf("device.CreateFile: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, xerrors.Errorf("device.CreateFile: %w", err)
	}
	return newFile(f, sectorSize)
}

func newFile(f *os.File, sectorSize int) (*File, error) {
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("device: stat: %w", err)
	}
	return &File{f: f, sectorSize: sectorSize, size: fi.Size()}, nil
}

func (d *File) ReadAt(buf []byte, off int64) error {
	n, err := unix.Pread(int(d.f.Fd()), buf, off)
	if err != nil {
		return xerrors.Errorf("device: pread at %d: %w", off, err)
	}
	if n != len(buf) {
		return xerrors.Errorf("device: short read at %d: got %d, want %d", off, n, len(buf))
	}
	return nil
}

func (d *File) WriteAt(buf []byte, off int64) error {
	n, err := unix.Pwrite(int(d.f.Fd()), buf, off)
	if err != nil {
		return xerrors.Errorf("device: pwrite at %d: %w", off, err)
	}
	if n != len(buf) {
		return xerrors.Errorf("device: short write at %d: got %d, want %d", off, n, len(buf))
	}
	return nil
}

func (d *File) SectorSize() int { return d.sectorSize }
func (d *File) Size() int64     { return d.size }

// Close releases the underlying file descriptor.
func (d *File) Close() error {
	return d.f.Close()
}

// Mapped is a read-only Device backed by a memory-mapped file, letting
// the mount side serve reads directly out of the page cache without an
// extra copy through a pread syscall per block.
type Mapped struct {
	r          *mmap.ReaderAt
	sectorSize int
}

// OpenMapped memory-maps path read-only.
func OpenMapped(path string, sectorSize int) (*Mapped, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("device.OpenMapped: %w", err)
	}
	return &Mapped{r: r, sectorSize: sectorSize}, nil
}

func (d *Mapped) ReadAt(buf []byte, off int64) error {
	n, err := d.r.ReadAt(buf, off)
	if err != nil {
		return xerrors.Errorf("device: mmap read at %d: %w", off, err)
	}
	if n != len(buf) {
		return xerrors.Errorf("device: short mmap read at %d: got %d, want %d", off, n, len(buf))
	}
	return nil
}

func (d *Mapped) WriteAt(buf []byte, off int64) error {
	return xerrors.New("device: Mapped is read-only")
}

func (d *Mapped) SectorSize() int { return d.sectorSize }
func (d *Mapped) Size() int64     { return d.r.Len() }

// Close unmaps the file.
func (d *Mapped) Close() error {
	return d.r.Close()
}

// Memory is an in-memory Device, backed by a writerseeker.WriterSeeker
// rather than a plain []byte, giving tests a pure-Go buffer with no temp
// files required.
type Memory struct {
	mu         sync.Mutex
	ws         *writerseeker.WriterSeeker
	sectorSize int
	size       int64
}

// NewMemory returns a zero-filled in-memory Device of the given size.
func NewMemory(size int64, sectorSize int) (*Memory, error) {
	ws := &writerseeker.WriterSeeker{}
	if _, err := ws.Write(make([]byte, size)); err != nil {
		return nil, xerrors.Errorf("device.NewMemory: %w", err)
	}
	return &Memory{ws: ws, sectorSize: sectorSize, size: size}, nil
}

func (d *Memory) ReadAt(buf []byte, off int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Reader() always starts at the beginning of the buffer, independent
	// of the write position set by Seek, so skip ahead to off by hand.
	r := d.ws.Reader()
	if _, err := io.CopyN(io.Discard, r, off); err != nil {
		return xerrors.Errorf("device: memory seek: %w", err)
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return xerrors.Errorf("device: memory read at %d: %w", off, err)
	}
	return nil
}

func (d *Memory) WriteAt(buf []byte, off int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.ws.Seek(off, io.SeekStart); err != nil {
		return xerrors.Errorf("device: memory seek: %w", err)
	}
	if _, err := d.ws.Write(buf); err != nil {
		return xerrors.Errorf("device: memory write at %d: %w", off, err)
	}
	return nil
}

func (d *Memory) SectorSize() int { return d.sectorSize }
func (d *Memory) Size() int64     { return d.size }
