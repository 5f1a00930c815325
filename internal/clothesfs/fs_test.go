package clothesfs

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/xerrors"

	"github.com/clothesfs/clothesfs/internal/blockio"
	"github.com/clothesfs/clothesfs/internal/device"
)

const testBlockSize = 512

func newTestFS(t *testing.T, blocks int) *FS {
	t.Helper()
	dev, err := device.NewMemory(int64(blocks*testBlockSize), 512)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	bio, err := blockio.New(dev, testBlockSize)
	if err != nil {
		t.Fatalf("blockio.New: %v", err)
	}
	fs, err := Format(bio, "testvol", strings.NewReader(strings.Repeat("x", 64)))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return fs
}

func TestFormatDetectMount(t *testing.T) {
	dev, err := device.NewMemory(64*testBlockSize, 512)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	bio, err := blockio.New(dev, testBlockSize)
	if err != nil {
		t.Fatalf("blockio.New: %v", err)
	}

	if Detect(bio) {
		t.Fatal("Detect reported true before Format")
	}

	fs, err := Format(bio, "myvol", strings.NewReader(strings.Repeat("z", 64)))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if fs.VolumeName() != "myvol" {
		t.Fatalf("VolumeName = %q, want %q", fs.VolumeName(), "myvol")
	}

	if !Detect(bio) {
		t.Fatal("Detect reported false after Format")
	}

	mounted, err := Mount(bio)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if mounted.Root() != RootBlock {
		t.Fatalf("Root() = %d, want %d", mounted.Root(), RootBlock)
	}
	entries, err := mounted.List(mounted.Root())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh volume root has %d entries, want 0", len(entries))
	}
}

func TestMountRejectsUnformatted(t *testing.T) {
	dev, err := device.NewMemory(16*testBlockSize, 512)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	bio, err := blockio.New(dev, testBlockSize)
	if err != nil {
		t.Fatalf("blockio.New: %v", err)
	}
	if _, err := Mount(bio); !xerrors.Is(err, ErrNotFormatted) {
		t.Fatalf("Mount on blank device: err = %v, want ErrNotFormatted", err)
	}
}

func TestAddFileListRead(t *testing.T) {
	fs := newTestFS(t, 64)

	contents := []byte("hello, clothesfs")
	if _, err := fs.AddFile(fs.Root(), "greeting.txt", contents); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	entries, err := fs.List(fs.Root())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "greeting.txt" || entries[0].Type != MetaFile {
		t.Fatalf("List = %+v, want single greeting.txt FILE entry", entries)
	}
	if entries[0].Size != uint64(len(contents)) {
		t.Fatalf("entry size = %d, want %d", entries[0].Size, len(contents))
	}

	got, err := fs.Read(entries[0])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, contents) {
		t.Fatalf("Read = %q, want %q", got, contents)
	}
}

func TestAddFileMultiBlockPayload(t *testing.T) {
	fs := newTestFS(t, 64)

	// More content than a single payload block (block_size - header) can
	// hold, forcing add_data's recursive chain.
	contents := bytes.Repeat([]byte{0xAB}, testBlockSize*3+17)
	if _, err := fs.AddFile(fs.Root(), "big.bin", contents); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	e, err := fs.Stat(fs.Root(), "big.bin")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	got, err := fs.Read(e)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, contents) {
		t.Fatalf("multi-block round trip mismatch: got %d bytes, want %d", len(got), len(contents))
	}
}

func TestAddDirNested(t *testing.T) {
	fs := newTestFS(t, 64)

	sub, err := fs.AddDir(fs.Root(), "subdir")
	if err != nil {
		t.Fatalf("AddDir: %v", err)
	}
	if _, err := fs.AddFile(sub, "nested.txt", []byte("inside")); err != nil {
		t.Fatalf("AddFile under subdir: %v", err)
	}

	e, err := fs.Stat(fs.Root(), "subdir")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if e.Type != MetaDir {
		t.Fatalf("subdir entry type = %#x, want MetaDir", e.Type)
	}

	children, err := fs.List(e.index)
	if err != nil {
		t.Fatalf("List(subdir): %v", err)
	}
	if len(children) != 1 || children[0].Name != "nested.txt" {
		t.Fatalf("subdir children = %+v", children)
	}
}

func TestPointerTableOverflowUsesContinuation(t *testing.T) {
	fs := newTestFS(t, 512)

	// block_size=512: pointer table starts at pad4(16) = 16, ends at
	// block_size-4 = 508, giving (508-16)/4 = 123 slots before a
	// continuation block is required.
	const slots = 123
	for i := 0; i < slots+5; i++ {
		name := "f" + strconv.Itoa(i)
		if _, err := fs.AddFile(fs.Root(), name, []byte{byte(i)}); err != nil {
			t.Fatalf("AddFile %d: %v", i, err)
		}
	}

	entries, err := fs.List(fs.Root())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != slots+5 {
		t.Fatalf("List returned %d entries, want %d", len(entries), slots+5)
	}

	rootBuf := make([]byte, fs.blockSize())
	if err := fs.readBlock(fs.Root(), rootBuf); err != nil {
		t.Fatalf("readBlock root: %v", err)
	}
	if metaContPtr(rootBuf) == 0 {
		t.Fatal("root directory should have spilled into a continuation block")
	}
}

func TestRemoveFileReclaimsBlocks(t *testing.T) {
	fs := newTestFS(t, 64)

	freeBefore, err := fs.freeChainLen()
	if err != nil {
		t.Fatalf("freeChainLen: %v", err)
	}

	contents := bytes.Repeat([]byte{0x7}, testBlockSize*2)
	if _, err := fs.AddFile(fs.Root(), "f.bin", contents); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	freeAfterAdd, err := fs.freeChainLen()
	if err != nil {
		t.Fatalf("freeChainLen: %v", err)
	}
	if freeAfterAdd >= freeBefore {
		t.Fatalf("free chain did not shrink after AddFile: before=%d after=%d", freeBefore, freeAfterAdd)
	}

	if err := fs.Remove(fs.Root(), "f.bin"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	freeAfterRemove, err := fs.freeChainLen()
	if err != nil {
		t.Fatalf("freeChainLen: %v", err)
	}
	if freeAfterRemove != freeBefore {
		t.Fatalf("free chain not fully reclaimed: before=%d afterRemove=%d", freeBefore, freeAfterRemove)
	}

	if _, err := fs.Stat(fs.Root(), "f.bin"); err == nil {
		t.Fatal("Stat found removed entry")
	}
}

func TestRemoveNonEmptyDirFails(t *testing.T) {
	fs := newTestFS(t, 64)

	sub, err := fs.AddDir(fs.Root(), "sub")
	if err != nil {
		t.Fatalf("AddDir: %v", err)
	}
	if _, err := fs.AddFile(sub, "child.txt", []byte("x")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	if err := fs.Remove(fs.Root(), "sub"); !xerrors.Is(err, ErrDirNotEmpty) {
		t.Fatalf("Remove non-empty dir: err = %v, want ErrDirNotEmpty", err)
	}
}

func TestRemoveEmptyDirSucceeds(t *testing.T) {
	fs := newTestFS(t, 64)

	if _, err := fs.AddDir(fs.Root(), "sub"); err != nil {
		t.Fatalf("AddDir: %v", err)
	}
	if err := fs.Remove(fs.Root(), "sub"); err != nil {
		t.Fatalf("Remove empty dir: %v", err)
	}
	if _, err := fs.Stat(fs.Root(), "sub"); err == nil {
		t.Fatal("Stat found removed directory")
	}
}

func TestAddFileRejectsOversizedName(t *testing.T) {
	fs := newTestFS(t, 64)
	longName := strings.Repeat("n", MaxNameLen+1)
	if _, err := fs.AddFile(fs.Root(), longName, nil); !xerrors.Is(err, ErrInvalidArgument) {
		t.Fatalf("AddFile with oversized name: err = %v, want ErrInvalidArgument", err)
	}
}

func TestListOrderMatchesInsertionOrder(t *testing.T) {
	fs := newTestFS(t, 64)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if _, err := fs.AddFile(fs.Root(), name, []byte(name)); err != nil {
			t.Fatalf("AddFile(%s): %v", name, err)
		}
	}

	entries, err := fs.List(fs.Root())
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := []Entry{
		{Name: "a.txt", Type: MetaFile, Size: 5},
		{Name: "b.txt", Type: MetaFile, Size: 5},
		{Name: "c.txt", Type: MetaFile, Size: 5},
	}
	// index is assigned by the allocator; ignore it here so this test is
	// about ordering and the other fields only.
	if diff := cmp.Diff(want, entries, cmpopts.IgnoreUnexported(Entry{})); diff != "" {
		t.Fatalf("List entries mismatch (-want +got):\n%s", diff)
	}
}

func TestOutOfSpace(t *testing.T) {
	fs := newTestFS(t, 4) // superblock + root leaves very little free

	var lastErr error
	for i := 0; i < 100; i++ {
		if _, err := fs.AddFile(fs.Root(), "f"+strconv.Itoa(i), bytes.Repeat([]byte{1}, testBlockSize*2)); err != nil {
			lastErr = err
			break
		}
	}
	if !xerrors.Is(lastErr, ErrOutOfSpace) {
		t.Fatalf("expected ErrOutOfSpace eventually, got %v", lastErr)
	}
}
