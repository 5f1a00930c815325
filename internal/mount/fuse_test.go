package mount_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clothesfs/clothesfs/internal/blockio"
	core "github.com/clothesfs/clothesfs/internal/clothesfs"
	"github.com/clothesfs/clothesfs/internal/device"
	"github.com/clothesfs/clothesfs/internal/mount"
)

// formatTestVolume creates a small ClothesFS image file at path containing
// a single file, greeting.txt, for the mount tests below to read back.
func formatTestVolume(t *testing.T, path string) {
	t.Helper()
	const blockSize = 4096
	const blocks = 64

	dev, err := device.CreateFile(path, blockSize*blocks, 512)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	defer dev.Close()

	bio, err := blockio.New(dev, blockSize)
	if err != nil {
		t.Fatalf("blockio.New: %v", err)
	}
	fs, err := core.Format(bio, "mnttest", strings.NewReader(strings.Repeat("v", 64)))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if _, err := fs.AddFile(fs.Root(), "greeting.txt", []byte("hello from clothesfs")); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
}

func TestMountReadFile(t *testing.T) {
	if os.Getenv("CLOTHESFS_FUSE_TESTS") == "" {
		t.Skip("set CLOTHESFS_FUSE_TESTS=1 to run tests that require a working FUSE kernel module")
	}

	dir, err := ioutil.TempDir("", "clothesfs-mount")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	image := filepath.Join(dir, "vol.img")
	formatTestVolume(t, image)

	mountpoint := filepath.Join(dir, "mnt")
	if err := os.Mkdir(mountpoint, 0755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	join, err := mount.Mount(ctx, []string{"-blocksize=4096", image, mountpoint})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	joined := make(chan struct{})
	go func() {
		defer close(joined)
		if err := join(ctx); err != nil && err != context.Canceled {
			t.Errorf("join: %v", err)
		}
	}()
	defer func() {
		cancel()
		<-joined
	}()

	got, err := ioutil.ReadFile(filepath.Join(mountpoint, "greeting.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := "hello from clothesfs"; string(got) != want {
		t.Fatalf("ReadFile = %q, want %q", got, want)
	}
}
