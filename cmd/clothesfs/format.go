package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"github.com/google/renameio"

	core "github.com/clothesfs/clothesfs/internal/clothesfs"
	"github.com/clothesfs/clothesfs/internal/blockio"
	"github.com/clothesfs/clothesfs/internal/device"
	"github.com/clothesfs/clothesfs/internal/env"
)

const formatHelp = `clothesfs format [-flags] <image>

Initialize a new, empty ClothesFS volume at <image>.

Example:
  % clothesfs format -size 64MiB -blocksize 4096 vol.img
`

func cmdformat(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("format", flag.ExitOnError)
	var (
		size       = fset.Int64("size", 64*1024*1024, "size of the volume image to create, in bytes")
		blockSize  = fset.Int("blocksize", env.BlockSize, "block size to format the volume with, in bytes")
		volumeName = fset.String("name", "clothesfs", "volume name stored in the superblock")
	)
	fset.Usage = usage(fset, formatHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return fmt.Errorf("syntax: format [-flags] <image>")
	}
	image := fset.Arg(0)

	// The image is built up completely in a temporary file and only
	// linked into place once format() has succeeded and the superblock
	// is the last thing written to it, so a crash mid-format never
	// leaves a half-written file at the final path.
	t, err := renameio.TempFile("", image)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	if err := t.Truncate(*size); err != nil {
		return err
	}

	dev, err := device.OpenFile(t.Name(), 512)
	if err != nil {
		return err
	}
	bio, err := blockio.New(dev, *blockSize)
	if err != nil {
		dev.Close()
		return err
	}

	if _, err := core.Format(bio, *volumeName, rand.Reader); err != nil {
		dev.Close()
		return fmt.Errorf("formatting %s: %w", image, err)
	}
	if err := dev.Close(); err != nil {
		return err
	}

	if err := t.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return os.Chmod(image, 0644)
}
