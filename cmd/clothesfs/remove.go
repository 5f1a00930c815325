package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/clothesfs/clothesfs/internal/env"
)

const removeHelp = `clothesfs remove [-flags] <image> <dir> <name>

Remove a file or empty directory named <name> under directory <dir> (a
block index; the root directory is 1). Removing a non-empty directory
fails.

Example:
  % clothesfs remove vol.img 1 hello.txt
`

func cmdremove(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("remove", flag.ExitOnError)
	blockSize := fset.Int("blocksize", env.BlockSize, "block size the volume was formatted with, in bytes")
	fset.Usage = usage(fset, removeHelp)
	fset.Parse(args)
	if fset.NArg() != 3 {
		return fmt.Errorf("syntax: remove [-flags] <image> <dir> <name>")
	}
	image, dir, name := fset.Arg(0), fset.Arg(1), fset.Arg(2)

	var dirIdx uint32
	if _, err := fmt.Sscanf(dir, "%d", &dirIdx); err != nil {
		return fmt.Errorf("invalid directory block index %q: %w", dir, err)
	}

	fs, err := openVolume(*blockSize, image)
	if err != nil {
		return err
	}

	return fs.Remove(dirIdx, name)
}
