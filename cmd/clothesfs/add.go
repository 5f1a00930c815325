package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/clothesfs/clothesfs"
	"github.com/clothesfs/clothesfs/internal/blockio"
	core "github.com/clothesfs/clothesfs/internal/clothesfs"
	"github.com/clothesfs/clothesfs/internal/device"
	"github.com/clothesfs/clothesfs/internal/env"
)

const addFileHelp = `clothesfs add-file [-flags] <image> <parent> <name> <source>

Add a file named <name> under directory <parent> (a block index; the
root directory is 1), with contents read from <source>.

Example:
  % clothesfs add-file vol.img 1 hello.txt hello.txt
`

const addDirHelp = `clothesfs add-dir [-flags] <image> <parent> <name>

Add an empty subdirectory named <name> under directory <parent> (a
block index; the root directory is 1).

Example:
  % clothesfs add-dir vol.img 1 subdir
`

// openVolume opens image and mounts it, registering the device's close
// with RegisterAtExit rather than handing it back to the caller: every
// verb that calls openVolume gets its device handle flushed the same
// way, without each one having to remember its own defer dev.Close().
func openVolume(blockSize int, image string) (*core.FS, error) {
	dev, err := device.OpenFile(image, 512)
	if err != nil {
		return nil, err
	}
	bio, err := blockio.New(dev, blockSize)
	if err != nil {
		dev.Close()
		return nil, err
	}
	fs, err := core.Mount(bio)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("mounting %s: %w", image, err)
	}
	clothesfs.RegisterAtExit(dev.Close)
	return fs, nil
}

func cmdaddfile(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("add-file", flag.ExitOnError)
	blockSize := fset.Int("blocksize", env.BlockSize, "block size the volume was formatted with, in bytes")
	fset.Usage = usage(fset, addFileHelp)
	fset.Parse(args)
	if fset.NArg() != 4 {
		return fmt.Errorf("syntax: add-file [-flags] <image> <parent> <name> <source>")
	}
	image, parent, name, source := fset.Arg(0), fset.Arg(1), fset.Arg(2), fset.Arg(3)

	var parentIdx uint32
	if _, err := fmt.Sscanf(parent, "%d", &parentIdx); err != nil {
		return fmt.Errorf("invalid parent block index %q: %w", parent, err)
	}

	contents, err := ioutil.ReadFile(source)
	if err != nil {
		return err
	}

	fs, err := openVolume(*blockSize, image)
	if err != nil {
		return err
	}

	index, err := fs.AddFile(parentIdx, name, contents)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%d\n", index)
	return nil
}

func cmdadddir(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("add-dir", flag.ExitOnError)
	blockSize := fset.Int("blocksize", env.BlockSize, "block size the volume was formatted with, in bytes")
	fset.Usage = usage(fset, addDirHelp)
	fset.Parse(args)
	if fset.NArg() != 3 {
		return fmt.Errorf("syntax: add-dir [-flags] <image> <parent> <name>")
	}
	image, parent, name := fset.Arg(0), fset.Arg(1), fset.Arg(2)

	var parentIdx uint32
	if _, err := fmt.Sscanf(parent, "%d", &parentIdx); err != nil {
		return fmt.Errorf("invalid parent block index %q: %w", parent, err)
	}

	fs, err := openVolume(*blockSize, image)
	if err != nil {
		return err
	}

	index, err := fs.AddDir(parentIdx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%d\n", index)
	return nil
}
