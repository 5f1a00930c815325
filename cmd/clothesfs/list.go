package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	core "github.com/clothesfs/clothesfs/internal/clothesfs"
	"github.com/clothesfs/clothesfs/internal/env"
)

const listHelp = `clothesfs list [-flags] <image> [dir]

List the entries of a directory (a block index; default: the root
directory). When printing to a terminal, directories are shown with a
trailing slash; piped output omits it for easy scripting.

Example:
  % clothesfs list vol.img
  % clothesfs list vol.img 5
`

func cmdlist(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("list", flag.ExitOnError)
	blockSize := fset.Int("blocksize", env.BlockSize, "block size the volume was formatted with, in bytes")
	fset.Usage = usage(fset, listHelp)
	fset.Parse(args)
	if fset.NArg() < 1 || fset.NArg() > 2 {
		return fmt.Errorf("syntax: list [-flags] <image> [dir]")
	}
	image := fset.Arg(0)

	fs, err := openVolume(*blockSize, image)
	if err != nil {
		return err
	}

	dir := fs.Root()
	if fset.NArg() == 2 {
		if _, err := fmt.Sscanf(fset.Arg(1), "%d", &dir); err != nil {
			return fmt.Errorf("invalid directory block index %q: %w", fset.Arg(1), err)
		}
	}

	entries, err := fs.List(dir)
	if err != nil {
		return err
	}

	tty := isatty.IsTerminal(os.Stdout.Fd())
	for _, e := range entries {
		suffix := ""
		if tty && e.Type == core.MetaDir {
			suffix = "/"
		}
		if tty {
			fmt.Printf("%8d  %10d  %s%s\n", e.Index(), e.Size, e.Name, suffix)
		} else {
			fmt.Println(e.Name)
		}
	}
	return nil
}
