package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/clothesfs/clothesfs/internal/env"
)

const envHelp = `clothesfs env

Print the CLI's resolved environment defaults (device path, block
size), honoring the CLOTHESFS_DEVICE and CLOTHESFS_BLOCKSIZE
environment variables.

Example:
  % clothesfs env
`

func printenv(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("env", flag.ExitOnError)
	fset.Usage = usage(fset, envHelp)
	fset.Parse(args)

	fmt.Printf("CLOTHESFS_DEVICE=%s\n", env.Device)
	fmt.Printf("CLOTHESFS_BLOCKSIZE=%d\n", env.BlockSize)
	return nil
}
