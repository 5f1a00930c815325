// Package env captures details about the clothesfs CLI's ambient
// environment. Inspect it using `clothesfs env`.
package env

import (
	"os"
	"strconv"
)

// Device is the default volume image/device path, overridden by the
// CLOTHESFS_DEVICE environment variable.
var Device = findDevice()

// BlockSize is the default block size used by `clothesfs format` when
// -blocksize is not given, overridden by CLOTHESFS_BLOCKSIZE.
var BlockSize = findBlockSize()

func findDevice() string {
	if env := os.Getenv("CLOTHESFS_DEVICE"); env != "" {
		return env
	}
	return os.ExpandEnv("$HOME/clothesfs.img") // default
}

func findBlockSize() int {
	const defaultBlockSize = 512
	env := os.Getenv("CLOTHESFS_BLOCKSIZE")
	if env == "" {
		return defaultBlockSize
	}
	n, err := strconv.Atoi(env)
	if err != nil || n <= 0 {
		return defaultBlockSize
	}
	return n
}
