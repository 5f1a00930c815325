package blockio

import (
	"bytes"
	"testing"

	"github.com/clothesfs/clothesfs/internal/device"
)

func TestGetPutBlockMultiSector(t *testing.T) {
	// block size = 3 sectors, to exercise the ascending sector loop fix.
	const sectorSize = 512
	const blockSize = sectorSize * 3
	dev, err := device.NewMemory(blockSize*4, sectorSize)
	if err != nil {
		t.Fatal(err)
	}
	bio, err := New(dev, blockSize)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := bio.Blocks(), uint32(4); got != want {
		t.Fatalf("Blocks() = %d, want %d", got, want)
	}

	want := make([]byte, blockSize)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if err := bio.PutBlock(2, want); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, blockSize)
	if err := bio.GetBlock(2, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("GetBlock(2) did not round-trip all %d sectors", bio.blockInSec)
	}

	// Neighbouring blocks must be untouched.
	zero := make([]byte, blockSize)
	if err := bio.GetBlock(1, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, zero) {
		t.Fatalf("GetBlock(1) leaked writes from block 2")
	}
}

func TestWrongBufferLength(t *testing.T) {
	dev, err := device.NewMemory(4096, 512)
	if err != nil {
		t.Fatal(err)
	}
	bio, err := New(dev, 512)
	if err != nil {
		t.Fatal(err)
	}
	if err := bio.GetBlock(0, make([]byte, 10)); err == nil {
		t.Fatal("GetBlock with wrong buffer length did not return an error")
	}
}
