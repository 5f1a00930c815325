package clothesfs

import "golang.org/x/xerrors"

// Error taxonomy (spec §7). Errors are compared with xerrors.Is; wrapped
// occurrences (via "...: %w") still match their sentinel.
var (
	// ErrIoError is returned when the underlying device read/write fails.
	ErrIoError = xerrors.New("clothesfs: i/o error")

	// ErrNotFormatted is returned by operations that require a formatted
	// volume when detection fails. Detect itself never returns this; it
	// reports a bool, per spec §7 ("detection failures are reported as a
	// boolean, not as a thrown error, because detection is a probe").
	ErrNotFormatted = xerrors.New("clothesfs: volume is not formatted")

	// ErrCorruptBlock is returned when a block's id or type does not
	// match what traversal expected.
	ErrCorruptBlock = xerrors.New("clothesfs: corrupt block")

	// ErrOutOfSpace is returned when the free-chain head is 0.
	ErrOutOfSpace = xerrors.New("clothesfs: out of space")

	// ErrInvalidArgument is returned for a zero parent block, an
	// oversized name, and similar caller errors.
	ErrInvalidArgument = xerrors.New("clothesfs: invalid argument")

	// ErrDirNotEmpty is returned by FS.Remove on a directory entry
	// that still has children (spec §4.8, added: the source spec leaves
	// directory removal implementation-defined; this implementation
	// refuses to remove a non-empty directory rather than guessing).
	ErrDirNotEmpty = xerrors.New("clothesfs: directory not empty")

	// errEndOfChain is an internal sentinel used by the continuation-block
	// walkers to signal "no more CONT blocks"; it never escapes this
	// package.
	errEndOfChain = xerrors.New("clothesfs: end of continuation chain")
)
