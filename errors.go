package pagelsm

import "github.com/cockroachdb/errors"

// ErrInvalidArgument is returned when a caller-supplied argument violates
// an operation's precondition, e.g. Scan(start, end) with start > end.
var ErrInvalidArgument = errors.New("pagelsm: invalid argument")

// ErrCorruption is returned when an on-disk structure (page, B-tree node,
// SST header, metadata log) fails a structural check. The engine never
// attempts automatic repair; the current operation simply fails.
var ErrCorruption = errors.New("pagelsm: corrupted on-disk structure")

// ErrIO is the shared kind for any failed os/bufio call (read, write, seek,
// rename, sync). Callers can test errors.Is(err, ErrIO) without caring which
// specific syscall failed.
var ErrIO = errors.New("pagelsm: i/o failure")

// wrapIO tags an I/O failure (read/write/seek/rename) with the offending
// path so the caller sees where the failure happened without every call
// site hand-rolling its own fmt.Errorf, while still chaining to ErrIO so
// callers can match on the kind.
func wrapIO(err error, op, path string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, "pagelsm: %s %s", op, path), ErrIO)
}

// wrapCorrupt tags a corruption finding with context.
func wrapCorrupt(format string, args ...interface{}) error {
	return errors.WithMessagef(ErrCorruption, format, args...)
}
