package bptree

import "errors"

// Sentinel error kinds, per the index's error-handling design. Wrap these
// with fmt.Errorf("...: %w", ErrX) for context; compare with errors.Is.
var (
	// ErrNotInitialized is returned when an operation starts from a
	// RootDescriptor whose RootPos or FirstPos is zero.
	ErrNotInitialized = errors.New("bptree: not initialized")

	// ErrIntegrityViolation covers parent mismatches across a split, a
	// non-homogeneous insert target, an inserted key missing from both
	// halves after a split, or any other state that should be
	// impossible short of corruption or a library bug. Fatal; callers
	// should discard the tree rather than retry.
	ErrIntegrityViolation = errors.New("bptree: integrity violation")

	// ErrDuplicateKey is returned when an insert would create two
	// entries with the same key in one NodeList.
	ErrDuplicateKey = errors.New("bptree: duplicate key")

	// ErrKeyNotFound is returned when a delete target is absent.
	ErrKeyNotFound = errors.New("bptree: key not found")

	// ErrStorage wraps a failure surfaced from the underlying heap file.
	ErrStorage = errors.New("bptree: storage error")
)
