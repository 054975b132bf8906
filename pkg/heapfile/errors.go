package heapfile

import "errors"

// Sentinel error kinds. Wrap these with fmt.Errorf("...: %w", ErrX) to add
// context; callers should compare with errors.Is.
var (
	// ErrNotInitialized is returned when an operation is attempted on a
	// File that hasn't been created or opened successfully.
	ErrNotInitialized = errors.New("heapfile: not initialized")

	// ErrIntegrityViolation is returned when a stored record's CRC32
	// doesn't match its payload, or a slot header is malformed.
	ErrIntegrityViolation = errors.New("heapfile: integrity violation")

	// ErrFreedHandle is returned by Read/Write when the handle refers to
	// a slot that has already been freed.
	ErrFreedHandle = errors.New("heapfile: handle refers to a freed slot")

	// ErrSlotTooSmall is returned by Write when the payload (once framed)
	// no longer fits the slot's allocated capacity. Slots are never
	// relocated, so growth beyond the original Alloc size is rejected.
	ErrSlotTooSmall = errors.New("heapfile: payload exceeds slot capacity")

	// ErrBadMagic is returned by Open when the file doesn't look like a
	// heap file produced by Create.
	ErrBadMagic = errors.New("heapfile: bad magic number")
)
