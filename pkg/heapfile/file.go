// Package heapfile implements the variable-length record allocator the
// B+Tree is built on: Alloc, Read, Write, Free and Flush over a single OS
// file, with positions (Handle) stable for the lifetime of a record. It
// generalizes an append-only log writer/reader into a
// true heap — freed slots are tracked and reused by Alloc instead of the
// file only ever growing.
package heapfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ssargent/freyjadb/pkg/codec"
)

// Handle identifies a record's slot by its byte offset in the file. It is
// stable until Free is called on it; callers (the B+Tree's node and dll
// records) persist Handles as file offsets in their own payloads.
type Handle uint64

const (
	magicNumber    uint32 = 0x42504c53 // "BPLS"
	fileHeaderSize        = 8          // magic(4) + linkSize(1) + reserved(3)
	slotHeaderSize        = 9          // capacity(4) + free(1) + recordLen(4)

	// LinkSize is the fixed width, in bytes, of a file-offset link stored
	// inside a node or dll record (spec's link_size).
	LinkSize = 8
)

// File is a heap allocator backed by a single *os.File. Each method holds
// an internal mutex, so single calls do not interleave; a sequence of
// calls (one tree mutation) is not atomic, and callers that need that
// serialize it themselves (see pkg/index.SecondaryIndex).
type File struct {
	mu         sync.Mutex
	f          *os.File
	codec      *codec.RecordCodec
	size       int64
	free       []freeSlot
	descriptor Handle
}

type freeSlot struct {
	handle   Handle
	capacity uint32
}

// Create initializes a new heap file at path, truncating any existing
// file, and allocates the fixed descriptor slot as the very first record
// in the file. descriptorSize is the payload width the caller needs for
// its root descriptor (3 file-offset fields, LinkSize each).
func Create(path string, descriptorSize int) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("heapfile: create directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("heapfile: create file: %w", err)
	}

	hf := &File{f: f, codec: codec.NewRecordCodec()}

	header := make([]byte, fileHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], magicNumber)
	header[4] = LinkSize
	if _, err := f.WriteAt(header, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("heapfile: write header: %w", err)
	}
	hf.size = fileHeaderSize

	handle, err := hf.Alloc(descriptorSize)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("heapfile: alloc descriptor slot: %w", err)
	}
	hf.descriptor = handle

	return hf, nil
}

// Open reopens an existing heap file, validating its header and rebuilding
// the free list by scanning every slot once.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("heapfile: open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("heapfile: stat file: %w", err)
	}

	header := make([]byte, fileHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("heapfile: read header: %w", err)
	}
	if binary.BigEndian.Uint32(header[0:4]) != magicNumber {
		_ = f.Close()
		return nil, ErrBadMagic
	}

	hf := &File{f: f, codec: codec.NewRecordCodec(), size: stat.Size()}

	offset := int64(fileHeaderSize)
	first := true
	for offset < hf.size {
		slotHeader := make([]byte, slotHeaderSize)
		if _, err := f.ReadAt(slotHeader, offset); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("heapfile: scan slot at %d: %w", offset, err)
		}
		capacity := binary.BigEndian.Uint32(slotHeader[0:4])
		free := slotHeader[4] == 1

		handle := Handle(offset)
		if first {
			hf.descriptor = handle
			first = false
		}
		if free {
			hf.free = append(hf.free, freeSlot{handle: handle, capacity: capacity})
		}

		offset += int64(slotHeaderSize) + int64(capacity)
	}
	if offset != hf.size {
		_ = f.Close()
		return nil, fmt.Errorf("%w: trailing slot overruns file size", ErrIntegrityViolation)
	}

	return hf, nil
}

// DescriptorHandle returns the handle of the fixed descriptor slot
// allocated by Create. It never changes for the lifetime of the file.
func (hf *File) DescriptorHandle() Handle {
	return hf.descriptor
}

// Alloc reserves a slot able to hold at least size bytes of payload,
// reusing a freed slot via first-fit if one is large enough, or appending
// a new one to the end of the file otherwise.
func (hf *File) Alloc(size int) (Handle, error) {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.f == nil {
		return 0, ErrNotInitialized
	}

	framedSize := uint32(size) + codec.RecordHeaderSize

	for i, slot := range hf.free {
		if slot.capacity >= framedSize {
			hf.free = append(hf.free[:i], hf.free[i+1:]...)
			if err := hf.writeSlotHeader(slot.handle, slot.capacity, false, 0); err != nil {
				return 0, err
			}
			return slot.handle, nil
		}
	}

	handle := Handle(hf.size)
	if err := hf.writeSlotHeader(handle, framedSize, false, 0); err != nil {
		return 0, err
	}
	hf.size += int64(slotHeaderSize) + int64(framedSize)
	return handle, nil
}

// Free marks a slot as reusable. It does not shrink the underlying file
// (no compaction, no hole-punching); the slot becomes a candidate for a
// future Alloc of equal or smaller size.
func (hf *File) Free(h Handle) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.f == nil {
		return ErrNotInitialized
	}

	capacity, free, _, err := hf.readSlotHeader(h)
	if err != nil {
		return err
	}
	if free {
		return fmt.Errorf("heapfile: double free at offset %d: %w", h, ErrIntegrityViolation)
	}

	if err := hf.writeSlotHeader(h, capacity, true, 0); err != nil {
		return err
	}
	hf.free = append(hf.free, freeSlot{handle: h, capacity: capacity})
	return nil
}

// Read returns the payload last written to h. The stored record is
// validated against its CRC32; a mismatch is reported as
// ErrIntegrityViolation.
func (hf *File) Read(h Handle) ([]byte, error) {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.f == nil {
		return nil, ErrNotInitialized
	}

	_, free, recordLen, err := hf.readSlotHeader(h)
	if err != nil {
		return nil, err
	}
	if free {
		return nil, ErrFreedHandle
	}
	if recordLen == 0 {
		return nil, fmt.Errorf("heapfile: slot at %d was allocated but never written: %w", h, ErrIntegrityViolation)
	}

	raw := make([]byte, recordLen)
	if _, err := hf.f.ReadAt(raw, int64(h)+slotHeaderSize); err != nil {
		return nil, fmt.Errorf("heapfile: read record at %d: %w", h, err)
	}

	record, err := hf.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}

	return record.Value, nil
}

// Write overwrites the payload stored at h. The slot's capacity (fixed at
// Alloc time) must be large enough for the framed record; Write never
// relocates a record to a larger slot, so growth past the original Alloc
// size fails with ErrSlotTooSmall.
func (hf *File) Write(h Handle, data []byte) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.f == nil {
		return ErrNotInitialized
	}

	capacity, free, _, err := hf.readSlotHeader(h)
	if err != nil {
		return err
	}
	if free {
		return ErrFreedHandle
	}

	framed, err := hf.codec.Encode(nil, data)
	if err != nil {
		return fmt.Errorf("heapfile: encode record: %w", err)
	}
	if uint32(len(framed)) > capacity {
		return fmt.Errorf("%w: need %d bytes, slot holds %d", ErrSlotTooSmall, len(framed), capacity)
	}

	if err := hf.writeSlotHeader(h, capacity, false, uint32(len(framed))); err != nil {
		return err
	}
	if _, err := hf.f.WriteAt(framed, int64(h)+slotHeaderSize); err != nil {
		return fmt.Errorf("heapfile: write record at %d: %w", h, err)
	}
	return nil
}

// Flush fsyncs the underlying file.
func (hf *File) Flush() error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.f == nil {
		return ErrNotInitialized
	}
	return hf.f.Sync()
}

// Close flushes and closes the underlying file.
func (hf *File) Close() error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	if hf.f == nil {
		return ErrNotInitialized
	}
	if err := hf.f.Sync(); err != nil {
		_ = hf.f.Close()
		return err
	}
	return hf.f.Close()
}

func (hf *File) readSlotHeader(h Handle) (capacity uint32, free bool, recordLen uint32, err error) {
	buf := make([]byte, slotHeaderSize)
	if _, err := hf.f.ReadAt(buf, int64(h)); err != nil {
		return 0, false, 0, fmt.Errorf("heapfile: read slot header at %d: %w", h, err)
	}
	capacity = binary.BigEndian.Uint32(buf[0:4])
	free = buf[4] == 1
	recordLen = binary.BigEndian.Uint32(buf[5:9])
	return capacity, free, recordLen, nil
}

func (hf *File) writeSlotHeader(h Handle, capacity uint32, free bool, recordLen uint32) error {
	buf := make([]byte, slotHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], capacity)
	if free {
		buf[4] = 1
	}
	binary.BigEndian.PutUint32(buf[5:9], recordLen)
	if _, err := hf.f.WriteAt(buf, int64(h)); err != nil {
		return fmt.Errorf("heapfile: write slot header at %d: %w", h, err)
	}
	return nil
}
