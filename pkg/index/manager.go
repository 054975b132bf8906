// Package index manages named secondary indexes, each a heap-file-backed
// bptree.Tree keyed by "field value + primary key" so that many records
// sharing one field value can coexist under the tree's unique-key
// constraint.
package index

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ssargent/freyjadb/pkg/bptree"
	"github.com/ssargent/freyjadb/pkg/codec"
	"github.com/ssargent/freyjadb/pkg/heapfile"
)

// primaryKeyWidth bounds how wide a primary key reference stored inside
// a composite index key may be. Primary keys must not end in a 0x00
// byte, the same zero-pad convention pkg/codec.StringCodec already
// relies on elsewhere in this repository.
const primaryKeyWidth = 32

// fieldPayloadWidth is the fixed payload width dynamicFieldCodec gives
// each field value, wide enough for a typical indexed string or number.
const fieldPayloadWidth = 48

var presenceValue = []byte{1}

// indexKey pairs a field value with the primary key of the record that
// has it; encoding it is compositeKeyCodec's job.
type indexKey struct {
	fieldValue any
	primaryKey []byte
}

// compositeKeyCodec concatenates a field-value codec's fixed-width
// output with a fixed-width, zero-padded primary key suffix.
type compositeKeyCodec struct {
	fieldCodec codec.KeyCodec
}

func (c *compositeKeyCodec) Size() int { return c.fieldCodec.Size() + primaryKeyWidth }

func (c *compositeKeyCodec) Encode(v any) ([]byte, error) {
	key, ok := v.(indexKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected indexKey, got %T", codec.ErrCodec, v)
	}
	fieldBytes, err := c.fieldCodec.Encode(key.fieldValue)
	if err != nil {
		return nil, err
	}
	if len(key.primaryKey) > primaryKeyWidth {
		return nil, fmt.Errorf("%w: primary key of %d bytes exceeds width %d", codec.ErrCodec, len(key.primaryKey), primaryKeyWidth)
	}
	buf := make([]byte, c.Size())
	copy(buf, fieldBytes)
	copy(buf[c.fieldCodec.Size():], key.primaryKey)
	return buf, nil
}

func (c *compositeKeyCodec) Decode(b []byte) (any, error) {
	if len(b) != c.Size() {
		return nil, fmt.Errorf("%w: composite key is %d bytes, want %d", codec.ErrCodec, len(b), c.Size())
	}
	fieldValue, err := c.fieldCodec.Decode(b[:c.fieldCodec.Size()])
	if err != nil {
		return nil, err
	}
	pk := trimTrailingZeros(b[c.fieldCodec.Size():])
	return indexKey{fieldValue: fieldValue, primaryKey: pk}, nil
}

func trimTrailingZeros(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	out := make([]byte, end)
	copy(out, b[:end])
	return out
}

// SecondaryIndex manages a B+Tree-based index for one field, backed by
// its own heap file.
type SecondaryIndex struct {
	fieldName string
	hf        *heapfile.File
	tree      *bptree.Tree
	keyCodec  *compositeKeyCodec
	mu        sync.RWMutex
}

// openSecondaryIndex opens (or creates, if absent) the heap file backing
// fieldName's index under dir.
func openSecondaryIndex(dir, fieldName string, keysPerNode int) (*SecondaryIndex, error) {
	path := indexFilePath(dir, fieldName)
	kc := &compositeKeyCodec{fieldCodec: newDynamicFieldCodec(fieldPayloadWidth)}
	dataCodec := codec.NewBytesCodec(len(presenceValue))

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		hf, err := heapfile.Create(path, bptree.DescriptorSize)
		if err != nil {
			return nil, fmt.Errorf("index: creating heap file for field %q: %w", fieldName, err)
		}
		tree, err := bptree.New(hf, kc, dataCodec, keysPerNode)
		if err != nil {
			return nil, fmt.Errorf("index: initializing tree for field %q: %w", fieldName, err)
		}
		return &SecondaryIndex{fieldName: fieldName, hf: hf, tree: tree, keyCodec: kc}, nil
	}

	hf, err := heapfile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: opening heap file for field %q: %w", fieldName, err)
	}
	raw, err := hf.Read(hf.DescriptorHandle())
	if err != nil {
		return nil, fmt.Errorf("index: reading descriptor for field %q: %w", fieldName, err)
	}
	desc, err := bptree.DecodeRootDescriptor(raw)
	if err != nil {
		return nil, fmt.Errorf("index: decoding descriptor for field %q: %w", fieldName, err)
	}
	tree := bptree.Open(hf, desc, kc, dataCodec, keysPerNode)
	return &SecondaryIndex{fieldName: fieldName, hf: hf, tree: tree, keyCodec: kc}, nil
}

func indexFilePath(dir, fieldName string) string {
	return filepath.Join(dir, fmt.Sprintf("index_%s.heap", fieldName))
}

// Insert adds a record to the secondary index: the index key is
// field_value+primary_key, so distinct primary keys sharing one field
// value never collide.
func (idx *SecondaryIndex) Insert(fieldValue any, primaryKey []byte) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	return idx.tree.Insert(indexKey{fieldValue: fieldValue, primaryKey: primaryKey}, presenceValue)
}

// Delete removes a record from the secondary index. It reports whether
// the record was present.
func (idx *SecondaryIndex) Delete(fieldValue any, primaryKey []byte) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	err := idx.tree.Delete(indexKey{fieldValue: fieldValue, primaryKey: primaryKey})
	return err == nil
}

// Search finds the primary keys of every record with an exact field
// value match.
func (idx *SecondaryIndex) Search(fieldValue any) ([][]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.scanPrefix(fieldValue, nil)
}

// SearchRange finds the primary keys of every record whose field value
// falls in [startValue, endValue] (inclusive), for field codecs whose
// encoding preserves the value's natural ordering.
func (idx *SecondaryIndex) SearchRange(startValue, endValue any) ([][]byte, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	endBytes, err := idx.keyCodec.fieldCodec.Encode(endValue)
	if err != nil {
		return nil, err
	}
	return idx.scanPrefix(startValue, endBytes)
}

// scanPrefix walks the leaf chain starting from startValue's field
// encoding, collecting primary keys whose field portion matches the
// prefix exactly (Search semantics, upperBound nil) or falls at or
// below upperBound (SearchRange semantics, upperBound set).
func (idx *SecondaryIndex) scanPrefix(startValue any, upperBound []byte) ([][]byte, error) {
	prefix, err := idx.keyCodec.fieldCodec.Encode(startValue)
	if err != nil {
		return nil, err
	}

	seek := indexKey{fieldValue: startValue, primaryKey: nil}
	_, leafPos, _, ctx, err := idx.tree.Search(seek)
	if err != nil {
		if errors.Is(err, bptree.ErrNotInitialized) {
			return nil, nil
		}
		return nil, err
	}
	defer ctx.Close()

	var out [][]byte
	for pos := leafPos; pos != 0; {
		elem, err := ctx.ReadElem(pos)
		if err != nil {
			return nil, err
		}
		stop := false
		for _, entry := range elem.NodeList.Entries {
			fieldPart := entry.Key[:len(prefix)]
			if upperBound == nil {
				if !bytes.Equal(fieldPart, prefix) {
					if bytes.Compare(fieldPart, prefix) > 0 {
						stop = true
					}
					continue
				}
			} else {
				if bytes.Compare(fieldPart, prefix) < 0 {
					continue
				}
				if bytes.Compare(fieldPart, upperBound) > 0 {
					stop = true
					continue
				}
			}
			out = append(out, trimTrailingZeros(entry.Key[len(prefix):]))
		}
		if stop {
			break
		}
		pos = elem.Elem.Succ
	}
	return out, nil
}

// Flush persists any buffered writes to the index's heap file.
func (idx *SecondaryIndex) Flush() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.hf.Flush()
}

// Close releases the index's underlying heap file.
func (idx *SecondaryIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.hf.Close()
}

// IndexManager manages multiple named secondary indexes under one data
// directory.
type IndexManager struct {
	dir         string
	keysPerNode int

	mu      sync.RWMutex
	indexes map[string]*SecondaryIndex
}

// NewIndexManager returns a manager whose indexes live as heap files
// under dir.
func NewIndexManager(dir string, keysPerNode int) *IndexManager {
	return &IndexManager{
		dir:         dir,
		keysPerNode: keysPerNode,
		indexes:     make(map[string]*SecondaryIndex),
	}
}

// GetOrCreateIndex returns fieldName's index, opening or creating its
// heap file on first use.
func (im *IndexManager) GetOrCreateIndex(fieldName string) (*SecondaryIndex, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if idx, ok := im.indexes[fieldName]; ok {
		return idx, nil
	}

	if err := os.MkdirAll(im.dir, 0o750); err != nil {
		return nil, fmt.Errorf("index: creating index directory: %w", err)
	}
	idx, err := openSecondaryIndex(im.dir, fieldName, im.keysPerNode)
	if err != nil {
		return nil, err
	}
	im.indexes[fieldName] = idx
	return idx, nil
}

// FlushAll flushes every open index's heap file.
func (im *IndexManager) FlushAll() error {
	im.mu.RLock()
	defer im.mu.RUnlock()

	for name, idx := range im.indexes {
		if err := idx.Flush(); err != nil {
			return fmt.Errorf("index: flushing field %q: %w", name, err)
		}
	}
	return nil
}

// CloseAll closes every open index's heap file.
func (im *IndexManager) CloseAll() error {
	im.mu.Lock()
	defer im.mu.Unlock()

	for name, idx := range im.indexes {
		if err := idx.Close(); err != nil {
			return fmt.Errorf("index: closing field %q: %w", name, err)
		}
	}
	return nil
}
