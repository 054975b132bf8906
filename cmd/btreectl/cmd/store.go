package cmd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/ssargent/freyjadb/pkg/bptree"
	"github.com/ssargent/freyjadb/pkg/codec"
	"github.com/ssargent/freyjadb/pkg/heapfile"
)

// primaryHeapFile is the fixed name of the CLI's primary key/value heap
// file within a data directory. Named indexes (see serve.go) each get
// their own heap file; this one holds the primary tree the put/get/
// delete/iterate subcommands operate on.
const primaryHeapFile = "primary.heap"

// openPrimaryTree opens (or creates) the primary tree under dataDir,
// keyed by a zero-padded fixed-width string and storing an opaque,
// variable-length byte payload up to dataWidth bytes, the same
// open-or-create shape pkg/index.openSecondaryIndex uses for a named
// field's heap file.
func openPrimaryTree(dataDir string, keysPerNode, keyWidth, dataWidth int) (*heapfile.File, *bptree.Tree, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(dataDir, primaryHeapFile)
	keyCodec := codec.NewStringCodec(keyWidth)
	dataCodec := codec.NewVarBytesCodec(dataWidth)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		hf, err := heapfile.Create(path, bptree.DescriptorSize)
		if err != nil {
			return nil, nil, err
		}
		tree, err := bptree.New(hf, keyCodec, dataCodec, keysPerNode)
		if err != nil {
			return nil, nil, err
		}
		return hf, tree, nil
	}

	hf, err := heapfile.Open(path)
	if err != nil {
		return nil, nil, err
	}
	raw, err := hf.Read(hf.DescriptorHandle())
	if err != nil {
		return nil, nil, err
	}
	desc, err := bptree.DecodeRootDescriptor(raw)
	if err != nil {
		return nil, nil, err
	}
	tree := bptree.Open(hf, desc, keyCodec, dataCodec, keysPerNode)
	return hf, tree, nil
}
