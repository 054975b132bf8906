package bptree

import (
	"fmt"

	"github.com/ssargent/freyjadb/pkg/dll"
)

// BTreeElement is the unit stored in one heap record: a linked-list
// element header (used only by leaf elements to chain ordered
// traversal) paired with the NodeList payload.
type BTreeElement struct {
	Elem     dll.Elem
	NodeList NodeList
}

func encodeElement(be BTreeElement, keySize, dataSize int) ([]byte, error) {
	nlBytes, err := be.NodeList.encode(keySize, dataSize)
	if err != nil {
		return nil, err
	}
	header := be.Elem.Encode()
	return append(header, nlBytes...), nil
}

func decodeElement(buf []byte, keySize, dataSize int) (BTreeElement, error) {
	if len(buf) < dll.Size {
		return BTreeElement{}, fmt.Errorf("%w: element shorter than dll header", ErrIntegrityViolation)
	}
	elem, err := dll.Decode(buf[:dll.Size])
	if err != nil {
		return BTreeElement{}, fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}
	nl, err := decodeNodeList(buf[dll.Size:], keySize, dataSize)
	if err != nil {
		return BTreeElement{}, err
	}
	return BTreeElement{Elem: elem, NodeList: nl}, nil
}

// maxElementSize returns the largest payload this tree's elements can
// ever need, given keysPerNode entries each at most keySize+dataSize
// wide. The heap file allocates every element at this size so no record
// ever needs to be relocated to grow.
func maxElementSize(keysPerNode, keySize, dataSize int) int {
	return dll.Size + nodeListHeaderSize + keysPerNode*(entryHeaderSize+keySize+dataSize)
}
