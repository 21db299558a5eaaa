package index

import (
	"encoding/binary"
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/file"
	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

// Every persisted index file reserves page 0 for a metadata page; node n
// lives at page n+1, so NodeID and page id differ by exactly one.
const metadataPageID uint32 = 0

func nodePageID(id NodeID) uint32 { return uint32(id) + 1 }

const (
	indexMagic   uint32 = 0x42545245 // "BTRE"
	indexVersion uint32 = 1

	// noNodeSentinel is how NoNode is spelled on disk.
	noNodeSentinel uint32 = 0xFFFF_FFFF
)

// Metadata page layout (all little-endian, rest of the page zero):
//
//	[0:4]    magic
//	[4:8]    version
//	[8:12]   order
//	[12:16]  root node id        (0xFFFFFFFF = none)
//	[16:20]  first leaf id       (0xFFFFFFFF = none)
//	[20:28]  entry count (uint64)
//	[28:32]  tree height
//	[32:36]  next free page
const (
	metaOffMagic        = 0
	metaOffVersion      = 4
	metaOffOrder        = 8
	metaOffRoot         = 12
	metaOffFirstLeaf    = 16
	metaOffEntryCount   = 20
	metaOffHeight       = 28
	metaOffNextFreePage = 32
)

type metadata struct {
	order        int
	root         NodeID
	firstLeaf    NodeID
	entryCount   int
	height       int
	nextFreePage uint32
}

func encodeNodeID(id NodeID) uint32 {
	if id == NoNode {
		return noNodeSentinel
	}
	return uint32(id)
}

func decodeNodeID(v uint32) NodeID {
	if v == noNodeSentinel {
		return NoNode
	}
	return NodeID(v)
}

func encodeMetadataPage(m metadata) []byte {
	buf := make([]byte, file.PageSize)
	binary.LittleEndian.PutUint32(buf[metaOffMagic:], indexMagic)
	binary.LittleEndian.PutUint32(buf[metaOffVersion:], indexVersion)
	binary.LittleEndian.PutUint32(buf[metaOffOrder:], uint32(m.order))
	binary.LittleEndian.PutUint32(buf[metaOffRoot:], encodeNodeID(m.root))
	binary.LittleEndian.PutUint32(buf[metaOffFirstLeaf:], encodeNodeID(m.firstLeaf))
	binary.LittleEndian.PutUint64(buf[metaOffEntryCount:], uint64(m.entryCount))
	binary.LittleEndian.PutUint32(buf[metaOffHeight:], uint32(m.height))
	binary.LittleEndian.PutUint32(buf[metaOffNextFreePage:], m.nextFreePage)
	return buf
}

func decodeMetadataPage(buf []byte) (metadata, error) {
	var m metadata
	if len(buf) < file.PageSize {
		return m, fmt.Errorf("index: metadata page too short (%d bytes)", len(buf))
	}
	magic := binary.LittleEndian.Uint32(buf[metaOffMagic:])
	if magic != indexMagic {
		return m, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(buf[metaOffVersion:])
	if version != indexVersion {
		return m, fmt.Errorf("index: version %d: %w", version, ErrUnsupportedVersion)
	}
	m.order = int(binary.LittleEndian.Uint32(buf[metaOffOrder:]))
	m.root = decodeNodeID(binary.LittleEndian.Uint32(buf[metaOffRoot:]))
	m.firstLeaf = decodeNodeID(binary.LittleEndian.Uint32(buf[metaOffFirstLeaf:]))
	m.entryCount = int(binary.LittleEndian.Uint64(buf[metaOffEntryCount:]))
	m.height = int(binary.LittleEndian.Uint32(buf[metaOffHeight:]))
	m.nextFreePage = binary.LittleEndian.Uint32(buf[metaOffNextFreePage:])
	return m, nil
}

// Node page layout (rest of the page zero):
//
//	byte 0:    type (0 = internal, 1 = leaf)
//	bytes 1-2: entry count (uint16)
//	bytes 3-6: next leaf id (leaf only; 0xFFFFFFFF = none)
//	pad to offset 16, then repeated entries:
//	  internal: (key int64, child uint32)
//	  leaf:     (key int64, page_id uint32, slot_id uint32)
const (
	nodeTypeInternal byte = 0
	nodeTypeLeaf     byte = 1

	nodeOffType    = 0
	nodeOffCount   = 1
	nodeOffSibling = 3
	nodeOffEntries = 16

	internalEntrySize = 8 + 4
	leafEntrySize     = 8 + 4 + 4
)

func encodeNodePage(n *Node) ([]byte, error) {
	buf := make([]byte, file.PageSize)
	switch n.Kind {
	case KindInternal:
		b := n.Internal
		buf[nodeOffType] = nodeTypeInternal
		binary.LittleEndian.PutUint16(buf[nodeOffCount:], uint16(len(b.Keys)))
		if nodeOffEntries+len(b.Keys)*internalEntrySize > file.PageSize {
			return nil, fmt.Errorf("index: internal node with %d entries overflows a page", len(b.Keys))
		}
		off := nodeOffEntries
		for i, k := range b.Keys {
			binary.LittleEndian.PutUint64(buf[off:], uint64(k))
			binary.LittleEndian.PutUint32(buf[off+8:], encodeNodeID(b.Children[i]))
			off += internalEntrySize
		}
	case KindLeaf:
		b := n.Leaf
		buf[nodeOffType] = nodeTypeLeaf
		binary.LittleEndian.PutUint16(buf[nodeOffCount:], uint16(len(b.Keys)))
		binary.LittleEndian.PutUint32(buf[nodeOffSibling:], encodeNodeID(b.Next))
		if nodeOffEntries+len(b.Keys)*leafEntrySize > file.PageSize {
			return nil, fmt.Errorf("index: leaf node with %d entries overflows a page", len(b.Keys))
		}
		off := nodeOffEntries
		for i, k := range b.Keys {
			binary.LittleEndian.PutUint64(buf[off:], uint64(k))
			binary.LittleEndian.PutUint32(buf[off+8:], b.Values[i].PageID)
			binary.LittleEndian.PutUint32(buf[off+12:], uint32(int32(b.Values[i].SlotID)))
			off += leafEntrySize
		}
	default:
		return nil, fmt.Errorf("index: encode node kind %d: %w", n.Kind, ErrInvalidNodeType)
	}
	return buf, nil
}

func decodeNodePage(buf []byte) (*Node, error) {
	if len(buf) < nodeOffEntries {
		return nil, fmt.Errorf("index: node page too short (%d bytes)", len(buf))
	}
	typ := buf[nodeOffType]
	count := int(binary.LittleEndian.Uint16(buf[nodeOffCount:]))
	switch typ {
	case nodeTypeInternal:
		b := &InternalBody{}
		off := nodeOffEntries
		for i := 0; i < count; i++ {
			b.Keys = append(b.Keys, int64(binary.LittleEndian.Uint64(buf[off:])))
			b.Children = append(b.Children, decodeNodeID(binary.LittleEndian.Uint32(buf[off+8:])))
			off += internalEntrySize
		}
		return &Node{Kind: KindInternal, Internal: b}, nil
	case nodeTypeLeaf:
		next := decodeNodeID(binary.LittleEndian.Uint32(buf[nodeOffSibling:]))
		b := &LeafBody{Next: next}
		off := nodeOffEntries
		for i := 0; i < count; i++ {
			key := int64(binary.LittleEndian.Uint64(buf[off:]))
			pageID := binary.LittleEndian.Uint32(buf[off+8:])
			slotID := int(int32(binary.LittleEndian.Uint32(buf[off+12:])))
			b.Keys = append(b.Keys, key)
			b.Values = append(b.Values, record.RecordId{PageID: pageID, SlotID: slotID})
			off += leafEntrySize
		}
		return &Node{Kind: KindLeaf, Leaf: b}, nil
	default:
		return nil, fmt.Errorf("index: type byte %d: %w", typ, ErrInvalidNodeType)
	}
}
