package index

import (
	"errors"
	"fmt"

	"github.com/SimonWaldherr/pagedb/internal/storage/file"
	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

// IndexFile owns one B+ tree persisted node-per-page in a single on-disk
// file: page 0 holds metadata, page n+1 holds node n. Every mutating
// operation delegates to the in-memory BPlusTree, then conservatively
// marks the metadata and every resident node dirty; Flush is what
// actually serializes dirty state back through the buffer manager.
type IndexFile struct {
	bm     *file.BufferManager
	handle file.FileHandle
	path   string
	tree   *BPlusTree

	metadataDirty bool
	dirtyNodes    map[NodeID]bool
}

// CreateIndexFile creates a new, empty index file at path with the given
// tree order and writes its initial (empty) metadata page. Fails with
// ErrIndexAlreadyExists if path already exists.
func CreateIndexFile(bm *file.BufferManager, path string, order int) (*IndexFile, error) {
	fm := bm.FileManager()
	if err := fm.Create(path); err != nil {
		if errors.Is(err, file.ErrFileAlreadyExists) {
			return nil, fmt.Errorf("index: create %q: %w", path, ErrIndexAlreadyExists)
		}
		return nil, err
	}
	h, err := fm.Open(path)
	if err != nil {
		return nil, err
	}
	tree, err := NewBPlusTree(order)
	if err != nil {
		fm.Close(h)
		return nil, err
	}

	idx := &IndexFile{bm: bm, handle: h, path: path, tree: tree, dirtyNodes: make(map[NodeID]bool)}
	idx.metadataDirty = true
	if err := idx.Flush(); err != nil {
		return nil, err
	}
	return idx, nil
}

// OpenIndexFile opens an existing index file at path, reading its
// metadata page and then loading every node reachable from the root by a
// depth-first walk. Node ids with no reference from the root are left as
// holes in the arena; their pages remain on disk but unaddressed until
// something reuses the id.
func OpenIndexFile(bm *file.BufferManager, path string) (*IndexFile, error) {
	fm := bm.FileManager()
	h, err := fm.Open(path)
	if err != nil {
		if errors.Is(err, file.ErrFileNotFound) {
			return nil, fmt.Errorf("index: open %q: %w", path, ErrIndexNotFound)
		}
		return nil, err
	}

	metaBuf, err := bm.GetPage(file.BufferKey{Handle: h, PageID: metadataPageID})
	if err != nil {
		return nil, err
	}
	m, err := decodeMetadataPage(metaBuf)
	if err != nil {
		return nil, fmt.Errorf("index: open %q: %w", path, err)
	}

	var nodes []*Node
	idx := &IndexFile{bm: bm, handle: h, path: path, dirtyNodes: make(map[NodeID]bool)}

	if m.root != NoNode {
		loaded := make(map[NodeID]bool)
		nodes, err = idx.loadNode(m.root, nodes, loaded)
		if err != nil {
			return nil, err
		}
	}

	idx.tree = FromPersistentState(m.order, m.root, m.firstLeaf, m.entryCount, nodes)
	return idx, nil
}

// loadNode reads node id's page, growing nodes to cover id if needed, and
// for an internal node recurses into every child not already loaded.
func (idx *IndexFile) loadNode(id NodeID, nodes []*Node, loaded map[NodeID]bool) ([]*Node, error) {
	if loaded[id] {
		return nodes, nil
	}
	loaded[id] = true

	buf, err := idx.bm.GetPage(file.BufferKey{Handle: idx.handle, PageID: nodePageID(id)})
	if err != nil {
		return nodes, err
	}
	n, err := decodeNodePage(buf)
	if err != nil {
		return nodes, fmt.Errorf("index: load node %d: %w", id, err)
	}

	for int(id) >= len(nodes) {
		nodes = append(nodes, nil)
	}
	nodes[id] = n

	if n != nil && n.IsInternal() {
		for _, child := range n.Internal.Children {
			nodes, err = idx.loadNode(child, nodes, loaded)
			if err != nil {
				return nodes, err
			}
		}
	}
	return nodes, nil
}

// Tree exposes the underlying in-memory B+ tree for callers that need
// direct structural access (invariant checkers, tests).
func (idx *IndexFile) Tree() *BPlusTree { return idx.tree }

// Order returns the tree's order.
func (idx *IndexFile) Order() int { return idx.tree.Order() }

// markAllDirty marks the metadata page and every resident arena node
// dirty. Mutations do not track which nodes they touched, so the whole
// resident set is rewritten on the next Flush.
func (idx *IndexFile) markAllDirty() {
	idx.metadataDirty = true
	for id := 0; id < idx.tree.NodeCount(); id++ {
		if idx.tree.GetNode(NodeID(id)) != nil {
			idx.dirtyNodes[NodeID(id)] = true
		}
	}
}

// Insert adds (key, value) to the index.
func (idx *IndexFile) Insert(key int64, value record.RecordId) error {
	if err := idx.tree.Insert(key, value); err != nil {
		return err
	}
	idx.markAllDirty()
	return nil
}

// Search returns the first matching value for key, if any.
func (idx *IndexFile) Search(key int64) (record.RecordId, bool) {
	return idx.tree.Search(key)
}

// SearchAll returns every value matching key.
func (idx *IndexFile) SearchAll(key int64) []record.RecordId {
	return idx.tree.SearchAll(key)
}

// RangeSearch returns every (key, value) pair with lo <= key <= hi.
func (idx *IndexFile) RangeSearch(lo, hi int64) []Pair {
	return idx.tree.RangeSearch(lo, hi)
}

// Delete removes the first entry matching key. Reports whether anything
// was removed.
func (idx *IndexFile) Delete(key int64) bool {
	removed := idx.tree.Delete(key)
	if removed {
		idx.markAllDirty()
	}
	return removed
}

// DeleteEntry removes the specific (key, value) pair. Reports whether it
// was found.
func (idx *IndexFile) DeleteEntry(key int64, value record.RecordId) bool {
	removed := idx.tree.DeleteEntry(key, value)
	if removed {
		idx.markAllDirty()
	}
	return removed
}

// Update replaces (oldKey, oldValue) with (newKey, newValue). Fails with
// ErrEntryNotFound if the old pair cannot be located.
func (idx *IndexFile) Update(oldKey int64, oldValue record.RecordId, newKey int64, newValue record.RecordId) error {
	if !idx.tree.DeleteEntry(oldKey, oldValue) {
		return fmt.Errorf("index: update %d->%d: %w", oldKey, newKey, ErrEntryNotFound)
	}
	if err := idx.tree.Insert(newKey, newValue); err != nil {
		return err
	}
	idx.markAllDirty()
	return nil
}

// BulkLoad replaces the index's entire contents with entries, which must
// already be sorted by non-decreasing key.
func (idx *IndexFile) BulkLoad(entries []Pair) error {
	if err := idx.tree.BulkLoad(entries); err != nil {
		return err
	}
	idx.markAllDirty()
	return nil
}

// Flush serializes every dirty node and, if dirty, the metadata page,
// writing them through the buffer manager and then invoking FlushAll so
// the writes reach durable storage.
func (idx *IndexFile) Flush() error {
	for id := range idx.dirtyNodes {
		n := idx.tree.GetNode(id)
		if n == nil {
			// Freed after being marked dirty; its page stays stale on disk
			// and is unreachable from the root.
			continue
		}
		data, err := encodeNodePage(n)
		if err != nil {
			return fmt.Errorf("index: flush node %d: %w", id, err)
		}
		buf, err := idx.bm.GetPageMut(file.BufferKey{Handle: idx.handle, PageID: nodePageID(id)})
		if err != nil {
			return err
		}
		copy(buf, data)
	}
	idx.dirtyNodes = make(map[NodeID]bool)

	if idx.metadataDirty {
		m := metadata{
			order:        idx.tree.Order(),
			root:         idx.tree.RootNodeID(),
			firstLeaf:    idx.tree.FirstLeafID(),
			entryCount:   idx.tree.Len(),
			height:       idx.tree.Height(),
			nextFreePage: uint32(idx.tree.NodeCount()) + 1,
		}
		data := encodeMetadataPage(m)
		buf, err := idx.bm.GetPageMut(file.BufferKey{Handle: idx.handle, PageID: metadataPageID})
		if err != nil {
			return err
		}
		copy(buf, data)
		idx.metadataDirty = false
	}

	return idx.bm.FlushAll()
}

// Close flushes then releases this index file's underlying handle.
func (idx *IndexFile) Close() error {
	if err := idx.Flush(); err != nil {
		return err
	}
	return idx.bm.FileManager().Close(idx.handle)
}
