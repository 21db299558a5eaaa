package index

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/SimonWaldherr/pagedb/internal/storage/file"
	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

// indexKey identifies one open index by the (table, column) pair it
// covers.
type indexKey struct {
	table  string
	column string
}

// IndexManager tracks every currently open IndexFile, keyed by
// (table, column), and owns the buffer manager they share. Index files
// live at "<dbPath>/<table>_<column>.idx".
type IndexManager struct {
	bm     *file.BufferManager
	dbPath string
	order  int
	open   map[indexKey]*IndexFile
}

// NewIndexManager constructs a registry rooted at dbPath, using bm for
// all page I/O and defaultOrder for newly created trees (DefaultOrder if
// defaultOrder <= 0).
func NewIndexManager(bm *file.BufferManager, dbPath string, defaultOrder int) *IndexManager {
	if defaultOrder <= 0 {
		defaultOrder = DefaultOrder
	}
	return &IndexManager{bm: bm, dbPath: dbPath, order: defaultOrder, open: make(map[indexKey]*IndexFile)}
}

// indexPath returns the on-disk path for the index covering
// (table, column).
func (m *IndexManager) indexPath(table, column string) string {
	return filepath.Join(m.dbPath, fmt.Sprintf("%s_%s.idx", table, column))
}

// CreateIndex creates a new, empty index file for (table, column). Fails
// with ErrIndexAlreadyExists if the file already exists on disk or is
// already open.
func (m *IndexManager) CreateIndex(table, column string) (*IndexFile, error) {
	key := indexKey{table, column}
	if _, ok := m.open[key]; ok {
		return nil, fmt.Errorf("index: create %s.%s: %w", table, column, ErrIndexAlreadyExists)
	}
	idx, err := CreateIndexFile(m.bm, m.indexPath(table, column), m.order)
	if err != nil {
		return nil, err
	}
	m.open[key] = idx
	return idx, nil
}

// OpenIndex opens (table, column)'s index file if not already open;
// idempotent for an index already registered.
func (m *IndexManager) OpenIndex(table, column string) (*IndexFile, error) {
	key := indexKey{table, column}
	if idx, ok := m.open[key]; ok {
		return idx, nil
	}
	idx, err := OpenIndexFile(m.bm, m.indexPath(table, column))
	if err != nil {
		return nil, err
	}
	m.open[key] = idx
	return idx, nil
}

// Get returns the already-open index for (table, column), or
// *IndexNotOpenError if none is registered.
func (m *IndexManager) Get(table, column string) (*IndexFile, error) {
	idx, ok := m.open[indexKey{table, column}]
	if !ok {
		return nil, &IndexNotOpenError{Table: table, Column: column}
	}
	return idx, nil
}

// CloseIndex flushes and releases (table, column)'s index file, removing
// it from the registry.
func (m *IndexManager) CloseIndex(table, column string) error {
	key := indexKey{table, column}
	idx, ok := m.open[key]
	if !ok {
		return &IndexNotOpenError{Table: table, Column: column}
	}
	if err := idx.Close(); err != nil {
		return err
	}
	delete(m.open, key)
	return nil
}

// DropIndex closes (table, column)'s index file if open, then deletes it
// from the file system.
func (m *IndexManager) DropIndex(table, column string) error {
	key := indexKey{table, column}
	if idx, ok := m.open[key]; ok {
		// Close only flushes+closes the handle; errors here would leave a
		// stale registry entry, so drop it from the map regardless before
		// attempting the unlink.
		delete(m.open, key)
		_ = idx.bm.FileManager().Close(idx.handle)
	}
	return m.bm.FileManager().Remove(m.indexPath(table, column))
}

// Flush flushes a single open index.
func (m *IndexManager) Flush(table, column string) error {
	idx, err := m.Get(table, column)
	if err != nil {
		return err
	}
	return idx.Flush()
}

// FlushAll flushes every currently open index.
func (m *IndexManager) FlushAll() error {
	for _, idx := range m.open {
		if err := idx.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close attempts to close every open index, best-effort: it keeps going
// after an individual failure and returns the first error encountered.
func (m *IndexManager) Close() error {
	var firstErr error
	for key, idx := range m.open {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.open, key)
	}
	return firstErr
}

// ScanEntry is one (RecordId, key) pair drawn from a table scan, the
// input shape CreateIndexFromTable consumes.
type ScanEntry struct {
	ID  record.RecordId
	Key int64
}

// IndexBuildStats summarizes a CreateIndexFromTable run: how many
// entries were indexed, the height a perfectly packed tree of that size
// would need (OptimalDepth), and the height the bulk-loaded tree actually
// has.
type IndexBuildStats struct {
	Entries      int
	OptimalDepth int
	ActualHeight int
}

// CreateIndexFromTable builds a brand-new index for (table, column) from
// scanEntries: a full scan already reduced to (RecordId, key) pairs. It
// collects every entry, stable-sorts by key, and bulk-loads the result
// into a freshly created index file. An empty input yields an empty
// index. On any failure the target index file is left unlinked and the
// registry is unchanged.
func (m *IndexManager) CreateIndexFromTable(table, column string, scanEntries []ScanEntry) (*IndexFile, IndexBuildStats, error) {
	pairs := make([]Pair, len(scanEntries))
	for i, e := range scanEntries {
		pairs[i] = Pair{Key: e.Key, Value: e.ID}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })

	idx, err := m.CreateIndex(table, column)
	if err != nil {
		return nil, IndexBuildStats{}, err
	}
	if err := idx.BulkLoad(pairs); err != nil {
		delete(m.open, indexKey{table, column})
		_ = idx.bm.FileManager().Close(idx.handle)
		_ = m.bm.FileManager().Remove(m.indexPath(table, column))
		return nil, IndexBuildStats{}, err
	}

	stats := IndexBuildStats{
		Entries:      len(pairs),
		OptimalDepth: OptimalDepth(len(pairs), idx.Order()),
		ActualHeight: idx.Tree().Height(),
	}
	return idx, stats, nil
}

// BulkLoadFromSlice bulk-loads entries (already sorted by non-decreasing
// key) into (table, column)'s already-open index in one call, without the
// copy and stable sort that CreateIndexFromTable makes of its input.
func (m *IndexManager) BulkLoadFromSlice(table, column string, entries []Pair) error {
	idx, err := m.Get(table, column)
	if err != nil {
		return err
	}
	return idx.BulkLoad(entries)
}
