package pagedb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/SimonWaldherr/pagedb/internal/storage/file"
	"github.com/SimonWaldherr/pagedb/internal/storage/index"
	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

// DB is the one owning type this package adds on top of the four core
// layers: it holds a single BufferManager and PagedFileManager shared by
// every table and index, and opens/creates them by delegating straight to
// the record and index packages. It is deliberately thin: not a SQL
// engine, not a catalog, not a CLI.
type DB struct {
	mu sync.Mutex

	path    string
	cfg     Config
	fm      *file.PagedFileManager
	bm      *file.BufferManager
	indexes *index.IndexManager

	tables map[string]*record.TableFile
}

// Open opens (creating the directory if necessary) a database rooted at
// dirPath with the given configuration.
func Open(dirPath string, cfg Config) (*DB, error) {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return nil, fmt.Errorf("pagedb: open %q: %w", dirPath, err)
	}
	fm := file.NewPagedFileManager(cfg.MaxOpenFiles)
	bm := file.NewBufferManager(fm, cfg.BufferPoolCapacity)
	return &DB{
		path:    dirPath,
		cfg:     cfg,
		fm:      fm,
		bm:      bm,
		indexes: index.NewIndexManager(bm, dirPath, cfg.DefaultIndexOrder),
		tables:  make(map[string]*record.TableFile),
	}, nil
}

// tablePath returns the on-disk path for table's heap file.
func (db *DB) tablePath(table string) string {
	return filepath.Join(db.path, table+".tbl")
}

// CreateTable creates a new heap file for table under schema and
// registers it as open.
func (db *DB) CreateTable(table string, schema *record.TableSchema) (*record.TableFile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tables[table]; ok {
		return nil, fmt.Errorf("pagedb: create table %q: already open", table)
	}
	tf, err := record.CreateTableFile(db.bm, db.tablePath(table), schema)
	if err != nil {
		return nil, err
	}
	db.tables[table] = tf
	return tf, nil
}

// OpenTable opens table's heap file if not already open, returning the
// registered TableFile either way.
func (db *DB) OpenTable(table string, schema *record.TableSchema) (*record.TableFile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if tf, ok := db.tables[table]; ok {
		return tf, nil
	}
	tf, err := record.OpenTableFile(db.bm, db.tablePath(table), schema)
	if err != nil {
		return nil, err
	}
	db.tables[table] = tf
	return tf, nil
}

// Table returns the already-open TableFile for table, or an error if
// nothing has opened it yet.
func (db *DB) Table(table string) (*record.TableFile, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	tf, ok := db.tables[table]
	if !ok {
		return nil, fmt.Errorf("pagedb: table %q is not open", table)
	}
	return tf, nil
}

// CloseTable flushes and releases table's heap file.
func (db *DB) CloseTable(table string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	tf, ok := db.tables[table]
	if !ok {
		return fmt.Errorf("pagedb: close table %q: not open", table)
	}
	if err := tf.Close(); err != nil {
		return err
	}
	delete(db.tables, table)
	return nil
}

// DropTable closes table if open, then removes its heap file.
func (db *DB) DropTable(table string) error {
	db.mu.Lock()
	if tf, ok := db.tables[table]; ok {
		tf.Close()
		delete(db.tables, table)
	}
	db.mu.Unlock()
	return db.fm.Remove(db.tablePath(table))
}

// Indexes returns the shared IndexManager, for callers that need direct
// access to create/open/drop/search operations beyond the convenience
// wrappers below.
func (db *DB) Indexes() *index.IndexManager { return db.indexes }

// BulkInsert appends every record in records to table under a single
// buffer-manager acquisition, using TableFile.BulkInsert's linear-time
// append path.
func (db *DB) BulkInsert(ctx context.Context, table string, records []record.Record) ([]record.RecordId, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tf, err := db.Table(table)
	if err != nil {
		return nil, err
	}
	return tf.BulkInsert(records)
}

// CreateIndexFromTable builds a new index on table's column by scanning
// the table, extracting an int64 key from each record via keyOf, and
// bulk-loading the result. keyOf receives the raw Record so callers can
// index any INT (or derived) column without this package knowing the
// schema's column layout.
func (db *DB) CreateIndexFromTable(ctx context.Context, table, column string, keyOf func(record.Record) int64) (*index.IndexFile, index.IndexBuildStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, index.IndexBuildStats{}, err
	}
	tf, err := db.Table(table)
	if err != nil {
		return nil, index.IndexBuildStats{}, err
	}

	var entries []index.ScanEntry
	it := tf.ScanIter()
	for {
		if err := ctx.Err(); err != nil {
			return nil, index.IndexBuildStats{}, err
		}
		rid, rec, ok, err := it.Next()
		if err != nil {
			return nil, index.IndexBuildStats{}, err
		}
		if !ok {
			break
		}
		entries = append(entries, index.ScanEntry{ID: rid, Key: keyOf(rec)})
	}

	return db.indexes.CreateIndexFromTable(table, column, entries)
}

// FlushAll flushes every open table's buffer-manager-resident dirty pages
// and every open index, then syncs all underlying files.
func (db *DB) FlushAll() error {
	if err := db.indexes.FlushAll(); err != nil {
		return err
	}
	return db.bm.FlushAll()
}

// Close flushes and closes every open table and index, then releases the
// shared buffer manager.
func (db *DB) Close() error {
	db.mu.Lock()
	var firstErr error
	for name, tf := range db.tables {
		if err := tf.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(db.tables, name)
	}
	db.mu.Unlock()

	if err := db.indexes.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.bm.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
