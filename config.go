// Package pagedb is a small relational storage engine: a paged on-disk
// file manager, a fixed-capacity LRU buffer pool, a slotted-page heap
// file per table, and a persistent duplicate-key B+ tree index. It
// intentionally stops short of SQL parsing, query planning, transactional
// isolation, and crash recovery beyond fsync-on-flush; those are the
// responsibility of a caller built on top of this package.
//
// # Basic usage
//
//	cfg := pagedb.DefaultConfig()
//	db, err := pagedb.Open("./mydb", cfg)
//	schema := record.NewTableSchema("users", []record.ColumnDef{
//		{Name: "id", Type: record.Int(), NotNull: true},
//		{Name: "name", Type: record.Char(32)},
//	})
//	tf, err := db.CreateTable("users", schema)
//	rid, err := tf.Insert(record.NewRecord(record.IntValue(1), record.StringValue("Alice")))
package pagedb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/pagedb/internal/storage/file"
	"github.com/SimonWaldherr/pagedb/internal/storage/index"
)

// Config holds every tunable the core managers accept at construction
// time. It is loadable from YAML via LoadConfig.
type Config struct {
	// PageSize documents the page size this database was created under.
	// Opening a database with a different PageSize than it was created
	// with is not supported; the field exists for operators to record and
	// diff configuration, not to reconfigure file.PageSize at runtime.
	PageSize int `yaml:"page_size"`
	// BufferPoolCapacity is the number of page-sized slots the buffer
	// manager keeps resident. 0 selects file.DefaultBufferPoolCapacity.
	BufferPoolCapacity int `yaml:"buffer_pool_capacity"`
	// MaxOpenFiles bounds how many distinct files stay open at once. 0
	// selects file.DefaultMaxOpenFiles.
	MaxOpenFiles int `yaml:"max_open_files"`
	// DefaultIndexOrder is the B+ tree order used for indexes created
	// without an explicit order. 0 selects index.DefaultOrder.
	DefaultIndexOrder int `yaml:"default_index_order"`
}

// DefaultConfig returns the reference configuration: PAGE_SIZE 8192, a
// 10,000-entry buffer pool, a 128 open-file cap, and index order 128.
func DefaultConfig() Config {
	return Config{
		PageSize:           file.PageSize,
		BufferPoolCapacity: file.DefaultBufferPoolCapacity,
		MaxOpenFiles:       file.DefaultMaxOpenFiles,
		DefaultIndexOrder:  index.DefaultOrder,
	}
}

// LoadConfig reads a YAML configuration file at path, filling in
// DefaultConfig for any field left zero.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("pagedb: load config %q: %w", path, err)
	}
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Config{}, fmt.Errorf("pagedb: parse config %q: %w", path, err)
	}
	if loaded.PageSize != 0 {
		cfg.PageSize = loaded.PageSize
	}
	if loaded.BufferPoolCapacity != 0 {
		cfg.BufferPoolCapacity = loaded.BufferPoolCapacity
	}
	if loaded.MaxOpenFiles != 0 {
		cfg.MaxOpenFiles = loaded.MaxOpenFiles
	}
	if loaded.DefaultIndexOrder != 0 {
		cfg.DefaultIndexOrder = loaded.DefaultIndexOrder
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("pagedb: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pagedb: save config %q: %w", path, err)
	}
	return nil
}
