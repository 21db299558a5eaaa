package pagedb

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/pagedb/internal/storage/record"
)

// Catalog is a flat JSON sidecar describing the tables and indexes of one
// database directory: names, column layouts, and a stable identifier per
// table so two tables ever created under the same name (e.g. after a
// drop-and-recreate) remain distinguishable in diagnostics. It is never
// consulted by the four core layers (TableFile and IndexFile take a
// schema and a path directly), so it stays an external collaborator per
// this package's scope, used only to describe a schema once and reopen it
// later.
type Catalog struct {
	mu      sync.Mutex
	path    string
	Tables  map[string]*CatalogTable `json:"tables"`
	Indexes map[string]*CatalogIndex `json:"indexes"`
}

// CatalogTable describes one table's persisted schema.
type CatalogTable struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	Columns []CatalogColumn `json:"columns"`
}

// CatalogColumn mirrors one record.ColumnDef in a JSON-friendly shape.
type CatalogColumn struct {
	Name    string `json:"name"`
	Type    string `json:"type"` // "INT", "FLOAT", or "CHAR"
	CharLen int    `json:"char_len,omitempty"`
	NotNull bool   `json:"not_null"`
}

// CatalogIndex describes one (table, column) index.
type CatalogIndex struct {
	ID     uuid.UUID `json:"id"`
	Table  string    `json:"table"`
	Column string    `json:"column"`
}

// NewCatalog constructs an empty, in-memory catalog not yet bound to a
// file path. Use OpenCatalog/CreateCatalog to bind one to disk.
func NewCatalog() *Catalog {
	return &Catalog{Tables: make(map[string]*CatalogTable), Indexes: make(map[string]*CatalogIndex)}
}

// catalogFileName is the sidecar's fixed name inside a database directory.
const catalogFileName = "metadata.json"

// CreateCatalog creates a brand-new metadata.json sidecar inside dirPath.
func CreateCatalog(dirPath string) (*Catalog, error) {
	c := NewCatalog()
	c.path = catalogPathFor(dirPath)
	if err := c.save(); err != nil {
		return nil, err
	}
	return c, nil
}

// OpenCatalog reads an existing metadata.json sidecar from dirPath.
func OpenCatalog(dirPath string) (*Catalog, error) {
	c := NewCatalog()
	c.path = catalogPathFor(dirPath)
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("pagedb: open catalog %q: %w", c.path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("pagedb: parse catalog %q: %w", c.path, err)
	}
	if c.Tables == nil {
		c.Tables = make(map[string]*CatalogTable)
	}
	if c.Indexes == nil {
		c.Indexes = make(map[string]*CatalogIndex)
	}
	return c, nil
}

func catalogPathFor(dirPath string) string {
	return dirPath + string(os.PathSeparator) + catalogFileName
}

// columnTypeName renders a record.DataType's Kind as the string stored in
// the catalog sidecar.
func columnTypeName(dt record.DataType) string {
	switch dt.Kind {
	case record.KindInt:
		return "INT"
	case record.KindFloat:
		return "FLOAT"
	case record.KindChar:
		return "CHAR"
	default:
		return "UNKNOWN"
	}
}

// PutTable registers table's schema under a freshly stamped uuid.UUID,
// overwriting any prior entry of the same name, and persists the catalog.
func (c *Catalog) PutTable(schema *record.TableSchema) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cols := make([]CatalogColumn, schema.ColumnCount())
	for i := 0; i < schema.ColumnCount(); i++ {
		col := schema.Column(i)
		cols[i] = CatalogColumn{
			Name:    col.Name,
			Type:    columnTypeName(col.Type),
			CharLen: col.Type.CharLen,
			NotNull: col.NotNull,
		}
	}

	id := uuid.New()
	c.Tables[schema.TableName()] = &CatalogTable{ID: id, Name: schema.TableName(), Columns: cols}
	return id, c.save()
}

// PutIndex registers an index on (table, column) under a freshly stamped
// uuid.UUID and persists the catalog.
func (c *Catalog) PutIndex(table, column string) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.New()
	key := table + "." + column
	c.Indexes[key] = &CatalogIndex{ID: id, Table: table, Column: column}
	return id, c.save()
}

// RemoveTable deletes table's entry (and any indexes registered on it)
// from the catalog and persists the result.
func (c *Catalog) RemoveTable(table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Tables, table)
	for key, idx := range c.Indexes {
		if idx.Table == table {
			delete(c.Indexes, key)
		}
	}
	return c.save()
}

// Table returns the registered schema description for table, if any.
func (c *Catalog) Table(table string) (*CatalogTable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.Tables[table]
	return t, ok
}

// save writes the catalog to its bound path as indented JSON.
func (c *Catalog) save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("pagedb: marshal catalog: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("pagedb: save catalog %q: %w", c.path, err)
	}
	return nil
}
