package record

import "fmt"

// ColumnDef describes one column of a TableSchema.
type ColumnDef struct {
	Name    string
	Type    DataType
	NotNull bool
	Default Value
}

// TableSchema is the immutable column layout of one table: its record
// size and NULL-bitmap size are derived once at construction and consulted
// on every record (de)serialization thereafter.
type TableSchema struct {
	tableName      string
	columns        []ColumnDef
	nullBitmapSize int
	recordSize     int
}

// NewTableSchema builds a TableSchema for tableName from columns, deriving
// the NULL bitmap size (ceil(len(columns)/8)) and the fixed record size
// (bitmap + sum of column sizes).
func NewTableSchema(tableName string, columns []ColumnDef) *TableSchema {
	nullBitmapSize := (len(columns) + 7) / 8
	recordSize := nullBitmapSize
	for _, c := range columns {
		recordSize += c.Type.Size()
	}
	cols := make([]ColumnDef, len(columns))
	copy(cols, columns)
	return &TableSchema{
		tableName:      tableName,
		columns:        cols,
		nullBitmapSize: nullBitmapSize,
		recordSize:     recordSize,
	}
}

// TableName returns the schema's table name.
func (s *TableSchema) TableName() string { return s.tableName }

// Columns returns the schema's columns in declared order.
func (s *TableSchema) Columns() []ColumnDef { return s.columns }

// ColumnCount returns the number of columns.
func (s *TableSchema) ColumnCount() int { return len(s.columns) }

// Column returns the column at idx.
func (s *TableSchema) Column(idx int) ColumnDef { return s.columns[idx] }

// FindColumn returns the index of the column named name, or -1 if absent.
func (s *TableSchema) FindColumn(name string) int {
	for i, c := range s.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// NullBitmapSize returns ceil(column_count / 8).
func (s *TableSchema) NullBitmapSize() int { return s.nullBitmapSize }

// RecordSize returns the fixed number of bytes one serialized record
// occupies under this schema.
func (s *TableSchema) RecordSize() int { return s.recordSize }

// ColumnOffset returns the byte offset of column idx's payload within a
// serialized record (i.e. past the NULL bitmap and every earlier column).
func (s *TableSchema) ColumnOffset(idx int) int {
	off := s.nullBitmapSize
	for i := 0; i < idx; i++ {
		off += s.columns[i].Type.Size()
	}
	return off
}

// ValidateRecord checks that values matches this schema: the right column
// count, no NULL in a NOT NULL column, and type-compatible values.
func (s *TableSchema) ValidateRecord(values []Value) error {
	if len(values) != len(s.columns) {
		return fmt.Errorf("record: got %d values, schema %q has %d columns: %w", len(values), s.tableName, len(s.columns), ErrInvalidRecord)
	}
	for i, v := range values {
		col := s.columns[i]
		if v.IsNull() {
			if col.NotNull {
				return fmt.Errorf("record: column %q is NOT NULL: %w", col.Name, ErrInvalidRecord)
			}
			continue
		}
		if !v.matchesType(col.Type) {
			return fmt.Errorf("record: %w", &TypeMismatchError{Expected: col.Type, Column: col.Name})
		}
	}
	return nil
}
