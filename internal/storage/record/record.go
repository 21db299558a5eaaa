package record

import "fmt"

// RecordId addresses one live record inside a heap file by the page it
// lives on and its slot within that page. It is stable across updates
// (records are fixed-length and updated in place) and invalidated only by
// an explicit delete.
type RecordId struct {
	PageID uint32
	SlotID int
}

// Record is a fixed-width ordered tuple of values matching a TableSchema's
// column sequence.
type Record struct {
	Values []Value
}

// NewRecord constructs a Record from values in column order.
func NewRecord(values ...Value) Record {
	return Record{Values: values}
}

// Serialize encodes r into exactly schema.RecordSize() bytes: a NULL
// bitmap followed by each column's fixed-width payload in declared order.
func (r Record) Serialize(schema *TableSchema) ([]byte, error) {
	if err := schema.ValidateRecord(r.Values); err != nil {
		return nil, err
	}

	buf := make([]byte, schema.RecordSize())
	bitmap := buf[:schema.NullBitmapSize()]
	for i, v := range r.Values {
		if v.IsNull() {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}

	for i, v := range r.Values {
		col := schema.Column(i)
		off := schema.ColumnOffset(i)
		payload, err := v.Serialize(col.Type)
		if err != nil {
			return nil, err
		}
		copy(buf[off:off+col.Type.Size()], payload)
	}
	return buf, nil
}

// Deserialize decodes data (exactly schema.RecordSize() bytes) into a
// Record.
func Deserialize(data []byte, schema *TableSchema) (Record, error) {
	if len(data) != schema.RecordSize() {
		return Record{}, fmt.Errorf("record: deserialize %q: got %d bytes, want %d: %w", schema.TableName(), len(data), schema.RecordSize(), ErrSchemaMismatch)
	}
	bitmap := data[:schema.NullBitmapSize()]

	values := make([]Value, schema.ColumnCount())
	for i := 0; i < schema.ColumnCount(); i++ {
		col := schema.Column(i)
		off := schema.ColumnOffset(i)
		isNull := bitmap[i/8]&(1<<uint(i%8)) != 0
		v, err := DeserializeValue(data[off:off+col.Type.Size()], col.Type, isNull)
		if err != nil {
			return Record{}, err
		}
		values[i] = v
	}
	return Record{Values: values}, nil
}
