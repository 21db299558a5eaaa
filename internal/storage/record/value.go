package record

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ───────────────────────────────────────────────────────────────────────────
// DataType
// ───────────────────────────────────────────────────────────────────────────

// Kind identifies which of the three primitive column types a DataType
// represents.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindChar
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindChar:
		return "CHAR"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DataType describes one column's on-disk type. CharLen is meaningful only
// when Kind == KindChar.
type DataType struct {
	Kind    Kind
	CharLen int
}

func (d DataType) String() string {
	if d.Kind == KindChar {
		return fmt.Sprintf("CHAR(%d)", d.CharLen)
	}
	return d.Kind.String()
}

// Int returns the INT data type (4-byte little-endian signed integer).
func Int() DataType { return DataType{Kind: KindInt} }

// Float returns the FLOAT data type (8-byte IEEE-754 double).
func Float() DataType { return DataType{Kind: KindFloat} }

// Char returns the CHAR(n) data type: n bytes of zero-padded UTF-8.
func Char(n int) DataType { return DataType{Kind: KindChar, CharLen: n} }

// Size returns the fixed number of bytes this type occupies in a record's
// wire form, independent of whether the value is NULL.
func (d DataType) Size() int {
	switch d.Kind {
	case KindInt:
		return 4
	case KindFloat:
		return 8
	case KindChar:
		return d.CharLen
	default:
		return 0
	}
}

// ───────────────────────────────────────────────────────────────────────────
// Value
// ───────────────────────────────────────────────────────────────────────────

// ValueKind tags which variant a Value currently holds.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueInt
	ValueFloat
	ValueString
)

// Value is a tagged union over the four legal column values: a signed
// 32-bit integer, a double, a UTF-8 string, or NULL. Exactly the field
// matching Kind is meaningful.
type Value struct {
	Kind ValueKind
	Int  int32
	Flt  float64
	Str  string
}

// NullValue constructs the NULL value.
func NullValue() Value { return Value{Kind: ValueNull} }

// IntValue constructs an INT value.
func IntValue(v int32) Value { return Value{Kind: ValueInt, Int: v} }

// FloatValue constructs a FLOAT value.
func FloatValue(v float64) Value { return Value{Kind: ValueFloat, Flt: v} }

// StringValue constructs a string value destined for a CHAR column.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// IsNull reports whether v holds NULL.
func (v Value) IsNull() bool { return v.Kind == ValueNull }

// matchesType reports whether v's variant is compatible with dt, treating
// NULL as compatible with every type.
func (v Value) matchesType(dt DataType) bool {
	switch v.Kind {
	case ValueNull:
		return true
	case ValueInt:
		return dt.Kind == KindInt
	case ValueFloat:
		return dt.Kind == KindFloat
	case ValueString:
		return dt.Kind == KindChar
	default:
		return false
	}
}

// Serialize encodes v into exactly dt.Size() bytes. A NULL value produces
// an all-zero payload; the NULL-ness itself is recorded by the caller in
// the record's NULL bitmap, not in this payload.
func (v Value) Serialize(dt DataType) ([]byte, error) {
	buf := make([]byte, dt.Size())
	if v.IsNull() {
		return buf, nil
	}
	if !v.matchesType(dt) {
		return nil, fmt.Errorf("record: serialize value kind %d as %v: %w", v.Kind, dt, ErrInvalidRecord)
	}

	switch dt.Kind {
	case KindInt:
		binary.LittleEndian.PutUint32(buf, uint32(v.Int))
	case KindFloat:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.Flt))
	case KindChar:
		s := v.Str
		if len(s) > dt.CharLen {
			return nil, fmt.Errorf("record: string %q exceeds CHAR(%d): %w", s, dt.CharLen, ErrInvalidRecord)
		}
		copy(buf, s)
		// remaining bytes are already zero-padded
	}
	return buf, nil
}

// DeserializeValue decodes data (exactly dt.Size() bytes) back into a
// Value. If isNull is true, the returned Value is NULL regardless of the
// (zeroed) payload bytes.
func DeserializeValue(data []byte, dt DataType, isNull bool) (Value, error) {
	if len(data) != dt.Size() {
		return Value{}, fmt.Errorf("record: deserialize %v: got %d bytes, want %d: %w", dt, len(data), dt.Size(), ErrSchemaMismatch)
	}
	if isNull {
		return NullValue(), nil
	}

	switch dt.Kind {
	case KindInt:
		return IntValue(int32(binary.LittleEndian.Uint32(data))), nil
	case KindFloat:
		return FloatValue(math.Float64frombits(binary.LittleEndian.Uint64(data))), nil
	case KindChar:
		end := len(data)
		for i, b := range data {
			if b == 0 {
				end = i
				break
			}
		}
		return StringValue(string(data[:end])), nil
	default:
		return Value{}, fmt.Errorf("record: unknown data type kind %d", dt.Kind)
	}
}
