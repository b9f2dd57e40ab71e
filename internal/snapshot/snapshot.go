// Package snapshot captures a whole table row as an ordered column -> scalar
// mapping, encodes it losslessly, and projects it back onto whatever columns a
// table has at restore time.
package snapshot

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iancoleman/orderedmap"
)

// Kind is the scalar type held by a Value.
type Kind string

const (
	Null   Kind = "null"
	Int    Kind = "int"
	Float  Kind = "float"
	String Kind = "string"
	Bytes  Kind = "bytes"
	Time   Kind = "time"
)

// Value is a generic scalar.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
	Bytes []byte
	Time  time.Time
}

func NullValue() Value            { return Value{Kind: Null} }
func IntValue(v int64) Value      { return Value{Kind: Int, Int: v} }
func FloatValue(v float64) Value  { return Value{Kind: Float, Float: v} }
func StringValue(v string) Value  { return Value{Kind: String, Str: v} }
func BytesValue(v []byte) Value   { return Value{Kind: Bytes, Bytes: v} }
func TimeValue(v time.Time) Value { return Value{Kind: Time, Time: v} }

// FromDriver converts a value scanned by database/sql into a Value.
// Byte slices stay bytes so binary columns survive; drivers that return text
// as bytes accept them back for text columns.
func FromDriver(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullValue()
	case int64:
		return IntValue(x)
	case int32:
		return IntValue(int64(x))
	case int:
		return IntValue(int64(x))
	case uint64:
		return IntValue(int64(x))
	case float64:
		return FloatValue(x)
	case float32:
		return FloatValue(float64(x))
	case bool:
		if x {
			return IntValue(1)
		}
		return IntValue(0)
	case []byte:
		return BytesValue(bytes.Clone(x))
	case string:
		return StringValue(x)
	case time.Time:
		return TimeValue(x)
	default:
		return StringValue(fmt.Sprint(x))
	}
}

// Driver returns the value in a form database/sql can bind.
func (v Value) Driver() any {
	switch v.Kind {
	case Int:
		return v.Int
	case Float:
		return v.Float
	case String:
		return v.Str
	case Bytes:
		return v.Bytes
	case Time:
		return v.Time
	default:
		return nil
	}
}

// Field is one column of a captured row.
type Field struct {
	Column string
	Value  Value
}

// Snapshot is a captured row in column order.
type Snapshot struct {
	Fields []Field
}

// Capture builds a Snapshot from parallel column and raw value slices.
func Capture(cols []string, vals []any) (Snapshot, error) {
	if len(cols) != len(vals) {
		return Snapshot{}, fmt.Errorf("capture: %d columns, %d values", len(cols), len(vals))
	}
	s := Snapshot{Fields: make([]Field, len(cols))}
	for i, c := range cols {
		s.Fields[i] = Field{Column: c, Value: FromDriver(vals[i])}
	}
	return s, nil
}

// Get returns the value of column, matching names case-insensitively.
func (s Snapshot) Get(column string) (Value, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Column, column) {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Project keeps only the fields whose column is in live, in snapshot order,
// renamed to the live spelling. Fields for dropped columns are discarded.
func (s Snapshot) Project(live []string) Snapshot {
	names := make(map[string]string, len(live))
	for _, c := range live {
		names[strings.ToLower(c)] = c
	}
	out := Snapshot{}
	for _, f := range s.Fields {
		if name, ok := names[strings.ToLower(f.Column)]; ok {
			out.Fields = append(out.Fields, Field{Column: name, Value: f.Value})
		}
	}
	return out
}

// Columns and Values split the snapshot for an INSERT.
func (s Snapshot) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Column
	}
	return cols
}

func (s Snapshot) Values() []any {
	vals := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		vals[i] = f.Value.Driver()
	}
	return vals
}

type wireField struct {
	Column string `json:"column"`
	Type   Kind   `json:"type"`
	Value  any    `json:"value"`
}

// Encode serialises s. Integers and floats round-trip exactly, bytes are
// base64 and times RFC 3339 with nanoseconds and offset.
func Encode(s Snapshot) (string, error) {
	wire := make([]wireField, len(s.Fields))
	for i, f := range s.Fields {
		wire[i] = wireField{Column: f.Column, Type: f.Value.Kind, Value: f.Value.Driver()}
		if f.Value.Kind == Bytes {
			wire[i].Value = base64.StdEncoding.EncodeToString(f.Value.Bytes)
		}
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

var errEmpty = errors.New("empty snapshot")

// Decode parses a string produced by Encode.
func Decode(data string) (Snapshot, error) {
	if strings.TrimSpace(data) == "" {
		return Snapshot{}, errEmpty
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var wire []wireField
	if err := dec.Decode(&wire); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(wire) == 0 {
		return Snapshot{}, errEmpty
	}
	s := Snapshot{Fields: make([]Field, len(wire))}
	for i, w := range wire {
		if w.Column == "" {
			return Snapshot{}, fmt.Errorf("decode snapshot: field %d has no column", i)
		}
		v, err := decodeValue(w)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot: column %s: %w", w.Column, err)
		}
		s.Fields[i] = Field{Column: w.Column, Value: v}
	}
	return s, nil
}

func decodeValue(w wireField) (Value, error) {
	switch w.Type {
	case Null:
		return NullValue(), nil
	case Int:
		n, ok := w.Value.(json.Number)
		if !ok {
			return Value{}, fmt.Errorf("int value %v", w.Value)
		}
		i, err := n.Int64()
		if err != nil {
			return Value{}, err
		}
		return IntValue(i), nil
	case Float:
		n, ok := w.Value.(json.Number)
		if !ok {
			return Value{}, fmt.Errorf("float value %v", w.Value)
		}
		f, err := n.Float64()
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case String:
		str, ok := w.Value.(string)
		if !ok {
			return Value{}, fmt.Errorf("string value %v", w.Value)
		}
		return StringValue(str), nil
	case Bytes:
		str, ok := w.Value.(string)
		if !ok {
			return Value{}, fmt.Errorf("bytes value %v", w.Value)
		}
		b, err := base64.StdEncoding.DecodeString(str)
		if err != nil {
			return Value{}, err
		}
		return BytesValue(b), nil
	case Time:
		str, ok := w.Value.(string)
		if !ok {
			return Value{}, fmt.Errorf("time value %v", w.Value)
		}
		tm, err := time.Parse(time.RFC3339Nano, str)
		if err != nil {
			return Value{}, err
		}
		return TimeValue(tm), nil
	}
	return Value{}, fmt.Errorf("unknown type %q", w.Type)
}

// OrderedMap renders s as a JSON object that keeps column order.
// Bytes that are valid UTF-8 are shown as text, others as base64.
func (s Snapshot) OrderedMap() *orderedmap.OrderedMap {
	o := orderedmap.New()
	for _, f := range s.Fields {
		v := f.Value.Driver()
		if f.Value.Kind == Bytes && utf8.Valid(f.Value.Bytes) {
			v = string(f.Value.Bytes)
		}
		o.Set(f.Column, v)
	}
	return o
}
