// ABOUTME: Order-preserving tuple encoding for keys and record values
// ABOUTME: Keys of one table sort by their columns left to right

package storage

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Value types
const (
	TYPE_BYTES  = 1
	TYPE_INT64  = 2
	TYPE_UINT64 = 3
	TYPE_TIME   = 4 // Unix nanoseconds, sign-flipped
	TYPE_NULL   = 5 // Absent optional column
)

// Value is one column of an encoded tuple
type Value struct {
	Type uint8
	Str  []byte
	I64  int64
	U64  uint64
	Time time.Time
}

// NewBytesValue creates a bytes value
func NewBytesValue(data []byte) Value {
	return Value{Type: TYPE_BYTES, Str: data}
}

// NewStringValue creates a bytes value from a string
func NewStringValue(s string) Value {
	return Value{Type: TYPE_BYTES, Str: []byte(s)}
}

// NewOptionalString encodes nil as TYPE_NULL
func NewOptionalString(s *string) Value {
	if s == nil {
		return Value{Type: TYPE_NULL}
	}
	return NewStringValue(*s)
}

// NewInt64Value creates an int64 value
func NewInt64Value(i int64) Value {
	return Value{Type: TYPE_INT64, I64: i}
}

// NewUint64Value creates a uint64 value
func NewUint64Value(u uint64) Value {
	return Value{Type: TYPE_UINT64, U64: u}
}

// NewTimeValue creates a time value
func NewTimeValue(t time.Time) Value {
	return Value{Type: TYPE_TIME, Time: t}
}

// NewOptionalTime encodes nil as TYPE_NULL
func NewOptionalTime(t *time.Time) Value {
	if t == nil {
		return Value{Type: TYPE_NULL}
	}
	return NewTimeValue(*t)
}

// IsNull reports whether the value is an absent optional column
func (v Value) IsNull() bool {
	return v.Type == TYPE_NULL
}

// String returns the bytes column as a string
func (v Value) String() string {
	return string(v.Str)
}

// OptionalString returns nil for TYPE_NULL
func (v Value) OptionalString() *string {
	if v.IsNull() {
		return nil
	}
	s := string(v.Str)
	return &s
}

// OptionalTime returns nil for TYPE_NULL
func (v Value) OptionalTime() *time.Time {
	if v.IsNull() {
		return nil
	}
	t := v.Time
	return &t
}

// EncodeValues encodes values in order-preserving format.
// Every column starts with its type tag.
func EncodeValues(vals []Value) []byte {
	out := make([]byte, 0, 64)
	for _, v := range vals {
		out = append(out, v.Type)

		switch v.Type {
		case TYPE_INT64:
			out = binary.BigEndian.AppendUint64(out, uint64(v.I64)+(1<<63))

		case TYPE_UINT64:
			out = binary.BigEndian.AppendUint64(out, v.U64)

		case TYPE_TIME:
			out = binary.BigEndian.AppendUint64(out, uint64(v.Time.UnixNano())+(1<<63))

		case TYPE_BYTES:
			out = append(out, escapeString(v.Str)...)
			out = append(out, 0)

		case TYPE_NULL:

		default:
			panic(fmt.Sprintf("unknown type: %d", v.Type))
		}
	}
	return out
}

// escapeString removes 0x00 from s so it can be null-terminated.
// 0x00 becomes 0x01 0x01 and 0x01 becomes 0x01 0x02, which keeps ordering.
func escapeString(s []byte) []byte {
	escapes := 0
	for _, b := range s {
		if b <= 1 {
			escapes++
		}
	}
	if escapes == 0 {
		return s
	}

	out := make([]byte, 0, len(s)+escapes)
	for _, b := range s {
		if b <= 1 {
			out = append(out, 0x01, b+1)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// unescapeString reverses escapeString
func unescapeString(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 0x01 && i+1 < len(s) {
			out = append(out, s[i+1]-1)
			i++
		} else {
			out = append(out, s[i])
		}
	}
	return out
}

// DecodeValues decodes values produced by EncodeValues
func DecodeValues(data []byte) ([]Value, error) {
	vals := make([]Value, 0, 8)
	pos := 0

	for pos < len(data) {
		typ := data[pos]
		pos++

		switch typ {
		case TYPE_INT64:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("incomplete int64 at pos %d", pos)
			}
			u := binary.BigEndian.Uint64(data[pos : pos+8])
			vals = append(vals, NewInt64Value(int64(u-(1<<63))))
			pos += 8

		case TYPE_UINT64:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("incomplete uint64 at pos %d", pos)
			}
			vals = append(vals, NewUint64Value(binary.BigEndian.Uint64(data[pos:pos+8])))
			pos += 8

		case TYPE_TIME:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("incomplete time at pos %d", pos)
			}
			u := binary.BigEndian.Uint64(data[pos : pos+8])
			vals = append(vals, NewTimeValue(time.Unix(0, int64(u-(1<<63))).UTC()))
			pos += 8

		case TYPE_BYTES:
			end := pos
			for end < len(data) && data[end] != 0 {
				end++
			}
			if end >= len(data) {
				return nil, fmt.Errorf("unterminated string at pos %d", pos)
			}
			vals = append(vals, NewBytesValue(unescapeString(data[pos:end])))
			pos = end + 1

		case TYPE_NULL:
			vals = append(vals, Value{Type: TYPE_NULL})

		default:
			return nil, fmt.Errorf("unknown type: %d at pos %d", typ, pos-1)
		}
	}

	return vals, nil
}

// EncodeKey encodes a composite key with a 4-byte table prefix
func EncodeKey(prefix uint32, vals ...Value) []byte {
	out := binary.BigEndian.AppendUint32(make([]byte, 0, 64), prefix)
	return append(out, EncodeValues(vals)...)
}

// ExtractPrefix extracts the table prefix from an encoded key
func ExtractPrefix(key []byte) uint32 {
	if len(key) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(key[:4])
}

// ExtractValues decodes the columns of an encoded key
func ExtractValues(key []byte) ([]Value, error) {
	if len(key) < 4 {
		return nil, fmt.Errorf("key too short")
	}
	return DecodeValues(key[4:])
}
