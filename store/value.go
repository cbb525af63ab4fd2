package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Value is the closed set of types a StorageEntry may hold: signed integer,
// IEEE-754 double, boolean, UTF-8 string, or raw bytes. Kept as a concrete
// struct rather than a bare `any` so ForgetfulStorage and ARCStorage never
// need to type-switch on arbitrary interfaces, and so Server.Set's type
// check (spec.md §4.6, §9) has one place to live.
type Value struct {
	kind  kind
	i     int64
	f     float64
	b     bool
	s     string
	bytes []byte
}

type kind uint8

const (
	kindInt kind = iota
	kindFloat
	kindBool
	kindString
	kindBytes
)

func Int(v int64) Value      { return Value{kind: kindInt, i: v} }
func Float(v float64) Value  { return Value{kind: kindFloat, f: v} }
func Bool(v bool) Value      { return Value{kind: kindBool, b: v} }
func String(v string) Value  { return Value{kind: kindString, s: v} }
func Bytes(v []byte) Value   { return Value{kind: kindBytes, bytes: append([]byte(nil), v...)} }

// FromAny converts a Go value of one of the five supported dynamic types
// into a Value, returning ok=false for anything else (spec.md's
// BadValueType taxonomy).
func FromAny(v any) (Value, bool) {
	switch x := v.(type) {
	case int64:
		return Int(x), true
	case int:
		return Int(int64(x)), true
	case float64:
		return Float(x), true
	case bool:
		return Bool(x), true
	case string:
		return String(x), true
	case []byte:
		return Bytes(x), true
	default:
		return Value{}, false
	}
}

// Any returns the value as a Go `any`, reversing FromAny.
func (v Value) Any() any {
	switch v.kind {
	case kindInt:
		return v.i
	case kindFloat:
		return v.f
	case kindBool:
		return v.b
	case kindString:
		return v.s
	case kindBytes:
		return append([]byte(nil), v.bytes...)
	default:
		return nil
	}
}

func (v Value) String() string {
	return fmt.Sprintf("%v", v.Any())
}

// wireValue mirrors Value with exported fields, since gob only encodes
// exported struct fields and Value's fields are kept private to close its
// dynamic-type set off from callers.
type wireValue struct {
	Kind  kind
	I     int64
	F     float64
	B     bool
	S     string
	Bytes []byte
}

// GobEncode implements gob.GobEncoder so Value can cross the wire in rpc
// messages despite its fields being unexported.
func (v Value) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	w := wireValue{Kind: v.kind, I: v.i, F: v.f, B: v.b, S: v.s, Bytes: v.bytes}
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (v *Value) GobDecode(data []byte) error {
	var w wireValue
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	v.kind, v.i, v.f, v.b, v.s, v.bytes = w.Kind, w.I, w.F, w.B, w.S, w.Bytes
	return nil
}

// Equal reports whether two values have the same dynamic type and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case kindInt:
		return v.i == other.i
	case kindFloat:
		return v.f == other.f
	case kindBool:
		return v.b == other.b
	case kindString:
		return v.s == other.s
	case kindBytes:
		if len(v.bytes) != len(other.bytes) {
			return false
		}
		for i := range v.bytes {
			if v.bytes[i] != other.bytes[i] {
				return false
			}
		}
		return true
	}
	return false
}
