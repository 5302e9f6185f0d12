// Package value provides the closed property-value sum type shared by nodes,
// edges, vector entries, and the traversal engine.
//
// Every property stored in the kernel, whether on a node, an edge, or
// carried through a traversal pipeline as a Scalar, is a Value. Keeping the sum
// closed (rather than passing around bare `any`) means every consumer in
// pkg/graph, pkg/traversal, and the storage codec can exhaustively switch on
// Kind instead of guessing at a dynamic type.
package value

import (
	"fmt"
	"time"
)

// Kind tags which variant of the sum a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindInt128 // carried as two 64-bit halves (hi, lo); see Int128
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindUint128
	KindFloat32
	KindFloat64
	KindString
	KindTime
	KindBytes
	KindArray
	KindObject
	KindEmpty // distinct from Null: "no value produced here", e.g. a failed projection
)

// Int128 holds a signed 128-bit integer as two 64-bit halves.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Uint128 holds an unsigned 128-bit integer as two 64-bit halves.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Value is the closed property-value sum: null, bool, signed/unsigned
// integers at every width up to 128 bits, float32/float64, string, a time
// instant, raw bytes, an array of Values, an object (string -> Value), and
// an empty marker. Exactly one of the typed fields is meaningful, selected
// by Kind; the others are zero.
type Value struct {
	Kind Kind

	b    bool
	i64  int64
	i128 Int128
	u64  uint64
	u128 Uint128
	f32  float32
	f64  float64
	str  string
	t    time.Time
	byts []byte
	arr  []Value
	obj  map[string]Value
}

func Null() Value                     { return Value{Kind: KindNull} }
func Empty() Value                    { return Value{Kind: KindEmpty} }
func Bool(b bool) Value               { return Value{Kind: KindBool, b: b} }
func Int8(i int8) Value               { return Value{Kind: KindInt8, i64: int64(i)} }
func Int16(i int16) Value             { return Value{Kind: KindInt16, i64: int64(i)} }
func Int32(i int32) Value             { return Value{Kind: KindInt32, i64: int64(i)} }
func Int64(i int64) Value             { return Value{Kind: KindInt64, i64: i} }
func Int128Value(v Int128) Value      { return Value{Kind: KindInt128, i128: v} }
func Uint8(u uint8) Value             { return Value{Kind: KindUint8, u64: uint64(u)} }
func Uint16(u uint16) Value           { return Value{Kind: KindUint16, u64: uint64(u)} }
func Uint32(u uint32) Value           { return Value{Kind: KindUint32, u64: uint64(u)} }
func Uint64(u uint64) Value           { return Value{Kind: KindUint64, u64: u} }
func Uint128Value(v Uint128) Value    { return Value{Kind: KindUint128, u128: v} }
func Float32(f float32) Value         { return Value{Kind: KindFloat32, f32: f} }
func Float64(f float64) Value         { return Value{Kind: KindFloat64, f64: f} }
func String(s string) Value           { return Value{Kind: KindString, str: s} }
func Time(t time.Time) Value          { return Value{Kind: KindTime, t: t} }
func Bytes(b []byte) Value            { return Value{Kind: KindBytes, byts: b} }
func Array(vs []Value) Value          { return Value{Kind: KindArray, arr: vs} }
func Object(m map[string]Value) Value { return Value{Kind: KindObject, obj: m} }

func (v Value) IsNull() bool  { return v.Kind == KindNull }
func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

// AsBool returns the bool payload; ok is false for any other Kind.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsString returns the string payload; ok is false for any other Kind.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsTime returns the time payload; ok is false for any other Kind.
func (v Value) AsTime() (time.Time, bool) {
	if v.Kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// AsBytes returns the bytes payload; ok is false for any other Kind.
func (v Value) AsBytes() ([]byte, bool) {
	if v.Kind != KindBytes {
		return nil, false
	}
	return v.byts, true
}

// AsArray returns the array payload; ok is false for any other Kind.
func (v Value) AsArray() ([]Value, bool) {
	if v.Kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsObject returns the object payload; ok is false for any other Kind.
func (v Value) AsObject() (map[string]Value, bool) {
	if v.Kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// IsNumeric reports whether the Kind is one of the integer or float variants.
func (v Value) IsNumeric() bool {
	switch v.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindInt128,
		KindUint8, KindUint16, KindUint32, KindUint64, KindUint128,
		KindFloat32, KindFloat64:
		return true
	default:
		return false
	}
}

// AsFloat64 coerces any numeric Kind to float64 for comparisons and math
// expressions. 128-bit integers lose precision beyond 2^53, same
// as any other float64 coercion of a wide integer; acceptable here because
// math expressions operate on scalars, not exact wide arithmetic.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return float64(v.i64), true
	case KindInt128:
		return float64(v.i128.Hi)*18446744073709551616.0 + float64(v.i128.Lo), true
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return float64(v.u64), true
	case KindUint128:
		return float64(v.u128.Hi)*18446744073709551616.0 + float64(v.u128.Lo), true
	case KindFloat32:
		return float64(v.f32), true
	case KindFloat64:
		return v.f64, true
	default:
		return 0, false
	}
}

// String renders a human-readable form, used for log lines and error
// messages, not for wire encoding.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindEmpty:
		return "<empty>"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%d", v.i64)
	case KindInt128:
		return fmt.Sprintf("i128(hi=%d,lo=%d)", v.i128.Hi, v.i128.Lo)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return fmt.Sprintf("%d", v.u64)
	case KindUint128:
		return fmt.Sprintf("u128(hi=%d,lo=%d)", v.u128.Hi, v.u128.Lo)
	case KindFloat32:
		return fmt.Sprintf("%g", v.f32)
	case KindFloat64:
		return fmt.Sprintf("%g", v.f64)
	case KindString:
		return v.str
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.byts))
	case KindArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	case KindObject:
		return fmt.Sprintf("object(%d)", len(v.obj))
	default:
		return "<unknown>"
	}
}

// PropertyMap is the string -> Value map carried by nodes and edges.
type PropertyMap map[string]Value

// Clone makes a shallow copy safe to mutate independently, used by
// update/merge operations so a caller's map can't alias stored state.
func (p PropertyMap) Clone() PropertyMap {
	out := make(PropertyMap, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
