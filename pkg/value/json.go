package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// wireValue is the JSON-tagged form of Value used for node/edge/vector
// record persistence (property maps are stored as JSON). Kind is spelled
// out as
// a short string rather than the numeric Kind so records stay readable
// across schema versions.
type wireValue struct {
	K string          `json:"k"`
	V json.RawMessage `json:"v,omitempty"`
}

var kindWireName = map[Kind]string{
	KindNull: "null", KindEmpty: "empty", KindBool: "bool",
	KindInt8: "i8", KindInt16: "i16", KindInt32: "i32", KindInt64: "i64", KindInt128: "i128",
	KindUint8: "u8", KindUint16: "u16", KindUint32: "u32", KindUint64: "u64", KindUint128: "u128",
	KindFloat32: "f32", KindFloat64: "f64", KindString: "str", KindTime: "time",
	KindBytes: "bytes", KindArray: "arr", KindObject: "obj",
}

var wireNameKind = func() map[string]Kind {
	m := make(map[string]Kind, len(kindWireName))
	for k, v := range kindWireName {
		m[v] = k
	}
	return m
}()

func (v Value) MarshalJSON() ([]byte, error) {
	name, ok := kindWireName[v.Kind]
	if !ok {
		return nil, fmt.Errorf("value: unknown kind %d", v.Kind)
	}

	var payload any
	switch v.Kind {
	case KindNull, KindEmpty:
		return json.Marshal(wireValue{K: name})
	case KindBool:
		payload = v.b
	case KindInt8, KindInt16, KindInt32, KindInt64:
		payload = v.i64
	case KindInt128:
		payload = v.i128
	case KindUint8, KindUint16, KindUint32, KindUint64:
		payload = v.u64
	case KindUint128:
		payload = v.u128
	case KindFloat32:
		payload = v.f32
	case KindFloat64:
		payload = v.f64
	case KindString:
		payload = v.str
	case KindTime:
		payload = v.t.Format(time.RFC3339Nano)
	case KindBytes:
		payload = base64.StdEncoding.EncodeToString(v.byts)
	case KindArray:
		payload = v.arr
	case KindObject:
		payload = v.obj
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{K: name, V: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	kind, ok := wireNameKind[w.K]
	if !ok {
		return fmt.Errorf("value: unknown wire kind %q", w.K)
	}

	switch kind {
	case KindNull:
		*v = Null()
	case KindEmpty:
		*v = Empty()
	case KindBool:
		var b bool
		if err := json.Unmarshal(w.V, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		var i int64
		if err := json.Unmarshal(w.V, &i); err != nil {
			return err
		}
		v.Kind, v.i64 = kind, i
	case KindInt128:
		var i Int128
		if err := json.Unmarshal(w.V, &i); err != nil {
			return err
		}
		*v = Int128Value(i)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		var u uint64
		if err := json.Unmarshal(w.V, &u); err != nil {
			return err
		}
		v.Kind, v.u64 = kind, u
	case KindUint128:
		var u Uint128
		if err := json.Unmarshal(w.V, &u); err != nil {
			return err
		}
		*v = Uint128Value(u)
	case KindFloat32:
		var f float32
		if err := json.Unmarshal(w.V, &f); err != nil {
			return err
		}
		*v = Float32(f)
	case KindFloat64:
		var f float64
		if err := json.Unmarshal(w.V, &f); err != nil {
			return err
		}
		*v = Float64(f)
	case KindString:
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return err
		}
		*v = String(s)
	case KindTime:
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*v = Time(t)
	case KindBytes:
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return err
		}
		*v = Bytes(b)
	case KindArray:
		var arr []Value
		if err := json.Unmarshal(w.V, &arr); err != nil {
			return err
		}
		*v = Array(arr)
	case KindObject:
		var obj map[string]Value
		if err := json.Unmarshal(w.V, &obj); err != nil {
			return err
		}
		*v = Object(obj)
	}

	return nil
}
