// Package graph maintains the node and edge records, their adjacency and
// secondary indices, and schema validation on every write.
//
// All methods operate inside a caller-owned kv.Txn, so a handler can compose
// graph mutations with vector and full-text updates and commit them
// atomically.
package graph

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

// Node is a stored node record.
type Node struct {
	ID         ids.ID
	Label      string
	Properties value.PropertyMap
}

// Edge is a stored edge record.
type Edge struct {
	ID         ids.ID
	Label      string
	From       ids.ID
	To         ids.ID
	Properties value.PropertyMap
}

// Direction selects which adjacency index a traversal walks.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

// Record layout. Both records lead with the label so readers can route on it
// before decoding properties:
//
//	node: labelLen (2B) | label | JSON(properties)
//	edge: labelLen (2B) | label | fromID (16B) | toID (16B) | JSON(properties)

func encodeNode(n *Node) ([]byte, error) {
	props, err := json.Marshal(n.Properties)
	if err != nil {
		return nil, kerr.Wrap(kerr.InvalidEncoding, "encoding node properties", err)
	}
	buf := make([]byte, 2+len(n.Label)+len(props))
	binary.BigEndian.PutUint16(buf, uint16(len(n.Label)))
	copy(buf[2:], n.Label)
	copy(buf[2+len(n.Label):], props)
	return buf, nil
}

func decodeNode(id ids.ID, data []byte) (*Node, error) {
	if len(data) < 2 {
		return nil, kerr.New(kerr.InvalidEncoding, "node record too short")
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+n {
		return nil, kerr.New(kerr.InvalidEncoding, "node record label truncated")
	}
	node := &Node{ID: id, Label: string(data[2 : 2+n])}
	if err := json.Unmarshal(data[2+n:], &node.Properties); err != nil {
		return nil, kerr.Wrap(kerr.InvalidEncoding, "decoding node properties", err)
	}
	return node, nil
}

func encodeEdge(e *Edge) ([]byte, error) {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return nil, kerr.Wrap(kerr.InvalidEncoding, "encoding edge properties", err)
	}
	buf := make([]byte, 2+len(e.Label)+32+len(props))
	binary.BigEndian.PutUint16(buf, uint16(len(e.Label)))
	copy(buf[2:], e.Label)
	copy(buf[2+len(e.Label):], e.From[:])
	copy(buf[2+len(e.Label)+16:], e.To[:])
	copy(buf[2+len(e.Label)+32:], props)
	return buf, nil
}

func decodeEdge(id ids.ID, data []byte) (*Edge, error) {
	if len(data) < 2 {
		return nil, kerr.New(kerr.InvalidEncoding, "edge record too short")
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+n+32 {
		return nil, kerr.New(kerr.InvalidEncoding, "edge record endpoints truncated")
	}
	edge := &Edge{ID: id, Label: string(data[2 : 2+n])}
	copy(edge.From[:], data[2+n:2+n+16])
	copy(edge.To[:], data[2+n+16:2+n+32])
	if err := json.Unmarshal(data[2+n+32:], &edge.Properties); err != nil {
		return nil, kerr.Wrap(kerr.InvalidEncoding, "decoding edge properties", err)
	}
	return edge, nil
}

// indexValueBytes renders a Value into its canonical secondary-index byte
// form. Numerics collapse to one order-preserving 8-byte encoding so that
// 1 (i64) and 1.0 (f64) index identically; strings and bytes are raw; the
// leading tag byte keeps different non-numeric kinds from colliding.
func indexValueBytes(v value.Value) ([]byte, bool) {
	if f, ok := v.AsFloat64(); ok {
		bits := math.Float64bits(f)
		// Flip so that negative floats sort before positive ones.
		if bits>>63 == 1 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		out := make([]byte, 9)
		out[0] = 0x01
		binary.BigEndian.PutUint64(out[1:], bits)
		return out, true
	}
	if s, ok := v.AsString(); ok {
		return append([]byte{0x02}, s...), true
	}
	if b, ok := v.AsBool(); ok {
		if b {
			return []byte{0x03, 1}, true
		}
		return []byte{0x03, 0}, true
	}
	if t, ok := v.AsTime(); ok {
		out := make([]byte, 9)
		out[0] = 0x04
		binary.BigEndian.PutUint64(out[1:], uint64(t.UnixNano())^(1<<63))
		return out, true
	}
	if b, ok := v.AsBytes(); ok {
		return append([]byte{0x05}, b...), true
	}
	return nil, false
}
