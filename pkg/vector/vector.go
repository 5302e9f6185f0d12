// Package vector maintains a persisted hierarchical navigable small-world
// (HNSW) graph per vector label for approximate nearest-neighbour search.
//
// The whole structure lives in the key-value layer: entries in vector_data,
// layer membership in vector_layer, and the adjacency lists in vector_links.
// Traversal is by ID lookup, never by in-memory references, so persistence
// and crash recovery come for free from the transactional store.
//
// Deletion is soft. A deleted entry keeps its links so the small-world graph
// stays navigable, but is never returned by search and never chosen as an
// entry point.
package vector

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	vmath "github.com/helixkernel/kernel/pkg/math/vector"
	"github.com/helixkernel/kernel/pkg/value"
)

// DistanceKind selects the metric the index is built with.
type DistanceKind uint8

const (
	// SquaredEuclidean is the default metric.
	SquaredEuclidean DistanceKind = iota
	// Cosine is available when vectors are unit-normalized; the index
	// normalizes on insert and on query.
	Cosine
)

// Params are the per-label HNSW construction parameters. Values outside the
// documented ranges are clamped at construction.
type Params struct {
	M              int          `json:"m"`               // neighbours per node per layer
	MMax0          int          `json:"m_max_0"`         // neighbours at layer 0
	EfConstruction int          `json:"ef_construction"` // candidate pool during insert
	EfSearch       int          `json:"ef_search"`       // default candidate pool during search
	ML             float64      `json:"m_l"`             // level-assignment scale
	Distance       DistanceKind `json:"distance"`
}

// DefaultParams returns the documented defaults: m=16, ef_construction=128,
// ef_search=768 with caller override.
func DefaultParams() Params {
	p := Params{M: 16, EfConstruction: 128, EfSearch: 768}
	return p.clamp()
}

// clamp bounds every parameter to its legal range and derives MMax0 and ML.
func (p Params) clamp() Params {
	if p.M < 5 {
		p.M = 5
	} else if p.M > 48 {
		p.M = 48
	}
	if p.EfConstruction < 40 {
		p.EfConstruction = 40
	} else if p.EfConstruction > 512 {
		p.EfConstruction = 512
	}
	if p.EfSearch < 10 {
		p.EfSearch = 10
	}
	p.MMax0 = 2 * p.M
	p.ML = 1.0 / math.Log(float64(p.M))
	return p
}

// Entry is one stored vector record.
type Entry struct {
	ID         ids.ID
	Label      string
	Data       []float32
	Level      int
	Distance   float32 // filled only during search
	Deleted    bool
	Properties value.PropertyMap
}

// Record layout for vector_data:
//
//	labelLen (2B) | label | flags (1B) | level (1B) | dim (4B) | dim × f32 | JSON(properties)
//
// Every segment boundary is validated on decode; a truncated record fails
// with InvalidVectorData, never a panic.

const flagDeleted = byte(0x01)

func encodeEntry(e *Entry) ([]byte, error) {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return nil, kerr.Wrap(kerr.InvalidVectorData, "encoding vector properties", err)
	}
	buf := make([]byte, 2+len(e.Label)+1+1+4+4*len(e.Data)+len(props))
	binary.BigEndian.PutUint16(buf, uint16(len(e.Label)))
	off := 2 + copy(buf[2:], e.Label)
	if e.Deleted {
		buf[off] = flagDeleted
	}
	buf[off+1] = byte(e.Level)
	binary.BigEndian.PutUint32(buf[off+2:], uint32(len(e.Data)))
	off += 6
	for _, f := range e.Data {
		binary.BigEndian.PutUint32(buf[off:], math.Float32bits(f))
		off += 4
	}
	copy(buf[off:], props)
	return buf, nil
}

func decodeEntry(id ids.ID, data []byte) (*Entry, error) {
	if len(data) < 2 {
		return nil, kerr.New(kerr.InvalidVectorData, "vector record too short")
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+n+6 {
		return nil, kerr.New(kerr.InvalidVectorData, "vector record header truncated")
	}
	e := &Entry{ID: id, Label: string(data[2 : 2+n])}
	off := 2 + n
	e.Deleted = data[off]&flagDeleted != 0
	e.Level = int(data[off+1])
	dim := int(binary.BigEndian.Uint32(data[off+2:]))
	off += 6
	if len(data) < off+4*dim {
		return nil, kerr.New(kerr.InvalidVectorData, "vector data truncated")
	}
	e.Data = make([]float32, dim)
	for i := range e.Data {
		e.Data[i] = math.Float32frombits(binary.BigEndian.Uint32(data[off:]))
		off += 4
	}
	if err := json.Unmarshal(data[off:], &e.Properties); err != nil {
		return nil, kerr.Wrap(kerr.InvalidVectorData, "decoding vector properties", err)
	}
	return e, nil
}

// distance computes the configured metric. Inputs are assumed
// dimension-checked by the caller.
func (p Params) distance(a, b []float32) float32 {
	if p.Distance == Cosine {
		return vmath.CosineDistance(a, b)
	}
	return vmath.SquaredEuclidean(a, b)
}
