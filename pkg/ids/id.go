// Package ids generates and packs the 128-bit identifiers used for every
// node, edge, and vector entry in the kernel.
//
// IDs are time-ordered v6 UUIDs so that their big-endian byte packing sorts
// lexicographically in insertion order, the property every key scheme in
// pkg/kv's sub-stores relies on. NewV4/NewRandom would scatter inserts
// across the keyspace and defeat range scans.
package ids

import (
	"github.com/google/uuid"

	"github.com/helixkernel/kernel/pkg/kerr"
)

// ID is an opaque 128-bit identifier, stored as its raw 16-byte form.
type ID [16]byte

// Zero is the all-zero ID, never assigned by New and used as a sentinel for
// "no ID" in call sites that would otherwise need a pointer or a bool.
var Zero ID

// New generates a fresh time-ordered ID.
func New() ID {
	u, err := uuid.NewV6()
	if err != nil {
		// NewV6 only fails if the process-wide node/clock sequence state
		// can't be read, which indicates a broken runtime, not bad input.
		panic("ids: failed to generate v6 uuid: " + err.Error())
	}
	return ID(u)
}

// Bytes returns the 16-byte big-endian form used directly as a key segment.
func (id ID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

// String renders the canonical hyphenated UUID form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// FromBytes decodes a 16-byte slice into an ID. Returns InvalidKey if b is
// not exactly 16 bytes, so a malformed or truncated key segment never
// silently becomes a different ID.
func FromBytes(b []byte) (ID, error) {
	if len(b) != 16 {
		return Zero, kerr.New(kerr.InvalidKey, "id must be 16 bytes")
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// Parse decodes a canonical hyphenated UUID string into an ID.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Zero, kerr.Wrap(kerr.InvalidKey, "malformed id string", err)
	}
	return ID(u), nil
}

// IsZero reports whether id is the unset sentinel.
func (id ID) IsZero() bool { return id == Zero }
