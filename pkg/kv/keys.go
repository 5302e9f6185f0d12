package kv

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
)

// Compound key packing. All segments are big-endian fixed-width (or, for the
// one variable-width segment, length-recoverable from the total), so that
// lexicographic key order matches logical order and every scheme can be
// validated by total length on decode.

const (
	idLen   = 16
	hashLen = 4

	adjKeyLen       = idLen + hashLen + idLen + idLen // anchor, labelHash, edge, other
	layerKeyLen     = 1 + idLen                       // layer, id
	linkKeyLen      = 1 + idLen + idLen               // level, id, neighbour
	secondaryFixed  = hashLen + hashLen + idLen       // labelHash, propHash, [value], id
	postingFixedLen = 2 + idLen                       // termLen, [term], docID
	docLenRecordLen = 4
	statsRecordLen  = 16
	linkValueLen    = 4
)

// LabelHash derives the fixed 4-byte hash used for label and property name
// segments. BLAKE2b keyed with nothing, truncated to 32 bits. Collisions are
// not detected here: adjacency and secondary-index range scans match on the
// hash alone and return every row that shares it.
func LabelHash(s string) uint32 {
	sum := blake2b.Sum256([]byte(s))
	return binary.BigEndian.Uint32(sum[:4])
}

// PackAdjacency builds an out_adj or in_adj key: the anchoring node first so
// prefix scans enumerate one node's incident edges, then the edge label hash,
// then the edge ID, then the far endpoint.
func PackAdjacency(anchor ids.ID, labelHash uint32, edge, other ids.ID) []byte {
	key := make([]byte, adjKeyLen)
	copy(key, anchor[:])
	binary.BigEndian.PutUint32(key[idLen:], labelHash)
	copy(key[idLen+hashLen:], edge[:])
	copy(key[idLen+hashLen+idLen:], other[:])
	return key
}

// AdjacencyPrefix builds the scan prefix for one node, optionally narrowed to
// one edge label.
func AdjacencyPrefix(anchor ids.ID, labelHash *uint32) []byte {
	if labelHash == nil {
		return anchor.Bytes()
	}
	key := make([]byte, idLen+hashLen)
	copy(key, anchor[:])
	binary.BigEndian.PutUint32(key[idLen:], *labelHash)
	return key
}

// UnpackAdjacency decodes an adjacency key, validating its total length.
func UnpackAdjacency(key []byte) (anchor ids.ID, labelHash uint32, edge, other ids.ID, err error) {
	if len(key) != adjKeyLen {
		err = kerr.New(kerr.InvalidKey, "adjacency key has wrong length")
		return
	}
	copy(anchor[:], key[:idLen])
	labelHash = binary.BigEndian.Uint32(key[idLen:])
	copy(edge[:], key[idLen+hashLen:])
	copy(other[:], key[idLen+hashLen+idLen:])
	return
}

// PackSecondary builds a secondary-index key: label hash, property hash, the
// canonical value bytes, then the entity ID. Value bytes are the only
// variable segment; their length is recovered as total minus the fixed parts.
func PackSecondary(labelHash, propHash uint32, valueBytes []byte, id ids.ID) []byte {
	key := make([]byte, secondaryFixed+len(valueBytes))
	binary.BigEndian.PutUint32(key, labelHash)
	binary.BigEndian.PutUint32(key[hashLen:], propHash)
	copy(key[2*hashLen:], valueBytes)
	copy(key[2*hashLen+len(valueBytes):], id[:])
	return key
}

// SecondaryPrefix builds the scan prefix for all IDs carrying one value.
func SecondaryPrefix(labelHash, propHash uint32, valueBytes []byte) []byte {
	key := make([]byte, 2*hashLen+len(valueBytes))
	binary.BigEndian.PutUint32(key, labelHash)
	binary.BigEndian.PutUint32(key[hashLen:], propHash)
	copy(key[2*hashLen:], valueBytes)
	return key
}

// UnpackSecondaryID extracts the trailing entity ID from a secondary-index
// key.
func UnpackSecondaryID(key []byte) (ids.ID, error) {
	if len(key) < secondaryFixed {
		return ids.Zero, kerr.New(kerr.InvalidKey, "secondary key too short")
	}
	return ids.FromBytes(key[len(key)-idLen:])
}

// PackLayer builds a vector_layer key: one layer byte then the vector ID, so
// a prefix scan of one layer byte enumerates that layer's members in ID
// order.
func PackLayer(layer uint8, id ids.ID) []byte {
	key := make([]byte, layerKeyLen)
	key[0] = layer
	copy(key[1:], id[:])
	return key
}

// UnpackLayer decodes a vector_layer key.
func UnpackLayer(key []byte) (uint8, ids.ID, error) {
	if len(key) != layerKeyLen {
		return 0, ids.Zero, kerr.New(kerr.InvalidKey, "layer key has wrong length")
	}
	id, err := ids.FromBytes(key[1:])
	return key[0], id, err
}

// PackLink builds a vector_links key: level byte, owning vector, neighbour.
func PackLink(level uint8, id, neighbour ids.ID) []byte {
	key := make([]byte, linkKeyLen)
	key[0] = level
	copy(key[1:], id[:])
	copy(key[1+idLen:], neighbour[:])
	return key
}

// LinkPrefix builds the scan prefix for one vector's neighbour list at one
// level.
func LinkPrefix(level uint8, id ids.ID) []byte {
	key := make([]byte, 1+idLen)
	key[0] = level
	copy(key[1:], id[:])
	return key
}

// UnpackLink decodes a vector_links key.
func UnpackLink(key []byte) (level uint8, id, neighbour ids.ID, err error) {
	if len(key) != linkKeyLen {
		err = kerr.New(kerr.InvalidKey, "link key has wrong length")
		return
	}
	level = key[0]
	copy(id[:], key[1:1+idLen])
	copy(neighbour[:], key[1+idLen:])
	return
}

// PackLinkDistance encodes the f32 distance stored as a link's value.
func PackLinkDistance(d float32) []byte {
	b := make([]byte, linkValueLen)
	binary.BigEndian.PutUint32(b, math.Float32bits(d))
	return b
}

// UnpackLinkDistance decodes a link's distance value.
func UnpackLinkDistance(b []byte) (float32, error) {
	if len(b) != linkValueLen {
		return 0, kerr.New(kerr.InvalidEncoding, "link distance has wrong length")
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

// PackPosting builds a bm25_postings key: 2-byte term length, the term bytes,
// then the document ID. The explicit length prefix keeps a term that is a
// prefix of another term from scanning into the longer term's postings.
func PackPosting(term string, doc ids.ID) []byte {
	key := make([]byte, 2+len(term)+idLen)
	binary.BigEndian.PutUint16(key, uint16(len(term)))
	copy(key[2:], term)
	copy(key[2+len(term):], doc[:])
	return key
}

// PostingPrefix builds the scan prefix for one term's posting list.
func PostingPrefix(term string) []byte {
	key := make([]byte, 2+len(term))
	binary.BigEndian.PutUint16(key, uint16(len(term)))
	copy(key[2:], term)
	return key
}

// UnpackPosting decodes a bm25_postings key.
func UnpackPosting(key []byte) (term string, doc ids.ID, err error) {
	if len(key) < postingFixedLen {
		err = kerr.New(kerr.InvalidKey, "posting key too short")
		return
	}
	n := int(binary.BigEndian.Uint16(key))
	if len(key) != 2+n+idLen {
		err = kerr.New(kerr.InvalidKey, "posting key has wrong length")
		return
	}
	term = string(key[2 : 2+n])
	doc, err = ids.FromBytes(key[2+n:])
	return
}

// PackU32 / UnpackU32 encode the fixed-width counters stored by the BM25
// sub-stores (term frequencies, document lengths).
func PackU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func UnpackU32(b []byte) (uint32, error) {
	if len(b) != docLenRecordLen {
		return 0, kerr.New(kerr.InvalidEncoding, "u32 record has wrong length")
	}
	return binary.BigEndian.Uint32(b), nil
}

// PackStats / UnpackStats encode the (doc_count, sum_lengths) pair kept under
// bm25_stats.
func PackStats(docCount, sumLengths uint64) []byte {
	b := make([]byte, statsRecordLen)
	binary.BigEndian.PutUint64(b, docCount)
	binary.BigEndian.PutUint64(b[8:], sumLengths)
	return b
}

func UnpackStats(b []byte) (docCount, sumLengths uint64, err error) {
	if len(b) != statsRecordLen {
		err = kerr.New(kerr.InvalidEncoding, "stats record has wrong length")
		return
	}
	return binary.BigEndian.Uint64(b), binary.BigEndian.Uint64(b[8:]), nil
}
