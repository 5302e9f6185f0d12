package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
)

func TestAdjacencyKeyRoundTrip(t *testing.T) {
	anchor, edge, other := ids.New(), ids.New(), ids.New()
	h := LabelHash("Follows")

	key := PackAdjacency(anchor, h, edge, other)
	gotAnchor, gotHash, gotEdge, gotOther, err := UnpackAdjacency(key)
	require.NoError(t, err)
	assert.Equal(t, anchor, gotAnchor)
	assert.Equal(t, h, gotHash)
	assert.Equal(t, edge, gotEdge)
	assert.Equal(t, other, gotOther)
}

func TestAdjacencyKeyWrongLength(t *testing.T) {
	_, _, _, _, err := UnpackAdjacency([]byte{1, 2, 3})
	assert.True(t, kerr.Is(err, kerr.InvalidKey))
}

func TestSecondaryKeyTrailingID(t *testing.T) {
	id := ids.New()
	key := PackSecondary(LabelHash("User"), LabelHash("email"), []byte("a@x"), id)
	got, err := UnpackSecondaryID(key)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = UnpackSecondaryID([]byte{1, 2})
	assert.True(t, kerr.Is(err, kerr.InvalidKey))
}

func TestLayerAndLinkKeys(t *testing.T) {
	id, nb := ids.New(), ids.New()

	layer, gotID, err := UnpackLayer(PackLayer(3, id))
	require.NoError(t, err)
	assert.Equal(t, uint8(3), layer)
	assert.Equal(t, id, gotID)

	level, owner, neighbour, err := UnpackLink(PackLink(2, id, nb))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), level)
	assert.Equal(t, id, owner)
	assert.Equal(t, nb, neighbour)

	_, _, err = UnpackLayer([]byte{1})
	assert.True(t, kerr.Is(err, kerr.InvalidKey))
	_, _, _, err = UnpackLink([]byte{1, 2, 3})
	assert.True(t, kerr.Is(err, kerr.InvalidKey))
}

func TestLinkDistanceRoundTrip(t *testing.T) {
	d, err := UnpackLinkDistance(PackLinkDistance(1.5))
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), d)

	_, err = UnpackLinkDistance([]byte{1, 2})
	assert.True(t, kerr.Is(err, kerr.InvalidEncoding))
}

func TestPostingKeyRoundTrip(t *testing.T) {
	doc := ids.New()
	term, gotDoc, err := UnpackPosting(PackPosting("quick", doc))
	require.NoError(t, err)
	assert.Equal(t, "quick", term)
	assert.Equal(t, doc, gotDoc)
}

func TestPostingPrefixDoesNotBleedIntoLongerTerms(t *testing.T) {
	// "qui" must not prefix-match the posting key of "quick": the length
	// prefix differs.
	short := PostingPrefix("qui")
	long := PackPosting("quick", ids.New())
	assert.NotEqual(t, short, long[:len(short)])
}

func TestPostingKeyWrongLength(t *testing.T) {
	_, _, err := UnpackPosting([]byte{0, 5, 'q'})
	assert.True(t, kerr.Is(err, kerr.InvalidKey))
}

func TestStatsRoundTrip(t *testing.T) {
	docs, lengths, err := UnpackStats(PackStats(7, 123))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), docs)
	assert.Equal(t, uint64(123), lengths)

	_, _, err = UnpackStats([]byte{1})
	assert.True(t, kerr.Is(err, kerr.InvalidEncoding))
}

func TestLabelHashStable(t *testing.T) {
	assert.Equal(t, LabelHash("Follows"), LabelHash("Follows"))
	assert.NotEqual(t, LabelHash("Follows"), LabelHash("Likes"))
}
