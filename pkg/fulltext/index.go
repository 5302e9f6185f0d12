package fulltext

import (
	"bytes"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/kv"
)

// Okapi BM25 parameters (standard values).
const (
	bm25K1 = 1.2  // term frequency saturation
	bm25B  = 0.75 // length normalization
)

// statsKey is the single bm25_stats row carrying (doc_count, sum_lengths).
var statsKey = []byte("stats")

// Config bounds the index's work per query.
type Config struct {
	// MaxCandidates caps the score accumulator during a query. Once at
	// cap, a new document only enters by beating the current minimum.
	MaxCandidates int
}

// DefaultConfig returns the default accumulator cap.
func DefaultConfig() Config {
	return Config{MaxCandidates: 100_000}
}

// Index is the BM25 index over the shared environment.
type Index struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an Index.
func New(cfg Config, logger *zap.Logger) *Index {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{cfg: cfg, logger: logger}
}

// ScoredDoc is one query result.
type ScoredDoc struct {
	ID    ids.ID
	Score float64
}

// IndexDocument derives a virtual document from the given textual fields and
// writes its posting deltas, length, and stats in the caller's transaction,
// atomically with whatever node write produced the text. The document must
// not already be indexed; updates go through RemoveDocument first, with the
// old text fetched from the stored node record.
//
// Fields are tokenized concurrently; only the writes are serial.
func (ix *Index) IndexDocument(tx *kv.Txn, doc ids.ID, fields ...string) error {
	exists, err := tx.Has(kv.StoreBM25Docs, doc.Bytes())
	if err != nil {
		return err
	}
	if exists {
		return kerr.New(kerr.UniqueViolation, "document already indexed")
	}

	tokenized := make([][]string, len(fields))
	var g errgroup.Group
	var mu sync.Mutex
	for i, field := range fields {
		i, field := i, field
		g.Go(func() error {
			toks := Tokenize(field)
			mu.Lock()
			tokenized[i] = toks
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var tokens []string
	for _, toks := range tokenized {
		tokens = append(tokens, toks...)
	}
	length := 0
	for _, field := range fields {
		length += WordCount(field)
	}
	if length == 0 {
		return nil
	}

	for term, tf := range termFrequencies(tokens) {
		if err := tx.Set(kv.StoreBM25Postings, kv.PackPosting(term, doc), kv.PackU32(uint32(tf))); err != nil {
			return err
		}
	}
	if err := tx.Set(kv.StoreBM25Docs, doc.Bytes(), kv.PackU32(uint32(length))); err != nil {
		return err
	}
	return ix.bumpStats(tx, 1, int64(length))
}

// RemoveDocument deletes the document's postings and decrements the stats.
// The caller supplies the same text the document was indexed with, fetched
// from the stored node record. Removing an unindexed document is a no-op.
func (ix *Index) RemoveDocument(tx *kv.Txn, doc ids.ID, fields ...string) error {
	lenData, err := tx.Get(kv.StoreBM25Docs, doc.Bytes())
	if kerr.Is(err, kerr.NotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	storedLen, err := kv.UnpackU32(lenData)
	if err != nil {
		return err
	}

	var tokens []string
	for _, field := range fields {
		tokens = append(tokens, Tokenize(field)...)
	}
	for term := range termFrequencies(tokens) {
		if err := tx.Delete(kv.StoreBM25Postings, kv.PackPosting(term, doc)); err != nil {
			return err
		}
	}
	if err := tx.Delete(kv.StoreBM25Docs, doc.Bytes()); err != nil {
		return err
	}
	return ix.bumpStats(tx, -1, -int64(storedLen))
}

// Search tokenizes the query, accumulates Okapi BM25 scores over the posting
// lists of each term, and returns the top k documents by descending score
// (ties broken by ID). A query that normalizes to zero terms fails with
// EmptyQuery.
func (ix *Index) Search(tx *kv.Txn, query string, k int) ([]ScoredDoc, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, kerr.New(kerr.EmptyQuery, "query has no indexable terms")
	}
	if k <= 0 {
		return []ScoredDoc{}, nil
	}

	docCount, sumLengths, err := ix.Stats(tx)
	if err != nil {
		return nil, err
	}
	if docCount == 0 {
		return []ScoredDoc{}, nil
	}
	avgdl := float64(sumLengths) / float64(docCount)

	scores := make(map[ids.ID]float64)
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		postings, err := ix.readPostings(tx, term)
		if err != nil {
			return nil, err
		}
		if len(postings) == 0 {
			continue
		}

		idf := idf(float64(docCount), float64(len(postings)))
		for _, p := range postings {
			docLen, err := ix.docLength(tx, p.doc)
			if err != nil {
				return nil, err
			}
			tf := float64(p.tf)
			delta := idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*(1-bm25B+bm25B*(float64(docLen)/avgdl)))
			ix.accumulate(scores, p.doc, delta)
		}
	}

	results := make([]ScoredDoc, 0, len(scores))
	for id, score := range scores {
		results = append(results, ScoredDoc{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return bytes.Compare(results[i].ID[:], results[j].ID[:]) < 0
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// accumulate adds delta to doc's running score, enforcing the candidate cap:
// at cap, a new document only displaces the current minimum if its first
// contribution already exceeds it.
func (ix *Index) accumulate(scores map[ids.ID]float64, doc ids.ID, delta float64) {
	if _, held := scores[doc]; held || len(scores) < ix.cfg.MaxCandidates {
		scores[doc] += delta
		return
	}
	minID, minScore := ids.Zero, math.Inf(1)
	for id, s := range scores {
		if s < minScore {
			minID, minScore = id, s
		}
	}
	if delta > minScore {
		delete(scores, minID)
		scores[doc] = delta
	}
}

// Stats returns the live (doc_count, sum_lengths) pair.
func (ix *Index) Stats(tx *kv.Txn) (docCount, sumLengths uint64, err error) {
	data, err := tx.Get(kv.StoreBM25Stats, statsKey)
	if kerr.Is(err, kerr.NotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return kv.UnpackStats(data)
}

func (ix *Index) bumpStats(tx *kv.Txn, docDelta, lenDelta int64) error {
	docCount, sumLengths, err := ix.Stats(tx)
	if err != nil {
		return err
	}
	docCount = uint64(int64(docCount) + docDelta)
	sumLengths = uint64(int64(sumLengths) + lenDelta)
	return tx.Set(kv.StoreBM25Stats, statsKey, kv.PackStats(docCount, sumLengths))
}

// posting is one (doc, term frequency) pair read from bm25_postings.
type posting struct {
	doc ids.ID
	tf  uint32
}

func (ix *Index) readPostings(tx *kv.Txn, term string) ([]posting, error) {
	it := tx.NewIterator(kv.StoreBM25Postings, kv.PostingPrefix(term))
	defer it.Close()

	var out []posting
	for ; it.Valid(); it.Next() {
		_, doc, err := kv.UnpackPosting(it.Key())
		if err != nil {
			return nil, err
		}
		val, err := it.Value()
		if err != nil {
			return nil, err
		}
		tf, err := kv.UnpackU32(val)
		if err != nil {
			return nil, err
		}
		out = append(out, posting{doc: doc, tf: tf})
	}
	return out, nil
}

func (ix *Index) docLength(tx *kv.Txn, doc ids.ID) (uint32, error) {
	data, err := tx.Get(kv.StoreBM25Docs, doc.Bytes())
	if err != nil {
		return 0, err
	}
	return kv.UnpackU32(data)
}

// idf is the Lucene BM25 variant with +1 smoothing, floored at zero so very
// common terms never subtract from a score.
func idf(n, df float64) float64 {
	v := math.Log(1 + (n-df+0.5)/(df+0.5))
	if v < 0 {
		return 0
	}
	return v
}
