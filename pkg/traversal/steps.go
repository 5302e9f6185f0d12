package traversal

import (
	"bytes"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

// Count drains the pipeline and returns the number of elements.
func (t *Traversal) Count() (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	n := 0
	for {
		_, ok, err := t.src.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// First yields the first element and terminates the producer. An exhausted
// pipeline yields Empty, not an error.
func (t *Traversal) First() (TraversalValue, error) {
	if t.err != nil {
		return TraversalValue{}, t.err
	}
	tv, ok, err := t.src.Next()
	if err != nil {
		return TraversalValue{}, err
	}
	if !ok {
		return EmptyValue(), nil
	}
	return tv, nil
}

// Range keeps the half-open 0-based subsequence [a, b). Elements before a
// are drained and discarded; the upstream stops being pulled at b.
func (t *Traversal) Range(a, b int) *Traversal {
	if t.err != nil {
		return t
	}
	if a < 0 || b < a {
		return t.fail(kerr.New(kerr.UnsupportedStep, "range bounds must satisfy 0 <= a <= b"))
	}
	upstream := t.src
	pos := 0
	return t.derive(sourceFunc(func() (TraversalValue, bool, error) {
		for {
			if pos >= b {
				return TraversalValue{}, false, nil
			}
			tv, ok, err := upstream.Next()
			if err != nil || !ok {
				return TraversalValue{}, false, err
			}
			pos++
			if pos-1 < a {
				continue
			}
			return tv, true, nil
		}
	}))
}

// Intersect keeps elements whose identity also appears in the sub-pipeline's
// output. Identity is the entity ID for nodes/edges/vectors and the scalar
// value for scalars; other kinds never intersect.
func (t *Traversal) Intersect(sub func(*Traversal) *Traversal) *Traversal {
	if t.err != nil {
		return t
	}
	other := sub(t.eng.Begin(t.tx))
	if other.err != nil {
		return t.fail(other.err)
	}
	members, err := other.Collect()
	if err != nil {
		return t.fail(err)
	}
	keys := make(map[string]bool, len(members))
	for _, m := range members {
		if k, ok := identityKey(m); ok {
			keys[k] = true
		}
	}
	return t.Where(func(tv TraversalValue) (bool, error) {
		k, ok := identityKey(tv)
		return ok && keys[k], nil
	})
}

func identityKey(tv TraversalValue) (string, bool) {
	if id, ok := tv.ID(); ok {
		return string(id[:]), true
	}
	if tv.Kind == KindScalar {
		return "s:" + tv.Scalar.String(), true
	}
	return "", false
}

// GroupBy hash-aggregates the stream into buckets keyed by the named
// properties, retaining bucket members. Bucket key extraction runs
// concurrently over the materialized elements; only property access happens
// on the worker goroutines, never transaction reads.
func (t *Traversal) GroupBy(keys ...string) *Traversal {
	return t.groupBy(keys, true)
}

// AggregateBy is GroupBy retaining only per-bucket counts.
func (t *Traversal) AggregateBy(keys ...string) *Traversal {
	return t.groupBy(keys, false)
}

func (t *Traversal) groupBy(keys []string, keepMembers bool) *Traversal {
	if t.err != nil {
		return t
	}
	if len(keys) == 0 {
		return t.fail(kerr.New(kerr.UnsupportedStep, "grouping requires at least one key"))
	}
	elems, err := t.Collect()
	if err != nil {
		return t.fail(err)
	}

	bucketKeys := make([]string, len(elems))
	var g errgroup.Group
	var mu sync.Mutex
	for i, elem := range elems {
		g.Go(func() error {
			var buf bytes.Buffer
			for _, k := range keys {
				buf.WriteString(elem.Property(k).String())
				buf.WriteByte(0)
			}
			mu.Lock()
			bucketKeys[i] = buf.String()
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return t.fail(err)
	}

	byKey := make(map[string]*Bucket)
	var order []string
	for i, elem := range elems {
		bk := bucketKeys[i]
		bucket, ok := byKey[bk]
		if !ok {
			keyVals := make(map[string]value.Value, len(keys))
			for _, k := range keys {
				keyVals[k] = elem.Property(k)
			}
			bucket = &Bucket{Key: keyVals}
			byKey[bk] = bucket
			order = append(order, bk)
		}
		bucket.Count++
		if keepMembers {
			bucket.Members = append(bucket.Members, elem)
		}
	}

	sort.Strings(order)
	group := &Group{Keys: keys, Buckets: make([]Bucket, 0, len(order))}
	for _, bk := range order {
		group.Buckets = append(group.Buckets, *byKey[bk])
	}
	return t.derive(sliceSource([]TraversalValue{GroupValue(group)}))
}
