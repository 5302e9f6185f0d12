package traversal

import (
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

// Predicate decides whether one pipeline element survives a WHERE step.
type Predicate func(tv TraversalValue) (bool, error)

// Where filters the stream, keeping elements for which pred holds. The
// predicate is evaluated eagerly per element as it flows through.
func (t *Traversal) Where(pred Predicate) *Traversal {
	if t.err != nil {
		return t
	}
	upstream := t.src
	return t.derive(sourceFunc(func() (TraversalValue, bool, error) {
		for {
			tv, ok, err := upstream.Next()
			if err != nil || !ok {
				return TraversalValue{}, false, err
			}
			keep, err := pred(tv)
			if err != nil {
				return TraversalValue{}, false, err
			}
			if keep {
				return tv, true, nil
			}
		}
	}))
}

// EQ holds when the named property equals v. Cross-kind pairs are unequal,
// never an error, matching EQ/NEQ semantics.
func EQ(prop string, v value.Value) Predicate {
	return func(tv TraversalValue) (bool, error) {
		return value.Equal(tv.Property(prop), v), nil
	}
}

// NEQ is the negation of EQ.
func NEQ(prop string, v value.Value) Predicate {
	return func(tv TraversalValue) (bool, error) {
		return !value.Equal(tv.Property(prop), v), nil
	}
}

// ordered builds the LT/LTE/GT/GTE family. Unorderable kind pairs fail with
// TypeMismatch; a Null property (absent) simply does not match.
func ordered(prop string, v value.Value, accept func(cmp int) bool) Predicate {
	return func(tv TraversalValue) (bool, error) {
		got := tv.Property(prop)
		if got.IsNull() {
			return false, nil
		}
		cmp, ok := value.Compare(got, v)
		if !ok {
			return false, kerr.New(kerr.TypeMismatch, "cannot order property "+prop+" against comparison operand")
		}
		return accept(cmp), nil
	}
}

func LT(prop string, v value.Value) Predicate {
	return ordered(prop, v, func(c int) bool { return c < 0 })
}
func LTE(prop string, v value.Value) Predicate {
	return ordered(prop, v, func(c int) bool { return c <= 0 })
}
func GT(prop string, v value.Value) Predicate {
	return ordered(prop, v, func(c int) bool { return c > 0 })
}
func GTE(prop string, v value.Value) Predicate {
	return ordered(prop, v, func(c int) bool { return c >= 0 })
}

// IsIn holds when the named property equals any element of the array value.
func IsIn(prop string, haystack value.Value) Predicate {
	return func(tv TraversalValue) (bool, error) {
		return value.IsIn(tv.Property(prop), haystack), nil
	}
}

// And holds when every predicate holds. Short-circuits on the first miss.
func And(preds ...Predicate) Predicate {
	return func(tv TraversalValue) (bool, error) {
		for _, p := range preds {
			ok, err := p(tv)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// Or holds when any predicate holds. Short-circuits on the first hit.
func Or(preds ...Predicate) Predicate {
	return func(tv TraversalValue) (bool, error) {
		for _, p := range preds {
			ok, err := p(tv)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// Not inverts a predicate.
func Not(pred Predicate) Predicate {
	return func(tv TraversalValue) (bool, error) {
		ok, err := pred(tv)
		return !ok, err
	}
}

// Exists builds a predicate that seeds a sub-pipeline with the element and
// holds if the sub-pipeline yields anything. It short-circuits on the first
// yield; the rest of the sub-stream is never produced.
func (t *Traversal) Exists(sub func(*Traversal) *Traversal) Predicate {
	return func(tv TraversalValue) (bool, error) {
		pipeline := sub(t.fromValue(tv))
		if pipeline.err != nil {
			return false, pipeline.err
		}
		_, ok, err := pipeline.src.Next()
		if err != nil {
			return false, err
		}
		return ok, nil
	}
}
