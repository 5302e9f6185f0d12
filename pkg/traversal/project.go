package traversal

import (
	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

// Expr is one projection sub-expression, evaluated per element in the same
// transaction view as the surrounding pipeline.
type Expr interface {
	eval(t *Traversal, tv TraversalValue) (value.Value, error)
}

// Prop accesses a named property on the element.
func Prop(name string) Expr { return propExpr(name) }

type propExpr string

func (p propExpr) eval(_ *Traversal, tv TraversalValue) (value.Value, error) {
	return tv.Property(string(p)), nil
}

// Const yields a fixed value for every element.
func Const(v value.Value) Expr { return constExpr{v} }

type constExpr struct{ v value.Value }

func (c constExpr) eval(*Traversal, TraversalValue) (value.Value, error) { return c.v, nil }

// IDExpr yields the element's identifier as its canonical string form.
func IDExpr() Expr { return idExpr{} }

type idExpr struct{}

func (idExpr) eval(_ *Traversal, tv TraversalValue) (value.Value, error) {
	id, ok := tv.ID()
	if !ok {
		return value.Empty(), nil
	}
	return value.String(id.String()), nil
}

// Math applies a scalar math operation to operand sub-expressions. Unary ops
// take one operand, binary ops two; PI and E take none via MathConst.
func Math(op value.MathOp, operands ...Expr) Expr {
	return mathExpr{op: op, operands: operands}
}

// MathConst yields one of the nullary constants (PI, E).
func MathConst(name string) Expr {
	switch name {
	case "PI":
		return constExpr{value.Pi()}
	case "E":
		return constExpr{value.E()}
	default:
		return errExpr{kerr.New(kerr.UnsupportedStep, "unknown math constant "+name)}
	}
}

type errExpr struct{ err error }

func (e errExpr) eval(*Traversal, TraversalValue) (value.Value, error) { return value.Empty(), e.err }

type mathExpr struct {
	op       value.MathOp
	operands []Expr
}

func (m mathExpr) eval(t *Traversal, tv TraversalValue) (value.Value, error) {
	if len(m.operands) == 0 {
		return value.Empty(), kerr.New(kerr.UnsupportedStep, "math expression needs operands")
	}
	args := make([]value.Value, len(m.operands))
	for i, op := range m.operands {
		v, err := op.eval(t, tv)
		if err != nil {
			return value.Empty(), err
		}
		args[i] = v
	}
	result, ok := value.Apply(m.op, args[0], args[1:]...)
	if !ok {
		return value.Empty(), kerr.New(kerr.TypeMismatch, "math expression over non-numeric operand")
	}
	return result, nil
}

// Sub evaluates a sub-pipeline seeded with the element and yields the first
// result's scalar form: a Scalar passes through, a node/edge/vector yields
// its ID string, an exhausted sub-pipeline yields Empty.
func Sub(build func(*Traversal) *Traversal) Expr { return subExpr{build} }

type subExpr struct {
	build func(*Traversal) *Traversal
}

func (s subExpr) eval(t *Traversal, tv TraversalValue) (value.Value, error) {
	first, err := s.build(t.fromValue(tv)).First()
	if err != nil {
		return value.Empty(), err
	}
	switch first.Kind {
	case KindEmpty:
		return value.Empty(), nil
	case KindScalar:
		return first.Scalar, nil
	default:
		if id, ok := first.ID(); ok {
			return value.String(id.String()), nil
		}
		return value.Empty(), nil
	}
}

// Projection declares a remapping {name: sub_expr, ..}. IncludeRest carries
// over every property not explicitly remapped, the ".." form.
type Projection struct {
	Fields      map[string]Expr
	IncludeRest bool
}

// Remap consumes each element, evaluates every sub-expression, and yields a
// Map. A NaN produced by a math expression (division by zero and friends)
// collapses the whole row to Empty.
func (t *Traversal) Remap(p Projection) *Traversal {
	if t.err != nil {
		return t
	}
	upstream := t.src
	return t.derive(sourceFunc(func() (TraversalValue, bool, error) {
		tv, ok, err := upstream.Next()
		if err != nil || !ok {
			return TraversalValue{}, false, err
		}

		row := make(map[string]value.Value, len(p.Fields))
		if p.IncludeRest {
			for name, v := range tv.Properties() {
				if _, remapped := p.Fields[name]; !remapped {
					row[name] = v
				}
			}
		}
		for name, expr := range p.Fields {
			v, err := expr.eval(t, tv)
			if err != nil {
				return TraversalValue{}, false, err
			}
			if value.IsNaN(v) {
				return EmptyValue(), true, nil
			}
			row[name] = v
		}
		return MapValue(row), true, nil
	}))
}
