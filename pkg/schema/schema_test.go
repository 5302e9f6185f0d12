package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

func TestAdditiveNodeRegistration(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNode(&Node{Label: "User", Properties: []Property{
		{Name: "name", Type: value.KindString},
	}}))

	// Adding a property is legal.
	require.NoError(t, s.AddNode(&Node{Label: "User", Properties: []Property{
		{Name: "age", Type: value.KindInt64},
	}}))
	def, err := s.NodeDef("User")
	require.NoError(t, err)
	assert.Len(t, def.Properties, 2)

	// Retyping is not.
	err = s.AddNode(&Node{Label: "User", Properties: []Property{
		{Name: "name", Type: value.KindInt64},
	}})
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))
}

func TestEdgeEndpointsCannotChange(t *testing.T) {
	s := New()
	require.NoError(t, s.AddEdge(&Edge{Label: "Follows", From: "User", To: "User"}))
	err := s.AddEdge(&Edge{Label: "Follows", From: "User", To: "Post"})
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))
}

func TestVectorDimensionCannotChange(t *testing.T) {
	s := New()
	require.NoError(t, s.AddVector(&Vector{Label: "Doc", Dim: 128}))
	err := s.AddVector(&Vector{Label: "Doc", Dim: 256})
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))
}

func TestUnknownLabel(t *testing.T) {
	s := New()
	_, err := s.NodeDef("Ghost")
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))
}

func TestValidatePropertiesAppliesDefaults(t *testing.T) {
	zero := value.Int64(0)
	decls := []Property{
		{Name: "name", Type: value.KindString},
		{Name: "age", Type: value.KindInt64, Default: &zero},
	}

	out, err := ValidateProperties(decls, value.PropertyMap{"name": value.String("a")}, "node User")
	require.NoError(t, err)
	assert.Equal(t, value.Int64(0), out["age"])
}

func TestValidatePropertiesRejectsUndeclared(t *testing.T) {
	_, err := ValidateProperties(nil, value.PropertyMap{"x": value.Int64(1)}, "node User")
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))
}

func TestValidatePropertiesRejectsWrongType(t *testing.T) {
	decls := []Property{{Name: "age", Type: value.KindInt64}}
	_, err := ValidateProperties(decls, value.PropertyMap{"age": value.String("old")}, "node User")
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))
}

func TestValidatePropertiesDoesNotMutateInput(t *testing.T) {
	zero := value.Int64(0)
	decls := []Property{{Name: "age", Type: value.KindInt64, Default: &zero}}
	in := value.PropertyMap{}
	_, err := ValidateProperties(decls, in, "node User")
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestParseYAML(t *testing.T) {
	doc := `
nodes:
  User:
    properties:
      name:  {type: string}
      email: {type: string, index: unique}
      age:   {type: i64, default: 21}
edges:
  Follows:
    from: User
    to: User
    unique: true
vectors:
  Doc:
    dim: 768
`
	s, err := ParseYAML([]byte(doc))
	require.NoError(t, err)

	user, err := s.NodeDef("User")
	require.NoError(t, err)
	assert.Len(t, user.Properties, 3)
	email, ok := UniqueProperty(user.Properties, "email")
	require.True(t, ok)
	assert.Equal(t, UniqueIndex, email.Index)

	follows, err := s.EdgeDef("Follows")
	require.NoError(t, err)
	assert.True(t, follows.Unique)
	assert.Equal(t, "User", follows.From)

	docDef, err := s.VectorDef("Doc")
	require.NoError(t, err)
	assert.Equal(t, 768, docDef.Dim)
}

func TestParseYAMLRejectsBadInput(t *testing.T) {
	_, err := ParseYAML([]byte("nodes:\n  U:\n    properties:\n      x: {type: nope}"))
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))

	_, err = ParseYAML([]byte("edges:\n  E:\n    to: User"))
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))

	_, err = ParseYAML([]byte("vectors:\n  V:\n    dim: 0"))
	assert.True(t, kerr.Is(err, kerr.SchemaViolation))
}
