package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/helixkernel/kernel/pkg/kerr"
	"github.com/helixkernel/kernel/pkg/value"
)

// YAML schema files let a host declare labels without writing Go. Shape:
//
//	nodes:
//	  User:
//	    properties:
//	      name:  {type: string}
//	      email: {type: string, index: unique}
//	      age:   {type: i64, default: 0}
//	edges:
//	  Follows:
//	    from: User
//	    to: User
//	    unique: true
//	vectors:
//	  Doc:
//	    dim: 768

type yamlSchema struct {
	Nodes   map[string]yamlNode   `yaml:"nodes"`
	Edges   map[string]yamlEdge   `yaml:"edges"`
	Vectors map[string]yamlVector `yaml:"vectors"`
}

type yamlNode struct {
	Properties map[string]yamlProperty `yaml:"properties"`
}

type yamlEdge struct {
	From       string                  `yaml:"from"`
	To         string                  `yaml:"to"`
	Unique     bool                    `yaml:"unique"`
	Properties map[string]yamlProperty `yaml:"properties"`
}

type yamlVector struct {
	Dim        int                     `yaml:"dim"`
	Properties map[string]yamlProperty `yaml:"properties"`
}

type yamlProperty struct {
	Type    string `yaml:"type"`
	Index   string `yaml:"index"`
	Default *any   `yaml:"default"`
}

var yamlTypeKind = map[string]value.Kind{
	"bool": value.KindBool,
	"i8":   value.KindInt8, "i16": value.KindInt16,
	"i32": value.KindInt32, "i64": value.KindInt64,
	"u8": value.KindUint8, "u16": value.KindUint16,
	"u32": value.KindUint32, "u64": value.KindUint64,
	"f32": value.KindFloat32, "f64": value.KindFloat64,
	"string": value.KindString, "time": value.KindTime,
	"bytes": value.KindBytes,
}

// LoadYAML reads a schema file from disk and parses it.
func LoadYAML(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerr.Wrap(kerr.SchemaViolation, "reading schema file", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses a YAML schema document into a Schema.
func ParseYAML(data []byte) (*Schema, error) {
	var doc yamlSchema
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, kerr.Wrap(kerr.SchemaViolation, "malformed schema yaml", err)
	}

	s := New()
	for label, n := range doc.Nodes {
		props, err := parseProperties(n.Properties, "node "+label)
		if err != nil {
			return nil, err
		}
		if err := s.AddNode(&Node{Label: label, Properties: props}); err != nil {
			return nil, err
		}
	}
	for label, e := range doc.Edges {
		if e.From == "" || e.To == "" {
			return nil, kerr.New(kerr.SchemaViolation,
				fmt.Sprintf("edge %s must declare from and to", label))
		}
		props, err := parseProperties(e.Properties, "edge "+label)
		if err != nil {
			return nil, err
		}
		if err := s.AddEdge(&Edge{Label: label, From: e.From, To: e.To, Unique: e.Unique, Properties: props}); err != nil {
			return nil, err
		}
	}
	for label, v := range doc.Vectors {
		if v.Dim <= 0 {
			return nil, kerr.New(kerr.SchemaViolation,
				fmt.Sprintf("vector %s must declare a positive dim", label))
		}
		props, err := parseProperties(v.Properties, "vector "+label)
		if err != nil {
			return nil, err
		}
		if err := s.AddVector(&Vector{Label: label, Dim: v.Dim, Properties: props}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func parseProperties(props map[string]yamlProperty, where string) ([]Property, error) {
	out := make([]Property, 0, len(props))
	for name, p := range props {
		kind, ok := yamlTypeKind[p.Type]
		if !ok {
			return nil, kerr.New(kerr.SchemaViolation,
				fmt.Sprintf("%s property %s: unknown type %q", where, name, p.Type))
		}

		var idx IndexKind
		switch p.Index {
		case "", "none":
			idx = NoIndex
		case "index":
			idx = Index
		case "unique":
			idx = UniqueIndex
		default:
			return nil, kerr.New(kerr.SchemaViolation,
				fmt.Sprintf("%s property %s: unknown index kind %q", where, name, p.Index))
		}

		decl := Property{Name: name, Type: kind, Index: idx}
		if p.Default != nil {
			dv, err := defaultValue(kind, *p.Default)
			if err != nil {
				return nil, kerr.Wrap(kerr.SchemaViolation,
					fmt.Sprintf("%s property %s: bad default", where, name), err)
			}
			decl.Default = &dv
		}
		out = append(out, decl)
	}
	return out, nil
}

// defaultValue coerces a YAML scalar into the declared value Kind.
func defaultValue(kind value.Kind, raw any) (value.Value, error) {
	switch kind {
	case value.KindBool:
		b, ok := raw.(bool)
		if !ok {
			return value.Null(), fmt.Errorf("expected bool, got %T", raw)
		}
		return value.Bool(b), nil
	case value.KindString:
		s, ok := raw.(string)
		if !ok {
			return value.Null(), fmt.Errorf("expected string, got %T", raw)
		}
		return value.String(s), nil
	case value.KindInt8, value.KindInt16, value.KindInt32, value.KindInt64,
		value.KindUint8, value.KindUint16, value.KindUint32, value.KindUint64:
		i, ok := yamlInt(raw)
		if !ok {
			return value.Null(), fmt.Errorf("expected integer, got %T", raw)
		}
		return intValue(kind, i), nil
	case value.KindFloat32, value.KindFloat64:
		switch f := raw.(type) {
		case float64:
			if kind == value.KindFloat32 {
				return value.Float32(float32(f)), nil
			}
			return value.Float64(f), nil
		case int:
			if kind == value.KindFloat32 {
				return value.Float32(float32(f)), nil
			}
			return value.Float64(float64(f)), nil
		}
		return value.Null(), fmt.Errorf("expected float, got %T", raw)
	default:
		return value.Null(), fmt.Errorf("type does not support defaults")
	}
}

func yamlInt(raw any) (int64, bool) {
	switch i := raw.(type) {
	case int:
		return int64(i), true
	case int64:
		return i, true
	}
	return 0, false
}

func intValue(kind value.Kind, i int64) value.Value {
	switch kind {
	case value.KindInt8:
		return value.Int8(int8(i))
	case value.KindInt16:
		return value.Int16(int16(i))
	case value.KindInt32:
		return value.Int32(int32(i))
	case value.KindInt64:
		return value.Int64(i)
	case value.KindUint8:
		return value.Uint8(uint8(i))
	case value.KindUint16:
		return value.Uint16(uint16(i))
	case value.KindUint32:
		return value.Uint32(uint32(i))
	default:
		return value.Uint64(uint64(i))
	}
}
