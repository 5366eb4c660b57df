package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/arc-self/streamcodec/internal/codec/schema"
	"github.com/arc-self/streamcodec/internal/codec/value"
)

// fieldSpec is one field's YAML declaration: its type name and an
// optional literal default, both as strings since YAML gives us scalars
// and the concrete value.Value construction is type-dependent.
type fieldSpec struct {
	Type    string  `yaml:"type"`
	Default *string `yaml:"default"`
}

// parserSpec names which parser the topology declares (debezium,
// delimited, jsonlines, identity, transparent) and its free-form
// settings. cmd/worker does not switch on Kind: it always builds the
// debezium parser and reads only the "db_type" setting.
type parserSpec struct {
	Kind     string            `yaml:"kind"`
	Settings map[string]string `yaml:"settings"`
}

// topologyDoc is the raw YAML shape of a topology file: which table is
// being replicated, its schema, which fields form the key vs the
// value tuple, and which parser reads it off the wire.
type topologyDoc struct {
	Table       string               `yaml:"table"`
	SessionType string               `yaml:"session_type"`
	Fields      map[string]fieldSpec `yaml:"fields"`
	KeyFields   []string             `yaml:"key_fields"`
	ValueFields []string             `yaml:"value_fields"`
	Parser      parserSpec           `yaml:"parser"`
}

// Topology is the resolved, schema-typed form of a topology document,
// ready to hand to a parser/formatter constructor.
type Topology struct {
	Table          string
	SessionType    string
	Schema         schema.Schema
	KeyFields      []string
	ValueFields    []string
	ParserKind     string
	ParserSettings map[string]string
}

// LoadTopology reads and parses a YAML schema/parser topology document
// (spec §3 schema descriptor, generalized to a file so cmd/worker
// doesn't hardcode one table's shape).
func LoadTopology(path string) (*Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}

	var doc topologyDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}

	sch := make(schema.Schema, len(doc.Fields))
	for name, spec := range doc.Fields {
		t, err := parseTypeName(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}

		field := schema.InnerSchemaField{Type: t}
		if spec.Default != nil {
			def, err := parseDefaultLiteral(t, *spec.Default)
			if err != nil {
				return nil, fmt.Errorf("field %q default: %w", name, err)
			}
			field.Default = &def
		}
		sch[name] = field
	}

	if err := schema.EnsureFieldsInSchema(doc.KeyFields, doc.ValueFields, sch); err != nil {
		return nil, fmt.Errorf("topology %s: %w", path, err)
	}

	return &Topology{
		Table:          doc.Table,
		SessionType:    doc.SessionType,
		Schema:         sch,
		KeyFields:      doc.KeyFields,
		ValueFields:    doc.ValueFields,
		ParserKind:     doc.Parser.Kind,
		ParserSettings: doc.Parser.Settings,
	}, nil
}

func parseTypeName(name string) (value.Type, error) {
	switch name {
	case "any":
		return value.Any, nil
	case "none":
		return value.TNone, nil
	case "int":
		return value.Int, nil
	case "float":
		return value.Float, nil
	case "bool":
		return value.Bool, nil
	case "string":
		return value.String, nil
	case "bytes":
		return value.Bytes, nil
	case "pointer":
		return value.Pointer, nil
	case "datetime_naive":
		return value.DateTimeNaive, nil
	case "datetime_utc":
		return value.DateTimeUTC, nil
	case "duration":
		return value.Duration, nil
	case "json":
		return value.JSON, nil
	case "optional_int":
		return value.Optional(value.Int), nil
	case "optional_float":
		return value.Optional(value.Float), nil
	case "optional_bool":
		return value.Optional(value.Bool), nil
	case "optional_string":
		return value.Optional(value.String), nil
	default:
		return value.Type{}, fmt.Errorf("unknown field type %q", name)
	}
}

// parseDefaultLiteral interprets a YAML-string default the way its
// declared type demands; an Optional field's default is parsed as its
// inner type.
func parseDefaultLiteral(t value.Type, literal string) (value.Value, error) {
	t = value.Unoptionalize(t)
	switch t.Kind {
	case value.TypeKindString:
		return value.NewString(literal), nil
	case value.TypeKindBytes:
		return value.NewBytes([]byte(literal)), nil
	case value.TypeKindInt:
		i, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("not an int: %q", literal)
		}
		return value.NewInt(i), nil
	case value.TypeKindFloat:
		f, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("not a float: %q", literal)
		}
		return value.NewFloat(f), nil
	case value.TypeKindBool:
		b, err := strconv.ParseBool(literal)
		if err != nil {
			return value.Value{}, fmt.Errorf("not a bool: %q", literal)
		}
		return value.NewBool(b), nil
	case value.TypeKindJSON:
		return value.NewJSON([]byte(literal)), nil
	default:
		return value.Value{}, fmt.Errorf("type %s has no literal default form", t)
	}
}
