// Package schema implements the schema descriptor shared by every parser
// and formatter: field name to expected type plus an optional default
// value substitution policy.
package schema

import (
	"fmt"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

// InnerSchemaField is the schema-declared expected type of a field and
// the default value substituted when the source supplies none.
type InnerSchemaField struct {
	Type    value.Type
	Default *value.Value // nil means no default is configured
}

// Schema maps field name to its declared type and default.
type Schema map[string]InnerSchemaField

// ErrFieldNotInSchema is returned when a parser or formatter is
// constructed with a key or value field name absent from the schema.
type ErrFieldNotInSchema struct {
	Name       string
	SchemaKeys []string
}

func (e *ErrFieldNotInSchema) Error() string {
	return fmt.Sprintf("field %q is not present in schema (known fields: %v)", e.Name, e.SchemaKeys)
}

// EnsureFieldsInSchema enforces the invariant from spec §3: every
// key-field name and every value-field name must appear in the schema.
// The synthetic "_metadata" column name is exempt — it never reads from
// the schema, it is substituted at projection time.
func EnsureFieldsInSchema(keyNames, valueNames []string, s Schema) error {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	check := func(name string) error {
		if name == MetadataFieldName {
			return nil
		}
		if _, ok := s[name]; !ok {
			return &ErrFieldNotInSchema{Name: name, SchemaKeys: keys}
		}
		return nil
	}
	for _, name := range keyNames {
		if err := check(name); err != nil {
			return err
		}
	}
	for _, name := range valueNames {
		if err := check(name); err != nil {
			return err
		}
	}
	return nil
}

// MetadataFieldName is the synthetic column name that means "substitute
// the current source's metadata JSON here" rather than read from the
// stream (spec §4.1, design note in spec §9).
const MetadataFieldName = "_metadata"

// ErrNoDefault is returned when a field has neither a supplied value nor
// a configured default.
type ErrNoDefault struct {
	FieldName string
}

func (e *ErrNoDefault) Error() string {
	return fmt.Sprintf("no value for %q field and no default specified", e.FieldName)
}

// MaybeUseDefault implements the substitution policy used by the
// transparent parser (spec §4.6): if the caller supplies a value (even
// an error), it is returned as-is; otherwise the schema default is
// substituted, or ErrNoDefault if none is configured.
func (f InnerSchemaField) MaybeUseDefault(name string, supplied *value.Value) (value.Value, error) {
	if supplied != nil {
		return *supplied, nil
	}
	if f.Default != nil {
		return *f.Default, nil
	}
	return value.Value{}, &ErrNoDefault{FieldName: name}
}
