// Package parser implements the family of Parsers that turn bytes from
// heterogeneous external sources into ParsedEventWithErrors (spec §4).
// Parsers are not thread-safe; each instance is owned by exactly one
// reader (spec §3, §5).
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/schema"
	"github.com/arc-self/streamcodec/internal/codec/value"
)

// CommitLiteral is the stable wire-level marker a record equal to which
// advances the commit watermark instead of carrying a row (spec §6).
const CommitLiteral = "*COMMIT*"

// SourceMetadata is the per-source metadata value a parser substitutes
// for the "_metadata" sentinel column (spec §4.1 design note). It is
// opaque to the codec layer: the transport decides its shape and the
// parser only carries it through as a value.Value produced by ToValue.
type SourceMetadata interface {
	ToValue() value.Value
}

// Parser is the capability interface every concrete parser implements:
// no inheritance, no dynamic attribute dispatch (spec §9 design note).
type Parser interface {
	// Parse consumes one reader.Context and produces zero or more
	// ParsedEventWithErrors (a Debezium update yields two, for example).
	Parse(ctx reader.Context) ([]event.ParsedEventWithErrors, error)

	// OnNewSourceStarted resets any per-source state (e.g. the delimited
	// parser's header) and caches the new source's metadata value.
	OnNewSourceStarted(metadata SourceMetadata)

	// ColumnCount is the number of value-column entries the parser
	// places in every emitted event.
	ColumnCount() int

	// SessionType declares whether this parser's events follow the
	// Native or Upsert session contract (spec §3).
	SessionType() event.SessionType
}

// Errors shared across parsers (spec §7, record-level and stream-level).
var (
	ErrEmptyKafkaPayload           = errors.New("received message doesn't have payload")
	ErrFailedToParseMetadata       = errors.New("received metadata payload is not a valid json")
	ErrUnparsableTypeMarker        = errors.New("parsing this type from an external datasource is not supported")
)

// ErrFieldsNotFoundInHeader is a fatal per-stream error: a configured
// key/value column name was not present in the header row.
type ErrFieldsNotFoundInHeader struct {
	Parsed    []string
	Requested []string
}

func (e *ErrFieldsNotFoundInHeader) Error() string {
	return fmt.Sprintf("some fields weren't found in the header (fields present in table: %v, fields specified in connector: %v)", e.Parsed, e.Requested)
}

// ErrSchemaNotSatisfied wraps a token that failed to parse according to
// its schema type.
type ErrSchemaNotSatisfied struct {
	Value     string
	FieldName string
	Type      value.Type
	Cause     error
}

func (e *ErrSchemaNotSatisfied) Error() string {
	return fmt.Sprintf("failed to parse value %q at field %q according to the type %s in schema: %v", e.Value, e.FieldName, e.Type, e.Cause)
}

func (e *ErrSchemaNotSatisfied) Unwrap() error { return e.Cause }

// ErrUnexpectedNumberOfCSVTokens is returned when a bound index falls
// outside the token count produced by tokenizing a record.
type ErrUnexpectedNumberOfCSVTokens struct {
	TokenCount int
}

func (e *ErrUnexpectedNumberOfCSVTokens) Error() string {
	return fmt.Sprintf("too small number of csv tokens in the line: %d", e.TokenCount)
}

// ErrUnparsableType is returned when parse_with_type is asked for a
// schema type it has no token-parsing rule for.
type ErrUnparsableType struct {
	Type value.Type
}

func (e *ErrUnparsableType) Error() string {
	return fmt.Sprintf("parsing %s from an external datasource is not supported", e.Type)
}

// errBoolNotParsable is deliberately a stable, rewritten message rather
// than strconv.ParseBool's own error, whose text only mentions
// "true"/"false" and would be misleading given the wider vocabulary
// accepted here (spec §4.1).
var errBoolNotParsable = errors.New("provided string was not parsable as a boolean value")

// parseBoolAdvanced accepts the Postgres boolean vocabulary
// (case-insensitive, trimmed): true/yes/on/1/t/y and false/no/off/0/f/n.
func parseBoolAdvanced(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "on", "1", "t", "y":
		return true, nil
	case "false", "no", "off", "0", "f", "n":
		return false, nil
	default:
		return false, errBoolNotParsable
	}
}

// ParseWithType implements the shared token-parsing policy used by
// every parser that reads raw delimited-style tokens (spec §4.1):
// empty-input default substitution, then type-directed parsing.
func ParseWithType(rawValue string, field schema.InnerSchemaField, fieldName string) (value.Value, error) {
	unopt := value.Unoptionalize(field.Type)
	if field.Default != nil && rawValue == "" && unopt.Kind != value.TypeKindAny && unopt.Kind != value.TypeKindString {
		return *field.Default, nil
	}

	switch unopt.Kind {
	case value.TypeKindAny, value.TypeKindString:
		return value.NewString(rawValue), nil
	case value.TypeKindBool:
		b, err := parseBoolAdvanced(rawValue)
		if err != nil {
			return value.Value{}, &ErrSchemaNotSatisfied{Value: rawValue, FieldName: fieldName, Type: field.Type, Cause: err}
		}
		return value.NewBool(b), nil
	case value.TypeKindInt:
		i, err := strconv.ParseInt(strings.TrimSpace(rawValue), 10, 64)
		if err != nil {
			return value.Value{}, &ErrSchemaNotSatisfied{Value: rawValue, FieldName: fieldName, Type: field.Type, Cause: err}
		}
		return value.NewInt(i), nil
	case value.TypeKindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
		if err != nil {
			return value.Value{}, &ErrSchemaNotSatisfied{Value: rawValue, FieldName: fieldName, Type: field.Type, Cause: err}
		}
		return value.NewFloat(f), nil
	case value.TypeKindJSON:
		if !jsonLooksValid(rawValue) {
			return value.Value{}, &ErrSchemaNotSatisfied{Value: rawValue, FieldName: fieldName, Type: field.Type, Cause: errInvalidJSON}
		}
		return value.NewJSON([]byte(rawValue)), nil
	default:
		return value.Value{}, &ErrUnparsableType{Type: field.Type}
	}
}

var errInvalidJSON = errors.New("invalid json")

func jsonLooksValid(s string) bool {
	return isValidJSON([]byte(s))
}

// isCommitLiteral reports whether a fully decoded record equals the
// stable commit marker (spec §6). Matching happens before tokenization,
// not after, so a commit marker containing the separator is still
// recognized.
func isCommitLiteral(s string) bool { return s == CommitLiteral }

// isValidUTF8 guards the plaintext parsers against a raw byte payload
// that isn't valid UTF-8 before any string conversion happens.
func isValidUTF8(raw []byte) bool { return utf8.Valid(raw) }

// isCommitLiteralValue reports whether a String or Bytes value.Value
// equals the commit marker (spec §6), used by parsers that haven't yet
// decoded the record into tokens (e.g. the identity parser).
func isCommitLiteralValue(v value.Value) bool {
	if s, ok := v.AsString(); ok {
		return s == CommitLiteral
	}
	if b, ok := v.AsBytes(); ok {
		return string(b) == CommitLiteral
	}
	return false
}
