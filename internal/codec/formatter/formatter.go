// Package formatter implements the family of Formatters that turn a
// ParsedEvent's key/values/time/diff tuple back into bytes bound for an
// external sink (spec §4.7-4.12).
package formatter

import (
	"errors"
	"fmt"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

// Context is the formatted result of one event: zero or more byte
// payloads (some sinks need a header row ahead of the data), the key
// the event was keyed on, the projected value vector, and the commit
// time/diff pair.
type Context struct {
	Payloads [][]byte
	Key      value.Key
	Values   []value.Value
	Time     int64
	Diff     int
}

// NewContext builds a Context carrying one or more payloads.
func NewContext(payloads [][]byte, key value.Key, values []value.Value, time int64, diff int) Context {
	return Context{Payloads: payloads, Key: key, Values: values, Time: time, Diff: diff}
}

// NewSinglePayloadContext builds a Context carrying exactly one payload,
// the shape every formatter but the delimited one produces.
func NewSinglePayloadContext(payload []byte, key value.Key, values []value.Value, time int64, diff int) Context {
	return Context{Payloads: [][]byte{payload}, Key: key, Values: values, Time: time, Diff: diff}
}

// Errors shared across formatters (spec §7).
var (
	ErrColumnsValuesCountMismatch = errors.New("count of value columns and count of values mismatch")
	ErrIncorrectColumnIndex       = errors.New("incorrect column index")
	ErrUnsupportedValueType       = errors.New("this connector doesn't support this value type")
)

// ErrTypeNonJSONSerializable is returned by the JSON-lines formatter for
// a value.Type it cannot round-trip through JSON.
type ErrTypeNonJSONSerializable struct{ Type value.Type }

func (e *ErrTypeNonJSONSerializable) Error() string {
	return fmt.Sprintf("type %s is not json-serializable", e.Type)
}

// Formatter is the capability interface every concrete formatter
// implements (spec §9 design note: no inheritance, no dynamic dispatch).
type Formatter interface {
	Format(key value.Key, values []value.Value, time int64, diff int) (Context, error)
}
