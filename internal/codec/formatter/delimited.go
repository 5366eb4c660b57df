package formatter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

// DsvSettings mirrors parser.DsvSettings; it is redeclared here rather
// than imported so the formatter package has no dependency on the
// parser package (spec §4.7 and §4.1 share a wire format, not a type).
type DsvSettings struct {
	ValueColumnNames []string
	Separator        rune
}

// DsvFormatter implements spec §4.7: writes a header row once, then one
// separator-joined line per event, key/value counts must match header
// (spec §7).
type DsvFormatter struct {
	settings      DsvSettings
	headerWritten bool
}

func NewDsvFormatter(settings DsvSettings) *DsvFormatter {
	return &DsvFormatter{settings: settings}
}

func (f *DsvFormatter) Format(key value.Key, values []value.Value, time int64, diff int) (Context, error) {
	if len(values) != len(f.settings.ValueColumnNames) {
		return Context{}, ErrColumnsValuesCountMismatch
	}

	sep := string(f.settings.Separator)
	var payloads [][]byte

	if !f.headerWritten {
		fields := append(append([]string(nil), f.settings.ValueColumnNames...), "time", "diff")
		payloads = append(payloads, []byte(strings.Join(fields, sep)))
		f.headerWritten = true
	}

	tokens := make([]string, 0, len(values)+2)
	for _, v := range values {
		tokens = append(tokens, v.String())
	}
	tokens = append(tokens, fmt.Sprint(time), strconv.Itoa(diff))
	payloads = append(payloads, []byte(strings.Join(tokens, sep)))

	return NewContext(payloads, key, nil, time, diff), nil
}
