package formatter

import "github.com/arc-self/streamcodec/internal/codec/value"

// SingleColumnFormatter emits one configured field's raw bytes (string
// or bytes only) as the sole payload (spec §4.8).
type SingleColumnFormatter struct {
	valueFieldIndex int
}

func NewSingleColumnFormatter(valueFieldIndex int) *SingleColumnFormatter {
	return &SingleColumnFormatter{valueFieldIndex: valueFieldIndex}
}

func (f *SingleColumnFormatter) Format(key value.Key, values []value.Value, time int64, diff int) (Context, error) {
	if f.valueFieldIndex < 0 || f.valueFieldIndex >= len(values) {
		return Context{}, ErrIncorrectColumnIndex
	}
	v := values[f.valueFieldIndex]

	var payload []byte
	if b, ok := v.AsBytes(); ok {
		payload = b
	} else if s, ok := v.AsString(); ok {
		payload = []byte(s)
	} else {
		return Context{}, ErrUnsupportedValueType
	}

	return NewSinglePayloadContext(payload, key, values, time, diff), nil
}
