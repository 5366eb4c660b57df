package formatter

import "github.com/arc-self/streamcodec/internal/codec/value"

// NullFormatter discards every field, producing no payload at all —
// used by sinks that only care about the watermark advancing, never
// about row content (spec §4.12).
type NullFormatter struct{}

func NewNullFormatter() *NullFormatter { return &NullFormatter{} }

func (f *NullFormatter) Format(key value.Key, values []value.Value, time int64, diff int) (Context, error) {
	return NewContext(nil, key, nil, time, diff), nil
}
