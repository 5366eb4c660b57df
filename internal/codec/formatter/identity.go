package formatter

import "github.com/arc-self/streamcodec/internal/codec/value"

// IdentityFormatter produces no byte payload; it exists purely to carry
// the key/values/time/diff tuple through to a sink that consumes typed
// values directly rather than a serialized wire format (spec §4.12).
type IdentityFormatter struct{}

func NewIdentityFormatter() *IdentityFormatter { return &IdentityFormatter{} }

func (f *IdentityFormatter) Format(key value.Key, values []value.Value, time int64, diff int) (Context, error) {
	return NewSinglePayloadContext(nil, key, values, time, diff), nil
}
