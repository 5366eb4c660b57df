package formatter

import (
	"bytes"
	"encoding/json"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

// JsonLinesFormatter emits one JSON object per event: the configured
// value fields plus trailing "time"/"diff" keys (spec §4.11).
type JsonLinesFormatter struct {
	valueFieldNames []string
}

func NewJsonLinesFormatter(valueFieldNames []string) *JsonLinesFormatter {
	return &JsonLinesFormatter{valueFieldNames: valueFieldNames}
}

func (f *JsonLinesFormatter) Format(key value.Key, values []value.Value, time int64, diff int) (Context, error) {
	if len(values) != len(f.valueFieldNames) {
		return Context{}, ErrColumnsValuesCountMismatch
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range f.valueFieldNames {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, _ := json.Marshal(name)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := values[i].MarshalJSON()
		if err != nil {
			return Context{}, err
		}
		buf.Write(valJSON)
	}
	if len(f.valueFieldNames) > 0 {
		buf.WriteByte(',')
	}
	diffJSON, _ := json.Marshal(diff)
	buf.WriteString(`"diff":`)
	buf.Write(diffJSON)
	buf.WriteByte(',')
	timeJSON, _ := json.Marshal(time)
	buf.WriteString(`"time":`)
	buf.Write(timeJSON)
	buf.WriteByte('}')

	return NewSinglePayloadContext(buf.Bytes(), key, nil, time, diff), nil
}
