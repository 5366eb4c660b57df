package parser

import (
	"encoding/json"
	"fmt"

	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/schema"
	"github.com/arc-self/streamcodec/internal/codec/value"
)

// ErrFailedToParseJSON wraps the raw text that failed to decode as JSON.
type ErrFailedToParseJSON struct{ Raw string }

func (e *ErrFailedToParseJSON) Error() string {
	return fmt.Sprintf("failed to parse json %q", e.Raw)
}

// ErrFailedToParseFromJSON is a per-field JSON→Value coercion failure
// (spec §4.3).
type ErrFailedToParseFromJSON struct {
	FieldName string
	Payload   json.RawMessage
	Type      value.Type
}

func (e *ErrFailedToParseFromJSON) Error() string {
	return fmt.Sprintf("failed to parse field %q with type %s from json payload: %s", e.FieldName, e.Type, e.Payload)
}

// ErrFailedToExtractJSONField is returned when a configured field is
// absent from the payload, has no default, and absence isn't tolerated.
type ErrFailedToExtractJSONField struct {
	FieldName string
	Path      string // empty when the field was looked up by bare name
	Payload   json.RawMessage
}

func (e *ErrFailedToExtractJSONField) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("field %q (path %q) not found in json payload %s", e.FieldName, e.Path, e.Payload)
	}
	return fmt.Sprintf("field %q not found in json payload %s", e.FieldName, e.Payload)
}

// valuesByNamesFromJSON implements spec §4.2's field-extraction policy
// shared by the JSON-lines and Debezium parsers: resolve each field
// (by JSON Pointer path, or by bare object key), fall back to its
// schema default, and only error on absence when fieldAbsenceIsError.
func valuesByNamesFromJSON(
	payload json.RawMessage,
	fieldNames []string,
	columnPaths map[string]string,
	fieldAbsenceIsError bool,
	sch schema.Schema,
	metadataValue value.Value,
) []event.FallibleValue {
	out := make([]event.FallibleValue, len(fieldNames))

	var asObject map[string]json.RawMessage
	_ = json.Unmarshal(payload, &asObject)

	for i, fieldName := range fieldNames {
		if fieldName == schema.MetadataFieldName {
			out[i] = event.Ok(metadataValue)
			continue
		}

		dtype := value.Any
		var defaultValue *value.Value
		if item, ok := sch[fieldName]; ok {
			dtype = item.Type
			defaultValue = item.Default
		}

		if path, ok := columnPaths[fieldName]; ok {
			raw, found := resolveJSONPointer(payload, path)
			if found {
				parsed, ok := parseValueFromJSON(raw, dtype)
				if !ok {
					out[i] = event.Err(&ErrFailedToParseFromJSON{FieldName: fieldName, Payload: raw, Type: dtype})
					continue
				}
				out[i] = event.Ok(parsed)
				continue
			}
			out[i] = fallbackForAbsentField(fieldName, path, payload, defaultValue, fieldAbsenceIsError)
			continue
		}

		raw, found := asObject[fieldName]
		if found {
			parsed, ok := parseValueFromJSON(raw, dtype)
			if !ok {
				out[i] = event.Err(&ErrFailedToParseFromJSON{FieldName: fieldName, Payload: raw, Type: dtype})
				continue
			}
			out[i] = event.Ok(parsed)
			continue
		}
		out[i] = fallbackForAbsentField(fieldName, "", payload, defaultValue, fieldAbsenceIsError)
	}
	return out
}

func fallbackForAbsentField(fieldName, path string, payload json.RawMessage, defaultValue *value.Value, fieldAbsenceIsError bool) event.FallibleValue {
	if defaultValue != nil {
		return event.Ok(*defaultValue)
	}
	if fieldAbsenceIsError {
		return event.Err(&ErrFailedToExtractJSONField{FieldName: fieldName, Path: path, Payload: payload})
	}
	return event.Ok(value.None)
}

// JsonLinesParser implements spec §4.2.
type JsonLinesParser struct {
	keyFieldNames       []string // nil means "no key columns configured"
	hasKeyColumns       bool
	valueFieldNames     []string
	columnPaths         map[string]string
	fieldAbsenceIsError bool
	schema              schema.Schema
	metadataValue       value.Value
	session             event.SessionType
}

func NewJsonLinesParser(
	keyFieldNames *[]string,
	valueFieldNames []string,
	columnPaths map[string]string,
	fieldAbsenceIsError bool,
	sch schema.Schema,
	session event.SessionType,
) (*JsonLinesParser, error) {
	var keyNames []string
	if keyFieldNames != nil {
		keyNames = *keyFieldNames
	}
	if err := schema.EnsureFieldsInSchema(keyNames, valueFieldNames, sch); err != nil {
		return nil, err
	}
	return &JsonLinesParser{
		keyFieldNames:       keyNames,
		hasKeyColumns:       keyFieldNames != nil,
		valueFieldNames:     valueFieldNames,
		columnPaths:         columnPaths,
		fieldAbsenceIsError: fieldAbsenceIsError,
		schema:              sch,
		metadataValue:       value.None,
		session:             session,
	}, nil
}

func (p *JsonLinesParser) Parse(ctx reader.Context) ([]event.ParsedEventWithErrors, error) {
	var dataEvent event.DataEventType
	var line string

	if evt, raw, ok := ctx.AsRawBytes(); ok {
		prepared, err := preparePlaintextString(raw)
		if err != nil {
			return nil, err
		}
		dataEvent, line = evt, prepared
	} else if _, val, _, hasValue, ok := ctx.AsKeyValue(); ok {
		if !hasValue {
			return nil, ErrEmptyKafkaPayload
		}
		prepared, err := preparePlaintextString(val)
		if err != nil {
			return nil, err
		}
		dataEvent, line = event.Insert, prepared
	} else if ctx.IsEmpty() {
		return nil, nil
	} else {
		return nil, reader.ErrUnsupportedReaderContext
	}

	if line == "" {
		return nil, nil
	}
	if isCommitLiteral(line) {
		return []event.ParsedEventWithErrors{event.AdvanceTime()}, nil
	}

	if !isValidJSON([]byte(line)) {
		return nil, &ErrFailedToParseJSON{Raw: line}
	}
	payload := json.RawMessage(line)

	var key event.FallibleKey
	if p.hasKeyColumns {
		fields := valuesByNamesFromJSON(payload, p.keyFieldNames, p.columnPaths, p.fieldAbsenceIsError, p.schema, p.metadataValue)
		key = keyFromFallibleValues(fields)
	} else {
		key = event.NoKey()
	}

	values := valuesByNamesFromJSON(payload, p.valueFieldNames, p.columnPaths, p.fieldAbsenceIsError, p.schema, p.metadataValue)

	evt, err := event.NewParsedEventWithErrors(p.session, dataEvent, key, values)
	if err != nil {
		return nil, err
	}
	return []event.ParsedEventWithErrors{evt}, nil
}

func (p *JsonLinesParser) OnNewSourceStarted(metadata SourceMetadata) {
	if metadata != nil {
		p.metadataValue = metadata.ToValue()
	}
}

func (p *JsonLinesParser) ColumnCount() int { return len(p.valueFieldNames) }

func (p *JsonLinesParser) SessionType() event.SessionType { return p.session }
