package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/value"
)

// DebeziumDBType selects the envelope dialect of a Debezium change-data
// message. Postgres carries full before/after row state; MongoDB's
// oplog-derived envelope does not, so it is restricted to an Upsert
// session (spec §4.4).
type DebeziumDBType int

const (
	DebeziumPostgres DebeziumDBType = iota
	DebeziumMongoDB
)

// debeziumEmptyKeyPayload stands in for a Kafka record with no key at
// all, matched against an unkeyed parser configuration.
const debeziumEmptyKeyPayload = "{}"

var (
	ErrKeyValueTokensIncorrect = errors.New("key-value pair produced by RawBytes transport is incorrect")
	ErrNoPayloadAtTopLevel     = errors.New("debezium message doesn't contain the payload at the top level")
	ErrOperationFieldMissing   = errors.New("debezium operation field is missing")
	ErrIncorrectJSONRoot       = errors.New("debezium message payload isn't a json object")
)

// ErrUnsupportedDebeziumOperation is returned for a payload.op value
// outside r/c/u/d.
type ErrUnsupportedDebeziumOperation struct{ Op string }

func (e *ErrUnsupportedDebeziumOperation) Error() string {
	return fmt.Sprintf("unsupported debezium operation %q", e.Op)
}

// DebeziumMessageParser implements spec §4.4: parses the Debezium JSON
// envelope produced by CDC connectors, dispatching on payload.op.
type DebeziumMessageParser struct {
	keyFieldNames   []string
	hasKeyColumns   bool
	valueFieldNames []string
	separator       string
	dbType          DebeziumDBType
}

func NewDebeziumMessageParser(keyFieldNames *[]string, valueFieldNames []string, separator string, dbType DebeziumDBType) *DebeziumMessageParser {
	var keyNames []string
	if keyFieldNames != nil {
		keyNames = *keyFieldNames
	}
	return &DebeziumMessageParser{
		keyFieldNames:   keyNames,
		hasKeyColumns:   keyFieldNames != nil,
		valueFieldNames: valueFieldNames,
		separator:       separator,
		dbType:          dbType,
	}
}

// DebeziumStandardSeparator is the default RawBytes key/value delimiter
// used when Debezium messages arrive outside a Kafka KeyValue context.
const DebeziumStandardSeparator = "        "

type debeziumEnvelope struct {
	Payload struct {
		Op     string          `json:"op"`
		Before json.RawMessage `json:"before"`
		After  json.RawMessage `json:"after"`
	} `json:"payload"`
}

func (p *DebeziumMessageParser) parseEvent(key, val json.RawMessage, dataEvent event.DataEventType) (event.ParsedEventWithErrors, error) {
	prepared := val
	var asString string
	if err := json.Unmarshal(val, &asString); err == nil {
		if !isValidJSON([]byte(asString)) {
			return event.ParsedEventWithErrors{}, &ErrFailedToParseJSON{Raw: asString}
		}
		prepared = json.RawMessage(asString)
	}

	var k event.FallibleKey
	if p.hasKeyColumns {
		fields := valuesByNamesFromJSON(key, p.keyFieldNames, nil, true, nil, value.None)
		k = keyFromFallibleValues(fields)
	} else {
		k = event.NoKey()
	}

	values := valuesByNamesFromJSON(prepared, p.valueFieldNames, nil, true, nil, value.None)

	switch dataEvent {
	case event.Insert:
		return event.NewInsert(k, values), nil
	case event.Delete:
		return event.NewDelete(k, values), nil
	default:
		return event.NewUpsertValues(k, values), nil
	}
}

func (p *DebeziumMessageParser) parseReadOrCreate(key, payload json.RawMessage) ([]event.ParsedEventWithErrors, error) {
	after := jsonField(payload, "after")
	var dataEvent event.DataEventType
	switch p.dbType {
	case DebeziumPostgres:
		dataEvent = event.Insert
	default:
		dataEvent = event.UpsertEvent
	}
	evt, err := p.parseEvent(key, after, dataEvent)
	if err != nil {
		return nil, err
	}
	return []event.ParsedEventWithErrors{evt}, nil
}

func (p *DebeziumMessageParser) parseDelete(key, payload json.RawMessage) ([]event.ParsedEventWithErrors, error) {
	if p.dbType == DebeziumMongoDB {
		// Mongo's delete event carries no "before" row, only the key:
		// it can only be expressed as an upsert-delete (spec §4.4).
		var k event.FallibleKey
		if p.hasKeyColumns {
			fields := valuesByNamesFromJSON(key, p.keyFieldNames, nil, true, nil, value.None)
			k = keyFromFallibleValues(fields)
		} else {
			k = event.NoKey()
		}
		return []event.ParsedEventWithErrors{event.NewUpsertDelete(k)}, nil
	}

	before := jsonField(payload, "before")
	evt, err := p.parseEvent(key, before, event.Delete)
	if err != nil {
		return nil, err
	}
	return []event.ParsedEventWithErrors{evt}, nil
}

func (p *DebeziumMessageParser) parseUpdate(key, payload json.RawMessage) ([]event.ParsedEventWithErrors, error) {
	switch p.dbType {
	case DebeziumMongoDB:
		after := jsonField(payload, "after")
		evt, err := p.parseEvent(key, after, event.UpsertEvent)
		if err != nil {
			return nil, err
		}
		return []event.ParsedEventWithErrors{evt}, nil
	default:
		before := jsonField(payload, "before")
		evtBefore, err := p.parseEvent(key, before, event.Delete)
		if err != nil {
			return nil, err
		}
		after := jsonField(payload, "after")
		evtAfter, err := p.parseEvent(key, after, event.Insert)
		if err != nil {
			return nil, err
		}
		return []event.ParsedEventWithErrors{evtBefore, evtAfter}, nil
	}
}

func jsonField(obj json.RawMessage, name string) json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return json.RawMessage("null")
	}
	v, ok := m[name]
	if !ok {
		return json.RawMessage("null")
	}
	return v
}

func (p *DebeziumMessageParser) Parse(ctx reader.Context) ([]event.ParsedEventWithErrors, error) {
	var rawKeyChange, rawValueChange string

	if evt, raw, ok := ctx.AsRawBytes(); ok {
		// Debezium messages only ever arrive from Kafka in production;
		// RawBytes is exercised by unit tests only, always as an Insert.
		_ = evt
		line, err := preparePlaintextString(raw)
		if err != nil {
			return nil, err
		}
		tokens := splitOnce(line, p.separator)
		if len(tokens) != 2 {
			return nil, ErrKeyValueTokensIncorrect
		}
		rawKeyChange, rawValueChange = tokens[0], tokens[1]
	} else if k, v, hasKey, hasValue, ok := ctx.AsKeyValue(); ok {
		if hasKey {
			key, err := preparePlaintextString(k)
			if err != nil {
				return nil, err
			}
			rawKeyChange = key
		} else if p.hasKeyColumns {
			return nil, ErrEmptyKafkaPayload
		} else {
			rawKeyChange = debeziumEmptyKeyPayload
		}
		if !hasValue {
			return nil, ErrEmptyKafkaPayload
		}
		val, err := preparePlaintextString(v)
		if err != nil {
			return nil, err
		}
		rawValueChange = val
	} else {
		return nil, reader.ErrUnsupportedReaderContext
	}

	if !isValidJSON([]byte(rawValueChange)) {
		return nil, &ErrFailedToParseJSON{Raw: rawValueChange}
	}
	var probe any
	_ = json.Unmarshal([]byte(rawValueChange), &probe)
	if probe == nil {
		return nil, nil // tombstone event: nothing to do
	}
	if _, isObject := probe.(map[string]any); !isObject {
		return nil, ErrIncorrectJSONRoot
	}
	changePayload := json.RawMessage(rawValueChange)

	if !isValidJSON([]byte(rawKeyChange)) {
		return nil, &ErrFailedToParseJSON{Raw: rawKeyChange}
	}
	changeKey := json.RawMessage(rawKeyChange)

	var envelope debeziumEnvelope
	if err := json.Unmarshal(changePayload, &envelope); err != nil {
		return nil, ErrNoPayloadAtTopLevel
	}
	var rawTop map[string]json.RawMessage
	_ = json.Unmarshal(changePayload, &rawTop)
	if _, ok := rawTop["payload"]; !ok {
		return nil, ErrNoPayloadAtTopLevel
	}

	innerKey := jsonField(changeKey, "payload")
	innerPayload := jsonField(changePayload, "payload")

	switch envelope.Payload.Op {
	case "r", "c":
		return p.parseReadOrCreate(innerKey, innerPayload)
	case "u":
		return p.parseUpdate(innerKey, innerPayload)
	case "d":
		return p.parseDelete(innerKey, innerPayload)
	case "":
		return nil, ErrOperationFieldMissing
	default:
		return nil, &ErrUnsupportedDebeziumOperation{Op: envelope.Payload.Op}
	}
}

func (p *DebeziumMessageParser) OnNewSourceStarted(SourceMetadata) {}

func (p *DebeziumMessageParser) ColumnCount() int { return len(p.valueFieldNames) }

// SessionType mirrors the original's rationale: MongoDB's oplog-derived
// events carry no previous row state, so only same-key upserts are
// representable; Postgres's WAL-derived events carry full before/after
// rows and use the Native session.
func (p *DebeziumMessageParser) SessionType() event.SessionType {
	if p.dbType == DebeziumMongoDB {
		return event.Upsert
	}
	return event.Native
}

func splitOnce(s, sep string) []string {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return []string{s}
	}
	return []string{s[:idx], s[idx+len(sep):]}
}
