package parser

import (
	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/schema"
	"github.com/arc-self/streamcodec/internal/codec/value"
)

// KeyGenerationPolicy decides whether IdentityParser derives its own
// key or trusts the key the transport already attached (spec §4.5).
type KeyGenerationPolicy int

const (
	AlwaysAutogenerate KeyGenerationPolicy = iota
	PreferMessageKey
)

func (p KeyGenerationPolicy) generate(key []byte, hasKey bool, parseUTF8 bool) (event.FallibleKey, bool) {
	switch p {
	case PreferMessageKey:
		if !hasKey {
			return event.FallibleKey{}, false
		}
		v, err := valueFromBytes(key, parseUTF8)
		if err != nil {
			return event.KeyErr(err), true
		}
		return event.KeyOf([]value.Value{v}), true
	default:
		return event.FallibleKey{}, false
	}
}

func valueFromBytes(raw []byte, parseUTF8 bool) (value.Value, error) {
	if parseUTF8 {
		s, err := preparePlaintextString(raw)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewString(s), nil
	}
	return value.NewBytes(raw), nil
}

// IdentityParser passes raw transport values straight through, placing
// the message body and (optionally) its metadata into the configured
// value-field slots unparsed (spec §4.5). Useful when no byte-level
// parsing is needed at all.
type IdentityParser struct {
	valueFields         []string
	parseUTF8           bool
	metadataValue       value.Value
	keyGenerationPolicy KeyGenerationPolicy
	session             event.SessionType
}

func NewIdentityParser(valueFields []string, parseUTF8 bool, policy KeyGenerationPolicy, session event.SessionType) *IdentityParser {
	return &IdentityParser{
		valueFields:         valueFields,
		parseUTF8:           parseUTF8,
		metadataValue:       value.None,
		keyGenerationPolicy: policy,
		session:             session,
	}
}

func (p *IdentityParser) Parse(ctx reader.Context) ([]event.ParsedEventWithErrors, error) {
	var dataEvent event.DataEventType
	var key event.FallibleKey
	var hasKey bool
	var body value.Value
	var bodyErr error

	if evt, raw, ok := ctx.AsRawBytes(); ok {
		dataEvent = evt
		body, bodyErr = valueFromBytes(raw, p.parseUTF8)
	} else if k, v, hasK, hasValue, ok := ctx.AsKeyValue(); ok {
		if !hasValue {
			return nil, ErrEmptyKafkaPayload
		}
		dataEvent = event.Insert
		key, hasKey = p.keyGenerationPolicy.generate(k, hasK, p.parseUTF8)
		body, bodyErr = valueFromBytes(v, p.parseUTF8)
	} else if ctx.IsEmpty() {
		return nil, nil
	} else {
		return nil, reader.ErrUnsupportedReaderContext
	}
	if !hasKey {
		key = event.NoKey()
	}

	if bodyErr == nil && isCommitLiteralValue(body) {
		return []event.ParsedEventWithErrors{event.AdvanceTime()}, nil
	}

	bodyUsed := false
	metadataUsed := false
	values := make([]event.FallibleValue, len(p.valueFields))
	for i, field := range p.valueFields {
		if field == schema.MetadataFieldName {
			if metadataUsed {
				panic("metadata column should be used exactly once in IdentityParser")
			}
			metadataUsed = true
			values[i] = event.Ok(p.metadataValue)
			continue
		}
		if bodyUsed {
			panic("value column should be used exactly once in IdentityParser")
		}
		bodyUsed = true
		if bodyErr != nil {
			values[i] = event.Err(bodyErr)
		} else {
			values[i] = event.Ok(body)
		}
	}

	evt, err := event.NewParsedEventWithErrors(p.session, dataEvent, key, values)
	if err != nil {
		return nil, err
	}
	return []event.ParsedEventWithErrors{evt}, nil
}

func (p *IdentityParser) OnNewSourceStarted(metadata SourceMetadata) {
	if metadata != nil {
		p.metadataValue = metadata.ToValue()
	}
}

func (p *IdentityParser) ColumnCount() int { return len(p.valueFields) }

func (p *IdentityParser) SessionType() event.SessionType { return p.session }
