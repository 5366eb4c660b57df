package parser

import (
	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/schema"
	"github.com/arc-self/streamcodec/internal/codec/value"
)

// TransparentParser receives already-typed values straight from a
// reader's Diff context and only applies the schema's default
// substitution policy; it does no byte-level parsing at all (spec
// §4.6).
type TransparentParser struct {
	keyFieldNames   []string
	hasKeyColumns   bool
	valueFieldNames []string
	schema          schema.Schema
	session         event.SessionType
}

func NewTransparentParser(keyFieldNames *[]string, valueFieldNames []string, sch schema.Schema, session event.SessionType) (*TransparentParser, error) {
	var keyNames []string
	if keyFieldNames != nil {
		keyNames = *keyFieldNames
	}
	if err := schema.EnsureFieldsInSchema(keyNames, valueFieldNames, sch); err != nil {
		return nil, err
	}
	return &TransparentParser{
		keyFieldNames:   keyNames,
		hasKeyColumns:   keyFieldNames != nil,
		valueFieldNames: valueFieldNames,
		schema:          sch,
		session:         session,
	}, nil
}

func (p *TransparentParser) Parse(ctx reader.Context) ([]event.ParsedEventWithErrors, error) {
	if ctx.IsEmpty() {
		return nil, nil
	}
	dataEvent, diffKey, values, ok := ctx.AsDiff()
	if !ok {
		return nil, reader.ErrUnsupportedReaderContext
	}
	if values.Special == reader.SpecialEventCommit {
		return []event.ParsedEventWithErrors{event.AdvanceTime()}, nil
	}

	var key event.FallibleKey
	if diffKey != nil {
		key = event.KeyOf([]value.Value{value.NewPointer(*diffKey)})
	} else if p.hasKeyColumns {
		key = p.projectFields(p.keyFieldNames, values)
	} else {
		key = event.NoKey()
	}

	projected := p.projectFallibleFields(p.valueFieldNames, values)

	evt, err := event.NewParsedEventWithErrors(p.session, dataEvent, key, projected)
	if err != nil {
		return nil, err
	}
	return []event.ParsedEventWithErrors{evt}, nil
}

func (p *TransparentParser) projectFields(names []string, values reader.ValuesByName) event.FallibleKey {
	out := make([]value.Value, len(names))
	for i, name := range names {
		supplied, has := values.Get(name)
		var suppliedPtr *value.Value
		if has {
			suppliedPtr = &supplied
		}
		v, err := p.schema[name].MaybeUseDefault(name, suppliedPtr)
		if err != nil {
			return event.KeyErr(err)
		}
		out[i] = v
	}
	return event.KeyOf(out)
}

func (p *TransparentParser) projectFallibleFields(names []string, values reader.ValuesByName) []event.FallibleValue {
	out := make([]event.FallibleValue, len(names))
	for i, name := range names {
		supplied, has := values.Get(name)
		var suppliedPtr *value.Value
		if has {
			suppliedPtr = &supplied
		}
		v, err := p.schema[name].MaybeUseDefault(name, suppliedPtr)
		if err != nil {
			out[i] = event.Err(err)
			continue
		}
		out[i] = event.Ok(v)
	}
	return out
}

func (p *TransparentParser) OnNewSourceStarted(SourceMetadata) {}

func (p *TransparentParser) ColumnCount() int { return len(p.valueFieldNames) }

func (p *TransparentParser) SessionType() event.SessionType { return p.session }
