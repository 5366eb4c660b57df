package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/schema"
	"github.com/arc-self/streamcodec/internal/codec/value"
)

func jsonSchema() schema.Schema {
	return schema.Schema{
		"id":     {Type: value.Int},
		"name":   {Type: value.String},
		"amount": {Type: value.Float, Default: ptrValue(value.NewFloat(1.5))},
	}
}

func TestJsonLinesParser_BasicInsert(t *testing.T) {
	keyNames := []string{"id"}
	p, err := NewJsonLinesParser(&keyNames, []string{"id", "name"}, nil, true, jsonSchema(), event.Native)
	require.NoError(t, err)

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte(`{"id": 7, "name": "bob"}`)))
	require.NoError(t, err)
	require.Len(t, events, 1)

	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsInsert())
	keyVals, ok := parsed.Key()
	require.True(t, ok)
	id, _ := keyVals[0].AsInt()
	assert.Equal(t, int64(7), id)
}

func TestJsonLinesParser_MissingFieldUsesDefault(t *testing.T) {
	p, err := NewJsonLinesParser(nil, []string{"amount"}, nil, true, jsonSchema(), event.Native)
	require.NoError(t, err)

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte(`{}`)))
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	f, ok := parsed.Values()[0].AsFloat()
	require.True(t, ok)
	assert.Equal(t, 1.5, f)
}

func TestJsonLinesParser_MissingFieldNoDefaultIsError(t *testing.T) {
	p, err := NewJsonLinesParser(nil, []string{"name"}, nil, true, jsonSchema(), event.Native)
	require.NoError(t, err)

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte(`{}`)))
	require.NoError(t, err)
	_, err = events[0].RemoveErrors(passthroughLogic)
	var fieldErr *ErrFailedToExtractJSONField
	assert.ErrorAs(t, err, &fieldErr)
}

func TestJsonLinesParser_MalformedJSON(t *testing.T) {
	p, err := NewJsonLinesParser(nil, []string{"name"}, nil, true, jsonSchema(), event.Native)
	require.NoError(t, err)

	_, err = p.Parse(reader.RawBytes(event.Insert, []byte(`{not json`)))
	var parseErr *ErrFailedToParseJSON
	assert.ErrorAs(t, err, &parseErr)
}

func TestJsonLinesParser_CommitLiteral(t *testing.T) {
	p, err := NewJsonLinesParser(nil, []string{"name"}, nil, true, jsonSchema(), event.Native)
	require.NoError(t, err)

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte(CommitLiteral)))
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsAdvanceTime())
}
