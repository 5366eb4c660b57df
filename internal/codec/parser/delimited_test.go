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

func testSchema() schema.Schema {
	return schema.Schema{
		"id":     {Type: value.Int},
		"name":   {Type: value.String},
		"active": {Type: value.Bool},
		"score":  {Type: value.Float, Default: ptrValue(value.NewFloat(0))},
	}
}

func ptrValue(v value.Value) *value.Value { return &v }

func newDsv(t *testing.T, keyNames *[]string, valueNames []string) *DsvParser {
	t.Helper()
	p, err := NewDsvParser(DsvSettings{
		KeyColumnNames:   keyNames,
		ValueColumnNames: valueNames,
		Separator:        ',',
	}, testSchema())
	require.NoError(t, err)
	return p
}

func feedHeader(t *testing.T, p *DsvParser, header string) {
	t.Helper()
	out, err := p.Parse(reader.RawBytes(event.Insert, []byte(header)))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDsvParser_HeaderThenInsert(t *testing.T) {
	keyNames := []string{"id"}
	p := newDsv(t, &keyNames, []string{"id", "name", "active"})
	p.OnNewSourceStarted(nil)

	feedHeader(t, p, "id,name,active")

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte("1,alice,yes")))
	require.NoError(t, err)
	require.Len(t, events, 1)

	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsInsert())

	keyVals, ok := parsed.Key()
	require.True(t, ok)
	id, _ := keyVals[0].AsInt()
	assert.Equal(t, int64(1), id)

	name, _ := parsed.Values()[1].AsString()
	assert.Equal(t, "alice", name)
	active, _ := parsed.Values()[2].AsBool()
	assert.True(t, active)
}

func TestDsvParser_BooleanVocabularyTolerance(t *testing.T) {
	p := newDsv(t, nil, []string{"active"})
	p.OnNewSourceStarted(nil)
	feedHeader(t, p, "active")

	for _, truthy := range []string{"true", "YES", "On", "1", "t", "y"} {
		events, err := p.Parse(reader.RawBytes(event.Insert, []byte(truthy)))
		require.NoError(t, err)
		parsed, err := events[0].RemoveErrors(passthroughLogic)
		require.NoError(t, err)
		b, ok := parsed.Values()[0].AsBool()
		require.True(t, ok)
		assert.True(t, b, "expected %q to parse truthy", truthy)
	}

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte("maybe")))
	require.NoError(t, err)
	_, err = events[0].RemoveErrors(passthroughLogic)
	assert.Error(t, err)
}

func TestDsvParser_DefaultSubstitutionOnEmptyToken(t *testing.T) {
	p := newDsv(t, nil, []string{"id", "score"})
	p.OnNewSourceStarted(nil)
	feedHeader(t, p, "id,score")

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte("5,")))
	require.NoError(t, err)
	require.Len(t, events, 1)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	f, ok := parsed.Values()[1].AsFloat()
	require.True(t, ok)
	assert.Equal(t, 0.0, f)
}

func TestDsvParser_CommitLiteralAdvancesTime(t *testing.T) {
	p := newDsv(t, nil, []string{"id"})
	p.OnNewSourceStarted(nil)
	feedHeader(t, p, "id")

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte(CommitLiteral)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsAdvanceTime())
}

func TestDsvParser_UpsertRejected(t *testing.T) {
	p := newDsv(t, nil, []string{"id"})
	p.OnNewSourceStarted(nil)
	feedHeader(t, p, "id")

	_, err := p.Parse(reader.RawBytes(event.UpsertEvent, []byte("1")))
	assert.ErrorIs(t, err, ErrUpsertNotSupportedByDelimitedParser)
}

func TestDsvParser_FieldMissingFromHeaderIsFatal(t *testing.T) {
	p := newDsv(t, nil, []string{"id", "name"})
	p.OnNewSourceStarted(nil)

	_, err := p.Parse(reader.RawBytes(event.Insert, []byte("id")))
	var headerErr *ErrFieldsNotFoundInHeader
	assert.ErrorAs(t, err, &headerErr)
}

func TestDsvParser_RepeatedSchemaNameProducesIdenticalValues(t *testing.T) {
	p := newDsv(t, nil, []string{"name", "name"})
	p.OnNewSourceStarted(nil)
	feedHeader(t, p, "id,name")

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte("1,alice")))
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	a, _ := parsed.Values()[0].AsString()
	b, _ := parsed.Values()[1].AsString()
	assert.Equal(t, "alice", a)
	assert.Equal(t, "alice", b)
}

func passthroughLogic(fields []event.FallibleValue) ([]value.Value, error) {
	out := make([]value.Value, len(fields))
	for i, f := range fields {
		if f.IsError() {
			return nil, f.Err
		}
		out[i] = f.Value
	}
	return out, nil
}
