package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
)

func debeziumKV(t *testing.T, p *DebeziumMessageParser, key, val string) []event.ParsedEventWithErrors {
	t.Helper()
	events, err := p.Parse(reader.KeyValue([]byte(key), []byte(val), key != "", true))
	require.NoError(t, err)
	return events
}

func TestDebeziumParser_PostgresCreate(t *testing.T) {
	keyNames := []string{"id"}
	p := NewDebeziumMessageParser(&keyNames, []string{"id", "name"}, DebeziumStandardSeparator, DebeziumPostgres)

	events := debeziumKV(t, p,
		`{"payload": {"id": 1}}`,
		`{"payload": {"op": "c", "before": null, "after": {"id": 1, "name": "alice"}}}`,
	)
	require.Len(t, events, 1)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsInsert())
	name, _ := parsed.Values()[1].AsString()
	assert.Equal(t, "alice", name)
}

func TestDebeziumParser_PostgresUpdateProducesDeleteThenInsert(t *testing.T) {
	keyNames := []string{"id"}
	p := NewDebeziumMessageParser(&keyNames, []string{"id", "name"}, DebeziumStandardSeparator, DebeziumPostgres)

	events := debeziumKV(t, p,
		`{"payload": {"id": 1}}`,
		`{"payload": {"op": "u", "before": {"id": 1, "name": "old"}, "after": {"id": 1, "name": "new"}}}`,
	)
	require.Len(t, events, 2)

	del, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, del.IsDelete())

	ins, err := events[1].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, ins.IsInsert())
	name, _ := ins.Values()[1].AsString()
	assert.Equal(t, "new", name)
}

func TestDebeziumParser_PostgresDelete(t *testing.T) {
	keyNames := []string{"id"}
	p := NewDebeziumMessageParser(&keyNames, []string{"id", "name"}, DebeziumStandardSeparator, DebeziumPostgres)

	events := debeziumKV(t, p,
		`{"payload": {"id": 1}}`,
		`{"payload": {"op": "d", "before": {"id": 1, "name": "gone"}, "after": null}}`,
	)
	require.Len(t, events, 1)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsDelete())
}

func TestDebeziumParser_MongoDeleteIsUpsertDelete(t *testing.T) {
	keyNames := []string{"id"}
	p := NewDebeziumMessageParser(&keyNames, []string{"id", "name"}, DebeziumStandardSeparator, DebeziumMongoDB)

	events := debeziumKV(t, p,
		`{"payload": {"id": 9}}`,
		`{"payload": {"op": "d", "before": null, "after": null}}`,
	)
	require.Len(t, events, 1)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsUpsertDelete())
}

func TestDebeziumParser_MongoUpdateIsUpsert(t *testing.T) {
	keyNames := []string{"id"}
	p := NewDebeziumMessageParser(&keyNames, []string{"id", "name"}, DebeziumStandardSeparator, DebeziumMongoDB)
	assert.Equal(t, event.Upsert, p.SessionType())

	events := debeziumKV(t, p,
		`{"payload": {"id": 9}}`,
		`{"payload": {"op": "u", "after": {"id": 9, "name": "bob"}}}`,
	)
	require.Len(t, events, 1)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsUpsert())
}

func TestDebeziumParser_TombstoneEventIsSkipped(t *testing.T) {
	keyNames := []string{"id"}
	p := NewDebeziumMessageParser(&keyNames, nil, DebeziumStandardSeparator, DebeziumPostgres)

	events, err := p.Parse(reader.KeyValue([]byte(`{"payload": {"id": 1}}`), []byte("null"), true, true))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDebeziumParser_UnsupportedOperation(t *testing.T) {
	keyNames := []string{"id"}
	p := NewDebeziumMessageParser(&keyNames, []string{"id"}, DebeziumStandardSeparator, DebeziumPostgres)

	_, err := p.Parse(reader.KeyValue([]byte(`{"payload": {"id": 1}}`), []byte(`{"payload": {"op": "x"}}`), true, true))
	var opErr *ErrUnsupportedDebeziumOperation
	assert.ErrorAs(t, err, &opErr)
}

func TestDebeziumParser_MissingOperationField(t *testing.T) {
	keyNames := []string{"id"}
	p := NewDebeziumMessageParser(&keyNames, []string{"id"}, DebeziumStandardSeparator, DebeziumPostgres)

	_, err := p.Parse(reader.KeyValue([]byte(`{"payload": {"id": 1}}`), []byte(`{"payload": {}}`), true, true))
	assert.ErrorIs(t, err, ErrOperationFieldMissing)
}

func TestDebeziumParser_NoKeyColumnsUsesEmptyKey(t *testing.T) {
	p := NewDebeziumMessageParser(nil, []string{"id", "name"}, DebeziumStandardSeparator, DebeziumPostgres)

	events := debeziumKV(t, p,
		"",
		`{"payload": {"op": "c", "after": {"id": 1, "name": "alice"}}}`,
	)
	require.Len(t, events, 1)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	_, ok := parsed.Key()
	assert.False(t, ok)
}
