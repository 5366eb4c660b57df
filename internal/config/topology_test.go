package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

func writeTopology(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadTopology_ParsesSchemaAndDefaults(t *testing.T) {
	path := writeTopology(t, `
table: outbox
session_type: native
fields:
  id:
    type: string
  amount:
    type: int
    default: "0"
  payload:
    type: json
    default: "{}"
key_fields: [id]
value_fields: [id, amount, payload]
parser:
  kind: debezium
  settings:
    db_type: postgres
`)

	topo, err := LoadTopology(path)
	require.NoError(t, err)

	assert.Equal(t, "outbox", topo.Table)
	assert.Equal(t, []string{"id"}, topo.KeyFields)
	assert.Equal(t, "debezium", topo.ParserKind)
	assert.Equal(t, "postgres", topo.ParserSettings["db_type"])

	amountField, ok := topo.Schema["amount"]
	require.True(t, ok)
	assert.Equal(t, value.Int, amountField.Type)
	require.NotNil(t, amountField.Default)
	i, ok := amountField.Default.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(0), i)
}

func TestLoadTopology_UnknownFieldNameInKeyFields(t *testing.T) {
	path := writeTopology(t, `
table: outbox
fields:
  id:
    type: string
key_fields: [missing]
value_fields: [id]
parser:
  kind: debezium
`)

	_, err := LoadTopology(path)
	assert.Error(t, err)
}

func TestLoadTopology_UnknownType(t *testing.T) {
	path := writeTopology(t, `
table: outbox
fields:
  id:
    type: not_a_real_type
key_fields: []
value_fields: [id]
parser:
  kind: debezium
`)

	_, err := LoadTopology(path)
	assert.Error(t, err)
}
