package formatter

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

func TestJsonLinesFormatter_EmitsFieldsAndTrailingKeys(t *testing.T) {
	f := NewJsonLinesFormatter([]string{"id", "name"})
	ctx, err := f.Format(uuid.New(), []value.Value{value.NewInt(1), value.NewString("alice")}, 7, 0)
	require.NoError(t, err)
	require.Len(t, ctx.Payloads, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(ctx.Payloads[0], &decoded))
	assert.Equal(t, float64(1), decoded["id"])
	assert.Equal(t, "alice", decoded["name"])
	assert.Equal(t, float64(7), decoded["time"])
	assert.Equal(t, float64(0), decoded["diff"])
}

func TestJsonLinesFormatter_ColumnCountMismatch(t *testing.T) {
	f := NewJsonLinesFormatter([]string{"id", "name"})
	_, err := f.Format(uuid.New(), []value.Value{value.NewInt(1)}, 0, 0)
	assert.ErrorIs(t, err, ErrColumnsValuesCountMismatch)
}

func TestJsonLinesFormatter_ErrorValueIsNonSerializable(t *testing.T) {
	f := NewJsonLinesFormatter([]string{"payload"})
	_, err := f.Format(uuid.New(), []value.Value{value.Error}, 0, 0)
	assert.ErrorIs(t, err, value.ErrErrorValueNonJSONSerializable)
}
