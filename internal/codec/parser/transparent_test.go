package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/streamcodec/internal/codec/event"
	"github.com/arc-self/streamcodec/internal/codec/reader"
	"github.com/arc-self/streamcodec/internal/codec/value"
	"github.com/google/uuid"
)

func TestTransparentParser_ProjectsNamedFieldsWithDefault(t *testing.T) {
	keyNames := []string{"id"}
	p, err := NewTransparentParser(&keyNames, []string{"id", "score"}, testSchema(), event.Native)
	require.NoError(t, err)

	ctx := reader.Diff(event.Insert, nil, reader.ValuesByName{
		Fields: map[string]value.Value{"id": value.NewInt(3)},
	})
	events, err := p.Parse(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)

	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	keyVals, ok := parsed.Key()
	require.True(t, ok)
	id, _ := keyVals[0].AsInt()
	assert.Equal(t, int64(3), id)

	score, ok := parsed.Values()[1].AsFloat()
	require.True(t, ok)
	assert.Equal(t, 0.0, score)
}

func TestTransparentParser_ExplicitDiffKeyWins(t *testing.T) {
	p, err := NewTransparentParser(nil, []string{"id"}, testSchema(), event.Native)
	require.NoError(t, err)

	k := uuid.New()
	ctx := reader.Diff(event.Insert, &k, reader.ValuesByName{
		Fields: map[string]value.Value{"id": value.NewInt(1)},
	})
	events, err := p.Parse(ctx)
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	keyVals, ok := parsed.Key()
	require.True(t, ok)
	require.Len(t, keyVals, 1)
	_, isPointer := keyVals[0].AsPointer()
	assert.True(t, isPointer)
}

func TestTransparentParser_CommitSpecialEvent(t *testing.T) {
	p, err := NewTransparentParser(nil, []string{"id"}, testSchema(), event.Native)
	require.NoError(t, err)

	ctx := reader.Diff(event.Insert, nil, reader.ValuesByName{Special: reader.SpecialEventCommit})
	events, err := p.Parse(ctx)
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsAdvanceTime())
}

func TestTransparentParser_UnsupportedContextIsError(t *testing.T) {
	p, err := NewTransparentParser(nil, []string{"id"}, testSchema(), event.Native)
	require.NoError(t, err)

	_, err = p.Parse(reader.RawBytes(event.Insert, []byte("x")))
	assert.ErrorIs(t, err, reader.ErrUnsupportedReaderContext)
}
