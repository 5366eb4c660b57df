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

func TestIdentityParser_RawBytesBodyPassthrough(t *testing.T) {
	p := NewIdentityParser([]string{"body"}, true, AlwaysAutogenerate, event.Native)

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte("hello")))
	require.NoError(t, err)
	require.Len(t, events, 1)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	s, ok := parsed.Values()[0].AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", s)
	_, hasKey := parsed.Key()
	assert.False(t, hasKey)
}

func TestIdentityParser_PreferMessageKeyUsesTransportKey(t *testing.T) {
	p := NewIdentityParser([]string{"body"}, true, PreferMessageKey, event.Native)

	events, err := p.Parse(reader.KeyValue([]byte("k1"), []byte("payload"), true, true))
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	keyVals, ok := parsed.Key()
	require.True(t, ok)
	s, _ := keyVals[0].AsString()
	assert.Equal(t, "k1", s)
}

func TestIdentityParser_PreferMessageKeyFallsBackToNoKeyWhenAbsent(t *testing.T) {
	p := NewIdentityParser([]string{"body"}, true, PreferMessageKey, event.Native)

	events, err := p.Parse(reader.KeyValue(nil, []byte("payload"), false, true))
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	_, hasKey := parsed.Key()
	assert.False(t, hasKey)
}

func TestIdentityParser_MetadataColumnSubstituted(t *testing.T) {
	p := NewIdentityParser([]string{schema.MetadataFieldName, "body"}, true, AlwaysAutogenerate, event.Native)
	p.OnNewSourceStarted(stringMetadata("topic-a"))

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte("payload")))
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	meta, ok := parsed.Values()[0].AsString()
	require.True(t, ok)
	assert.Equal(t, "topic-a", meta)
	body, _ := parsed.Values()[1].AsString()
	assert.Equal(t, "payload", body)
}

func TestIdentityParser_CommitLiteralAdvancesTime(t *testing.T) {
	p := NewIdentityParser([]string{"body"}, true, AlwaysAutogenerate, event.Native)

	events, err := p.Parse(reader.RawBytes(event.Insert, []byte(CommitLiteral)))
	require.NoError(t, err)
	parsed, err := events[0].RemoveErrors(passthroughLogic)
	require.NoError(t, err)
	assert.True(t, parsed.IsAdvanceTime())
}

// stringMetadata is a minimal SourceMetadata implementation for tests.
type stringMetadata string

func (s stringMetadata) ToValue() value.Value { return value.NewString(string(s)) }
