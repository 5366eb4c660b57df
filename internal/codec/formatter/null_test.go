package formatter

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

func TestNullFormatter_DiscardsEverything(t *testing.T) {
	f := NewNullFormatter()
	ctx, err := f.Format(uuid.New(), []value.Value{value.NewInt(1)}, 5, 1)
	require.NoError(t, err)
	assert.Empty(t, ctx.Payloads)
	assert.Nil(t, ctx.Values)
	assert.Equal(t, int64(5), ctx.Time)
	assert.Equal(t, 1, ctx.Diff)
}
