package formatter

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

func TestIdentityFormatter_CarriesValuesWithNoPayload(t *testing.T) {
	f := NewIdentityFormatter()
	values := []value.Value{value.NewInt(1), value.NewString("x")}
	ctx, err := f.Format(uuid.New(), values, 9, 0)
	require.NoError(t, err)
	require.Len(t, ctx.Payloads, 1)
	assert.Nil(t, ctx.Payloads[0])
	assert.Equal(t, values, ctx.Values)
}
