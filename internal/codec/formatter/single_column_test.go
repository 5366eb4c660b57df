package formatter

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/streamcodec/internal/codec/value"
)

func TestSingleColumnFormatter_StringField(t *testing.T) {
	f := NewSingleColumnFormatter(1)
	values := []value.Value{value.NewInt(1), value.NewString("payload")}
	ctx, err := f.Format(uuid.New(), values, 5, 0)
	require.NoError(t, err)
	require.Len(t, ctx.Payloads, 1)
	assert.Equal(t, "payload", string(ctx.Payloads[0]))
}

func TestSingleColumnFormatter_BytesField(t *testing.T) {
	f := NewSingleColumnFormatter(0)
	values := []value.Value{value.NewBytes([]byte{1, 2, 3})}
	ctx, err := f.Format(uuid.New(), values, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, ctx.Payloads[0])
}

func TestSingleColumnFormatter_IndexOutOfRange(t *testing.T) {
	f := NewSingleColumnFormatter(4)
	_, err := f.Format(uuid.New(), []value.Value{value.NewString("x")}, 0, 0)
	assert.ErrorIs(t, err, ErrIncorrectColumnIndex)
}

func TestSingleColumnFormatter_UnsupportedType(t *testing.T) {
	f := NewSingleColumnFormatter(0)
	_, err := f.Format(uuid.New(), []value.Value{value.NewInt(1)}, 0, 0)
	assert.ErrorIs(t, err, ErrUnsupportedValueType)
}
