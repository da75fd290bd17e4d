package sizing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/s4a/internal/archivetype"
)

func TestSigned(t *testing.T) {
	t.Parallel()

	v, err := Signed[int64](42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	n, err := Signed[int](math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, n)

	_, err = Signed[int64](math.MaxUint64)
	require.ErrorIs(t, err, archivetype.ErrSizeOverflow)
	_, err = Signed[int64](math.MaxInt64 + 1)
	require.ErrorIs(t, err, archivetype.ErrSizeOverflow)
}

func TestEnd(t *testing.T) {
	t.Parallel()

	end, ok := End(1, 2)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), end)

	_, ok = End(math.MaxUint64, 1)
	assert.False(t, ok)
}
