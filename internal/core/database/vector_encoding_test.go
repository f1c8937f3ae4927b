package db

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, 1, -1, 3.14159, float32(math.Inf(1)), math.SmallestNonzeroFloat32}
	b := encodeVector(in)
	assert.Len(t, b, 4*len(in))
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, b[4:8], "1.0 little-endian")

	out, err := decodeVector(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
