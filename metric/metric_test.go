package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 2}
	assert.Equal(t, float32(9), SquaredL2(a, b))
	assert.Equal(t, float32(0), SquaredL2(a, a))
}

func TestNegatedInnerProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.Equal(t, float32(-(4+10+18)), NegatedInnerProduct(a, b))
}

func TestNewKnownKinds(t *testing.T) {
	f, err := New(L2)
	require.NoError(t, err)
	assert.Equal(t, float32(1), f([]float32{0}, []float32{1}))

	f, err = New(MIPS)
	require.NoError(t, err)
	assert.Equal(t, float32(-6), f([]float32{2}, []float32{3}))
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(Kind("bogus"))
	require.Error(t, err)
}
