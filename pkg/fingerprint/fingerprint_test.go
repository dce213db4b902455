package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeShape struct{ dims []int }

func (f fakeShape) Shape() []int { return f.dims }

func TestFingerprintDeterministic(t *testing.T) {
	args := []any{fakeShape{[]int{3, 64, 32}}, 4.0}
	kwargs := map[string]any{"scale": 4.0, "mode": "bicubic"}

	a := Fingerprint(args, kwargs)
	b := Fingerprint(args, kwargs)
	assert.Equal(t, a, b, "fingerprint must be a pure function of its inputs")
}

func TestFingerprintKwargOrderIndependent(t *testing.T) {
	args := []any{1}
	a := Fingerprint(args, map[string]any{"a": 1, "b": 2})
	b := Fingerprint(args, map[string]any{"b": 2, "a": 1})
	assert.Equal(t, a, b, "kwargs are sorted by key so insertion order cannot matter")
}

func TestFingerprintRendersShapesAndNumbers(t *testing.T) {
	fp := Fingerprint([]any{fakeShape{[]int{3, 64, 32}}, 4}, nil)
	assert.Contains(t, fp, "shape(3,64,32)")
	assert.Contains(t, fp, "number(4)")
}

func TestParseRoundTripsShapesAndNumbers(t *testing.T) {
	fp := Fingerprint([]any{fakeShape{[]int{3, 64, 32}}, fakeShape{[]int{3}}, 4.0}, map[string]any{"scale": 4.0})

	shapes, numbers := Parse(fp)
	require.Len(t, shapes, 4)
	assert.ElementsMatch(t, []float64{3, 64, 32, 3}, shapes)
	require.Len(t, numbers, 2)
	assert.ElementsMatch(t, []float64{4, 4}, numbers)
}

func TestScoreEmptyProductsAreOne(t *testing.T) {
	assert.Equal(t, 1.0, Score("([], {})"))
}

func TestScoreMultipliesShapesAndNumbers(t *testing.T) {
	fp := Fingerprint([]any{fakeShape{[]int{2, 3}}, 4.0}, nil)
	assert.Equal(t, 24.0, Score(fp))
}

func TestScoreIsMemoized(t *testing.T) {
	fp := Fingerprint([]any{fakeShape{[]int{5, 5}}}, nil)
	first := Score(fp)
	second := Score(fp)
	assert.Equal(t, first, second)
}
