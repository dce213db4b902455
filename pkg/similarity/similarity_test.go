package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanopyx-go/liquidengine/pkg/fingerprint"
	"github.com/nanopyx-go/liquidengine/pkg/stats"
)

type fakeShape struct{ dims []int }

func (f fakeShape) Shape() []int { return f.dims }

func TestResolveEmptyBucket(t *testing.T) {
	_, ok := Resolve(map[string]stats.Aggregate{}, "anything")
	assert.False(t, ok)
}

func TestResolveSingleRecordIsPicked(t *testing.T) {
	recorded := fingerprint.Fingerprint([]any{fakeShape{[]int{3, 64, 32}}}, nil)
	target := fingerprint.Fingerprint([]any{fakeShape{[]int{3, 128, 64}}}, nil)

	bucket := map[string]stats.Aggregate{recorded: {SumT: 1, N: 1}}
	got, ok := Resolve(bucket, target)
	require.True(t, ok)
	assert.Equal(t, recorded, got)
}

func TestResolvePicksClosestScore(t *testing.T) {
	small := fingerprint.Fingerprint([]any{fakeShape{[]int{2, 2}}}, nil)  // score 4
	large := fingerprint.Fingerprint([]any{fakeShape{[]int{100, 100}}}, nil) // score 10000
	target := fingerprint.Fingerprint([]any{fakeShape{[]int{3, 3}}}, nil)    // score 9, closer to 4

	bucket := map[string]stats.Aggregate{
		small: {SumT: 1, N: 1},
		large: {SumT: 1, N: 1},
	}
	got, ok := Resolve(bucket, target)
	require.True(t, ok)
	assert.Equal(t, small, got)
}

func TestResolveFallsBackToTextWhenScoresCannotDiscriminate(t *testing.T) {
	a := fingerprint.Fingerprint([]any{"alpha-config"}, nil)
	b := fingerprint.Fingerprint([]any{"alphb-config"}, nil)
	target := fingerprint.Fingerprint([]any{"alpha-confi"}, nil)

	bucket := map[string]stats.Aggregate{
		a: {SumT: 1, N: 1},
		b: {SumT: 1, N: 1},
	}
	got, ok := Resolve(bucket, target)
	require.True(t, ok)
	assert.Equal(t, a, got, "textual fallback should prefer the lexically closer fingerprint")
}

func TestResolveIsDeterministicAcrossCalls(t *testing.T) {
	a := fingerprint.Fingerprint([]any{fakeShape{[]int{4, 4}}}, nil)
	b := fingerprint.Fingerprint([]any{fakeShape{[]int{16, 16}}}, nil)
	target := fingerprint.Fingerprint([]any{fakeShape{[]int{9, 9}}}, nil)

	bucket := map[string]stats.Aggregate{a: {SumT: 1, N: 1}, b: {SumT: 1, N: 1}}

	first, _ := Resolve(bucket, target)
	second, _ := Resolve(bucket, target)
	assert.Equal(t, first, second)
}
