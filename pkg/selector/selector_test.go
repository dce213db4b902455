package selector

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanopyx-go/liquidengine/pkg/stats"
)

type lockedRand struct{ r *rand.Rand }

func (l lockedRand) Float64() float64 { return l.r.Float64() }

func openTestStore(t *testing.T) *stats.Store {
	t.Helper()
	s, err := stats.Open(filepath.Join(t.TempDir(), "Engine.yaml"), false)
	require.NoError(t, err)
	return s
}

func TestSelectReturnsDefaultWhenNothingRecorded(t *testing.T) {
	s := openTestStore(t)
	got := Select([]stats.Designation{stats.DesignationThreaded, stats.DesignationOpenCL}, "fp", s, stats.DesignationUnthreaded, false, lockedRand{rand.New(rand.NewSource(1))})
	assert.Equal(t, stats.DesignationUnthreaded, got)
}

func TestSelectNoExplorationPicksHighestThroughput(t *testing.T) {
	s := openTestStore(t)
	// Threaded: 10 runs in 1s each -> throughput 1
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Record(stats.DesignationThreaded, "fp", 1.0))
	}
	// OpenCL: 10 runs in 0.1s each -> throughput 10, faster
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Record(stats.DesignationOpenCL, "fp", 0.1))
	}

	got := Select([]stats.Designation{stats.DesignationThreaded, stats.DesignationOpenCL}, "fp", s, stats.DesignationUnthreaded, false, lockedRand{rand.New(rand.NewSource(1))})
	assert.Equal(t, stats.DesignationOpenCL, got)
}

func TestSelectNoExplorationTiesBreakOnDeclarationOrder(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record(stats.DesignationThreaded, "fp", 1.0))
	require.NoError(t, s.Record(stats.DesignationOpenCL, "fp", 1.0))

	got := Select([]stats.Designation{stats.DesignationOpenCL, stats.DesignationThreaded}, "fp", s, stats.DesignationUnthreaded, false, lockedRand{rand.New(rand.NewSource(1))})
	assert.Equal(t, stats.DesignationOpenCL, got, "first occurrence in enabled order wins a tie")
}

// TestSelectExplorationConvergesToThroughputSquaredWeights runs a large
// number of weighted draws and checks, via a chi-square goodness-of-fit
// statistic, that empirical frequencies track throughput^2 proportions.
func TestSelectExplorationConvergesToThroughputSquaredWeights(t *testing.T) {
	s := openTestStore(t)
	// Threaded: throughput 1 (1 run / 1s)
	require.NoError(t, s.Record(stats.DesignationThreaded, "fp", 1.0))
	// OpenCL: throughput 2 (1 run / 0.5s)
	require.NoError(t, s.Record(stats.DesignationOpenCL, "fp", 0.5))

	enabled := []stats.Designation{stats.DesignationThreaded, stats.DesignationOpenCL}
	// weights: 1^2=1, 2^2=4 -> expected proportions 1/5, 4/5
	expectedProportion := map[stats.Designation]float64{
		stats.DesignationThreaded: 0.2,
		stats.DesignationOpenCL:   0.8,
	}

	const trials = 20000
	counts := map[stats.Designation]int{}
	src := rand.New(rand.NewSource(42))
	rng := lockedRand{src}
	for i := 0; i < trials; i++ {
		got := Select(enabled, "fp", s, stats.DesignationUnthreaded, true, rng)
		counts[got]++
	}

	chiSquare := 0.0
	for _, backend := range enabled {
		expected := expectedProportion[backend] * float64(trials)
		observed := float64(counts[backend])
		diff := observed - expected
		chiSquare += (diff * diff) / expected
	}

	// 1 degree of freedom, alpha=0.001 critical value is 10.83; a correct
	// weighted sampler over 20000 draws will fall well under this.
	assert.Less(t, chiSquare, 10.83, "empirical distribution diverges from throughput^2 weights")
}

func TestSelectExplorationWithSingleCandidateAlwaysPicksIt(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record(stats.DesignationThreaded, "fp", 1.0))

	got := Select([]stats.Designation{stats.DesignationThreaded}, "fp", s, stats.DesignationUnthreaded, true, lockedRand{rand.New(rand.NewSource(7))})
	assert.Equal(t, stats.DesignationThreaded, got)
}

func TestSelectFallsBackToSimilarityWhenExactFingerprintMissing(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Record(stats.DesignationThreaded, "([number(4)], {})", 1.0))

	got := Select([]stats.Designation{stats.DesignationThreaded}, "([number(5)], {})", s, stats.DesignationUnthreaded, false, lockedRand{rand.New(rand.NewSource(1))})
	assert.Equal(t, stats.DesignationThreaded, got)
}
