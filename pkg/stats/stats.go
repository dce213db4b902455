// Package stats implements the Liquid Engine's Statistics Store: a
// persistent mapping from backend designation to fingerprint to a running
// (sum, sum-of-squares, count) aggregate, loaded at construction and
// written through on every completed run.
//
// The on-disk format is a flat YAML document, written the way the teacher
// repo's apoc.LoadConfig/export helpers handle structured-text config: read
// whole, mutate in memory, rewrite whole.
package stats

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrConfigIO is returned when the stats file cannot be written after a
// successful run. The in-memory state is valid; the on-disk state is stale.
var ErrConfigIO = errors.New("stats: failed to persist run times")

// Designation is the canonical on-disk name of a backend variant. These
// strings are part of the on-disk contract and must never change.
type Designation string

// The eight canonical designations, in the Liquid Engine's declaration
// order. This order is used wherever backends are enumerated canonically
// (the Benchmark Harness, tie-breaking in the Selector).
const (
	DesignationOpenCL          Designation = "OpenCL"
	DesignationUnthreaded      Designation = "Unthreaded"
	DesignationThreaded        Designation = "Threaded"
	DesignationThreadedStatic  Designation = "Threaded_static"
	DesignationThreadedDynamic Designation = "Threaded_dynamic"
	DesignationThreadedGuided  Designation = "Threaded_guided"
	DesignationPython          Designation = "Python"
	DesignationNumba           Designation = "Numba"
)

// AllDesignations lists every canonical designation. Every entry in a
// persisted config is keyed by one of these, and all eight buckets are
// always present, even when empty.
var AllDesignations = []Designation{
	DesignationOpenCL,
	DesignationUnthreaded,
	DesignationThreaded,
	DesignationThreadedStatic,
	DesignationThreadedDynamic,
	DesignationThreadedGuided,
	DesignationPython,
	DesignationNumba,
}

// Aggregate is a running (sum_t, sum_t_squared, n) triple for one
// (backend, fingerprint) pair. n is always >= 1 once an Aggregate exists;
// sum_t and sum_t_squared are always >= 0.
type Aggregate struct {
	SumT   float64
	SumTSq float64
	N      int
}

// Mean returns sum_t / n.
func (a Aggregate) Mean() float64 {
	if a.N == 0 {
		return 0
	}
	return a.SumT / float64(a.N)
}

// Stdev returns the sample standard deviation, zero when n <= 1.
func (a Aggregate) Stdev() float64 {
	if a.N <= 1 {
		return 0
	}
	mean := a.Mean()
	variance := (a.SumTSq - float64(a.N)*mean*mean) / float64(a.N-1)
	if variance < 0 {
		// guards against floating-point cancellation for near-zero variance
		variance = 0
	}
	return math.Sqrt(variance)
}

// Throughput returns n / sum_t, in runs per second, and 0 when SumT == 0
// (an aggregate is only ever created by Record, which always has a
// positive elapsed duration in practice, but a zero-duration backend stub
// is not disallowed).
func (a Aggregate) Throughput() float64 {
	if a.SumT == 0 {
		return 0
	}
	return float64(a.N) / a.SumT
}

// MarshalYAML renders the aggregate as the 3-element [sum_t, sum_t_squared,
// count] sequence that is part of the on-disk contract.
func (a Aggregate) MarshalYAML() (any, error) {
	return []float64{a.SumT, a.SumTSq, float64(a.N)}, nil
}

// UnmarshalYAML reads the 3-element [sum_t, sum_t_squared, count] sequence.
func (a *Aggregate) UnmarshalYAML(value *yaml.Node) error {
	var raw []float64
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("stats: aggregate must have 3 elements, got %d", len(raw))
	}
	a.SumT, a.SumTSq, a.N = raw[0], raw[1], int(raw[2])
	return nil
}

// config is the in-memory shape of the persisted file: designation ->
// fingerprint -> aggregate.
type config map[Designation]map[string]Aggregate

func emptyConfig() config {
	c := make(config, len(AllDesignations))
	for _, d := range AllDesignations {
		c[d] = make(map[string]Aggregate)
	}
	return c
}

// Store is the Liquid Engine's Statistics Store for one engine instance.
// It is safe for concurrent use.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg config
}

// Open loads (or initializes) the store backed by the YAML file at path.
// A malformed or unreadable file is treated as empty, per the Statistics
// Store's forward-progress failure policy: the dispatcher prefers to keep
// running over refusing to start because of a corrupt stats file.
//
// When clearConfig is true, any existing file's content is ignored and the
// store starts empty (the next Record call will overwrite the file).
func Open(path string, clearConfig bool) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("stats: creating config directory: %w", err)
	}

	s := &Store{path: path, cfg: emptyConfig()}

	if clearConfig {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, nil // malformed/unreadable: treated as empty, not fatal
	}

	var loaded config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return s, nil
	}
	if loaded == nil {
		return s, nil // empty document: nothing recorded yet
	}

	for _, d := range AllDesignations {
		if loaded[d] == nil {
			loaded[d] = make(map[string]Aggregate)
		}
	}
	s.cfg = loaded
	return s, nil
}

// Record updates the (backend, fingerprint) aggregate with one completed
// run of elapsed seconds, then writes the whole store atomically. A failed
// run must never be recorded by the caller (the Statistics Store has no way
// to tell a failed run from a fast one, so this is the caller's contract to
// keep, per the Executor's "a failed run does not update statistics"
// policy).
func (s *Store) Record(backend Designation, fp string, elapsed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.cfg[backend]
	if !ok {
		bucket = make(map[string]Aggregate)
		s.cfg[backend] = bucket
	}

	agg := bucket[fp]
	agg.SumT += elapsed
	agg.SumTSq += elapsed * elapsed
	agg.N++
	bucket[fp] = agg

	return s.persistLocked()
}

// Get returns the aggregate recorded for (backend, fingerprint), if any.
func (s *Store) Get(backend Designation, fp string) (Aggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.cfg[backend][fp]
	return agg, ok
}

// Bucket returns a snapshot copy of every fingerprint recorded for backend.
// Used by the Similarity Resolver to search for the closest recorded
// fingerprint when an exact match is absent.
func (s *Store) Bucket(backend Designation) map[string]Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.cfg[backend]
	out := make(map[string]Aggregate, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Summary returns (mean, stdev, n) for (backend, fingerprint), or ok=false
// if no aggregate is recorded.
func (s *Store) Summary(backend Designation, fp string) (mean, stdev float64, n int, ok bool) {
	agg, found := s.Get(backend, fp)
	if !found {
		return 0, 0, 0, false
	}
	return agg.Mean(), agg.Stdev(), agg.N, true
}

// All returns a deep snapshot of the full persisted configuration mapping
// (every designation, even empty ones), as exposed by GetRunTimesLog.
func (s *Store) All() map[Designation]map[string]Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Designation]map[string]Aggregate, len(s.cfg))
	for d, bucket := range s.cfg {
		b := make(map[string]Aggregate, len(bucket))
		for k, v := range bucket {
			b[k] = v
		}
		out[d] = b
	}
	return out
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// persistLocked writes the whole store to disk via a temp-file-then-rename,
// so a crash mid-write never corrupts the previous valid file. Callers must
// hold s.mu.
func (s *Store) persistLocked() error {
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("%w: marshaling: %v", ErrConfigIO, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing temp file: %v", ErrConfigIO, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: renaming into place: %v", ErrConfigIO, err)
	}
	return nil
}
