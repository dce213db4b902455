package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanopyx-go/liquidengine/pkg/stats"
)

func openTestStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Options{DataDir: dir, InMemory: true, Retention: retention})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndAll(t *testing.T) {
	s := openTestStore(t, 0)

	base := time.Unix(1_700_000_000, 0).UTC()
	require.NoError(t, s.Append(Event{Backend: stats.DesignationThreaded, Fingerprint: "fp-1", Elapsed: 0.01, Timestamp: base}))
	require.NoError(t, s.Append(Event{Backend: stats.DesignationOpenCL, Fingerprint: "fp-2", Elapsed: 0.002, Timestamp: base.Add(time.Second)}))

	events, err := s.All()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, stats.DesignationThreaded, events[0].Backend)
	assert.Equal(t, stats.DesignationOpenCL, events[1].Backend)
	assert.True(t, events[0].Succeeded())
}

func TestAppendRecordsErrorOutcome(t *testing.T) {
	s := openTestStore(t, 0)

	require.NoError(t, s.Append(Event{
		Backend:     stats.DesignationOpenCL,
		Fingerprint: "fp-1",
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
		Err:         "backend unavailable",
	}))

	events, err := s.All()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Succeeded())
}

func TestForFingerprintUsesSecondaryIndex(t *testing.T) {
	s := openTestStore(t, 0)
	base := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, s.Append(Event{Backend: stats.DesignationThreaded, Fingerprint: "fp-a", Elapsed: 1, Timestamp: base}))
	require.NoError(t, s.Append(Event{Backend: stats.DesignationOpenCL, Fingerprint: "fp-b", Elapsed: 1, Timestamp: base.Add(time.Second)}))
	require.NoError(t, s.Append(Event{Backend: stats.DesignationThreaded, Fingerprint: "fp-a", Elapsed: 2, Timestamp: base.Add(2 * time.Second)}))

	events, err := s.ForFingerprint("fp-a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.InDelta(t, 1.0, events[0].Elapsed, 1e-9)
	assert.InDelta(t, 2.0, events[1].Elapsed, 1e-9)
}

func TestForFingerprintEmptyWhenUnknown(t *testing.T) {
	s := openTestStore(t, 0)
	events, err := s.ForFingerprint("never-recorded")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPruneRemovesOnlyExpiredEvents(t *testing.T) {
	s := openTestStore(t, time.Hour)
	now := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, s.Append(Event{Backend: stats.DesignationThreaded, Fingerprint: "old", Timestamp: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.Append(Event{Backend: stats.DesignationThreaded, Fingerprint: "fresh", Timestamp: now.Add(-time.Minute)}))

	removed, err := s.Prune(now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	events, err := s.All()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "fresh", events[0].Fingerprint)
}

func TestPruneIsNoOpWithZeroRetention(t *testing.T) {
	s := openTestStore(t, 0)
	require.NoError(t, s.Append(Event{Backend: stats.DesignationThreaded, Fingerprint: "old", Timestamp: time.Unix(0, 0)}))

	removed, err := s.Prune(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestAppendAfterCloseReturnsErrStoreClosed(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{DataDir: dir, InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Append(Event{Backend: stats.DesignationThreaded, Fingerprint: "fp", Timestamp: time.Now()})
	require.ErrorIs(t, err, ErrStoreClosed)
}
