// Package history provides an append-only, disk-backed log of every run
// the Liquid Engine's Executor has dispatched, supplementing the
// in-memory (sum, sum-of-squares, count) aggregates kept by pkg/stats with
// the individual events that produced them.
//
// Storage is BadgerDB, following the same engine used by the teacher
// repo's pkg/storage.BadgerEngine: an embedded, transactional key-value
// store, opened once per process and closed on shutdown.
//
// Key Structure:
//   - Events:          0x01 + big-endian unix-nano + big-endian sequence -> JSON(Event)
//   - Fingerprint idx: 0x02 + xxhash64(fingerprint) + big-endian unix-nano -> event key
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"github.com/nanopyx-go/liquidengine/pkg/stats"
)

const (
	prefixEvent          = byte(0x01)
	prefixFingerprintIdx = byte(0x02)
)

// ErrStoreClosed is returned by any operation attempted after Close.
var ErrStoreClosed = errors.New("history: store is closed")

// Event records the outcome of one dispatched run.
type Event struct {
	Backend     stats.Designation `json:"backend"`
	Fingerprint string            `json:"fingerprint"`
	Elapsed     float64           `json:"elapsed_seconds"`
	Timestamp   time.Time         `json:"timestamp"`
	Err         string            `json:"error,omitempty"`
}

// Succeeded reports whether the run completed without error.
func (e Event) Succeeded() bool { return e.Err == "" }

// Store is an append-only log of Events backed by BadgerDB.
// It is safe for concurrent use.
type Store struct {
	db        *badger.DB
	retention time.Duration

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// Options configures a Store.
type Options struct {
	// DataDir is the directory BadgerDB stores its files in. Required
	// unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB with no disk persistence, for tests.
	InMemory bool

	// Retention is how long an Event is kept before Prune removes it.
	// Zero means events are never pruned.
	Retention time.Duration
}

// Open opens (or creates) a run history store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).WithLogger(nil)
	if opts.InMemory {
		// badger refuses an in-memory store with a directory set.
		badgerOpts = badger.DefaultOptions("").WithLogger(nil).WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("history: opening store: %w", err)
	}

	return &Store{db: db, retention: opts.Retention}, nil
}

// Close releases the store's underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Append records one Event. Append never fails the caller's run: a
// persistence error here means the in-memory statistics are still
// accurate, only the auxiliary history trail is incomplete.
func (s *Store) Append(e Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("history: encoding event: %w", err)
	}

	eventKey := encodeEventKey(e.Timestamp, seq)
	idxKey := encodeFingerprintIndexKey(e.Fingerprint, e.Timestamp)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventKey, payload); err != nil {
			return err
		}
		return txn.Set(idxKey, eventKey)
	})
}

// All returns every recorded Event, oldest first.
func (s *Store) All() ([]Event, error) {
	var events []Event
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixEvent}
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

// ForFingerprint returns every recorded Event for the given fingerprint,
// oldest first, using the secondary fingerprint index so the full event
// log is not scanned.
func (s *Store) ForFingerprint(fp string) ([]Event, error) {
	var events []Event
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := fingerprintIndexPrefix(fp)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var eventKey []byte
			if err := it.Item().Value(func(val []byte) error {
				eventKey = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get(eventKey)
			if err != nil {
				continue // event pruned since the index entry was written
			}

			var e Event
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

// Prune deletes every Event older than now minus the configured
// Retention, plus its fingerprint index entry. It returns the number of
// events removed. Prune is a no-op when Retention is zero.
func (s *Store) Prune(now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.retention)

	var toDelete, idxKeys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixEvent}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			ts, _ := decodeEventKey(key)
			if ts.Before(cutoff) {
				toDelete = append(toDelete, append([]byte(nil), key...))
				var e Event
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &e)
				}); err != nil {
					return err
				}
				idxKeys = append(idxKeys, encodeFingerprintIndexKey(e.Fingerprint, ts))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(toDelete) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range append(toDelete, idxKeys...) {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(toDelete), nil
}

func encodeEventKey(ts time.Time, seq uint64) []byte {
	key := make([]byte, 1+8+8)
	key[0] = prefixEvent
	binary.BigEndian.PutUint64(key[1:9], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint64(key[9:17], seq)
	return key
}

func decodeEventKey(key []byte) (time.Time, uint64) {
	nanos := int64(binary.BigEndian.Uint64(key[1:9]))
	seq := binary.BigEndian.Uint64(key[9:17])
	return time.Unix(0, nanos), seq
}

func fingerprintIndexPrefix(fp string) []byte {
	h := xxhash.Sum64String(fp)
	prefix := make([]byte, 1+8)
	prefix[0] = prefixFingerprintIdx
	binary.BigEndian.PutUint64(prefix[1:9], h)
	return prefix
}

func encodeFingerprintIndexKey(fp string, ts time.Time) []byte {
	prefix := fingerprintIndexPrefix(fp)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(ts.UnixNano()))
	return key
}
