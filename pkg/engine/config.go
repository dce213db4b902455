package engine

import (
	"log"

	"github.com/nanopyx-go/liquidengine/pkg/history"
	"github.com/nanopyx-go/liquidengine/pkg/selector"
)

// BackendFunc is one backend's implementation of an operation. args and
// kwargs are the same values passed to Engine.Run; the return value is
// opaque to the Engine and handed back to the caller unchanged.
type BackendFunc func(args []any, kwargs map[string]any) (any, error)

// BackendTable is the dispatch table an operation supplies at
// construction: a closed set of backend implementations, keyed by the
// Backend they implement. There is no reflection-based method lookup
// anywhere in dispatch; a backend not present in the table is simply
// unavailable.
type BackendTable map[Backend]BackendFunc

// Config configures one Engine instance. An Engine is meant to be
// constructed once per operation (analogous to one LiquidEngine subclass
// instance per NanoPyx operation) and reused across calls so its
// statistics accumulate.
type Config struct {
	// Name identifies this engine's persisted statistics file, analogous
	// to the Python original's class name. Required.
	Name string

	// ConfigDir is the directory the statistics YAML file lives in.
	// Required; the original derives this from the call site's source
	// file location, which Go has no equivalent reflection for, so it is
	// passed explicitly instead.
	ConfigDir string

	// ClearConfig discards any existing persisted statistics on Open.
	ClearConfig bool

	// Backends is the dispatch table of backend implementations this
	// engine can run. Backends absent from the table, or present but
	// excluded by capability probing, are never dispatched.
	Backends BackendTable

	// DefaultBackend is returned by the Selector when no enabled backend
	// has any recorded statistics yet.
	DefaultBackend Backend

	// Explore enables weighted-random backend selection (exploration).
	// When false, the Selector always returns the backend with the
	// highest recorded throughput (exploitation).
	Explore bool

	// Rand supplies randomness for the exploration policy. Required when
	// Explore is true; ignored otherwise.
	Rand selector.Rand

	// GPUProbe and JITProbe detect backend availability at construction.
	// Nil defaults to NoGPU / NoJIT.
	GPUProbe GPUProbe
	JITProbe JITProbe

	// History, if non-nil, receives one Event per dispatched run. A nil
	// History means runs are not logged beyond the aggregate statistics.
	History *history.Store

	// ShowInfo enables the Python original's verbose _print diagnostics.
	ShowInfo bool

	// Logger receives diagnostic output. Defaults to log.Default().
	Logger *log.Logger
}
