package engine

import "github.com/nanopyx-go/liquidengine/pkg/stats"

// Backend identifies one of the Liquid Engine's dispatchable run variants.
// It is a closed, tagged enum: every valid value has a fixed Designation
// and there is no dynamic method-name resolution anywhere in dispatch.
type Backend int

const (
	OpenCL Backend = iota
	Unthreaded
	Threaded
	ThreadedStatic
	ThreadedDynamic
	ThreadedGuided
	Python
	Numba
)

// AllBackends lists every canonical backend in declaration order. This is
// the order the Benchmark Harness enumerates backends in and the order
// the Selector breaks no-exploration ties with.
var AllBackends = []Backend{
	OpenCL,
	Unthreaded,
	Threaded,
	ThreadedStatic,
	ThreadedDynamic,
	ThreadedGuided,
	Python,
	Numba,
}

var designations = map[Backend]stats.Designation{
	OpenCL:          stats.DesignationOpenCL,
	Unthreaded:      stats.DesignationUnthreaded,
	Threaded:        stats.DesignationThreaded,
	ThreadedStatic:  stats.DesignationThreadedStatic,
	ThreadedDynamic: stats.DesignationThreadedDynamic,
	ThreadedGuided:  stats.DesignationThreadedGuided,
	Python:          stats.DesignationPython,
	Numba:           stats.DesignationNumba,
}

// Designation returns the on-disk stats designation for b. It panics if b
// is not one of the package's declared constants, since that would be a
// programming error, not a runtime condition.
func (b Backend) Designation() stats.Designation {
	d, ok := designations[b]
	if !ok {
		panic("engine: unknown backend")
	}
	return d
}

// String returns the backend's designation as a plain string, for logging.
func (b Backend) String() string {
	return string(b.Designation())
}
