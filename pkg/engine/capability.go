package engine

// Capabilities reports which backends are available on the host the
// Engine is running on, standing in for the Python original's
// opencl_works()/njit_works() module-level probes.
type Capabilities struct {
	// GPU reports whether an OpenCL-capable device was found.
	GPU bool
	// GPUDoublePrecision reports whether the device found supports double
	// precision floats. Only meaningful when GPU is true.
	GPUDoublePrecision bool
	// JIT reports whether a just-in-time compiled backend (standing in for
	// Numba) is usable.
	JIT bool
}

// GPUProbe detects OpenCL device availability. Production callers supply
// a probe backed by the real device query; tests supply a fixed result.
type GPUProbe func() (available, doublePrecision bool)

// JITProbe detects whether the JIT backend's runtime is usable.
type JITProbe func() bool

// NoGPU is a GPUProbe reporting no device is present, for hosts or tests
// with no OpenCL runtime.
func NoGPU() (bool, bool) { return false, false }

// NoJIT is a JITProbe reporting the JIT backend is unavailable.
func NoJIT() bool { return false }

// ProbeCapabilities runs gpu and jit and assembles a Capabilities value.
func ProbeCapabilities(gpu GPUProbe, jit JITProbe) Capabilities {
	if gpu == nil {
		gpu = NoGPU
	}
	if jit == nil {
		jit = NoJIT
	}

	available, doublePrecision := gpu()
	return Capabilities{
		GPU:                available,
		GPUDoublePrecision: doublePrecision,
		JIT:                jit(),
	}
}
