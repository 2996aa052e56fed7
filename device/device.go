// Package device abstracts the compute device the engine drives: kernel
// library compilation, pipeline resolution, buffer allocation and blocking
// submission of ordered dispatches.
package device

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrDeviceUnavailable is returned when no compute device or queue can
	// be acquired.
	ErrDeviceUnavailable = errors.New("heat3d/device: no compute device available")

	// ErrCompile wraps the device compiler diagnostic, which follows the
	// prefix unmodified.
	ErrCompile = errors.New("heat3d/device: kernel library compilation failed")

	// ErrPipelineResolution is returned when an entry point is missing from
	// a compiled library.
	ErrPipelineResolution = errors.New("heat3d/device: entry point not found")

	// ErrBinding is returned for a dispatch whose bindings do not match the
	// entry point.
	ErrBinding = errors.New("heat3d/device: invalid binding")

	// ErrReleased is returned when a released object is used.
	ErrReleased = errors.New("heat3d/device: object released")
)

// Backend names accepted by Open.
const (
	BackendSoftware = "software"
	BackendWebGPU   = "webgpu"
)

// Info describes an acquired device.
type Info struct {
	Name        string
	Backend     string
	Vendor      string
	Driver      string
	Description string
	Workers     int // host goroutines per dispatch, software only
}

// Device is a compute device with its own memory.
type Device interface {
	Info() Info
	NewQueue() (Queue, error)
	// Compile builds a kernel library from WGSL source.
	Compile(source string) (Library, error)
	// NewBuffer allocates size bytes of zeroed device memory.
	NewBuffer(label string, size int) (Buffer, error)
	Release()
}

// Library is a compiled kernel library.
type Library interface {
	Pipeline(entryPoint string) (Pipeline, error)
	Release()
}

// Pipeline is a compute entry point ready for dispatch.
type Pipeline interface {
	EntryPoint() string
	WorkgroupSize() [3]uint32
	Release()
}

// Buffer is device memory holding 32-bit words.
type Buffer interface {
	Label() string
	Size() int
	Write(offset int, data []byte) error
	Read() ([]byte, error)
	Release()
}

// Queue submits work to the device.
type Queue interface {
	// Submit runs dispatches in order as one submission and blocks until
	// the device has retired all of them.
	Submit(dispatches ...Dispatch) error
	Release()
}

// Dispatch is one compute pass over a grid of workgroups.
type Dispatch struct {
	Pipeline   Pipeline
	Bindings   map[int]Buffer
	Workgroups [3]uint32
}

// Options configure device acquisition.
type Options struct {
	Logger *zap.Logger
	// Workers bounds the goroutines of the software device. Zero means
	// GOMAXPROCS.
	Workers int
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Open acquires a device of the named backend.
func Open(backend string, opts Options) (Device, error) {
	switch backend {
	case BackendSoftware:
		return NewSoftware(opts), nil
	case BackendWebGPU:
		return OpenWebGPU(opts)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrDeviceUnavailable, backend)
	}
}
