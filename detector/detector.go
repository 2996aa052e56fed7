// Package detector summarizes the compute devices heat3d can run on.
package detector

import (
	"encoding/json"
	"errors"
	"os"
	"runtime"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/openfluke/heat3d/device"
	"github.com/openfluke/heat3d/kernels"
)

// ErrNoGPU is returned by WebGPU in builds without the gpu tag.
var ErrNoGPU = errors.New("heat3d/detector: GPU support not compiled in")

// Report is a portable summary of one device.
type Report struct {
	WhenISO     string            `json:"when_iso"`
	Backend     string            `json:"backend"`
	AdapterType string            `json:"adapter_type,omitempty"`
	VendorID    string            `json:"vendor_id_hex,omitempty"`
	DeviceID    string            `json:"device_id_hex,omitempty"`
	Name        string            `json:"name"`
	Driver      string            `json:"driver,omitempty"`
	Workers     int               `json:"workers,omitempty"`
	Limits      *Limits           `json:"limits,omitempty"`
	Features    []string          `json:"features"`
	Fits        Fit               `json:"fits"`
	Env         map[string]string `json:"env,omitempty"`
}

type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupSizeY          uint32 `json:"max_compute_workgroup_size_y"`
	MaxComputeWorkgroupSizeZ          uint32 `json:"max_compute_workgroup_size_z"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxComputeWorkgroupStorageSize    uint32 `json:"max_compute_workgroup_storage_size"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

// Fit tells whether the kernel library's fixed workgroup shapes run on the
// device, and the largest cubic grid one storage binding can hold.
type Fit struct {
	GridTile      bool `json:"grid_tile"`
	ReductionTile bool `json:"reduction_tile"`
	MaxCubicGrid  int  `json:"max_cubic_grid,omitempty"`
}

// JSON renders reports indented.
func JSON(reps ...*Report) (string, error) {
	b, err := json.MarshalIndent(reps, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Software describes the CPU device: worker count and SIMD features.
func Software(workers int) *Report {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Report{
		WhenISO:  time.Now().UTC().Format(time.RFC3339),
		Backend:  device.BackendSoftware,
		Name:     runtime.GOOS + "/" + runtime.GOARCH,
		Driver:   runtime.Version(),
		Workers:  workers,
		Features: cpuFeatures(),
		Fits:     Fit{GridTile: true, ReductionTile: true},
		Env:      pickEnv([]string{"HEAT3D_BACKEND", "GOMAXPROCS"}),
	}
}

// All returns the software report followed by the GPU report when one can be
// produced. The GPU probe error is returned alongside.
func All(workers int) ([]*Report, error) {
	reps := []*Report{Software(workers)}
	gpu, err := WebGPU()
	if err != nil {
		return reps, err
	}
	return append(reps, gpu), nil
}

func cpuFeatures() []string {
	var feats []string
	add := func(ok bool, name string) {
		if ok {
			feats = append(feats, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE2, "sse2")
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return feats
}

// fits checks the workgroup shapes used by the kernel library against the
// device limits.
func fits(l Limits) Fit {
	t := uint32(kernels.TileSize)
	f := Fit{
		GridTile: t <= l.MaxComputeWorkgroupSizeX && t <= l.MaxComputeWorkgroupSizeY &&
			t <= l.MaxComputeWorkgroupSizeZ && t*t*t <= l.MaxComputeInvocationsPerWorkgroup,
		ReductionTile: kernels.GroupSize <= l.MaxComputeWorkgroupSizeX &&
			kernels.GroupSize <= l.MaxComputeInvocationsPerWorkgroup &&
			kernels.GroupSize*4 <= l.MaxComputeWorkgroupStorageSize,
	}
	// Largest n with (n+1)^3 f32 values in one binding.
	limit := l.MaxStorageBufferBindingSize / 4
	if limit < 8 {
		return f
	}
	for n := 1; ; n++ {
		if uint64(n+2)*uint64(n+2)*uint64(n+2) > limit {
			f.MaxCubicGrid = n
			break
		}
	}
	return f
}

func pickEnv(keys []string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
