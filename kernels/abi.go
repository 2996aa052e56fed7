package kernels

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/openfluke/heat3d/field"
	"github.com/openfluke/heat3d/params"
)

// Entry points defined by the templates.
const (
	UpdateEntry    = "heat_equation_kernel"
	VariationEntry = "compute_variation_kernel"
	ReduceEntry    = "reduce_variation_kernel"
	InitEntry      = "initialize_solution_kernel"
)

// EntryPoints lists every entry point the engine resolves.
var EntryPoints = []string{UpdateEntry, VariationEntry, ReduceEntry, InitEntry}

// Binding slots of group 0.
const (
	BindStateIn     = 0
	BindStateOut    = 1
	BindParams      = 2
	BindVariation   = 3
	BindPartialSums = 4
	BindDiagnostics = 5
)

// EntryBindings lists the bindings each entry point statically uses. Bind
// groups built from an automatic layout must match these exactly.
var EntryBindings = map[string][]int{
	UpdateEntry:    {BindStateIn, BindStateOut, BindParams},
	VariationEntry: {BindStateIn, BindStateOut, BindParams, BindVariation, BindDiagnostics},
	ReduceEntry:    {BindParams, BindVariation, BindPartialSums},
	InitEntry:      {BindStateOut, BindParams},
}

// Workgroup geometry.
const (
	GroupSize = 256 // reduce kernel, 1-D
	TileSize  = 4   // grid kernels, 4x4x4
)

// Diagnostics buffer slots written for point (1,1,1).
const (
	DiagLocalUpdate = iota
	DiagLaplacian
	DiagForce
	DiagNext
	DiagnosticsLen
)

// Params mirrors the WGSL Params struct.
type Params struct {
	DX, DY, DZ    float32
	DX2, DY2, DZ2 float32
	DT            float32
	CurrentTime   float32
	NX, NY, NZ    uint32
	SX, SY        uint32
	InteriorCount uint32
}

// ParamsSize is the byte size of the packed struct including padding.
const ParamsSize = 64

// CurrentTimeOffset is the byte offset of CurrentTime.
const CurrentTimeOffset = 28

// NewParams narrows the host parameters to the device record.
func NewParams(p params.Parameters, l field.Layout) Params {
	return Params{
		DX: float32(p.DX), DY: float32(p.DY), DZ: float32(p.DZ),
		DX2: float32(p.DX2), DY2: float32(p.DY2), DZ2: float32(p.DZ2),
		DT: float32(p.DT),
		NX: uint32(p.NX), NY: uint32(p.NY), NZ: uint32(p.NZ),
		SX: uint32(l.SX), SY: uint32(l.SY),
		InteriorCount: uint32(p.InteriorCount()),
	}
}

// Marshal packs the record little-endian in declaration order.
func (p Params) Marshal() []byte {
	b := make([]byte, ParamsSize)
	floats := []float32{p.DX, p.DY, p.DZ, p.DX2, p.DY2, p.DZ2, p.DT, p.CurrentTime}
	for i, v := range floats {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	ints := []uint32{p.NX, p.NY, p.NZ, p.SX, p.SY, p.InteriorCount}
	for i, v := range ints {
		binary.LittleEndian.PutUint32(b[32+4*i:], v)
	}
	return b
}

// UnmarshalParams decodes a packed record.
func UnmarshalParams(b []byte) (Params, error) {
	if len(b) < ParamsSize {
		return Params{}, fmt.Errorf("heat3d/kernels: params record is %d bytes, want %d", len(b), ParamsSize)
	}
	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])) }
	u := func(i int) uint32 { return binary.LittleEndian.Uint32(b[4*i:]) }
	return Params{
		DX: f(0), DY: f(1), DZ: f(2),
		DX2: f(3), DY2: f(4), DZ2: f(5),
		DT: f(6), CurrentTime: f(7),
		NX: u(8), NY: u(9), NZ: u(10),
		SX: u(11), SY: u(12),
		InteriorCount: u(13),
	}, nil
}

// TimeBytes encodes t for a write at CurrentTimeOffset.
func TimeBytes(t float64) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(t)))
	return b
}

// GridWorkgroups covers the inclusive (nx+1, ny+1, nz+1) point range.
func GridWorkgroups(p params.Parameters) [3]uint32 {
	return [3]uint32{
		ceilDiv(uint32(p.NX+1), TileSize),
		ceilDiv(uint32(p.NY+1), TileSize),
		ceilDiv(uint32(p.NZ+1), TileSize),
	}
}

// PartialSumCount is the number of reduce workgroups for n interior points.
func PartialSumCount(n int) int {
	return int(ceilDiv(uint32(n), GroupSize))
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}
