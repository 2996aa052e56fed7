// Package field stores the flattened 3-D scalar grid advanced by the solvers.
package field

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/openfluke/heat3d/params"
)

var (
	// ErrBufferSizeMismatch is returned when an external buffer does not hold
	// exactly one element per grid point.
	ErrBufferSizeMismatch = errors.New("heat3d/field: buffer size mismatch")

	// ErrLayout is returned for strides that alias grid points.
	ErrLayout = errors.New("heat3d/field: layout is not a bijection")
)

// Float32Size is the byte width of one device element.
const Float32Size = 4

// Field is a scalar value per grid point of the unit cube.
type Field struct {
	layout     Layout
	dx, dy, dz float64
	data       []float64
}

// New allocates a zeroed field with the inclusive layout.
func New(p params.Parameters) *Field {
	f, _ := NewWithLayout(p, NewLayout(p), false)
	return f
}

// NewWithLayout allocates a zeroed field with explicit strides. Storage is
// always sized for the inclusive point range. A layout that fails Verify is
// rejected unless allowAliasing is set.
func NewWithLayout(p params.Parameters, l Layout, allowAliasing bool) (*Field, error) {
	if err := l.Verify(); err != nil && !allowAliasing {
		return nil, err
	}
	return &Field{
		layout: l,
		dx:     p.DX, dy: p.DY, dz: p.DZ,
		data: make([]float64, l.Len()),
	}, nil
}

// Layout returns the index mapping of the field.
func (f *Field) Layout() Layout { return f.layout }

// Len is the number of stored values.
func (f *Field) Len() int { return len(f.data) }

// Data exposes the backing slice. It changes identity on Exchange.
func (f *Field) Data() []float64 { return f.data }

// At reads the value at (i,j,k).
func (f *Field) At(i, j, k int) float64 {
	return f.data[f.layout.Index(i, j, k)]
}

// Set writes the value at (i,j,k).
func (f *Field) Set(i, j, k int, v float64) {
	f.data[f.layout.Index(i, j, k)] = v
}

// Coordinate is the physical position of (i,j,k).
func (f *Field) Coordinate(i, j, k int) (x, y, z float64) {
	return float64(i) * f.dx, float64(j) * f.dy, float64(k) * f.dz
}

// Initialize evaluates g at every grid point, boundary included.
func (f *Field) Initialize(g func(x, y, z float64) float64) {
	l := f.layout
	for k := 0; k <= l.NZ; k++ {
		for j := 0; j <= l.NY; j++ {
			for i := 0; i <= l.NX; i++ {
				f.Set(i, j, k, g(f.Coordinate(i, j, k)))
			}
		}
	}
}

// InitializeFromBuffer copies little-endian float32 values laid out every
// elementStride bytes into the field, widening them to float64.
func (f *Field) InitializeFromBuffer(buf []byte, elementStride int) error {
	if elementStride < Float32Size {
		return fmt.Errorf("%w: element stride %d is narrower than a float32", ErrBufferSizeMismatch, elementStride)
	}
	if want := len(f.data) * elementStride; len(buf) != want {
		return fmt.Errorf("%w: got %d bytes, want %d (%d elements)", ErrBufferSizeMismatch, len(buf), want, len(f.data))
	}
	for i := range f.data {
		bits := binary.LittleEndian.Uint32(buf[i*elementStride:])
		f.data[i] = float64(math.Float32frombits(bits))
	}
	return nil
}

// Float32Bytes narrows the field to float32 and encodes it little-endian,
// ready to seed a device buffer.
func (f *Field) Float32Bytes() []byte {
	out := make([]byte, len(f.data)*Float32Size)
	for i, v := range f.data {
		binary.LittleEndian.PutUint32(out[i*Float32Size:], math.Float32bits(float32(v)))
	}
	return out
}

// CopyFrom copies values from other, which must have the same length.
func (f *Field) CopyFrom(other *Field) {
	if len(f.data) != len(other.data) {
		panic(fmt.Sprintf("field: copy between fields of %d and %d points", len(f.data), len(other.data)))
	}
	copy(f.data, other.data)
}

// Exchange swaps the backing storage of f and other without copying.
func (f *Field) Exchange(other *Field) {
	if len(f.data) != len(other.data) {
		panic(fmt.Sprintf("field: exchange between fields of %d and %d points", len(f.data), len(other.data)))
	}
	f.data, other.data = other.data, f.data
}
