package field

import (
	"fmt"

	"github.com/openfluke/heat3d/params"
)

// Layout maps (i,j,k) with 0 <= i <= NX, 0 <= j <= NY, 0 <= k <= NZ onto a
// flat index i + SX*(j + SY*k).
type Layout struct {
	NX, NY, NZ int
	SX, SY     int
}

// NewLayout returns the inclusive layout, where the strides equal the
// per-axis point counts.
func NewLayout(p params.Parameters) Layout {
	return Layout{NX: p.NX, NY: p.NY, NZ: p.NZ, SX: p.NX + 1, SY: p.NY + 1}
}

// LegacyLayout reproduces the strides of the first heat3d solver, which used the
// subdivision counts as strides while sizing storage for the inclusive range.
// It is not a bijection: (NX,j,k) and (0,j+1,k) share a slot.
func LegacyLayout(p params.Parameters) Layout {
	return Layout{NX: p.NX, NY: p.NY, NZ: p.NZ, SX: p.NX, SY: p.NY}
}

// Len is the storage size for the inclusive point range, independent of the
// strides.
func (l Layout) Len() int {
	return (l.NX + 1) * (l.NY + 1) * (l.NZ + 1)
}

// Index flattens (i,j,k).
func (l Layout) Index(i, j, k int) int {
	return i + l.SX*(j+l.SY*k)
}

// Decode is the inverse of Index for a bijective layout.
func (l Layout) Decode(idx int) (i, j, k int) {
	i = idx % l.SX
	j = (idx / l.SX) % l.SY
	k = idx / (l.SX * l.SY)
	return i, j, k
}

// Verify reports whether the strides make Index a bijection over the point
// range.
func (l Layout) Verify() error {
	if l.SX != l.NX+1 || l.SY != l.NY+1 {
		return fmt.Errorf("%w: strides (%d,%d) for point counts (%d,%d)", ErrLayout, l.SX, l.SY, l.NX+1, l.NY+1)
	}
	return nil
}

// Violation is a grid point whose flat index does not decode back to itself.
type Violation struct {
	I, J, K int
	Index   int
	Decoded [3]int
}

// RoundTrip walks every point and returns those that fail Decode(Index(p)) == p.
// The result is empty exactly when the layout is a bijection.
func (l Layout) RoundTrip() []Violation {
	var out []Violation
	for k := 0; k <= l.NZ; k++ {
		for j := 0; j <= l.NY; j++ {
			for i := 0; i <= l.NX; i++ {
				idx := l.Index(i, j, k)
				di, dj, dk := l.Decode(idx)
				if di != i || dj != j || dk != k {
					out = append(out, Violation{I: i, J: j, K: k, Index: idx, Decoded: [3]int{di, dj, dk}})
				}
			}
		}
	}
	return out
}
