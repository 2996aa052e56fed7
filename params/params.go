// Package params holds the immutable simulation parameter record shared by the
// host and device paths, together with its loaders.
package params

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalid is returned when a parameter value cannot describe a runnable grid.
var ErrInvalid = errors.New("heat3d/params: invalid parameters")

// CFLSafety scales the explicit stability bound min(dx2,dy2,dz2).
const CFLSafety = 0.1

// Parameters describes a unit-cube grid with nx*ny*nz subdivisions and the
// explicit time stepping applied to it. Spacings are derived, never set.
type Parameters struct {
	NX, NY, NZ      int
	DT              float64
	MaxIterations   int
	OutputFrequency int

	DX, DY, DZ    float64
	DX2, DY2, DZ2 float64
}

// New validates the raw values and derives the spacings.
func New(nx, ny, nz int, dt float64, maxIterations, outputFrequency int) (Parameters, error) {
	p := Parameters{
		NX: nx, NY: ny, NZ: nz,
		DT:              dt,
		MaxIterations:   maxIterations,
		OutputFrequency: outputFrequency,
	}
	if err := p.validate(); err != nil {
		return Parameters{}, err
	}
	p.DX = 1.0 / float64(nx)
	p.DY = 1.0 / float64(ny)
	p.DZ = 1.0 / float64(nz)
	p.DX2 = p.DX * p.DX
	p.DY2 = p.DY * p.DY
	p.DZ2 = p.DZ * p.DZ
	return p, nil
}

func (p Parameters) validate() error {
	// Fewer than two subdivisions leaves no interior point to update.
	if p.NX < 2 || p.NY < 2 || p.NZ < 2 {
		return fmt.Errorf("%w: grid %dx%dx%d needs at least 2 subdivisions per axis", ErrInvalid, p.NX, p.NY, p.NZ)
	}
	if p.DT <= 0 || math.IsNaN(p.DT) || math.IsInf(p.DT, 0) {
		return fmt.Errorf("%w: dt must be a positive finite number, got %g", ErrInvalid, p.DT)
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("%w: max_iterations must be >= 0, got %d", ErrInvalid, p.MaxIterations)
	}
	if p.OutputFrequency < 0 {
		return fmt.Errorf("%w: output_frequency must be >= 0, got %d", ErrInvalid, p.OutputFrequency)
	}
	return nil
}

// TotalPoints is the number of grid points including the boundary.
func (p Parameters) TotalPoints() int {
	return (p.NX + 1) * (p.NY + 1) * (p.NZ + 1)
}

// InteriorExtents returns the number of interior points along each axis.
func (p Parameters) InteriorExtents() (int, int, int) {
	return p.NX - 1, p.NY - 1, p.NZ - 1
}

// InteriorCount is the number of points updated by one step.
func (p Parameters) InteriorCount() int {
	ex, ey, ez := p.InteriorExtents()
	return ex * ey * ez
}

// FinalTime is the simulated time after MaxIterations steps.
func (p Parameters) FinalTime() float64 {
	return p.DT * float64(p.MaxIterations)
}

// CFLLimit returns the largest dt considered stable for this grid.
func (p Parameters) CFLLimit() float64 {
	return CFLSafety * math.Min(p.DX2, math.Min(p.DY2, p.DZ2))
}

// Stable reports whether DT satisfies the stability bound. Callers decide
// whether to warn; an unstable dt is not an error.
func (p Parameters) Stable() bool {
	return p.DT <= p.CFLLimit()
}
