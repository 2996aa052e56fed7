package solver

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/openfluke/heat3d/field"
	"github.com/openfluke/heat3d/params"
)

// Host is the sequential double-precision reference solver. It is not safe
// for concurrent use.
type Host struct {
	p    params.Parameters
	f    func(x, y, z, t float64) float64
	log  *zap.Logger
	time float64

	current, next *field.Field
}

// HostOptions configure NewHost.
type HostOptions struct {
	Logger *zap.Logger
	// SkipInitialization leaves both fields zeroed, for callers that fill
	// them from a device buffer.
	SkipInitialization bool
}

// NewHost allocates current and next and fills both with g, so the
// boundary holds g whichever buffer is current.
func NewHost(p params.Parameters, f func(x, y, z, t float64) float64, g func(x, y, z float64) float64, opts HostOptions) *Host {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		p:       p,
		f:       f,
		log:     log,
		current: field.New(p),
		next:    field.New(p),
	}
	if !opts.SkipInitialization {
		h.current.Initialize(g)
		h.next.Initialize(g)
	}
	return h
}

func (h *Host) Parameters() params.Parameters { return h.p }
func (h *Host) CurrentTime() float64          { return h.time }

// Current is the latest solution.
func (h *Host) Current() *field.Field { return h.current }

// Next is the scratch field written by the following step.
func (h *Host) Next() *field.Field { return h.next }

// ComputeTimestep never fails.
func (h *Host) ComputeTimestep() (float64, error) {
	v := h.sweep()
	h.time += h.p.DT
	h.current.Exchange(h.next)
	return v, nil
}

func (h *Host) sweep() float64 {
	p := h.p
	cur, next := h.current, h.next
	total := 0.0
	for k := 1; k < p.NZ; k++ {
		for j := 1; j < p.NY; j++ {
			for i := 1; i < p.NX; i++ {
				c := cur.At(i, j, k)
				lap := (cur.At(i+1, j, k)-2*c+cur.At(i-1, j, k))/p.DX2 +
					(cur.At(i, j+1, k)-2*c+cur.At(i, j-1, k))/p.DY2 +
					(cur.At(i, j, k+1)-2*c+cur.At(i, j, k-1))/p.DZ2
				force := h.f(float64(i)*p.DX, float64(j)*p.DY, float64(k)*p.DZ, h.time)
				local := p.DT * (lap + force)

				if i == 1 && j == 1 && k == 1 {
					h.log.Debug("host diagnostics (1,1,1)",
						zap.Float64("local_update", local),
						zap.Float64("laplacian", lap),
						zap.Float64("force", force))
				}

				next.Set(i, j, k, c+local)
				total += math.Abs(local)
			}
		}
	}
	return total
}

// Solve runs the configured number of steps.
func (h *Host) Solve(ctx context.Context, sink Sink) error {
	return Drive(ctx, h, sink)
}
