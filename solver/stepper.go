// Package solver advances the heat equation on the host and defines the
// stepping contract shared with the device engine.
package solver

import (
	"context"
	"time"

	"github.com/openfluke/heat3d/params"
)

// StepReport is emitted on the output cadence.
type StepReport struct {
	Iteration    int
	SimTime      float64
	Variation    float64
	StepWallTime time.Duration
}

// StepWallMillis is the step duration in milliseconds.
func (r StepReport) StepWallMillis() float64 {
	return float64(r.StepWallTime) / float64(time.Millisecond)
}

// Sink receives step reports. A non-nil error stops the run.
type Sink func(StepReport) error

// Stepper advances a solution one explicit step at a time.
type Stepper interface {
	// ComputeTimestep sweeps the interior once, advances the simulation
	// time by dt, exchanges current and next, and returns the total
	// variation of the step.
	ComputeTimestep() (float64, error)
	CurrentTime() float64
	Parameters() params.Parameters
	// Solve runs the configured number of steps through Drive.
	Solve(ctx context.Context, sink Sink) error
}

// Drive runs p.MaxIterations steps. Iterations whose index is a multiple of
// p.OutputFrequency are reported to sink; a zero cadence reports nothing.
// The variation never stops the run early. ctx is checked between steps.
func Drive(ctx context.Context, s Stepper, sink Sink) error {
	p := s.Parameters()
	for iter := 0; iter < p.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		variation, err := s.ComputeTimestep()
		if err != nil {
			return err
		}
		elapsed := time.Since(start)

		if sink != nil && p.OutputFrequency > 0 && iter%p.OutputFrequency == 0 {
			if err := sink(StepReport{
				Iteration:    iter,
				SimTime:      s.CurrentTime(),
				Variation:    variation,
				StepWallTime: elapsed,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
