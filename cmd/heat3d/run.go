package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfluke/heat3d/params"
	"github.com/openfluke/heat3d/report"
	"github.com/openfluke/heat3d/solver"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured simulation",
	Long: `Loads the configuration, transpiles the force and initial condition,
and advances the solution max_iterations steps on the selected backend.
A row is printed every output_frequency steps.`,
	RunE: runSimulation,
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run the host and device paths side by side",
	Long: `Steps the host solver and the device engine in lockstep and prints the
relative error of the device variation on the output cadence, followed by
the largest pointwise difference of the final fields.`,
	RunE: compareBackends,
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	rc, err := loadRun()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	timers := report.NewTimers(report.TimerTotal, report.TimerInitialization, report.TimerCalculation, report.TimerOthers)
	total := timers.Get(report.TimerTotal)
	total.Start()

	fmt.Fprintln(out, report.Parameters(rc.p, rc.cfg.Backend))

	initTimer := timers.Get(report.TimerInitialization)
	initTimer.Start()
	stepper, closeStepper, err := rc.stepper(rc.cfg.Backend)
	initTimer.Stop()
	if err != nil {
		return err
	}
	defer closeStepper()

	sink, closeSink, err := rc.sink(ctx, out, timers.Get(report.TimerOthers))
	if err != nil {
		return err
	}
	defer closeSink()

	calc := timers.Get(report.TimerCalculation)
	calc.Start()
	err = stepper.Solve(ctx, sink)
	calc.Stop()
	total.Stop()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, report.TimerSummary(timers))
	return nil
}

// stepper builds the host solver or a device engine for backend.
func (rc *runConfig) stepper(backend string) (solver.Stepper, func(), error) {
	if backend == params.BackendHost {
		return solver.NewHost(rc.p, rc.fns.F, rc.fns.G, solver.HostOptions{Logger: logger}), func() {}, nil
	}
	e, err := rc.newEngine(backend)
	if err != nil {
		return nil, nil, err
	}
	return e, e.Close, nil
}

// sink prints the step table and, when configured, records the steps in
// the history database. Time spent in the sink accrues to others.
func (rc *runConfig) sink(ctx context.Context, out io.Writer, others *report.Timer) (solver.Sink, func(), error) {
	sinks := []solver.Sink{report.StepWriter(out)}
	closer := func() {}

	if rc.cfg.History != "" {
		h, err := report.OpenHistory(rc.cfg.History)
		if err != nil {
			return nil, nil, err
		}
		run, err := h.BeginRun(ctx, rc.cfg.Backend, rc.p)
		if err != nil {
			h.Close()
			return nil, nil, err
		}
		logger.Info("recording history", zap.String("path", rc.cfg.History), zap.Stringer("run", run))
		sinks = append(sinks, h.Sink(ctx, run))
		closer = func() { _ = h.Close() }
	}

	tee := report.Tee(sinks...)
	return func(r solver.StepReport) error {
		others.Start()
		defer others.Stop()
		return tee(r)
	}, closer, nil
}

func compareBackends(cmd *cobra.Command, args []string) error {
	rc, err := loadRun()
	if err != nil {
		return err
	}
	backend := rc.cfg.Backend
	if backend == params.BackendHost {
		backend = params.BackendSoftware
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	host := solver.NewHost(rc.p, rc.fns.F, rc.fns.G, solver.HostOptions{Logger: logger})
	eng, err := rc.newEngine(backend)
	if err != nil {
		return err
	}
	defer eng.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.Parameters(rc.p, params.BackendHost+" vs "+backend))
	fmt.Fprintf(out, "%-8s%-20s%-20s%s\n", "Iter", "Host Variation", "Device Variation", "Rel Error")

	worst := 0.0
	for iter := 0; iter < rc.p.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		hv, err := host.ComputeTimestep()
		if err != nil {
			return err
		}
		dv, err := eng.ComputeTimestep()
		if err != nil {
			return err
		}
		rel := relativeError(hv, dv)
		worst = math.Max(worst, rel)
		if rc.p.OutputFrequency > 0 && iter%rc.p.OutputFrequency == 0 {
			fmt.Fprintf(out, "%-8d%-20.6e%-20.6e%.3e\n", iter, hv, dv, rel)
		}
	}

	final, err := eng.Solution()
	if err != nil {
		return err
	}
	maxDiff := 0.0
	hd, dd := host.Current().Data(), final.Data()
	for i := range hd {
		maxDiff = math.Max(maxDiff, math.Abs(hd[i]-dd[i]))
	}
	fmt.Fprintf(out, "max variation relative error %.3e, max field difference %.3e\n", worst, maxDiff)
	logger.Info("comparison finished",
		zap.String("backend", backend),
		zap.Float64("max_rel_error", worst),
		zap.Float64("max_field_diff", maxDiff))
	return nil
}

func relativeError(want, got float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs(got-want) / math.Abs(want)
}
