package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfluke/heat3d/detector"
	"github.com/openfluke/heat3d/kernels"
	"github.com/openfluke/heat3d/report"
)

var kernelCmd = &cobra.Command{
	Use:   "kernel",
	Short: "Print the assembled kernel library",
	Long: `Transpiles the configured force and initial condition and prints the
WGSL library the device path compiles, with the user functions spliced in.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := loadRun()
		if err != nil {
			return err
		}
		src, err := kernels.Builder{TemplateDir: rc.cfg.Kernels.TemplateDir, Logger: logger}.
			Build(rc.fns.Force, rc.fns.Initial)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), src)
		return nil
	},
}

var devicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Report the compute devices heat3d can use",
	RunE: func(cmd *cobra.Command, args []string) error {
		reps, err := detector.All(0)
		if err != nil {
			if !errors.Is(err, detector.ErrNoGPU) {
				logger.Warn("GPU probe failed", zap.Error(err))
			} else {
				logger.Debug("GPU probe skipped", zap.Error(err))
			}
		}
		out := cmd.OutOrStdout()
		if devicesJSON {
			s, err := detector.JSON(reps...)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, s)
			return nil
		}
		for _, r := range reps {
			fmt.Fprintf(out, "%-10s %s (%s)\n", r.Backend, r.Name, r.Driver)
			if r.Workers > 0 {
				fmt.Fprintf(out, "           workers: %d\n", r.Workers)
			}
			if len(r.Features) > 0 {
				fmt.Fprintf(out, "           features: %v\n", r.Features)
			}
			if r.Limits != nil {
				fmt.Fprintf(out, "           max grid: %d^3, grid tile ok: %t, reduction tile ok: %t\n",
					r.Fits.MaxCubicGrid, r.Fits.GridTile, r.Fits.ReductionTile)
			}
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or print the steps of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyPath == "" {
			return fmt.Errorf("--history is required")
		}
		h, err := report.OpenHistory(historyPath)
		if err != nil {
			return err
		}
		defer h.Close()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			runs, err := h.Runs(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %-8s %dx%dx%d dt=%.3e iters=%d\n",
					r.ID, r.Started.Format("2006-01-02 15:04:05"), r.Backend,
					r.Params.NX, r.Params.NY, r.Params.NZ, r.Params.DT, r.Params.MaxIterations)
			}
			return nil
		}

		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}
		steps, err := h.Steps(cmd.Context(), id)
		if err != nil {
			return err
		}
		w := report.StepWriter(out)
		for _, s := range steps {
			if err := w(s); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "Print the reports as JSON")
}
