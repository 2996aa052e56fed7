// Command heat3d solves the 3-D heat equation on the host or on a compute
// device.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	paramsPath  string
	backendName string
	historyPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "heat3d",
	Short: "Explicit 3-D heat equation solver for CPU and GPU",
	Long: `heat3d advances u_t = laplacian(u) + f(x,y,z,t) on the unit cube with
Dirichlet boundaries held at the initial condition g(x,y,z).

The force and initial condition are written once as inline double functions;
the host evaluates them directly and the device path splices their WGSL
translation into the kernel library.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "heat3d.yaml", "YAML run configuration")
	rootCmd.PersistentFlags().StringVarP(&paramsPath, "params", "p", "", "Legacy key=value parameters file (overrides the config grid and time)")
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "Backend: host, software or webgpu")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "SQLite file receiving every reported step")

	rootCmd.AddCommand(runCmd, compareCmd, kernelCmd, devicesCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
