// Package functions holds the user-supplied scalar functions of a run: the
// force term f(x,y,z,t) and the initial/boundary condition g(x,y,z). Both are
// single-expression C-like sources, transpiled for the device and compiled
// for the host from the same text.
package functions

import (
	_ "embed"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/openfluke/heat3d/transpile"
)

var (
	//go:embed force.h
	defaultForce string

	//go:embed initial_condition.h
	defaultInitial string
)

// Names of the two user functions as they appear in the kernel templates.
const (
	ForceName   = "f"
	InitialName = "g"
)

// ForceSpec describes f(double x, double y, double z, double t).
func ForceSpec(log *zap.Logger) transpile.Spec {
	return transpile.Spec{
		FunctionName:   ForceName,
		RequiredParams: []string{transpile.HostScalar, transpile.HostScalar, transpile.HostScalar, transpile.HostScalar},
		RequireInline:  true,
		Strategy:       transpile.StrategyMarkers,
		Logger:         log,
	}
}

// InitialSpec describes g(double x, double y, double z).
func InitialSpec(log *zap.Logger) transpile.Spec {
	return transpile.Spec{
		FunctionName:   InitialName,
		RequiredParams: []string{transpile.HostScalar, transpile.HostScalar, transpile.HostScalar},
		RequireInline:  true,
		Strategy:       transpile.StrategyMarkers,
		Logger:         log,
	}
}

// Sources is the text of both user functions.
type Sources struct {
	Force   string
	Initial string
}

// Defaults returns the embedded sources.
func Defaults() Sources {
	return Sources{Force: defaultForce, Initial: defaultInitial}
}

// Load reads the sources from disk. An empty path keeps the embedded default.
func Load(forcePath, initialPath string) (Sources, error) {
	s := Defaults()
	if forcePath != "" {
		b, err := os.ReadFile(forcePath)
		if err != nil {
			return Sources{}, fmt.Errorf("read force function: %w", err)
		}
		s.Force = string(b)
	}
	if initialPath != "" {
		b, err := os.ReadFile(initialPath)
		if err != nil {
			return Sources{}, fmt.Errorf("read initial condition: %w", err)
		}
		s.Initial = string(b)
	}
	return s, nil
}

// Set is a transpiled pair of user functions with their host evaluators.
type Set struct {
	Force   *transpile.Function
	Initial *transpile.Function

	ForceProgram   *transpile.Program
	InitialProgram *transpile.Program

	F func(x, y, z, t float64) float64
	G func(x, y, z float64) float64
}

// Build transpiles both sources and compiles their host evaluators.
func Build(s Sources, log *zap.Logger) (*Set, error) {
	force, err := transpile.Transpile(s.Force, ForceSpec(log))
	if err != nil {
		return nil, fmt.Errorf("force function: %w", err)
	}
	initial, err := transpile.Transpile(s.Initial, InitialSpec(log))
	if err != nil {
		return nil, fmt.Errorf("initial condition: %w", err)
	}
	fp, err := transpile.Compile(force)
	if err != nil {
		return nil, fmt.Errorf("force function: %w", err)
	}
	gp, err := transpile.Compile(initial)
	if err != nil {
		return nil, fmt.Errorf("initial condition: %w", err)
	}
	fn, err := transpile.ForceFunc(fp)
	if err != nil {
		return nil, err
	}
	gn, err := transpile.InitialFunc(gp)
	if err != nil {
		return nil, err
	}
	return &Set{
		Force: force, Initial: initial,
		ForceProgram: fp, InitialProgram: gp,
		F: fn, G: gn,
	}, nil
}

// Inline wraps a single expression into a source accepted by the specs, e.g.
// Inline(ForceName, "0") or Inline(InitialName, "x*y").
func Inline(name, expression string) string {
	switch name {
	case ForceName:
		return "inline double f(double x, double y, double z, double t) { return " + expression + "; }\n#endif\n"
	case InitialName:
		return "inline double g(double x, double y, double z) { return " + expression + "; }\n#endif\n"
	}
	return ""
}
