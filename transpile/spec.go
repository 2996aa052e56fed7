// Package transpile extracts restricted scalar functions from C-like source
// text, validates their signatures, rewrites them into WGSL and compiles the
// same text for evaluation on the host.
//
// The accepted dialect is a single-expression function:
//
//	inline double f(double x, double y, double z, double t) { return sin(x) * 2 * t; }
//
// The body may use parameters, numeric literals, + - * / with parentheses and
// calls to sin, cos, tan, exp, pow, sqrt, log and abs.
package transpile

import "go.uber.org/zap"

// Host and device vocabulary.
const (
	HostScalar          = "double"
	InlineKeyword       = "inline"
	DeviceScalar        = "f32"
	DeviceFunction      = "fn"
	DeviceMathNamespace = "math_"
	LiteralSuffix       = "f"
	DefaultEndMarker    = "#endif"
)

// MathFunctions are the calls qualified with DeviceMathNamespace.
var MathFunctions = []string{"sin", "cos", "tan", "exp", "pow", "sqrt", "log", "abs"}

// Strategy selects how the function text is located.
type Strategy int

const (
	// StrategyPattern matches qualifier, type, name, parameter list and body.
	StrategyPattern Strategy = iota
	// StrategyMarkers takes the text between a start marker and a closing
	// guard marker.
	StrategyMarkers
)

func (s Strategy) String() string {
	switch s {
	case StrategyPattern:
		return "pattern"
	case StrategyMarkers:
		return "markers"
	default:
		return "unknown"
	}
}

// Spec describes the function to extract and the signature it must have.
type Spec struct {
	FunctionName   string
	ReturnType     string   // defaults to HostScalar
	RequiredParams []string // parameter types, in order
	RequireInline  bool
	Strategy       Strategy

	// Marker strategy only. StartMarker defaults to "inline double <name>"
	// (or "double <name>"), EndMarker to DefaultEndMarker.
	StartMarker string
	EndMarker   string

	// Logger receives stage-by-stage debug output. Nil disables it.
	Logger *zap.Logger
}

func (s Spec) returnType() string {
	if s.ReturnType == "" {
		return HostScalar
	}
	return s.ReturnType
}

func (s Spec) startMarker() string {
	if s.StartMarker != "" {
		return s.StartMarker
	}
	if s.RequireInline {
		return InlineKeyword + " " + s.returnType() + " " + s.FunctionName
	}
	return s.returnType() + " " + s.FunctionName
}

func (s Spec) endMarker() string {
	if s.EndMarker != "" {
		return s.EndMarker
	}
	return DefaultEndMarker
}

func (s Spec) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
