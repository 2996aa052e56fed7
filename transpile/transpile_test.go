package transpile

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoDoubles = Spec{
	FunctionName:   "h",
	RequiredParams: []string{"double", "double"},
	RequireInline:  true,
}

func TestTranspileRewriteContract(t *testing.T) {
	src := `inline double h(double a,double b){ return sin(a)+2*b; }`

	fn, err := Transpile(src, twoDoubles)
	require.NoError(t, err)

	assert.NotContains(t, fn.Generated, "double")
	assert.NotContains(t, fn.Generated, "inline")
	assert.Contains(t, fn.Generated, "math_sin(a)")
	assert.Contains(t, fn.Generated, "2f*b")
	assert.True(t, strings.HasPrefix(fn.Generated, "fn h(a: f32, b: f32) -> f32"), fn.Generated)

	// Every literal left in the output carries the suffix.
	for _, m := range regexp.MustCompile(`\d+(?:\.\d*)?[a-zA-Z_]?`).FindAllString(fn.Generated, -1) {
		if m == "32" || strings.HasSuffix(m, "f") {
			continue
		}
		t.Errorf("literal %q without suffix in %s", m, fn.Generated)
	}
	assert.Equal(t, src, fn.Original)
}

func TestTranspileMissingParameterFailsBeforeRewrite(t *testing.T) {
	src := `inline double h(double a){ return sin(a)+2; }`

	fn, err := Transpile(src, twoDoubles)
	require.Error(t, err)
	assert.Nil(t, fn)
	assert.True(t, errors.Is(err, ErrSignatureMismatch), err)
}

func TestTranspileErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		spec Spec
		want error
	}{
		{"absent", `inline double other(double a, double b) { return a; }`, twoDoubles, ErrFunctionNotFound},
		{"not inline", `double h(double a, double b) { return a; }`, twoDoubles, ErrFunctionNotFound},
		{"wrong type", `inline double h(double a, float b) { return a; }`, twoDoubles, ErrSignatureMismatch},
		{"no return", `inline double h(double a, double b) { a + b; }`, twoDoubles, ErrMissingReturn},
		{"markers absent", `#ifndef X
#endif`, Spec{FunctionName: "h", RequiredParams: []string{"double"}, Strategy: StrategyMarkers}, ErrFunctionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Transpile(tc.src, tc.spec)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestExtractStrategies(t *testing.T) {
	src := `#ifndef FORCE_H
#define FORCE_H
#include <cmath>

inline double f(double x, double y, double z, double t) {
    return x * y + z - t;
}

#endif
`
	spec := Spec{FunctionName: "f", RequiredParams: []string{"double", "double", "double", "double"}, RequireInline: true}

	byPattern, err := Extract(src, spec)
	require.NoError(t, err)

	spec.Strategy = StrategyMarkers
	byMarkers, err := Extract(src, spec)
	require.NoError(t, err)

	assert.Equal(t, byPattern, byMarkers)
	assert.True(t, strings.HasSuffix(byMarkers, "}"))
	assert.NotContains(t, byMarkers, "#endif")
}

func TestExtractMarkersSkipsPrefixedNames(t *testing.T) {
	src := `#ifndef FORCE_H
#define FORCE_H

inline double fx(double x, double y, double z, double t) {
    return 2 * x;
}

inline double f (double x, double y, double z, double t) {
    return x + t;
}

#endif
`
	spec := Spec{FunctionName: "f", RequiredParams: []string{"double", "double", "double", "double"}, RequireInline: true, Strategy: StrategyMarkers}

	fn, err := Transpile(src, spec)
	require.NoError(t, err)
	assert.Equal(t, "f", fn.Signature.Name)
	assert.NotContains(t, fn.Original, "fx")

	spec.Strategy = StrategyPattern
	byPattern, err := Transpile(src, spec)
	require.NoError(t, err)
	assert.Equal(t, byPattern.Original, fn.Original)
}

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature("inline double  g( double x,double y ,  double   z ) { return 1; }")
	require.NoError(t, err)

	want := Signature{
		Name:       "g",
		ReturnType: "double",
		Inline:     true,
		Parameters: []Parameter{{"double", "x"}, {"double", "y"}, {"double", "z"}},
	}
	if diff := cmp.Diff(want, sig); diff != "" {
		t.Errorf("signature mismatch (-want +got):\n%s", diff)
	}
}

func TestSuffixLiterals(t *testing.T) {
	cases := map[string]string{
		"2*b":             "2f*b",
		"0.5 + x1":        "0.5f + x1",
		"1e-3*a":          "1e-3f*a",
		".25+a":           ".25f+a",
		"var2 + 3f":       "var2 + 3f",
		"pow(x, 2) + 10":  "pow(x, 2f) + 10f",
		"a_1 * 1.5 - e10": "a_1 * 1.5f - e10",
	}
	for in, want := range cases {
		assert.Equal(t, want, SuffixLiterals(in), in)
	}
}

func TestQualifyMath(t *testing.T) {
	assert.Equal(t, "math_sin(a) + math_pow(b, 2)", QualifyMath("sin(a) + pow (b, 2)"))
	assert.Equal(t, "asin(a) + sinh + math_abs(x)", QualifyMath("asin(a) + sinh + abs(x)"))
	assert.Equal(t, "math_exp(x)", QualifyMath("math_exp(x)"))
}

func TestCompileEvaluatesOriginal(t *testing.T) {
	fn, err := Transpile(`inline double h(double a,double b){ return sin(a)+2*b; }`, twoDoubles)
	require.NoError(t, err)

	prog, err := Compile(fn)
	require.NoError(t, err)

	eval := Evaluator[float64](prog)
	assert.InDelta(t, math.Sin(0.3)+2*0.7, eval([]float64{0.3, 0.7}), 1e-15)

	eval32 := Evaluator[float32](prog)
	assert.InDelta(t, math.Sin(0.3)+2*0.7, float64(eval32([]float32{0.3, 0.7})), 1e-6)
}

func TestDeviceDialectMatchesHost(t *testing.T) {
	host, err := NewProgram("f", []string{"x", "y"}, "-pow(x, 2) * exp(-y / 0.5) + abs(x - 1e-1)")
	require.NoError(t, err)
	dev, err := NewProgram("f", []string{"x", "y"}, QualifyMath(SuffixLiterals("-pow(x, 2) * exp(-y / 0.5) + abs(x - 1e-1)")))
	require.NoError(t, err)

	assert.Equal(t, host.Expr.String(), dev.Expr.String())
	env := []float64{-0.4, 0.8}
	assert.Equal(t, Evaluator[float64](host)(env), Evaluator[float64](dev)(env))
}

func TestParseExpressionPrecedence(t *testing.T) {
	e, err := ParseExpression("a - b * c + -a / 2", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "((a - (b * c)) + ((-a) / 2))", e.String())

	for _, bad := range []string{"a +", "sin(a, a)", "foo(a)", "q", "(a", "a b"} {
		_, err := ParseExpression(bad, []string{"a"})
		assert.ErrorIs(t, err, ErrExpression, bad)
	}
}

func TestCompileRejectsStatements(t *testing.T) {
	fn := &Function{
		Original:  "inline double h(double a, double b) { double c = a; return c; }",
		Signature: Signature{Name: "h", ReturnType: "double", Parameters: []Parameter{{"double", "a"}, {"double", "b"}}},
	}
	_, err := Compile(fn)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestForceAndInitialAdapters(t *testing.T) {
	p, err := NewProgram("f", []string{"x", "y", "z", "t"}, "x + 2*y + 3*z + 4*t")
	require.NoError(t, err)
	f, err := ForceFunc(p)
	require.NoError(t, err)
	assert.Equal(t, 10.0, f(1, 1, 1, 1))

	_, err = InitialFunc(p)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}
