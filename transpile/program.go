package transpile

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Float is the scalar type a Program can be evaluated at.
type Float interface {
	~float32 | ~float64
}

var builtinArity = map[string]int{
	"sin": 1, "cos": 1, "tan": 1, "exp": 1, "pow": 2, "sqrt": 1, "log": 1, "abs": 1,
}

var builtins = map[string]func(a, b float64) float64{
	"sin":  func(a, _ float64) float64 { return math.Sin(a) },
	"cos":  func(a, _ float64) float64 { return math.Cos(a) },
	"tan":  func(a, _ float64) float64 { return math.Tan(a) },
	"exp":  func(a, _ float64) float64 { return math.Exp(a) },
	"pow":  math.Pow,
	"sqrt": func(a, _ float64) float64 { return math.Sqrt(a) },
	"log":  func(a, _ float64) float64 { return math.Log(a) },
	"abs":  func(a, _ float64) float64 { return math.Abs(a) },
}

// Program is a compiled single-expression scalar function.
type Program struct {
	Name   string
	Params []string
	Expr   Expr
}

// NewProgram parses the body expression of a function with the given
// parameter names.
func NewProgram(name string, params []string, expression string) (*Program, error) {
	e, err := ParseExpression(expression, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Program{Name: name, Params: params, Expr: e}, nil
}

var singleReturnRe = regexp.MustCompile(`(?s)^\s*return\b(.*?);?\s*$`)

// Compile builds a host Program from a transpiled function's original source.
func Compile(fn *Function) (*Program, error) {
	b := body(fn.Original)
	m := singleReturnRe.FindStringSubmatch(b)
	if m == nil || strings.Contains(m[1], ";") {
		return nil, fmt.Errorf("%w: %s body must be a single return statement", ErrUnsupported, fn.Signature.Name)
	}
	return NewProgram(fn.Signature.Name, fn.Signature.ParamNames(), m[1])
}

// Evaluator returns a closure evaluating p at precision T. The closure reads
// len(p.Params) arguments from env and does not allocate.
func Evaluator[T Float](p *Program) func(env []T) T {
	return build[T](p.Expr)
}

func build[T Float](e Expr) func(env []T) T {
	switch e := e.(type) {
	case numberExpr:
		v := T(e.value)
		return func([]T) T { return v }
	case paramExpr:
		i := e.index
		return func(env []T) T { return env[i] }
	case unaryExpr:
		x := build[T](e.x)
		return func(env []T) T { return -x(env) }
	case binaryExpr:
		x, y := build[T](e.x), build[T](e.y)
		switch e.op {
		case '+':
			return func(env []T) T { return x(env) + y(env) }
		case '-':
			return func(env []T) T { return x(env) - y(env) }
		case '*':
			return func(env []T) T { return x(env) * y(env) }
		default:
			return func(env []T) T { return x(env) / y(env) }
		}
	case callExpr:
		f := builtins[e.fn]
		a := build[T](e.args[0])
		if len(e.args) == 1 {
			return func(env []T) T { return T(f(float64(a(env)), 0)) }
		}
		b := build[T](e.args[1])
		return func(env []T) T { return T(f(float64(a(env)), float64(b(env)))) }
	}
	panic(fmt.Sprintf("transpile: unhandled expression %T", e))
}

// ForceFunc adapts a four-parameter Program to f(x,y,z,t).
func ForceFunc(p *Program) (func(x, y, z, t float64) float64, error) {
	if len(p.Params) != 4 {
		return nil, fmt.Errorf("%w: %s takes %d parameters, want 4", ErrSignatureMismatch, p.Name, len(p.Params))
	}
	eval := Evaluator[float64](p)
	return func(x, y, z, t float64) float64 {
		env := [4]float64{x, y, z, t}
		return eval(env[:])
	}, nil
}

// InitialFunc adapts a three-parameter Program to g(x,y,z).
func InitialFunc(p *Program) (func(x, y, z float64) float64, error) {
	if len(p.Params) != 3 {
		return nil, fmt.Errorf("%w: %s takes %d parameters, want 3", ErrSignatureMismatch, p.Name, len(p.Params))
	}
	eval := Evaluator[float64](p)
	return func(x, y, z float64) float64 {
		env := [3]float64{x, y, z}
		return eval(env[:])
	}, nil
}
