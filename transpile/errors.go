package transpile

import "errors"

var (
	// ErrFunctionNotFound is returned when no definition of the requested
	// function exists in the source text.
	ErrFunctionNotFound = errors.New("heat3d/transpile: function not found")

	// ErrSignatureMismatch is returned when the parameter list does not match
	// the required arity and types.
	ErrSignatureMismatch = errors.New("heat3d/transpile: signature mismatch")

	// ErrMissingReturn is returned when the body has no return statement.
	ErrMissingReturn = errors.New("heat3d/transpile: missing return statement")

	// ErrUnsupported is returned for bodies outside the single-expression
	// dialect.
	ErrUnsupported = errors.New("heat3d/transpile: unsupported construct")

	// ErrExpression is returned by the expression parser.
	ErrExpression = errors.New("heat3d/transpile: invalid expression")
)
