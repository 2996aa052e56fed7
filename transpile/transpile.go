package transpile

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Function is an extracted host function and its WGSL rendering.
type Function struct {
	Original  string
	Generated string
	Signature Signature
}

// Transpile extracts, validates and rewrites the function named by spec.
// Validation always runs before the rewrite.
func Transpile(source string, spec Spec) (*Function, error) {
	log := spec.logger().With(zap.String("function", spec.FunctionName), zap.Stringer("strategy", spec.Strategy))

	def, err := Extract(source, spec)
	if err != nil {
		return nil, err
	}
	log.Debug("extracted", zap.String("source", def))

	sig, err := ParseSignature(def)
	if err != nil {
		return nil, err
	}
	log.Debug("signature",
		zap.String("return", sig.ReturnType),
		zap.Strings("types", sig.ParamTypes()),
		zap.Strings("names", sig.ParamNames()))

	if err := Validate(sig, def, spec); err != nil {
		return nil, err
	}

	gen, err := Rewrite(def, sig)
	if err != nil {
		return nil, err
	}
	log.Debug("rewritten", zap.String("generated", gen))

	return &Function{Original: def, Generated: gen, Signature: sig}, nil
}

// TranspileFile reads path and transpiles it.
func TranspileFile(path string, spec Spec) (*Function, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Transpile(string(src), spec)
}
