package transpile

import (
	"fmt"
	"regexp"
	"strings"
)

var returnRe = regexp.MustCompile(`\breturn\b`)

// Validate checks a parsed signature and the definition body against spec.
func Validate(sig Signature, definition string, spec Spec) error {
	if sig.Name != spec.FunctionName {
		return fmt.Errorf("%w: expected function %q, found %q", ErrSignatureMismatch, spec.FunctionName, sig.Name)
	}
	if sig.ReturnType != spec.returnType() {
		return fmt.Errorf("%w: %s returns %s, want %s", ErrSignatureMismatch, sig.Name, sig.ReturnType, spec.returnType())
	}
	if spec.RequireInline && !sig.Inline {
		return fmt.Errorf("%w: %s is not declared %s", ErrSignatureMismatch, sig.Name, InlineKeyword)
	}
	if len(sig.Parameters) != len(spec.RequiredParams) {
		return fmt.Errorf("%w: %s takes %d parameters, want %d (%s)", ErrSignatureMismatch,
			sig.Name, len(sig.Parameters), len(spec.RequiredParams), strings.Join(spec.RequiredParams, ", "))
	}
	for i, p := range sig.Parameters {
		if p.Type != spec.RequiredParams[i] {
			return fmt.Errorf("%w: %s parameter %d (%s) has type %s, want %s", ErrSignatureMismatch,
				sig.Name, i, p.Name, p.Type, spec.RequiredParams[i])
		}
	}
	if !returnRe.MatchString(body(definition)) {
		return fmt.Errorf("%w: %s", ErrMissingReturn, sig.Name)
	}
	return nil
}

// body returns the text between the first '{' and the last '}'.
func body(definition string) string {
	open := strings.IndexByte(definition, '{')
	closing := strings.LastIndexByte(definition, '}')
	if open < 0 || closing <= open {
		return ""
	}
	return definition[open+1 : closing]
}
