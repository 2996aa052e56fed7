package transpile

import (
	"fmt"
	"regexp"
	"strings"
)

// Extract returns the text of the function definition named by spec.
func Extract(source string, spec Spec) (string, error) {
	if spec.FunctionName == "" {
		return "", fmt.Errorf("%w: empty function name", ErrFunctionNotFound)
	}
	switch spec.Strategy {
	case StrategyMarkers:
		return extractMarkers(source, spec)
	case StrategyPattern:
		return extractPattern(source, spec)
	default:
		return "", fmt.Errorf("%w: unknown strategy %d", ErrUnsupported, int(spec.Strategy))
	}
}

func extractMarkers(source string, spec Spec) (string, error) {
	loc := markerPattern(spec).FindStringIndex(source)
	if loc == nil {
		return "", fmt.Errorf("%w: %q (start marker %q)", ErrFunctionNotFound, spec.FunctionName, spec.startMarker())
	}
	rest := source[loc[0]:]
	if end := strings.Index(rest, spec.endMarker()); end >= 0 {
		rest = rest[:end]
	}
	closing := strings.LastIndex(rest, "}")
	if closing < 0 || !strings.Contains(rest[:closing], "{") {
		return "", fmt.Errorf("%w: %q has no body before %q", ErrFunctionNotFound, spec.FunctionName, spec.endMarker())
	}
	return strings.TrimSpace(rest[:closing+1]), nil
}

// markerPattern finds the start marker. The default marker ends with the
// function name, so it must be followed by the parameter list: "f" does not
// start "fx(". A caller-supplied marker is matched literally.
func markerPattern(spec Spec) *regexp.Regexp {
	if spec.StartMarker != "" {
		return regexp.MustCompile(regexp.QuoteMeta(spec.StartMarker))
	}
	return regexp.MustCompile(regexp.QuoteMeta(spec.startMarker()) + `\s*\(`)
}

func extractPattern(source string, spec Spec) (string, error) {
	re, err := definitionPattern(spec)
	if err != nil {
		return "", err
	}
	m := re.FindString(source)
	if m == "" {
		return "", fmt.Errorf("%w: %q", ErrFunctionNotFound, spec.FunctionName)
	}
	return m, nil
}

// definitionPattern matches qualifier, return type, name, parameter list and
// a brace-delimited body without nested braces.
func definitionPattern(spec Spec) (*regexp.Regexp, error) {
	qualifier := `(?:` + InlineKeyword + `\s+)?`
	if spec.RequireInline {
		qualifier = InlineKeyword + `\s+`
	}
	expr := `\b` + qualifier + regexp.QuoteMeta(spec.returnType()) + `\s+` +
		regexp.QuoteMeta(spec.FunctionName) + `\s*\([^)]*\)[^;{]*\{[^}]*\}`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return re, nil
}
