package transpile

import (
	"fmt"
	"regexp"
	"strings"
)

// deviceTypes maps host scalar keywords to WGSL types.
var deviceTypes = map[string]string{
	HostScalar: DeviceScalar,
	"float":    DeviceScalar,
	"int":      "i32",
	"unsigned": "u32",
}

var (
	scalarKeywordRe = regexp.MustCompile(`\b` + HostScalar + `\b`)
	numberRe        = regexp.MustCompile(`(?:\d+\.\d*|\.\d+|\d+)(?:[eE][+-]?\d+)?`)
	mathCallRe      = regexp.MustCompile(`\b(` + strings.Join(MathFunctions, "|") + `)\s*\(`)
)

// Rewrite turns an extracted host definition into WGSL. The header is rebuilt
// from sig, so the host qualifier and scalar keyword never reach the output.
// The body is rewritten textually: scalar keywords, literal suffixes and math
// namespace, in that order.
func Rewrite(definition string, sig Signature) (string, error) {
	open := strings.IndexByte(definition, '{')
	closing := strings.LastIndexByte(definition, '}')
	if open < 0 || closing <= open {
		return "", fmt.Errorf("%w: %s has no body", ErrUnsupported, sig.Name)
	}
	header, err := deviceHeader(sig)
	if err != nil {
		return "", err
	}
	b := definition[open : closing+1]
	b = scalarKeywordRe.ReplaceAllString(b, DeviceScalar)
	b = SuffixLiterals(b)
	b = QualifyMath(b)
	return header + " " + b, nil
}

// DeviceType returns the WGSL type for a host scalar keyword.
func DeviceType(host string) (string, bool) {
	t, ok := deviceTypes[host]
	return t, ok
}

func deviceHeader(sig Signature) (string, error) {
	ret, ok := deviceTypes[sig.ReturnType]
	if !ok {
		return "", fmt.Errorf("%w: return type %s has no device equivalent", ErrUnsupported, sig.ReturnType)
	}
	params := make([]string, len(sig.Parameters))
	for i, p := range sig.Parameters {
		t, ok := deviceTypes[p.Type]
		if !ok {
			return "", fmt.Errorf("%w: parameter %s type %s has no device equivalent", ErrUnsupported, p.Name, p.Type)
		}
		params[i] = p.Name + ": " + t
	}
	return fmt.Sprintf("%s %s(%s) -> %s", DeviceFunction, sig.Name, strings.Join(params, ", "), ret), nil
}

// SuffixLiterals appends LiteralSuffix to every numeric literal that is not
// part of an identifier and not already followed by an identifier character.
func SuffixLiterals(src string) string {
	matches := numberRe.FindAllStringIndex(src, -1)
	if len(matches) == 0 {
		return src
	}
	var sb strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && isIdentByte(src[start-1]) {
			continue
		}
		if end < len(src) && (isIdentByte(src[end]) || src[end] == '.') {
			continue
		}
		sb.WriteString(src[last:end])
		sb.WriteString(LiteralSuffix)
		last = end
	}
	sb.WriteString(src[last:])
	return sb.String()
}

// QualifyMath prefixes calls to MathFunctions with DeviceMathNamespace. Only
// names directly followed by an opening parenthesis are rewritten.
func QualifyMath(src string) string {
	return mathCallRe.ReplaceAllString(src, DeviceMathNamespace+"${1}(")
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
