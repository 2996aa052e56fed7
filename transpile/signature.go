package transpile

import (
	"fmt"
	"regexp"
	"strings"
)

// Parameter is one (type, name) pair of a function header.
type Parameter struct {
	Type string
	Name string
}

// Signature is the parsed header of an extracted function.
type Signature struct {
	Name       string
	ReturnType string
	Inline     bool
	Parameters []Parameter
}

// ParamTypes lists the parameter types in order.
func (s Signature) ParamTypes() []string {
	types := make([]string, len(s.Parameters))
	for i, p := range s.Parameters {
		types[i] = p.Type
	}
	return types
}

// ParamNames lists the parameter names in order.
func (s Signature) ParamNames() []string {
	names := make([]string, len(s.Parameters))
	for i, p := range s.Parameters {
		names[i] = p.Name
	}
	return names
}

var (
	headerRe    = regexp.MustCompile(`^\s*(` + InlineKeyword + `\s+)?(\w+)\s+(\w+)\s*\(([^)]*)\)`)
	parameterRe = regexp.MustCompile(`^(\w+)\s+(\w+)$`)
)

// ParseSignature reads the header of an extracted function definition.
func ParseSignature(definition string) (Signature, error) {
	m := headerRe.FindStringSubmatch(definition)
	if m == nil {
		return Signature{}, fmt.Errorf("%w: no function header in %q", ErrFunctionNotFound, firstLine(definition))
	}
	sig := Signature{
		Inline:     m[1] != "",
		ReturnType: m[2],
		Name:       m[3],
	}
	list := strings.TrimSpace(m[4])
	if list == "" || list == "void" {
		return sig, nil
	}
	for _, raw := range strings.Split(list, ",") {
		p := parameterRe.FindStringSubmatch(strings.Join(strings.Fields(raw), " "))
		if p == nil {
			return Signature{}, fmt.Errorf("%w: malformed parameter %q in %s", ErrSignatureMismatch, strings.TrimSpace(raw), sig.Name)
		}
		sig.Parameters = append(sig.Parameters, Parameter{Type: p[1], Name: p[2]})
	}
	return sig, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
