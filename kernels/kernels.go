// Package kernels assembles the WGSL kernel library: fixed module templates
// with the user functions spliced into the shared declarations.
package kernels

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/openfluke/heat3d/transpile"
)

//go:embed templates/*.wgsl
var embedded embed.FS

// ErrDeclarationNotFound is returned when the shared module lacks the
// placeholder declaration of a user function.
var ErrDeclarationNotFound = errors.New("heat3d/kernels: declaration not found")

// Module names, in assembly order.
const (
	CommonModule    = "common.wgsl"
	UpdateModule    = "update.wgsl"
	VariationModule = "variation.wgsl"
	ReduceModule    = "reduce.wgsl"
	InitModule      = "init.wgsl"

	// IncludeToken marks the line each module uses to pull in CommonModule.
	IncludeToken = "#include"
)

// ModuleOrder is the fixed concatenation order.
var ModuleOrder = []string{CommonModule, UpdateModule, VariationModule, ReduceModule, InitModule}

// Templates maps module name to template source.
type Templates map[string]string

// Embedded returns the templates compiled into the binary.
func Embedded() (Templates, error) {
	t := make(Templates, len(ModuleOrder))
	for _, name := range ModuleOrder {
		b, err := embedded.ReadFile("templates/" + name)
		if err != nil {
			return nil, err
		}
		t[name] = string(b)
	}
	return t, nil
}

// LoadDir reads the templates from dir. Modules missing from dir fall back
// to the embedded copy.
func LoadDir(dir string) (Templates, error) {
	t, err := Embedded()
	if err != nil {
		return nil, err
	}
	for _, name := range ModuleOrder {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		t[name] = string(b)
	}
	return t, nil
}

// Assemble splices the generated definitions of fns into the shared module,
// strips the include lines of every other module and concatenates all
// modules in ModuleOrder, separated by newlines.
func Assemble(t Templates, fns ...*transpile.Function) (string, error) {
	common, ok := t[CommonModule]
	if !ok {
		return "", fmt.Errorf("%w: missing module %s", ErrDeclarationNotFound, CommonModule)
	}
	for _, fn := range fns {
		re := declarationPattern(fn.Signature)
		loc := re.FindStringIndex(common)
		if loc == nil {
			return "", fmt.Errorf("%w: %s in %s", ErrDeclarationNotFound, describe(fn.Signature), CommonModule)
		}
		common = common[:loc[0]] + fn.Generated + common[loc[1]:]
	}

	parts := make([]string, 0, len(ModuleOrder))
	parts = append(parts, common)
	for _, name := range ModuleOrder[1:] {
		src, ok := t[name]
		if !ok {
			return "", fmt.Errorf("heat3d/kernels: missing module %s", name)
		}
		parts = append(parts, StripIncludes(src))
	}
	return strings.Join(parts, "\n"), nil
}

// StripIncludes removes every line containing IncludeToken.
func StripIncludes(src string) string {
	lines := strings.Split(src, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if !strings.Contains(l, IncludeToken) {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// declarationPattern matches "fn name(a: T, b: T) -> R;" with an optional
// @must_use attribute, any parameter names and any whitespace.
func declarationPattern(sig transpile.Signature) *regexp.Regexp {
	params := make([]string, len(sig.Parameters))
	for i, p := range sig.Parameters {
		params[i] = `\s*\w+\s*:\s*` + regexp.QuoteMeta(deviceType(p.Type)) + `\s*`
	}
	list := strings.Join(params, ",")
	if list == "" {
		list = `\s*`
	}
	return regexp.MustCompile(`(?:@must_use\s+)?\b` + transpile.DeviceFunction + `\s+` + regexp.QuoteMeta(sig.Name) +
		`\s*\(` + list + `\)\s*->\s*` + regexp.QuoteMeta(deviceType(sig.ReturnType)) + `\s*;`)
}

func deviceType(host string) string {
	if t, ok := transpile.DeviceType(host); ok {
		return t
	}
	return host
}

func describe(sig transpile.Signature) string {
	types := make([]string, len(sig.Parameters))
	for i, p := range sig.Parameters {
		types[i] = deviceType(p.Type)
	}
	return fmt.Sprintf("%s %s(%s) -> %s", transpile.DeviceFunction, sig.Name, strings.Join(types, ", "), deviceType(sig.ReturnType))
}

// Builder produces the kernel library for a pair of user functions.
type Builder struct {
	TemplateDir string
	Logger      *zap.Logger
}

// Build loads the templates and assembles them with force and initial.
func (b Builder) Build(force, initial *transpile.Function) (string, error) {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var (
		t   Templates
		err error
	)
	if b.TemplateDir != "" {
		t, err = LoadDir(b.TemplateDir)
	} else {
		t, err = Embedded()
	}
	if err != nil {
		return "", err
	}
	src, err := Assemble(t, force, initial)
	if err != nil {
		return "", err
	}
	log.Debug("assembled kernel library",
		zap.String("template_dir", b.TemplateDir),
		zap.Int("bytes", len(src)),
		zap.Int("modules", len(ModuleOrder)))
	return src, nil
}
