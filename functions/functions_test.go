package functions

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/heat3d/transpile"
)

func TestBuildDefaults(t *testing.T) {
	set, err := Build(Defaults(), nil)
	require.NoError(t, err)

	assert.Equal(t, "f", set.Force.Signature.Name)
	assert.Equal(t, "g", set.Initial.Signature.Name)
	assert.NotContains(t, set.Force.Generated, "double")
	assert.Contains(t, set.Force.Generated, "math_exp(")

	want := math.Sin(0.1-0.5) * math.Cos(0.2-0.5) * math.Exp(-0.3*0.3) * math.Exp(-0.4)
	assert.InDelta(t, want, set.F(0.1, 0.2, 0.3, 0.4), 1e-14)
	assert.InDelta(t, 1.0, set.G(0.5, 0.5, 0.5), 1e-14)
}

func TestInlineSources(t *testing.T) {
	set, err := Build(Sources{Force: Inline(ForceName, "0"), Initial: Inline(InitialName, "1.5")}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, set.F(0.3, 0.2, 0.1, 9))
	assert.Equal(t, 1.5, set.G(0, 1, 0.5))
	assert.Contains(t, set.Initial.Generated, "return 1.5f;")
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "force.h")
	require.NoError(t, os.WriteFile(path, []byte(Inline(ForceName, "x + t")), 0o644))

	s, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Initial, s.Initial)
	assert.Contains(t, s.Force, "x + t")

	_, err = Load(filepath.Join(dir, "missing.h"), "")
	assert.Error(t, err)
}

func TestBuildRejectsWrongArity(t *testing.T) {
	_, err := Build(Sources{Force: Inline(InitialName, "x"), Initial: Defaults().Initial}, nil)
	assert.ErrorIs(t, err, transpile.ErrFunctionNotFound)

	bad := "inline double f(double x, double y, double z) { return x; }\n#endif\n"
	_, err = Build(Sources{Force: bad, Initial: Defaults().Initial}, nil)
	assert.ErrorIs(t, err, transpile.ErrSignatureMismatch)
}
