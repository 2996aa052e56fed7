package kernels

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/heat3d/field"
	"github.com/openfluke/heat3d/functions"
	"github.com/openfluke/heat3d/params"
	"github.com/openfluke/heat3d/transpile"
)

func defaultSet(t *testing.T) *functions.Set {
	t.Helper()
	set, err := functions.Build(functions.Defaults(), nil)
	require.NoError(t, err)
	return set
}

func TestAssembleEmbedded(t *testing.T) {
	set := defaultSet(t)
	src, err := Builder{}.Build(set.Force, set.Initial)
	require.NoError(t, err)

	assert.Contains(t, src, set.Force.Generated)
	assert.Contains(t, src, set.Initial.Generated)
	assert.NotContains(t, src, IncludeToken)
	assert.NotContains(t, src, "-> f32;")
	for _, entry := range EntryPoints {
		assert.Equal(t, 1, strings.Count(src, "fn "+entry+"("), entry)
	}
	assert.Equal(t, 1, strings.Count(src, "struct Params"))

	// Modules appear in order.
	last := -1
	for _, entry := range []string{UpdateEntry, VariationEntry, ReduceEntry, InitEntry} {
		at := strings.Index(src, "fn "+entry)
		assert.Greater(t, at, last, entry)
		last = at
	}
}

func TestAssembleMatchesAnyFormatting(t *testing.T) {
	tmpl := Templates{
		CommonModule:    "fn   f( a:f32,b :  f32,\n c: f32 ,d: f32 )->f32 ;\nfn g(x: f32, y: f32, z: f32) -> f32;\n",
		UpdateModule:    "#include \"common.wgsl\"\n// update",
		VariationModule: "// variation",
		ReduceModule:    "  #include \"common.wgsl\"  \n// reduce",
		InitModule:      "// init",
	}
	set := defaultSet(t)

	src, err := Assemble(tmpl, set.Force, set.Initial)
	require.NoError(t, err)

	want := set.Force.Generated + "\n" + set.Initial.Generated + "\n" +
		"\n// update\n// variation\n// reduce\n// init"
	if diff := cmp.Diff(want, src); diff != "" {
		t.Errorf("assembled source mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleMissingDeclaration(t *testing.T) {
	tmpl, err := Embedded()
	require.NoError(t, err)
	tmpl[CommonModule] = strings.Replace(tmpl[CommonModule], "fn g(x: f32, y: f32, z: f32) -> f32;", "", 1)

	set := defaultSet(t)
	_, err = Assemble(tmpl, set.Force, set.Initial)
	assert.ErrorIs(t, err, ErrDeclarationNotFound)
}

func TestAssembleRejectsDifferentArity(t *testing.T) {
	tmpl, err := Embedded()
	require.NoError(t, err)

	fn, err := transpile.Transpile("inline double f(double x, double y, double z) { return x; }", transpile.Spec{
		FunctionName:   "f",
		RequiredParams: []string{"double", "double", "double"},
	})
	require.NoError(t, err)

	_, err = Assemble(tmpl, fn)
	assert.ErrorIs(t, err, ErrDeclarationNotFound)
}

func TestLoadDirOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, InitModule), []byte("// custom init\n"), 0o644))

	tmpl, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "// custom init\n", tmpl[InitModule])

	embedded, err := Embedded()
	require.NoError(t, err)
	assert.Equal(t, embedded[UpdateModule], tmpl[UpdateModule])
}

func TestEntryBindingsDeclared(t *testing.T) {
	tmpl, err := Embedded()
	require.NoError(t, err)
	for _, entry := range EntryPoints {
		require.Contains(t, EntryBindings, entry)
	}
	for b := BindStateIn; b <= BindDiagnostics; b++ {
		assert.Contains(t, tmpl[CommonModule], "@binding("+string(rune('0'+b))+")")
	}
}

func TestParamsPacking(t *testing.T) {
	p, err := params.New(6, 7, 8, 1e-4, 10, 1)
	require.NoError(t, err)
	dp := NewParams(p, field.NewLayout(p))
	dp.CurrentTime = 0.25

	b := dp.Marshal()
	require.Len(t, b, ParamsSize)

	got, err := UnmarshalParams(b)
	require.NoError(t, err)
	assert.Equal(t, dp, got)
	assert.Equal(t, uint32(5*6*7), got.InteriorCount)
	assert.Equal(t, uint32(7), got.SX)
	assert.Equal(t, TimeBytes(0.25), b[CurrentTimeOffset:CurrentTimeOffset+4])
}

func TestWorkgroupCounts(t *testing.T) {
	p, err := params.New(8, 3, 15, 1e-4, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{3, 1, 4}, GridWorkgroups(p))

	assert.Equal(t, 1, PartialSumCount(1))
	assert.Equal(t, 1, PartialSumCount(256))
	assert.Equal(t, 2, PartialSumCount(257))
	assert.Equal(t, 0, PartialSumCount(0))
}
