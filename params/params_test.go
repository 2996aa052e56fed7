package params

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesSpacings(t *testing.T) {
	p, err := New(8, 4, 2, 1e-4, 10, 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.125, p.DX, 1e-15)
	assert.InDelta(t, 0.25, p.DY, 1e-15)
	assert.InDelta(t, 0.5, p.DZ, 1e-15)
	assert.InDelta(t, p.DX*p.DX, p.DX2, 1e-15)
	assert.Equal(t, 9*5*3, p.TotalPoints())
	assert.Equal(t, 7*3*1, p.InteriorCount())
	assert.InDelta(t, 1e-3, p.FinalTime(), 1e-15)
}

func TestNewRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		fn   func() error
	}{
		{"tiny grid", func() error { _, err := New(1, 8, 8, 1e-4, 1, 1); return err }},
		{"zero dt", func() error { _, err := New(8, 8, 8, 0, 1, 1); return err }},
		{"negative iterations", func() error { _, err := New(8, 8, 8, 1e-4, -1, 1); return err }},
		{"negative cadence", func() error { _, err := New(8, 8, 8, 1e-4, 1, -1); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.fn(), ErrInvalid)
		})
	}
}

func TestCFL(t *testing.T) {
	p, err := New(10, 20, 10, 1e-4, 1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.1*(1.0/400.0), p.CFLLimit(), 1e-15)
	assert.True(t, p.Stable())

	// just below and just above the bound
	p, err = New(10, 20, 10, 2.4e-4, 1, 1)
	require.NoError(t, err)
	assert.True(t, p.Stable())

	p, err = New(10, 20, 10, 3e-4, 1, 1)
	require.NoError(t, err)
	assert.False(t, p.Stable())
}

func TestParseLegacy(t *testing.T) {
	src := strings.Join([]string{
		"# grid",
		"nx=16",
		"ny=8",
		"nz=4",
		"",
		"dt=3e-7",
		"max_iterations=10",
		"output_frequency=1",
	}, "\n")
	p, err := ParseLegacy(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 16, p.NX)
	assert.Equal(t, 8, p.NY)
	assert.Equal(t, 4, p.NZ)
	assert.InDelta(t, 3e-7, p.DT, 1e-20)
	assert.Equal(t, 10, p.MaxIterations)
}

func TestParseLegacyMissingKey(t *testing.T) {
	_, err := ParseLegacy(strings.NewReader("nx=4\nny=4\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("HEAT3D_BACKEND", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadSaveRoundTrip(t *testing.T) {
	t.Setenv("HEAT3D_BACKEND", "")
	path := filepath.Join(t.TempDir(), "nested", "run.yaml")

	cfg := DefaultConfig()
	cfg.Grid.NX = 12
	cfg.Backend = BackendHost
	cfg.History = "runs.db"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	t.Setenv("HEAT3D_BACKEND", "")
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grid:\n  nx: 8\n  ny: 8\n  nz: 8\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Grid.NX)
	assert.Equal(t, DefaultConfig().Time, cfg.Time)
	assert.Equal(t, BackendSoftware, cfg.Backend)
}

func TestEnvOverrideBackend(t *testing.T) {
	t.Setenv("HEAT3D_BACKEND", " WebGPU ")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BackendWebGPU, cfg.Backend)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Backend = "metal"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg = DefaultConfig()
	cfg.Time.DT = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestDefaultConfigIsStable(t *testing.T) {
	p, err := DefaultConfig().Parameters()
	require.NoError(t, err)
	assert.True(t, p.Stable(), "dt %g above limit %g", p.DT, p.CFLLimit())
}
