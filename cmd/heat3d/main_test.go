package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/heat3d/kernels"
)

const testConfig = `
grid: {nx: 4, ny: 4, nz: 4}
time: {dt: 0.001, max_iterations: 3, output_frequency: 1}
backend: software
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heat3d.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

func TestRunRecordsHistory(t *testing.T) {
	cfg := writeConfig(t)
	db := filepath.Join(t.TempDir(), "runs.db")

	out := execute(t, "run", "--config", cfg, "--history", db)
	assert.Contains(t, out, "Iter")
	assert.Contains(t, out, "Calculation")

	out = execute(t, "history", "--config", cfg, "--history", db)
	assert.Contains(t, out, "software")
	assert.Contains(t, out, "4x4x4")
}

func TestRunHostBackend(t *testing.T) {
	out := execute(t, "run", "--config", writeConfig(t), "--backend", "host", "--history", "")
	assert.Contains(t, out, "Comp Time (ms)")
}

func TestKernelPrintsLibrary(t *testing.T) {
	out := execute(t, "kernel", "--config", writeConfig(t))
	assert.Contains(t, out, "fn f(x: f32, y: f32, z: f32, t: f32) -> f32")
	for _, entry := range kernels.EntryPoints {
		assert.Contains(t, out, entry)
	}
}

func TestCompare(t *testing.T) {
	out := execute(t, "compare", "--config", writeConfig(t), "--backend", "software")
	assert.Contains(t, out, "max variation relative error")
}
