package report

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/heat3d/params"
	"github.com/openfluke/heat3d/solver"
)

func TestTimersAccumulate(t *testing.T) {
	ts := NewTimers(TimerTotal, TimerCalculation)
	calc := ts.Get(TimerCalculation)

	for i := 0; i < 3; i++ {
		calc.Start()
		time.Sleep(time.Millisecond)
		calc.Stop()
	}
	calc.Stop()

	assert.Equal(t, 3, calc.Laps())
	assert.GreaterOrEqual(t, calc.Elapsed(), 3*time.Millisecond)
	assert.Equal(t, []string{TimerTotal, TimerCalculation}, ts.Names())

	ts.Get(TimerOthers)
	assert.Equal(t, []string{TimerTotal, TimerCalculation, TimerOthers}, ts.Names())
	assert.Equal(t, TimerCalculation, ts.Sorted()[0])
}

func TestStepWriter(t *testing.T) {
	var buf bytes.Buffer
	sink := StepWriter(&buf)
	require.NoError(t, sink(solver.StepReport{Iteration: 0, SimTime: 1e-4, Variation: 0.5, StepWallTime: 1500 * time.Microsecond}))
	require.NoError(t, sink(solver.StepReport{Iteration: 10, SimTime: 1.1e-3, Variation: 0.25}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Iter")
	assert.Contains(t, lines[0], "Comp Time (ms)")
	assert.True(t, strings.HasPrefix(lines[1], "0       1.000e-04"), lines[1])
	assert.Contains(t, lines[1], "5.000e-01")
	assert.Contains(t, lines[1], "1.500")
	assert.True(t, strings.HasPrefix(lines[2], "10      "), lines[2])
}

func TestParametersBox(t *testing.T) {
	p, err := params.New(4, 4, 4, 1, 10, 2)
	require.NoError(t, err)
	out := Parameters(p, "software")
	assert.Contains(t, out, "4 x 4 x 4")
	assert.Contains(t, out, "software")
	assert.Contains(t, out, "stability limit")
}

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "sub", "runs.db"))
	require.NoError(t, err)
	defer h.Close()

	p, err := params.New(8, 8, 8, 1e-4, 5, 1)
	require.NoError(t, err)
	run, err := h.BeginRun(ctx, "software", p)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, run)

	want := []solver.StepReport{
		{Iteration: 0, SimTime: 1e-4, Variation: 0.75, StepWallTime: 2 * time.Millisecond},
		{Iteration: 1, SimTime: 2e-4, Variation: 0.5, StepWallTime: 3 * time.Millisecond},
	}
	sink := Tee(nil, h.Sink(ctx, run))
	for _, r := range want {
		require.NoError(t, sink(r))
	}
	assert.Error(t, h.Record(ctx, run, want[0]), "duplicate iteration")

	got, err := h.Steps(ctx, run)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}

	runs, err := h.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run, runs[0].ID)
	assert.Equal(t, p, runs[0].Params)
	assert.Equal(t, "software", runs[0].Backend)
}
