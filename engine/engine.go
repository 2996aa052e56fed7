// Package engine runs the heat equation on a compute device: one
// initialization dispatch, then update, variation and reduction dispatches
// per step in a single blocking submission.
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/openfluke/heat3d/device"
	"github.com/openfluke/heat3d/field"
	"github.com/openfluke/heat3d/functions"
	"github.com/openfluke/heat3d/kernels"
	"github.com/openfluke/heat3d/params"
	"github.com/openfluke/heat3d/solver"
)

// ErrState is returned for calls made in the wrong lifecycle state.
var ErrState = errors.New("heat3d/engine: invalid state")

// Options configure New.
type Options struct {
	Logger *zap.Logger
	// Debug reads the diagnostics buffer after every step and logs it.
	Debug bool
	// TemplateDir overrides the embedded kernel templates.
	TemplateDir string
}

// Engine is the device stepper. It is not safe for concurrent use.
type Engine struct {
	p    params.Parameters
	opts Options
	log  *zap.Logger

	state State
	time  float64

	dev       device.Device
	queue     device.Queue
	lib       device.Library
	pipelines map[string]device.Pipeline
	source    string

	current, next device.Buffer
	params        device.Buffer
	variation     device.Buffer
	partialSums   device.Buffer
	diagnostics   device.Buffer

	mirror *field.Field
}

var _ solver.Stepper = (*Engine)(nil)

// New builds the kernel library for fns, prepares dev and initializes the
// field on the device. The engine owns dev from here on and releases it on
// Close, or before returning an error.
func New(p params.Parameters, dev device.Device, fns *functions.Set, opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		p:         p,
		opts:      opts,
		log:       log.With(zap.String("device", dev.Info().Name)),
		dev:       dev,
		pipelines: make(map[string]device.Pipeline, len(kernels.EntryPoints)),
		mirror:    field.New(p),
	}
	if err := e.setup(fns); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) setup(fns *functions.Set) error {
	var err error
	if e.queue, err = e.dev.NewQueue(); err != nil {
		return fmt.Errorf("%w: command queue: %v", device.ErrDeviceUnavailable, err)
	}

	b := kernels.Builder{TemplateDir: e.opts.TemplateDir, Logger: e.log}
	if e.source, err = b.Build(fns.Force, fns.Initial); err != nil {
		return err
	}
	if e.lib, err = e.dev.Compile(e.source); err != nil {
		return err
	}
	for _, entry := range kernels.EntryPoints {
		pl, err := e.lib.Pipeline(entry)
		if err != nil {
			return err
		}
		e.pipelines[entry] = pl
	}
	e.state = ResourcesReady
	e.log.Debug("pipelines resolved", zap.Strings("entry_points", kernels.EntryPoints))

	if err := e.allocate(); err != nil {
		return err
	}
	e.state = BuffersReady

	if err := e.initialize(); err != nil {
		return err
	}
	e.state = FieldInitialized
	return nil
}

func (e *Engine) allocate() error {
	layout := e.mirror.Layout()
	stateBytes := layout.Len() * field.Float32Size
	interior := e.p.InteriorCount()

	var err error
	alloc := func(label string, size int) device.Buffer {
		if err != nil {
			return nil
		}
		var b device.Buffer
		b, err = e.dev.NewBuffer(label, size)
		return b
	}
	e.current = alloc("state_a", stateBytes)
	e.next = alloc("state_b", stateBytes)
	e.params = alloc("params", kernels.ParamsSize)
	e.variation = alloc("variation", interior*field.Float32Size)
	e.partialSums = alloc("partial_sums", kernels.PartialSumCount(interior)*field.Float32Size)
	e.diagnostics = alloc("diagnostics", kernels.DiagnosticsLen*field.Float32Size)
	if err != nil {
		return err
	}

	if err := e.current.Write(0, e.mirror.Float32Bytes()); err != nil {
		return err
	}
	if err := e.params.Write(0, kernels.NewParams(e.p, layout).Marshal()); err != nil {
		return err
	}
	e.log.Debug("buffers allocated",
		zap.Int("state_bytes", stateBytes),
		zap.Int("interior_points", interior),
		zap.Int("partial_sums", kernels.PartialSumCount(interior)))
	return nil
}

// initialize evaluates g into both state buffers so boundary values hold
// whichever buffer is current, then refreshes the host mirror.
func (e *Engine) initialize() error {
	pl := e.pipelines[kernels.InitEntry]
	groups := kernels.GridWorkgroups(e.p)
	err := e.queue.Submit(
		device.Dispatch{Pipeline: pl, Workgroups: groups, Bindings: map[int]device.Buffer{
			kernels.BindStateOut: e.current,
			kernels.BindParams:   e.params,
		}},
		device.Dispatch{Pipeline: pl, Workgroups: groups, Bindings: map[int]device.Buffer{
			kernels.BindStateOut: e.next,
			kernels.BindParams:   e.params,
		}},
	)
	if err != nil {
		return fmt.Errorf("initialization dispatch: %w", err)
	}
	return e.Sync()
}

// ComputeTimestep runs one step on the device and returns the total
// variation summed in double precision.
func (e *Engine) ComputeTimestep() (float64, error) {
	if !e.state.CanStep() {
		return 0, fmt.Errorf("%w: compute timestep in state %s", ErrState, e.state)
	}
	if err := e.params.Write(kernels.CurrentTimeOffset, kernels.TimeBytes(e.time)); err != nil {
		return 0, err
	}

	grid := kernels.GridWorkgroups(e.p)
	err := e.queue.Submit(
		device.Dispatch{Pipeline: e.pipelines[kernels.UpdateEntry], Workgroups: grid, Bindings: map[int]device.Buffer{
			kernels.BindStateIn:  e.current,
			kernels.BindStateOut: e.next,
			kernels.BindParams:   e.params,
		}},
		device.Dispatch{Pipeline: e.pipelines[kernels.VariationEntry], Workgroups: grid, Bindings: map[int]device.Buffer{
			kernels.BindStateIn:     e.current,
			kernels.BindStateOut:    e.next,
			kernels.BindParams:      e.params,
			kernels.BindVariation:   e.variation,
			kernels.BindDiagnostics: e.diagnostics,
		}},
		device.Dispatch{
			Pipeline:   e.pipelines[kernels.ReduceEntry],
			Workgroups: [3]uint32{uint32(kernels.PartialSumCount(e.p.InteriorCount())), 1, 1},
			Bindings: map[int]device.Buffer{
				kernels.BindParams:      e.params,
				kernels.BindVariation:   e.variation,
				kernels.BindPartialSums: e.partialSums,
			},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("step at t=%g: %w", e.time, err)
	}

	raw, err := e.partialSums.Read()
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, v := range words(raw) {
		total += float64(v)
	}

	if e.opts.Debug {
		e.logDiagnostics()
	}

	e.current, e.next = e.next, e.current
	e.time += e.p.DT
	e.state = Stepping
	return total, nil
}

func (e *Engine) logDiagnostics() {
	raw, err := e.diagnostics.Read()
	if err != nil {
		e.log.Warn("read diagnostics", zap.Error(err))
		return
	}
	d := words(raw)
	e.log.Debug("device diagnostics (1,1,1)",
		zap.Float64("time", e.time),
		zap.Float32("local_update", d[kernels.DiagLocalUpdate]),
		zap.Float32("laplacian", d[kernels.DiagLaplacian]),
		zap.Float32("force", d[kernels.DiagForce]),
		zap.Float32("next", d[kernels.DiagNext]))
}

func words(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out
}

// Sync copies the current device state into the host mirror.
func (e *Engine) Sync() error {
	if e.current == nil || e.state == Released {
		return fmt.Errorf("%w: sync in state %s", ErrState, e.state)
	}
	raw, err := e.current.Read()
	if err != nil {
		return err
	}
	return e.mirror.InitializeFromBuffer(raw, field.Float32Size)
}

// Solution syncs and returns the host mirror.
func (e *Engine) Solution() (*field.Field, error) {
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e.mirror, nil
}

// Solve runs the configured number of steps.
func (e *Engine) Solve(ctx context.Context, sink solver.Sink) error {
	return solver.Drive(ctx, e, sink)
}

func (e *Engine) Parameters() params.Parameters { return e.p }
func (e *Engine) CurrentTime() float64          { return e.time }
func (e *Engine) State() State                  { return e.state }

// Source is the assembled kernel library.
func (e *Engine) Source() string { return e.source }

// Close releases pipelines, library, buffers, queue and device, in that
// order. It is safe to call more than once.
func (e *Engine) Close() {
	if e.state == Released {
		return
	}
	for _, entry := range kernels.EntryPoints {
		if pl, ok := e.pipelines[entry]; ok {
			pl.Release()
		}
	}
	e.pipelines = nil
	if e.lib != nil {
		e.lib.Release()
		e.lib = nil
	}
	for _, b := range []device.Buffer{e.current, e.next, e.params, e.variation, e.partialSums, e.diagnostics} {
		if b != nil {
			b.Release()
		}
	}
	e.current, e.next, e.params, e.variation, e.partialSums, e.diagnostics = nil, nil, nil, nil, nil, nil
	if e.queue != nil {
		e.queue.Release()
		e.queue = nil
	}
	e.dev.Release()
	e.state = Released
	e.log.Debug("engine released")
}
