package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openfluke/heat3d/transpile"
)

// Software is a CPU-backed device. Entry points found in the compiled WGSL
// run as native Go kernels. Single-expression f32 helpers of the library,
// which include the spliced user functions, are compiled by the transpile
// evaluator and run at single precision.
type Software struct {
	log     *zap.Logger
	workers int

	mu       sync.Mutex
	released bool
	buffers  map[*softwareBuffer]struct{}
}

// NewSoftware returns a software device.
func NewSoftware(opts Options) *Software {
	w := opts.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	return &Software{
		log:     opts.logger().With(zap.String("backend", BackendSoftware)),
		workers: w,
		buffers: make(map[*softwareBuffer]struct{}),
	}
}

func (d *Software) Info() Info {
	return Info{
		Name:        "heat3d software device",
		Backend:     BackendSoftware,
		Vendor:      runtime.GOARCH,
		Driver:      runtime.Version(),
		Description: "CPU execution of the heat3d kernels at single precision",
		Workers:     d.workers,
	}
}

func (d *Software) NewQueue() (Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, ErrReleased
	}
	return &softwareQueue{dev: d}, nil
}

func (d *Software) NewBuffer(label string, size int) (Buffer, error) {
	if size < 0 || size%4 != 0 {
		return nil, fmt.Errorf("heat3d/device: buffer %q size %d is not a multiple of 4", label, size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, ErrReleased
	}
	b := &softwareBuffer{dev: d, label: label, data: make([]float32, size/4)}
	d.buffers[b] = struct{}{}
	d.log.Debug("buffer allocated", zap.String("label", label), zap.Int("bytes", size))
	return b, nil
}

func (d *Software) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true
	for b := range d.buffers {
		b.data = nil
	}
	d.buffers = nil
}

func (d *Software) forget(b *softwareBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, b)
}

var (
	lineCommentRe = regexp.MustCompile(`//[^\n]*`)
	entryRe       = regexp.MustCompile(`@compute\s+@workgroup_size\(([^)]*)\)\s*fn\s+(\w+)`)
	declarationRe = regexp.MustCompile(`\bfn\s+(\w+)\s*\([^)]*\)\s*->\s*[\w<>]+\s*;`)
	helperRe      = regexp.MustCompile(`\bfn\s+(\w+)\s*\(([^)]*)\)\s*->\s*f32\s*\{\s*return\s+([^;{}]*);\s*\}`)
	f32ParamRe    = regexp.MustCompile(`^\s*(\w+)\s*:\s*f32\s*$`)
)

// Compile scans source for entry points and helpers. Diagnostics follow the
// "line:column: message" shape of a WGSL front end.
func (d *Software) Compile(source string) (Library, error) {
	d.mu.Lock()
	released := d.released
	d.mu.Unlock()
	if released {
		return nil, ErrReleased
	}

	src := lineCommentRe.ReplaceAllStringFunc(source, func(c string) string { return strings.Repeat(" ", len(c)) })

	if m := declarationRe.FindStringSubmatchIndex(src); m != nil {
		return nil, fmt.Errorf("%w: %s: function '%s' declared without a body", ErrCompile, position(src, m[0]), src[m[2]:m[3]])
	}

	lib := &softwareLibrary{
		dev:     d,
		entries: make(map[string][3]uint32),
		helpers: make(map[string]func([]float32) float32),
	}
	for _, m := range helperRe.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		var params []string
		ok := true
		if list := strings.TrimSpace(src[m[4]:m[5]]); list != "" {
			for _, p := range strings.Split(list, ",") {
				pm := f32ParamRe.FindStringSubmatch(p)
				if pm == nil {
					ok = false
					break
				}
				params = append(params, pm[1])
			}
		}
		if !ok {
			continue
		}
		prog, err := transpile.NewProgram(name, params, src[m[6]:m[7]])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCompile, position(src, m[6]), err)
		}
		lib.helpers[name] = transpile.Evaluator[float32](prog)
	}

	for _, m := range entryRe.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[4]:m[5]]
		size, err := parseWorkgroupSize(src[m[2]:m[3]])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCompile, position(src, m[2]), err)
		}
		if k, ok := nativeKernels[name]; ok {
			for _, req := range k.requires {
				if _, ok := lib.helpers[req]; !ok {
					return nil, fmt.Errorf("%w: %s: unresolved call to '%s' in entry point '%s'", ErrCompile, position(src, m[0]), req, name)
				}
			}
		}
		lib.entries[name] = size
	}

	names := make([]string, 0, len(lib.entries))
	for n := range lib.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	helpers := make([]string, 0, len(lib.helpers))
	for n := range lib.helpers {
		helpers = append(helpers, n)
	}
	sort.Strings(helpers)
	d.log.Debug("library compiled", zap.Strings("entry_points", names), zap.Strings("helpers", helpers))
	return lib, nil
}

func parseWorkgroupSize(s string) ([3]uint32, error) {
	size := [3]uint32{1, 1, 1}
	parts := strings.Split(s, ",")
	if len(parts) > 3 {
		return size, fmt.Errorf("workgroup_size takes at most 3 arguments")
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimSpace(p), "u"), 10, 32)
		if err != nil || v == 0 {
			return size, fmt.Errorf("invalid workgroup_size argument %q", strings.TrimSpace(p))
		}
		size[i] = uint32(v)
	}
	return size, nil
}

func position(src string, offset int) string {
	line := strings.Count(src[:offset], "\n") + 1
	col := offset - strings.LastIndexByte(src[:offset], '\n')
	return fmt.Sprintf("%d:%d", line, col)
}

type softwareLibrary struct {
	dev     *Software
	entries map[string][3]uint32
	helpers map[string]func([]float32) float32
}

func (l *softwareLibrary) Pipeline(entryPoint string) (Pipeline, error) {
	size, ok := l.entries[entryPoint]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPipelineResolution, entryPoint)
	}
	k, ok := nativeKernels[entryPoint]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no software implementation", ErrPipelineResolution, entryPoint)
	}
	return &softwarePipeline{lib: l, entry: entryPoint, size: size, kernel: k}, nil
}

func (l *softwareLibrary) Release() {}

type softwarePipeline struct {
	lib    *softwareLibrary
	entry  string
	size   [3]uint32
	kernel nativeKernel
}

func (p *softwarePipeline) EntryPoint() string       { return p.entry }
func (p *softwarePipeline) WorkgroupSize() [3]uint32 { return p.size }
func (p *softwarePipeline) Release()                 {}

type softwareBuffer struct {
	dev   *Software
	label string
	data  []float32
}

func (b *softwareBuffer) Label() string { return b.label }
func (b *softwareBuffer) Size() int     { return 4 * len(b.data) }

func (b *softwareBuffer) Write(offset int, data []byte) error {
	if b.data == nil {
		return fmt.Errorf("%w: buffer %q", ErrReleased, b.label)
	}
	if offset%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("heat3d/device: unaligned write of %d bytes at %d to %q", len(data), offset, b.label)
	}
	if offset < 0 || offset+len(data) > b.Size() {
		return fmt.Errorf("heat3d/device: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.label, b.Size())
	}
	for i := 0; i < len(data); i += 4 {
		b.data[(offset+i)/4] = math.Float32frombits(binary.LittleEndian.Uint32(data[i:]))
	}
	return nil
}

func (b *softwareBuffer) Read() ([]byte, error) {
	if b.data == nil {
		return nil, fmt.Errorf("%w: buffer %q", ErrReleased, b.label)
	}
	out := make([]byte, b.Size())
	for i, v := range b.data {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out, nil
}

func (b *softwareBuffer) Release() {
	if b.data == nil {
		return
	}
	b.data = nil
	b.dev.forget(b)
}

type softwareQueue struct {
	dev      *Software
	released atomic.Bool
}

var (
	_ Device = (*Software)(nil)
	_ Queue  = (*softwareQueue)(nil)
)

func (q *softwareQueue) Submit(dispatches ...Dispatch) error {
	if q.released.Load() {
		return fmt.Errorf("%w: submit on a released queue", ErrReleased)
	}
	for i, d := range dispatches {
		if err := q.run(d); err != nil {
			return fmt.Errorf("dispatch %d: %w", i, err)
		}
	}
	return nil
}

// Release retires the queue. Later submissions fail with ErrReleased.
func (q *softwareQueue) Release() {
	q.released.Store(true)
}

func (q *softwareQueue) run(d Dispatch) error {
	p, ok := d.Pipeline.(*softwarePipeline)
	if !ok {
		return fmt.Errorf("%w: pipeline %T does not belong to the software device", ErrBinding, d.Pipeline)
	}
	bufs, err := resolveBindings(p.entry, d.Bindings)
	if err != nil {
		return err
	}
	l := &launch{lib: p.lib, size: p.size, groups: d.Workgroups, bufs: bufs}
	if err := l.loadParams(); err != nil {
		return err
	}
	fn, err := p.kernel.prepare(l)
	if err != nil {
		return fmt.Errorf("%s: %w", p.entry, err)
	}

	gx, gy, gz := d.Workgroups[0], d.Workgroups[1], d.Workgroups[2]
	total := int(gx) * int(gy) * int(gz)
	workers := min(q.dev.workers, total)
	scratch := int(p.size[0] * p.size[1] * p.size[2])

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			ws := &workspace{env: make([]float32, 4), scratch: make([]float32, scratch)}
			for n := w; n < total; n += workers {
				x := uint32(n) % gx
				y := uint32(n) / gx % gy
				z := uint32(n) / (gx * gy)
				fn([3]uint32{x, y, z}, ws)
			}
			return nil
		})
	}
	return g.Wait()
}

func resolveBindings(entry string, bindings map[int]Buffer) (map[int][]float32, error) {
	want, ok := kernelBindings[entry]
	if !ok {
		return nil, fmt.Errorf("%w: no binding table for %q", ErrBinding, entry)
	}
	if len(bindings) != len(want) {
		return nil, fmt.Errorf("%w: %s uses bindings %v, got %d", ErrBinding, entry, want, len(bindings))
	}
	out := make(map[int][]float32, len(want))
	for _, slot := range want {
		b, ok := bindings[slot]
		if !ok {
			return nil, fmt.Errorf("%w: %s binding %d not set", ErrBinding, entry, slot)
		}
		sb, ok := b.(*softwareBuffer)
		if !ok {
			return nil, fmt.Errorf("%w: %s binding %d is a %T", ErrBinding, entry, slot, b)
		}
		if sb.data == nil {
			return nil, fmt.Errorf("%w: %s binding %d (%q)", ErrReleased, entry, slot, sb.label)
		}
		out[slot] = sb.data
	}
	return out, nil
}
