//go:build gpu

package device

import (
	"fmt"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
	"go.uber.org/zap"
)

// WebGPU drives a GPU adapter through wgpu-native.
type WebGPU struct {
	log      *zap.Logger
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     Info

	once sync.Once
}

// OpenWebGPU acquires the high-performance adapter, falling back to the
// low-power and default adapters.
func OpenWebGPU(opts Options) (Device, error) {
	log := opts.logger().With(zap.String("backend", BackendWebGPU))

	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("%w: wgpu.CreateInstance returned nil", ErrDeviceUnavailable)
	}

	var (
		adapter *wgpu.Adapter
		lastErr error
	)
	for _, opt := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		a, err := inst.RequestAdapter(opt)
		if err == nil && a != nil {
			adapter = a
			break
		}
		lastErr = err
		log.Debug("adapter request failed", zap.Error(err))
	}
	if adapter == nil {
		inst.Release()
		return nil, fmt.Errorf("%w: all adapter requests failed: %v", ErrDeviceUnavailable, lastErr)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		inst.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrDeviceUnavailable, err)
	}

	ai := adapter.GetInfo()
	d := &WebGPU{
		log:      log,
		instance: inst,
		adapter:  adapter,
		device:   dev,
		queue:    dev.GetQueue(),
		info: Info{
			Name:        strings.TrimSpace(ai.Name),
			Backend:     BackendWebGPU,
			Vendor:      strings.TrimSpace(ai.VendorName),
			Driver:      strings.TrimSpace(ai.DriverDescription),
			Description: ai.BackendType.String() + " " + ai.AdapterType.String(),
		},
	}
	if d.queue == nil {
		d.Release()
		return nil, fmt.Errorf("%w: device has no queue", ErrDeviceUnavailable)
	}
	log.Info("using GPU adapter", zap.String("name", d.info.Name), zap.String("vendor", d.info.Vendor))
	return d, nil
}

func (d *WebGPU) Info() Info { return d.info }

func (d *WebGPU) NewQueue() (Queue, error) {
	if d.device == nil {
		return nil, ErrReleased
	}
	return &webgpuQueue{dev: d}, nil
}

func (d *WebGPU) Compile(source string) (Library, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "heat3d_library",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	sizes := make(map[string][3]uint32)
	for _, m := range entryRe.FindAllStringSubmatch(source, -1) {
		if size, err := parseWorkgroupSize(m[1]); err == nil {
			sizes[m[2]] = size
		}
	}
	return &webgpuLibrary{dev: d, module: module, sizes: sizes}, nil
}

func (d *WebGPU) NewBuffer(label string, size int) (Buffer, error) {
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", label, err)
	}
	return &webgpuBuffer{dev: d, label: label, size: size, buf: buf}, nil
}

// Release drops the queue, then the device, adapter and instance.
func (d *WebGPU) Release() {
	d.once.Do(func() {
		if d.queue != nil {
			d.queue.Release()
			d.queue = nil
		}
		if d.device != nil {
			d.device.Release()
			d.device = nil
		}
		if d.adapter != nil {
			d.adapter.Release()
		}
		if d.instance != nil {
			d.instance.Release()
		}
	})
}

type webgpuLibrary struct {
	dev    *WebGPU
	module *wgpu.ShaderModule
	sizes  map[string][3]uint32
}

func (l *webgpuLibrary) Pipeline(entryPoint string) (Pipeline, error) {
	if _, ok := l.sizes[entryPoint]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrPipelineResolution, entryPoint)
	}
	pipe, err := l.dev.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   entryPoint,
		Compute: wgpu.ProgrammableStageDescriptor{Module: l.module, EntryPoint: entryPoint},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrPipelineResolution, entryPoint, err)
	}
	return &webgpuPipeline{
		dev:    l.dev,
		entry:  entryPoint,
		size:   l.sizes[entryPoint],
		pipe:   pipe,
		groups: make(map[string]*wgpu.BindGroup),
	}, nil
}

func (l *webgpuLibrary) Release() {
	if l.module != nil {
		l.module.Release()
		l.module = nil
	}
}

type webgpuPipeline struct {
	dev    *WebGPU
	entry  string
	size   [3]uint32
	pipe   *wgpu.ComputePipeline
	groups map[string]*wgpu.BindGroup // keyed by bound buffers
}

func (p *webgpuPipeline) EntryPoint() string       { return p.entry }
func (p *webgpuPipeline) WorkgroupSize() [3]uint32 { return p.size }

func (p *webgpuPipeline) Release() {
	for _, bg := range p.groups {
		bg.Release()
	}
	p.groups = nil
	if p.pipe != nil {
		p.pipe.Release()
		p.pipe = nil
	}
}

// bindGroup returns the cached bind group for the bindings, creating it from
// the pipeline's automatic layout on first use.
func (p *webgpuPipeline) bindGroup(bindings map[int]Buffer) (*wgpu.BindGroup, error) {
	slots, ok := kernelBindings[p.entry]
	if !ok {
		return nil, fmt.Errorf("%w: no binding table for %q", ErrBinding, p.entry)
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(slots))
	var key strings.Builder
	for _, slot := range slots {
		b, ok := bindings[slot].(*webgpuBuffer)
		if !ok || b.buf == nil {
			return nil, fmt.Errorf("%w: %s binding %d", ErrBinding, p.entry, slot)
		}
		fmt.Fprintf(&key, "%d:%p;", slot, b.buf)
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(slot), Buffer: b.buf, Size: b.buf.GetSize()})
	}
	if bg, ok := p.groups[key.String()]; ok {
		return bg, nil
	}
	bg, err := p.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.entry + "_bind",
		Layout:  p.pipe.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBinding, p.entry, err)
	}
	p.groups[key.String()] = bg
	return bg, nil
}

type webgpuBuffer struct {
	dev   *WebGPU
	label string
	size  int
	buf   *wgpu.Buffer
}

func (b *webgpuBuffer) Label() string { return b.label }
func (b *webgpuBuffer) Size() int     { return b.size }

func (b *webgpuBuffer) Write(offset int, data []byte) error {
	if b.buf == nil {
		return fmt.Errorf("%w: buffer %q", ErrReleased, b.label)
	}
	if offset < 0 || offset+len(data) > b.size {
		return fmt.Errorf("heat3d/device: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.label, b.size)
	}
	b.dev.queue.WriteBuffer(b.buf, uint64(offset), data)
	return nil
}

// Read copies the buffer into a mappable staging buffer and blocks until
// the mapping completes.
func (b *webgpuBuffer) Read() ([]byte, error) {
	if b.buf == nil {
		return nil, fmt.Errorf("%w: buffer %q", ErrReleased, b.label)
	}
	d := b.dev
	size := uint64(b.size)
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: b.label + "_staging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer staging.Destroy()

	enc, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	enc.CopyBufferToBuffer(b.buf, 0, staging, 0, size)
	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return nil, fmt.Errorf("finish command: %w", err)
	}
	d.queue.Submit(cmd)
	cmd.Release()

	done := false
	var mapErr error
	err = staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("map %q failed: %v", b.label, status)
		}
		done = true
	})
	if err != nil {
		return nil, fmt.Errorf("map %q: %w", b.label, err)
	}
	for !done {
		d.device.Poll(true, nil)
	}
	if mapErr != nil {
		return nil, mapErr
	}
	out := make([]byte, b.size)
	copy(out, staging.GetMappedRange(0, uint(size)))
	staging.Unmap()
	return out, nil
}

func (b *webgpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Destroy()
		b.buf = nil
	}
}

type webgpuQueue struct {
	dev *WebGPU
}

// Submit records one compute pass per dispatch into a single encoder.
func (q *webgpuQueue) Submit(dispatches ...Dispatch) error {
	d := q.dev
	enc, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "heat3d_step"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	for i, dsp := range dispatches {
		p, ok := dsp.Pipeline.(*webgpuPipeline)
		if !ok {
			enc.Release()
			return fmt.Errorf("dispatch %d: %w: pipeline %T does not belong to the webgpu device", i, ErrBinding, dsp.Pipeline)
		}
		bg, err := p.bindGroup(dsp.Bindings)
		if err != nil {
			enc.Release()
			return fmt.Errorf("dispatch %d: %w", i, err)
		}
		pass := enc.BeginComputePass(&wgpu.ComputePassDescriptor{Label: p.entry})
		pass.SetPipeline(p.pipe)
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups(dsp.Workgroups[0], dsp.Workgroups[1], dsp.Workgroups[2])
		pass.End()
	}
	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return fmt.Errorf("finish command buffer: %w", err)
	}
	d.queue.Submit(cmd)
	cmd.Release()
	d.device.Poll(true, nil)
	return nil
}

func (q *webgpuQueue) Release() {}
