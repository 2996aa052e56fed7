package device

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/openfluke/heat3d/kernels"
)

// kernelBindings mirrors the static binding use of each entry point.
var kernelBindings = kernels.EntryBindings

type groupFunc func(group [3]uint32, ws *workspace)

type nativeKernel struct {
	requires []string
	prepare  func(l *launch) (groupFunc, error)
}

var nativeKernels = map[string]nativeKernel{
	kernels.UpdateEntry:    {requires: []string{"f"}, prepare: prepareUpdate},
	kernels.VariationEntry: {requires: []string{"f"}, prepare: prepareVariation},
	kernels.ReduceEntry:    {prepare: prepareReduce},
	kernels.InitEntry:      {requires: []string{"g"}, prepare: prepareInit},
}

// workspace is per-goroutine scratch memory.
type workspace struct {
	env     []float32
	scratch []float32
}

type launch struct {
	lib    *softwareLibrary
	size   [3]uint32
	groups [3]uint32
	bufs   map[int][]float32
	p      kernels.Params
}

func (l *launch) loadParams() error {
	words := l.bufs[kernels.BindParams]
	raw := make([]byte, 4*len(words))
	for i, v := range words {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	p, err := kernels.UnmarshalParams(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBinding, err)
	}
	l.p = p
	return nil
}

// each calls fn for every invocation of a workgroup.
func (l *launch) each(group [3]uint32, fn func(i, j, k uint32)) {
	for lz := uint32(0); lz < l.size[2]; lz++ {
		for ly := uint32(0); ly < l.size[1]; ly++ {
			for lx := uint32(0); lx < l.size[0]; lx++ {
				fn(group[0]*l.size[0]+lx, group[1]*l.size[1]+ly, group[2]*l.size[2]+lz)
			}
		}
	}
}

func (l *launch) need(slot, words int) ([]float32, error) {
	b := l.bufs[slot]
	if len(b) < words {
		return nil, fmt.Errorf("%w: binding %d holds %d words, need %d", ErrBinding, slot, len(b), words)
	}
	return b, nil
}

func (l *launch) stateLen() int {
	p := l.p
	return int(l.flat(p.NX, p.NY, p.NZ)) + 1
}

func (l *launch) flat(i, j, k uint32) uint32 {
	return i + l.p.SX*(j+l.p.SY*k)
}

func (l *launch) interior(i, j, k uint32) bool {
	p := l.p
	return i >= 1 && j >= 1 && k >= 1 && i < p.NX && j < p.NY && k < p.NZ
}

func (l *launch) interiorIndex(i, j, k uint32) uint32 {
	p := l.p
	return (i - 1) + (p.NX-1)*((j-1)+(p.NY-1)*(k-1))
}

func (l *launch) laplacian(in []float32, i, j, k uint32) float32 {
	p := l.p
	c := in[l.flat(i, j, k)]
	d2x := (in[l.flat(i+1, j, k)] - 2*c + in[l.flat(i-1, j, k)]) / p.DX2
	d2y := (in[l.flat(i, j+1, k)] - 2*c + in[l.flat(i, j-1, k)]) / p.DY2
	d2z := (in[l.flat(i, j, k+1)] - 2*c + in[l.flat(i, j, k-1)]) / p.DZ2
	return d2x + d2y + d2z
}

func (l *launch) force(f func([]float32) float32, ws *workspace, i, j, k uint32) float32 {
	p := l.p
	env := ws.env[:4]
	env[0], env[1], env[2], env[3] = float32(i)*p.DX, float32(j)*p.DY, float32(k)*p.DZ, p.CurrentTime
	return f(env)
}

func prepareUpdate(l *launch) (groupFunc, error) {
	in, err := l.need(kernels.BindStateIn, l.stateLen())
	if err != nil {
		return nil, err
	}
	out, err := l.need(kernels.BindStateOut, l.stateLen())
	if err != nil {
		return nil, err
	}
	f := l.lib.helpers["f"]
	return func(group [3]uint32, ws *workspace) {
		l.each(group, func(i, j, k uint32) {
			if !l.interior(i, j, k) {
				return
			}
			idx := l.flat(i, j, k)
			out[idx] = in[idx] + l.p.DT*(l.laplacian(in, i, j, k)+l.force(f, ws, i, j, k))
		})
	}, nil
}

func prepareVariation(l *launch) (groupFunc, error) {
	in, err := l.need(kernels.BindStateIn, l.stateLen())
	if err != nil {
		return nil, err
	}
	next, err := l.need(kernels.BindStateOut, l.stateLen())
	if err != nil {
		return nil, err
	}
	variation, err := l.need(kernels.BindVariation, int(l.p.InteriorCount))
	if err != nil {
		return nil, err
	}
	diag, err := l.need(kernels.BindDiagnostics, kernels.DiagnosticsLen)
	if err != nil {
		return nil, err
	}
	f := l.lib.helpers["f"]
	return func(group [3]uint32, ws *workspace) {
		l.each(group, func(i, j, k uint32) {
			if !l.interior(i, j, k) {
				return
			}
			lap := l.laplacian(in, i, j, k)
			force := l.force(f, ws, i, j, k)
			local := l.p.DT * (lap + force)
			variation[l.interiorIndex(i, j, k)] = float32(math.Abs(float64(local)))
			if i == 1 && j == 1 && k == 1 {
				diag[kernels.DiagLocalUpdate] = local
				diag[kernels.DiagLaplacian] = lap
				diag[kernels.DiagForce] = force
				diag[kernels.DiagNext] = next[l.flat(i, j, k)]
			}
		})
	}, nil
}

// prepareReduce sums each group's slice with halving rounds. The end of a
// round plays the role of the workgroup barrier.
func prepareReduce(l *launch) (groupFunc, error) {
	n := l.size[0]
	if l.size[1] != 1 || l.size[2] != 1 || n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: reduction needs a 1-D power-of-two workgroup, got %v", ErrBinding, l.size)
	}
	count := l.p.InteriorCount
	variation, err := l.need(kernels.BindVariation, int(count))
	if err != nil {
		return nil, err
	}
	partial, err := l.need(kernels.BindPartialSums, int(l.groups[0]))
	if err != nil {
		return nil, err
	}
	return func(group [3]uint32, ws *workspace) {
		scratch := ws.scratch[:n]
		base := group[0] * n
		for t := uint32(0); t < n; t++ {
			if gid := base + t; gid < count {
				scratch[t] = variation[gid]
			} else {
				scratch[t] = 0
			}
		}
		for s := n / 2; s > 0; s >>= 1 {
			for t := uint32(0); t < s; t++ {
				scratch[t] += scratch[t+s]
			}
		}
		partial[group[0]] = scratch[0]
	}, nil
}

func prepareInit(l *launch) (groupFunc, error) {
	out, err := l.need(kernels.BindStateOut, l.stateLen())
	if err != nil {
		return nil, err
	}
	g := l.lib.helpers["g"]
	p := l.p
	return func(group [3]uint32, ws *workspace) {
		l.each(group, func(i, j, k uint32) {
			if i > p.NX || j > p.NY || k > p.NZ {
				return
			}
			env := ws.env[:3]
			env[0], env[1], env[2] = float32(i)*p.DX, float32(j)*p.DY, float32(k)*p.DZ
			out[l.flat(i, j, k)] = g(env)
		})
	}, nil
}
