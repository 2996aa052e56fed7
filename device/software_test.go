package device

import (
	"encoding/binary"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/openfluke/heat3d/functions"
	"github.com/openfluke/heat3d/kernels"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func assembled(t *testing.T) string {
	t.Helper()
	set, err := functions.Build(functions.Defaults(), nil)
	require.NoError(t, err)
	src, err := kernels.Builder{}.Build(set.Force, set.Initial)
	require.NoError(t, err)
	return src
}

func floats(vs []float32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func decode(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func TestSoftwareCompileResolvesEntryPoints(t *testing.T) {
	dev := NewSoftware(Options{})
	defer dev.Release()

	lib, err := dev.Compile(assembled(t))
	require.NoError(t, err)
	defer lib.Release()

	for _, entry := range kernels.EntryPoints {
		p, err := lib.Pipeline(entry)
		require.NoError(t, err, entry)
		assert.Equal(t, entry, p.EntryPoint())
	}
	p, err := lib.Pipeline(kernels.ReduceEntry)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{kernels.GroupSize, 1, 1}, p.WorkgroupSize())
	p, err = lib.Pipeline(kernels.UpdateEntry)
	require.NoError(t, err)
	assert.Equal(t, [3]uint32{kernels.TileSize, kernels.TileSize, kernels.TileSize}, p.WorkgroupSize())

	_, err = lib.Pipeline("missing_kernel")
	assert.ErrorIs(t, err, ErrPipelineResolution)
}

func TestSoftwareCompileErrors(t *testing.T) {
	dev := NewSoftware(Options{})
	defer dev.Release()

	tmpl, err := kernels.Embedded()
	require.NoError(t, err)
	_, err = dev.Compile(tmpl[kernels.CommonModule])
	require.ErrorIs(t, err, ErrCompile)
	assert.Contains(t, err.Error(), "function 'f' declared without a body")

	bad := "fn f(x: f32, y: f32, z: f32, t: f32) -> f32 { return x +* y; }\n"
	_, err = dev.Compile(bad)
	require.ErrorIs(t, err, ErrCompile)
	assert.Contains(t, err.Error(), "1:")

	noForce := "@compute @workgroup_size(4, 4, 4)\nfn heat_equation_kernel() {}\n"
	_, err = dev.Compile(noForce)
	require.ErrorIs(t, err, ErrCompile)
	assert.Contains(t, err.Error(), "unresolved call to 'f'")
}

func TestSoftwareBufferReadWrite(t *testing.T) {
	dev := NewSoftware(Options{})
	defer dev.Release()

	buf, err := dev.NewBuffer("state", 16)
	require.NoError(t, err)
	require.NoError(t, buf.Write(4, floats([]float32{1.5, -2})))

	got, err := buf.Read()
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1.5, -2, 0}, decode(got))

	assert.Error(t, buf.Write(12, floats([]float32{1, 2})))
	assert.Error(t, buf.Write(2, floats([]float32{1})))
	_, err = dev.NewBuffer("odd", 6)
	assert.Error(t, err)

	buf.Release()
	_, err = buf.Read()
	assert.ErrorIs(t, err, ErrReleased)
}

func reduceOnce(t *testing.T, dev *Software, pipe Pipeline, values []float32) []float32 {
	t.Helper()
	n := len(values)
	groups := kernels.PartialSumCount(n)

	prm, err := dev.NewBuffer("params", kernels.ParamsSize)
	require.NoError(t, err)
	defer prm.Release()
	require.NoError(t, prm.Write(0, kernels.Params{InteriorCount: uint32(n)}.Marshal()))

	variation, err := dev.NewBuffer("variation", 4*n)
	require.NoError(t, err)
	defer variation.Release()
	require.NoError(t, variation.Write(0, floats(values)))

	partial, err := dev.NewBuffer("partial", 4*groups)
	require.NoError(t, err)
	defer partial.Release()

	q, err := dev.NewQueue()
	require.NoError(t, err)
	defer q.Release()
	require.NoError(t, q.Submit(Dispatch{
		Pipeline: pipe,
		Bindings: map[int]Buffer{
			kernels.BindParams:      prm,
			kernels.BindVariation:   variation,
			kernels.BindPartialSums: partial,
		},
		Workgroups: [3]uint32{uint32(groups), 1, 1},
	}))
	out, err := partial.Read()
	require.NoError(t, err)
	return decode(out)
}

func TestSoftwareReductionMatchesFullPrecisionSum(t *testing.T) {
	dev := NewSoftware(Options{Workers: 3})
	defer dev.Release()
	lib, err := dev.Compile(assembled(t))
	require.NoError(t, err)
	pipe, err := lib.Pipeline(kernels.ReduceEntry)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for _, n := range []int{1, 100, 255, 256, 257, 1000, 4096 + 17} {
		values := make([]float32, n)
		var want float64
		for i := range values {
			values[i] = rng.Float32()
			want += float64(values[i])
		}

		partial := reduceOnce(t, dev, pipe, values)
		require.Len(t, partial, kernels.PartialSumCount(n))

		var got float64
		for g, s := range partial {
			var group float64
			for _, v := range values[g*kernels.GroupSize : min((g+1)*kernels.GroupSize, n)] {
				group += float64(v)
			}
			assert.InEpsilon(t, group, float64(s), 1e-5, "n=%d group=%d", n, g)
			got += float64(s)
		}
		assert.InEpsilon(t, want, got, 1e-5, "n=%d", n)
	}
}

func TestSoftwareDispatchRejectsBindingMismatch(t *testing.T) {
	dev := NewSoftware(Options{})
	defer dev.Release()
	lib, err := dev.Compile(assembled(t))
	require.NoError(t, err)
	pipe, err := lib.Pipeline(kernels.ReduceEntry)
	require.NoError(t, err)

	buf, err := dev.NewBuffer("b", kernels.ParamsSize)
	require.NoError(t, err)
	q, err := dev.NewQueue()
	require.NoError(t, err)

	err = q.Submit(Dispatch{
		Pipeline:   pipe,
		Bindings:   map[int]Buffer{kernels.BindParams: buf, kernels.BindStateIn: buf},
		Workgroups: [3]uint32{1, 1, 1},
	})
	assert.ErrorIs(t, err, ErrBinding)
}

func TestSoftwareQueueRelease(t *testing.T) {
	dev := NewSoftware(Options{})
	defer dev.Release()

	q, err := dev.NewQueue()
	require.NoError(t, err)
	require.NoError(t, q.Submit())

	q.Release()
	q.Release()
	assert.ErrorIs(t, q.Submit(), ErrReleased)

	other, err := dev.NewQueue()
	require.NoError(t, err)
	defer other.Release()
	assert.NoError(t, other.Submit())
}

func TestSoftwareReleaseInvalidatesBuffers(t *testing.T) {
	dev := NewSoftware(Options{})
	buf, err := dev.NewBuffer("b", 8)
	require.NoError(t, err)

	dev.Release()
	dev.Release()

	_, err = buf.Read()
	assert.ErrorIs(t, err, ErrReleased)
	_, err = dev.NewBuffer("c", 8)
	assert.ErrorIs(t, err, ErrReleased)
	_, err = dev.Compile("")
	assert.ErrorIs(t, err, ErrReleased)
}

func TestOpenBackends(t *testing.T) {
	d, err := Open(BackendSoftware, Options{})
	require.NoError(t, err)
	assert.Equal(t, BackendSoftware, d.Info().Backend)
	assert.Positive(t, d.Info().Workers)
	d.Release()

	_, err = Open("quantum", Options{})
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.True(t, strings.Contains(err.Error(), "quantum"))
}
