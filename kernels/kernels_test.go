package kernels

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/sbl8/edgenet/core"
)

var (
	_ Kernel = (*Conv[int8, int8, int8, int32])(nil)
	_ Kernel = (*Depthwise[float32, float32, float32, float32])(nil)
	_ Kernel = (*Pool[uint8, int32])(nil)
	_ Kernel = (*FC[int8, int8, int8, int32])(nil)
	_ Kernel = (*ElemWise[int8, int8, int32])(nil)
	_ Kernel = (*Concat[int8])(nil)
	_ Kernel = (*Resize[float32])(nil)
	_ Kernel = (*Scaling[int32, int8, int32])(nil)
	_ Kernel = (*Argmax[int8])(nil)
)

// Helper to generate small integer values so float sums are exact
func intValued(r *rand.Rand, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(r.Intn(9) - 4)
	}
	return s
}

func randomInt8(r *rand.Rand, n int) []int8 {
	s := make([]int8, n)
	for i := range s {
		s[i] = int8(r.Intn(256) - 128)
	}
	return s
}

func shape(h, w, c int) core.Shape {
	return core.Shape{Height: h, Width: w, Channels: c}
}

// Go reference for a padded, strided convolution over dense tensors
func convGo(in []float32, is core.Shape, weights, bias []float32, win Window, os core.Shape, depthwise bool) []float32 {
	win.defaults()
	out := make([]float32, os.Size())
	for oy := 0; oy < os.Height; oy++ {
		for ox := 0; ox < os.Width; ox++ {
			for o := 0; o < os.Channels; o++ {
				sum := bias[o]
				for ky := 0; ky < win.KernelH; ky++ {
					for kx := 0; kx < win.KernelW; kx++ {
						iy := oy*win.StrideY - win.PadY + ky
						ix := ox*win.StrideX - win.PadX + kx
						if iy < 0 || ix < 0 || iy >= is.Height || ix >= is.Width {
							continue
						}
						base := (iy*is.Width + ix) * is.Channels
						if depthwise {
							sum += in[base+o] * weights[(o*win.KernelH+ky)*win.KernelW+kx]
							continue
						}
						for c := 0; c < is.Channels; c++ {
							sum += in[base+c] * weights[((o*win.KernelH+ky)*win.KernelW+kx)*is.Channels+c]
						}
					}
				}
				out[(oy*os.Width+ox)*os.Channels+o] = sum
			}
		}
	}
	return out
}

// strided copies a dense tensor into a buffer with stride elements per position.
func strided[T core.Element](dense []T, s core.Shape, stride int) []T {
	out := make([]T, s.Positions()*stride)
	for p := 0; p < s.Positions(); p++ {
		copy(out[p*stride:], dense[p*s.Channels:(p+1)*s.Channels])
	}
	return out
}

var windowCases = []struct {
	name string
	in   core.Shape
	win  Window
	outs int
}{
	{"3x3 valid", shape(5, 5, 3), Window{KernelH: 3, KernelW: 3}, 4},
	{"3x3 same", shape(5, 6, 3), Window{KernelH: 3, KernelW: 3, PadY: 1, PadX: 1}, 2},
	{"3x3 stride 2", shape(7, 7, 2), Window{KernelH: 3, KernelW: 3, StrideY: 2, StrideX: 2, PadY: 1, PadX: 1}, 3},
	{"5x3 uneven pad", shape(6, 5, 4), Window{KernelH: 5, KernelW: 3, PadY: 2, PadX: 1}, 2},
	{"pad only rows", shape(4, 5, 2), Window{KernelH: 3, KernelW: 2, PadY: 1}, 3},
	{"2x2 stride 2", shape(4, 4, 1), Window{KernelH: 2, KernelW: 2, StrideY: 2, StrideX: 2}, 2},
}

func TestConvMatchesReference(t *testing.T) {
	t.Parallel()
	for _, tt := range windowCases {
		t.Run(tt.name, func(t *testing.T) {
			r := rand.New(rand.NewSource(1))
			os := tt.win.Output(tt.in, tt.outs)
			in := intValued(r, tt.in.Size())
			weights := intValued(r, tt.outs*tt.win.KernelH*tt.win.KernelW*tt.in.Channels)
			bias := intValued(r, tt.outs)

			k, err := NewConv[float32, float32, float32, float32](ConvConfig{
				In:     Port{Shape: tt.in},
				Out:    Port{Shape: os},
				Window: tt.win,
			}, weights, bias)
			if err != nil {
				t.Fatalf("NewConv() = %v", err)
			}
			out := make([]float32, os.Size())
			k.Propagate(in, out)

			want := convGo(in, tt.in, weights, bias, tt.win, os, false)
			for i := range want {
				if out[i] != want[i] {
					t.Fatalf("output %d = %g, want %g", i, out[i], want[i])
				}
			}
		})
	}
}

func TestConvFastSlowAgree(t *testing.T) {
	t.Parallel()
	for _, tt := range windowCases {
		t.Run(tt.name, func(t *testing.T) {
			r := rand.New(rand.NewSource(2))
			os := tt.win.Output(tt.in, tt.outs)
			in := randomInt8(r, tt.in.Size())
			weights := randomInt8(r, tt.outs*tt.win.KernelH*tt.win.KernelW*tt.in.Channels)
			bias := make([]int32, tt.outs)
			cfg := ConvConfig{
				In:        Port{Shape: tt.in},
				Out:       Port{Shape: os},
				Window:    tt.win,
				Rescaling: Rescaling{Mode: ScaleSingleShift, Shift: make([]uint8, tt.outs)},
				Bits:      8,
			}
			for i := range cfg.Rescaling.Shift {
				cfg.Rescaling.Shift[i] = 6
			}

			fast, err := NewConv[int8, int8, int8, int32](cfg, weights, bias)
			if err != nil {
				t.Fatalf("NewConv() = %v", err)
			}
			want := make([]int8, os.Size())
			fast.Propagate(in, want)

			// a stride wider than the channel count forces the per-column path
			stride := tt.in.Channels + 3
			cfg.In.Map = core.At(0, stride, tt.in.Positions())
			slow, err := NewConv[int8, int8, int8, int32](cfg, weights, bias)
			if err != nil {
				t.Fatalf("NewConv() = %v", err)
			}
			got := make([]int8, os.Size())
			slow.Propagate(strided(in, tt.in, stride), got)

			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("output %d: slow path %d, fast path %d", i, got[i], want[i])
				}
			}
		})
	}
}

func TestConvIdentity(t *testing.T) {
	t.Parallel()
	s := shape(3, 4, 1)
	in := []int8{-128, -7, 0, 1, 2, 3, 50, 99, 127, -1, -2, 64}
	k, err := NewConv[int8, int8, int8, int32](ConvConfig{
		In:     Port{Shape: s},
		Out:    Port{Shape: s},
		Window: Window{KernelH: 1, KernelW: 1},
	}, []int8{1}, []int32{0})
	if err != nil {
		t.Fatalf("NewConv() = %v", err)
	}
	out := make([]int8, len(in))
	k.Propagate(in, out)
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("output %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestConvWrappedMemory(t *testing.T) {
	t.Parallel()
	// One memory block: the input wraps from [16,20) into [0,4), the
	// output wraps from [20,24) into [10,14).
	in := Port{Shape: shape(4, 1, 2), Map: core.Mapping{ContOffset: 16, ContSize: 4, WrapOffset: 0, WrapSize: 4, Stride: 2}}
	out := Port{Shape: shape(4, 1, 2), Map: core.Mapping{ContOffset: 20, ContSize: 4, WrapOffset: 10, WrapSize: 4, Stride: 2}}
	k, err := NewConv[float32, float32, float32, float32](ConvConfig{
		In:     in,
		Out:    out,
		Window: Window{KernelH: 1, KernelW: 1},
	}, []float32{1, 0, 0, 2}, []float32{0, 0.5})
	if err != nil {
		t.Fatalf("NewConv() = %v", err)
	}

	mem := core.AlignedBytes(24 * 4)
	view := core.View[float32](mem)
	copy(view[16:20], []float32{1, 2, 3, 4})
	copy(view[0:4], []float32{5, 6, 7, 8})
	k.RunRows(mem, 0, k.Rows())

	want := map[int]float32{20: 1, 21: 4.5, 22: 3, 23: 8.5, 10: 5, 11: 12.5, 12: 7, 13: 16.5}
	for idx, v := range want {
		if view[idx] != v {
			t.Errorf("mem[%d] = %g, want %g", idx, view[idx], v)
		}
	}
}

func TestRunRowsMatchesPropagate(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(3))
	is, win := shape(6, 6, 3), Window{KernelH: 3, KernelW: 3, PadY: 1, PadX: 1}
	os := win.Output(is, 4)
	in := randomInt8(r, is.Size())
	weights := randomInt8(r, 4*9*3)
	bias := []int32{1, -2, 3, -4}
	cfg := ConvConfig{
		In:         Port{Shape: is},
		Out:        Dense(os, 128),
		Window:     win,
		Activation: Rectifier,
		Rescaling:  Rescaling{Mode: ScaleFloat, Float: []float64{0.01, 0.02, 0.03, 0.04}},
	}
	k, err := NewConv[int8, uint8, int8, int32](cfg, weights, bias)
	if err != nil {
		t.Fatalf("NewConv() = %v", err)
	}

	mem := core.AlignedBytes(128 + os.Size())
	copy(core.View[int8](mem), in)
	k.RunRows(mem, 0, 2)
	k.RunRows(mem, 2, k.Rows())

	want := make([]uint8, 128+os.Size())
	k.Propagate(in, want)
	got := core.View[uint8](mem)
	for i := 128; i < len(want); i++ {
		if got[i] != want[i] {
			t.Fatalf("output %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDepthwiseMatchesReference(t *testing.T) {
	t.Parallel()
	for _, tt := range windowCases {
		t.Run(tt.name, func(t *testing.T) {
			r := rand.New(rand.NewSource(4))
			os := tt.win.Output(tt.in, tt.in.Channels)
			in := intValued(r, tt.in.Size())
			weights := intValued(r, tt.in.Channels*tt.win.KernelH*tt.win.KernelW)
			bias := intValued(r, tt.in.Channels)
			want := convGo(in, tt.in, weights, bias, tt.win, os, true)

			for _, stride := range []int{tt.in.Channels, tt.in.Channels + 2} {
				k, err := NewDepthwise[float32, float32, float32, float32](ConvConfig{
					In:     Port{Shape: tt.in, Map: core.At(0, stride, tt.in.Positions())},
					Out:    Port{Shape: os},
					Window: tt.win,
				}, weights, bias)
				if err != nil {
					t.Fatalf("NewDepthwise() = %v", err)
				}
				out := make([]float32, os.Size())
				k.Propagate(strided(in, tt.in, stride), out)
				for i := range want {
					if out[i] != want[i] {
						t.Fatalf("stride %d: output %d = %g, want %g", stride, i, out[i], want[i])
					}
				}
			}
		})
	}
}

func TestAveragePool(t *testing.T) {
	t.Parallel()
	cfg := PoolConfig{
		In:      Port{Shape: shape(2, 2, 1)},
		Out:     Port{Shape: shape(1, 1, 1)},
		Window:  Window{KernelH: 2, KernelW: 2},
		Pooling: PoolAverage,
	}

	ik, err := NewPool[int8, int32](cfg)
	if err != nil {
		t.Fatalf("NewPool() = %v", err)
	}
	iout := make([]int8, 1)
	ik.Propagate([]int8{1, 2, 3, 4}, iout)
	if iout[0] != 2 {
		t.Errorf("integer average = %d, want 2", iout[0])
	}

	fk, err := NewPool[float32, float32](cfg)
	if err != nil {
		t.Fatalf("NewPool() = %v", err)
	}
	fout := make([]float32, 1)
	fk.Propagate([]float32{1, 2, 3, 4}, fout)
	if fout[0] != 2.5 {
		t.Errorf("floating average = %g, want 2.5", fout[0])
	}
}

func TestAveragePoolNominalArea(t *testing.T) {
	t.Parallel()
	k, err := NewPool[float32, float32](PoolConfig{
		In:      Port{Shape: shape(2, 2, 1)},
		Out:     Port{Shape: shape(2, 2, 1)},
		Window:  Window{KernelH: 2, KernelW: 2, StrideY: 2, StrideX: 2, PadY: 1, PadX: 1},
		Pooling: PoolAverage,
	})
	if err != nil {
		t.Fatalf("NewPool() = %v", err)
	}
	out := make([]float32, 4)
	k.Propagate([]float32{4, 8, 12, 16}, out)
	// every window sees a single input tap but divides by 4
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("output %d = %g, want %g", i, out[i], want[i])
		}
	}
}

func TestMaxPool(t *testing.T) {
	t.Parallel()
	k, err := NewPool[int8, int32](PoolConfig{
		In:      Port{Shape: shape(2, 4, 2)},
		Out:     Port{Shape: shape(1, 2, 2)},
		Window:  Window{KernelH: 2, KernelW: 2, StrideY: 2, StrideX: 2},
		Pooling: PoolMax,
	})
	if err != nil {
		t.Fatalf("NewPool() = %v", err)
	}
	in := []int8{
		-5, 1, -3, 2, 9, -128, 0, -128,
		-7, 3, -9, 0, 4, -128, 1, -128,
	}
	out := make([]int8, 4)
	k.Propagate(in, out)
	want := []int8{-3, 3, 9, -128}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("output %d = %d, want %d", i, out[i], want[i])
		}
	}
}

// Go reference for a fully-connected layer over a dense input
func fcGo(in, weights, bias []float32, neurons int) []float32 {
	out := make([]float32, neurons)
	n := len(in)
	for o := range out {
		sum := bias[o]
		for i := 0; i < n; i++ {
			sum += in[i] * weights[o*n+i]
		}
		out[o] = sum
	}
	return out
}

func TestFC(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(5))
	is := shape(3, 2, 4)
	in := intValued(r, is.Size())
	weights := intValued(r, 5*is.Size())
	bias := intValued(r, 5)
	want := fcGo(in, weights, bias, 5)

	for _, stride := range []int{4, 7} {
		k, err := NewFC[float32, float32, float32, float32](FCConfig{
			In:  Port{Shape: is, Map: core.At(0, stride, is.Positions())},
			Out: Dense(shape(1, 1, 5), 3),
		}, weights, bias)
		if err != nil {
			t.Fatalf("NewFC() = %v", err)
		}
		out := make([]float32, 8)
		k.Propagate(strided(in, is, stride), out)
		for i := range want {
			if out[3+i] != want[i] {
				t.Errorf("stride %d: neuron %d = %g, want %g", stride, i, out[3+i], want[i])
			}
		}
	}
}

func TestElemWise(t *testing.T) {
	t.Parallel()
	s := shape(2, 1, 2)
	k, err := NewElemWise[int8, int8, int32](ElemWiseConfig{
		Inputs:     []Port{{Shape: s}, {Shape: s}},
		Out:        Port{Shape: s},
		Activation: Rectifier,
	})
	if err != nil {
		t.Fatalf("NewElemWise() = %v", err)
	}
	out := make([]int8, 4)
	k.Propagate([][]int8{{1, 2, 100, -40}, {10, 20, 100, 30}}, out)
	want := []int8{11, 22, 127, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("output %d = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestElemWiseSharedMemory(t *testing.T) {
	t.Parallel()
	s := shape(1, 3, 1)
	k, err := NewElemWise[float32, float32, float32](ElemWiseConfig{
		Inputs: []Port{Dense(s, 0), Dense(s, 3), Dense(s, 6)},
		Out:    Dense(s, 9),
	})
	if err != nil {
		t.Fatalf("NewElemWise() = %v", err)
	}
	mem := core.AlignedBytes(12 * 4)
	view := core.View[float32](mem)
	copy(view, []float32{1, 2, 3, 10, 20, 30, 100, 200, 300})
	k.RunRows(mem, 0, k.Rows())
	want := []float32{111, 222, 333}
	for i := range want {
		if view[9+i] != want[i] {
			t.Errorf("output %d = %g, want %g", i, view[9+i], want[i])
		}
	}
}

func TestConcatOrder(t *testing.T) {
	t.Parallel()
	one := shape(1, 1, 1)
	k, err := NewConcat[int8](ConcatConfig{
		Inputs: []Port{{Shape: one}, {Shape: one}},
		Out:    Port{Shape: shape(1, 1, 2)},
	})
	if err != nil {
		t.Fatalf("NewConcat() = %v", err)
	}
	out := make([]int8, 2)
	k.Propagate([][]int8{{5}, {7}}, out)
	if out[0] != 5 || out[1] != 7 {
		t.Errorf("concat = %v, want [5 7]", out)
	}
}

func TestConcatChannels(t *testing.T) {
	t.Parallel()
	k, err := NewConcat[float32](ConcatConfig{
		Inputs: []Port{{Shape: shape(2, 1, 1)}, {Shape: shape(2, 1, 2)}},
		Out:    Port{Shape: shape(2, 1, 3)},
	})
	if err != nil {
		t.Fatalf("NewConcat() = %v", err)
	}
	out := make([]float32, 6)
	k.Propagate([][]float32{{1, 2}, {10, 11, 20, 21}}, out)
	want := []float32{1, 10, 11, 2, 20, 21}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("output %d = %g, want %g", i, out[i], want[i])
		}
	}
}

func TestResizeNearest(t *testing.T) {
	t.Parallel()
	k, err := NewResize[int8](ResizeConfig{
		In:  Port{Shape: shape(2, 2, 1)},
		Out: Port{Shape: shape(4, 4, 1)},
	})
	if err != nil {
		t.Fatalf("NewResize() = %v", err)
	}
	in := []int8{10, 20, 30, 40}
	out := make([]int8, 16)
	k.Propagate(in, out)

	if out[0] != 10 {
		t.Errorf("(0,0) = %d, want input (0,0)", out[0])
	}
	if out[15] != 40 {
		t.Errorf("(3,3) = %d, want input (1,1)", out[15])
	}
	for oy := 0; oy < 4; oy++ {
		for ox := 0; ox < 4; ox++ {
			if want := in[(oy/2)*2+ox/2]; out[oy*4+ox] != want {
				t.Errorf("(%d,%d) = %d, want %d", oy, ox, out[oy*4+ox], want)
			}
		}
	}
}

func TestScaling(t *testing.T) {
	t.Parallel()
	s := shape(1, 1, 4)
	k, err := NewScaling[int32, int8, int32](ScalingConfig{
		In:        Port{Shape: s},
		Out:       Port{Shape: s},
		Rescaling: Rescaling{Mode: ScaleSingleShift, Shift: []uint8{2, 2, 2, 2}},
	})
	if err != nil {
		t.Fatalf("NewScaling() = %v", err)
	}
	out := make([]int8, 4)
	k.Propagate([]int32{16, 7, -9, 1000}, out)
	want := []int8{4, 2, -2, 127}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("output %d = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestArgmax(t *testing.T) {
	t.Parallel()
	k, err := NewArgmax[int8](ArgmaxConfig{In: Port{Shape: shape(1, 3, 4)}})
	if err != nil {
		t.Fatalf("NewArgmax() = %v", err)
	}
	out := make([]int32, 3)
	k.Propagate([]int8{
		3, 5, 5, 2,
		9, 1, 1, 1,
		1, 2, 3, 4,
	}, out)
	want := []int32{1, 0, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("position %d = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestConfigErrors(t *testing.T) {
	t.Parallel()
	s := shape(4, 4, 2)
	win := Window{KernelH: 3, KernelW: 3}
	os := win.Output(s, 2)
	weights := make([]int8, 2*9*2)
	bias := make([]int32, 2)

	tests := []struct {
		name  string
		build func() error
	}{
		{"conv tanh", func() error {
			_, err := NewConv[int8, int8, int8, int32](ConvConfig{In: Port{Shape: s}, Out: Port{Shape: os}, Window: win, Activation: Tanh}, weights, bias)
			return err
		}},
		{"conv weights", func() error {
			_, err := NewConv[int8, int8, int8, int32](ConvConfig{In: Port{Shape: s}, Out: Port{Shape: os}, Window: win}, weights[1:], bias)
			return err
		}},
		{"conv output shape", func() error {
			_, err := NewConv[int8, int8, int8, int32](ConvConfig{In: Port{Shape: s}, Out: Port{Shape: s}, Window: win}, weights, bias)
			return err
		}},
		{"conv scaling length", func() error {
			_, err := NewConv[int8, int8, int8, int32](ConvConfig{In: Port{Shape: s}, Out: Port{Shape: os}, Window: win,
				Rescaling: Rescaling{Mode: ScaleSingleShift, Shift: []uint8{1}}}, weights, bias)
			return err
		}},
		{"conv shift on float", func() error {
			_, err := NewConv[float32, float32, float32, float32](ConvConfig{In: Port{Shape: s}, Out: Port{Shape: os}, Window: win,
				Rescaling: Rescaling{Mode: ScaleSingleShift, Shift: []uint8{1, 1}}}, make([]float32, 36), make([]float32, 2))
			return err
		}},
		{"conv narrow stride", func() error {
			_, err := NewConv[int8, int8, int8, int32](ConvConfig{In: Port{Shape: s, Map: core.Linear(1)}, Out: Port{Shape: os}, Window: win}, weights, bias)
			return err
		}},
		{"depthwise channels", func() error {
			_, err := NewDepthwise[int8, int8, int8, int32](ConvConfig{In: Port{Shape: s}, Out: Port{Shape: shape(2, 2, 3)}, Window: win}, weights[:27], bias)
			return err
		}},
		{"pool activation", func() error {
			_, err := NewPool[int8, int32](PoolConfig{In: Port{Shape: s}, Out: Port{Shape: os}, Window: win, Activation: Rectifier})
			return err
		}},
		{"pool kind", func() error {
			_, err := NewPool[int8, int32](PoolConfig{In: Port{Shape: s}, Out: Port{Shape: os}, Window: win, Pooling: Pooling(3)})
			return err
		}},
		{"fc spatial output", func() error {
			_, err := NewFC[int8, int8, int8, int32](FCConfig{In: Port{Shape: s}, Out: Port{Shape: shape(2, 1, 1)}}, weights, bias)
			return err
		}},
		{"fc wrapped output", func() error {
			_, err := NewFC[int8, int8, int8, int32](FCConfig{In: Port{Shape: s},
				Out: Port{Shape: shape(1, 1, 2), Map: core.Mapping{ContOffset: 4, ContSize: 2, WrapSize: 2, Stride: 2}}}, make([]int8, 64), bias)
			return err
		}},
		{"elemwise op", func() error {
			_, err := NewElemWise[int8, int8, int32](ElemWiseConfig{Inputs: []Port{{Shape: s}}, Out: Port{Shape: s}, Op: OpMax})
			return err
		}},
		{"elemwise no inputs", func() error {
			_, err := NewElemWise[int8, int8, int32](ElemWiseConfig{Out: Port{Shape: s}})
			return err
		}},
		{"elemwise shape", func() error {
			_, err := NewElemWise[int8, int8, int32](ElemWiseConfig{Inputs: []Port{{Shape: os}}, Out: Port{Shape: s}})
			return err
		}},
		{"concat channels", func() error {
			_, err := NewConcat[int8](ConcatConfig{Inputs: []Port{{Shape: s}}, Out: Port{Shape: shape(4, 4, 3)}})
			return err
		}},
		{"resize ratio", func() error {
			_, err := NewResize[int8](ResizeConfig{In: Port{Shape: shape(2, 2, 1)}, Out: Port{Shape: shape(3, 4, 1)}})
			return err
		}},
		{"resize channels", func() error {
			_, err := NewResize[int8](ResizeConfig{In: Port{Shape: shape(2, 2, 1)}, Out: Port{Shape: shape(4, 4, 2)}})
			return err
		}},
		{"scaling shape", func() error {
			_, err := NewScaling[int8, int8, int32](ScalingConfig{In: Port{Shape: s}, Out: Port{Shape: os}})
			return err
		}},
		{"argmax channels", func() error {
			_, err := NewArgmax[int8](ArgmaxConfig{In: Port{Shape: s}, Out: Port{Shape: shape(4, 4, 2)}})
			return err
		}},
		{"bits", func() error {
			_, err := NewScaling[int8, int8, int32](ScalingConfig{In: Port{Shape: s}, Out: Port{Shape: s}, Bits: 40})
			return err
		}},
		{"conv window beyond input", func() error {
			// (2-3)/2+1 truncates to a 1x1 output
			_, err := NewConv[int8, int8, int8, int32](ConvConfig{In: Port{Shape: shape(2, 2, 1)}, Out: Port{Shape: shape(1, 1, 1)},
				Window: Window{KernelH: 3, KernelW: 3, StrideY: 2, StrideX: 2}}, make([]int8, 9), make([]int32, 1))
			return err
		}},
		{"depthwise window beyond input", func() error {
			_, err := NewDepthwise[int8, int8, int8, int32](ConvConfig{In: Port{Shape: shape(2, 2, 1)}, Out: Port{Shape: shape(1, 1, 1)},
				Window: Window{KernelH: 3, KernelW: 1, StrideY: 2}}, make([]int8, 3), make([]int32, 1))
			return err
		}},
		{"pool window beyond input", func() error {
			_, err := NewPool[int8, int32](PoolConfig{In: Port{Shape: shape(2, 2, 1)}, Out: Port{Shape: shape(1, 1, 1)},
				Window: Window{KernelH: 3, KernelW: 3, StrideY: 2, StrideX: 2}})
			return err
		}},
		{"conv bits above int8", func() error {
			_, err := NewConv[int8, int8, int8, int32](ConvConfig{In: Port{Shape: s}, Out: Port{Shape: os}, Window: win, Bits: 16}, weights, bias)
			return err
		}},
		{"fc bits above uint8", func() error {
			_, err := NewFC[int8, uint8, int8, int32](FCConfig{In: Port{Shape: s}, Out: Port{Shape: shape(1, 1, 2)}, Bits: 9}, make([]int8, 64), bias)
			return err
		}},
		{"elemwise bits above int8", func() error {
			_, err := NewElemWise[int8, int8, int32](ElemWiseConfig{Inputs: []Port{{Shape: s}}, Out: Port{Shape: s}, Bits: 12})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			if err == nil {
				t.Fatal("constructor accepted an invalid configuration")
			}
			if !errors.Is(err, ErrConfig) {
				t.Errorf("error = %v, want ErrConfig", err)
			}
		})
	}
}
