package kernels

import (
	"errors"
	"testing"
)

func TestSaturate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"unsigned above", int64(Saturate[uint8](int32(300), 8)), 255},
		{"unsigned below", int64(Saturate[uint8](int32(-5), 8)), 0},
		{"unsigned inside", int64(Saturate[uint8](int32(17), 8)), 17},
		{"signed above", int64(Saturate[int8](int32(200), 8)), 127},
		{"signed below", int64(Saturate[int8](int32(-200), 8)), -128},
		{"signed inside", int64(Saturate[int8](int32(-3), 8)), -3},
		{"signed 4 bits", int64(Saturate[int8](int32(20), 4)), 7},
		{"unsigned 4 bits", int64(Saturate[uint8](int32(20), 4)), 15},
		{"wide sum", int64(Saturate[int16](int64(1<<40), 16)), 32767},
		{"unsigned bits capped", int64(Saturate[uint8](int32(300), 16)), 255},
		{"signed bits capped", int64(Saturate[int8](int32(200), 16)), 127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Saturate = %d, want %d", tt.got, tt.want)
			}
		})
	}

	if got := Saturate[float32](float32(300.5), 8); got != 300.5 {
		t.Errorf("floating Saturate = %g, want 300.5", got)
	}
}

func TestClampMax(t *testing.T) {
	t.Parallel()
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Error("Clamp out of bounds")
	}
	if Max(2, 7) != 7 || Max(7, 2) != 7 {
		t.Error("Max picked the smaller value")
	}
}

func TestSatActivation(t *testing.T) {
	t.Parallel()
	if got := Sat[int8](int32(-40), 0, Rectifier, nil, 8); got != 0 {
		t.Errorf("rectified = %d, want 0", got)
	}
	if got := Sat[int8](int32(-40), 0, Linear, nil, 8); got != -40 {
		t.Errorf("linear = %d, want -40", got)
	}
	if got := Sat[int8](int32(-400), 0, Saturation, nil, 8); got != -128 {
		t.Errorf("saturation = %d, want -128", got)
	}
	if got := Sat[float32](float32(-1.5), 0, Rectifier, nil, 8); got != 0 {
		t.Errorf("rectified float = %g, want 0", got)
	}

	shift := &Rescaling{Mode: ScaleSingleShift, Shift: []uint8{0, 3}}
	if got := Sat[uint8](int32(1000), 1, Rectifier, shift, 8); got != 125 {
		t.Errorf("rescaled = %d, want 125", got)
	}
}

func TestSatUnsupportedActivation(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Error("Sat did not panic on tanh")
		}
	}()
	Sat[int8](int32(1), 0, Tanh, nil, 8)
}

func TestRescale(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		r    *Rescaling
		sum  int32
		o    int
		want int32
	}{
		{"nil", nil, 42, 0, 42},
		{"none", &Rescaling{}, -42, 0, -42},
		{"float rounds half up", &Rescaling{Mode: ScaleFloat, Float: []float64{0.25}}, 10, 0, 3},
		{"float rounds half away", &Rescaling{Mode: ScaleFloat, Float: []float64{0.25}}, -10, 0, -3},
		{"float per output", &Rescaling{Mode: ScaleFloat, Float: []float64{1, 0.1}}, 44, 1, 4},
		{"fixed16", &Rescaling{Mode: ScaleFixed16, Fixed: []int32{3}, FractionalBits: 2}, 100, 0, 75},
		{"fixed32 rounding", &Rescaling{Mode: ScaleFixed32, Fixed: []int32{1 << 20}, FractionalBits: 24}, 24, 0, 2},
		{"fixed no fraction", &Rescaling{Mode: ScaleFixed32, Fixed: []int32{5}}, 7, 0, 35},
		{"single shift", &Rescaling{Mode: ScaleSingleShift, Shift: []uint8{1}}, 7, 0, 4},
		{"single shift negative", &Rescaling{Mode: ScaleSingleShift, Shift: []uint8{1}}, -7, 0, -3},
		{"single shift zero", &Rescaling{Mode: ScaleSingleShift, Shift: []uint8{0}}, 7, 0, 7},
		{"double shift", &Rescaling{Mode: ScaleDoubleShift, DoubleShift: [][2]uint8{{1, 2}}}, 5, 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rescale(tt.r, tt.sum, tt.o); got != tt.want {
				t.Errorf("Rescale(%d) = %d, want %d", tt.sum, got, tt.want)
			}
		})
	}

	r := &Rescaling{Mode: ScaleFloat, Float: []float64{0.25}}
	if got := Rescale(r, float32(10), 0); got != 2.5 {
		t.Errorf("floating Rescale = %g, want 2.5", got)
	}
}

func TestRescalingValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		r       Rescaling
		float   bool
		wantErr bool
	}{
		{"none", Rescaling{}, true, false},
		{"float", Rescaling{Mode: ScaleFloat, Float: []float64{1, 2}}, true, false},
		{"short vector", Rescaling{Mode: ScaleSingleShift, Shift: []uint8{1}}, false, true},
		{"shift on float", Rescaling{Mode: ScaleSingleShift, Shift: []uint8{1, 1}}, true, true},
		{"fixed16 overflow", Rescaling{Mode: ScaleFixed16, Fixed: []int32{1, 1 << 20}}, false, true},
		{"unknown mode", Rescaling{Mode: ScalingMode(42)}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate(2, tt.float)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfig) {
				t.Errorf("Validate() error = %v, want ErrConfig", err)
			}
		})
	}
}

// Go reference for MacsOnRange
func macsGo(n int, in, w []int8, sum int32, inInc, wInc int) int32 {
	for i := 0; i < n; i++ {
		sum += int32(in[i*inInc]) * int32(w[i*wInc])
	}
	return sum
}

func TestMacsOnRange(t *testing.T) {
	t.Parallel()
	in := make([]int8, 64)
	w := make([]int8, 64)
	for i := range in {
		in[i] = int8(i*7%23 - 11)
		w[i] = int8(i*5%17 - 8)
	}

	for n := 0; n <= 13; n++ {
		for inInc := 1; inInc <= 3; inInc++ {
			for wInc := 1; wInc <= 2; wInc++ {
				want := macsGo(n, in, w, 9, inInc, wInc)
				if got := MacsOnRange(n, in, w, int32(9), inInc, wInc); got != want {
					t.Errorf("MacsOnRange(n=%d, inc=%d/%d) = %d, want %d", n, inInc, wInc, got, want)
				}
			}
		}
	}
}

func TestParseNames(t *testing.T) {
	t.Parallel()
	if a, err := ParseActivation("ReLU"); err != nil || a != Rectifier {
		t.Errorf("ParseActivation(ReLU) = %v, %v", a, err)
	}
	if _, err := ParseActivation("gelu"); !errors.Is(err, ErrConfig) {
		t.Errorf("ParseActivation(gelu) error = %v", err)
	}
	if k, err := ParseKind("depthwise"); err != nil || k != KindDepthwise {
		t.Errorf("ParseKind(depthwise) = %v, %v", k, err)
	}
	if p, err := ParsePooling("avg"); err != nil || p != PoolAverage {
		t.Errorf("ParsePooling(avg) = %v, %v", p, err)
	}
	if m, err := ParseScalingMode("DOUBLE_SHIFT"); err != nil || m != ScaleDoubleShift {
		t.Errorf("ParseScalingMode = %v, %v", m, err)
	}
	if op, err := ParseElemWiseOp("prod"); err != nil || op != OpProd {
		t.Errorf("ParseElemWiseOp = %v, %v", op, err)
	}
}
