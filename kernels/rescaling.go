package kernels

import (
	"fmt"
	"math"
	"strings"

	"github.com/sbl8/edgenet/core"
)

// ScalingMode selects the rescaling variant of a layer.
type ScalingMode uint8

// Rescaling variants.
const (
	ScaleNone ScalingMode = iota
	ScaleFloat
	ScaleFixed16
	ScaleFixed32
	ScaleSingleShift
	ScaleDoubleShift
)

var scalingNames = [...]string{
	ScaleNone:        "none",
	ScaleFloat:       "float_mult",
	ScaleFixed16:     "fixed_mult16",
	ScaleFixed32:     "fixed_mult32",
	ScaleSingleShift: "single_shift",
	ScaleDoubleShift: "double_shift",
}

func (m ScalingMode) String() string {
	if int(m) < len(scalingNames) {
		return scalingNames[m]
	}
	return fmt.Sprintf("scaling(%d)", uint8(m))
}

// ParseScalingMode maps a name to a ScalingMode; the empty string is ScaleNone.
func ParseScalingMode(s string) (ScalingMode, error) {
	if s == "" {
		return ScaleNone, nil
	}
	for i, name := range scalingNames {
		if strings.EqualFold(name, s) {
			return ScalingMode(i), nil
		}
	}
	return ScaleNone, fmt.Errorf("%w: unknown scaling mode %q", ErrConfig, s)
}

// Rescaling maps an accumulated sum for one output channel to the output
// domain. Only the per-output vector that belongs to Mode is consulted.
//
//	ScaleFloat:       round(sum * Float[o]), unrounded for floating sums
//	ScaleFixed16/32:  (sum * Fixed[o] + HALF) >> FractionalBits
//	ScaleSingleShift: (sum + HALF) >> Shift[o]
//	ScaleDoubleShift: (sum + (sum << DoubleShift[o][0]) + HALF) >> DoubleShift[o][1]
//
// HALF is half of the final divisor, zero when the shift is zero.
type Rescaling struct {
	Mode           ScalingMode
	Float          []float64
	Fixed          []int32
	FractionalBits uint8
	Shift          []uint8
	DoubleShift    [][2]uint8
}

// Validate checks that the variant is well formed for a layer with outputs
// channels accumulating in floating point when float is set.
func (r *Rescaling) Validate(outputs int, float bool) error {
	if r == nil {
		return nil
	}
	var n int
	switch r.Mode {
	case ScaleNone:
		return nil
	case ScaleFloat:
		n = len(r.Float)
	case ScaleFixed16, ScaleFixed32:
		n = len(r.Fixed)
		if r.FractionalBits > 62 {
			return fmt.Errorf("%w: %d fractional bits", ErrConfig, r.FractionalBits)
		}
		if r.Mode == ScaleFixed16 {
			for o, v := range r.Fixed {
				if v < math.MinInt16 || v > math.MaxInt16 {
					return fmt.Errorf("%w: scale %d of output %d does not fit 16 bits", ErrConfig, v, o)
				}
			}
		}
	case ScaleSingleShift:
		n = len(r.Shift)
	case ScaleDoubleShift:
		n = len(r.DoubleShift)
	default:
		return fmt.Errorf("%w: %v", ErrConfig, r.Mode)
	}
	if n != outputs {
		return fmt.Errorf("%w: %v has %d scales for %d outputs", ErrConfig, r.Mode, n, outputs)
	}
	if float && r.Mode != ScaleFloat {
		return fmt.Errorf("%w: %v requires an integral accumulator", ErrConfig, r.Mode)
	}
	return nil
}

// Rescale applies r to sum for output channel o. A nil r is the identity.
func Rescale[S core.Accumulator](r *Rescaling, sum S, o int) S {
	if r == nil {
		return sum
	}
	switch r.Mode {
	case ScaleFloat:
		v := float64(sum) * r.Float[o]
		if core.IsFloat[S]() {
			return S(v)
		}
		return S(math.Round(v))
	case ScaleFixed16, ScaleFixed32:
		return S((int64(sum)*int64(r.Fixed[o]) + half(r.FractionalBits)) >> r.FractionalBits)
	case ScaleSingleShift:
		s := r.Shift[o]
		return S((int64(sum) + half(s)) >> s)
	case ScaleDoubleShift:
		a, b := r.DoubleShift[o][0], r.DoubleShift[o][1]
		x := int64(sum)
		return S((x + x<<a + half(b)) >> b)
	}
	return sum
}

func half(shift uint8) int64 {
	if shift == 0 {
		return 0
	}
	return int64(1) << (shift - 1)
}
