package kernels

import (
	"cmp"
	"fmt"

	"github.com/sbl8/edgenet/core"
)

// DefaultBits is the quantized output bit width used when a kernel
// configuration leaves Bits unset.
const DefaultBits = 8

// Clamp bounds v to [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Max returns the larger of a and b, preferring a on ties.
func Max[T cmp.Ordered](a, b T) T {
	if a >= b {
		return a
	}
	return b
}

// Saturate converts an accumulated value to the output type. Floating
// accumulators pass through unchanged. Integral accumulators are clamped to
// [0, 2^bits-1] for unsigned outputs and [-2^(bits-1), 2^(bits-1)-1] otherwise,
// with bits capped at the width of Out.
func Saturate[Out core.Element, S core.Accumulator](v S, bits int) Out {
	if core.IsFloat[S]() {
		return Out(v)
	}
	x := int64(v)
	bits = min(bits, 8*core.SizeOf[Out]())
	if core.IsUnsigned[Out]() {
		return Out(Clamp(x, 0, int64(1)<<bits-1))
	}
	return Out(Clamp(x, -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1))
}

// Sat finishes one output element: it applies the activation, rescales the
// sum for output channel o and saturates the result to bits. An activation
// that cannot run in the engine is a configuration bug and panics;
// constructors reject such configurations before any kernel runs.
func Sat[Out core.Element, S core.Accumulator](sum S, o int, act Activation, r *Rescaling, bits int) Out {
	switch act {
	case Linear, Saturation:
	case Rectifier:
		if sum <= 0 {
			sum = 0
		}
	default:
		panic(fmt.Sprintf("kernels: unsupported activation %v", act))
	}
	return Saturate[Out](Rescale(r, sum, o), bits)
}
