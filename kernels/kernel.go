// Package kernels provides the layer propagation kernels of the inference engine.
//
// Every kernel is specialized when it is constructed: shapes, strides,
// padding, memory descriptors and parameters are fixed by a configuration
// struct, and the element, weight and accumulator types are fixed by type
// parameters. Kernels never allocate during propagation and carry no state
// across calls.
//
// Available kernels:
//   - Conv, Depthwise: windowed multiply-accumulate with implicit zero padding
//   - Pool: max and average pooling
//   - FC: fully-connected over the flattened input
//   - ElemWise, Concat: ordered multi-input kernels
//   - Resize: nearest-neighbor upsampling by integral factors
//   - Scaling: rescaling only
//   - Argmax: per-position channel index of the maximum
//
// Activation buffers are addressed through core.Mapping descriptors, so an
// input and an output may share one memory block and may wrap inside it.
// The engine drives kernels through the Kernel interface over a shared byte
// arena; tests and callers with typed slices use each kernel's Propagate.
package kernels

import (
	"errors"
	"fmt"

	"github.com/sbl8/edgenet/core"
)

// ErrConfig is wrapped by every error a kernel constructor returns. Such an
// error means the network was planned incorrectly; it is never retried.
var ErrConfig = errors.New("invalid kernel configuration")

// Kind identifies a kernel variant.
type Kind uint8

// Kernel kinds
const (
	KindInvalid Kind = iota
	KindConv
	KindDepthwise
	KindPool
	KindFC
	KindElemWise
	KindConcat
	KindResize
	KindScaling
	KindArgmax
)

var kindNames = [...]string{
	KindInvalid:   "invalid",
	KindConv:      "conv",
	KindDepthwise: "depthwise",
	KindPool:      "pool",
	KindFC:        "fc",
	KindElemWise:  "elemwise",
	KindConcat:    "concat",
	KindResize:    "resize",
	KindScaling:   "scaling",
	KindArgmax:    "argmax",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if i != int(KindInvalid) && name == s {
			return Kind(i), nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: unknown layer type %q", ErrConfig, s)
}

// Kernel is a specialized layer bound to its parameters.
//
// Work is split into rows that are independent of one another: output rows
// for spatial kernels and output neurons for FC. RunRows computes rows
// [y0, y1) reading inputs from and writing outputs into mem, the memory
// block all descriptors of the kernel refer to. Disjoint row ranges may run
// concurrently.
type Kernel interface {
	Kind() Kind
	Rows() int
	RunRows(mem []byte, y0, y1 int)
}

// Port places one activation tensor in memory.
type Port struct {
	Shape core.Shape
	// Map is in elements of the tensor type. The zero value means a dense
	// tensor at the start of memory.
	Map core.Mapping
}

// Dense returns a port for a tensor stored densely from element offset.
func Dense(shape core.Shape, offset int) Port {
	return Port{Shape: shape, Map: core.At(offset, shape.Channels, shape.Positions())}
}

func (p *Port) normalize(role string) error {
	s := p.Shape
	if s.Height <= 0 || s.Width <= 0 || s.Channels <= 0 {
		return fmt.Errorf("%w: %s shape %v", ErrConfig, role, s)
	}
	if p.Map == (core.Mapping{}) {
		p.Map = core.At(0, s.Channels, s.Positions())
	}
	if err := p.Map.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfig, role, err)
	}
	if p.Map.Stride < s.Channels {
		return fmt.Errorf("%w: %s stride %d below %d channels", ErrConfig, role, p.Map.Stride, s.Channels)
	}
	return nil
}

// Window is the sliding-window geometry of Conv, Depthwise and Pool.
// Zero strides mean 1.
type Window struct {
	KernelH, KernelW int
	StrideY, StrideX int
	PadY, PadX       int
}

// Output returns the output extent of the window over an input of shape in,
// with the given number of output channels.
func (w Window) Output(in core.Shape, channels int) core.Shape {
	w.defaults()
	return core.Shape{
		Height:   (in.Height+2*w.PadY-w.KernelH)/w.StrideY + 1,
		Width:    (in.Width+2*w.PadX-w.KernelW)/w.StrideX + 1,
		Channels: channels,
	}
}

// Fits reports an error when the kernel does not fit in the padded input,
// where Output has no meaningful extent.
func (w Window) Fits(in core.Shape) error {
	if w.KernelH > in.Height+2*w.PadY || w.KernelW > in.Width+2*w.PadX {
		return fmt.Errorf("%w: kernel %dx%d larger than padded input %dx%d", ErrConfig,
			w.KernelH, w.KernelW, in.Height+2*w.PadY, in.Width+2*w.PadX)
	}
	return nil
}

func (w *Window) defaults() {
	if w.StrideY == 0 {
		w.StrideY = 1
	}
	if w.StrideX == 0 {
		w.StrideX = 1
	}
}

func (w *Window) normalize(in, out core.Shape) error {
	w.defaults()
	switch {
	case w.KernelH <= 0 || w.KernelW <= 0:
		return fmt.Errorf("%w: kernel %dx%d", ErrConfig, w.KernelH, w.KernelW)
	case w.StrideY < 0 || w.StrideX < 0:
		return fmt.Errorf("%w: stride %dx%d", ErrConfig, w.StrideY, w.StrideX)
	case w.PadY < 0 || w.PadX < 0:
		return fmt.Errorf("%w: padding %dx%d", ErrConfig, w.PadY, w.PadX)
	}
	if err := w.Fits(in); err != nil {
		return err
	}
	if want := w.Output(in, out.Channels); want != out {
		return fmt.Errorf("%w: output %v, window over %v gives %v", ErrConfig, out, in, want)
	}
	return nil
}

// span returns the kernel range [lo, hi) that overlaps the input for output
// coordinate o along one axis, and the input coordinate of kernel tap 0.
func span(o, stride, pad, kernel, in int) (lo, hi, origin int) {
	origin = o*stride - pad
	if pad == 0 {
		return 0, kernel, origin
	}
	return Max(pad-o*stride, 0), Clamp(in+pad-o*stride, 0, kernel), origin
}

// checkBits defaults bits and bounds it by the width of Out, so a saturated
// value always converts to Out without wrapping.
func checkBits[Out core.Element](bits *int) error {
	if *bits == 0 {
		*bits = DefaultBits
	}
	limit := 32
	if !core.IsFloat[Out]() {
		limit = min(8*core.SizeOf[Out](), limit)
	}
	if *bits < 1 || *bits > limit {
		return fmt.Errorf("%w: %d output bits for %v, at most %d", ErrConfig, *bits, core.TypeOf[Out](), limit)
	}
	return nil
}

func checkLen(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s length %d, want %d", ErrConfig, what, got, want)
	}
	return nil
}
