package kernels

import (
	"fmt"
	"strings"

	"github.com/sbl8/edgenet/core"
)

// Pooling is the reduction of a pooling window.
type Pooling uint8

// Pooling kinds
const (
	PoolMax Pooling = iota
	PoolAverage
)

func (p Pooling) String() string {
	switch p {
	case PoolMax:
		return "max"
	case PoolAverage:
		return "average"
	}
	return fmt.Sprintf("pooling(%d)", uint8(p))
}

// ParsePooling accepts "max", "average" and "avg".
func ParsePooling(s string) (Pooling, error) {
	switch strings.ToLower(s) {
	case "max":
		return PoolMax, nil
	case "average", "avg":
		return PoolAverage, nil
	}
	return PoolMax, fmt.Errorf("%w: unsupported pooling %q", ErrConfig, s)
}

// PoolConfig configures Pool.
type PoolConfig struct {
	In, Out    Port
	Window     Window
	Pooling    Pooling
	Activation Activation
}

// Pool reduces each window of every channel. Max windows start at the lowest
// value of T. Average windows are divided by the full window area even where
// padding clips them, so padded taps count as zeros.
type Pool[T core.Element, S core.Accumulator] struct {
	cfg PoolConfig
}

// NewPool validates cfg and returns the kernel.
func NewPool[T core.Element, S core.Accumulator](cfg PoolConfig) (*Pool[T, S], error) {
	if err := cfg.In.normalize("input"); err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	if err := cfg.Out.normalize("output"); err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	if cfg.In.Shape.Channels != cfg.Out.Shape.Channels {
		return nil, fmt.Errorf("pool: %w: %d channels for %d outputs", ErrConfig, cfg.In.Shape.Channels, cfg.Out.Shape.Channels)
	}
	if err := cfg.Window.normalize(cfg.In.Shape, cfg.Out.Shape); err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	if cfg.Pooling != PoolMax && cfg.Pooling != PoolAverage {
		return nil, fmt.Errorf("pool: %w: only max and average pooling are supported", ErrConfig)
	}
	if cfg.Activation != Linear {
		return nil, fmt.Errorf("pool: %w: activation %v, only linear is supported", ErrConfig, cfg.Activation)
	}
	return &Pool[T, S]{cfg: cfg}, nil
}

func (k *Pool[T, S]) Kind() Kind { return KindPool }

func (k *Pool[T, S]) Rows() int { return k.cfg.Out.Shape.Height }

func (k *Pool[T, S]) RunRows(mem []byte, y0, y1 int) {
	view := core.View[T](mem)
	k.rows(view, view, y0, y1)
}

// Propagate computes the whole output.
func (k *Pool[T, S]) Propagate(in, out []T) {
	k.rows(in, out, 0, k.Rows())
}

func (k *Pool[T, S]) rows(in, out []T, y0, y1 int) {
	c := &k.cfg
	w := c.Window
	inH, inW := c.In.Shape.Height, c.In.Shape.Width
	outW, nbOut := c.Out.Shape.Width, c.Out.Shape.Channels
	inStride := c.In.Map.Stride
	lowest := core.Lowest[T]()
	area := S(w.KernelH * w.KernelW)

	for oy := y0; oy < y1; oy++ {
		syMin, syMax, iy := span(oy, w.StrideY, w.PadY, w.KernelH, inH)

		for ox := 0; ox < outW; ox++ {
			sxMin, sxMax, ix := span(ox, w.StrideX, w.PadX, w.KernelW, inW)
			oOff := c.Out.Map.Index(ox + outW*oy)

			for o := 0; o < nbOut; o++ {
				maxVal := lowest
				var sum S

				for sy := 0; sy < w.KernelH; sy++ {
					if w.PadY != 0 && sy >= syMax-syMin {
						break
					}
					iOff := c.In.Map.Index((sxMin+ix)+inW*(iy+syMin+sy)) + o

					for sx := 0; sx < w.KernelW; sx++ {
						if w.PadX != 0 && sx >= sxMax-sxMin {
							break
						}
						v := in[iOff+sx*inStride]
						if c.Pooling == PoolMax {
							if v > maxVal {
								maxVal = v
							}
						} else {
							sum += S(v)
						}
					}
				}

				if c.Pooling == PoolMax {
					out[oOff+o] = maxVal
				} else {
					out[oOff+o] = T(sum / area)
				}
			}
		}
	}
}
