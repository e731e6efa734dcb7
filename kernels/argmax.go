package kernels

import (
	"fmt"

	"github.com/sbl8/edgenet/core"
)

// ArgmaxConfig configures Argmax. Out has the spatial extent of In and one
// channel; its descriptor is in int32 elements.
type ArgmaxConfig struct {
	In, Out Port
}

// Argmax writes, for every position, the index of the largest input channel
// as an int32. The first of equal maxima wins.
type Argmax[In core.Element] struct {
	cfg ArgmaxConfig
}

// NewArgmax validates cfg and returns the kernel.
func NewArgmax[In core.Element](cfg ArgmaxConfig) (*Argmax[In], error) {
	if cfg.Out.Shape == (core.Shape{}) {
		cfg.Out.Shape = core.Shape{Height: cfg.In.Shape.Height, Width: cfg.In.Shape.Width, Channels: 1}
	}
	if err := cfg.In.normalize("input"); err != nil {
		return nil, fmt.Errorf("argmax: %w", err)
	}
	if err := cfg.Out.normalize("output"); err != nil {
		return nil, fmt.Errorf("argmax: %w", err)
	}
	in, out := cfg.In.Shape, cfg.Out.Shape
	if out.Height != in.Height || out.Width != in.Width || out.Channels != 1 {
		return nil, fmt.Errorf("argmax: %w: output %v for input %v", ErrConfig, out, in)
	}
	return &Argmax[In]{cfg: cfg}, nil
}

func (k *Argmax[In]) Kind() Kind { return KindArgmax }

func (k *Argmax[In]) Rows() int { return k.cfg.In.Shape.Height }

func (k *Argmax[In]) RunRows(mem []byte, y0, y1 int) {
	k.rows(core.View[In](mem), core.View[int32](mem), y0, y1)
}

// Propagate computes the whole output.
func (k *Argmax[In]) Propagate(in []In, out []int32) {
	k.rows(in, out, 0, k.Rows())
}

func (k *Argmax[In]) rows(in []In, out []int32, y0, y1 int) {
	c := &k.cfg
	inW, nbCh := c.In.Shape.Width, c.In.Shape.Channels
	lowest := core.Lowest[In]()

	for iy := y0; iy < y1; iy++ {
		for ix := 0; ix < inW; ix++ {
			pos := ix + inW*iy
			iOff := c.In.Map.Index(pos)

			best, maxVal := 0, lowest
			for ch := 0; ch < nbCh; ch++ {
				if v := in[iOff+ch]; v > maxVal {
					best, maxVal = ch, v
				}
			}
			out[c.Out.Map.Index(pos)] = int32(best)
		}
	}
}
