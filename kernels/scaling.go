package kernels

import (
	"fmt"

	"github.com/sbl8/edgenet/core"
)

// ScalingConfig configures Scaling. Input and output shapes match.
type ScalingConfig struct {
	In, Out   Port
	Rescaling Rescaling
	Bits      int
}

// Scaling rescales and saturates every element without accumulation.
type Scaling[In, Out core.Element, S core.Accumulator] struct {
	cfg ScalingConfig
}

// NewScaling validates cfg and returns the kernel.
func NewScaling[In, Out core.Element, S core.Accumulator](cfg ScalingConfig) (*Scaling[In, Out, S], error) {
	if err := cfg.In.normalize("input"); err != nil {
		return nil, fmt.Errorf("scaling: %w", err)
	}
	if err := cfg.Out.normalize("output"); err != nil {
		return nil, fmt.Errorf("scaling: %w", err)
	}
	if cfg.In.Shape != cfg.Out.Shape {
		return nil, fmt.Errorf("scaling: %w: input %v, output %v", ErrConfig, cfg.In.Shape, cfg.Out.Shape)
	}
	if err := cfg.Rescaling.Validate(cfg.Out.Shape.Channels, core.IsFloat[S]()); err != nil {
		return nil, fmt.Errorf("scaling: %w", err)
	}
	if err := checkBits[Out](&cfg.Bits); err != nil {
		return nil, fmt.Errorf("scaling: %w", err)
	}
	return &Scaling[In, Out, S]{cfg: cfg}, nil
}

func (k *Scaling[In, Out, S]) Kind() Kind { return KindScaling }

func (k *Scaling[In, Out, S]) Rows() int { return k.cfg.Out.Shape.Height }

func (k *Scaling[In, Out, S]) RunRows(mem []byte, y0, y1 int) {
	k.rows(core.View[In](mem), core.View[Out](mem), y0, y1)
}

// Propagate computes the whole output.
func (k *Scaling[In, Out, S]) Propagate(in []In, out []Out) {
	k.rows(in, out, 0, k.Rows())
}

func (k *Scaling[In, Out, S]) rows(in []In, out []Out, y0, y1 int) {
	c := &k.cfg
	outW, nbOut := c.Out.Shape.Width, c.Out.Shape.Channels

	for oy := y0; oy < y1; oy++ {
		for ox := 0; ox < outW; ox++ {
			pos := ox + outW*oy
			oOff := c.Out.Map.Index(pos)
			iOff := c.In.Map.Index(pos)
			for ch := 0; ch < nbOut; ch++ {
				out[oOff+ch] = Sat[Out](S(in[iOff+ch]), ch, Linear, &c.Rescaling, c.Bits)
			}
		}
	}
}
