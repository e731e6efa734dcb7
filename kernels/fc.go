package kernels

import (
	"fmt"

	"github.com/sbl8/edgenet/core"
)

// FCConfig configures FC. The output shape must be 1x1 with one channel per
// neuron and its descriptor must not wrap.
type FCConfig struct {
	In, Out    Port
	Activation Activation
	Rescaling  Rescaling
	Bits       int
}

// FC is a fully-connected layer. Weights are laid out
// [neuron][input row][input column][input channel].
type FC[In, Out, W core.Element, S core.Accumulator] struct {
	cfg     FCConfig
	weights []W
	bias    []S
}

// NewFC checks cfg against the parameter lengths and returns the kernel.
// bias holds one value per output neuron in accumulator units.
func NewFC[In, Out, W core.Element, S core.Accumulator](cfg FCConfig, weights []W, bias []S) (*FC[In, Out, W, S], error) {
	if err := cfg.In.normalize("input"); err != nil {
		return nil, fmt.Errorf("fc: %w", err)
	}
	if err := cfg.Out.normalize("output"); err != nil {
		return nil, fmt.Errorf("fc: %w", err)
	}
	if cfg.Out.Shape.Height != 1 || cfg.Out.Shape.Width != 1 {
		return nil, fmt.Errorf("fc: %w: output %v is not 1x1", ErrConfig, cfg.Out.Shape)
	}
	if cfg.Out.Map.Wraps() {
		return nil, fmt.Errorf("fc: %w: output wrapping not supported", ErrConfig)
	}
	if err := checkActivation(cfg.Activation); err != nil {
		return nil, fmt.Errorf("fc: %w", err)
	}
	nbOut := cfg.Out.Shape.Channels
	if err := cfg.Rescaling.Validate(nbOut, core.IsFloat[S]()); err != nil {
		return nil, fmt.Errorf("fc: %w", err)
	}
	if err := checkBits[Out](&cfg.Bits); err != nil {
		return nil, fmt.Errorf("fc: %w", err)
	}
	if err := checkLen("fc weights", len(weights), nbOut*cfg.In.Shape.Size()); err != nil {
		return nil, err
	}
	if err := checkLen("fc bias", len(bias), nbOut); err != nil {
		return nil, err
	}
	return &FC[In, Out, W, S]{cfg: cfg, weights: weights, bias: bias}, nil
}

func (k *FC[In, Out, W, S]) Kind() Kind { return KindFC }

// Rows returns the number of neurons.
func (k *FC[In, Out, W, S]) Rows() int { return k.cfg.Out.Shape.Channels }

func (k *FC[In, Out, W, S]) RunRows(mem []byte, y0, y1 int) {
	k.neurons(core.View[In](mem), core.View[Out](mem), y0, y1)
}

// Propagate computes every neuron.
func (k *FC[In, Out, W, S]) Propagate(in []In, out []Out) {
	k.neurons(in, out, 0, k.Rows())
}

func (k *FC[In, Out, W, S]) neurons(in []In, out []Out, o0, o1 int) {
	c := &k.cfg
	inH, inW, nbCh := c.In.Shape.Height, c.In.Shape.Width, c.In.Shape.Channels
	inStride := c.In.Map.Stride
	base := c.Out.Map.Index(0)

	for och := o0; och < o1; och++ {
		sum := k.bias[och]

		for iy := 0; iy < inH; iy++ {
			iOff := c.In.Map.Index(inW * iy)
			wOff := nbCh * inW * (iy + inH*och)

			if inStride == nbCh {
				sum = MacsOnRange(nbCh*inW, in[iOff:], k.weights[wOff:], sum, 1, 1)
				continue
			}
			for ix := 0; ix < inW; ix++ {
				sum = MacsOnRange(nbCh, in[iOff+ix*inStride:], k.weights[wOff+ix*nbCh:], sum, 1, 1)
			}
		}

		out[base+och] = Sat[Out](sum, och, c.Activation, &c.Rescaling, c.Bits)
	}
}
