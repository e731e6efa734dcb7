package kernels

import (
	"fmt"

	"github.com/sbl8/edgenet/core"
)

// ConvConfig configures Conv and Depthwise.
type ConvConfig struct {
	In, Out    Port
	Window     Window
	Activation Activation
	Rescaling  Rescaling
	// Bits is the saturation width of integral outputs; zero means DefaultBits.
	Bits int
}

func (c *ConvConfig) normalize(float bool) error {
	if err := c.In.normalize("input"); err != nil {
		return err
	}
	if err := c.Out.normalize("output"); err != nil {
		return err
	}
	if err := c.Window.normalize(c.In.Shape, c.Out.Shape); err != nil {
		return err
	}
	if err := checkActivation(c.Activation); err != nil {
		return err
	}
	return c.Rescaling.Validate(c.Out.Shape.Channels, float)
}

// Conv is a standard 2-D convolution. Weights are laid out
// [output][kernel row][kernel column][input channel] and the accumulator of
// every output element starts at its bias.
type Conv[In, Out, W core.Element, S core.Accumulator] struct {
	cfg     ConvConfig
	weights []W
	bias    []S
}

// NewConv checks cfg against the parameter lengths and returns the kernel.
// bias holds one value per output in accumulator units: the starting sum,
// before rescaling.
func NewConv[In, Out, W core.Element, S core.Accumulator](cfg ConvConfig, weights []W, bias []S) (*Conv[In, Out, W, S], error) {
	if err := cfg.normalize(core.IsFloat[S]()); err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}
	if err := checkBits[Out](&cfg.Bits); err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}
	w := cfg.Window
	if err := checkLen("conv weights", len(weights), cfg.Out.Shape.Channels*w.KernelH*w.KernelW*cfg.In.Shape.Channels); err != nil {
		return nil, err
	}
	if err := checkLen("conv bias", len(bias), cfg.Out.Shape.Channels); err != nil {
		return nil, err
	}
	return &Conv[In, Out, W, S]{cfg: cfg, weights: weights, bias: bias}, nil
}

func (k *Conv[In, Out, W, S]) Kind() Kind { return KindConv }

func (k *Conv[In, Out, W, S]) Rows() int { return k.cfg.Out.Shape.Height }

func (k *Conv[In, Out, W, S]) RunRows(mem []byte, y0, y1 int) {
	k.rows(core.View[In](mem), core.View[Out](mem), y0, y1)
}

// Propagate computes the whole output. in and out are the memories the
// input and output descriptors index into; they may be views of one block.
func (k *Conv[In, Out, W, S]) Propagate(in []In, out []Out) {
	k.rows(in, out, 0, k.Rows())
}

func (k *Conv[In, Out, W, S]) rows(in []In, out []Out, y0, y1 int) {
	c := &k.cfg
	w := c.Window
	inH, inW, nbCh := c.In.Shape.Height, c.In.Shape.Width, c.In.Shape.Channels
	outW, nbOut := c.Out.Shape.Width, c.Out.Shape.Channels
	inStride := c.In.Map.Stride

	for oy := y0; oy < y1; oy++ {
		syMin, syMax, iy := span(oy, w.StrideY, w.PadY, w.KernelH, inH)

		for ox := 0; ox < outW; ox++ {
			sxMin, sxMax, ix := span(ox, w.StrideX, w.PadX, w.KernelW, inW)
			oOff := c.Out.Map.Index(ox + outW*oy)
			// whole kernel rows are contiguous in memory
			fast := nbCh == inStride && (w.PadX == 0 || sxMax-sxMin == w.KernelW)

			for o := 0; o < nbOut; o++ {
				sum := k.bias[o]

				for sy := 0; sy < w.KernelH; sy++ {
					if w.PadY != 0 && sy >= syMax-syMin {
						break
					}
					iOff := c.In.Map.Index((sxMin + ix) + inW*(iy+syMin+sy))
					wOff := nbCh * (sxMin + w.KernelW*(syMin+sy+w.KernelH*o))

					if fast {
						sum = MacsOnRange(w.KernelW*nbCh, in[iOff:], k.weights[wOff:], sum, 1, 1)
						continue
					}
					for sx := 0; sx < w.KernelW; sx++ {
						if w.PadX != 0 && sx >= sxMax-sxMin {
							break
						}
						// one input row never wraps
						sum = MacsOnRange(nbCh, in[iOff+sx*inStride:], k.weights[wOff+sx*nbCh:], sum, 1, 1)
					}
				}

				out[oOff+o] = Sat[Out](sum, o, c.Activation, &c.Rescaling, c.Bits)
			}
		}
	}
}

// Depthwise convolves every channel with its own kernel. Input and output
// channel counts match; weights are laid out [channel][kernel row][kernel column].
type Depthwise[In, Out, W core.Element, S core.Accumulator] struct {
	cfg     ConvConfig
	weights []W
	bias    []S
}

// NewDepthwise is NewConv for depthwise weights; bias is in accumulator
// units.
func NewDepthwise[In, Out, W core.Element, S core.Accumulator](cfg ConvConfig, weights []W, bias []S) (*Depthwise[In, Out, W, S], error) {
	if err := cfg.normalize(core.IsFloat[S]()); err != nil {
		return nil, fmt.Errorf("depthwise: %w", err)
	}
	if err := checkBits[Out](&cfg.Bits); err != nil {
		return nil, fmt.Errorf("depthwise: %w", err)
	}
	if cfg.In.Shape.Channels != cfg.Out.Shape.Channels {
		return nil, fmt.Errorf("depthwise: %w: %d channels for %d outputs", ErrConfig, cfg.In.Shape.Channels, cfg.Out.Shape.Channels)
	}
	w := cfg.Window
	if err := checkLen("depthwise weights", len(weights), cfg.Out.Shape.Channels*w.KernelH*w.KernelW); err != nil {
		return nil, err
	}
	if err := checkLen("depthwise bias", len(bias), cfg.Out.Shape.Channels); err != nil {
		return nil, err
	}
	return &Depthwise[In, Out, W, S]{cfg: cfg, weights: weights, bias: bias}, nil
}

func (k *Depthwise[In, Out, W, S]) Kind() Kind { return KindDepthwise }

func (k *Depthwise[In, Out, W, S]) Rows() int { return k.cfg.Out.Shape.Height }

func (k *Depthwise[In, Out, W, S]) RunRows(mem []byte, y0, y1 int) {
	k.rows(core.View[In](mem), core.View[Out](mem), y0, y1)
}

// Propagate computes the whole output.
func (k *Depthwise[In, Out, W, S]) Propagate(in []In, out []Out) {
	k.rows(in, out, 0, k.Rows())
}

func (k *Depthwise[In, Out, W, S]) rows(in []In, out []Out, y0, y1 int) {
	c := &k.cfg
	w := c.Window
	inH, inW := c.In.Shape.Height, c.In.Shape.Width
	outW, nbOut := c.Out.Shape.Width, c.Out.Shape.Channels
	inStride := c.In.Map.Stride

	for oy := y0; oy < y1; oy++ {
		syMin, syMax, iy := span(oy, w.StrideY, w.PadY, w.KernelH, inH)

		for ox := 0; ox < outW; ox++ {
			sxMin, sxMax, ix := span(ox, w.StrideX, w.PadX, w.KernelW, inW)
			oOff := c.Out.Map.Index(ox + outW*oy)
			full := w.PadX == 0 || sxMax-sxMin == w.KernelW

			for o := 0; o < nbOut; o++ {
				sum := k.bias[o]

				for sy := 0; sy < w.KernelH; sy++ {
					if w.PadY != 0 && sy >= syMax-syMin {
						break
					}
					iOff := c.In.Map.Index((sxMin+ix)+inW*(iy+syMin+sy)) + o
					wOff := sxMin + w.KernelW*(syMin+sy+w.KernelH*o)

					if full {
						sum = MacsOnRange(w.KernelW, in[iOff:], k.weights[wOff:], sum, inStride, 1)
						continue
					}
					for sx := 0; sx < w.KernelW; sx++ {
						if w.PadX != 0 && sx >= sxMax-sxMin {
							break
						}
						sum += S(in[iOff+sx*inStride]) * S(k.weights[wOff+sx])
					}
				}

				out[oOff+o] = Sat[Out](sum, o, c.Activation, &c.Rescaling, c.Bits)
			}
		}
	}
}
