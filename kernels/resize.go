package kernels

import (
	"fmt"

	"github.com/sbl8/edgenet/core"
)

// ResizeConfig configures Resize.
type ResizeConfig struct {
	In, Out Port
}

// Resize upsamples by nearest neighbor. Output position (oy, ox) reads input
// (oy*inH/outH, ox*inW/outW) with truncating division.
type Resize[T core.Element] struct {
	cfg ResizeConfig
}

// NewResize validates cfg and returns the kernel. The output extent must be
// an exact multiple of the input extent along both axes.
func NewResize[T core.Element](cfg ResizeConfig) (*Resize[T], error) {
	if err := cfg.In.normalize("input"); err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	if err := cfg.Out.normalize("output"); err != nil {
		return nil, fmt.Errorf("resize: %w", err)
	}
	in, out := cfg.In.Shape, cfg.Out.Shape
	switch {
	case in.Channels != out.Channels:
		return nil, fmt.Errorf("resize: %w: %d channels for %d outputs", ErrConfig, in.Channels, out.Channels)
	case out.Height%in.Height != 0:
		return nil, fmt.Errorf("resize: %w: output height %d is not a multiple of %d", ErrConfig, out.Height, in.Height)
	case out.Width%in.Width != 0:
		return nil, fmt.Errorf("resize: %w: output width %d is not a multiple of %d", ErrConfig, out.Width, in.Width)
	}
	return &Resize[T]{cfg: cfg}, nil
}

func (k *Resize[T]) Kind() Kind { return KindResize }

func (k *Resize[T]) Rows() int { return k.cfg.Out.Shape.Height }

func (k *Resize[T]) RunRows(mem []byte, y0, y1 int) {
	view := core.View[T](mem)
	k.rows(view, view, y0, y1)
}

// Propagate computes the whole output.
func (k *Resize[T]) Propagate(in, out []T) {
	k.rows(in, out, 0, k.Rows())
}

func (k *Resize[T]) rows(in, out []T, y0, y1 int) {
	c := &k.cfg
	inH, inW := c.In.Shape.Height, c.In.Shape.Width
	outH, outW, nbOut := c.Out.Shape.Height, c.Out.Shape.Width, c.Out.Shape.Channels

	for oy := y0; oy < y1; oy++ {
		iy := oy * inH / outH
		for ox := 0; ox < outW; ox++ {
			ix := ox * inW / outW
			oOff := c.Out.Map.Index(ox + outW*oy)
			iOff := c.In.Map.Index(ix + inW*iy)
			copy(out[oOff:oOff+nbOut], in[iOff:iOff+nbOut])
		}
	}
}
