package kernels

import (
	"fmt"

	"github.com/sbl8/edgenet/core"
)

// ConcatConfig configures Concat. The channels of Inputs[0] come first in the
// output, followed by those of Inputs[1], and so on.
type ConcatConfig struct {
	Inputs []Port
	Out    Port
}

// Concat copies the channels of its inputs side by side at every position.
type Concat[T core.Element] struct {
	cfg ConcatConfig
}

// NewConcat validates cfg and returns the kernel.
func NewConcat[T core.Element](cfg ConcatConfig) (*Concat[T], error) {
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("concat: %w: no inputs", ErrConfig)
	}
	if err := cfg.Out.normalize("output"); err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}
	cfg.Inputs = append([]Port(nil), cfg.Inputs...)
	channels := 0
	for i := range cfg.Inputs {
		p := &cfg.Inputs[i]
		if err := p.normalize(fmt.Sprintf("input %d", i)); err != nil {
			return nil, fmt.Errorf("concat: %w", err)
		}
		if p.Shape.Height != cfg.Out.Shape.Height || p.Shape.Width != cfg.Out.Shape.Width {
			return nil, fmt.Errorf("concat: %w: input %d shape %v, output %v", ErrConfig, i, p.Shape, cfg.Out.Shape)
		}
		channels += p.Shape.Channels
	}
	if channels != cfg.Out.Shape.Channels {
		return nil, fmt.Errorf("concat: %w: inputs carry %d channels, output %d", ErrConfig, channels, cfg.Out.Shape.Channels)
	}
	return &Concat[T]{cfg: cfg}, nil
}

func (k *Concat[T]) Kind() Kind { return KindConcat }

func (k *Concat[T]) Rows() int { return k.cfg.Out.Shape.Height }

func (k *Concat[T]) RunRows(mem []byte, y0, y1 int) {
	view := core.View[T](mem)
	k.rows(view, nil, view, y0, y1)
}

// Propagate computes the whole output; ins[i] is the memory of input i.
func (k *Concat[T]) Propagate(ins [][]T, out []T) {
	k.rows(nil, ins, out, 0, k.Rows())
}

// rows reads every input from shared when ins is nil.
func (k *Concat[T]) rows(shared []T, ins [][]T, out []T, y0, y1 int) {
	c := &k.cfg
	outW := c.Out.Shape.Width

	for oy := y0; oy < y1; oy++ {
		for ox := 0; ox < outW; ox++ {
			pos := ox + outW*oy
			oOff := c.Out.Map.Index(pos)

			for i, p := range c.Inputs {
				src := shared
				if ins != nil {
					src = ins[i]
				}
				iOff := p.Map.Index(pos)
				n := p.Shape.Channels
				copy(out[oOff:oOff+n], src[iOff:iOff+n])
				oOff += n
			}
		}
	}
}
