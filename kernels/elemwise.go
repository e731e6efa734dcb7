package kernels

import (
	"fmt"
	"strings"

	"github.com/sbl8/edgenet/core"
)

// ElemWiseOp is the operator folded over the inputs of ElemWise.
type ElemWiseOp uint8

// Elementwise operators. Only Sum can be executed.
const (
	OpSum ElemWiseOp = iota
	OpProd
	OpMax
)

func (op ElemWiseOp) String() string {
	switch op {
	case OpSum:
		return "sum"
	case OpProd:
		return "prod"
	case OpMax:
		return "max"
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// ParseElemWiseOp maps a name to an operator; the empty string is OpSum.
func ParseElemWiseOp(s string) (ElemWiseOp, error) {
	switch strings.ToLower(s) {
	case "", "sum":
		return OpSum, nil
	case "prod":
		return OpProd, nil
	case "max":
		return OpMax, nil
	}
	return OpSum, fmt.Errorf("%w: unknown elementwise operator %q", ErrConfig, s)
}

// ElemWiseConfig configures ElemWise. Inputs are summed in order.
type ElemWiseConfig struct {
	Inputs     []Port
	Out        Port
	Op         ElemWiseOp
	Activation Activation
	Rescaling  Rescaling
	Bits       int
}

// ElemWise sums same-shaped inputs channel by channel.
type ElemWise[In, Out core.Element, S core.Accumulator] struct {
	cfg ElemWiseConfig
}

// NewElemWise validates cfg and returns the kernel.
func NewElemWise[In, Out core.Element, S core.Accumulator](cfg ElemWiseConfig) (*ElemWise[In, Out, S], error) {
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("elemwise: %w: no inputs", ErrConfig)
	}
	if cfg.Op != OpSum {
		return nil, fmt.Errorf("elemwise: %w: operator %v, only sum is supported", ErrConfig, cfg.Op)
	}
	if err := cfg.Out.normalize("output"); err != nil {
		return nil, fmt.Errorf("elemwise: %w", err)
	}
	cfg.Inputs = append([]Port(nil), cfg.Inputs...)
	for i := range cfg.Inputs {
		p := &cfg.Inputs[i]
		if err := p.normalize(fmt.Sprintf("input %d", i)); err != nil {
			return nil, fmt.Errorf("elemwise: %w", err)
		}
		if p.Shape != cfg.Out.Shape {
			return nil, fmt.Errorf("elemwise: %w: input %d shape %v, output %v", ErrConfig, i, p.Shape, cfg.Out.Shape)
		}
	}
	if err := checkActivation(cfg.Activation); err != nil {
		return nil, fmt.Errorf("elemwise: %w", err)
	}
	if err := cfg.Rescaling.Validate(cfg.Out.Shape.Channels, core.IsFloat[S]()); err != nil {
		return nil, fmt.Errorf("elemwise: %w", err)
	}
	if err := checkBits[Out](&cfg.Bits); err != nil {
		return nil, fmt.Errorf("elemwise: %w", err)
	}
	return &ElemWise[In, Out, S]{cfg: cfg}, nil
}

func (k *ElemWise[In, Out, S]) Kind() Kind { return KindElemWise }

func (k *ElemWise[In, Out, S]) Rows() int { return k.cfg.Out.Shape.Height }

func (k *ElemWise[In, Out, S]) RunRows(mem []byte, y0, y1 int) {
	k.rows(core.View[In](mem), nil, core.View[Out](mem), y0, y1)
}

// Propagate computes the whole output; ins[i] is the memory of input i.
func (k *ElemWise[In, Out, S]) Propagate(ins [][]In, out []Out) {
	k.rows(nil, ins, out, 0, k.Rows())
}

// rows reads every input from shared when ins is nil.
func (k *ElemWise[In, Out, S]) rows(shared []In, ins [][]In, out []Out, y0, y1 int) {
	c := &k.cfg
	outW, nbOut := c.Out.Shape.Width, c.Out.Shape.Channels

	for oy := y0; oy < y1; oy++ {
		for ox := 0; ox < outW; ox++ {
			pos := ox + outW*oy
			oOff := c.Out.Map.Index(pos)

			for ch := 0; ch < nbOut; ch++ {
				var sum S
				for i, p := range c.Inputs {
					src := shared
					if ins != nil {
						src = ins[i]
					}
					sum += S(src[p.Map.Index(pos)+ch])
				}
				out[oOff+ch] = Sat[Out](sum, ch, c.Activation, &c.Rescaling, c.Bits)
			}
		}
	}
}
