package compiler

import (
	"fmt"

	"github.com/sbl8/edgenet/core"
	"github.com/sbl8/edgenet/kernels"
	"github.com/sbl8/edgenet/model"
	"github.com/sbl8/edgenet/runtime"
)

// layer is everything needed to instantiate the kernel of one layer.
type layer struct {
	*model.Layer
	kind   kernels.Kind
	act    kernels.Activation
	ins    []kernels.Port
	out    kernels.Port
	params *model.LayerParams
	bits   int
	float  bool
}

func buildStep(net *model.Network, l *model.Layer, params *model.Params, plan *Plan, tensors map[string]*tensor) (runtime.Step, error) {
	kind, err := l.Kind()
	if err != nil {
		return runtime.Step{}, err
	}
	act, err := kernels.ParseActivation(l.Activation)
	if err != nil {
		return runtime.Step{}, err
	}

	c := &layer{
		Layer: l,
		kind:  kind,
		act:   act,
		ins:   make([]kernels.Port, len(l.Inputs)),
		bits:  net.Bits,
		float: net.Precision == model.Float32,
	}
	c.params, _ = params.Layer(l.Name)

	inBufs := make([]*Buffer, len(l.Inputs))
	for i, name := range l.Inputs {
		inBufs[i], _ = plan.Buffer(name)
		c.ins[i] = kernels.Port{Shape: inBufs[i].Shape, Map: inBufs[i].Mapping}
	}
	outBuf, _ := plan.Buffer(l.Name)
	c.out = kernels.Port{Shape: outBuf.Shape, Map: outBuf.Mapping}

	in, out := tensors[l.Inputs[0]].typ, tensors[l.Name].typ
	k, err := buildKernel(c, in, out)
	if err != nil {
		return runtime.Step{}, err
	}
	return runtime.Step{Name: l.Name, Kernel: k, Serial: sharesMemory(outBuf, inBufs)}, nil
}

// buildKernel picks the type instantiation for the storage types of the
// layer input and output.
func buildKernel(c *layer, in, out core.DataType) (kernels.Kernel, error) {
	if c.kind == kernels.KindArgmax {
		// argmax is generic over its input only
		out = in
	}
	switch {
	case in == core.Float32 && out == core.Float32:
		return build[float32, float32, float32, float32](c)
	case in == core.Int8 && out == core.Int8:
		return build[int8, int8, int8, int32](c)
	case in == core.Int8 && out == core.Uint8:
		return build[int8, uint8, int8, int32](c)
	case in == core.Uint8 && out == core.Int8:
		return build[uint8, int8, int8, int32](c)
	case in == core.Uint8 && out == core.Uint8:
		return build[uint8, uint8, int8, int32](c)
	}
	return nil, fmt.Errorf("%w: no kernel for %v input and %v output", kernels.ErrConfig, in, out)
}

func build[In, Out, W core.Element, S core.Accumulator](c *layer) (kernels.Kernel, error) {
	switch c.kind {
	case kernels.KindConv, kernels.KindDepthwise:
		weights, bias, err := parameters[W, S](c, c.out.Shape.Channels)
		if err != nil {
			return nil, err
		}
		rs, err := c.rescaling()
		if err != nil {
			return nil, err
		}
		cfg := kernels.ConvConfig{
			In:         c.ins[0],
			Out:        c.out,
			Window:     c.Window(),
			Activation: c.act,
			Rescaling:  rs,
			Bits:       c.bits,
		}
		if c.kind == kernels.KindDepthwise {
			return kernels.NewDepthwise[In, Out, W, S](cfg, weights, bias)
		}
		return kernels.NewConv[In, Out, W, S](cfg, weights, bias)

	case kernels.KindFC:
		weights, bias, err := parameters[W, S](c, c.out.Shape.Channels)
		if err != nil {
			return nil, err
		}
		rs, err := c.rescaling()
		if err != nil {
			return nil, err
		}
		return kernels.NewFC[In, Out, W, S](kernels.FCConfig{
			In:         c.ins[0],
			Out:        c.out,
			Activation: c.act,
			Rescaling:  rs,
			Bits:       c.bits,
		}, weights, bias)

	case kernels.KindPool:
		pooling, err := kernels.ParsePooling(c.Pool)
		if err != nil {
			return nil, err
		}
		return kernels.NewPool[In, S](kernels.PoolConfig{
			In:         c.ins[0],
			Out:        c.out,
			Window:     c.Window(),
			Pooling:    pooling,
			Activation: c.act,
		})

	case kernels.KindElemWise:
		op, err := kernels.ParseElemWiseOp(c.Op)
		if err != nil {
			return nil, err
		}
		rs, err := c.rescaling()
		if err != nil {
			return nil, err
		}
		return kernels.NewElemWise[In, Out, S](kernels.ElemWiseConfig{
			Inputs:     c.ins,
			Out:        c.out,
			Op:         op,
			Activation: c.act,
			Rescaling:  rs,
			Bits:       c.bits,
		})

	case kernels.KindConcat:
		return kernels.NewConcat[In](kernels.ConcatConfig{Inputs: c.ins, Out: c.out})

	case kernels.KindResize:
		return kernels.NewResize[In](kernels.ResizeConfig{In: c.ins[0], Out: c.out})

	case kernels.KindScaling:
		rs, err := c.rescaling()
		if err != nil {
			return nil, err
		}
		return kernels.NewScaling[In, Out, S](kernels.ScalingConfig{
			In:        c.ins[0],
			Out:       c.out,
			Rescaling: rs,
			Bits:      c.bits,
		})

	case kernels.KindArgmax:
		return kernels.NewArgmax[In](kernels.ArgmaxConfig{In: c.ins[0], Out: c.out})
	}
	return nil, fmt.Errorf("%w: unsupported layer type %v", kernels.ErrConfig, c.kind)
}

// rescaling returns the output rescaling of the layer, none when the bundle
// has no entry for it.
func (c *layer) rescaling() (kernels.Rescaling, error) {
	if c.params == nil {
		return kernels.Rescaling{}, nil
	}
	return c.params.Scaling.Rescaling()
}

// parameters converts the weights and biases of the layer to the kernel
// types. A missing bias is all zeros.
func parameters[W core.Element, S core.Accumulator](c *layer, outputs int) ([]W, []S, error) {
	if c.params == nil {
		return nil, nil, fmt.Errorf("%w: no parameters for %v layer", kernels.ErrConfig, c.kind)
	}
	var (
		weights []W
		bias    []S
		err     error
	)
	if c.float {
		weights, err = convert[W](c.params.Weights)
		if err == nil {
			bias, err = convert[S](c.params.Bias)
		}
	} else {
		weights, err = convert[W](c.params.IntWeights)
		if err == nil {
			bias, err = convert[S](c.params.IntBias)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", kernels.ErrConfig, err)
	}
	if len(weights) == 0 {
		return nil, nil, fmt.Errorf("%w: no weights for a %s network", kernels.ErrConfig, precision(c.float))
	}
	if len(bias) == 0 {
		bias = make([]S, outputs)
	}
	return weights, bias, nil
}

func precision(float bool) string {
	if float {
		return model.Float32
	}
	return model.Int8
}

// convert copies vs into a slice of T, rejecting values T cannot hold.
func convert[T core.Element, V float32 | int32](vs []V) ([]T, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	out := make([]T, len(vs))
	for i, v := range vs {
		t := T(v)
		if V(t) != v {
			return nil, fmt.Errorf("value %v at %d does not fit %v", v, i, core.TypeOf[T]())
		}
		out[i] = t
	}
	return out, nil
}
