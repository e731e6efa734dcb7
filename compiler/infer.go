package compiler

import (
	"fmt"

	"github.com/sbl8/edgenet/core"
	"github.com/sbl8/edgenet/kernels"
	"github.com/sbl8/edgenet/model"
)

// tensor is one activation buffer of the network: the input or the output
// of a layer.
type tensor struct {
	name  string
	shape core.Shape
	typ   core.DataType
	// producer is the step writing the tensor, -1 for the network input.
	producer int
	// lastUse is the last step reading the tensor.
	lastUse int
	pinned  *core.Mapping
}

// activationType returns the storage type of a quantized or floating
// activation.
func activationType(precision string, unsigned bool) core.DataType {
	switch {
	case precision == model.Float32:
		return core.Float32
	case unsigned:
		return core.Uint8
	default:
		return core.Int8
	}
}

// inferTensors derives the shape and element type of every tensor. order is
// the execution order from Network.Order; the returned map is keyed by
// tensor name.
func inferTensors(net *model.Network, order []int) (map[string]*tensor, error) {
	tensors := make(map[string]*tensor, len(net.Layers)+1)
	tensors[net.Input.Name] = &tensor{
		name:     net.Input.Name,
		shape:    net.Input.Shape(),
		typ:      activationType(net.Precision, net.Input.Unsigned),
		producer: -1,
	}

	for step, idx := range order {
		l := &net.Layers[idx]
		ins := make([]*tensor, len(l.Inputs))
		for i, name := range l.Inputs {
			ins[i] = tensors[name]
			ins[i].lastUse = step
		}

		shape, typ, err := inferLayer(net, l, ins)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		if shape.Height <= 0 || shape.Width <= 0 || shape.Channels <= 0 {
			return nil, fmt.Errorf("layer %q: output shape %v", l.Name, shape)
		}
		tensors[l.Name] = &tensor{
			name:     l.Name,
			shape:    shape,
			typ:      typ,
			producer: step,
			lastUse:  step,
			pinned:   l.Memory,
		}
	}
	return tensors, nil
}

func inferLayer(net *model.Network, l *model.Layer, ins []*tensor) (core.Shape, core.DataType, error) {
	kind, err := l.Kind()
	if err != nil {
		return core.Shape{}, core.Invalid, err
	}
	in := ins[0].shape
	typ := activationType(net.Precision, l.Unsigned)
	switch kind {
	case kernels.KindConv, kernels.KindDepthwise, kernels.KindPool:
		if err := l.Window().Fits(in); err != nil {
			return core.Shape{}, core.Invalid, err
		}
	}

	switch kind {
	case kernels.KindConv:
		return l.Window().Output(in, l.Outputs), typ, nil
	case kernels.KindDepthwise:
		if l.Outputs != 0 && l.Outputs != in.Channels {
			return core.Shape{}, core.Invalid, fmt.Errorf("depthwise layer has %d outputs for %d channels", l.Outputs, in.Channels)
		}
		return l.Window().Output(in, in.Channels), typ, nil
	case kernels.KindPool:
		// pooling keeps the storage type of its input
		return l.Window().Output(in, in.Channels), ins[0].typ, nil
	case kernels.KindFC:
		return core.Shape{Height: 1, Width: 1, Channels: l.Outputs}, typ, nil
	case kernels.KindScaling:
		return in, typ, nil
	case kernels.KindElemWise:
		for i, t := range ins[1:] {
			if t.shape != in {
				return core.Shape{}, core.Invalid, fmt.Errorf("input %d shape %v differs from %v", i+1, t.shape, in)
			}
			if t.typ != ins[0].typ {
				return core.Shape{}, core.Invalid, fmt.Errorf("input %d is %v, input 0 is %v", i+1, t.typ, ins[0].typ)
			}
		}
		return in, typ, nil
	case kernels.KindConcat:
		out := in
		for i, t := range ins[1:] {
			if t.shape.Height != in.Height || t.shape.Width != in.Width {
				return core.Shape{}, core.Invalid, fmt.Errorf("input %d extent %v differs from %v", i+1, t.shape, in)
			}
			if t.typ != ins[0].typ {
				return core.Shape{}, core.Invalid, fmt.Errorf("input %d is %v, input 0 is %v", i+1, t.typ, ins[0].typ)
			}
			out.Channels += t.shape.Channels
		}
		return out, ins[0].typ, nil
	case kernels.KindResize:
		return core.Shape{Height: l.Height, Width: l.Width, Channels: in.Channels}, ins[0].typ, nil
	case kernels.KindArgmax:
		return core.Shape{Height: in.Height, Width: in.Width, Channels: 1}, core.Int32, nil
	}
	return core.Shape{}, core.Invalid, fmt.Errorf("unsupported layer type %v", kind)
}
