package model

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sbl8/edgenet/kernels"
)

// Scaling is the serialized form of kernels.Rescaling.
type Scaling struct {
	Mode           string
	Float          []float64
	Fixed          []int32
	FractionalBits uint8
	Shift          []uint8
	DoubleShift    [][2]uint8
}

// Rescaling converts the bundle entry into the kernel parameter.
func (s *Scaling) Rescaling() (kernels.Rescaling, error) {
	mode, err := kernels.ParseScalingMode(s.Mode)
	if err != nil {
		return kernels.Rescaling{}, err
	}
	return kernels.Rescaling{
		Mode:           mode,
		Float:          s.Float,
		Fixed:          s.Fixed,
		FractionalBits: s.FractionalBits,
		Shift:          s.Shift,
		DoubleShift:    s.DoubleShift,
	}, nil
}

// LayerParams holds the trained parameters of one layer. Floating networks
// fill Weights and Bias, quantized networks IntWeights and IntBias.
type LayerParams struct {
	Name       string
	Weights    []float32
	IntWeights []int32
	Bias       []float32
	IntBias    []int32
	Scaling    Scaling
}

// Params is the parameter bundle of a network.
type Params struct {
	Network string
	Layers  []LayerParams
}

// Layer returns the parameters of the named layer.
func (p *Params) Layer(name string) (*LayerParams, bool) {
	for i := range p.Layers {
		if p.Layers[i].Name == name {
			return &p.Layers[i], true
		}
	}
	return nil, false
}

// Field numbers of the wire messages.
const (
	fieldParamsNetwork protowire.Number = 1
	fieldParamsLayer   protowire.Number = 2

	fieldLayerName       protowire.Number = 1
	fieldLayerWeights    protowire.Number = 2
	fieldLayerIntWeights protowire.Number = 3
	fieldLayerBias       protowire.Number = 4
	fieldLayerIntBias    protowire.Number = 5
	fieldLayerScaling    protowire.Number = 6

	fieldScalingMode           protowire.Number = 1
	fieldScalingFloat          protowire.Number = 2
	fieldScalingFixed          protowire.Number = 3
	fieldScalingFractionalBits protowire.Number = 4
	fieldScalingShift          protowire.Number = 5
	fieldScalingDoubleShift    protowire.Number = 6
)

var errTruncated = errors.New("truncated parameter bundle")

// MarshalBinary encodes the bundle in protobuf wire format with packed
// repeated fields.
func (p *Params) MarshalBinary() ([]byte, error) {
	var b []byte
	if p.Network != "" {
		b = protowire.AppendTag(b, fieldParamsNetwork, protowire.BytesType)
		b = protowire.AppendString(b, p.Network)
	}
	for i := range p.Layers {
		b = protowire.AppendTag(b, fieldParamsLayer, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Layers[i].appendWire(nil))
	}
	return b, nil
}

func (l *LayerParams) appendWire(b []byte) []byte {
	b = protowire.AppendTag(b, fieldLayerName, protowire.BytesType)
	b = protowire.AppendString(b, l.Name)
	b = appendFloats(b, fieldLayerWeights, l.Weights)
	b = appendInts(b, fieldLayerIntWeights, l.IntWeights)
	b = appendFloats(b, fieldLayerBias, l.Bias)
	b = appendInts(b, fieldLayerIntBias, l.IntBias)
	if s := l.Scaling.appendWire(nil); len(s) > 0 {
		b = protowire.AppendTag(b, fieldLayerScaling, protowire.BytesType)
		b = protowire.AppendBytes(b, s)
	}
	return b
}

func (s *Scaling) appendWire(b []byte) []byte {
	if s.Mode != "" {
		b = protowire.AppendTag(b, fieldScalingMode, protowire.BytesType)
		b = protowire.AppendString(b, s.Mode)
	}
	if len(s.Float) > 0 {
		packed := make([]byte, 0, 8*len(s.Float))
		for _, v := range s.Float {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		b = protowire.AppendTag(b, fieldScalingFloat, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	b = appendInts(b, fieldScalingFixed, s.Fixed)
	if s.FractionalBits != 0 {
		b = protowire.AppendTag(b, fieldScalingFractionalBits, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(s.FractionalBits))
	}
	if len(s.Shift) > 0 {
		b = protowire.AppendTag(b, fieldScalingShift, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Shift)
	}
	if len(s.DoubleShift) > 0 {
		pairs := make([]byte, 0, 2*len(s.DoubleShift))
		for _, d := range s.DoubleShift {
			pairs = append(pairs, d[0], d[1])
		}
		b = protowire.AppendTag(b, fieldScalingDoubleShift, protowire.BytesType)
		b = protowire.AppendBytes(b, pairs)
	}
	return b
}

func appendFloats(b []byte, num protowire.Number, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	packed := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// appendInts writes a packed sint32 field.
func appendInts(b []byte, num protowire.Number, vs []int32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// UnmarshalBinary decodes a bundle written by MarshalBinary. Unknown fields
// are skipped.
func (p *Params) UnmarshalBinary(b []byte) error {
	*p = Params{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldParamsNetwork && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			p.Network = s
			return n, nil
		case num == fieldParamsLayer && typ == protowire.BytesType:
			msg, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			var l LayerParams
			if err := l.unmarshal(msg); err != nil {
				return 0, fmt.Errorf("layer %d: %w", len(p.Layers), err)
			}
			p.Layers = append(p.Layers, l)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
}

func (l *LayerParams) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case fieldLayerName:
			if typ == protowire.BytesType {
				s, n := protowire.ConsumeString(v)
				l.Name = s
				return n, nil
			}
		case fieldLayerWeights:
			return consumeFloats(typ, v, &l.Weights)
		case fieldLayerIntWeights:
			return consumeInts(typ, v, &l.IntWeights)
		case fieldLayerBias:
			return consumeFloats(typ, v, &l.Bias)
		case fieldLayerIntBias:
			return consumeInts(typ, v, &l.IntBias)
		case fieldLayerScaling:
			if typ == protowire.BytesType {
				msg, n := protowire.ConsumeBytes(v)
				if n < 0 {
					return n, nil
				}
				if err := l.Scaling.unmarshal(msg); err != nil {
					return 0, fmt.Errorf("scaling: %w", err)
				}
				return n, nil
			}
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
}

func (s *Scaling) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == fieldScalingMode && typ == protowire.BytesType:
			str, n := protowire.ConsumeString(v)
			s.Mode = str
			return n, nil
		case num == fieldScalingFloat && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			if len(packed)%8 != 0 {
				return 0, errTruncated
			}
			for len(packed) > 0 {
				bits, m := protowire.ConsumeFixed64(packed)
				s.Float = append(s.Float, math.Float64frombits(bits))
				packed = packed[m:]
			}
			return n, nil
		case num == fieldScalingFixed:
			return consumeInts(typ, v, &s.Fixed)
		case num == fieldScalingFractionalBits && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			if n >= 0 && x > math.MaxUint8 {
				return 0, fmt.Errorf("fractional bits %d out of range", x)
			}
			s.FractionalBits = uint8(x)
			return n, nil
		case num == fieldScalingShift && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(v)
			s.Shift = append([]uint8(nil), raw...)
			return n, nil
		case num == fieldScalingDoubleShift && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(v)
			if n >= 0 && len(raw)%2 != 0 {
				return 0, errors.New("odd number of double shift values")
			}
			for i := 0; i+1 < len(raw); i += 2 {
				s.DoubleShift = append(s.DoubleShift, [2]uint8{raw[i], raw[i+1]})
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
}

// walk calls field for every field of a message. field returns the number
// of value bytes it consumed, negative for a protowire parse error.
func walk(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

// consumeFloats accepts packed and unpacked float fields.
func consumeFloats(typ protowire.Type, b []byte, dst *[]float32) (int, error) {
	switch typ {
	case protowire.Fixed32Type:
		bits, n := protowire.ConsumeFixed32(b)
		if n >= 0 {
			*dst = append(*dst, math.Float32frombits(bits))
		}
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		if len(packed)%4 != 0 {
			return 0, errTruncated
		}
		for len(packed) > 0 {
			bits, m := protowire.ConsumeFixed32(packed)
			*dst = append(*dst, math.Float32frombits(bits))
			packed = packed[m:]
		}
		return n, nil
	}
	return 0, fmt.Errorf("float field has wire type %v", typ)
}

// consumeInts accepts packed and unpacked sint32 fields.
func consumeInts(typ protowire.Type, b []byte, dst *[]int32) (int, error) {
	switch typ {
	case protowire.VarintType:
		x, n := protowire.ConsumeVarint(b)
		if n >= 0 {
			*dst = append(*dst, int32(protowire.DecodeZigZag(x)))
		}
		return n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		for len(packed) > 0 {
			x, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return m, nil
			}
			*dst = append(*dst, int32(protowire.DecodeZigZag(x)))
			packed = packed[m:]
		}
		return n, nil
	}
	return 0, fmt.Errorf("integer field has wire type %v", typ)
}

// LoadParams reads a parameter bundle from path.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params file: %w", err)
	}
	var p Params
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to decode params %s: %w", path, err)
	}
	return &p, nil
}

// SaveParams writes p to path.
func SaveParams(path string, p *Params) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write params file: %w", err)
	}
	return nil
}
