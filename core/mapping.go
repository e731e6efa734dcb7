package core

import (
	"errors"
	"fmt"
)

// ErrMapping is returned by Mapping.Validate for descriptors that could never
// have been produced by a correct memory plan.
var ErrMapping = errors.New("invalid memory mapping")

// Mapping describes where the spatial positions of one activation buffer live
// inside a memory block. All fields are in elements of the buffer type.
//
// Positions are laid out linearly from ContOffset with Stride elements per
// position. When WrapSize is non-zero, any position whose linear offset
// reaches ContSize continues in the wrap region starting at WrapOffset.
// A descriptor is fixed when the network is planned and never changes
// during inference.
type Mapping struct {
	ContOffset int `json:"cont_offset"`
	ContSize   int `json:"cont_size"`
	WrapOffset int `json:"wrap_offset"`
	WrapSize   int `json:"wrap_size"`
	Stride     int `json:"stride"`
}

// Linear returns a non-wrapping descriptor starting at element 0.
func Linear(stride int) Mapping {
	return Mapping{Stride: stride}
}

// At returns a non-wrapping descriptor starting at offset.
func At(offset, stride, positions int) Mapping {
	return Mapping{ContOffset: offset, ContSize: stride * positions, Stride: stride}
}

// Wraps reports whether the descriptor has a wrap region.
func (m Mapping) Wraps() bool {
	return m.WrapSize > 0
}

// Resolve maps a logical position to an element offset relative to
// ContOffset. The wrap correction is applied at most once. Positions are not
// bounds checked.
func (m Mapping) Resolve(pos int) int {
	return m.wrap(m.Stride * pos)
}

func (m Mapping) wrap(offset int) int {
	if m.WrapSize > 0 && offset >= m.ContSize {
		offset += m.WrapOffset - m.ContOffset - m.ContSize
	}
	return offset
}

// Index maps a logical position to an absolute element index in the memory
// block the buffer lives in.
func (m Mapping) Index(pos int) int {
	return m.ContOffset + m.Resolve(pos)
}

// Extent returns one past the highest element index touched when positions
// [0, positions) are addressed, each holding width consecutive elements.
func (m Mapping) Extent(positions, width int) int {
	if positions <= 0 {
		return m.ContOffset
	}
	last := m.Index(positions-1) + width
	if m.WrapSize == 0 || m.Stride*(positions-1) < m.ContSize {
		return last
	}
	// the last position wrapped, so the continuous region is full
	return max(last, m.ContOffset+m.ContSize)
}

// Validate checks the structural invariants of the descriptor.
func (m Mapping) Validate() error {
	switch {
	case m.Stride <= 0:
		return fmt.Errorf("%w: stride %d must be positive", ErrMapping, m.Stride)
	case m.ContOffset < 0 || m.ContSize < 0 || m.WrapOffset < 0 || m.WrapSize < 0:
		return fmt.Errorf("%w: negative field in %+v", ErrMapping, m)
	case m.WrapSize > 0 && m.WrapSize < m.Stride:
		return fmt.Errorf("%w: wrap region %d smaller than stride %d", ErrMapping, m.WrapSize, m.Stride)
	case m.WrapSize > 0 && m.ContSize%m.Stride != 0:
		return fmt.Errorf("%w: continuous size %d is not a multiple of stride %d", ErrMapping, m.ContSize, m.Stride)
	case m.WrapSize > 0 && m.WrapOffset+m.WrapSize > m.ContOffset+m.ContSize:
		// a wrapped offset must land below ContSize so it never wraps twice
		return fmt.Errorf("%w: wrap region ends past the continuous region", ErrMapping)
	}
	return nil
}

func (m Mapping) String() string {
	if m.WrapSize == 0 {
		return fmt.Sprintf("[%d+%d stride %d]", m.ContOffset, m.ContSize, m.Stride)
	}
	return fmt.Sprintf("[%d+%d wrap %d+%d stride %d]", m.ContOffset, m.ContSize, m.WrapOffset, m.WrapSize, m.Stride)
}

// Shape is the logical extent of one activation tensor, channel innermost.
type Shape struct {
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// Positions returns Height*Width.
func (s Shape) Positions() int {
	return s.Height * s.Width
}

// Size returns the number of elements of a dense tensor of this shape.
func (s Shape) Size() int {
	return s.Height * s.Width * s.Channels
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Height, s.Width, s.Channels)
}
