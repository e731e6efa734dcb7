package core

import (
	"fmt"
	"math"
	"strings"
)

// Integer is the set of integral activation and weight types.
type Integer interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64
}

// Float is the set of floating-point activation and weight types.
type Float interface {
	~float32 | ~float64
}

// Element is any type an activation, weight or bias buffer may hold.
type Element interface {
	Integer | Float
}

// Accumulator is the set of types a multiply-accumulate reduction runs in.
type Accumulator interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// IsFloat reports whether T is a floating-point type.
func IsFloat[T Element]() bool {
	half := 0.5
	return T(half) != 0
}

// IsUnsigned reports whether T is an unsigned integer type.
func IsUnsigned[T Element]() bool {
	var zero T
	zero--
	return zero > 0
}

// Lowest returns the lowest representable value of T.
func Lowest[T Element]() T {
	if IsUnsigned[T]() {
		return 0
	}
	if IsFloat[T]() {
		lowest := -math.MaxFloat64
		if SizeOf[T]() == 4 {
			lowest = -math.MaxFloat32
		}
		return T(lowest)
	}
	lowest := int64(-1) << (8*SizeOf[T]() - 1)
	return T(lowest)
}

// DataType tags an element type at run time, for ports and file formats.
type DataType int

// Supported data types.
const (
	Invalid DataType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Float32
	Float64
)

var dataTypeNames = [...]string{
	Invalid: "invalid",
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
}

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		return 0
	}
}

func (dt DataType) String() string {
	if dt < 0 || int(dt) >= len(dataTypeNames) {
		return "invalid"
	}
	return dataTypeNames[dt]
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, error) {
	for i, name := range dataTypeNames {
		if i != int(Invalid) && strings.EqualFold(s, name) {
			return DataType(i), nil
		}
	}
	return Invalid, fmt.Errorf("unknown data type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (dt DataType) MarshalText() ([]byte, error) {
	return []byte(dt.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dt *DataType) UnmarshalText(b []byte) error {
	v, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*dt = v
	return nil
}

// TypeOf returns the DataType of T. Named types report their underlying kind.
func TypeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	float, unsigned := IsFloat[T](), IsUnsigned[T]()
	switch size := SizeOf[T](); {
	case float && size == 4:
		return Float32
	case float:
		return Float64
	case size == 1 && unsigned:
		return Uint8
	case size == 1:
		return Int8
	case size == 2 && unsigned:
		return Uint16
	case size == 2:
		return Int16
	case size == 4 && unsigned:
		return Uint32
	case size == 4:
		return Int32
	default:
		return Int64
	}
}
