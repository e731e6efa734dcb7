// Package dump writes activation tensors in the textual layouts used for
// golden-file comparison of network outputs.
//
// Both layouts nest parenthesized lists three deep. Every value is followed
// by ", " and every closed inner list by ", " and a newline; the outermost
// list closes with ")\n". HWC nests rows, cells and channels; CHW nests
// channels, rows and cells. Integers are printed in decimal, floats with six
// significant digits.
package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sbl8/edgenet/core"
)

// ErrFormat is returned for a layout other than HWC and CHW.
var ErrFormat = errors.New("unknown dump format")

// Format selects the nesting order of a dump.
type Format int

// Supported layouts
const (
	HWC Format = iota
	CHW
)

func (f Format) String() string {
	switch f {
	case HWC:
		return "hwc"
	case CHW:
		return "chw"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat accepts "hwc" and "chw" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "hwc":
		return HWC, nil
	case "chw":
		return CHW, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrFormat, s)
}

// Write dumps the tensor of shape s stored in data through m. data is the
// memory m indexes into.
func Write[T core.Element](w io.Writer, data []T, s core.Shape, m core.Mapping, f Format) error {
	if f != HWC && f != CHW {
		return fmt.Errorf("%w: %v", ErrFormat, f)
	}
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 32)

	bw.WriteString("(")
	switch f {
	case HWC:
		for oy := 0; oy < s.Height; oy++ {
			bw.WriteString("(")
			for ox := 0; ox < s.Width; ox++ {
				bw.WriteString("(")
				off := m.Index(ox + s.Width*oy)
				for ch := 0; ch < s.Channels; ch++ {
					buf = appendValue(buf[:0], data[off+ch])
					bw.Write(buf)
					bw.WriteString(", ")
				}
				bw.WriteString("), \n")
			}
			bw.WriteString("), \n")
		}
	case CHW:
		for ch := 0; ch < s.Channels; ch++ {
			bw.WriteString("(")
			for oy := 0; oy < s.Height; oy++ {
				bw.WriteString("(")
				for ox := 0; ox < s.Width; ox++ {
					buf = appendValue(buf[:0], data[m.Index(ox+s.Width*oy)+ch])
					bw.Write(buf)
					bw.WriteString(", ")
				}
				bw.WriteString("), \n")
			}
			bw.WriteString("), \n")
		}
	}
	bw.WriteString(")\n")
	return bw.Flush()
}

func appendValue[T core.Element](b []byte, v T) []byte {
	switch {
	case core.IsFloat[T]():
		f := float64(v)
		switch {
		case math.IsNaN(f):
			return append(b, "nan"...)
		case math.IsInf(f, 1):
			return append(b, "inf"...)
		case math.IsInf(f, -1):
			return append(b, "-inf"...)
		}
		bits := 64
		if core.SizeOf[T]() == 4 {
			bits = 32
		}
		return strconv.AppendFloat(b, f, 'g', 6, bits)
	case core.IsUnsigned[T]():
		return strconv.AppendUint(b, uint64(v), 10)
	default:
		return strconv.AppendInt(b, int64(v), 10)
	}
}
