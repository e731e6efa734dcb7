package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Raw activation buffers are stored as a flat little-endian array of
// elements, positions row-major and channels innermost, with no header.

// EncodeBuffer returns the raw little-endian encoding of s.
func EncodeBuffer[T Element](s []T) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Grow(len(s) * SizeOf[T]())
	if err := WriteBuffer(buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBuffer decodes a raw little-endian buffer. The length of b must be a
// whole number of elements.
func DecodeBuffer[T Element](b []byte) ([]T, error) {
	size := SizeOf[T]()
	if len(b)%size != 0 {
		return nil, fmt.Errorf("buffer length %d not multiple of %d", len(b), size)
	}
	out := make([]T, len(b)/size)
	if err := ReadBuffer(bytes.NewReader(b), out); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteBuffer streams s to w.
func WriteBuffer[T Element](w io.Writer, s []T) error {
	if len(s) == 0 {
		return nil
	}
	return binary.Write(w, binary.LittleEndian, s)
}

// ReadBuffer fills dst from r, failing on short input.
func ReadBuffer[T Element](r io.Reader, dst []T) error {
	if len(dst) == 0 {
		return nil
	}
	if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
		return fmt.Errorf("read %d x %s: %w", len(dst), TypeOf[T](), err)
	}
	return nil
}
