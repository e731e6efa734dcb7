package core

import "unsafe"

// SizeOf returns the byte size of T.
func SizeOf[T Element]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// View reinterprets a byte block as a slice of T sharing the same memory.
// The block must be aligned for T; blocks from AlignedBytes always are.
// Trailing bytes that do not fill a whole element are not visible.
func View[T Element](b []byte) []T {
	n := len(b) / SizeOf[T]()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// Bytes is the inverse of View: it exposes a typed slice as raw bytes.
func Bytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*SizeOf[T]())
}
