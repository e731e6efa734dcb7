package core

import "unsafe"

const (
	// CacheLineSize is the alignment used for arena blocks and activation regions.
	CacheLineSize = 64
)

// IsAligned reports whether addr sits on a cache line boundary.
func IsAligned(addr uintptr) bool {
	return addr%CacheLineSize == 0
}

// AlignedSize rounds size up to the nearest cache line multiple.
func AlignedSize(size uintptr) uintptr {
	return (size + uintptr(CacheLineSize-1)) & ^uintptr(CacheLineSize-1)
}

// AlignSize rounds size up to the given power-of-two boundary.
func AlignSize(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// AlignedBytes allocates a byte slice whose backing array starts on a cache
// line boundary. Typed views over the slice (see View) rely on this alignment.
func AlignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	// At most CacheLineSize-1 bytes are needed to reach the next boundary.
	buf := make([]byte, size+CacheLineSize-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}

	return buf[offset : offset+uintptr(size)]
}
