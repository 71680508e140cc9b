package datom

import (
	"fmt"
	"strings"
	"unsafe"
)

// maxNativeStringLen bounds the NUL scan over native memory. Strings that
// exceed it are truncated; in practice that only happens on corruption.
const maxNativeStringLen = 1 << 24

// goString copies a NUL-terminated string owned by the native library into Go
// memory. A zero pointer yields the empty string.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	// #nosec G103 -- ptr is a NUL-terminated string returned by the native library.
	base := unsafe.Pointer(ptr)
	n := 0
	for n < maxNativeStringLen && *(*byte)(unsafe.Add(base, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(base), n))
}

// cString returns a NUL-terminated copy of s and the address of its first
// byte. The caller must keep the returned slice alive (runtime.KeepAlive)
// until the native call that reads the pointer has returned.
func cString(s string) ([]byte, uintptr, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, 0, fmt.Errorf("string contains a NUL byte at offset %d", strings.IndexByte(s, 0))
	}
	b := append([]byte(s), 0)
	return b, uintptr(unsafe.Pointer(&b[0])), nil
}
