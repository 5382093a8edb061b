package composetable

// Unsafe casting between []byte and the packed cell types, for zero-copy
// loads from a cache-file buffer.

import (
	"reflect"
	"unsafe"
)

// unsafeBytesToUint16s casts src to []uint16.  "src" must store an array
// of uint16s in host byte order at an even offset.
func unsafeBytesToUint16s(src []byte) (d []uint16) {
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&src))
	dh := (*reflect.SliceHeader)(unsafe.Pointer(&d))
	dh.Data = sh.Data
	dh.Len = sh.Len / 2
	dh.Cap = sh.Cap / 2
	return d
}

// unsafeUint16sToBytes casts a packed cell array to []byte.
func unsafeUint16sToBytes(src []uint16) (d []byte) {
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&src))
	dh := (*reflect.SliceHeader)(unsafe.Pointer(&d))
	dh.Data = sh.Data
	dh.Len = sh.Len * 2
	dh.Cap = sh.Cap * 2
	return d
}
