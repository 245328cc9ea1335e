package util

import (
	"unsafe"
)

func Load[T any](ptr unsafe.Pointer) T {
	return *(*T)(ptr)
}

func Load2[T any](ptr unsafe.Pointer, offset int) T {
	return *(*T)(PointerAdd(ptr, offset))
}

func Store[T any](val T, ptr unsafe.Pointer) {
	*(*T)(ptr) = val
}

func Store2[T any](val T, ptr unsafe.Pointer, offset int) {
	*(*T)(PointerAdd(ptr, offset)) = val
}

func Fill[T any](data []T, count int, val T) {
	for i := 0; i < count; i++ {
		data[i] = val
	}
}

// ToSlice reinterprets a byte slice as a slice of T. pSize is the size of T.
func ToSlice[T any](data []byte, pSize int) []T {
	slen := len(data) / pSize
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), slen)
}

func BytesSliceToPointer(data []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(data))
}

func PointerAdd(base unsafe.Pointer, offset int) unsafe.Pointer {
	return unsafe.Add(base, offset)
}

func PointerToSlice[T any](base unsafe.Pointer, len int) []T {
	return unsafe.Slice((*T)(base), len)
}

func PointerCopy(dst, src unsafe.Pointer, len int) {
	dstSlice := PointerToSlice[byte](dst, len)
	srcSlice := PointerToSlice[byte](src, len)
	copy(dstSlice, srcSlice)
}
