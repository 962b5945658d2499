package pool

import "unsafe"

// identity returns the key a value is tracked under while in use. Byte
// slices are keyed by their backing array, so a resliced buffer with the
// same start is still recognized. Other values must be comparable; pools
// hand out pointers.
func identity[V any](v V) any {
	switch x := any(v).(type) {
	case []byte:
		return unsafe.SliceData(x)
	default:
		return x
	}
}
