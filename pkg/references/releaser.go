package references

// ResourceReleaser releases a value once nothing references it. Pools
// implement it with their Release method.
type ResourceReleaser[T any] interface {
	Release(value T)
}

// ReleaserFunc adapts an ordinary function to ResourceReleaser.
type ReleaserFunc[T any] func(value T)

// Release calls f(value).
func (f ReleaserFunc[T]) Release(value T) {
	f(value)
}

// NoOpReleaser returns a releaser that does nothing, for values whose
// lifetime is managed elsewhere.
func NoOpReleaser[T any]() ResourceReleaser[T] {
	return ReleaserFunc[T](func(T) {})
}
