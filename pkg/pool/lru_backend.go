package pool

import (
	"container/list"
	"sync"
)

// lruEntry is one pooled value in the recency list. A marker entry holds
// no value; it keeps the place of a key whose values were all acquired.
type lruEntry[V any] struct {
	key    int
	value  V
	marker bool
}

// LruBucketsPoolBackend pools values that cannot be bucketed exactly. It
// keeps one recency list of entries across all keys: Release puts the
// value at the front and RemoveFromEnd evicts the entry at the back, the
// least recently released value of any key. Acquire returns the newest
// value of a key. A key whose values were all acquired keeps a marker at
// the front until it drifts to the back or the key is released again.
type LruBucketsPoolBackend[V any] struct {
	sizeOf func(V) int

	mu      sync.Mutex
	recency *list.List
	byKey   map[int][]*list.Element // oldest first
	markers map[int]*list.Element
	current map[any]struct{}
}

// NewLruBucketsPoolBackend creates an empty backend. sizeOf gives the key
// Put files a value under.
func NewLruBucketsPoolBackend[V any](sizeOf func(V) int) *LruBucketsPoolBackend[V] {
	return &LruBucketsPoolBackend[V]{
		sizeOf:  sizeOf,
		recency: list.New(),
		byKey:   make(map[int][]*list.Element),
		markers: make(map[int]*list.Element),
		current: make(map[any]struct{}),
	}
}

// Acquire removes and returns the most recently released value for key.
func (b *LruBucketsPoolBackend[V]) Acquire(key int) (V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero V
	if m, ok := b.markers[key]; ok {
		b.recency.MoveToFront(m)
	}
	elems := b.byKey[key]
	n := len(elems)
	if n == 0 {
		return zero, false
	}
	e := elems[n-1]
	b.dropLast(key)
	b.recency.Remove(e)
	v := e.Value.(*lruEntry[V]).value
	delete(b.current, identity(v))
	if n == 1 {
		b.markers[key] = b.recency.PushFront(&lruEntry[V]{key: key, marker: true})
	}
	return v, true
}

// Release pools v under key at the front of the recency list. A value that
// is already pooled is ignored.
func (b *LruBucketsPoolBackend[V]) Release(key int, v V) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := identity(v)
	if _, ok := b.current[id]; ok {
		return
	}
	b.current[id] = struct{}{}

	if m, ok := b.markers[key]; ok {
		b.recency.Remove(m)
		delete(b.markers, key)
	}
	e := b.recency.PushFront(&lruEntry[V]{key: key, value: v})
	b.byKey[key] = append(b.byKey[key], e)
}

// Put pools v under its size.
func (b *LruBucketsPoolBackend[V]) Put(v V) {
	b.Release(b.sizeOf(v), v)
}

// Get acquires a value of exactly size.
func (b *LruBucketsPoolBackend[V]) Get(size int) (V, bool) {
	return b.Acquire(size)
}

// SizeOf returns the key Put would use for v.
func (b *LruBucketsPoolBackend[V]) SizeOf(v V) int {
	return b.sizeOf(v)
}

// RemoveFromEnd evicts the least recently released value across all keys.
func (b *LruBucketsPoolBackend[V]) RemoveFromEnd() (V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero V
	for e := b.recency.Back(); e != nil; e = b.recency.Back() {
		entry := e.Value.(*lruEntry[V])
		b.recency.Remove(e)
		if entry.marker {
			delete(b.markers, entry.key)
			continue
		}
		// The back entry is the oldest of its key.
		elems := b.byKey[entry.key]
		elems[0] = nil
		if len(elems) == 1 {
			delete(b.byKey, entry.key)
		} else {
			b.byKey[entry.key] = elems[1:]
		}
		delete(b.current, identity(entry.value))
		return entry.value, true
	}
	return zero, false
}

// ValueCount returns the number of pooled values across all keys.
func (b *LruBucketsPoolBackend[V]) ValueCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.current)
}

// CountFor returns the number of pooled values under key.
func (b *LruBucketsPoolBackend[V]) CountFor(key int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byKey[key])
}

// Keys returns the keys present in the recency list, ordered by their most
// recent entry, most recent first.
func (b *LruBucketsPoolBackend[V]) Keys() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := make(map[int]struct{}, len(b.byKey)+len(b.markers))
	keys := make([]int, 0, len(seen))
	for e := b.recency.Front(); e != nil; e = e.Next() {
		k := e.Value.(*lruEntry[V]).key
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// dropLast removes the newest element of key. Callers hold mu.
func (b *LruBucketsPoolBackend[V]) dropLast(key int) {
	elems := b.byKey[key]
	n := len(elems)
	elems[n-1] = nil
	if n == 1 {
		delete(b.byKey, key)
		return
	}
	b.byKey[key] = elems[:n-1]
}
