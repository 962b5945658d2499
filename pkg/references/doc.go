// Package references implements manual reference counting for pooled
// resources.
//
// A SharedReference owns one value and a releaser. It starts with a count of
// one; the releaser runs exactly once, when the count drops to zero.
// CloseableReference is the handle callers hold: Clone adds a reference and
// returns a new handle onto the same cell, Close drops this handle's
// reference. Closing a handle twice is a no-op, while deleting more
// references from a SharedReference than it holds panics.
//
// # Basic Usage
//
//	buf, err := byteArrayPool.Get(4096)
//	if err != nil {
//	    return err
//	}
//	ref := references.Of(buf, byteArrayPool)
//	defer ref.Close()
//
//	// Hand a second owner its own handle
//	other, err := ref.Clone()
//	if err != nil {
//	    return err
//	}
//	go consume(other) // consume closes other when done
//
// # Leak Tracking
//
// SetLeakListener installs a callback for handles that become unreachable
// without being closed. Tracked handles carry a finalizer that reports the
// leak and closes the handle, so the resource still returns to its pool.
// Tracking is off by default because finalizers delay collection.
package references
