// Package memory delivers memory-pressure signals to pools.
//
// A Registry fans a TrimType out to every registered Trimmable. The
// PressureMonitor samples system and Go heap usage and turns threshold
// crossings into trims on a Registry. Pools never poll either of them.
package memory

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
)

// TrimType names a memory-pressure level.
type TrimType int

const (
	// TrimOnCloseToHeapLimit fires when the Go heap nears its soft limit.
	TrimOnCloseToHeapLimit TrimType = iota
	// TrimOnSystemLowMemoryWhileInForeground fires on low system memory
	// while the process is serving interactive work.
	TrimOnSystemLowMemoryWhileInForeground
	// TrimOnSystemMemoryCriticallyLowWhileInForeground fires on critically
	// low system memory while serving interactive work.
	TrimOnSystemMemoryCriticallyLowWhileInForeground
	// TrimOnSystemLowMemoryWhileInBackground fires on low system memory
	// while the process is idle.
	TrimOnSystemLowMemoryWhileInBackground
	// TrimOnAppBackgrounded fires when the process goes idle.
	TrimOnAppBackgrounded
)

var trimTypeNames = [...]string{
	TrimOnCloseToHeapLimit:                           "close_to_heap_limit",
	TrimOnSystemLowMemoryWhileInForeground:           "low_memory_foreground",
	TrimOnSystemMemoryCriticallyLowWhileInForeground: "critically_low_memory_foreground",
	TrimOnSystemLowMemoryWhileInBackground:           "low_memory_background",
	TrimOnAppBackgrounded:                            "app_backgrounded",
}

// AllTrimTypes lists every level in declaration order.
var AllTrimTypes = []TrimType{
	TrimOnCloseToHeapLimit,
	TrimOnSystemLowMemoryWhileInForeground,
	TrimOnSystemMemoryCriticallyLowWhileInForeground,
	TrimOnSystemLowMemoryWhileInBackground,
	TrimOnAppBackgrounded,
}

func (t TrimType) String() string {
	if t < 0 || int(t) >= len(trimTypeNames) {
		return fmt.Sprintf("trim_type(%d)", int(t))
	}
	return trimTypeNames[t]
}

// SuggestedTrimRatio is the fraction of idle memory a pool should give
// back at this level. 1 means everything.
func (t TrimType) SuggestedTrimRatio() float64 {
	switch t {
	case TrimOnSystemLowMemoryWhileInBackground, TrimOnAppBackgrounded:
		return 1.0
	default:
		return 0.5
	}
}

// ParseTrimType maps a name from String back to its TrimType.
func ParseTrimType(s string) (TrimType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range trimTypeNames {
		if name == s {
			return TrimType(i), nil
		}
	}
	return 0, poolerrors.New(poolerrors.ErrorTypeValidation, "unknown trim type").
		WithDetail("trim_type", s)
}

// Trimmable is implemented by anything that can drop idle memory on request.
type Trimmable interface {
	Trim(trimType TrimType)
}

// TrimmableFunc adapts a function to Trimmable. Function values are not
// comparable: a Registry never dedupes or unregisters them, so register a
// pointer to one if it must be unregistered.
type TrimmableFunc func(trimType TrimType)

// Trim calls f(trimType).
func (f TrimmableFunc) Trim(trimType TrimType) {
	f(trimType)
}
