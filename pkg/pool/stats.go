package pool

// StatsTracker observes pool activity. Calls are made with the pool lock
// held, so implementations must be fast and must not call back into the
// pool. Tracking never affects pool behavior.
type StatsTracker interface {
	// OnValueReuse is called when Get is served from a free list.
	OnValueReuse(bucketedSize, sizeInBytes int)
	// OnAlloc is called after a new value is allocated.
	OnAlloc(bucketedSize, sizeInBytes int)
	// OnFree is called after a value is physically freed.
	OnFree(bucketedSize, sizeInBytes int)
	// OnValueRelease is called when a released value joins a free list.
	OnValueRelease(bucketedSize, sizeInBytes int)
	// OnTrim is called once per bucket a trim evicted from.
	OnTrim(bucketedSize, sizeInBytes, count int)
	// OnSoftCapReached is called when used plus free bytes pass the soft cap.
	OnSoftCapReached()
	// OnHardCapReached is called when an allocation is refused.
	OnHardCapReached()
}

// NoOpStatsTracker discards all events.
type NoOpStatsTracker struct{}

func (NoOpStatsTracker) OnValueReuse(int, int)   {}
func (NoOpStatsTracker) OnAlloc(int, int)        {}
func (NoOpStatsTracker) OnFree(int, int)         {}
func (NoOpStatsTracker) OnValueRelease(int, int) {}
func (NoOpStatsTracker) OnTrim(int, int, int)    {}
func (NoOpStatsTracker) OnSoftCapReached()       {}
func (NoOpStatsTracker) OnHardCapReached()       {}

// BucketStats describes one bucket.
type BucketStats struct {
	BucketedSize int `json:"bucketed_size" yaml:"bucketed_size"`
	SizeInBytes  int `json:"size_in_bytes" yaml:"size_in_bytes"`
	MaxLength    int `json:"max_length" yaml:"max_length"`
	InUse        int `json:"in_use" yaml:"in_use"`
	Free         int `json:"free" yaml:"free"`
}

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Name      string        `json:"name" yaml:"name"`
	SoftCap   int           `json:"soft_cap" yaml:"soft_cap"`
	HardCap   int           `json:"hard_cap" yaml:"hard_cap"`
	UsedCount int           `json:"used_count" yaml:"used_count"`
	UsedBytes int           `json:"used_bytes" yaml:"used_bytes"`
	FreeCount int           `json:"free_count" yaml:"free_count"`
	FreeBytes int           `json:"free_bytes" yaml:"free_bytes"`
	Buckets   []BucketStats `json:"buckets" yaml:"buckets"`
}
