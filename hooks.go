package rollingdb

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; wrap slow sinks with hooks/async.
type Hooks interface {
	// A rotation completed: current is the fresh generation, old the demoted one.
	Rotated(epoch int64, current, old string)

	// A superseded generation directory was removed from disk.
	GenerationDeleted(dir string, size uint64)

	// Removing a superseded generation failed. Disk space leaks; correctness holds.
	DeleteFailed(dir string, err error)

	// A setting missing from the new current generation was copied into it.
	SettingCarried(name string)

	// A directory not named by the index was removed at startup.
	OrphanRemoved(dir string)

	// A cache entry was dropped on read.
	// reason ∈ {"corrupt", "cid_mismatch"}
	CacheSelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	CacheSetRejected(storageKey string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Rotated(int64, string, string)    {}
func (NopHooks) GenerationDeleted(string, uint64) {}
func (NopHooks) DeleteFailed(string, error)       {}
func (NopHooks) SettingCarried(string)            {}
func (NopHooks) OrphanRemoved(string)             {}
func (NopHooks) CacheSelfHeal(string, string)     {}
func (NopHooks) CacheSetRejected(string)          {}
