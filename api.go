package rollingdb

import (
	"time"

	"github.com/ipfs/go-cid"

	"github.com/unkn0wn-root/rollingdb/engine"
	pr "github.com/unkn0wn-root/rollingdb/provider"
)

type SetCostFunc func(key string, raw []byte, isBulk bool, bulkCount int) int64

// Block is a content-addressed payload.
type Block = engine.Block

// Blockstore is the content-addressed surface. Reads fan out across both live
// generations; writes always land in the current one.
type Blockstore interface {
	Get(k cid.Cid) (data []byte, ok bool, err error)
	Has(k cid.Cid) (bool, error)
	// Put hashes data with sha2-256 under the given multicodec and stores it.
	Put(codec uint64, data []byte) (cid.Cid, error)
	PutKeyed(k cid.Cid, data []byte) error
	PutMany(blocks []Block) error
}

// SettingsStore is the named-metadata side channel. Settings are not
// content-addressed; they survive rotations by being carried forward.
type SettingsStore interface {
	ReadSetting(name string) (value []byte, ok bool, err error)
	WriteSetting(name string, value []byte) error
	SettingExists(name string) (bool, error)
	SettingNames() ([]string, error)
}

var (
	_ Blockstore    = (*RollingDB)(nil)
	_ SettingsStore = (*RollingDB)(nil)
	_ Blockstore    = (*CachedStore)(nil)
)

// Options configure LoadOrCreate. Only Root is required.
type Options struct {
	// Required
	Root string // directory holding the index and both generations

	Opener      engine.Opener // nil => bbolt with boltdb.Config defaults
	Logger      Logger        // if nil, NopLogger is used
	Hooks       Hooks         // if nil, NopHooks is used
	KeepOrphans bool          // default false => remove unindexed generation dirs at startup
}

// CacheOptions configure NewCachedStore. Store and Provider are required.
type CacheOptions struct {
	// Required
	Store    *RollingDB
	Provider pr.Provider

	Logger         Logger        // if nil, NopLogger is used
	Hooks          Hooks         // if nil, NopHooks is used
	DefaultTTL     time.Duration // singles; 0 => 10m
	BulkTTL        time.Duration // GetMany entries; 0 => 10m
	Disabled       bool          // default false (enabled); disabled => pass-through
	ComputeSetCost SetCostFunc   // default 1
	DisableBulk    bool          // default false => GetMany caches whole sets
}
