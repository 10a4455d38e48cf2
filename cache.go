package rollingdb

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/unkn0wn-root/rollingdb/internal/util"
	"github.com/unkn0wn-root/rollingdb/internal/wire"
	pr "github.com/unkn0wn-root/rollingdb/provider"
)

const defaultCacheTTL = 10 * time.Minute

// CachedStore is a read-through block cache in front of a RollingDB.
//
// Entries are keyed by the name of the generation that was current when they
// were filled, so a rotation orphans every entry at once and a pruned block
// can never be served. Writes bypass the cache.
type CachedStore struct {
	db       *RollingDB
	provider pr.Provider
	log      Logger
	hooks    Hooks

	enabled        bool
	bulk           bool
	defaultTTL     time.Duration
	bulkTTL        time.Duration
	computeSetCost SetCostFunc
}

func NewCachedStore(opts CacheOptions) (*CachedStore, error) {
	if opts.Store == nil {
		return nil, errors.New("rollingdb: store is required")
	}
	if opts.Provider == nil {
		return nil, errors.New("rollingdb: provider is required")
	}

	c := &CachedStore{
		db:       opts.Store,
		provider: opts.Provider,
		enabled:  !opts.Disabled,
		bulk:     !opts.DisableBulk,
	}

	defaultCost := SetCostFunc(func(_ string, _ []byte, _ bool, _ int) int64 { return 1 })
	if opts.ComputeSetCost != nil {
		c.computeSetCost = opts.ComputeSetCost
	} else {
		c.computeSetCost = defaultCost
	}

	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultCacheTTL)
	c.bulkTTL = coalesce[time.Duration](opts.BulkTTL, defaultCacheTTL)
	return c, nil
}

func (c *CachedStore) Enabled() bool { return c.enabled }

// Store returns the underlying rolling store.
func (c *CachedStore) Store() *RollingDB { return c.db }

func (c *CachedStore) Get(k cid.Cid) ([]byte, bool, error) {
	if !c.enabled {
		return c.db.Get(k)
	}
	ctx := context.Background()
	key := c.blockKey(k)

	if v, ok := c.lookup(ctx, key, k); ok {
		return v, true, nil
	}

	v, ok, err := c.db.Get(k)
	if err != nil || !ok {
		return v, ok, err
	}
	c.fill(ctx, key, k, v)
	return v, true, nil
}

// Has answers from the cache when it can. A hit is only possible while the
// generation that filled it is still current, so the block is still live.
func (c *CachedStore) Has(k cid.Cid) (bool, error) {
	if c.enabled {
		if _, ok := c.lookup(context.Background(), c.blockKey(k), k); ok {
			return true, nil
		}
	}
	return c.db.Has(k)
}

func (c *CachedStore) Put(codec uint64, data []byte) (cid.Cid, error) {
	return c.db.Put(codec, data)
}

func (c *CachedStore) PutKeyed(k cid.Cid, data []byte) error {
	return c.db.PutKeyed(k, data)
}

func (c *CachedStore) PutMany(blocks []Block) error {
	return c.db.PutMany(blocks)
}

// GetMany returns the blocks found, in request order, and the keys that are
// in neither generation. With bulk enabled the whole set is cached under one
// entry once every member has been found.
func (c *CachedStore) GetMany(keys []cid.Cid) ([]Block, []cid.Cid, error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}
	ctx := context.Background()

	var bk string
	if c.enabled && c.bulk && len(keys) > 1 {
		bk = c.bulkKey(keys)
		if found, ok := c.lookupBulk(ctx, bk, keys); ok {
			return found, nil, nil
		}
	}

	var (
		found   []Block
		missing []cid.Cid
	)
	for _, k := range keys {
		v, ok, err := c.Get(k)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			missing = append(missing, k)
			continue
		}
		found = append(found, Block{Cid: k, Data: v})
	}

	if bk != "" && len(missing) == 0 {
		c.fillBulk(ctx, bk, found)
	}
	return found, missing, nil
}

// Close releases the provider. The rolling store is owned by the caller.
func (c *CachedStore) Close(ctx context.Context) error {
	if c.provider != nil {
		return c.provider.Close(ctx)
	}
	return nil
}

// lookup returns a private copy of the cached payload for k.
func (c *CachedStore) lookup(ctx context.Context, key string, k cid.Cid) ([]byte, bool) {
	raw, ok, err := c.provider.Get(ctx, key)
	if err != nil {
		c.log.Warn("cache get failed, reading store", Fields{"key": key, "err": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	id, payload, err := wire.DecodeBlock(raw)
	if err != nil {
		c.heal(ctx, key, "corrupt")
		return nil, false
	}
	if !bytes.Equal(id, k.Bytes()) {
		c.heal(ctx, key, "cid_mismatch")
		return nil, false
	}
	return bytes.Clone(payload), true
}

func (c *CachedStore) lookupBulk(ctx context.Context, bk string, keys []cid.Cid) ([]Block, bool) {
	raw, ok, err := c.provider.Get(ctx, bk)
	if err != nil {
		c.log.Warn("bulk cache get failed, reading store", Fields{"bulkKey": bk, "err": err})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	items, err := wire.DecodeBulk(raw)
	if err != nil {
		c.heal(ctx, bk, "corrupt")
		return nil, false
	}
	byCid := make(map[string][]byte, len(items))
	for _, it := range items {
		byCid[string(it.Cid)] = it.Payload
	}
	out := make([]Block, 0, len(keys))
	for _, k := range keys {
		v, ok := byCid[string(k.Bytes())]
		if !ok {
			// hash collision or foreign write
			c.heal(ctx, bk, "cid_mismatch")
			return nil, false
		}
		out = append(out, Block{Cid: k, Data: bytes.Clone(v)})
	}
	return out, true
}

func (c *CachedStore) fill(ctx context.Context, key string, k cid.Cid, v []byte) {
	wireb, err := wire.EncodeBlock(k.Bytes(), v)
	if err != nil {
		c.log.Debug("block not cacheable", Fields{"key": key, "err": err})
		return
	}
	ok, err := c.provider.Set(ctx, key, wireb, c.computeSetCost(key, wireb, false, 1), c.defaultTTL)
	if err != nil {
		c.log.Warn("cache set failed", Fields{"key": key, "err": err})
		return
	}
	if !ok {
		c.log.Debug("cache set rejected by provider (pressure)", Fields{"key": key})
		c.hooks.CacheSetRejected(key)
	}
}

func (c *CachedStore) fillBulk(ctx context.Context, bk string, blocks []Block) {
	items := make([]wire.BulkItem, len(blocks))
	for i, b := range blocks {
		items[i] = wire.BulkItem{Cid: b.Cid.Bytes(), Payload: b.Data}
	}
	wireb, err := wire.EncodeBulk(items)
	if err != nil {
		c.log.Debug("bulk not cacheable", Fields{"bulkKey": bk, "err": err})
		return
	}
	ok, err := c.provider.Set(ctx, bk, wireb, c.computeSetCost(bk, wireb, true, len(items)), c.bulkTTL)
	if err != nil {
		c.log.Warn("bulk cache set failed", Fields{"bulkKey": bk, "err": err})
		return
	}
	if !ok {
		c.log.Debug("bulk set rejected by provider (pressure)", Fields{"bulkKey": bk})
		c.hooks.CacheSetRejected(bk)
	}
}

func (c *CachedStore) heal(ctx context.Context, key, reason string) {
	_ = c.provider.Del(ctx, key)
	c.log.Debug("dropped cache entry", Fields{"key": key, "reason": reason})
	c.hooks.CacheSelfHeal(key, reason)
}

func (c *CachedStore) blockKey(k cid.Cid) string {
	return util.BlockKey(c.db.CurrentName(), k.String())
}

func (c *CachedStore) bulkKey(keys []cid.Cid) string {
	members := make([]string, len(keys))
	for i, k := range keys {
		members[i] = k.String()
	}
	return util.BulkKey("bulk:"+c.db.CurrentName(), members)
}
