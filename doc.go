// Package rollingdb implements a generational, rotating block store: the
// persistent layer of a chain node that only needs recent history.
//
// Components:
//   - RollingDB: two live generations, current and old, each an engine.Engine
//     in its own directory under the root. Reads try current then old; writes
//     go to current.
//   - Index: db_index.yaml under the root names both generations and the epoch
//     at which current was created. It is rewritten atomically on every rotation.
//   - Settings: small named values written to current and carried forward into
//     each new generation, so they survive any number of rotations.
//   - CachedStore: optional read-through cache over a provider.Provider
//     (Ristretto, BigCache, Redis).
//
// Rotation:
//
//	db.Rotate(epoch) // new current; current => old; previous old deleted
//
// A block written before a rotation stays readable until the rotation after
// next. Callers that must keep a block alive rewrite it into current.
//
// Cache keys:
//
//	blk:<generation>:<cid>    - single blocks
//	bulk:<generation>:<hash>  - GetMany sets (hash over the member cids)
package rollingdb
