// Package sloghooks logs rollingdb hook events to a *slog.Logger.
// Rotation-level events are always logged; cache events can be sampled.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/unkn0wn-root/rollingdb"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery    uint64
	SetRejectedEvery uint64
	// Optional cache key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr    atomic.Uint64
	setRejectedCtr atomic.Uint64
}

var _ rollingdb.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Rotated(epoch int64, current, old string) {
	if h.l == nil {
		return
	}
	h.l.Info("rollingdb.rotated",
		"epoch", epoch,
		"current", current,
		"old", old)
}

func (h *Hooks) GenerationDeleted(dir string, size uint64) {
	if h.l == nil {
		return
	}
	h.l.Info("rollingdb.generation_deleted",
		"dir", dir,
		"size", humanize.Bytes(size))
}

func (h *Hooks) DeleteFailed(dir string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("rollingdb.delete_failed",
		"dir", dir,
		"err", err)
}

func (h *Hooks) SettingCarried(name string) {
	if h.l == nil {
		return
	}
	h.l.Debug("rollingdb.setting_carried", "name", name)
}

func (h *Hooks) OrphanRemoved(dir string) {
	if h.l == nil {
		return
	}
	h.l.Warn("rollingdb.orphan_removed", "dir", dir)
}

func (h *Hooks) CacheSelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("rollingdb.cache_self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) CacheSetRejected(storageKey string) {
	if h.l == nil || !sample(h.opts.SetRejectedEvery, &h.setRejectedCtr) {
		return
	}
	h.l.Warn("rollingdb.cache_set_rejected", "key", h.redact(storageKey))
}
