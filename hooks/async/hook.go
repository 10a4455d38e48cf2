// Package asynchook moves rollingdb hook calls onto a bounded queue so a slow
// sink never stalls Rotate or a cache read. Events are dropped when the queue
// is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	db, _ := rollingdb.LoadOrCreate(rollingdb.Options{Root: dir, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/rollingdb"
)

type Hooks struct {
	inner   rollingdb.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Uint64
}

var _ rollingdb.Hooks = (*Hooks)(nil)

func New(inner rollingdb.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed wrapper.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Rotated(epoch int64, cur, old string) {
	h.try(func() { h.inner.Rotated(epoch, cur, old) })
}
func (h *Hooks) GenerationDeleted(dir string, size uint64) {
	h.try(func() { h.inner.GenerationDeleted(dir, size) })
}
func (h *Hooks) DeleteFailed(dir string, err error) { h.try(func() { h.inner.DeleteFailed(dir, err) }) }
func (h *Hooks) SettingCarried(name string)         { h.try(func() { h.inner.SettingCarried(name) }) }
func (h *Hooks) OrphanRemoved(dir string)           { h.try(func() { h.inner.OrphanRemoved(dir) }) }
func (h *Hooks) CacheSelfHeal(k, r string)          { h.try(func() { h.inner.CacheSelfHeal(k, r) }) }
func (h *Hooks) CacheSetRejected(k string)          { h.try(func() { h.inner.CacheSetRejected(k) }) }
