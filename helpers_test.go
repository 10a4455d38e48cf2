package rollingdb

import (
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/unkn0wn-root/rollingdb/engine/boltdb"
)

func sum(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	c, err := cid.NewPrefixV1(cid.Raw, multihash.SHA2_256).Sum(data)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	return c
}

func openDB(t *testing.T, root string, mod func(*Options)) *RollingDB {
	t.Helper()
	opts := Options{
		Root:   root,
		Opener: boltdb.NewOpener(boltdb.Config{NoSync: true}),
	}
	if mod != nil {
		mod(&opts)
	}
	db, err := LoadOrCreate(opts)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// genDirs lists generation-shaped directories under root.
func genDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && isGenerationName(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func mustGet(t *testing.T, s Blockstore, k cid.Cid, want []byte) {
	t.Helper()
	v, ok, err := s.Get(k)
	if err != nil || !ok {
		t.Fatalf("Get %s: ok=%v err=%v", k, ok, err)
	}
	if string(v) != string(want) {
		t.Fatalf("Get %s: got %q want %q", k, v, want)
	}
}

func mustMiss(t *testing.T, s Blockstore, k cid.Cid) {
	t.Helper()
	v, ok, err := s.Get(k)
	if err != nil || ok {
		t.Fatalf("Get %s: expected miss, got ok=%v err=%v val=%q", k, ok, err, v)
	}
}

type recHooks struct {
	NopHooks
	mu       sync.Mutex
	rotated  []int64
	deleted  []string
	failed   []string
	carried  []string
	orphans  []string
	heals    []string
	rejected []string
}

func (h *recHooks) Rotated(epoch int64, _, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rotated = append(h.rotated, epoch)
}

func (h *recHooks) GenerationDeleted(dir string, _ uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, dir)
}

func (h *recHooks) DeleteFailed(dir string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, dir)
}

func (h *recHooks) SettingCarried(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.carried = append(h.carried, name)
}

func (h *recHooks) OrphanRemoved(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.orphans = append(h.orphans, dir)
}

func (h *recHooks) CacheSelfHeal(_, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.heals = append(h.heals, reason)
}

func (h *recHooks) CacheSetRejected(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, key)
}

type logEntry struct {
	level string
	msg   string
	f     Fields
}

type recLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recLogger) add(level, msg string, f Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, f: f})
}

func (l *recLogger) Debug(msg string, f Fields) { l.add("debug", msg, f) }
func (l *recLogger) Info(msg string, f Fields)  { l.add("info", msg, f) }
func (l *recLogger) Warn(msg string, f Fields)  { l.add("warn", msg, f) }
func (l *recLogger) Error(msg string, f Fields) { l.add("error", msg, f) }

// find returns the first entry at level with msg.
func (l *recLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}
