package rollingdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/unkn0wn-root/rollingdb/engine"
	"github.com/unkn0wn-root/rollingdb/engine/boltdb"
)

const dirPermissions = 0700

// generation is a shared handle on one engine. inflight counts readers and
// writers that picked the handle out of a slot; it is only waited on after the
// generation has left both slots, so no Add can race the Wait.
type generation struct {
	engine.Engine
	name     string
	dir      string
	inflight sync.WaitGroup
}

type slot struct {
	mu  sync.RWMutex
	gen *generation
}

// RollingDB keeps two generations of a content-addressed store. Reads consult
// current then old; writes go to current. Rotate promotes a fresh generation,
// demotes current to old and deletes the previous old from disk.
//
// Lock order: idxMu, then settingsMu, then current.mu, then old.mu.
type RollingDB struct {
	root   string
	opener engine.Opener
	log    Logger
	hooks  Hooks

	idxMu sync.RWMutex // guards idx; held for the whole of Rotate and Close
	idx   *indexFile

	current slot
	old     slot
	closed  bool // written under both slot locks

	settingsMu sync.Mutex // serializes setting writes with carry-forward

	removeAll func(string) error
}

// LoadOrCreate opens the store under opts.Root, creating the directory, the
// index and both generations as needed.
func LoadOrCreate(opts Options) (*RollingDB, error) {
	if opts.Root == "" {
		return nil, ErrRootRequired
	}
	if err := os.MkdirAll(opts.Root, dirPermissions); err != nil {
		return nil, fmt.Errorf("rollingdb: create root %s: %w", opts.Root, err)
	}

	db := &RollingDB{
		root:      opts.Root,
		opener:    coalesce[engine.Opener](opts.Opener, boltdb.NewOpener(boltdb.Config{})),
		hooks:     coalesce[Hooks](opts.Hooks, NopHooks{}),
		removeAll: os.RemoveAll,
	}
	db.log = withFields{
		l:    coalesce[Logger](opts.Logger, NopLogger{}),
		base: Fields{"root": opts.Root},
	}

	idx, err := loadOrCreateIndex(filepath.Join(opts.Root, IndexFileName))
	if err != nil {
		return nil, err
	}
	db.idx = idx

	cur, err := db.openGeneration(idx.Current)
	if err != nil {
		return nil, err
	}
	old, err := db.openGeneration(idx.Old)
	if err != nil {
		var oe *OpenError
		if errors.As(err, &oe) {
			oe.CloseErr = cur.Close()
		}
		return nil, err
	}
	db.current.gen = cur
	db.old.gen = old

	if !opts.KeepOrphans {
		db.removeOrphans()
	}

	db.log.Info("rolling store ready", Fields{
		"current":                idx.Current,
		"old":                    idx.Old,
		"current_creation_epoch": idx.CurrentCreationEpoch,
	})
	return db, nil
}

// openGeneration opens name under the root, creating it if missing.
func (db *RollingDB) openGeneration(name string) (*generation, error) {
	dir := filepath.Join(db.root, name)
	e, err := db.opener.Open(dir)
	if errors.Is(err, engine.ErrNotExist) {
		db.log.Debug("generation missing, creating", Fields{"name": name})
		e, err = db.opener.Create(dir)
	}
	if err != nil {
		return nil, &OpenError{Name: name, Dir: dir, OpenErr: err}
	}
	return &generation{Engine: e, name: name, dir: dir}, nil
}

func (db *RollingDB) createGeneration(name string) (*generation, error) {
	dir := filepath.Join(db.root, name)
	e, err := db.opener.Create(dir)
	if err != nil {
		return nil, &OpenError{Name: name, Dir: dir, OpenErr: err}
	}
	return &generation{Engine: e, name: name, dir: dir}, nil
}

// pin returns current and old, in that order, as a consistent pair from the
// same rotation. The caller must call release when done.
func (db *RollingDB) pin() (gens [2]*generation, release func(), err error) {
	db.current.mu.RLock()
	db.old.mu.RLock()
	if db.closed {
		db.old.mu.RUnlock()
		db.current.mu.RUnlock()
		return gens, nil, ErrClosed
	}
	cur, old := db.current.gen, db.old.gen
	cur.inflight.Add(1)
	old.inflight.Add(1)
	db.old.mu.RUnlock()
	db.current.mu.RUnlock()

	return [2]*generation{cur, old}, func() {
		cur.inflight.Done()
		old.inflight.Done()
	}, nil
}

// pinCurrent returns the write target. The caller must call Done on inflight.
func (db *RollingDB) pinCurrent() (*generation, error) {
	db.current.mu.RLock()
	defer db.current.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	g := db.current.gen
	g.inflight.Add(1)
	return g, nil
}

func (db *RollingDB) pinOld() (*generation, error) {
	db.old.mu.RLock()
	defer db.old.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	g := db.old.gen
	g.inflight.Add(1)
	return g, nil
}

func (db *RollingDB) Get(k cid.Cid) ([]byte, bool, error) {
	gens, release, err := db.pin()
	if err != nil {
		return nil, false, err
	}
	defer release()

	for _, g := range gens {
		v, ok, err := g.Get(k)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

func (db *RollingDB) Has(k cid.Cid) (bool, error) {
	gens, release, err := db.pin()
	if err != nil {
		return false, err
	}
	defer release()

	for _, g := range gens {
		ok, err := g.Has(k)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (db *RollingDB) Put(codec uint64, data []byte) (cid.Cid, error) {
	k, err := cid.NewPrefixV1(codec, multihash.SHA2_256).Sum(data)
	if err != nil {
		return cid.Undef, fmt.Errorf("rollingdb: hash block: %w", err)
	}
	return k, db.PutKeyed(k, data)
}

func (db *RollingDB) PutKeyed(k cid.Cid, data []byte) error {
	g, err := db.pinCurrent()
	if err != nil {
		return err
	}
	defer g.inflight.Done()
	return g.Put(k, data)
}

func (db *RollingDB) PutMany(blocks []Block) error {
	g, err := db.pinCurrent()
	if err != nil {
		return err
	}
	defer g.inflight.Done()
	return g.PutMany(blocks)
}

// Rotate makes a fresh generation current, demotes current to old and
// deletes the generation that was old. epoch is recorded as the creation
// epoch of the new current generation.
//
// The index is synced before anything is deleted: a crash in between leaves
// an index that names two generations that both still exist.
//
// If the sync fails Rotate returns an *IndexError and the swap is kept in
// memory, but the on-disk index still names the previous pair. The fresh
// generation is an orphan to the next LoadOrCreate and is removed there, so
// anything written after the error is lost on restart. Callers should stop
// writing and reopen the store.
func (db *RollingDB) Rotate(epoch int64) error {
	db.idxMu.Lock()
	defer db.idxMu.Unlock()

	db.current.mu.RLock()
	closed := db.closed
	db.current.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	name := newGenerationName()
	fresh, err := db.createGeneration(name)
	if err != nil {
		return err
	}
	db.log.Info("setting new current generation", Fields{"name": name, "epoch": epoch})

	db.current.mu.Lock()
	db.old.mu.Lock()
	superseded := db.old.gen
	db.old.gen = db.current.gen
	db.current.gen = fresh
	db.old.mu.Unlock()
	db.current.mu.Unlock()

	db.idx.Old = db.idx.Current
	db.idx.Current = name
	db.idx.CurrentCreationEpoch = epoch
	if err := db.idx.sync(); err != nil {
		// the on-disk index still names superseded, so it must stay on disk;
		// a later successful sync turns it into an orphan
		db.log.Error("index sync failed during rotation", Fields{"err": err})
		superseded.inflight.Wait()
		if cerr := superseded.Close(); cerr != nil {
			db.log.Warn("closing superseded generation", Fields{"name": superseded.name, "err": cerr})
		}
		return err
	}

	db.retire(superseded)
	db.hooks.Rotated(epoch, db.idx.Current, db.idx.Old)

	return db.transferSettings()
}

// retire waits for every holder of g, closes it and deletes its directory.
// Deletion failure leaks space but never correctness: the index no longer
// names g.
func (db *RollingDB) retire(g *generation) {
	g.inflight.Wait()
	if err := g.Close(); err != nil {
		db.log.Warn("closing superseded generation", Fields{"name": g.name, "err": err})
	}

	size, _ := dirSize(g.dir)
	if err := db.removeAll(g.dir); err != nil {
		db.log.Warn("error deleting generation", Fields{
			"dir":  g.dir,
			"size": bytesHuman(size),
			"err":  err,
		})
		db.hooks.DeleteFailed(g.dir, err)
		return
	}
	db.log.Info("deleted generation", Fields{"dir": g.dir, "size": bytesHuman(size)})
	db.hooks.GenerationDeleted(g.dir, size)
}

// removeOrphans deletes generation-shaped directories the index does not name,
// e.g. left behind by a crash between index sync and deletion.
func (db *RollingDB) removeOrphans() {
	entries, err := os.ReadDir(db.root)
	if err != nil {
		db.log.Warn("listing root for orphans", Fields{"err": err})
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !isGenerationName(name) || name == db.idx.Current || name == db.idx.Old {
			continue
		}
		dir := filepath.Join(db.root, name)
		size, _ := dirSize(dir)
		if err := db.removeAll(dir); err != nil {
			db.log.Warn("error deleting orphan generation", Fields{"dir": dir, "err": err})
			continue
		}
		db.log.Info("deleted orphan generation", Fields{"dir": dir, "size": bytesHuman(size)})
		db.hooks.OrphanRemoved(dir)
	}
}

// CurrentCreationEpoch is the epoch passed to the Rotate that created current.
func (db *RollingDB) CurrentCreationEpoch() int64 {
	db.idxMu.RLock()
	defer db.idxMu.RUnlock()
	return db.idx.CurrentCreationEpoch
}

// CurrentName is the directory name of the current generation.
func (db *RollingDB) CurrentName() string {
	db.current.mu.RLock()
	defer db.current.mu.RUnlock()
	return db.current.gen.name
}

// OldName is the directory name of the old generation.
func (db *RollingDB) OldName() string {
	db.old.mu.RLock()
	defer db.old.mu.RUnlock()
	return db.old.gen.name
}

// Root is the storage root directory.
func (db *RollingDB) Root() string { return db.root }

// Close waits for in-flight operations and releases both generations.
// Subsequent calls return ErrClosed from every operation; Close itself is idempotent.
func (db *RollingDB) Close() error {
	db.idxMu.Lock()
	defer db.idxMu.Unlock()

	db.current.mu.Lock()
	db.old.mu.Lock()
	if db.closed {
		db.old.mu.Unlock()
		db.current.mu.Unlock()
		return nil
	}
	db.closed = true
	gens := []*generation{db.current.gen, db.old.gen}
	db.old.mu.Unlock()
	db.current.mu.Unlock()

	var errs []error
	for _, g := range gens {
		g.inflight.Wait()
		if err := g.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", g.name, err))
		}
	}
	db.log.Debug("rolling store closed", nil)
	return errors.Join(errs...)
}

// sortedUnion merges name lists from both generations.
func sortedUnion(lists ...[]string) []string {
	set := make(map[string]struct{})
	for _, l := range lists {
		for _, n := range l {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
