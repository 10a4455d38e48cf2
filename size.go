package rollingdb

import (
	"io/fs"
	"path/filepath"
)

// Stats is an operational snapshot of the store.
type Stats struct {
	Root                 string
	Current              string
	Old                  string
	CurrentCreationEpoch int64
	CurrentSize          uint64
	OldSize              uint64
	// Engine-reported sizes; the fields above walk the whole directory.
	CurrentEngineSize uint64
	OldEngineSize     uint64
}

// TotalSize is CurrentSize + OldSize.
func (s Stats) TotalSize() uint64 { return s.CurrentSize + s.OldSize }

// CurrentSize is the on-disk footprint of the current generation directory.
func (db *RollingDB) CurrentSize() (uint64, error) {
	g, err := db.pinCurrent()
	if err != nil {
		return 0, err
	}
	defer g.inflight.Done()
	return dirSize(g.dir)
}

// OldSize is the on-disk footprint of the old generation directory.
func (db *RollingDB) OldSize() (uint64, error) {
	g, err := db.pinOld()
	if err != nil {
		return 0, err
	}
	defer g.inflight.Done()
	return dirSize(g.dir)
}

// TotalSize sums both generations. Files under the root that belong to
// neither generation are not counted.
func (db *RollingDB) TotalSize() (uint64, error) {
	gens, release, err := db.pin()
	if err != nil {
		return 0, err
	}
	defer release()

	var total uint64
	for _, g := range gens {
		n, err := dirSize(g.dir)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Stats reports generation names, creation epoch and sizes from one
// consistent pair of generations.
func (db *RollingDB) Stats() (Stats, error) {
	db.idxMu.RLock()
	epoch := db.idx.CurrentCreationEpoch
	gens, release, err := db.pin()
	db.idxMu.RUnlock()
	if err != nil {
		return Stats{}, err
	}
	defer release()

	st := Stats{
		Root:                 db.root,
		Current:              gens[0].name,
		Old:                  gens[1].name,
		CurrentCreationEpoch: epoch,
	}
	if st.CurrentSize, err = dirSize(gens[0].dir); err != nil {
		return Stats{}, err
	}
	if st.OldSize, err = dirSize(gens[1].dir); err != nil {
		return Stats{}, err
	}
	if st.CurrentEngineSize, err = gens[0].SizeOnDisk(); err != nil {
		return Stats{}, err
	}
	if st.OldEngineSize, err = gens[1].SizeOnDisk(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// dirSize sums regular file sizes below dir.
func dirSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err
}
