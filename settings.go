package rollingdb

import (
	"fmt"

	"github.com/unkn0wn-root/rollingdb/codec"
)

// ReadSetting returns the value from current, falling back to old.
func (db *RollingDB) ReadSetting(name string) ([]byte, bool, error) {
	gens, release, err := db.pin()
	if err != nil {
		return nil, false, err
	}
	defer release()
	return readSetting(gens, name)
}

func readSetting(gens [2]*generation, name string) ([]byte, bool, error) {
	for _, g := range gens {
		v, ok, err := g.ReadSetting(name)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// WriteSetting stores value in the current generation only.
func (db *RollingDB) WriteSetting(name string, value []byte) error {
	db.settingsMu.Lock()
	defer db.settingsMu.Unlock()

	g, err := db.pinCurrent()
	if err != nil {
		return err
	}
	defer g.inflight.Done()
	return g.WriteSetting(name, value)
}

func (db *RollingDB) SettingExists(name string) (bool, error) {
	gens, release, err := db.pin()
	if err != nil {
		return false, err
	}
	defer release()

	for _, g := range gens {
		ok, err := g.SettingExists(name)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// SettingNames is the sorted union of names across both generations.
func (db *RollingDB) SettingNames() ([]string, error) {
	gens, release, err := db.pin()
	if err != nil {
		return nil, err
	}
	defer release()

	cur, err := gens[0].SettingNames()
	if err != nil {
		return nil, err
	}
	old, err := gens[1].SettingNames()
	if err != nil {
		return nil, err
	}
	return sortedUnion(cur, old), nil
}

// transferSettings copies every setting missing from current out of old.
// Holding settingsMu keeps a concurrent WriteSetting from being overwritten
// by the older value.
func (db *RollingDB) transferSettings() error {
	db.settingsMu.Lock()
	defer db.settingsMu.Unlock()

	gens, release, err := db.pin()
	if err != nil {
		return err
	}
	defer release()
	cur, old := gens[0], gens[1]

	names, err := old.SettingNames()
	if err != nil {
		return fmt.Errorf("rollingdb: list settings in %s: %w", old.name, err)
	}
	for _, name := range names {
		ok, err := cur.SettingExists(name)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		v, ok, err := old.ReadSetting(name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := cur.WriteSetting(name, v); err != nil {
			return fmt.Errorf("rollingdb: carry setting %q: %w", name, err)
		}
		db.log.Debug("carried setting forward", Fields{"name": name, "to": cur.name})
		db.hooks.SettingCarried(name)
	}
	return nil
}

// ReadSettingObject reads and decodes a typed setting.
func ReadSettingObject[V any](s SettingsStore, name string, c codec.Codec[V]) (V, bool, error) {
	var zero V
	raw, ok, err := s.ReadSetting(name)
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := c.Decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("rollingdb: decode setting %q: %w", name, err)
	}
	return v, true, nil
}

// WriteSettingObject encodes v and stores it under name.
func WriteSettingObject[V any](s SettingsStore, name string, v V, c codec.Codec[V]) error {
	raw, err := c.Encode(v)
	if err != nil {
		return fmt.Errorf("rollingdb: encode setting %q: %w", name, err)
	}
	return s.WriteSetting(name, raw)
}
