package rollingdb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// IndexFileName is the persistent index under the storage root.
const IndexFileName = "db_index.yaml"

// dbIndex names the two live generations. Any generation directory it does
// not name is garbage.
type dbIndex struct {
	Current              string `yaml:"current"`
	Old                  string `yaml:"old"`
	CurrentCreationEpoch int64  `yaml:"current_creation_epoch"`
}

func (x dbIndex) validate() error {
	for _, name := range []string{x.Current, x.Old} {
		if !validName(name) {
			return fmt.Errorf("%w: bad generation name %q", ErrInvalidIndex, name)
		}
	}
	if x.Current == x.Old {
		return fmt.Errorf("%w: current and old are both %q", ErrInvalidIndex, x.Current)
	}
	return nil
}

// indexFile is the on-disk copy of dbIndex. Callers serialize access.
type indexFile struct {
	path string
	dbIndex
}

// loadOrCreateIndex reads the index at path, or creates one with fresh
// generation names at epoch 0. Either way the result is synced before return.
func loadOrCreateIndex(path string) (*indexFile, error) {
	f := &indexFile{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fresh store
	case err != nil:
		return nil, &IndexError{Path: path, Op: "load", Err: err}
	case len(bytes.TrimSpace(raw)) == 0:
		return nil, &IndexError{Path: path, Op: "decode", Err: fmt.Errorf("%w: empty file", ErrInvalidIndex)}
	default:
		if err := yaml.Unmarshal(raw, &f.dbIndex); err != nil {
			return nil, &IndexError{Path: path, Op: "decode", Err: err}
		}
	}

	if f.Current == "" {
		f.Current = newGenerationName()
	}
	if f.Old == "" {
		f.Old = newGenerationName()
	}
	if err := f.validate(); err != nil {
		return nil, &IndexError{Path: path, Op: "decode", Err: err}
	}
	if err := f.sync(); err != nil {
		return nil, err
	}
	return f, nil
}

// sync durably replaces the file: temp file, fsync, rename, fsync dir.
// A crash at any point leaves either the previous or the new index intact.
func (f *indexFile) sync() error {
	raw, err := yaml.Marshal(&f.dbIndex)
	if err != nil {
		return &IndexError{Path: f.path, Op: "sync", Err: err}
	}
	if err := writeFileAtomic(f.path, raw); err != nil {
		return &IndexError{Path: f.path, Op: "sync", Err: err}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// newGenerationName returns a UUIDv4 as 32 lowercase hex chars.
func newGenerationName() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// isGenerationName reports whether s looks like a name from newGenerationName.
func isGenerationName(s string) bool {
	if len(s) != 32 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// validName keeps index entries inside the root directory.
func validName(s string) bool {
	return s != "" && s != "." && s != ".." && filepath.Base(s) == s && !strings.ContainsAny(s, `/\`)
}
