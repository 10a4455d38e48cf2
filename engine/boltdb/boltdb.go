// Package boltdb implements engine.Engine on top of bbolt. Each generation is a
// directory holding a single bbolt file with two buckets: blocks and settings.
package boltdb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ipfs/go-cid"
	bolt "go.etcd.io/bbolt"

	"github.com/unkn0wn-root/rollingdb/engine"
)

const (
	// FileName is the bbolt file inside a generation directory.
	FileName = "blocks.db"

	dbPermissions  = 0600
	dirPermissions = 0700

	// DefaultTimeout bounds how long Open waits for the file lock.
	DefaultTimeout = 60 * time.Second
)

var (
	bucketBlocks   = []byte("blocks")
	bucketSettings = []byte("settings")
)

// ErrCorrupted signals that the bucket layout is missing from an opened file.
var ErrCorrupted = errors.New("boltdb: bucket structure corrupted")

// Config holds bbolt tuning knobs.
type Config struct {
	NoSync          bool          `yaml:"no_sync" long:"nosync" description:"Skip fsync after each commit. Faster, but a crash may lose recent writes."`
	NoFreelistSync  bool          `yaml:"no_freelist_sync" long:"nofreelistsync" description:"Do not sync the freelist to disk; trades startup time for write throughput."`
	Timeout         time.Duration `yaml:"timeout" long:"dbtimeout" description:"How long to wait for the database file lock when opening."`
	InitialMmapSize int           `yaml:"initial_mmap_size" long:"initial-mmap-size" description:"Initial mmap size in bytes; avoids remapping while the file grows."`
}

func (c Config) options() *bolt.Options {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &bolt.Options{
		Timeout:         timeout,
		NoSync:          c.NoSync,
		NoFreelistSync:  c.NoFreelistSync,
		InitialMmapSize: c.InitialMmapSize,
		FreelistType:    bolt.FreelistMapType,
	}
}

// Opener creates and opens bbolt generations.
type Opener struct {
	Config Config
}

var _ engine.Opener = Opener{}

// NewOpener returns an Opener using cfg.
func NewOpener(cfg Config) Opener { return Opener{Config: cfg} }

func (o Opener) Open(dir string) (engine.Engine, error) {
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", engine.ErrNotExist, dir)
		}
		return nil, err
	}
	return open(dir, o.Config)
}

func (o Opener) Create(dir string) (engine.Engine, error) {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("boltdb: create %s: %w", dir, err)
	}
	return open(dir, o.Config)
}

// Store is a bbolt-backed generation.
type Store struct {
	db *bolt.DB
}

var _ engine.Engine = (*Store)(nil)

func open(dir string, cfg Config) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dir, FileName), dbPermissions, cfg.options())
	if err != nil {
		return nil, fmt.Errorf("boltdb: open %s: %w", dir, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketBlocks); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketSettings)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltdb: init buckets in %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Path returns the bbolt file path.
func (s *Store) Path() string { return s.db.Path() }

func (s *Store) Get(k cid.Cid) ([]byte, bool, error) {
	return s.get(bucketBlocks, k.Bytes())
}

func (s *Store) Has(k cid.Cid) (bool, error) {
	return s.has(bucketBlocks, k.Bytes())
}

func (s *Store) Put(k cid.Cid, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketBlocks)
		if err != nil {
			return err
		}
		return b.Put(k.Bytes(), data)
	})
}

// PutMany writes every block in a single transaction.
func (s *Store) PutMany(blocks []engine.Block) error {
	if len(blocks) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketBlocks)
		if err != nil {
			return err
		}
		for _, blk := range blocks {
			if err := b.Put(blk.Cid.Bytes(), blk.Data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ForEach(fn func(k cid.Cid, data []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketBlocks)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			c, err := cid.Cast(k)
			if err != nil {
				return fmt.Errorf("boltdb: bad key %x: %w", k, err)
			}
			return fn(c, clone(v))
		})
	})
}

func (s *Store) ReadSetting(name string) ([]byte, bool, error) {
	return s.get(bucketSettings, []byte(name))
}

func (s *Store) WriteSetting(name string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketSettings)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), value)
	})
}

func (s *Store) SettingExists(name string) (bool, error) {
	return s.has(bucketSettings, []byte(name))
}

// SettingNames returns every setting name in ascending order.
func (s *Store) SettingNames() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketSettings)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) SizeOnDisk() (uint64, error) {
	var size int64
	err := s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(size), nil
}

// Close blocks until open transactions finish, then releases the file.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(name, key []byte) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		// a cursor distinguishes a missing key from an empty value
		k, v := b.Cursor().Seek(key)
		if !bytes.Equal(k, key) {
			return nil
		}
		found = true
		// values are only valid for the life of the transaction
		out = clone(v)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

func (s *Store) has(name, key []byte) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		k, _ := b.Cursor().Seek(key)
		ok = bytes.Equal(k, key)
		return nil
	})
	return ok, err
}

func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, ErrCorrupted
	}
	return b, nil
}

func clone(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
