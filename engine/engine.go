// Package engine defines the single-generation store used by rollingdb.
//
// An Engine is one complete, independently openable key/value database that
// lives in its own directory. Blocks are keyed by CID and are immutable: the
// same key always maps to the same bytes, so Put is idempotent. A small side
// channel of named settings holds node metadata that is not content-addressed.
//
// Implementations MUST be safe for concurrent use and MUST return exactly the
// bytes previously stored for a key (no framing, no transcoding).
package engine

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// ErrNotExist is returned by Opener.Open when the generation directory is missing.
var ErrNotExist = errors.New("engine: generation does not exist")

// Block is a content-addressed payload.
type Block struct {
	Cid  cid.Cid
	Data []byte
}

// Engine is a durable CID -> bytes store with a settings side channel.
type Engine interface {
	// Get returns (data, true, nil) on hit; (nil, false, nil) on miss.
	Get(k cid.Cid) ([]byte, bool, error)
	Has(k cid.Cid) (bool, error)
	Put(k cid.Cid, data []byte) error
	// PutMany stores all blocks atomically where the backend allows it.
	PutMany(blocks []Block) error
	// ForEach visits every block. Returning an error from fn stops iteration.
	// The rolling store never iterates; it is here for export and repair
	// tooling that opens a generation directly.
	ForEach(fn func(k cid.Cid, data []byte) error) error

	// ReadSetting returns (value, true, nil) on hit; (nil, false, nil) on miss.
	ReadSetting(name string) ([]byte, bool, error)
	WriteSetting(name string, value []byte) error
	SettingExists(name string) (bool, error)
	SettingNames() ([]string, error)

	// SizeOnDisk reports the bytes the engine itself accounts for. It can be
	// smaller than the generation directory, which may hold other files.
	SizeOnDisk() (uint64, error)
	Close() error
}

// Opener opens and creates engines rooted at a directory.
type Opener interface {
	// Open opens an existing generation. Returns ErrNotExist if dir is missing.
	Open(dir string) (Engine, error)
	// Create makes dir (and parents) and opens a fresh generation in it.
	Create(dir string) (Engine, error)
}
