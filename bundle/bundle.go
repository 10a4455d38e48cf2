// Package bundle seeds a rolling store with bootstrap CAR bundles, either from
// a local file or downloaded (and cached) from a release server.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	carv2 "github.com/ipld/go-car/v2"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/rollingdb"
)

const (
	DefaultConcurrency = 4
	defaultHTTPTimeout = 5 * time.Minute
)

var (
	ErrBundleNotFound   = errors.New("bundle: file not found")
	ErrManifestMismatch = errors.New("bundle: manifest not among car roots")
	ErrChecksumMismatch = errors.New("bundle: checksum mismatch")
)

// Store is the slice of the block store the loader needs.
type Store interface {
	Has(k cid.Cid) (bool, error)
	PutKeyed(k cid.Cid, data []byte) error
}

var (
	_ Store = (*rollingdb.RollingDB)(nil)
	_ Store = (*rollingdb.CachedStore)(nil)
)

// Info describes one published bundle.
type Info struct {
	Manifest cid.Cid
	URL      string
	AltURL   string
	Network  string
	Version  string
	SHA256   string // hex; empty skips verification
}

type Config struct {
	CacheDir     string           `yaml:"cache_dir"`     // "" => DefaultCacheDir()
	OverridePath string           `yaml:"override_path"` // set => load this file instead of downloading
	Concurrency  int              `yaml:"concurrency"`   // 0 => DefaultConcurrency
	Client       *http.Client     `yaml:"-"`             // nil => client with a 5m timeout
	Logger       rollingdb.Logger `yaml:"-"`             // nil => rollingdb.NopLogger
}

// DefaultCacheDir is <user cache dir>/rollingdb/bundles, or a directory under
// os.TempDir when the platform has no cache dir.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "rollingdb", "bundles")
}

type Loader struct {
	store Store
	cfg   Config
	log   rollingdb.Logger
}

func New(store Store, cfg Config) *Loader {
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	l := &Loader{store: store, cfg: cfg, log: cfg.Logger}
	if l.log == nil {
		l.log = rollingdb.NopLogger{}
	}
	return l
}

// Load imports the bundles for network. With OverridePath set the local file
// is used and must carry every manifest of the network; otherwise missing
// bundles are downloaded. It returns the manifests that were imported.
func (l *Loader) Load(ctx context.Context, network string, infos []Info) ([]cid.Cid, error) {
	if l.cfg.OverridePath != "" {
		l.log.Info("loading bundle from override path", rollingdb.Fields{"path": l.cfg.OverridePath})
		return l.LoadFromPath(ctx, network, l.cfg.OverridePath, infos)
	}
	return l.LoadFromServer(ctx, network, infos)
}

// LoadFromPath validates that every manifest published for network is a root
// of the CAR at path, then writes the blocks the store does not have yet.
func (l *Loader) LoadFromPath(ctx context.Context, network, path string, infos []Info) ([]cid.Cid, error) {
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br, err := carv2.NewBlockReader(f)
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s: %w", path, err)
	}
	roots := make(map[cid.Cid]struct{}, len(br.Roots))
	for _, r := range br.Roots {
		roots[r] = struct{}{}
	}

	var manifests []cid.Cid
	for _, info := range infos {
		if !sameNetwork(network, info.Network) {
			continue
		}
		if _, ok := roots[info.Manifest]; !ok {
			return nil, fmt.Errorf("%w: %s for %s is missing from %s", ErrManifestMismatch, info.Manifest, network, path)
		}
		manifests = append(manifests, info.Manifest)
	}

	n, err := l.importBlocks(ctx, br)
	if err != nil {
		return nil, err
	}
	l.log.Info("bundle loaded from path", rollingdb.Fields{"path": path, "blocks": n, "network": network})
	return manifests, nil
}

// LoadFromServer downloads, verifies and imports every bundle of network whose
// manifest is not in the store yet. All devnet* networks share bundles.
func (l *Loader) LoadFromServer(ctx context.Context, network string, infos []Info) ([]cid.Cid, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)

	var (
		mu     sync.Mutex
		loaded []cid.Cid
	)
	for _, info := range infos {
		if !sameNetwork(network, info.Network) {
			continue
		}
		has, err := l.store.Has(info.Manifest)
		if err != nil {
			l.log.Debug("manifest lookup failed, loading anyway", rollingdb.Fields{"manifest": info.Manifest.String(), "err": err})
		}
		if has {
			continue
		}

		info := info
		g.Go(func() error {
			root, err := l.loadOne(ctx, info)
			if err != nil {
				return err
			}
			mu.Lock()
			loaded = append(loaded, root)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].KeyString() < loaded[j].KeyString() })
	return loaded, nil
}

func (l *Loader) loadOne(ctx context.Context, info Info) (cid.Cid, error) {
	path, err := l.download(ctx, info.URL, info.SHA256)
	if err != nil {
		if info.AltURL == "" {
			return cid.Undef, err
		}
		l.log.Warn("failed to download bundle from primary URL, trying alternative URL", rollingdb.Fields{
			"network": info.Network,
			"version": info.Version,
			"err":     err,
		})
		if path, err = l.download(ctx, info.AltURL, info.SHA256); err != nil {
			return cid.Undef, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return cid.Undef, err
	}
	defer f.Close()

	br, err := carv2.NewBlockReader(f)
	if err != nil {
		return cid.Undef, fmt.Errorf("bundle: read %s: %w", path, err)
	}
	if len(br.Roots) != 1 || !br.Roots[0].Equals(info.Manifest) {
		return cid.Undef, fmt.Errorf("%w: %s-%s wants single root %s, car has %v",
			ErrManifestMismatch, info.Network, info.Version, info.Manifest, br.Roots)
	}

	n, err := l.importBlocks(ctx, br)
	if err != nil {
		return cid.Undef, err
	}
	l.log.Info("bundle loaded", rollingdb.Fields{
		"network":  info.Network,
		"version":  info.Version,
		"manifest": info.Manifest.String(),
		"blocks":   n,
	})
	return info.Manifest, nil
}

// importBlocks writes every block the store lacks and returns how many it wrote.
func (l *Loader) importBlocks(ctx context.Context, br *carv2.BlockReader) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		blk, err := br.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("bundle: decode block: %w", err)
		}
		has, err := l.store.Has(blk.Cid())
		if err != nil {
			return n, err
		}
		if has {
			continue
		}
		if err := l.store.PutKeyed(blk.Cid(), blk.RawData()); err != nil {
			return n, err
		}
		n++
	}
}

func sameNetwork(a, b string) bool {
	if strings.HasPrefix(a, "devnet") && strings.HasPrefix(b, "devnet") {
		return true
	}
	return a == b
}
