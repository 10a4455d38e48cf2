package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/unkn0wn-root/rollingdb"
	"github.com/unkn0wn-root/rollingdb/internal/checksum"
)

// download returns a local path for rawURL, reusing the cached copy when its
// checksum (if declared) still matches.
func (l *Loader) download(ctx context.Context, rawURL, wantSHA string) (string, error) {
	name, err := cacheName(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.cfg.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("bundle: create cache dir: %w", err)
	}
	dst := filepath.Join(l.cfg.CacheDir, name)

	if ok, err := cachedValid(dst, wantSHA); err != nil {
		return "", err
	} else if ok {
		l.log.Debug("bundle cache hit", rollingdb.Fields{"path": dst})
		return dst, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.cfg.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bundle: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bundle: get %s: %s", rawURL, resp.Status)
	}

	tmp, err := os.CreateTemp(l.cfg.CacheDir, "."+name+"-*.part")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	w := checksum.NewWriter(tmp, sha256.New())
	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("bundle: download %s: %w", rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := verify(w.Sum(), wantSHA); err != nil {
		return "", fmt.Errorf("%s: %w", rawURL, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	l.log.Debug("bundle downloaded", rollingdb.Fields{"url": rawURL, "path": dst})
	return dst, nil
}

// cachedValid reports whether dst exists and matches wantSHA. A stale copy is removed.
func cachedValid(dst, wantSHA string) (bool, error) {
	f, err := os.Open(dst)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	if wantSHA == "" {
		return true, nil
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	if verify(h.Sum(nil), wantSHA) != nil {
		_ = os.Remove(dst)
		return false, nil
	}
	return true, nil
}

func verify(got []byte, wantHex string) error {
	if wantHex == "" {
		return nil
	}
	if hex.EncodeToString(got) != strings.ToLower(wantHex) {
		return fmt.Errorf("%w: got %x want %s", ErrChecksumMismatch, got, wantHex)
	}
	return nil
}

// cacheName keys the cache by host and file name so two mirrors of the same
// release do not collide.
func cacheName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("bundle: bad url %q: %w", rawURL, err)
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("bundle: url %q has no file name", rawURL)
	}
	host := strings.NewReplacer(":", "_", "/", "_").Replace(u.Host)
	return host + "_" + base, nil
}
