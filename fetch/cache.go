package fetch

import (
	"context"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wippyai/witdeps/errors"
	"github.com/wippyai/witdeps/internal/fsutil"
	"go.uber.org/zap"
)

// ErrNotCached is returned by a Store that has no object for a key.
var ErrNotCached = &errors.Error{Kind: errors.KindNotFound}

// Store is a remote content store keyed by cache key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

const memEntries = 64

// Cache holds component bytes by digest: in memory, then under Dir, then in
// an optional remote Store. Every read is verified against its digest. A nil
// Cache never hits and drops writes.
type Cache struct {
	mem    *lru.Cache[string, []byte]
	remote Store
	dir    string
}

// NewCache creates a cache rooted at dir. dir may be empty to skip the disk
// layer and remote may be nil.
func NewCache(dir string, remote Store) (*Cache, error) {
	mem, err := lru.New[string, []byte](memEntries)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseFetch, errors.KindInvalidInput, err, "create memory cache")
	}
	return &Cache{dir: dir, mem: mem, remote: remote}, nil
}

// Dir returns the disk cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) path(digest string) string {
	return filepath.Join(c.dir, "wasm", cacheKey(digest))
}

// Get returns the bytes stored for digest.
func (c *Cache) Get(ctx context.Context, digest string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	if data, ok := c.mem.Get(digest); ok {
		return data, true
	}
	if c.dir != "" {
		p := c.path(digest)
		if data, err := os.ReadFile(p); err == nil {
			if Verify(p, digest, data) == nil {
				c.mem.Add(digest, data)
				return data, true
			}
			Logger().Warn("discarding corrupt cache entry", zap.String("path", p))
			_ = os.Remove(p)
		}
	}
	if c.remote != nil {
		data, err := c.remote.Get(ctx, cacheKey(digest))
		switch {
		case err == nil:
			if Verify(digest, digest, data) != nil {
				Logger().Warn("remote cache returned corrupt entry", zap.String("digest", digest))
				return nil, false
			}
			c.store(digest, data)
			return data, true
		case !errors.Is(err, ErrNotCached):
			Logger().Warn("remote cache read failed", zap.String("digest", digest), zap.Error(err))
		}
	}
	return nil, false
}

// Put records verified bytes under digest in every layer. Remote failures
// are logged and ignored.
func (c *Cache) Put(ctx context.Context, digest string, data []byte) error {
	if c == nil {
		return nil
	}
	if err := c.store(digest, data); err != nil {
		return err
	}
	if c.remote != nil {
		if err := c.remote.Put(ctx, cacheKey(digest), data); err != nil {
			Logger().Warn("remote cache write failed", zap.String("digest", digest), zap.Error(err))
		}
	}
	return nil
}

func (c *Cache) store(digest string, data []byte) error {
	c.mem.Add(digest, data)
	if c.dir == "" {
		return nil
	}
	if err := fsutil.WriteFile(c.path(digest), data); err != nil {
		return err
	}
	Logger().Debug("cached component", zap.String("digest", digest), zap.Int("size", len(data)))
	return nil
}
