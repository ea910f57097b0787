package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"VolCast/internal/domain/models"
	pkgcache "VolCast/pkg/cache"
	applogger "VolCast/pkg/logger"
)

const tablePrefix = "table:"

// Loader reads a table from its file.
type Loader func(ctx context.Context, path string) (*models.Table, error)

// TableCache holds decoded artifacts for the serving layer. Entries are keyed
// by (path, size, mtime) so a rewritten file is never served stale, and
// Invalidate drops every entry after a pipeline run.
type TableCache struct {
	store pkgcache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewTableCache(store pkgcache.Service, ttl time.Duration, l *applogger.Logger) *TableCache {
	if l == nil {
		l = applogger.Nop()
	}
	return &TableCache{store: store, ttl: ttl, l: l}
}

// Get returns the cached table for path or loads it. A missing file yields an
// error wrapping fs.ErrNotExist.
func (c *TableCache) Get(ctx context.Context, path string, load Loader) (*models.Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	key := Key(path, info.Size(), info.ModTime())

	var cached models.Table
	switch err := c.store.Get(ctx, key, &cached); {
	case err == nil:
		return &cached, nil
	case !errors.Is(err, pkgcache.ErrCacheMiss):
		c.l.Warn("table cache read failed", applogger.String("path", path), applogger.Error(err))
	}

	t, err := load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, t, c.ttl); err != nil {
		c.l.Warn("table cache write failed", applogger.String("path", path), applogger.Error(err))
	}
	return t, nil
}

// Invalidate drops every cached table.
func (c *TableCache) Invalidate(ctx context.Context) error {
	return c.store.DeleteByPattern(ctx, pkgcache.BuildPattern(tablePrefix))
}

// Key identifies one version of a file.
func Key(path string, size int64, mtime time.Time) string {
	return pkgcache.GenerateKeyWithParams(tablePrefix+pkgcache.HashKey(path), size, mtime.UnixNano())
}
