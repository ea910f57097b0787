package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/models"
	pkgcache "VolCast/pkg/cache"
)

func countingLoader(calls *int) Loader {
	return func(_ context.Context, path string) (*models.Table, error) {
		*calls++
		t := models.NewTable([]string{models.ColGarchVol}, []time.Time{time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)})
		_ = t.SetValue(0, models.ColGarchVol, float64(*calls))
		return t, nil
	}
}

func stores(t *testing.T) map[string]pkgcache.Service {
	mr := miniredis.RunT(t)
	rc := pkgcache.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	return map[string]pkgcache.Service{
		"memory": pkgcache.NewMemoryCache(),
		"redis":  rc,
	}
}

func TestTableCacheHitMissInvalidate(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "forecast.csv")
			require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

			calls := 0
			c := NewTableCache(store, time.Minute, nil)
			first, err := c.Get(ctx, path, countingLoader(&calls))
			require.NoError(t, err)
			second, err := c.Get(ctx, path, countingLoader(&calls))
			require.NoError(t, err)
			assert.Equal(t, 1, calls)
			v1, _ := first.Value(0, models.ColGarchVol)
			v2, _ := second.Value(0, models.ColGarchVol)
			assert.Equal(t, v1, v2)

			require.NoError(t, c.Invalidate(ctx))
			_, err = c.Get(ctx, path, countingLoader(&calls))
			require.NoError(t, err)
			assert.Equal(t, 2, calls)
		})
	}
}

func TestTableCacheRewrittenFileReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "forecast.csv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	calls := 0
	c := NewTableCache(pkgcache.NewMemoryCache(), time.Minute, nil)
	_, err := c.Get(ctx, path, countingLoader(&calls))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("longer"), 0o644))
	_, err = c.Get(ctx, path, countingLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTableCacheMissingFile(t *testing.T) {
	calls := 0
	c := NewTableCache(pkgcache.NewMemoryCache(), time.Minute, nil)
	_, err := c.Get(context.Background(), filepath.Join(t.TempDir(), "none.csv"), countingLoader(&calls))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Zero(t, calls)
}
