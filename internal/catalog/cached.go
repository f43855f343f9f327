package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/library-locator/internal/cache"
	"github.com/mohammed-shakir/library-locator/internal/cache/keys"
	"github.com/mohammed-shakir/library-locator/internal/core/model"
)

// Catalog is the full provider surface.
type Catalog interface {
	SearchBySubRegion(ctx context.Context, region, subRegion, isbn string) ([]model.Library, error)
	SearchByRegion(ctx context.Context, region, isbn string) ([]model.Library, error)
	CheckAvailability(ctx context.Context, libCode, isbn string) (Availability, error)
}

// Cached stores non-empty search results. Empty results and errors are
// passed through untouched so the caller's fallback sees the same outcome
// as without a cache. Availability is never cached.
type Cached struct {
	next      Catalog
	store     cache.Interface
	ttl       time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
}

func NewCached(next Catalog, store cache.Interface, ttl, opTimeout time.Duration, logger *slog.Logger) *Cached {
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, store: store, ttl: ttl, opTimeout: opTimeout, logger: logger}
}

func (c *Cached) SearchBySubRegion(ctx context.Context, region, subRegion, isbn string) ([]model.Library, error) {
	return c.lookup(ctx, keys.SearchKey(isbn, region, subRegion), func() ([]model.Library, error) {
		return c.next.SearchBySubRegion(ctx, region, subRegion, isbn)
	})
}

func (c *Cached) SearchByRegion(ctx context.Context, region, isbn string) ([]model.Library, error) {
	return c.lookup(ctx, keys.SearchKey(isbn, region, ""), func() ([]model.Library, error) {
		return c.next.SearchByRegion(ctx, region, isbn)
	})
}

func (c *Cached) CheckAvailability(ctx context.Context, libCode, isbn string) (Availability, error) {
	return c.next.CheckAvailability(ctx, libCode, isbn)
}

func (c *Cached) lookup(ctx context.Context, key string, fetch func() ([]model.Library, error)) ([]model.Library, error) {
	if libs, ok := c.read(ctx, key); ok {
		return libs, nil
	}

	libs, err := fetch()
	if err != nil || len(libs) == 0 {
		return libs, err
	}
	c.write(ctx, key, libs)
	return libs, nil
}

func (c *Cached) read(ctx context.Context, key string) ([]model.Library, bool) {
	cctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	got, err := c.store.MGet(cctx, []string{key})
	if err != nil {
		c.logger.WarnContext(ctx, "search cache read failed", "key", key, "error", err)
		return nil, false
	}
	raw, ok := got[key]
	if !ok {
		return nil, false
	}
	var libs []model.Library
	if err := json.Unmarshal(raw, &libs); err != nil || len(libs) == 0 {
		c.logger.WarnContext(ctx, "search cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return libs, true
}

func (c *Cached) write(ctx context.Context, key string, libs []model.Library) {
	stored := make([]model.Library, len(libs))
	for i, l := range libs {
		l.DistanceMeters = nil
		l.LoanAvailable = ""
		stored[i] = l
	}
	b, err := json.Marshal(stored)
	if err != nil {
		c.logger.WarnContext(ctx, "search cache encode failed", "key", key, "error", err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.store.Set(cctx, key, b, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "search cache write failed", "key", key, "error", err)
	}
}
