package snapshot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ratectl/ratectl/internal/common"
	"github.com/ratectl/ratectl/internal/model"
	"github.com/ratectl/ratectl/internal/service"
)

// fetchAttempt is one dump parameter combination. When progress is false the
// request carries progress=0 so the server does not interleave progress
// markers with the payload.
type fetchAttempt struct {
	models   []string
	progress bool
}

// fetchAttempts holds the primary request and its fixed fallbacks, widest
// model list first. Older platform versions reject model names they do not
// know, so each fallback narrows the list.
var fetchAttempts = []fetchAttempt{
	{models: []string{"account", "adjustment", "adjustables", "metadata", "rate", "ratetier", "reportdefinition", "service", "servicecategory"}},
	{models: []string{"account", "rate", "ratetier", "service"}},
	{models: []string{"account", "service", "rate"}, progress: true},
	{models: []string{"account"}},
}

// Cache memoizes the parsed system snapshot for the duration of a run. It is
// owned by a single goroutine; runs are sequential, so no locking is needed.
type Cache struct {
	fetcher service.DumpFetcher
	logger  *slog.Logger
	cached  *model.Snapshot
}

var _ service.SnapshotSource = (*Cache)(nil)

// NewCache creates a snapshot cache on top of a dump fetcher.
func NewCache(fetcher service.DumpFetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		logger:  slog.Default().With("component", "snapshot"),
	}
}

// Snapshot returns the current snapshot, fetching at most once until
// Invalidate is called. When every fetch attempt fails the cache settles on
// an empty snapshot: callers then see "nothing exists", which can only
// over-create, never overwrite. Authentication failures are the exception
// and propagate, since every later request would fail the same way.
func (c *Cache) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	if c.cached != nil {
		return c.cached, nil
	}

	snap, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.cached = snap
	return snap, nil
}

// Invalidate clears the memoized snapshot. Callers invalidate after any
// write so the next read reflects it.
func (c *Cache) Invalidate() {
	c.cached = nil
}

func (c *Cache) fetch(ctx context.Context) (*model.Snapshot, error) {
	var lastErr error
	for i, attempt := range fetchAttempts {
		raw, err := c.fetcher.FetchDump(ctx, attempt.models, attempt.progress)
		if err != nil {
			if errors.Is(err, common.ErrUnauthorized) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Debug("dump fetch attempt failed", "attempt", i+1, "models", len(attempt.models), "error", err)
			lastErr = err
			continue
		}

		snap := Parse(raw)
		c.logger.Debug("snapshot loaded",
			"attempt", i+1,
			"accounts", snap.Len("account"),
			"services", snap.Len("service"),
			"rates", snap.Len("rate"),
			"ratetiers", snap.Len("ratetier"))
		return snap, nil
	}

	c.logger.Warn("all dump attempts failed; continuing with empty snapshot, duplicate detection degraded", "error", lastErr)
	return model.NewSnapshot(), nil
}
