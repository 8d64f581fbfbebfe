// Package cache holds the generic LRU used for idempotency keys and export
// de-duplication.
package cache

import (
	"context"
	"time"

	applog "famfunds/internal/log"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Add(key string, data T) bool
	Delete(key string)
	Size() int
}

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans registered caches.
type Janitor struct {
	caches []Cleaner
	logger *applog.Logger
}

func NewJanitor(logger *applog.Logger, caches ...Cleaner) *Janitor {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Janitor{caches: caches, logger: logger.WithComponent(applog.ComponentCache)}
}

// Sweep cleans every cache once and returns the number of entries removed.
func (j *Janitor) Sweep() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				j.logger.DebugContext(ctx, "Expired cache entries removed", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
