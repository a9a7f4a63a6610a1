package roster

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"staffbot/internal/apperr"
	"staffbot/internal/names"
	logx "staffbot/pkg/logx"
)

const snapshotKey = "roster"

// ErrEmptySnapshot is returned when the source yields no names after having
// yielded some. An empty roster would revoke everyone, so it is treated as a
// read failure.
var ErrEmptySnapshot = errors.New("roster source returned an empty snapshot")

// Cached memoizes a Provider for ttl and guards against empty snapshots.
type Cached struct {
	src   Provider
	cache *gocache.Cache
	ttl   time.Duration
	log   logx.Logger

	mu       sync.Mutex
	lastGood int
}

func NewCached(src Provider, ttl time.Duration, log logx.Logger) *Cached {
	if log.IsZero() {
		log = logx.Nop()
	}
	cleanup := ttl * 2
	if ttl <= 0 {
		cleanup = 0
	}
	return &Cached{src: src, cache: gocache.New(ttl, cleanup), ttl: ttl, log: log}
}

func (c *Cached) CurrentNames(ctx context.Context) (names.Set, error) {
	if c.ttl > 0 {
		if v, ok := c.cache.Get(snapshotKey); ok {
			return v.(names.Set), nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	set, err := c.src.CurrentNames(ctx)
	if err != nil {
		c.log.Warn("roster read failed", logx.Err(err))
		if !apperr.IsExternal(err) {
			err = apperr.External("roster", err)
		}
		return nil, err
	}
	if set.Len() == 0 && c.lastGood > 0 {
		c.log.Warn("roster snapshot empty; refusing", logx.Int("last_good", c.lastGood))
		return nil, apperr.External("roster", ErrEmptySnapshot)
	}
	c.lastGood = set.Len()
	if c.ttl > 0 {
		c.cache.SetDefault(snapshotKey, set)
	}
	return set, nil
}

// Invalidate drops the cached snapshot so the next call reads the source.
func (c *Cached) Invalidate() { c.cache.Delete(snapshotKey) }

// LastSize is the size of the last accepted snapshot.
func (c *Cached) LastSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastGood
}
