// Package cache remembers domains recently confirmed as taken so the checker
// can skip their network lookups.
//
// Only "taken" outcomes are stored. An available domain may be registered
// moments later, and errors are transient. The cache is an optimization:
// every store fault is absorbed and reads degrade to misses.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/benithors/domhaul/internal/domain"
	"github.com/benithors/domhaul/internal/logger"
	"github.com/benithors/domhaul/internal/metrics"
)

const (
	DefaultTTL       = 7 * 24 * time.Hour
	DefaultBatchSize = 50
)

type Status string

const StatusTaken Status = "taken"

// Entry is one cached outcome keyed by the full domain string.
type Entry struct {
	Domain    string    `json:"domain"`
	Status    Status    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// Store is the key/TTL storage behind a Cache.
type Store interface {
	Get(ctx context.Context, domain string) (Entry, bool, error)
	// GetSince returns the entries among domains whose CheckedAt is after since.
	GetSince(ctx context.Context, domains []string, since time.Time) (map[string]Entry, error)
	// Put upserts e.
	Put(ctx context.Context, e Entry) error
}

type Options struct {
	TTL          time.Duration
	BatchSize    int
	WriteTimeout time.Duration
	// ReadTimeout bounds each store read so a hung backend degrades to a
	// miss instead of stalling the checker.
	ReadTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Cache is safe for concurrent use. A nil *Cache, or one without a store,
// always misses.
type Cache struct {
	store Store
	opts  Options
}

func New(store Store, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = opts.Logger.With("component", "cache")
	return &Cache{store: store, opts: opts}
}

// Get returns the unexpired entry for d, if any.
func (c *Cache) Get(ctx context.Context, d domain.Domain) (Entry, bool) {
	if c == nil || c.store == nil {
		return Entry{}, false
	}
	rctx, cancel := context.WithTimeout(ctx, c.opts.ReadTimeout)
	defer cancel()
	e, ok, err := c.store.Get(rctx, d.String())
	if err != nil {
		c.opts.Metrics.CacheError("get")
		c.opts.Logger.Debug("cache read failed", "domain", d.String(), "error", err)
		return Entry{}, false
	}
	if !ok || c.expired(e) {
		return Entry{}, false
	}
	return e, true
}

// GetMany returns the unexpired entries among domains. Lookups are issued in
// chunks of Options.BatchSize, each bounded by Options.ReadTimeout. A failing
// chunk contributes nothing.
func (c *Cache) GetMany(ctx context.Context, domains []domain.Domain) map[domain.Domain]Entry {
	out := make(map[domain.Domain]Entry)
	if c == nil || c.store == nil || len(domains) == 0 {
		return out
	}

	byKey := make(map[string]domain.Domain, len(domains))
	keys := make([]string, 0, len(domains))
	for _, d := range domains {
		k := d.String()
		if _, ok := byKey[k]; ok {
			continue
		}
		byKey[k] = d
		keys = append(keys, k)
	}

	since := c.opts.Now().Add(-c.opts.TTL)
	for start := 0; start < len(keys); start += c.opts.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+c.opts.BatchSize, len(keys))
		rctx, cancel := context.WithTimeout(ctx, c.opts.ReadTimeout)
		got, err := c.store.GetSince(rctx, keys[start:end], since)
		cancel()
		if err != nil {
			c.opts.Metrics.CacheError("get")
			c.opts.Logger.Debug("cache bulk read failed", "keys", end-start, "error", err)
			continue
		}
		for k, e := range got {
			d, ok := byKey[k]
			if !ok || c.expired(e) {
				continue
			}
			out[d] = e
		}
	}
	return out
}

// Put records d as taken. Failures are logged and dropped. The write is not
// tied to ctx cancellation; it is bounded by Options.WriteTimeout instead.
func (c *Cache) Put(ctx context.Context, d domain.Domain, status Status) {
	if c == nil || c.store == nil {
		return
	}
	if status != StatusTaken {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.WriteTimeout)
	defer cancel()

	e := Entry{Domain: d.String(), Status: status, CheckedAt: c.opts.Now().UTC()}
	if err := c.store.Put(wctx, e); err != nil {
		c.opts.Metrics.CacheError("put")
		c.opts.Logger.Debug("cache write failed", "domain", e.Domain, "error", err)
	}
}

func (c *Cache) expired(e Entry) bool {
	return c.opts.Now().Sub(e.CheckedAt) > c.opts.TTL
}
