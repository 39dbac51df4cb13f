package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benithors/domhaul/internal/cache"
	"github.com/benithors/domhaul/internal/domain"
	"github.com/benithors/domhaul/internal/gate"
	"github.com/benithors/domhaul/internal/logger"
	"github.com/benithors/domhaul/internal/lookup"
	"github.com/benithors/domhaul/internal/metrics"
	"github.com/benithors/domhaul/internal/registrar"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusTaken     Status = "taken"
	StatusUnknown   Status = "unknown"
)

const (
	DefaultConcurrency = 5
	DefaultMaxAttempts = 4
	DefaultBackoffBase = time.Second
	DefaultTimeout     = 15 * time.Second
)

// ErrBatchTooLarge is returned by Check when the batch exceeds Options.MaxBatch.
var ErrBatchTooLarge = errors.New("too many domains in one batch")

// Result is the terminal outcome for one domain. Exactly one of
// Available=true, Available=false, or Error!="" holds.
type Result struct {
	Domain     string `json:"domain"`
	Name       string `json:"name"`
	Suffix     string `json:"suffix"`
	Status     Status `json:"status"`
	Available  *bool  `json:"available"`
	Registrar  string `json:"registrar,omitempty"`
	Error      string `json:"error,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	CheckedAt  string `json:"checked_at"`
	DurationMs int64  `json:"duration_ms"`

	// Input is the raw user input when it differs from Domain.
	Input string `json:"input,omitempty"`

	// Registrar storefront enrichment (optional; only present when a
	// registrar client was used).
	Offer *registrar.Offer `json:"offer,omitempty"`
}

func newResult(d domain.Domain) Result {
	return Result{Domain: d.String(), Name: d.Name, Suffix: d.Suffix, Status: StatusUnknown}
}

func (r *Result) setAvailable(v bool) {
	r.Available = boolPtr(v)
	r.Error = ""
	if v {
		r.Status = StatusAvailable
	} else {
		r.Status = StatusTaken
	}
}

func (r *Result) setError(err error) {
	r.Available = nil
	r.Registrar = ""
	r.Status = StatusUnknown
	r.Error = "check failed"
	if err != nil {
		r.Error = err.Error()
	}
}

type Options struct {
	Lookup lookup.Lookup
	Cache  *cache.Cache

	// Concurrency caps simultaneous in-flight lookups per Check call.
	Concurrency int
	// MaxAttempts is the total number of lookup attempts per domain.
	MaxAttempts int
	// BackoffBase is the delay before the second attempt; it doubles per
	// attempt after that.
	BackoffBase time.Duration
	// Timeout bounds each individual lookup call.
	Timeout time.Duration
	// MaxBatch rejects larger Check calls when > 0.
	MaxBatch int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Checker resolves availability for batches of domains, consulting the cache
// first and bounding concurrent lookups.
type Checker struct {
	opts Options
	log  *slog.Logger
}

func NewChecker(opts Options) *Checker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Checker{opts: opts, log: opts.Logger.With("component", "checker")}
}

// Check streams one Result per distinct input domain, in completion order.
// The channel is closed once every domain has produced a result or been
// abandoned because ctx was cancelled. Cached "taken" domains are answered
// without a lookup.
func (c *Checker) Check(ctx context.Context, domains []domain.Domain) (<-chan Result, error) {
	domains = domain.Dedupe(domains)
	if c.opts.MaxBatch > 0 && len(domains) > c.opts.MaxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(domains), c.opts.MaxBatch)
	}

	out := make(chan Result, len(domains))
	if len(domains) == 0 {
		close(out)
		return out, nil
	}

	go c.run(ctx, domains, out)
	return out, nil
}

func (c *Checker) run(ctx context.Context, domains []domain.Domain, out chan<- Result) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(out)
	}()

	cached := c.opts.Cache.GetMany(ctx, domains)
	c.opts.Metrics.CacheHit(len(cached))
	c.opts.Metrics.CacheMiss(len(domains) - len(cached))

	misses := make([]domain.Domain, 0, len(domains)-len(cached))
	for _, d := range domains {
		e, ok := cached[d]
		if !ok {
			misses = append(misses, d)
			continue
		}
		r := newResult(d)
		r.setAvailable(false)
		r.Cached = true
		r.CheckedAt = e.CheckedAt.UTC().Format(time.RFC3339Nano)
		c.opts.Metrics.Lookup(string(r.Status))
		out <- r
	}

	g := gate.New(c.opts.Concurrency)

	for _, d := range misses {
		wg.Add(1)
		go func(d domain.Domain) {
			defer wg.Done()

			release, err := g.Acquire(ctx)
			if err != nil {
				return
			}
			if ctx.Err() != nil {
				release()
				return
			}
			c.opts.Metrics.InFlight(1)
			r, ok := c.checkWithRetry(ctx, d)
			c.opts.Metrics.InFlight(-1)
			release()
			if !ok {
				return
			}

			if r.Status == StatusTaken {
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.opts.Cache.Put(ctx, d, cache.StatusTaken)
				}()
			}
			c.opts.Metrics.Lookup(string(r.Status))
			out <- r
		}(d)
	}
}

// checkWithRetry returns ok=false when ctx was cancelled before an outcome
// was determined; the caller must then drop the domain.
func (c *Checker) checkWithRetry(ctx context.Context, d domain.Domain) (Result, bool) {
	start := time.Now()
	r := newResult(d)
	name := d.String()

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Result{}, false
		}
		r.Attempts = attempt + 1

		avail, err := c.isAvailable(ctx, name)
		if err == nil {
			r.setAvailable(avail)
			if !avail {
				r.Registrar = c.registrar(ctx, name)
			}
			r.CheckedAt = time.Now().UTC().Format(time.RFC3339Nano)
			r.DurationMs = time.Since(start).Milliseconds()
			return r, true
		}
		if ctx.Err() != nil {
			return Result{}, false
		}

		lastErr = err
		c.log.Debug("lookup failed", "domain", name, "attempt", attempt+1, "error", err)
		if attempt == c.opts.MaxAttempts-1 || lookup.IsPermanent(err) {
			break
		}
		c.opts.Metrics.Retry()
		if err := sleepWithContext(ctx, c.backoff(attempt)); err != nil {
			return Result{}, false
		}
	}

	r.setError(lastErr)
	r.CheckedAt = time.Now().UTC().Format(time.RFC3339Nano)
	r.DurationMs = time.Since(start).Milliseconds()
	c.log.Warn("domain check gave up", "domain", name, "attempts", r.Attempts, "error", lastErr)
	return r, true
}

func (c *Checker) isAvailable(ctx context.Context, name string) (bool, error) {
	if c.opts.Lookup == nil {
		return false, lookup.Permanent(errors.New("no lookup backend configured"))
	}
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	return c.opts.Lookup.IsAvailable(callCtx, name)
}

// registrar is best-effort: any failure leaves the name empty.
func (c *Checker) registrar(ctx context.Context, name string) string {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	reg, err := c.opts.Lookup.LookupRegistrar(callCtx, name)
	if err != nil {
		c.log.Debug("registrar lookup failed", "domain", name, "error", err)
		return ""
	}
	return strings.TrimSpace(reg)
}

// backoff returns BackoffBase * 2^attempt.
func (c *Checker) backoff(attempt int) time.Duration {
	return c.opts.BackoffBase << uint(attempt)
}

// CheckDomains checks raw user inputs and returns results in input order.
// Inputs that do not parse to a Domain get an error result without a lookup.
// Repeated inputs share one lookup. Cancelled domains are omitted.
func (c *Checker) CheckDomains(ctx context.Context, inputs []string) ([]Result, error) {
	type slot struct {
		input string
		d     domain.Domain
		err   error
	}
	slots := make([]slot, 0, len(inputs))
	var valid []domain.Domain
	for _, in := range inputs {
		d, err := domain.Parse(in)
		slots = append(slots, slot{input: strings.TrimSpace(in), d: d, err: err})
		if err == nil {
			valid = append(valid, d)
		}
	}

	stream, err := c.Check(ctx, valid)
	if err != nil {
		return nil, err
	}
	byDomain := make(map[string]Result, len(valid))
	for r := range stream {
		byDomain[r.Domain] = r
	}

	out := make([]Result, 0, len(slots))
	for _, s := range slots {
		if s.err != nil {
			r := Result{Domain: s.input, Status: StatusUnknown, Error: s.err.Error()}
			r.CheckedAt = time.Now().UTC().Format(time.RFC3339Nano)
			out = append(out, r)
			continue
		}
		r, ok := byDomain[s.d.String()]
		if !ok {
			continue
		}
		if s.input != r.Domain {
			r.Input = s.input
		}
		out = append(out, r)
	}
	return out, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func boolPtr(v bool) *bool {
	return &v
}
