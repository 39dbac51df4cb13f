package rdap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benithors/domhaul/internal/lookup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const DefaultBootstrapURL = "https://data.iana.org/rdap/dns.json"

type Options struct {
	BootstrapURL string
	CacheDir     string
	CacheTTL     time.Duration
	Timeout      time.Duration
	// RPS paces outgoing domain queries across all goroutines; 0 disables.
	RPS       float64
	UserAgent string
}

// Client answers availability from RDAP: 200 means registered, 404 means
// not registered. Anything else is a transient error.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter

	mu        sync.Mutex
	bootstrap *bootstrap
	loads     singleflight.Group
}

func NewClient(opts Options) *Client {
	if opts.BootstrapURL == "" {
		opts.BootstrapURL = DefaultBootstrapURL
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 7 * 24 * time.Hour
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "domhaul/rdap"
	}
	if opts.CacheDir == "" {
		if d, err := os.UserCacheDir(); err == nil && d != "" {
			opts.CacheDir = filepath.Join(d, "domhaul")
		}
	}

	c := &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return c
}

// HTTPError is a non-200/404 RDAP response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string { return fmt.Sprintf("rdap http %d", e.StatusCode) }

func (c *Client) IsAvailable(ctx context.Context, domain string) (bool, error) {
	resp, err := c.query(ctx, domain)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
	return resp.StatusCode == http.StatusNotFound, nil
}

// LookupRegistrar returns the name of the entity holding the "registrar" role
// in the domain's RDAP record.
func (c *Client) LookupRegistrar(ctx context.Context, domain string) (string, error) {
	resp, err := c.query(ctx, domain)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rdap: %s is not registered", domain)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	return parseRegistrar(body)
}

// query returns a response whose status is 200 or 404; other statuses are
// converted to errors.
func (c *Client) query(ctx context.Context, domain string) (*http.Response, error) {
	tld := lastLabel(domain)
	if tld == "" {
		return nil, lookup.Permanent(fmt.Errorf("rdap: invalid domain %q", domain))
	}

	bs, err := c.getBootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("rdap bootstrap unavailable: %w", err)
	}

	urls := bs.urlsForTLD(tld)
	if len(urls) == 0 {
		return nil, fmt.Errorf("rdap .%s: %w", tld, lookup.ErrUnsupported)
	}

	var lastErr error
	for _, base := range urls {
		resp, err := c.lookupOne(ctx, base, domain)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) lookupOne(ctx context.Context, base, domain string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	base = strings.TrimRight(base, "/")
	rdapURL := base + "/domain/" + url.PathEscape(domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rdapURL, nil)
	if err != nil {
		return nil, lookup.Permanent(err)
	}
	req.Header.Set("accept", "application/rdap+json, application/json")
	req.Header.Set("user-agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNotFound:
		return resp, nil
	default:
		resp.Body.Close()
		return nil, &HTTPError{URL: rdapURL, StatusCode: resp.StatusCode}
	}
}

type rdapDomain struct {
	Entities []rdapEntity `json:"entities"`
}

type rdapEntity struct {
	Handle     string          `json:"handle"`
	Roles      []string        `json:"roles"`
	VCardArray json.RawMessage `json:"vcardArray"`
	Entities   []rdapEntity    `json:"entities"`
}

func parseRegistrar(body []byte) (string, error) {
	var d rdapDomain
	if err := json.Unmarshal(body, &d); err != nil {
		return "", fmt.Errorf("rdap: decode: %w", err)
	}
	if name := findRegistrar(d.Entities); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("rdap: no registrar entity")
}

func findRegistrar(entities []rdapEntity) string {
	for _, e := range entities {
		for _, role := range e.Roles {
			if !strings.EqualFold(role, "registrar") {
				continue
			}
			if fn := vcardFN(e.VCardArray); fn != "" {
				return fn
			}
			if e.Handle != "" {
				return e.Handle
			}
		}
		if name := findRegistrar(e.Entities); name != "" {
			return name
		}
	}
	return ""
}

// vcardFN extracts the "fn" property from a jCard:
// ["vcard", [["version", {}, "text", "4.0"], ["fn", {}, "text", "Name"]]].
func vcardFN(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var card []json.RawMessage
	if err := json.Unmarshal(raw, &card); err != nil || len(card) != 2 {
		return ""
	}
	var props [][]json.RawMessage
	if err := json.Unmarshal(card[1], &props); err != nil {
		return ""
	}
	for _, p := range props {
		if len(p) < 4 {
			continue
		}
		var name, value string
		if json.Unmarshal(p[0], &name) != nil || name != "fn" {
			continue
		}
		if json.Unmarshal(p[3], &value) == nil {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// getBootstrap loads the registry once. Concurrent callers share a single
// fetch, which is bounded by the HTTP timeout rather than by any one caller's
// context, and each caller can still give up on its own ctx.
func (c *Client) getBootstrap(ctx context.Context) (*bootstrap, error) {
	c.mu.Lock()
	bs := c.bootstrap
	c.mu.Unlock()
	if bs != nil {
		return bs, nil
	}

	ch := c.loads.DoChan("bootstrap", func() (any, error) {
		bs, err := loadBootstrap(context.WithoutCancel(ctx), c.http, c.opts.BootstrapURL, c.cachePath(), c.opts.CacheTTL)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.bootstrap = bs
		c.mu.Unlock()
		return bs, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*bootstrap), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Supports reports whether the bootstrap registry lists an RDAP service for
// the domain's TLD.
func (c *Client) Supports(ctx context.Context, domain string) bool {
	bs, err := c.getBootstrap(ctx)
	if err != nil {
		return false
	}
	return len(bs.urlsForTLD(lastLabel(domain))) > 0
}

var _ lookup.Supporter = (*Client)(nil)

func (c *Client) cachePath() string {
	if c.opts.CacheDir == "" {
		return ""
	}
	return filepath.Join(c.opts.CacheDir, "rdap-dns.json")
}

type bootstrap struct {
	tldToURLs map[string][]string
}

func (b *bootstrap) urlsForTLD(tld string) []string {
	return b.tldToURLs[strings.ToLower(tld)]
}

type bootstrapJSON struct {
	Services [][][]string `json:"services"`
}

func loadBootstrap(ctx context.Context, httpc *http.Client, srcURL, cachePath string, ttl time.Duration) (*bootstrap, error) {
	// Try cache first.
	if cachePath != "" {
		if st, err := os.Stat(cachePath); err == nil && !st.IsDir() {
			if ttl <= 0 || time.Since(st.ModTime()) <= ttl {
				if b, err := os.ReadFile(cachePath); err == nil {
					if bs, err := parseBootstrap(b); err == nil {
						return bs, nil
					}
				}
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpc.Do(req)
	if err != nil {
		// If cache exists but is stale, use it.
		if cachePath != "" {
			if b, rerr := os.ReadFile(cachePath); rerr == nil {
				if bs, perr := parseBootstrap(b); perr == nil {
					return bs, nil
				}
			}
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rdap bootstrap http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	bs, err := parseBootstrap(body)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		writeCacheFile(cachePath, body)
	}
	return bs, nil
}

func writeCacheFile(path string, body []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "rdap-dns-*.json")
	if err != nil {
		return
	}
	_, werr := tmp.Write(body)
	cerr := tmp.Close()
	if werr == nil && cerr == nil {
		_ = os.Rename(tmp.Name(), path)
	} else {
		_ = os.Remove(tmp.Name())
	}
}

func parseBootstrap(b []byte) (*bootstrap, error) {
	var raw bootstrapJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	m := make(map[string][]string, 2048)
	for _, svc := range raw.Services {
		if len(svc) != 2 {
			continue
		}
		for _, tld := range svc[0] {
			tld = strings.ToLower(strings.TrimSpace(tld))
			if tld == "" {
				continue
			}
			m[tld] = dedupeURLs(svc[1])
		}
	}
	return &bootstrap{tldToURLs: m}, nil
}

func dedupeURLs(urls []string) []string {
	uniq := make([]string, 0, len(urls))
	seen := map[string]struct{}{}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, err := url.Parse(u); err != nil {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		uniq = append(uniq, u)
	}
	return uniq
}

func lastLabel(domain string) string {
	i := strings.LastIndexByte(domain, '.')
	if i < 0 || i == len(domain)-1 {
		return ""
	}
	return domain[i+1:]
}
