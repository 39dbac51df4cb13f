package whois

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benithors/domhaul/internal/lookup"
	lwhois "github.com/likexian/whois"
	"golang.org/x/time/rate"
)

const ianaServer = "whois.iana.org"

type Options struct {
	Timeout time.Duration

	// Safety valves for WHOIS servers.
	MaxConcurrentPerServer int
	MinDelayPerServer      time.Duration
}

// Client is a port-43 WHOIS lookup backend. Responses are classified by
// well-known "not found" phrases; anything it cannot classify is reported as
// a transient error so the caller may retry. Each call sends one query per
// server: retries belong to the caller, and failures that a retry cannot fix
// are marked lookup.Permanent.
type Client struct {
	opts Options
	raw  func(q, server string) (string, error)

	mu          sync.Mutex
	tldToServer map[string]string
	serverState map[string]*perServerState
}

type perServerState struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// ErrAmbiguous is returned when a WHOIS body matches neither a not-found
// phrase nor a registration record.
var ErrAmbiguous = errors.New("whois: ambiguous response")

func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MaxConcurrentPerServer <= 0 {
		opts.MaxConcurrentPerServer = 1
	}
	if opts.MinDelayPerServer <= 0 {
		opts.MinDelayPerServer = 250 * time.Millisecond
	}
	wc := lwhois.NewClient().SetTimeout(opts.Timeout)
	return &Client{
		opts:        opts,
		raw:         func(q, server string) (string, error) { return wc.Whois(q, server) },
		tldToServer: make(map[string]string, 256),
	}
}

func (c *Client) IsAvailable(ctx context.Context, domain string) (bool, error) {
	server, body, err := c.lookup(ctx, domain)
	if err != nil {
		return false, err
	}
	switch status, _ := classify(domain, body); status {
	case "available":
		return true, nil
	case "taken":
		return false, nil
	default:
		return false, fmt.Errorf("%s via %s: %w", domain, server, ErrAmbiguous)
	}
}

var registrarRe = regexp.MustCompile(`(?im)^\s*(?:registrar|registrar name|sponsoring registrar)\s*:\s*(\S.*?)\s*$`)

func (c *Client) LookupRegistrar(ctx context.Context, domain string) (string, error) {
	_, body, err := c.lookup(ctx, domain)
	if err != nil {
		return "", err
	}
	if m := registrarRe.FindStringSubmatch(body); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("whois: no registrar in response for %s", domain)
}

func (c *Client) lookup(ctx context.Context, domain string) (server, body string, err error) {
	tld := lastLabel(domain)
	if tld == "" {
		return "", "", lookup.Permanent(fmt.Errorf("whois: invalid domain %q", domain))
	}

	server, err = c.serverForTLD(ctx, tld)
	if err != nil {
		return "", "", classifyErr(ctx, err)
	}

	body, err = c.queryOnce(ctx, server, domain)
	if err != nil {
		return server, "", classifyErr(ctx, fmt.Errorf("whois %s: %w", server, err))
	}
	return server, body, nil
}

// classifyErr marks failures that another attempt would not fix.
func classifyErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || lookup.IsPermanent(err) || isRetryable(err) {
		return err
	}
	return lookup.Permanent(err)
}

func (c *Client) serverForTLD(ctx context.Context, tld string) (string, error) {
	tld = strings.ToLower(strings.TrimSpace(tld))
	if tld == "" {
		return "", fmt.Errorf("empty tld")
	}

	c.mu.Lock()
	if s, ok := c.tldToServer[tld]; ok && s != "" {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	body, err := c.queryOnce(ctx, ianaServer, tld)
	if err != nil {
		return "", err
	}

	server := parseReferral(body)
	if server == "" {
		return "", fmt.Errorf("whois .%s: %w", tld, lookup.ErrUnsupported)
	}
	c.mu.Lock()
	c.tldToServer[tld] = server
	c.mu.Unlock()
	return server, nil
}

// parseReferral finds the "whois:" line of an IANA TLD record.
func parseReferral(body string) string {
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		// Example: "whois: whois.verisign-grs.com"
		if strings.HasPrefix(strings.ToLower(line), "whois:") {
			if f := strings.Fields(line[len("whois:"):]); len(f) > 0 {
				return f[0]
			}
		}
	}
	return ""
}

func (c *Client) stateForServer(server string) *perServerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverState == nil {
		c.serverState = make(map[string]*perServerState, 32)
	}
	if st, ok := c.serverState[server]; ok {
		return st
	}
	st := &perServerState{
		sem:     make(chan struct{}, c.opts.MaxConcurrentPerServer),
		limiter: rate.NewLimiter(rate.Every(c.opts.MinDelayPerServer), 1),
	}
	c.serverState[server] = st
	return st
}

func (c *Client) queryOnce(ctx context.Context, server, q string) (string, error) {
	st := c.stateForServer(server)

	// Bound concurrency per server.
	select {
	case st.sem <- struct{}{}:
		defer func() { <-st.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	// Pace per server; the wait does not count towards the network timeout.
	if err := st.limiter.Wait(ctx); err != nil {
		return "", err
	}

	// The underlying client has no context support, so the query runs in its
	// own goroutine and is abandoned on cancellation; its own timeout bounds it.
	type reply struct {
		body string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		body, err := c.raw(q, server)
		ch <- reply{body, err}
	}()
	select {
	case r := <-ch:
		return r.body, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

var notFoundPatterns = []struct {
	Needle  string
	Pattern string
}{
	{"no match for", "no_match_for"},
	{"no data found", "no_data_found"},
	{"no entries found", "no_entries_found"},
	{"domain not found", "domain_not_found"},
	{"no such domain", "no_such_domain"},
	{"status: free", "status_free"},
	{"status: available", "status_available"},
	{"not found", "not_found"},
}

func classify(domain, body string) (status string, pattern string) {
	l := strings.ToLower(body)
	for _, p := range notFoundPatterns {
		if strings.Contains(l, p.Needle) {
			return "available", p.Pattern
		}
	}

	// Try to detect a record that explicitly names the domain.
	escaped := regexp.QuoteMeta(domain)
	for _, re := range []*regexp.Regexp{
		regexp.MustCompile(`(?im)^\s*domain name:\s*` + escaped + `\s*$`),
		regexp.MustCompile(`(?im)^\s*domain\s*:\s*` + escaped + `\s*$`),
	} {
		if re.FindStringIndex(body) != nil {
			return "taken", re.String()
		}
	}

	// Fallback heuristics.
	if strings.Contains(l, "domain name:") || strings.Contains(l, "registrar:") {
		return "taken", "heuristic_record_fields"
	}

	return "unknown", ""
}

func lastLabel(domain string) string {
	i := strings.LastIndexByte(domain, '.')
	if i < 0 || i == len(domain)-1 {
		return ""
	}
	return domain[i+1:]
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Timeouts are often transient for WHOIS.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}

	// Common transient TCP-level failures for simple WHOIS servers.
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "connection reset"):
		return true
	case strings.Contains(s, "broken pipe"):
		return true
	case strings.Contains(s, "unexpected eof"):
		return true
	case strings.Contains(s, "i/o timeout"):
		return true
	}

	return false
}
