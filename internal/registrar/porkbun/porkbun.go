// Package porkbun quotes domains through the Porkbun JSON API (v3).
//
// Every call is an authenticated POST. Requests are paced by a token bucket
// that only ever slows down: the API reports its quota on each response and
// answers 429/503 when a client runs too hot.
package porkbun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benithors/domhaul/internal/domain"
	"github.com/benithors/domhaul/internal/gate"
	"github.com/benithors/domhaul/internal/registrar"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.porkbun.com/api/json/v3"
	// maxPace bounds how far a single quota report can slow the client.
	maxPace = 5 * time.Second
)

type Options struct {
	APIKey       string
	SecretAPIKey string
	BaseURL      string
	Timeout      time.Duration

	// MinDelay is the initial spacing between requests.
	MinDelay      time.Duration
	MaxConcurrent int
	UserAgent     string
}

type Client struct {
	opts Options
	http *http.Client

	gate    *gate.Gate
	limiter *rate.Limiter
}

func NewClient(opts Options) (*Client, error) {
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	opts.SecretAPIKey = strings.TrimSpace(opts.SecretAPIKey)
	if opts.APIKey == "" || opts.SecretAPIKey == "" {
		return nil, fmt.Errorf("porkbun: missing api key (set PORKBUN_API_KEY and PORKBUN_SECRET_API_KEY)")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = 200 * time.Millisecond
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "domhaul/registrar-porkbun"
	}

	return &Client{
		opts:    opts,
		http:    &http.Client{Timeout: opts.Timeout},
		gate:    gate.New(opts.MaxConcurrent),
		limiter: rate.NewLimiter(rate.Every(opts.MinDelay), 1),
	}, nil
}

func (c *Client) Name() string { return "porkbun" }

// StatusError is a non-200 HTTP answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("porkbun: http %d", e.StatusCode)
	}
	return fmt.Sprintf("porkbun: http %d: %s", e.StatusCode, e.Body)
}

// CheckDomain reports whether d can be bought and at what price.
func (c *Client) CheckDomain(ctx context.Context, d string) (registrar.DomainCheck, error) {
	ascii, err := domain.Normalize(d)
	if err != nil {
		return registrar.DomainCheck{}, fmt.Errorf("porkbun: %w", err)
	}

	var resp checkDomainResponse
	if err := c.call(ctx, "/domain/checkDomain/"+url.PathEscape(ascii), &resp); err != nil {
		return registrar.DomainCheck{}, err
	}
	if err := resp.err(); err != nil {
		return registrar.DomainCheck{}, err
	}

	check := resp.Response.check()
	if l := resp.Limits.parse(); l != nil {
		check.Limits = l
		c.adaptPace(*l)
	}
	return check, nil
}

// call posts the credentials to path and decodes the JSON answer into out.
func (c *Client) call(ctx context.Context, path string, out any) error {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(credentials{APIKey: c.opts.APIKey, SecretAPIKey: c.opts.SecretAPIKey})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")
	req.Header.Set("user-agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("porkbun: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("porkbun: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			c.slowDown()
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("porkbun: decode error: %w", err)
	}
	return nil
}

// adaptPace spreads the reported quota evenly over its window.
func (c *Client) adaptPace(l registrar.Limits) {
	if l.TTLSeconds <= 0 || l.Limit <= 0 {
		return
	}
	per := time.Duration(l.TTLSeconds) * time.Second / time.Duration(l.Limit)
	if per <= 0 {
		return
	}
	c.paceAtLeast(min(per, maxPace))
}

// slowDown halves the request rate after the API pushed back.
func (c *Client) slowDown() {
	per := time.Duration(float64(time.Second) / float64(c.limiter.Limit()) * 2)
	c.paceAtLeast(min(per, maxPace))
}

func (c *Client) paceAtLeast(per time.Duration) {
	if lim := rate.Every(per); lim < c.limiter.Limit() {
		c.limiter.SetLimit(lim)
	}
}

type credentials struct {
	APIKey       string `json:"apikey"`
	SecretAPIKey string `json:"secretapikey"`
}

type envelope struct {
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	Limits  apiLimits `json:"limits"`
}

func (e envelope) err() error {
	if strings.EqualFold(e.Status, "SUCCESS") {
		return nil
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("porkbun: %s", msg)
}

type checkDomainResponse struct {
	envelope
	Response quote `json:"response"`
}

type quote struct {
	Avail          string `json:"avail"`
	Price          string `json:"price"`
	RegularPrice   string `json:"regularPrice"`
	Premium        string `json:"premium"`
	MinDuration    int    `json:"minDuration"`
	FirstYearPromo string `json:"firstYearPromo"`
}

// Porkbun only quotes in US dollars.
func (a quote) check() registrar.DomainCheck {
	return registrar.DomainCheck{
		Buyable:        flag(a.Avail),
		Premium:        flag(a.Premium),
		Price:          strings.TrimSpace(a.Price),
		RegularPrice:   strings.TrimSpace(a.RegularPrice),
		Currency:       "USD",
		MinDuration:    a.MinDuration,
		FirstYearPromo: flag(a.FirstYearPromo),
	}
}

type apiLimits struct {
	TTL             string `json:"TTL"`
	Limit           string `json:"limit"`
	Used            int    `json:"used"`
	NaturalLanguage string `json:"naturalLanguage"`
}

func (l apiLimits) parse() *registrar.Limits {
	ttl, _ := strconv.Atoi(strings.TrimSpace(l.TTL))
	limit, _ := strconv.Atoi(strings.TrimSpace(l.Limit))
	text := strings.TrimSpace(l.NaturalLanguage)
	if ttl == 0 && limit == 0 && l.Used == 0 && text == "" {
		return nil
	}
	return &registrar.Limits{TTLSeconds: ttl, Limit: limit, Used: l.Used, NaturalLanguage: text}
}

func flag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}
