// Package registrar describes registrar APIs that can say whether an
// unregistered domain is actually buyable, and at what price.
package registrar

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type Client interface {
	Name() string
	CheckDomain(ctx context.Context, domain string) (DomainCheck, error)
}

type DomainCheck struct {
	Buyable        bool
	Premium        bool
	Price          string // price for the minimum duration (usually 1 year)
	RegularPrice   string // non-promo price if available
	Currency       string // e.g. USD
	MinDuration    int    // years
	FirstYearPromo bool

	// Provider-specific rate limit info when available.
	Limits *Limits
}

type Limits struct {
	TTLSeconds      int    `json:"ttl_seconds,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	Used            int    `json:"used,omitempty"`
	NaturalLanguage string `json:"natural_language,omitempty"`
}

// Offer is the JSON-facing view of a DomainCheck. A failed check still yields
// an Offer carrying Provider and Error.
type Offer struct {
	Provider       string  `json:"provider"`
	Buyable        *bool   `json:"buyable,omitempty"`
	Premium        *bool   `json:"premium,omitempty"`
	Price          string  `json:"price,omitempty"`
	RegularPrice   string  `json:"regular_price,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	MinDuration    int     `json:"min_duration,omitempty"`
	FirstYearPromo *bool   `json:"first_year_promo,omitempty"`
	Limits         *Limits `json:"limits,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Quote checks one domain and never fails; errors are carried in the Offer.
func Quote(ctx context.Context, c Client, domain string) *Offer {
	o := &Offer{Provider: c.Name()}
	dc, err := c.CheckDomain(ctx, domain)
	if err != nil {
		o.Error = err.Error()
		return o
	}
	o.Buyable = &dc.Buyable
	o.Premium = &dc.Premium
	o.Price = dc.Price
	o.RegularPrice = dc.RegularPrice
	o.Currency = dc.Currency
	o.MinDuration = dc.MinDuration
	o.FirstYearPromo = &dc.FirstYearPromo
	o.Limits = dc.Limits
	return o
}

// QuoteAll quotes every domain with at most concurrency requests in flight.
// The returned slice is index-aligned with domains.
func QuoteAll(ctx context.Context, c Client, concurrency int, domains []string) []*Offer {
	out := make([]*Offer, len(domains))
	if c == nil {
		return out
	}

	var g errgroup.Group
	g.SetLimit(max(1, concurrency))
	for i, d := range domains {
		g.Go(func() error {
			out[i] = Quote(ctx, c, d)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
