package registrar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   []string
	cur     atomic.Int64
	peak    atomic.Int64
	failFor string
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) CheckDomain(ctx context.Context, domain string) (DomainCheck, error) {
	n := f.cur.Add(1)
	defer f.cur.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	f.calls = append(f.calls, domain)
	f.mu.Unlock()

	if domain == f.failFor {
		return DomainCheck{}, errors.New("rate limited")
	}
	return DomainCheck{Buyable: true, Price: "9.99", Currency: "USD", MinDuration: 1}, nil
}

func TestQuote(t *testing.T) {
	t.Parallel()

	f := &fakeClient{failFor: "bad.com"}
	o := Quote(context.Background(), f, "good.com")
	if o.Provider != "fake" || o.Buyable == nil || !*o.Buyable || o.Price != "9.99" || o.Error != "" {
		t.Fatalf("offer=%+v", o)
	}

	o = Quote(context.Background(), f, "bad.com")
	if o.Error != "rate limited" || o.Buyable != nil {
		t.Fatalf("offer=%+v, want error only", o)
	}
}

func TestQuoteAll_BoundedAndAligned(t *testing.T) {
	t.Parallel()

	f := &fakeClient{failFor: "c.com"}
	domains := []string{"a.com", "b.com", "c.com", "d.com", "e.com", "f.com"}
	offers := QuoteAll(context.Background(), f, 2, domains)

	if len(offers) != len(domains) {
		t.Fatalf("len=%d, want %d", len(offers), len(domains))
	}
	for i, o := range offers {
		if o == nil {
			t.Fatalf("offer %d is nil", i)
		}
		if (domains[i] == "c.com") != (o.Error != "") {
			t.Fatalf("offer %d (%s)=%+v misaligned", i, domains[i], o)
		}
	}
	if p := f.peak.Load(); p > 2 {
		t.Fatalf("peak=%d, want <= 2", p)
	}
}

func TestQuoteAll_NilClient(t *testing.T) {
	t.Parallel()

	offers := QuoteAll(context.Background(), nil, 4, []string{"a.com"})
	if len(offers) != 1 || offers[0] != nil {
		t.Fatalf("offers=%v, want one nil", offers)
	}
}
