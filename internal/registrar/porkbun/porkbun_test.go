package porkbun

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		APIKey:        "k",
		SecretAPIKey:  "s",
		BaseURL:       srv.URL + "/",
		Timeout:       2 * time.Second,
		MinDelay:      time.Nanosecond,
		MaxConcurrent: 1,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClient_CheckDomain_Success(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%q, want POST", r.Method)
		}
		if r.URL.Path != "/domain/checkDomain/xn--bcher-kva.com" {
			t.Errorf("path=%q, want punycode domain", r.URL.Path)
		}
		var body credentials
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.APIKey != "k" || body.SecretAPIKey != "s" {
			t.Errorf("bad keys in body: %#v", body)
		}

		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{
			"status":"SUCCESS",
			"response":{
				"avail":"yes",
				"price":"10.29",
				"regularPrice":"11.08",
				"premium":"no",
				"minDuration":1,
				"firstYearPromo":"yes"
			},
			"limits":{"TTL":"10","limit":"100","used":1,"naturalLanguage":"1 out of 100 checks within 10 seconds used."}
		}`))
	})

	got, err := c.CheckDomain(context.Background(), "https://Bücher.com/path")
	if err != nil {
		t.Fatalf("CheckDomain: %v", err)
	}
	if !got.Buyable || got.Premium || !got.FirstYearPromo {
		t.Fatalf("flags=%+v", got)
	}
	if got.Price != "10.29" || got.RegularPrice != "11.08" || got.Currency != "USD" {
		t.Fatalf("price=%q regular=%q currency=%q", got.Price, got.RegularPrice, got.Currency)
	}
	if got.MinDuration != 1 {
		t.Fatalf("MinDuration=%d, want 1", got.MinDuration)
	}
	if got.Limits == nil || got.Limits.TTLSeconds != 10 || got.Limits.Limit != 100 || got.Limits.Used != 1 {
		t.Fatalf("Limits=%#v, want parsed", got.Limits)
	}
	// 100 requests per 10s slows pacing down to one request per 100ms.
	if lim := c.limiter.Limit(); lim != rate.Every(100*time.Millisecond) {
		t.Fatalf("limit=%v, want %v", lim, rate.Every(100*time.Millisecond))
	}
}

func TestClient_CheckDomain_APIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ERROR","message":"Invalid API key."}`))
	})

	_, err := c.CheckDomain(context.Background(), "example.com")
	if err == nil || !strings.Contains(err.Error(), "Invalid API key.") {
		t.Fatalf("err=%v, want API message", err)
	}
}

func TestClient_CheckDomain_PushbackSlowsDown(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusServiceUnavailable)
	})
	c.limiter.SetLimit(rate.Every(100 * time.Millisecond))
	c.limiter.SetBurst(2)

	_, err := c.CheckDomain(context.Background(), "example.com")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err=%v, want StatusError 503", err)
	}
	if lim := c.limiter.Limit(); lim != rate.Every(200*time.Millisecond) {
		t.Fatalf("limit=%v, want halved to %v", lim, rate.Every(200*time.Millisecond))
	}
}

func TestClient_CheckDomain_RejectsInvalidDomain(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request for %s", r.URL.Path)
	})
	if _, err := c.CheckDomain(context.Background(), "nodot"); err == nil {
		t.Fatalf("expected error for a name without a suffix")
	}
}

func TestClient_CheckDomain_HonorsCancel(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Options{APIKey: "k", SecretAPIKey: "s", BaseURL: "http://127.0.0.1:1", MinDelay: time.Hour})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	// Spend the single burst token so the next request has to wait.
	c.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.CheckDomain(ctx, "example.com"); err == nil {
		t.Fatalf("expected error when pacing wait is cancelled")
	}
}

func TestNewClient_RequiresKeys(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Options{APIKey: "k"}); err == nil {
		t.Fatalf("expected error without secret key")
	}
}
