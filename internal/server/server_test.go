package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benithors/domhaul/internal/availability"
	"github.com/benithors/domhaul/internal/domain"
	"github.com/benithors/domhaul/internal/metrics"
	"github.com/benithors/domhaul/internal/search"
	"github.com/prometheus/client_golang/prometheus"
)

type listGenerator struct {
	names []string
	err   error

	mu    sync.Mutex
	count int
}

func (g *listGenerator) Generate(ctx context.Context, description string, count int) iter.Seq2[string, error] {
	g.mu.Lock()
	g.count = count
	g.mu.Unlock()
	return func(yield func(string, error) bool) {
		for _, n := range g.names {
			if !yield(n, nil) {
				return
			}
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

type availableChecker struct {
	available map[string]bool
	err       error
	block     chan struct{}
}

func (c *availableChecker) Check(ctx context.Context, domains []domain.Domain) (<-chan availability.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.block != nil {
		<-c.block
	}
	out := make(chan availability.Result, len(domains))
	for _, d := range domains {
		avail := c.available[d.String()]
		out <- availability.Result{Domain: d.String(), Name: d.Name, Suffix: d.Suffix, Available: &avail}
	}
	close(out)
	return out, nil
}

func readEvents(t *testing.T, body io.Reader) []search.Event {
	t.Helper()
	var events []search.Event
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			t.Fatalf("unexpected line %q", line)
		}
		var ev search.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		events = append(events, ev)
	}
	return events
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func types(events []search.Event) string {
	var parts []string
	for _, ev := range events {
		parts = append(parts, string(ev.Type))
	}
	return strings.Join(parts, ",")
}

func TestGenerate_StreamsCandidates(t *testing.T) {
	t.Parallel()

	gen := &listGenerator{names: []string{"brewhub", "roastly"}}
	s := New(Options{Generator: gen})

	w := post(t, s, "/api/generate", `{"description":"coffee","count":500}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}
	events := readEvents(t, w.Body)
	if got := types(events); got != "phase,candidate,candidate,done" {
		t.Fatalf("events=%s", got)
	}
	if events[1].Name != "brewhub" {
		t.Fatalf("first candidate=%q", events[1].Name)
	}
	if gen.count != 50 {
		t.Fatalf("count=%d, want clamped to 50", gen.count)
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	s := New(Options{Generator: &listGenerator{}})
	if w := post(t, s, "/api/generate", `{"description":"  "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("blank description status=%d, want 400", w.Code)
	}
	if w := post(t, s, "/api/generate", `{not json`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d, want 400", w.Code)
	}

	w := post(t, s, "/api/generate", `{"description":"x"}`)
	events := readEvents(t, w.Body)
	if got := types(events); got != "phase,error,done" || events[1].Message != search.ErrNoNames.Error() {
		t.Fatalf("events=%s %+v", got, events)
	}

	s = New(Options{Generator: &listGenerator{names: []string{"one1"}, err: errors.New("ollama: http 500")}})
	events = readEvents(t, post(t, s, "/api/generate", `{"description":"x"}`).Body)
	if got := types(events); got != "phase,candidate,error,done" {
		t.Fatalf("events=%s", got)
	}
}

func TestCheck_StreamsResults(t *testing.T) {
	t.Parallel()

	chk := &availableChecker{available: map[string]bool{"free.com": true}}
	s := New(Options{Checker: chk})

	w := post(t, s, "/api/check", `{"domains":["free.com, taken.com\nfree.com", "bogus", "x.museum"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	events := readEvents(t, w.Body)
	if got := types(events); got != "phase,result,result,done" {
		t.Fatalf("events=%s", got)
	}
	avail := map[string]bool{}
	for _, ev := range events {
		if ev.Type == search.EventResult {
			avail[ev.Result.Domain] = *ev.Result.Available
		}
	}
	if !avail["free.com"] || avail["taken.com"] {
		t.Fatalf("results=%v", avail)
	}
}

func TestCheck_RejectsBadInput(t *testing.T) {
	t.Parallel()

	s := New(Options{Checker: &availableChecker{}, MaxCheck: 2})
	if w := post(t, s, "/api/check", `{"domains":["nope"]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("no valid domains status=%d, want 400", w.Code)
	}
	if w := post(t, s, "/api/check", `{"domains":["aa.com bb.com cc.com"]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("too many status=%d, want 400", w.Code)
	}
}

func TestCheck_CheckerErrorIsAnEvent(t *testing.T) {
	t.Parallel()

	s := New(Options{Checker: &availableChecker{err: availability.ErrBatchTooLarge}})
	events := readEvents(t, post(t, s, "/api/check", `{"domains":["aa.com"]}`).Body)
	if got := types(events); got != "phase,error,done" {
		t.Fatalf("events=%s", got)
	}
}

func TestSearch_RunsSession(t *testing.T) {
	t.Parallel()

	gen := &listGenerator{names: []string{"foo", "bar"}}
	chk := &availableChecker{available: map[string]bool{"foo.io": true}}
	s := New(Options{Search: search.New(search.Options{Generator: gen, Checker: chk})})

	w := post(t, s, "/api/search", `{"description":"x","suffixes":[".com",".io"],"count":2}`)
	events := readEvents(t, w.Body)

	var results, done int
	for _, ev := range events {
		switch ev.Type {
		case search.EventResult:
			results++
		case search.EventDone:
			done++
		case search.EventRound:
			t.Fatalf("unexpected round event in single-shot session")
		}
	}
	if results != 4 || done != 1 {
		t.Fatalf("results=%d done=%d, want 4 1 (%s)", results, done, types(events))
	}
	if events[len(events)-1].Type != search.EventDone {
		t.Fatalf("last event=%q", events[len(events)-1].Type)
	}
}

func TestSearch_Validation(t *testing.T) {
	t.Parallel()

	s := New(Options{Search: search.New(search.Options{})})
	if w := post(t, s, "/api/search", `{"description":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
	if w := post(t, s, "/api/search", `{"description":"x","availableTarget":-1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", w.Code)
	}
}

// lockedBuffer collects log output written from handler goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStreamLimit_RejectsWhenFull(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	chk := &availableChecker{block: block}
	logs := &lockedBuffer{}
	s := New(Options{
		Checker:    chk,
		MaxStreams: 1,
		StreamWait: 20 * time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(logs, nil)),
	})
	srv := httptest.NewServer(s)
	defer srv.Close()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		resp, err := http.Post(srv.URL+"/api/check", "application/json", strings.NewReader(`{"domains":["aa.com"]}`))
		if err != nil {
			t.Errorf("first request: %v", err)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	// Wait until the first request holds the only slot.
	time.Sleep(50 * time.Millisecond)
	resp, err := http.Post(srv.URL+"/api/check", "application/json", strings.NewReader(`{"domains":["bb.com"]}`))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", resp.StatusCode)
	}
	if out := logs.String(); !strings.Contains(out, "stream limit reached") || !strings.Contains(out, "in_flight=1") {
		t.Fatalf("missing rejection log:\n%s", out)
	}

	close(block)
	<-firstDone
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.CacheHit(2)
	s := New(Options{Gatherer: reg})

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "ok" {
		t.Fatalf("healthz=%d %q", w.Code, w.Body)
	}

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "domhaul_cache_hits_total 2") {
		t.Fatalf("metrics=%d %s", w.Code, w.Body)
	}
}
