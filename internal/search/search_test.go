package search

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/benithors/domhaul/internal/availability"
	"github.com/benithors/domhaul/internal/domain"
)

// scriptedGenerator yields rounds[i] on the i-th call. err, when set, is
// yielded after the names of round errRound.
type scriptedGenerator struct {
	mu       sync.Mutex
	rounds   [][]string
	calls    int
	err      error
	errRound int
	counts   []int
}

func (g *scriptedGenerator) Generate(ctx context.Context, description string, count int) iter.Seq2[string, error] {
	g.mu.Lock()
	call := g.calls
	g.calls++
	g.counts = append(g.counts, count)
	g.mu.Unlock()

	return func(yield func(string, error) bool) {
		if call < len(g.rounds) {
			for _, n := range g.rounds[call] {
				if !yield(n, nil) {
					return
				}
			}
		}
		if g.err != nil && call == g.errRound {
			yield("", g.err)
		}
	}
}

// fakeChecker answers from a fixed set of available domains and records
// every batch it receives.
type fakeChecker struct {
	mu        sync.Mutex
	available map[string]bool
	batches   [][]string
	failBatch int // 1-based; 0 disables
	onCheck   func()
}

func (c *fakeChecker) Check(ctx context.Context, domains []domain.Domain) (<-chan availability.Result, error) {
	c.mu.Lock()
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = d.String()
	}
	c.batches = append(c.batches, names)
	n := len(c.batches)
	c.mu.Unlock()

	if c.onCheck != nil {
		c.onCheck()
	}
	if n == c.failBatch {
		return nil, errors.New("lookup service down")
	}

	out := make(chan availability.Result, len(domains))
	for _, d := range domains {
		avail := c.available[d.String()]
		out <- availability.Result{Domain: d.String(), Name: d.Name, Suffix: d.Suffix, Available: &avail}
	}
	close(out)
	return out, nil
}

func (c *fakeChecker) checked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []string
	for _, b := range c.batches {
		all = append(all, b...)
	}
	return all
}

type recorder struct {
	events []Event
}

func (r *recorder) emit(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) count(t EventType) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) messages() []string {
	var out []string
	for _, ev := range r.events {
		if ev.Type == EventError {
			out = append(out, ev.Message)
		}
	}
	return out
}

func assertSingleDone(t *testing.T, r *recorder) {
	t.Helper()
	if n := r.count(EventDone); n != 1 {
		t.Fatalf("done events=%d, want 1", n)
	}
	if last := r.events[len(r.events)-1]; last.Type != EventDone {
		t.Fatalf("last event=%q, want done", last.Type)
	}
}

func TestRun_SingleShotWithoutTarget(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{rounds: [][]string{{"foo", "bar"}, {"baz"}}}
	chk := &fakeChecker{}
	o := New(Options{Generator: gen, Checker: chk})

	rec := &recorder{}
	sum := o.Run(context.Background(), Request{Description: "x", Suffixes: []string{".com"}, NamesPerRound: 2}, rec.emit)

	if got := chk.checked(); len(got) != 2 {
		t.Fatalf("checked=%v, want 2 domains", got)
	}
	if gen.calls != 1 || sum.Rounds != 1 {
		t.Fatalf("generator calls=%d rounds=%d, want 1 1", gen.calls, sum.Rounds)
	}
	if n := rec.count(EventRound); n != 0 {
		t.Fatalf("round events=%d, want 0", n)
	}
	if sum.Reason != StopRounds {
		t.Fatalf("reason=%q, want rounds", sum.Reason)
	}
	assertSingleDone(t, rec)
}

func TestRun_StopsOnceTargetReached(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{rounds: [][]string{
		{"alpha", "beta"},
		{"gamma", "delta", "eps"},
		{"zeta"},
	}}
	chk := &fakeChecker{available: map[string]bool{
		"alpha.com": true,
		"gamma.com": true,
		"delta.com": true,
	}}
	o := New(Options{Generator: gen, Checker: chk, MaxRounds: 5})

	rec := &recorder{}
	sum := o.Run(context.Background(), Request{Description: "x", NamesPerRound: 3, AvailableTarget: 2}, rec.emit)

	if gen.calls != 2 {
		t.Fatalf("generator calls=%d, want 2", gen.calls)
	}
	if sum.Available < 2 || sum.Reason != StopTarget {
		t.Fatalf("summary=%+v, want available>=2 reason target", sum)
	}
	if n := rec.count(EventRound); n != 2 {
		t.Fatalf("round events=%d, want 2", n)
	}
	for _, ev := range rec.events {
		if ev.Type == EventRound && ev.MaxRounds != 5 {
			t.Fatalf("round event=%+v, want maxRounds 5", ev)
		}
	}
	for _, c := range gen.counts {
		if c != 3 {
			t.Fatalf("requested count=%d, want 3", c)
		}
	}
	assertSingleDone(t, rec)
}

func TestRun_NeverRechecksSeenNames(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{rounds: [][]string{
		{"foo", "bar"},
		{"foo", "qux", "bar"},
		{"foo"},
	}}
	chk := &fakeChecker{}
	o := New(Options{Generator: gen, Checker: chk, MaxRounds: 5})

	rec := &recorder{}
	sum := o.Run(context.Background(), Request{Description: "x", Suffixes: []string{"com", ".io"}, AvailableTarget: 10}, rec.emit)

	got := chk.checked()
	seen := map[string]int{}
	for _, d := range got {
		seen[d]++
	}
	for d, n := range seen {
		if n != 1 {
			t.Fatalf("%s checked %d times", d, n)
		}
	}
	if len(got) != 6 {
		t.Fatalf("checked=%v, want foo,bar,qux x .com,.io", got)
	}
	if n := rec.count(EventCandidate); n != 3 {
		t.Fatalf("candidate events=%d, want 3", n)
	}
	// Round 3 yields nothing new: the session ends without an error.
	if sum.Reason != StopExhausted || len(rec.messages()) != 0 {
		t.Fatalf("reason=%q errors=%v, want exhausted without errors", sum.Reason, rec.messages())
	}
	assertSingleDone(t, rec)
}

func TestRun_NoNamesInFirstRound(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{}
	chk := &fakeChecker{}
	o := New(Options{Generator: gen, Checker: chk})

	rec := &recorder{}
	sum := o.Run(context.Background(), Request{Description: "x", AvailableTarget: 3}, rec.emit)

	if msgs := rec.messages(); len(msgs) != 1 || msgs[0] != ErrNoNames.Error() {
		t.Fatalf("errors=%v, want [%s]", msgs, ErrNoNames)
	}
	if len(chk.checked()) != 0 || sum.Reason != StopError {
		t.Fatalf("summary=%+v", sum)
	}
	assertSingleDone(t, rec)
}

func TestRun_GeneratorFailureAbortsSession(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{
		rounds:   [][]string{{"one"}, {"two"}},
		err:      errors.New("anthropic: http 529: overloaded"),
		errRound: 1,
	}
	chk := &fakeChecker{}
	o := New(Options{Generator: gen, Checker: chk})

	rec := &recorder{}
	sum := o.Run(context.Background(), Request{Description: "x", AvailableTarget: 5}, rec.emit)

	if msgs := rec.messages(); len(msgs) != 1 || msgs[0] != "anthropic: http 529: overloaded" {
		t.Fatalf("errors=%v", msgs)
	}
	if sum.Rounds != 2 || sum.Reason != StopError {
		t.Fatalf("summary=%+v, want 2 rounds ending in error", sum)
	}
	if got := chk.checked(); len(got) != 1 || got[0] != "one.com" {
		t.Fatalf("checked=%v, want only round 1", got)
	}
	assertSingleDone(t, rec)
}

func TestRun_FailedBatchContinues(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{rounds: [][]string{{"aa", "bb", "cc", "dd", "ee"}}}
	chk := &fakeChecker{failBatch: 1}
	o := New(Options{Generator: gen, Checker: chk, BatchSize: 2})

	rec := &recorder{}
	o.Run(context.Background(), Request{Description: "x"}, rec.emit)

	if len(chk.batches) != 3 {
		t.Fatalf("batches=%v, want 3", chk.batches)
	}
	if n := rec.count(EventResult); n != 3 {
		t.Fatalf("result events=%d, want 3 (first batch failed)", n)
	}
	if len(rec.messages()) != 1 {
		t.Fatalf("errors=%v, want one", rec.messages())
	}
	assertSingleDone(t, rec)
}

func TestRun_TargetSkipsRemainingBatches(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{rounds: [][]string{{"aa", "bb", "cc", "dd"}}}
	chk := &fakeChecker{available: map[string]bool{"aa.com": true}}
	o := New(Options{Generator: gen, Checker: chk, BatchSize: 2})

	rec := &recorder{}
	sum := o.Run(context.Background(), Request{Description: "x", AvailableTarget: 1}, rec.emit)

	if len(chk.batches) != 1 || sum.Reason != StopTarget {
		t.Fatalf("batches=%v reason=%q, want 1 batch then target", chk.batches, sum.Reason)
	}
	assertSingleDone(t, rec)
}

func TestRun_CancelStillEmitsDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &scriptedGenerator{rounds: [][]string{{"aa", "bb", "cc"}, {"dd"}}}
	chk := &fakeChecker{onCheck: cancel}
	o := New(Options{Generator: gen, Checker: chk, BatchSize: 1})

	rec := &recorder{}
	sum := o.Run(ctx, Request{Description: "x", AvailableTarget: 10}, rec.emit)

	if len(chk.batches) != 1 {
		t.Fatalf("batches=%d, want 1 (no batch after cancel)", len(chk.batches))
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls=%d, want 1 (no round after cancel)", gen.calls)
	}
	if sum.Reason != StopCancelled || len(rec.messages()) != 0 {
		t.Fatalf("reason=%q errors=%v, want cancelled without errors", sum.Reason, rec.messages())
	}
	assertSingleDone(t, rec)
}

func TestRun_InvalidSuffix(t *testing.T) {
	t.Parallel()

	o := New(Options{Generator: &scriptedGenerator{}, Checker: &fakeChecker{}})
	rec := &recorder{}
	sum := o.Run(context.Background(), Request{Description: "x", Suffixes: []string{".museum"}}, rec.emit)

	if sum.Reason != StopError || len(rec.messages()) != 1 {
		t.Fatalf("reason=%q errors=%v", sum.Reason, rec.messages())
	}
	assertSingleDone(t, rec)
}

func TestRun_EventOrderWithinRound(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{rounds: [][]string{{"solo"}}}
	chk := &fakeChecker{available: map[string]bool{"solo.com": true}}
	o := New(Options{Generator: gen, Checker: chk})

	rec := &recorder{}
	o.Run(context.Background(), Request{Description: "x"}, rec.emit)

	want := []EventType{EventPhase, EventCandidate, EventPhase, EventResult, EventDone}
	if len(rec.events) != len(want) {
		t.Fatalf("events=%+v", rec.events)
	}
	for i, ev := range rec.events {
		if ev.Type != want[i] {
			t.Fatalf("event %d=%q, want %q", i, ev.Type, want[i])
		}
	}
	if rec.events[0].Phase != PhaseGenerating || rec.events[2].Phase != PhaseChecking {
		t.Fatalf("phases=%q,%q", rec.events[0].Phase, rec.events[2].Phase)
	}
	if r := rec.events[3].Result; r == nil || r.Domain != "solo.com" || r.Available == nil || !*r.Available {
		t.Fatalf("result=%+v", r)
	}
}
