// Package search runs multi-round generate-then-check sessions: names are
// generated from a description, expanded across suffixes and checked, until
// enough available domains are found or the round budget runs out.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benithors/domhaul/internal/availability"
	"github.com/benithors/domhaul/internal/domain"
	"github.com/benithors/domhaul/internal/generate"
	"github.com/benithors/domhaul/internal/logger"
	"github.com/benithors/domhaul/internal/metrics"
	"github.com/google/uuid"
)

const (
	DefaultBatchSize = 100
	DefaultMaxRounds = 5
)

// ErrNoNames is reported when the first round yields no usable name.
var ErrNoNames = errors.New("no valid names generated")

// Checker is the subset of availability.Checker a session needs.
type Checker interface {
	Check(ctx context.Context, domains []domain.Domain) (<-chan availability.Result, error)
}

type Request struct {
	Description string
	// Suffixes defaults to domain.DefaultSuffixes.
	Suffixes      []string
	NamesPerRound int
	// AvailableTarget of 0 runs a single round.
	AvailableTarget int
	// MaxRounds overrides Options.MaxRounds when > 0.
	MaxRounds int
}

type Options struct {
	Generator generate.Generator
	Checker   Checker

	// BatchSize bounds the number of domains per Check call.
	BatchSize int
	MaxRounds int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Orchestrator struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Orchestrator{opts: opts, log: opts.Logger.With("component", "search")}
}

// StopReason says why a session ended.
type StopReason string

const (
	StopTarget    StopReason = "target"
	StopRounds    StopReason = "rounds"
	StopExhausted StopReason = "exhausted"
	StopCancelled StopReason = "cancelled"
	StopError     StopReason = "error"
)

type Summary struct {
	SessionID string
	Rounds    int
	Checked   int
	Available int
	Reason    StopReason
}

// session is the per-Run state. It is only touched by the goroutine
// executing Run.
type session struct {
	id        string
	req       Request
	suffixes  []string
	maxRounds int
	seen      map[string]struct{}
	available int
	checked   int
	rounds    int
	emit      func(Event)
}

func (s *session) targetMet() bool {
	return s.req.AvailableTarget > 0 && s.available >= s.req.AvailableTarget
}

// Run executes one session, calling emit for every event in order. emit is
// called from the calling goroutine only, and the last event is always a
// single EventDone.
func (o *Orchestrator) Run(ctx context.Context, req Request, emit func(Event)) Summary {
	s := &session{
		id:   uuid.NewString(),
		req:  req,
		seen: make(map[string]struct{}),
		emit: func(ev Event) {
			o.opts.Metrics.Event(string(ev.Type))
			emit(ev)
		},
	}
	log := o.log.With("session", s.id)
	start := time.Now()

	reason := o.run(ctx, s, log)

	s.emit(Done())
	o.opts.Metrics.Rounds(s.rounds)
	log.Info("search finished",
		"reason", reason,
		"rounds", s.rounds,
		"checked", s.checked,
		"available", s.available,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return Summary{SessionID: s.id, Rounds: s.rounds, Checked: s.checked, Available: s.available, Reason: reason}
}

func (o *Orchestrator) run(ctx context.Context, s *session, log *slog.Logger) StopReason {
	suffixes, err := normalizeSuffixes(s.req.Suffixes)
	if err != nil {
		s.emit(Error(err.Error()))
		return StopError
	}
	s.suffixes = suffixes
	if o.opts.Generator == nil || o.opts.Checker == nil {
		s.emit(Error("search is not configured"))
		return StopError
	}

	s.maxRounds = 1
	if s.req.AvailableTarget > 0 {
		s.maxRounds = o.opts.MaxRounds
		if s.req.MaxRounds > 0 {
			s.maxRounds = s.req.MaxRounds
		}
	}
	log.Info("search started", "suffixes", s.suffixes, "target", s.req.AvailableTarget, "max_rounds", s.maxRounds)

	for round := 1; round <= s.maxRounds; round++ {
		if ctx.Err() != nil {
			return StopCancelled
		}
		if round > 1 && s.targetMet() {
			return StopTarget
		}
		s.rounds = round

		if s.maxRounds > 1 {
			s.emit(RoundStarted(round, s.maxRounds))
		}

		names, err := o.generate(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return StopCancelled
			}
			log.Warn("generation failed", "round", round, "error", err)
			s.emit(Error(err.Error()))
			return StopError
		}
		if len(names) == 0 {
			if ctx.Err() != nil {
				return StopCancelled
			}
			if round == 1 {
				s.emit(Error(ErrNoNames.Error()))
				return StopError
			}
			return StopExhausted
		}

		o.check(ctx, s, log, domain.Expand(names, s.suffixes))

		if ctx.Err() != nil {
			return StopCancelled
		}
		if s.targetMet() {
			return StopTarget
		}
	}
	return StopRounds
}

// generate collects one round of previously unseen names, emitting a
// candidate event for each as it arrives.
func (o *Orchestrator) generate(ctx context.Context, s *session) ([]string, error) {
	s.emit(PhaseChanged(PhaseGenerating))

	var names []string
	for name, err := range o.opts.Generator.Generate(ctx, s.req.Description, s.req.NamesPerRound) {
		if err != nil {
			return names, err
		}
		if ctx.Err() != nil {
			break
		}
		if _, ok := s.seen[name]; ok {
			continue
		}
		s.seen[name] = struct{}{}
		names = append(names, name)
		s.emit(Candidate(name))
	}
	return names, nil
}

// check submits domains in sub-batches. A failed batch is reported and
// skipped; once the target is met no further batch is started.
func (o *Orchestrator) check(ctx context.Context, s *session, log *slog.Logger, domains []domain.Domain) {
	s.emit(PhaseChanged(PhaseChecking))

	for i := 0; i < len(domains); i += o.opts.BatchSize {
		if ctx.Err() != nil {
			return
		}
		batch := domains[i:min(i+o.opts.BatchSize, len(domains))]

		results, err := o.opts.Checker.Check(ctx, batch)
		if err != nil {
			log.Warn("check batch failed", "size", len(batch), "error", err)
			s.emit(Error(fmt.Sprintf("check failed: %v", err)))
			continue
		}
		for r := range results {
			s.checked++
			if r.Available != nil && *r.Available {
				s.available++
			}
			s.emit(ResultReady(r))
		}

		if s.targetMet() {
			return
		}
	}
}

func normalizeSuffixes(in []string) ([]string, error) {
	if len(in) == 0 {
		return domain.DefaultSuffixes, nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		n, err := domain.NormalizeSuffix(s)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
