package search

import "github.com/benithors/domhaul/internal/availability"

type EventType string

const (
	EventPhase     EventType = "phase"
	EventCandidate EventType = "candidate"
	EventResult    EventType = "result"
	EventRound     EventType = "round"
	EventError     EventType = "error"
	EventDone      EventType = "done"
)

type Phase string

const (
	PhaseGenerating Phase = "generating"
	PhaseChecking   Phase = "checking"
)

// Event is one entry of a session's event stream. Only the fields relevant
// to Type are set.
type Event struct {
	Type      EventType            `json:"type"`
	Phase     Phase                `json:"phase,omitempty"`
	Name      string               `json:"name,omitempty"`
	Result    *availability.Result `json:"result,omitempty"`
	Round     int                  `json:"round,omitempty"`
	MaxRounds int                  `json:"maxRounds,omitempty"`
	Message   string               `json:"message,omitempty"`
}

func PhaseChanged(p Phase) Event { return Event{Type: EventPhase, Phase: p} }

func Candidate(name string) Event { return Event{Type: EventCandidate, Name: name} }

func ResultReady(r availability.Result) Event { return Event{Type: EventResult, Result: &r} }

func RoundStarted(round, maxRounds int) Event {
	return Event{Type: EventRound, Round: round, MaxRounds: maxRounds}
}

func Error(msg string) Event { return Event{Type: EventError, Message: msg} }

func Done() Event { return Event{Type: EventDone} }
