// Package generate produces candidate domain names (without suffix) from a
// free-text project description.
//
// Every backend yields a lazy, finite sequence. Names are lowercase
// alphanumeric, 2 to 20 characters, and unique within one call. Breaking out
// of the sequence, or cancelling ctx, releases the underlying stream.
package generate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"regexp"
	"strings"
)

const (
	DefaultCount = 15
	MaxCount     = 50
)

// Generator is a name-generation backend.
type Generator interface {
	// Generate yields up to roughly count names for description. A non-nil
	// error is always the last element of the sequence.
	Generate(ctx context.Context, description string, count int) iter.Seq2[string, error]
}

var ErrUnknownProvider = errors.New("unknown generation provider")

var nameRe = regexp.MustCompile(`^[a-z0-9]{2,20}$`)

// ValidName reports whether s is an acceptable generated name.
func ValidName(s string) bool { return nameRe.MatchString(s) }

// ClampCount bounds a requested name count to 1..MaxCount; 0 means
// DefaultCount.
func ClampCount(n int) int {
	switch {
	case n == 0:
		return DefaultCount
	case n < 1:
		return 1
	case n > MaxCount:
		return MaxCount
	}
	return n
}

type Config struct {
	Provider string // phrase|anthropic|openai|ollama

	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	OllamaBaseURL   string
	OllamaModel     string

	HTTPClient *http.Client
}

// New returns the backend named by cfg.Provider.
func New(cfg Config) (Generator, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "phrase":
		return NewPhrase(PhraseOptions{ReplaceKI: true, Reverse2: true}), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic: ANTHROPIC_API_KEY is not set")
		}
		return &Anthropic{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel, HTTPClient: hc}, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai: OPENAI_API_KEY is not set")
		}
		return &OpenAI{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, HTTPClient: hc}, nil
	case "ollama":
		return &Ollama{BaseURL: cfg.OllamaBaseURL, Model: cfg.OllamaModel, HTTPClient: hc}, nil
	default:
		return nil, fmt.Errorf("%w %q (use phrase|anthropic|openai|ollama)", ErrUnknownProvider, cfg.Provider)
	}
}

const systemPrompt = `You are a creative domain name brainstormer. Given a project description, generate short, memorable, and brandable domain names.

Rules:
- Output ONLY the bare name (without TLD), one per line
- No numbering, bullets, explanations, or commentary
- Names must be 2-20 characters, alphanumeric only (no hyphens)
- Aim for: catchy, easy to spell, easy to remember
- Mix strategies: compound words, portmanteaus, invented words, short phrases
- Lowercase only`

func userPrompt(description string, count int) string {
	return fmt.Sprintf("Generate %d creative domain name ideas (just the name part, no TLD) for this project:\n\n%s", count, description)
}
