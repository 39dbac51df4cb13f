package generate

import (
	"context"
	"iter"
	"sort"
	"strings"
	"unicode"
)

// PhraseOptions tune the offline phrase backend.
type PhraseOptions struct {
	// ReplaceKI also tries "ai" for "ki" and vice versa.
	ReplaceKI bool
	// Reverse2 also tries two-token phrases in reverse order.
	Reverse2    bool
	MinTokenLen int
}

// Candidate is a scored name; higher scores rank first.
type Candidate struct {
	Name  string
	Score int
}

// Phrase derives names deterministically from the words of the description:
// whole-phrase and n-gram concatenations, scored by length and token count.
// It needs no network access.
type Phrase struct {
	opts PhraseOptions
}

func NewPhrase(opts PhraseOptions) *Phrase {
	if opts.MinTokenLen <= 0 {
		opts.MinTokenLen = 2
	}
	return &Phrase{opts: opts}
}

func (p *Phrase) Generate(ctx context.Context, description string, count int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		count = ClampCount(count)
		for i, c := range p.Candidates(description) {
			if i >= count {
				return
			}
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(c.Name, nil) {
				return
			}
		}
	}
}

// Candidates returns every valid name derivable from phrase, best first.
func (p *Phrase) Candidates(phrase string) []Candidate {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil
	}

	baseTokens := tokenize(phrase, p.opts.MinTokenLen)
	if len(baseTokens) == 0 {
		return nil
	}

	combos := [][]string{baseTokens}
	if p.opts.ReplaceKI {
		combos = expandKI(baseTokens)
	}

	seen := map[string]int{}
	add := func(name string, score int) {
		if !ValidName(name) {
			return
		}
		if old, ok := seen[name]; ok && old >= score {
			return
		}
		seen[name] = score
	}

	for _, toks := range combos {
		for _, seq := range sequences(toks) {
			for _, expanded := range expandTokens(seq) {
				add(strings.Join(expanded, ""), scoreName(expanded))

				if p.opts.Reverse2 && len(expanded) == 2 {
					r := []string{expanded[1], expanded[0]}
					add(strings.Join(r, ""), scoreName(r)-10)
				}
			}
		}
	}

	out := make([]Candidate, 0, len(seen))
	for name, score := range seen {
		out = append(out, Candidate{Name: name, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if len(out[i].Name) != len(out[j].Name) {
			return len(out[i].Name) < len(out[j].Name)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func tokenize(s string, minLen int) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) == 0 {
			return
		}
		t := string(cur)
		cur = cur[:0]
		if len(t) < minLen || stopWords[t] {
			return
		}
		tokens = append(tokens, t)
	}

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			cur = append(cur, r)
		case r >= '0' && r <= '9':
			cur = append(cur, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			// Drop non-ASCII letters/digits for now.
			flush()
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// Glue words that make descriptions readable but names worse.
var stopWords = map[string]bool{
	"an": true, "the": true, "and": true, "or": true, "of": true,
	"for": true, "to": true, "in": true, "on": true, "with": true, "that": true,
	"is": true, "my": true, "your": true, "our": true,
}

func sequences(tokens []string) [][]string {
	if len(tokens) == 0 {
		return nil
	}
	var out [][]string

	add := func(toks []string) {
		if len(toks) == 0 {
			return
		}
		out = append(out, append([]string(nil), toks...))
	}

	// Full phrase.
	add(tokens)

	// Single tokens, 2- and 3-grams (contiguous).
	for n := 1; n <= 3; n++ {
		if len(tokens) < n {
			continue
		}
		for i := 0; i <= len(tokens)-n; i++ {
			add(tokens[i : i+n])
		}
	}

	// Remove exactly one token.
	if len(tokens) >= 3 && len(tokens) <= 6 {
		for drop := 0; drop < len(tokens); drop++ {
			var seq []string
			for i := range tokens {
				if i == drop {
					continue
				}
				seq = append(seq, tokens[i])
			}
			add(seq)
		}
	}

	seen := map[string]struct{}{}
	uniq := out[:0]
	for _, s := range out {
		key := strings.Join(s, "\x00")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, s)
	}
	return uniq
}

func expandTokens(tokens []string) [][]string {
	alts := make([][]string, 0, len(tokens))
	for _, t := range tokens {
		switch t {
		case "engineering":
			alts = append(alts, []string{"engineering", "eng"})
		case "engineer":
			alts = append(alts, []string{"engineer", "eng"})
		case "application":
			alts = append(alts, []string{"application", "app"})
		default:
			alts = append(alts, []string{t})
		}
	}
	return product(alts, 16)
}

func expandKI(tokens []string) [][]string {
	alts := make([][]string, 0, len(tokens))
	for _, t := range tokens {
		switch t {
		case "ki":
			alts = append(alts, []string{"ki", "ai"})
		case "ai":
			alts = append(alts, []string{"ai", "ki"})
		default:
			alts = append(alts, []string{t})
		}
	}
	// The first combination is always the base tokens.
	return product(alts, 16)
}

// product returns up to limit combinations picking one alternative per slot,
// in lexicographic slot order.
func product(alts [][]string, limit int) [][]string {
	var out [][]string
	var cur []string
	var rec func(i int)
	rec = func(i int) {
		if len(out) >= limit {
			return
		}
		if i == len(alts) {
			out = append(out, append([]string(nil), cur...))
			return
		}
		for _, v := range alts[i] {
			cur = append(cur, v)
			rec(i + 1)
			cur = cur[:len(cur)-1]
		}
	}
	rec(0)
	return out
}

func scoreName(tokens []string) int {
	name := strings.Join(tokens, "")
	score := 100
	if len(tokens) > 2 {
		score -= 5 * (len(tokens) - 2)
	}
	if len(tokens) == 1 {
		score -= 8
	}
	if len(name) > 12 {
		score -= (len(name) - 12) / 2
	}

	for _, t := range tokens {
		switch t {
		case "agentic":
			score += 5
		case "agent":
			score += 2
		case "ki", "ai":
			score += 2
		}
	}

	return max(1, min(100, score))
}
