package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/benithors/domhaul/internal/availability"
	"github.com/benithors/domhaul/internal/domain"
	"github.com/benithors/domhaul/internal/registrar"
	"github.com/benithors/domhaul/internal/search"
	"golang.org/x/term"
)

type outputFormat int

const (
	formatTable outputFormat = iota
	formatNDJSON
	formatJSON
	formatPlain
)

func resolveFormat(flagVal string, stdout *os.File) outputFormat {
	switch strings.ToLower(strings.TrimSpace(flagVal)) {
	case "table":
		return formatTable
	case "ndjson":
		return formatNDJSON
	case "json":
		return formatJSON
	case "plain":
		return formatPlain
	case "auto", "":
	default:
		// Unknown format: fall back to auto.
	}

	if term.IsTerminal(int(stdout.Fd())) {
		return formatTable
	}
	return formatNDJSON
}

func writeResults(w io.Writer, format outputFormat, results []availability.Result) error {
	switch format {
	case formatNDJSON:
		enc := json.NewEncoder(w)
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	case formatJSON:
		if results == nil {
			results = []availability.Result{}
		}
		return json.NewEncoder(w).Encode(results)
	case formatPlain:
		for _, r := range results {
			// Stable, line-oriented output for piping.
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Domain, r.Status, r.Registrar, yesNo(&r.Cached)); err != nil {
				return err
			}
		}
		return nil
	case formatTable:
		fallthrough
	default:
		showOffer := false
		for _, r := range results {
			if r.Offer != nil {
				showOffer = true
				break
			}
		}

		tw := domain.NewTabWriter(w)
		if showOffer {
			fmt.Fprintln(tw, "DOMAIN\tSTATUS\tREGISTRAR\tATTEMPTS\tBUYABLE\tPREMIUM\tPRICE\tPROVIDER\tDETAIL")
		} else {
			fmt.Fprintln(tw, "DOMAIN\tSTATUS\tREGISTRAR\tATTEMPTS\tDETAIL")
		}
		for _, r := range results {
			attempts := strconv.Itoa(r.Attempts)
			if r.Cached {
				attempts = "cached"
			}
			if showOffer {
				o := r.Offer
				if o == nil {
					o = &registrar.Offer{}
				}
				provider := o.Provider
				if o.Error != "" {
					provider += " (err)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Domain, r.Status, r.Registrar, attempts, yesNo(o.Buyable), yesNo(o.Premium), formatPrice(o), provider, r.Error)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Domain, r.Status, r.Registrar, attempts, r.Error)
		}
		return tw.Flush()
	}
}

func formatPrice(o *registrar.Offer) string {
	if o.Price == "" {
		return ""
	}
	s := o.Price
	if o.RegularPrice != "" && o.RegularPrice != o.Price {
		s = fmt.Sprintf("%s (reg %s)", o.Price, o.RegularPrice)
	}
	if o.Currency != "" {
		s += " " + o.Currency
	}
	return s
}

func yesNo(b *bool) string {
	switch {
	case b == nil:
		return ""
	case *b:
		return "yes"
	default:
		return "no"
	}
}

// eventWriter renders a stream of session events. Machine formats write
// every event to out; human formats write available domains to out and
// progress to progress.
type eventWriter struct {
	out      io.Writer
	progress io.Writer
	format   outputFormat

	enc    *json.Encoder
	events []search.Event
	err    error
}

func newEventWriter(out, progress io.Writer, format outputFormat) *eventWriter {
	return &eventWriter{out: out, progress: progress, format: format, enc: json.NewEncoder(out)}
}

func (e *eventWriter) write(ev search.Event) {
	if e.err != nil {
		return
	}
	switch e.format {
	case formatNDJSON:
		e.err = e.enc.Encode(ev)
	case formatJSON:
		e.events = append(e.events, ev)
	case formatPlain:
		switch ev.Type {
		case search.EventCandidate:
			_, e.err = fmt.Fprintln(e.out, ev.Name)
		case search.EventResult:
			if ev.Result.Status == availability.StatusAvailable {
				_, e.err = fmt.Fprintln(e.out, ev.Result.Domain)
			}
		case search.EventError:
			fmt.Fprintf(e.progress, "error: %s\n", ev.Message)
		}
	default:
		e.writeHuman(ev)
	}
}

func (e *eventWriter) writeHuman(ev search.Event) {
	switch ev.Type {
	case search.EventRound:
		fmt.Fprintf(e.progress, "round %d/%d\n", ev.Round, ev.MaxRounds)
	case search.EventPhase:
		fmt.Fprintf(e.progress, "%s...\n", ev.Phase)
	case search.EventCandidate:
		fmt.Fprintf(e.progress, "  %s\n", ev.Name)
	case search.EventResult:
		r := ev.Result
		switch r.Status {
		case availability.StatusAvailable:
			_, e.err = fmt.Fprintf(e.out, "%s\tavailable\n", r.Domain)
		case availability.StatusTaken:
			fmt.Fprintf(e.progress, "  %s taken %s\n", r.Domain, r.Registrar)
		default:
			fmt.Fprintf(e.progress, "  %s unknown: %s\n", r.Domain, r.Error)
		}
	case search.EventError:
		fmt.Fprintf(e.progress, "error: %s\n", ev.Message)
	}
}

// flush writes buffered events for formats that need the whole stream.
func (e *eventWriter) flush() error {
	if e.err == nil && e.format == formatJSON {
		if e.events == nil {
			e.events = []search.Event{}
		}
		e.err = e.enc.Encode(e.events)
	}
	return e.err
}
