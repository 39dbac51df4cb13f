package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benithors/domhaul/internal/availability"
	"github.com/benithors/domhaul/internal/domain"
	"github.com/benithors/domhaul/internal/generate"
	"github.com/benithors/domhaul/internal/registrar"
	"github.com/benithors/domhaul/internal/search"
	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		suffixesStr string
		count       int
		target      int
		rounds      int
		provider    string
	)

	cmd := &cobra.Command{
		Use:   "search <description...>",
		Short: "Generate names from a description, then check their domains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.TrimSpace(strings.Join(args, " "))
			if description == "" {
				return &cliError{Code: 2, ShowUsage: true, Cmd: cmd}
			}
			if target < 0 || rounds < 0 {
				return usageErr(cmd, fmt.Errorf("--target and --rounds must not be negative"))
			}
			suffixes := splitCommaList(suffixesStr)
			for _, s := range suffixes {
				if _, err := domain.NormalizeSuffix(s); err != nil {
					return usageErr(cmd, err)
				}
			}
			if !cmd.Flags().Changed("count") {
				count = a.env.NameCount
			}

			gen, err := a.newGenerator(provider)
			if err != nil {
				return usageErr(cmd, err)
			}
			reg, err := a.newRegistrar()
			if err != nil {
				return usageErr(cmd, err)
			}
			checker, err := a.newChecker(cmd.Context(), 0)
			if err != nil {
				return usageErr(cmd, err)
			}

			progress := io.Writer(os.Stderr)
			if a.Quiet {
				progress = io.Discard
			}
			ew := newEventWriter(os.Stdout, progress, a.outFormat)
			strictFail := false

			orch := a.newOrchestrator(gen, withOffers(checker, reg))
			sum := orch.Run(cmd.Context(), search.Request{
				Description:     description,
				Suffixes:        suffixes,
				NamesPerRound:   generate.ClampCount(count),
				AvailableTarget: target,
				MaxRounds:       rounds,
			}, func(ev search.Event) {
				if ev.Type == search.EventResult && ev.Result.Status == availability.StatusUnknown {
					strictFail = true
				}
				ew.write(ev)
			})
			if err := ew.flush(); err != nil {
				return runtimeErr(cmd, "failed to write output: %w", err)
			}

			if a.outFormat == formatTable {
				fmt.Fprintf(progress, "%d available of %d checked in %d round(s) (%s)\n",
					sum.Available, sum.Checked, sum.Rounds, sum.Reason)
			}
			switch {
			case sum.Reason == search.StopCancelled:
				return runtimeErr(cmd, "interrupted")
			case sum.Reason == search.StopError:
				return &cliError{Code: 1}
			case a.Strict && strictFail:
				return &cliError{Code: 1}
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().StringVar(&suffixesStr, "suffixes", ".com", "Comma-separated domain suffixes (e.g. .com,.io)")
	cmd.Flags().IntVarP(&count, "count", "n", generate.DefaultCount, "Names generated per round (1-50, env NAME_COUNT)")
	cmd.Flags().IntVar(&target, "target", 0, "Keep generating rounds until this many domains are available (0 = single round)")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "Max rounds when --target is set (default env MAX_ROUNDS)")
	cmd.Flags().StringVar(&provider, "provider", "", "Name generator: phrase|anthropic|openai|ollama (env DOMHAUL_PROVIDER)")

	return cmd
}

// offerChecker attaches a registrar quote to every available result before
// passing it on.
type offerChecker struct {
	search.Checker
	reg registrar.Client
}

func withOffers(c search.Checker, reg registrar.Client) search.Checker {
	if reg == nil {
		return c
	}
	return offerChecker{Checker: c, reg: reg}
}

func (c offerChecker) Check(ctx context.Context, domains []domain.Domain) (<-chan availability.Result, error) {
	in, err := c.Checker.Check(ctx, domains)
	if err != nil {
		return nil, err
	}
	out := make(chan availability.Result)
	go func() {
		defer close(out)
		for r := range in {
			if r.Status == availability.StatusAvailable && ctx.Err() == nil {
				r.Offer = registrar.Quote(ctx, c.reg, r.Domain)
			}
			out <- r
		}
	}()
	return out, nil
}
