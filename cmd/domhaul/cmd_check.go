package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/benithors/domhaul/internal/availability"
	"github.com/benithors/domhaul/internal/registrar"
	"github.com/benithors/domhaul/internal/server"
	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	var availableOnly bool
	var only string
	var sortBy string

	cmd := &cobra.Command{
		Use:   "check [domain...]",
		Short: "Check availability for explicit domains (args and/or stdin)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := readArgsAndStdin(args, os.Stdin)
			if err != nil {
				return runtimeErr(cmd, "failed to read domains: %w", err)
			}
			if len(inputs) == 0 {
				return &cliError{Code: 2, ShowUsage: true, Cmd: cmd}
			}

			onlyVal := strings.ToLower(strings.TrimSpace(only))
			if availableOnly {
				onlyVal = "available"
			}
			sortVal := strings.ToLower(strings.TrimSpace(sortBy))
			if err := validateFilters(onlyVal, sortVal); err != nil {
				return usageErr(cmd, err)
			}

			reg, err := a.newRegistrar()
			if err != nil {
				return usageErr(cmd, err)
			}
			if onlyVal == "buyable" && reg == nil {
				return usageErr(cmd, fmt.Errorf("--only buyable requires --registrar (or PORKBUN_API_KEY/PORKBUN_SECRET_API_KEY)"))
			}
			checker, err := a.newChecker(cmd.Context(), server.DefaultMaxCheck)
			if err != nil {
				return usageErr(cmd, err)
			}

			results, err := checker.CheckDomains(cmd.Context(), inputs)
			if errors.Is(err, availability.ErrBatchTooLarge) {
				return usageErr(cmd, fmt.Errorf("at most %d domains per check", server.DefaultMaxCheck))
			}
			if err != nil {
				return runtimeErr(cmd, "check failed: %w", err)
			}

			quoteAvailable(cmd, reg, a.RegistrarConcurrency, results)

			strictFail := false
			if a.Strict {
				for _, r := range results {
					if r.Status == availability.StatusUnknown || r.Error != "" {
						strictFail = true
						break
					}
				}
			}

			results = filterResults(results, onlyVal)
			sortResults(results, sortVal)

			if err := writeResults(os.Stdout, a.outFormat, results); err != nil {
				return runtimeErr(cmd, "failed to write output: %w", err)
			}
			if cmd.Context().Err() != nil {
				return runtimeErr(cmd, "interrupted")
			}
			if strictFail {
				return &cliError{Code: 1}
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().BoolVar(&availableOnly, "available-only", false, "Only output AVAILABLE results")
	cmd.Flags().StringVar(&only, "only", "all", "Filter output: all|available|taken|unknown|buyable")
	cmd.Flags().StringVar(&sortBy, "sort", "input", "Sort output: input|domain|status|length")

	return cmd
}

// quoteAvailable attaches registrar offers to available and unknown results.
func quoteAvailable(cmd *cobra.Command, reg registrar.Client, concurrency int, results []availability.Result) {
	if reg == nil {
		return
	}
	var idx []int
	var domains []string
	for i, r := range results {
		if r.Name == "" || r.Status == availability.StatusTaken {
			continue
		}
		idx = append(idx, i)
		domains = append(domains, r.Domain)
	}
	offers := registrar.QuoteAll(cmd.Context(), reg, concurrency, domains)
	for j, i := range idx {
		results[i].Offer = offers[j]
	}
}

func validateFilters(only, sortBy string) error {
	switch only {
	case "", "all", "available", "taken", "unknown", "buyable":
	default:
		return fmt.Errorf("invalid --only %q (use all|available|taken|unknown|buyable)", only)
	}
	switch sortBy {
	case "", "input", "domain", "status", "length":
	default:
		return fmt.Errorf("invalid --sort %q (use input|domain|status|length)", sortBy)
	}
	return nil
}

func filterResults(results []availability.Result, only string) []availability.Result {
	if only == "" || only == "all" {
		return results
	}
	filtered := results[:0]
	for _, r := range results {
		keep := false
		switch only {
		case "available", "taken", "unknown":
			keep = string(r.Status) == only
		case "buyable":
			keep = r.Offer != nil && r.Offer.Buyable != nil && *r.Offer.Buyable
		}
		if keep {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func sortResults(results []availability.Result, by string) {
	switch by {
	case "domain":
		sort.Slice(results, func(i, j int) bool { return results[i].Domain < results[j].Domain })
	case "status":
		order := map[availability.Status]int{
			availability.StatusAvailable: 0,
			availability.StatusTaken:     1,
			availability.StatusUnknown:   2,
		}
		sort.SliceStable(results, func(i, j int) bool {
			oi, oj := order[results[i].Status], order[results[j].Status]
			if oi != oj {
				return oi < oj
			}
			return results[i].Domain < results[j].Domain
		})
	case "length":
		sort.SliceStable(results, func(i, j int) bool {
			li, lj := len(results[i].Domain), len(results[j].Domain)
			if li != lj {
				return li < lj
			}
			return results[i].Domain < results[j].Domain
		})
	default:
		// Preserve input order.
	}
}
