package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benithors/domhaul/internal/generate"
	"github.com/benithors/domhaul/internal/search"
	"github.com/spf13/cobra"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		count    int
		provider string
	)

	cmd := &cobra.Command{
		Use:   "generate <description...>",
		Short: "Stream name ideas for a description without checking domains",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.TrimSpace(strings.Join(args, " "))
			if description == "" {
				return &cliError{Code: 2, ShowUsage: true, Cmd: cmd}
			}
			if !cmd.Flags().Changed("count") {
				count = a.env.NameCount
			}
			gen, err := a.newGenerator(provider)
			if err != nil {
				return usageErr(cmd, err)
			}

			progress := io.Writer(os.Stderr)
			if a.Quiet {
				progress = io.Discard
			}
			ew := newEventWriter(os.Stdout, progress, a.outFormat)
			if a.outFormat == formatTable {
				// One name per line reads better than progress noise here.
				ew.format = formatPlain
			}

			var genErr error
			emitted := 0
			for name, err := range gen.Generate(cmd.Context(), description, generate.ClampCount(count)) {
				if err != nil {
					genErr = err
					break
				}
				ew.write(search.Candidate(name))
				emitted++
			}
			if genErr == nil && emitted == 0 && cmd.Context().Err() == nil {
				genErr = search.ErrNoNames
			}
			if genErr != nil {
				ew.write(search.Error(genErr.Error()))
			}
			ew.write(search.Done())
			if err := ew.flush(); err != nil {
				return runtimeErr(cmd, "failed to write output: %w", err)
			}

			switch {
			case cmd.Context().Err() != nil:
				return runtimeErr(cmd, "interrupted")
			case genErr != nil:
				return &cliError{Code: 1}
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().IntVarP(&count, "count", "n", generate.DefaultCount, fmt.Sprintf("Names to generate (1-%d, env NAME_COUNT)", generate.MaxCount))
	cmd.Flags().StringVar(&provider, "provider", "", "Name generator: phrase|anthropic|openai|ollama (env DOMHAUL_PROVIDER)")

	return cmd
}
