package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/benithors/domhaul/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr       string
		maxStreams int
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve generate, check and search sessions over HTTP (server-sent events)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("addr") {
				addr = a.env.HTTPAddr
			}

			gen, err := a.newGenerator(provider)
			if err != nil {
				return usageErr(cmd, err)
			}
			reg, err := a.newRegistrar()
			if err != nil {
				return usageErr(cmd, err)
			}
			checker, err := a.newChecker(ctx, 0)
			if err != nil {
				return usageErr(cmd, err)
			}
			quoted := withOffers(checker, reg)

			h := server.New(server.Options{
				Generator:  gen,
				Checker:    quoted,
				Search:     a.newOrchestrator(gen, quoted),
				Gatherer:   a.registry,
				MaxCheck:   server.DefaultMaxCheck,
				MaxStreams: maxStreams,
				Logger:     a.log,
			})

			// No WriteTimeout: event streams stay open for the whole session.
			srv := &http.Server{
				Addr:              addr,
				Handler:           h,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				IdleTimeout:       90 * time.Second,
				BaseContext:       func(_ net.Listener) context.Context { return ctx },
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.log.Error("http server shutdown failed", "error", err)
				}
			}()

			a.log.Info("http server listening", "addr", addr, "max_streams", maxStreams)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return runtimeErr(cmd, "server error: %w", err)
			}
			a.log.Info("http server stopped")
			return nil
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address (env HTTP_ADDR)")
	cmd.Flags().IntVar(&maxStreams, "max-streams", 32, "Max concurrent streaming requests (0 = unlimited)")
	cmd.Flags().StringVar(&provider, "provider", "", "Name generator: phrase|anthropic|openai|ollama (env DOMHAUL_PROVIDER)")

	return cmd
}
