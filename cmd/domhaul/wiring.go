package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/benithors/domhaul/internal/availability"
	"github.com/benithors/domhaul/internal/cache"
	"github.com/benithors/domhaul/internal/generate"
	"github.com/benithors/domhaul/internal/lookup"
	"github.com/benithors/domhaul/internal/rdap"
	"github.com/benithors/domhaul/internal/registrar"
	"github.com/benithors/domhaul/internal/registrar/porkbun"
	"github.com/benithors/domhaul/internal/search"
	"github.com/benithors/domhaul/internal/whois"
)

func (a *app) newLookup() (lookup.Lookup, error) {
	rdapClient := rdap.NewClient(rdap.Options{
		Timeout: a.env.LookupTimeout,
		RPS:     a.env.LookupRPS,
	})
	whoisClient := whois.NewClient(whois.Options{
		Timeout: a.env.LookupTimeout,
	})

	switch strings.ToLower(strings.TrimSpace(a.env.Lookup)) {
	case "", "auto":
		return lookup.Fallback{rdapClient, whoisClient}, nil
	case "rdap":
		return rdapClient, nil
	case "whois":
		return whoisClient, nil
	default:
		return nil, fmt.Errorf("unknown lookup backend %q (use auto|rdap|whois)", a.env.Lookup)
	}
}

// openCache picks the taken-cache store. Store faults never fail the
// command: a store that cannot be opened leaves the cache disabled.
func (a *app) openCache(ctx context.Context) (*cache.Cache, error) {
	log := a.log.With("component", "cache")
	opts := cache.Options{TTL: a.env.CacheTTL, Logger: a.log, Metrics: a.metrics}

	choice := strings.ToLower(strings.TrimSpace(a.Cache))
	if choice == "" || choice == "auto" {
		switch {
		case a.env.RedisURL != "":
			choice = "redis"
		case a.env.DatabaseURL != "":
			choice = "postgres"
		default:
			choice = "none"
		}
	}

	var store cache.Store
	switch choice {
	case "none":
	case "memory":
		store = cache.NewMemoryStore()
	case "redis":
		if a.env.RedisURL == "" {
			return nil, fmt.Errorf("--cache redis requires REDIS_URL")
		}
		s, err := cache.OpenRedis(a.env.RedisURL, cache.WithRedisExpiry(a.env.CacheTTL))
		if err != nil {
			log.Warn("cache disabled", "store", choice, "error", err)
			break
		}
		a.onClose(func() { _ = s.Close() })
		store = s
	case "postgres":
		if a.env.DatabaseURL == "" {
			return nil, fmt.Errorf("--cache postgres requires DATABASE_URL")
		}
		s, err := cache.OpenPostgres(ctx, a.env.DatabaseURL)
		if err != nil {
			log.Warn("cache disabled", "store", choice, "error", err)
			break
		}
		a.onClose(s.Close)
		store = s
	default:
		return nil, fmt.Errorf("unknown cache store %q (use auto|memory|redis|postgres|none)", a.Cache)
	}

	if store != nil {
		log.Debug("cache enabled", "store", choice, "ttl", a.env.CacheTTL)
	}
	return cache.New(store, opts), nil
}

// newChecker wires lookup, cache and metrics into a Checker. maxBatch > 0
// caps the domains accepted per Check call.
func (a *app) newChecker(ctx context.Context, maxBatch int) (*availability.Checker, error) {
	lk, err := a.newLookup()
	if err != nil {
		return nil, err
	}
	c, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	return availability.NewChecker(availability.Options{
		Lookup:      lk,
		Cache:       c,
		Concurrency: a.env.CheckConcurrency,
		MaxAttempts: a.env.CheckMaxAttempts,
		Timeout:     a.env.LookupTimeout,
		MaxBatch:    maxBatch,
		Logger:      a.log,
		Metrics:     a.metrics,
	}), nil
}

func (a *app) newGenerator(provider string) (generate.Generator, error) {
	if provider == "" {
		provider = a.env.Provider
	}
	return generate.New(generate.Config{
		Provider:        provider,
		AnthropicAPIKey: a.env.AnthropicAPIKey,
		AnthropicModel:  a.env.AnthropicModel,
		OpenAIAPIKey:    a.env.OpenAIAPIKey,
		OpenAIModel:     a.env.OpenAIModel,
		OllamaBaseURL:   a.env.OllamaBaseURL,
		OllamaModel:     a.env.OllamaModel,
	})
}

func (a *app) newOrchestrator(gen generate.Generator, chk search.Checker) *search.Orchestrator {
	return search.New(search.Options{
		Generator: gen,
		Checker:   chk,
		MaxRounds: a.env.MaxRounds,
		Logger:    a.log,
		Metrics:   a.metrics,
	})
}

// newRegistrar returns nil when no registrar is configured under "auto".
func (a *app) newRegistrar() (registrar.Client, error) {
	apiKey := strings.TrimSpace(a.env.PorkbunAPIKey)
	secret := strings.TrimSpace(a.env.PorkbunSecretKey)
	opts := porkbun.Options{APIKey: apiKey, SecretAPIKey: secret, Timeout: a.env.LookupTimeout}

	switch strings.ToLower(strings.TrimSpace(a.Registrar)) {
	case "", "auto":
		if apiKey == "" || secret == "" {
			return nil, nil
		}
		return porkbun.NewClient(opts)
	case "none":
		return nil, nil
	case "porkbun":
		if apiKey == "" || secret == "" {
			return nil, fmt.Errorf("missing Porkbun API keys (set PORKBUN_API_KEY and PORKBUN_SECRET_API_KEY)")
		}
		return porkbun.NewClient(opts)
	default:
		return nil, fmt.Errorf("unknown registrar %q (use auto|none|porkbun)", a.Registrar)
	}
}
