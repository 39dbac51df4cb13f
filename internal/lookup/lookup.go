// Package lookup defines the registry-lookup capability the checker depends
// on and the errors backends use to classify failures.
package lookup

import (
	"context"
	"errors"
	"fmt"
)

// Lookup answers whether a domain is registered and, best-effort, by whom.
// Implementations must honor ctx cancellation and deadlines.
type Lookup interface {
	IsAvailable(ctx context.Context, domain string) (bool, error)
	LookupRegistrar(ctx context.Context, domain string) (string, error)
}

// ErrUnsupported reports that a backend cannot answer for the domain's
// suffix at all (no RDAP service, no WHOIS server). It is permanent.
var ErrUnsupported = errors.New("no lookup service for suffix")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether retrying err is pointless.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	return errors.As(err, &pe) || errors.Is(err, ErrUnsupported)
}

// Supporter is implemented by backends that can tell up front whether they
// serve a domain.
type Supporter interface {
	Supports(ctx context.Context, domain string) bool
}

// Fallback tries each backend in order and moves to the next one only when
// the current backend does not support the domain. Backends implementing
// Supporter that report false are skipped without a query.
type Fallback []Lookup

func skip(ctx context.Context, l Lookup, domain string) bool {
	s, ok := l.(Supporter)
	return ok && !s.Supports(ctx, domain)
}

func (f Fallback) IsAvailable(ctx context.Context, domain string) (bool, error) {
	var lastErr error
	for _, l := range f {
		if skip(ctx, l, domain) {
			continue
		}
		ok, err := l.IsAvailable(ctx, domain)
		if err == nil {
			return ok, nil
		}
		lastErr = err
		if !errors.Is(err, ErrUnsupported) {
			return false, err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s: %w", domain, ErrUnsupported)
	}
	return false, lastErr
}

func (f Fallback) LookupRegistrar(ctx context.Context, domain string) (string, error) {
	var lastErr error
	for _, l := range f {
		if skip(ctx, l, domain) {
			continue
		}
		name, err := l.LookupRegistrar(ctx, domain)
		if err == nil && name != "" {
			return name, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return "", lastErr
}
