package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps entries in a domain_cache table. The table is created
// on first use; if that fails the next call tries again.
type PostgresStore struct {
	Pool *pgxpool.Pool

	mu    sync.Mutex
	ready bool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// OpenPostgres builds a pool for url. pgxpool connects lazily, so an
// unreachable database only shows up as errors on use.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewPostgresStore(pool), nil
}

func (s *PostgresStore) Close() { s.Pool.Close() }

// EnsureSchema creates the cache table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS domain_cache (
  domain text PRIMARY KEY,
  status text NOT NULL,
  checked_at timestamptz NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("ensure domain_cache: %w", err)
	}
	s.ready = true
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, domain string) (Entry, bool, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return Entry{}, false, err
	}
	var (
		e      Entry
		status string
	)
	err := s.Pool.QueryRow(ctx,
		`SELECT domain, status, checked_at FROM domain_cache WHERE domain = $1`, domain,
	).Scan(&e.Domain, &status, &e.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e.Status = Status(status)
	return e, true, nil
}

func (s *PostgresStore) GetSince(ctx context.Context, domains []string, since time.Time) (map[string]Entry, error) {
	out := make(map[string]Entry, len(domains))
	if len(domains) == 0 {
		return out, nil
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT domain, status, checked_at FROM domain_cache
WHERE domain = ANY($1) AND checked_at > $2`, domains, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e      Entry
			status string
		)
		if err := rows.Scan(&e.Domain, &status, &e.CheckedAt); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		out[e.Domain] = e
	}
	return out, rows.Err()
}

func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO domain_cache(domain, status, checked_at) VALUES($1, $2, $3)
        ON CONFLICT (domain) DO UPDATE SET status = EXCLUDED.status, checked_at = EXCLUDED.checked_at`,
		e.Domain, string(e.Status), e.CheckedAt)
	return err
}

var _ Store = (*PostgresStore)(nil)
