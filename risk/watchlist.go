package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scorpius-io/rule-engine/memo"
	"github.com/scorpius-io/rule-engine/rerr"
	"github.com/scorpius-io/rule-engine/rlog"
)

// WatchlistStore answers whether address appears in the watchlist table
// that UpdateWatchlist intents describe (spec §4.4 point 4); nothing in this
// module writes to that table. It's the real backing collaborator for a
// non-Noop AddressOracle.
type WatchlistStore interface {
	IsWatchlisted(ctx context.Context, address string) (bool, error)
}

// postgresWatchlist is a thin read path over the same Postgres instance the
// rule catalog uses, separate table.
type postgresWatchlist struct {
	pool *pgxpool.Pool
}

// NewPostgresWatchlist opens a pool sized by maxConns against postgresURL.
func NewPostgresWatchlist(ctx context.Context, postgresURL string, maxConns int32) (WatchlistStore, error) {
	cfg, err := pgxpool.ParseConfig(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres_url: %v", rerr.ErrConfig, err)
	}
	cfg.MaxConns = maxConns
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to watchlist store: %v", rerr.ErrConfig, err)
	}
	return &postgresWatchlist{pool: pool}, nil
}

func (w *postgresWatchlist) Close() {
	w.pool.Close()
}

func (w *postgresWatchlist) IsWatchlisted(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := w.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM watchlist_addresses WHERE address = $1)
	`, strings.ToLower(address)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query watchlist: %w", err)
	}
	return exists, nil
}

// MemoizedOracle is an AddressOracle backed by WatchlistStore, with lookups
// memoized through memo.Cache (Design Notes §9's get_or_fetch primitive) so
// a hot address isn't re-queried against Postgres on every transaction.
type MemoizedOracle struct {
	cache *memo.Cache
	store WatchlistStore
}

func NewMemoizedOracle(cache *memo.Cache, store WatchlistStore) *MemoizedOracle {
	return &MemoizedOracle{cache: cache, store: store}
}

// Suspicious implements AddressOracle. The interface is synchronous (risk.Score
// has no context to thread through), so lookups run against
// context.Background(); a failing store degrades to "not suspicious"
// rather than panicking the scorer. The lookup has no deadline, so a slow
// store delays the score.
func (o *MemoizedOracle) Suspicious(address string) bool {
	key := "watchlist:" + strings.ToLower(address)
	v, err := o.cache.GetOrFetch(context.Background(), key, func(ctx context.Context, key string) (string, error) {
		hit, err := o.store.IsWatchlisted(ctx, address)
		if err != nil {
			return "", err
		}
		if hit {
			return "true", nil
		}
		return "false", nil
	})
	if err != nil {
		rlog.Warn("watchlist lookup failed, treating address as not suspicious", "address", address, "error", err)
		return false
	}
	return v == "true"
}
