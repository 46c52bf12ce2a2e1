package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertPriceSQL = `INSERT INTO price_observation (
        symbol,
        name,
        usd_price,
        observed_at
    ) VALUES (
        $1,$2,$3,$4
    );`

	insertFXRateSQL = `INSERT INTO fx_observation (
        currency,
        rate_vs_usd,
        observed_at
    ) VALUES (
        $1,$2,$3
    );`

	latestPriceSQL = `SELECT symbol, name, usd_price, observed_at
    FROM price_observation
    WHERE symbol = $1
    ORDER BY observed_at DESC
    LIMIT 1;`

	priceAsOfSQL = `SELECT symbol, name, usd_price, observed_at
    FROM price_observation
    WHERE symbol = $1
      AND observed_at <= $2
    ORDER BY observed_at DESC
    LIMIT 1;`

	distinctSymbolsSQL = `SELECT DISTINCT symbol FROM price_observation ORDER BY symbol;`

	listPricesBetweenSQL = `SELECT symbol, name, usd_price, observed_at
    FROM price_observation
    WHERE symbol = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listRecentPricesSQL = `SELECT symbol, name, usd_price, observed_at
    FROM price_observation
    ORDER BY observed_at DESC
    LIMIT $1;`

	countPricesSQL = `SELECT COUNT(*) FROM price_observation;`

	cooldownSQL = `SELECT last_sent_at FROM alert_cooldown
    WHERE symbol = $1 AND label = $2;`

	upsertCooldownSQL = `INSERT INTO alert_cooldown (symbol, label, last_sent_at)
    VALUES ($1,$2,$3)
    ON CONFLICT (symbol, label) DO UPDATE
    SET last_sent_at = EXCLUDED.last_sent_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PriceAppender defines the append-only write side of the price store.
type PriceAppender interface {
	InsertPrices(ctx context.Context, observations []PriceObservation) error
	InsertFXRates(ctx context.Context, observations []FXObservation) error
}

// PriceHistory defines read access to persisted observations.
type PriceHistory interface {
	LatestPrice(ctx context.Context, symbol string) (PriceObservation, bool, error)
	PriceAsOf(ctx context.Context, symbol string, cutoff time.Time) (PriceObservation, bool, error)
	DistinctSymbols(ctx context.Context) ([]string, error)
	ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceObservation, error)
	ListRecentPrices(ctx context.Context, limit int) ([]PriceObservation, error)
}

// CooldownLedger defines access to the per-(symbol, label) alert ledger.
// UpsertCooldown must be a single atomic statement: two concurrent evaluator
// runs may both pass the cooldown read, and the conflict clause is what keeps
// the ledger at one row per pair.
type CooldownLedger interface {
	Cooldown(ctx context.Context, symbol, label string) (time.Time, bool, error)
	UpsertCooldown(ctx context.Context, symbol, label string, sentAt time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to price history and the alert ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Unlock is best effort; releasing the connection drops the lock anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPrices appends a batch of price observations in one transaction.
// An empty batch is a no-op.
func (s *Store) InsertPrices(ctx context.Context, observations []PriceObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, obs := range observations {
		batch.Queue(insertPriceSQL, obs.Symbol, obs.Name, obs.USDPrice.String(), obs.ObservedAt)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin price batch: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert prices: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit price batch: %w", err)
	}
	return nil
}

// InsertFXRates appends a batch of FX observations in one transaction.
func (s *Store) InsertFXRates(ctx context.Context, observations []FXObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, obs := range observations {
		batch.Queue(insertFXRateSQL, obs.Currency, obs.RateVsUSD.String(), obs.ObservedAt)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fx batch: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert fx rates: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fx batch: %w", err)
	}
	return nil
}

// LatestPrice returns the most recent observation for a symbol.
func (s *Store) LatestPrice(ctx context.Context, symbol string) (PriceObservation, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, false, err
	}
	return scanOnePrice(pool.QueryRow(ctx, latestPriceSQL, symbol))
}

// PriceAsOf returns the most recent observation at or before the cutoff.
func (s *Store) PriceAsOf(ctx context.Context, symbol string, cutoff time.Time) (PriceObservation, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceObservation{}, false, err
	}
	return scanOnePrice(pool.QueryRow(ctx, priceAsOfSQL, symbol, cutoff))
}

// DistinctSymbols lists every symbol with at least one observation.
func (s *Store) DistinctSymbols(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, distinctSymbolsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("distinct symbols: %w", queryErr)
	}
	defer rows.Close()

	symbols := make([]string, 0)
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return symbols, nil
}

// ListPricesBetween lists one symbol's observations within a time window.
func (s *Store) ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices between: %w", queryErr)
	}
	defer rows.Close()

	return collectPrices(rows, 0)
}

// ListRecentPrices lists the most recent observations across all symbols.
func (s *Store) ListRecentPrices(ctx context.Context, limit int) ([]PriceObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent prices: %w", queryErr)
	}
	defer rows.Close()

	return collectPrices(rows, limit)
}

// CountPrices counts stored price observations.
func (s *Store) CountPrices(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPricesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count prices: %w", scanErr)
	}
	return count, nil
}

// Cooldown reads the last-sent timestamp for a (symbol, label) pair.
func (s *Store) Cooldown(ctx context.Context, symbol, label string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var lastSent time.Time
	scanErr := pool.QueryRow(ctx, cooldownSQL, symbol, label).Scan(&lastSent)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if scanErr != nil {
		return time.Time{}, false, fmt.Errorf("read cooldown: %w", scanErr)
	}
	return lastSent, true, nil
}

// UpsertCooldown records that an alert was sent, insert-or-update in a single
// statement keyed by (symbol, label).
func (s *Store) UpsertCooldown(ctx context.Context, symbol, label string, sentAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertCooldownSQL, symbol, label, sentAt); execErr != nil {
		return fmt.Errorf("upsert cooldown: %w", execErr)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOnePrice(row rowScanner) (PriceObservation, bool, error) {
	obs, err := scanPrice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PriceObservation{}, false, nil
	}
	if err != nil {
		return PriceObservation{}, false, err
	}
	return obs, true, nil
}

func collectPrices(rows pgx.Rows, sizeHint int) ([]PriceObservation, error) {
	observations := make([]PriceObservation, 0, sizeHint)
	for rows.Next() {
		obs, scanErr := scanPrice(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

func scanPrice(row rowScanner) (PriceObservation, error) {
	var (
		symbol     string
		name       string
		priceStr   string
		observedAt time.Time
	)

	if err := row.Scan(&symbol, &name, &priceStr, &observedAt); err != nil {
		return PriceObservation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceObservation{}, fmt.Errorf("parse usd price: %w", err)
	}

	return PriceObservation{
		Symbol:     symbol,
		Name:       name,
		USDPrice:   price,
		ObservedAt: observedAt,
	}, nil
}
