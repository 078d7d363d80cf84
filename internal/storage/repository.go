package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// schemaStatements are applied one by one; pgx rejects multi-statement
// strings on the extended protocol.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS symbols (
        symbol     TEXT PRIMARY KEY,
        name       TEXT NOT NULL DEFAULT '',
        active     BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS price_samples (
        id          BIGSERIAL PRIMARY KEY,
        symbol      TEXT NOT NULL,
        price       TEXT NOT NULL,
        observed_at TIMESTAMPTZ NOT NULL,
        source      TEXT NOT NULL DEFAULT '',
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (symbol, observed_at)
    );`,
	`CREATE TABLE IF NOT EXISTS latest_prices (
        symbol      TEXT PRIMARY KEY,
        price       TEXT NOT NULL,
        observed_at TIMESTAMPTZ NOT NULL,
        source      TEXT NOT NULL DEFAULT '',
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id               BIGSERIAL PRIMARY KEY,
        owner            TEXT NOT NULL DEFAULT '',
        symbol           TEXT NOT NULL,
        kind             TEXT NOT NULL,
        condition        TEXT NOT NULL,
        threshold        TEXT NOT NULL,
        duration_seconds BIGINT NOT NULL DEFAULT 0,
        active           BOOLEAN NOT NULL DEFAULT TRUE,
        created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS alert_states (
        alert_id          BIGINT PRIMARY KEY REFERENCES alerts(id) ON DELETE CASCADE,
        pending_since     TIMESTAMPTZ,
        last_triggered_at TIMESTAMPTZ,
        updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS trigger_events (
        episode_id UUID PRIMARY KEY,
        alert_id   BIGINT NOT NULL,
        owner      TEXT NOT NULL DEFAULT '',
        symbol     TEXT NOT NULL,
        price      TEXT NOT NULL,
        fired_at   TIMESTAMPTZ NOT NULL,
        delivered  BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS dispatched_episodes (
        episode_id    UUID PRIMARY KEY,
        dispatched_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
}

const (
	upsertSymbolSQL = `INSERT INTO symbols (
        symbol,
        name,
        active
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (symbol) DO UPDATE
    SET name   = EXCLUDED.name,
        active = EXCLUDED.active;`

	listSymbolsSQL = `SELECT
        symbol,
        name,
        active,
        created_at
    FROM symbols
    ORDER BY symbol;`

	listActiveSymbolsSQL = `SELECT
        symbol,
        name,
        active,
        created_at
    FROM symbols
    WHERE active
    ORDER BY symbol;`

	insertPriceSampleSQL = `INSERT INTO price_samples (
        symbol,
        price,
        observed_at,
        source
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (symbol, observed_at) DO NOTHING;`

	upsertLatestPriceSQL = `INSERT INTO latest_prices (
        symbol,
        price,
        observed_at,
        source,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,now()
    )
    ON CONFLICT (symbol) DO UPDATE
    SET price       = EXCLUDED.price,
        observed_at = EXCLUDED.observed_at,
        source      = EXCLUDED.source,
        updated_at  = now();`

	getLatestPriceSQL = `SELECT
        symbol,
        price,
        observed_at,
        source
    FROM latest_prices
    WHERE symbol = $1;`

	listLatestPricesSQL = `SELECT
        symbol,
        price,
        observed_at,
        source
    FROM latest_prices
    ORDER BY symbol;`

	listSamplesBetweenSQL = `SELECT
        symbol,
        price,
        observed_at,
        source
    FROM price_samples
    WHERE symbol = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listRecentSamplesSQL = `SELECT
        symbol,
        price,
        observed_at,
        source
    FROM price_samples
    WHERE symbol = $1
    ORDER BY observed_at DESC
    LIMIT $2;`

	countSamplesSQL = `SELECT COUNT(*) FROM price_samples;`

	deleteSamplesBeforeSQL = `DELETE FROM price_samples WHERE observed_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        owner,
        symbol,
        kind,
        condition,
        threshold,
        duration_seconds,
        active
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    RETURNING id, created_at;`

	listAlertsSQL = `SELECT
        id,
        owner,
        symbol,
        kind,
        condition,
        threshold,
        duration_seconds,
        active,
        created_at
    FROM alerts
    ORDER BY id;`

	listActiveAlertsSQL = `SELECT
        id,
        owner,
        symbol,
        kind,
        condition,
        threshold,
        duration_seconds,
        active,
        created_at
    FROM alerts
    WHERE active
    ORDER BY id;`

	getAlertStateSQL = `SELECT
        alert_id,
        pending_since,
        last_triggered_at,
        updated_at
    FROM alert_states
    WHERE alert_id = $1;`

	upsertAlertStateSQL = `INSERT INTO alert_states (
        alert_id,
        pending_since,
        last_triggered_at,
        updated_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (alert_id) DO UPDATE
    SET pending_since     = EXCLUDED.pending_since,
        last_triggered_at = EXCLUDED.last_triggered_at,
        updated_at        = EXCLUDED.updated_at;`

	insertTriggerEventSQL = `INSERT INTO trigger_events (
        episode_id,
        alert_id,
        owner,
        symbol,
        price,
        fired_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (episode_id) DO NOTHING;`

	listRecentTriggersSQL = `SELECT
        episode_id,
        alert_id,
        owner,
        symbol,
        price,
        fired_at,
        delivered,
        created_at
    FROM trigger_events
    ORDER BY fired_at DESC
    LIMIT $1;`

	markTriggerDeliveredSQL = `UPDATE trigger_events
    SET delivered = TRUE
    WHERE episode_id = $1;`

	deleteTriggersBeforeSQL = `DELETE FROM trigger_events WHERE created_at < $1;`

	wasDispatchedSQL = `SELECT EXISTS (
        SELECT 1 FROM dispatched_episodes WHERE episode_id = $1
    );`

	recordDispatchedSQL = `INSERT INTO dispatched_episodes (
        episode_id,
        dispatched_at
    ) VALUES (
        $1,$2
    )
    ON CONFLICT (episode_id) DO NOTHING;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SymbolStore defines operations for the tracked symbol universe.
type SymbolStore interface {
	UpsertSymbol(ctx context.Context, sym domain.Symbol) error
	ListSymbols(ctx context.Context, activeOnly bool) ([]domain.Symbol, error)
}

// PriceStore defines operations for price persistence.
type PriceStore interface {
	InsertPriceSample(ctx context.Context, sample domain.PriceSample) error
	UpsertLatestPrice(ctx context.Context, sample domain.PriceSample) error
	LatestPrice(ctx context.Context, symbol string) (domain.PriceSample, error)
	ListLatestPrices(ctx context.Context) ([]domain.PriceSample, error)
	ListSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceSample, error)
	ListRecentSamples(ctx context.Context, symbol string, limit int) ([]domain.PriceSample, error)
	CountSamples(ctx context.Context) (int64, error)
	DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for alert definitions. The engine only
// reads definitions; writes belong to operator tooling.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error)
	ListAlerts(ctx context.Context, activeOnly bool) ([]domain.Alert, error)
}

// AlertStateStore defines operations for per-alert evaluation state.
type AlertStateStore interface {
	GetAlertState(ctx context.Context, alertID int64) (domain.AlertState, error)
	SaveAlertState(ctx context.Context, state domain.AlertState) error
}

// TriggerStore defines operations for the trigger audit trail.
type TriggerStore interface {
	InsertTriggerEvent(ctx context.Context, event domain.TriggerEvent) error
	ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error)
	MarkTriggerDelivered(ctx context.Context, episodeID uuid.UUID) error
	DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// DispatchStore is the durable de-duplication set consulted before delivery.
type DispatchStore interface {
	WasDispatched(ctx context.Context, episodeID uuid.UUID) (bool, error)
	RecordDispatched(ctx context.Context, episodeID uuid.UUID, at time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Repository aggregates every store the engine touches.
type Repository interface {
	SymbolStore
	PriceStore
	AlertStore
	AlertStateStore
	TriggerStore
	DispatchStore
}

// Store implements Repository on top of a pgx pool.
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

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertSymbol inserts or updates one tracked symbol.
func (s *Store) UpsertSymbol(ctx context.Context, sym domain.Symbol) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertSymbolSQL, sym.Symbol, sym.Name, sym.Active); execErr != nil {
		return fmt.Errorf("upsert symbol: %w", execErr)
	}
	return nil
}

// ListSymbols lists the symbol universe, optionally restricted to active rows.
func (s *Store) ListSymbols(ctx context.Context, activeOnly bool) ([]domain.Symbol, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := listSymbolsSQL
	if activeOnly {
		query = listActiveSymbolsSQL
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list symbols: %w", queryErr)
	}
	defer rows.Close()

	symbols := make([]domain.Symbol, 0)
	for rows.Next() {
		var sym domain.Symbol
		if err := rows.Scan(&sym.Symbol, &sym.Name, &sym.Active, &sym.CreatedAt); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return symbols, nil
}

// InsertPriceSample appends one observation. Replays of the same
// (symbol, observed_at) pair are silently ignored.
func (s *Store) InsertPriceSample(ctx context.Context, sample domain.PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertPriceSampleSQL,
		sample.Symbol,
		sample.Price.String(),
		sample.ObservedAt,
		sample.Source,
	)
	if execErr != nil {
		return fmt.Errorf("insert price sample: %w", execErr)
	}
	return nil
}

// UpsertLatestPrice refreshes the latest-price projection for a symbol.
func (s *Store) UpsertLatestPrice(ctx context.Context, sample domain.PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertLatestPriceSQL,
		sample.Symbol,
		sample.Price.String(),
		sample.ObservedAt,
		sample.Source,
	)
	if execErr != nil {
		return fmt.Errorf("upsert latest price: %w", execErr)
	}
	return nil
}

// LatestPrice returns the most recent price for symbol, ErrNotFound when
// the symbol has never been fetched.
func (s *Store) LatestPrice(ctx context.Context, symbol string) (domain.PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.PriceSample{}, err
	}

	var (
		sample   domain.PriceSample
		priceStr string
	)
	row := pool.QueryRow(ctx, getLatestPriceSQL, symbol)
	if scanErr := row.Scan(&sample.Symbol, &priceStr, &sample.ObservedAt, &sample.Source); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return domain.PriceSample{}, ErrNotFound
		}
		return domain.PriceSample{}, fmt.Errorf("get latest price: %w", scanErr)
	}

	price, convErr := decimal.NewFromString(priceStr)
	if convErr != nil {
		return domain.PriceSample{}, fmt.Errorf("parse latest price: %w", convErr)
	}
	sample.Price = price
	return sample, nil
}

// ListLatestPrices returns the latest-price projection for every symbol.
func (s *Store) ListLatestPrices(ctx context.Context) ([]domain.PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listLatestPricesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list latest prices: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ListSamplesBetween lists stored observations for symbol within a window.
func (s *Store) ListSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// ListRecentSamples lists the most recent observations for symbol, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, symbol string, limit int) ([]domain.PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows)
}

// CountSamples counts stored observations.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// DeleteSamplesBefore removes observations older than the cutoff.
func (s *Store) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteSamplesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete samples before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// CreateAlert persists a new alert definition and returns it with its id.
func (s *Store) CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Alert{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Owner,
		alert.Symbol,
		string(alert.Kind),
		string(alert.Condition),
		alert.Threshold.String(),
		int64(alert.Duration/time.Second),
		alert.Active,
	)
	if scanErr := row.Scan(&alert.ID, &alert.CreatedAt); scanErr != nil {
		return domain.Alert{}, fmt.Errorf("create alert: %w", scanErr)
	}
	return alert, nil
}

// ListAlerts lists alert definitions, optionally restricted to active ones.
func (s *Store) ListAlerts(ctx context.Context, activeOnly bool) ([]domain.Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := listAlertsSQL
	if activeOnly {
		query = listActiveAlertsSQL
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]domain.Alert, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// GetAlertState loads evaluation state, ErrNotFound when none was stored yet.
func (s *Store) GetAlertState(ctx context.Context, alertID int64) (domain.AlertState, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.AlertState{}, err
	}

	var (
		state     domain.AlertState
		pending   sql.NullTime
		triggered sql.NullTime
	)
	row := pool.QueryRow(ctx, getAlertStateSQL, alertID)
	if scanErr := row.Scan(&state.AlertID, &pending, &triggered, &state.UpdatedAt); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return domain.AlertState{}, ErrNotFound
		}
		return domain.AlertState{}, fmt.Errorf("get alert state: %w", scanErr)
	}

	if pending.Valid {
		t := pending.Time
		state.PendingSince = &t
	}
	if triggered.Valid {
		t := triggered.Time
		state.LastTriggeredAt = &t
	}
	return state, nil
}

// SaveAlertState upserts evaluation state for one alert.
func (s *Store) SaveAlertState(ctx context.Context, state domain.AlertState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertAlertStateSQL,
		state.AlertID,
		state.PendingSince,
		state.LastTriggeredAt,
		state.UpdatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("save alert state: %w", execErr)
	}
	return nil
}

// InsertTriggerEvent appends one emission to the audit trail. Replays of
// the same episode are silently ignored.
func (s *Store) InsertTriggerEvent(ctx context.Context, event domain.TriggerEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertTriggerEventSQL,
		event.EpisodeID,
		event.AlertID,
		event.Owner,
		event.Symbol,
		event.Price.String(),
		event.FiredAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert trigger event: %w", execErr)
	}
	return nil
}

// ListRecentTriggers lists the newest audit records first.
func (s *Store) ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentTriggersSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent triggers: %w", queryErr)
	}
	defer rows.Close()

	records := make([]TriggerRecord, 0, limit)
	for rows.Next() {
		var (
			rec      TriggerRecord
			priceStr string
		)
		if err := rows.Scan(
			&rec.Event.EpisodeID,
			&rec.Event.AlertID,
			&rec.Event.Owner,
			&rec.Event.Symbol,
			&priceStr,
			&rec.Event.FiredAt,
			&rec.Delivered,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse trigger price: %w", convErr)
		}
		rec.Event.Price = price
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// MarkTriggerDelivered flips the delivered flag on one audit record.
func (s *Store) MarkTriggerDelivered(ctx context.Context, episodeID uuid.UUID) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, markTriggerDeliveredSQL, episodeID)
	if execErr != nil {
		return fmt.Errorf("mark trigger delivered: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTriggersBefore removes audit records older than the cutoff.
func (s *Store) DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteTriggersBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete triggers before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// WasDispatched reports whether a delivery was already attempted for episode.
func (s *Store) WasDispatched(ctx context.Context, episodeID uuid.UUID) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var dispatched bool
	if scanErr := pool.QueryRow(ctx, wasDispatchedSQL, episodeID).Scan(&dispatched); scanErr != nil {
		return false, fmt.Errorf("was dispatched: %w", scanErr)
	}
	return dispatched, nil
}

// RecordDispatched marks an episode as handled. Recording twice is a no-op.
func (s *Store) RecordDispatched(ctx context.Context, episodeID uuid.UUID, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, recordDispatchedSQL, episodeID, at); execErr != nil {
		return fmt.Errorf("record dispatched: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows) ([]domain.PriceSample, error) {
	samples := make([]domain.PriceSample, 0)
	for rows.Next() {
		var (
			sample   domain.PriceSample
			priceStr string
		)
		if err := rows.Scan(&sample.Symbol, &priceStr, &sample.ObservedAt, &sample.Source); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse sample price: %w", convErr)
		}
		sample.Price = price
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanAlert(rows pgx.Rows) (domain.Alert, error) {
	var (
		alert        domain.Alert
		kind         string
		condition    string
		thresholdStr string
		durationSecs int64
	)

	if err := rows.Scan(
		&alert.ID,
		&alert.Owner,
		&alert.Symbol,
		&kind,
		&condition,
		&thresholdStr,
		&durationSecs,
		&alert.Active,
		&alert.CreatedAt,
	); err != nil {
		return domain.Alert{}, err
	}

	threshold, convErr := decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return domain.Alert{}, fmt.Errorf("parse threshold: %w", convErr)
	}

	alert.Kind = domain.AlertKind(kind)
	alert.Condition = domain.Condition(condition)
	alert.Threshold = threshold
	alert.Duration = time.Duration(durationSecs) * time.Second
	return alert, nil
}

var _ Repository = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
