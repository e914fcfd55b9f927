package store

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pantrysense/pantry-cli/internal/model"
)

// Pool abstracts *pgxpool.Pool so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Test hook for pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS food_items (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	category        TEXT NOT NULL,
	quantity        INTEGER NOT NULL DEFAULT 1,
	unit            TEXT NOT NULL DEFAULT 'piece',
	location        TEXT NOT NULL DEFAULT 'main_compartment',
	barcode         TEXT,
	expiry_date     TIMESTAMPTZ NOT NULL,
	expiry_source   TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'fresh',
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_required BOOLEAN NOT NULL DEFAULT FALSE,
	last_session_id TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	consumed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	food_item_id    TEXT NOT NULL REFERENCES food_items(id),
	level           TEXT NOT NULL,
	message         TEXT NOT NULL,
	state           TEXT NOT NULL DEFAULT 'active',
	failed_channels JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS consumption_history (
	id           TEXT PRIMARY KEY,
	food_item_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	category     TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	was_expired  BOOLEAN NOT NULL DEFAULT FALSE,
	consumed_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_match_key
	ON food_items(normalized_name, category, location);
CREATE INDEX IF NOT EXISTS idx_items_status ON food_items(status);
CREATE INDEX IF NOT EXISTS idx_items_expiry ON food_items(expiry_date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open
	ON alerts(food_item_id, level)
	WHERE state IN ('active', 'acknowledged');
CREATE INDEX IF NOT EXISTS idx_alerts_item ON alerts(food_item_id);
CREATE INDEX IF NOT EXISTS idx_history_consumed_at ON consumption_history(consumed_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgItemColumns = `id, name, normalized_name, category, quantity, unit, location,
	barcode, expiry_date, expiry_source, status, confidence, review_required,
	last_session_id, created_at, updated_at, consumed_at`

func (s *PostgresStore) UpsertItem(ctx context.Context, rec model.FusedRecord, retention time.Duration, now time.Time) (*model.FoodItem, UpsertOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// An empty match set leaves FOR UPDATE with nothing to lock, so two
	// writers racing on a new key would both insert. The advisory lock
	// serializes all writers of one match key across processes.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, matchKeyLockID(rec)); err != nil {
		return nil, "", eris.Wrap(err, "postgres: lock match key")
	}

	cutoff := now.UTC().Add(-retention)
	rows, err := tx.Query(ctx,
		`SELECT `+pgItemColumns+` FROM food_items
		 WHERE normalized_name = $1 AND category = $2 AND location = $3
		   AND consumed_at IS NULL AND updated_at >= $4
		 ORDER BY updated_at DESC
		 FOR UPDATE`,
		rec.NormalizedKey, string(rec.Category), rec.Location, cutoff,
	)
	if err != nil {
		return nil, "", eris.Wrap(err, "postgres: find match")
	}
	matches, err := pgCollectItems(rows)
	if err != nil {
		return nil, "", err
	}

	switch len(matches) {
	case 1:
		existing := &matches[0]
		if existing.LastSessionID == rec.SessionID {
			return existing, OutcomeUnchanged, eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")
		}
		merged := mergeItemRecord(existing, rec, now)
		if _, err := tx.Exec(ctx,
			`UPDATE food_items SET name = $1, quantity = $2, barcode = $3, expiry_date = $4,
			   expiry_source = $5, confidence = $6, review_required = $7, last_session_id = $8,
			   updated_at = $9
			 WHERE id = $10`,
			merged.Name, merged.Quantity, pgNull(merged.Barcode), merged.ExpiryDate,
			merged.ExpirySource, merged.Confidence, merged.ReviewRequired,
			pgNull(merged.LastSessionID), merged.UpdatedAt, merged.ID,
		); err != nil {
			return nil, "", eris.Wrap(err, "postgres: update item")
		}
		return merged, OutcomeUpdated, eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")

	case 0:
		item := newItemFromRecord(uuid.New().String(), rec, now, false)
		if err := pgInsertItem(ctx, tx, item); err != nil {
			return nil, "", err
		}
		return item, OutcomeCreated, eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")

	default:
		item := newItemFromRecord(uuid.New().String(), rec, now, true)
		if err := pgInsertItem(ctx, tx, item); err != nil {
			return nil, "", err
		}
		return item, OutcomeFlagged, eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")
	}
}

// matchKeyLockID hashes a record's match key into an advisory lock id.
func matchKeyLockID(rec model.FusedRecord) int64 {
	key := model.MatchKey{
		NormalizedName: rec.NormalizedKey,
		Category:       rec.Category,
		Location:       rec.Location,
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key.String()))
	return int64(h.Sum64())
}

func pgInsertItem(ctx context.Context, tx pgx.Tx, item *model.FoodItem) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO food_items (`+pgItemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		item.ID, item.Name, item.NormalizedName, string(item.Category), item.Quantity,
		item.Unit, item.Location, pgNull(item.Barcode), item.ExpiryDate, item.ExpirySource,
		string(item.Status), item.Confidence, item.ReviewRequired,
		pgNull(item.LastSessionID), item.CreatedAt, item.UpdatedAt, nil,
	)
	return eris.Wrap(err, "postgres: insert item")
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*model.FoodItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgItemColumns+` FROM food_items WHERE id = $1`, id)
	item, err := pgScanItem(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("postgres: item not found: %s", id)
	}
	return item, err
}

func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]model.FoodItem, error) {
	query := `SELECT ` + pgItemColumns + ` FROM food_items WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return pgPlaceholder(len(args))
	}

	if !filter.IncludeConsumed {
		query += ` AND consumed_at IS NULL`
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Category != "" {
		query += ` AND category = ` + arg(string(filter.Category))
	}
	if filter.Location != "" {
		query += ` AND location = ` + arg(filter.Location)
	}
	if filter.ExpiringWithin > 0 {
		query += ` AND expiry_date <= ` + arg(time.Now().UTC().AddDate(0, 0, filter.ExpiringWithin))
	}
	query += ` ORDER BY expiry_date ASC LIMIT ` + arg(limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
	}
	return pgCollectItems(rows)
}

func (s *PostgresStore) UpdateItemStatus(ctx context.Context, id string, status model.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE food_items SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update item status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: item not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ConsumeItem(ctx context.Context, id string, wasExpired bool, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin consume")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`SELECT `+pgItemColumns+` FROM food_items WHERE id = $1 AND consumed_at IS NULL FOR UPDATE`, id)
	item, err := pgScanItem(row)
	if err == pgx.ErrNoRows {
		return eris.Errorf("postgres: active item not found: %s", id)
	}
	if err != nil {
		return err
	}

	now = now.UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE food_items SET status = $1, consumed_at = $2, updated_at = $3 WHERE id = $4`,
		string(model.StatusConsumed), now, now, id,
	); err != nil {
		return eris.Wrap(err, "postgres: mark consumed")
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO consumption_history (id, food_item_id, name, category, quantity, was_expired, consumed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), item.ID, item.Name, string(item.Category), item.Quantity, wasExpired, now,
	); err != nil {
		return eris.Wrap(err, "postgres: archive consumption")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit consume")
}

func (s *PostgresStore) CreateAlertIfAbsent(ctx context.Context, alert model.Alert) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, food_item_id, level, message, state, failed_channels, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULL, $6, $7)
		 ON CONFLICT (food_item_id, level) WHERE state IN ('active', 'acknowledged') DO NOTHING`,
		alert.ID, alert.FoodItemID, string(alert.Level), alert.Message,
		string(model.AlertStateActive), alert.CreatedAt.UTC(), alert.CreatedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert alert")
	}
	return tag.RowsAffected() > 0, nil
}

const pgAlertColumns = `a.id, a.food_item_id, f.name, a.level, a.message, a.state,
	a.failed_channels, a.created_at, a.updated_at`

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgAlertColumns+` FROM alerts a
		 JOIN food_items f ON f.id = a.food_item_id WHERE a.id = $1`, id)
	alert, err := pgScanAlert(row)
	if err == pgx.ErrNoRows {
		return nil, eris.Errorf("postgres: alert not found: %s", id)
	}
	return alert, err
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT ` + pgAlertColumns + ` FROM alerts a
		JOIN food_items f ON f.id = a.food_item_id WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return pgPlaceholder(len(args))
	}

	if filter.FoodItemID != "" {
		query += ` AND a.food_item_id = ` + arg(filter.FoodItemID)
	}
	if filter.Level != "" {
		query += ` AND a.level = ` + arg(string(filter.Level))
	}
	if filter.State != "" {
		query += ` AND a.state = ` + arg(string(filter.State))
	}
	if filter.OpenOnly {
		query += ` AND a.state IN ('active', 'acknowledged')`
	}
	query += ` ORDER BY a.created_at DESC LIMIT ` + arg(limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	return pgCollectAlerts(rows)
}

func (s *PostgresStore) UpdateAlertState(ctx context.Context, id string, state model.AlertState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET state = $1, updated_at = $2 WHERE id = $3`,
		string(state), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update alert state %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: alert not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ResolveItemAlerts(ctx context.Context, itemID string, levels ...model.AlertLevel) (int, error) {
	query := `UPDATE alerts SET state = $1, updated_at = $2 WHERE food_item_id = $3 AND state != $1`
	args := []any{string(model.AlertStateResolved), time.Now().UTC(), itemID}

	if len(levels) > 0 {
		strs := make([]string, len(levels))
		for i, l := range levels {
			strs[i] = string(l)
		}
		args = append(args, strs)
		query += ` AND level = ANY(` + pgPlaceholder(len(args)) + `)`
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: resolve alerts for item %s", itemID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) MarkNotificationFailed(ctx context.Context, alertID, channel string) error {
	channelJSON, err := json.Marshal(channel)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal channel")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts
		 SET failed_channels = CASE
		   WHEN failed_channels IS NULL THEN jsonb_build_array($1::text)
		   WHEN failed_channels @> $2::jsonb THEN failed_channels
		   ELSE failed_channels || $2::jsonb
		 END
		 WHERE id = $3`,
		channel, string(channelJSON), alertID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark notification failed %s", alertID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: alert not found: %s", alertID)
	}
	return nil
}

func (s *PostgresStore) WasteStats(ctx context.Context, lookbackDays int) (*model.WasteStats, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	rows, err := s.pool.Query(ctx,
		`SELECT category, COUNT(*), SUM(CASE WHEN was_expired THEN 1 ELSE 0 END)
		 FROM consumption_history WHERE consumed_at >= $1
		 GROUP BY category ORDER BY COUNT(*) DESC`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: waste stats")
	}
	defer rows.Close()

	stats := &model.WasteStats{LookbackDays: lookbackDays}
	for rows.Next() {
		var cw model.CategoryWaste
		var category string
		if err := rows.Scan(&category, &cw.Total, &cw.Expired); err != nil {
			return nil, eris.Wrap(err, "postgres: scan waste row")
		}
		cw.Category = model.Category(category)
		stats.ByCategory = append(stats.ByCategory, cw)
		stats.TotalItems += cw.Total
		stats.ExpiredItems += cw.Expired
	}
	if stats.TotalItems > 0 {
		stats.WasteRate = float64(stats.ExpiredItems) / float64(stats.TotalItems)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: waste stats iterate")
}

// pg scanning helpers

func pgScanItem(row pgx.Row) (*model.FoodItem, error) {
	var item model.FoodItem
	var category, status string
	var barcode, sessionID *string
	var consumedAt *time.Time

	err := row.Scan(
		&item.ID, &item.Name, &item.NormalizedName, &category, &item.Quantity,
		&item.Unit, &item.Location, &barcode, &item.ExpiryDate, &item.ExpirySource,
		&status, &item.Confidence, &item.ReviewRequired,
		&sessionID, &item.CreatedAt, &item.UpdatedAt, &consumedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, pgx.ErrNoRows
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan item")
	}

	item.Category = model.Category(category)
	item.Status = model.Status(status)
	if barcode != nil {
		item.Barcode = *barcode
	}
	if sessionID != nil {
		item.LastSessionID = *sessionID
	}
	item.ConsumedAt = consumedAt
	return &item, nil
}

func pgCollectItems(rows pgx.Rows) ([]model.FoodItem, error) {
	defer rows.Close()
	var items []model.FoodItem
	for rows.Next() {
		item, err := pgScanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate items")
}

func pgScanAlert(row pgx.Row) (*model.Alert, error) {
	var alert model.Alert
	var level, state string
	var failedJSON []byte

	err := row.Scan(
		&alert.ID, &alert.FoodItemID, &alert.FoodName, &level, &alert.Message,
		&state, &failedJSON, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, pgx.ErrNoRows
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan alert")
	}

	alert.Level = model.AlertLevel(level)
	alert.State = model.AlertState(state)
	if len(failedJSON) > 0 {
		if err := json.Unmarshal(failedJSON, &alert.FailedChannels); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal failed channels")
		}
	}
	return &alert, nil
}

func pgCollectAlerts(rows pgx.Rows) ([]model.Alert, error) {
	defer rows.Close()
	var alerts []model.Alert
	for rows.Next() {
		alert, err := pgScanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, eris.Wrap(rows.Err(), "postgres: iterate alerts")
}

func pgNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pgPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}
