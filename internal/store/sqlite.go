package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pantrysense/pantry-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. WAL's single-writer discipline is what makes the upsert and alert
// transactions below serializable.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS food_items (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	category        TEXT NOT NULL,
	quantity        INTEGER NOT NULL DEFAULT 1,
	unit            TEXT NOT NULL DEFAULT 'piece',
	location        TEXT NOT NULL DEFAULT 'main_compartment',
	barcode         TEXT,
	expiry_date     DATETIME NOT NULL,
	expiry_source   TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'fresh',
	confidence      REAL NOT NULL DEFAULT 0,
	review_required INTEGER NOT NULL DEFAULT 0,
	last_session_id TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	consumed_at     DATETIME
);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	food_item_id    TEXT NOT NULL REFERENCES food_items(id),
	level           TEXT NOT NULL,
	message         TEXT NOT NULL,
	state           TEXT NOT NULL DEFAULT 'active',
	failed_channels TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS consumption_history (
	id           TEXT PRIMARY KEY,
	food_item_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	category     TEXT NOT NULL,
	quantity     INTEGER NOT NULL,
	was_expired  INTEGER NOT NULL DEFAULT 0,
	consumed_at  DATETIME NOT NULL
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteItemColumns = `id, name, normalized_name, category, quantity, unit, location,
	barcode, expiry_date, expiry_source, status, confidence, review_required,
	last_session_id, created_at, updated_at, consumed_at`

func (s *SQLiteStore) UpsertItem(ctx context.Context, rec model.FusedRecord, retention time.Duration, now time.Time) (*model.FoodItem, UpsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	cutoff := now.UTC().Add(-retention)
	rows, err := tx.QueryContext(ctx,
		`SELECT `+sqliteItemColumns+` FROM food_items
		 WHERE normalized_name = ? AND category = ? AND location = ?
		   AND consumed_at IS NULL AND updated_at >= ?
		 ORDER BY updated_at DESC`,
		rec.NormalizedKey, string(rec.Category), rec.Location, cutoff,
	)
	if err != nil {
		return nil, "", eris.Wrap(err, "sqlite: find match")
	}
	matches, err := collectItems(rows)
	if err != nil {
		return nil, "", err
	}

	switch len(matches) {
	case 1:
		existing := &matches[0]
		if existing.LastSessionID == rec.SessionID {
			// replaying the same scan session; nothing to apply
			return existing, OutcomeUnchanged, tx.Commit()
		}
		merged := mergeItemRecord(existing, rec, now)
		if err := sqliteUpdateItem(ctx, tx, merged); err != nil {
			return nil, "", err
		}
		return merged, OutcomeUpdated, eris.Wrap(tx.Commit(), "sqlite: commit upsert")

	case 0:
		item := newItemFromRecord(uuid.New().String(), rec, now, false)
		if err := sqliteInsertItem(ctx, tx, item); err != nil {
			return nil, "", err
		}
		return item, OutcomeCreated, eris.Wrap(tx.Commit(), "sqlite: commit upsert")

	default:
		// ambiguous match: never auto-merge, surface for manual review
		item := newItemFromRecord(uuid.New().String(), rec, now, true)
		if err := sqliteInsertItem(ctx, tx, item); err != nil {
			return nil, "", err
		}
		return item, OutcomeFlagged, eris.Wrap(tx.Commit(), "sqlite: commit upsert")
	}
}

func sqliteInsertItem(ctx context.Context, tx *sql.Tx, item *model.FoodItem) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO food_items (`+sqliteItemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.NormalizedName, string(item.Category), item.Quantity,
		item.Unit, item.Location, nullString(item.Barcode), item.ExpiryDate, item.ExpirySource,
		string(item.Status), item.Confidence, item.ReviewRequired,
		nullString(item.LastSessionID), item.CreatedAt, item.UpdatedAt, nil,
	)
	return eris.Wrap(err, "sqlite: insert item")
}

func sqliteUpdateItem(ctx context.Context, tx *sql.Tx, item *model.FoodItem) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE food_items SET name = ?, quantity = ?, barcode = ?, expiry_date = ?,
		   expiry_source = ?, confidence = ?, review_required = ?, last_session_id = ?,
		   updated_at = ?
		 WHERE id = ?`,
		item.Name, item.Quantity, nullString(item.Barcode), item.ExpiryDate,
		item.ExpirySource, item.Confidence, item.ReviewRequired,
		nullString(item.LastSessionID), item.UpdatedAt, item.ID,
	)
	return eris.Wrap(err, "sqlite: update item")
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*model.FoodItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteItemColumns+` FROM food_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == errNotFound {
		return nil, eris.Errorf("sqlite: item not found: %s", id)
	}
	return item, err
}

func (s *SQLiteStore) ListItems(ctx context.Context, filter ItemFilter) ([]model.FoodItem, error) {
	query := `SELECT ` + sqliteItemColumns + ` FROM food_items WHERE 1=1`
	var args []any

	if !filter.IncludeConsumed {
		query += ` AND consumed_at IS NULL`
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if filter.Location != "" {
		query += ` AND location = ?`
		args = append(args, filter.Location)
	}
	if filter.ExpiringWithin > 0 {
		query += ` AND expiry_date <= ?`
		args = append(args, time.Now().UTC().AddDate(0, 0, filter.ExpiringWithin))
	}
	query += ` ORDER BY expiry_date ASC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	return collectItems(rows)
}

func (s *SQLiteStore) UpdateItemStatus(ctx context.Context, id string, status model.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE food_items SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update item status %s", id)
	}
	return checkRowsAffected(res, "item", id)
}

func (s *SQLiteStore) ConsumeItem(ctx context.Context, id string, wasExpired bool, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin consume")
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT `+sqliteItemColumns+` FROM food_items WHERE id = ? AND consumed_at IS NULL`, id)
	item, err := scanItem(row)
	if err == errNotFound {
		return eris.Errorf("sqlite: active item not found: %s", id)
	}
	if err != nil {
		return err
	}

	now = now.UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE food_items SET status = ?, consumed_at = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusConsumed), now, now, id,
	); err != nil {
		return eris.Wrap(err, "sqlite: mark consumed")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO consumption_history (id, food_item_id, name, category, quantity, was_expired, consumed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), item.ID, item.Name, string(item.Category), item.Quantity, wasExpired, now,
	); err != nil {
		return eris.Wrap(err, "sqlite: archive consumption")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit consume")
}

func (s *SQLiteStore) CreateAlertIfAbsent(ctx context.Context, alert model.Alert) (bool, error) {
	// idx_alerts_open enforces the one-open-alert-per-(item, level)
	// invariant; a conflicting insert is a silent no-op.
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, food_item_id, level, message, state, failed_channels, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
		 ON CONFLICT (food_item_id, level) WHERE state IN ('active', 'acknowledged') DO NOTHING`,
		alert.ID, alert.FoodItemID, string(alert.Level), alert.Message,
		string(model.AlertStateActive), alert.CreatedAt.UTC(), alert.CreatedAt.UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: alert rows affected")
	}
	return n > 0, nil
}

const sqliteAlertColumns = `a.id, a.food_item_id, f.name, a.level, a.message, a.state,
	a.failed_channels, a.created_at, a.updated_at`

func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteAlertColumns+` FROM alerts a
		 JOIN food_items f ON f.id = a.food_item_id WHERE a.id = ?`, id)
	alert, err := scanAlert(row)
	if err == errNotFound {
		return nil, eris.Errorf("sqlite: alert not found: %s", id)
	}
	return alert, err
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT ` + sqliteAlertColumns + ` FROM alerts a
		JOIN food_items f ON f.id = a.food_item_id WHERE 1=1`
	var args []any

	if filter.FoodItemID != "" {
		query += ` AND a.food_item_id = ?`
		args = append(args, filter.FoodItemID)
	}
	if filter.Level != "" {
		query += ` AND a.level = ?`
		args = append(args, string(filter.Level))
	}
	if filter.State != "" {
		query += ` AND a.state = ?`
		args = append(args, string(filter.State))
	}
	if filter.OpenOnly {
		query += ` AND a.state IN ('active', 'acknowledged')`
	}
	query += ` ORDER BY a.created_at DESC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	return collectAlerts(rows)
}

func (s *SQLiteStore) UpdateAlertState(ctx context.Context, id string, state model.AlertState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update alert state %s", id)
	}
	return checkRowsAffected(res, "alert", id)
}

func (s *SQLiteStore) ResolveItemAlerts(ctx context.Context, itemID string, levels ...model.AlertLevel) (int, error) {
	query := `UPDATE alerts SET state = ?, updated_at = ? WHERE food_item_id = ? AND state != ?`
	args := []any{string(model.AlertStateResolved), time.Now().UTC(), itemID, string(model.AlertStateResolved)}

	if len(levels) > 0 {
		query += ` AND level IN (?` + repeatPlaceholder(len(levels)-1) + `)`
		for _, l := range levels {
			args = append(args, string(l))
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: resolve alerts for item %s", itemID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: resolve rows affected")
}

func (s *SQLiteStore) MarkNotificationFailed(ctx context.Context, alertID, channel string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mark failed")
	}
	defer tx.Rollback() //nolint:errcheck

	var failedJSON sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT failed_channels FROM alerts WHERE id = ?`, alertID).Scan(&failedJSON)
	if err == sql.ErrNoRows {
		return eris.Errorf("sqlite: alert not found: %s", alertID)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: read failed channels")
	}

	channels := appendChannel(failedJSON.String, channel)
	encoded, err := json.Marshal(channels)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failed channels")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE alerts SET failed_channels = ? WHERE id = ?`, string(encoded), alertID,
	); err != nil {
		return eris.Wrap(err, "sqlite: write failed channels")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit mark failed")
}

func (s *SQLiteStore) WasteStats(ctx context.Context, lookbackDays int) (*model.WasteStats, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*), SUM(CASE WHEN was_expired THEN 1 ELSE 0 END)
		 FROM consumption_history WHERE consumed_at >= ?
		 GROUP BY category ORDER BY COUNT(*) DESC`,
		cutoff,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: waste stats")
	}
	defer rows.Close()

	stats := &model.WasteStats{LookbackDays: lookbackDays}
	for rows.Next() {
		var cw model.CategoryWaste
		var category string
		if err := rows.Scan(&category, &cw.Total, &cw.Expired); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan waste row")
		}
		cw.Category = model.Category(category)
		stats.ByCategory = append(stats.ByCategory, cw)
		stats.TotalItems += cw.Total
		stats.ExpiredItems += cw.Expired
	}
	if stats.TotalItems > 0 {
		stats.WasteRate = float64(stats.ExpiredItems) / float64(stats.TotalItems)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: waste stats iterate")
}
