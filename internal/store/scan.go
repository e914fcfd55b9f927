package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pantrysense/pantry-cli/internal/model"
)

var errNotFound = errors.New("not found")

type scannable interface {
	Scan(dest ...any) error
}

// scanItem reads one food_items row in sqliteItemColumns order.
func scanItem(row scannable) (*model.FoodItem, error) {
	var item model.FoodItem
	var category, status string
	var barcode, sessionID sql.NullString
	var consumedAt sql.NullTime

	err := row.Scan(
		&item.ID, &item.Name, &item.NormalizedName, &category, &item.Quantity,
		&item.Unit, &item.Location, &barcode, &item.ExpiryDate, &item.ExpirySource,
		&status, &item.Confidence, &item.ReviewRequired,
		&sessionID, &item.CreatedAt, &item.UpdatedAt, &consumedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan item")
	}

	item.Category = model.Category(category)
	item.Status = model.Status(status)
	item.Barcode = barcode.String
	item.LastSessionID = sessionID.String
	if consumedAt.Valid {
		t := consumedAt.Time
		item.ConsumedAt = &t
	}
	return &item, nil
}

func collectItems(rows *sql.Rows) ([]model.FoodItem, error) {
	defer rows.Close()
	var items []model.FoodItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "store: iterate items")
}

// scanAlert reads one alerts row (joined with the item name).
func scanAlert(row scannable) (*model.Alert, error) {
	var alert model.Alert
	var level, state string
	var failedJSON sql.NullString

	err := row.Scan(
		&alert.ID, &alert.FoodItemID, &alert.FoodName, &level, &alert.Message,
		&state, &failedJSON, &alert.CreatedAt, &alert.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan alert")
	}

	alert.Level = model.AlertLevel(level)
	alert.State = model.AlertState(state)
	if failedJSON.Valid && failedJSON.String != "" {
		if err := json.Unmarshal([]byte(failedJSON.String), &alert.FailedChannels); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal failed channels")
		}
	}
	return &alert, nil
}

func collectAlerts(rows *sql.Rows) ([]model.Alert, error) {
	defer rows.Close()
	var alerts []model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, eris.Wrap(rows.Err(), "store: iterate alerts")
}

// appendChannel decodes a failed-channel JSON list and appends channel once.
func appendChannel(encoded, channel string) []string {
	var channels []string
	if encoded != "" {
		_ = json.Unmarshal([]byte(encoded), &channels)
	}
	for _, c := range channels {
		if c == channel {
			return channels
		}
	}
	return append(channels, channel)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: %s not found: %s", entity, id)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

// repeatPlaceholder appends n extra ", ?" markers after an initial one.
func repeatPlaceholder(n int) string {
	return strings.Repeat(", ?", n)
}
