// Package notify fans alerts out to delivery channels with isolated
// retry per channel.
package notify

import (
	"context"

	"github.com/pantrysense/pantry-cli/internal/model"
)

// Channel delivers one alert to one destination. Send is expected to be
// safe for concurrent use; the dispatcher never shares mutable alert
// state between channels.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert model.Alert) error
}

// subject renders the title line shared by the richer channels.
func subject(alert model.Alert) string {
	switch alert.Level {
	case model.AlertLevelCritical:
		return "Food Expiry CRITICAL: " + alert.FoodName
	case model.AlertLevelWarning:
		return "Food Expiry Warning: " + alert.FoodName
	default:
		return "Food Expiry Notice: " + alert.FoodName
	}
}
