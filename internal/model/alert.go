package model

import "time"

// AlertLevel is the urgency of an alert.
type AlertLevel string

const (
	AlertLevelNormal   AlertLevel = "normal"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// rank orders levels for monotonicity checks; higher is more urgent.
func (l AlertLevel) rank() int {
	switch l {
	case AlertLevelNormal:
		return 1
	case AlertLevelWarning:
		return 2
	case AlertLevelCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l is at least as urgent as other.
func (l AlertLevel) AtLeast(other AlertLevel) bool {
	return l.rank() >= other.rank()
}

// AlertState is the lifecycle state of an alert.
type AlertState string

const (
	AlertStateActive       AlertState = "active"
	AlertStateAcknowledged AlertState = "acknowledged"
	AlertStateResolved     AlertState = "resolved"
)

// Open reports whether the state still counts against the
// one-alert-per-(item, level) invariant.
func (s AlertState) Open() bool {
	return s == AlertStateActive || s == AlertStateAcknowledged
}

// Alert references a food item by id only; it is meaningless without the
// item but does not own it.
type Alert struct {
	ID             string     `json:"id"`
	FoodItemID     string     `json:"food_item_id"`
	FoodName       string     `json:"food_name,omitempty"`
	Level          AlertLevel `json:"level"`
	Message        string     `json:"message"`
	State          AlertState `json:"state"`
	FailedChannels []string   `json:"failed_channels,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NotificationFailed reports whether any channel exhausted its retries
// delivering this alert.
func (a *Alert) NotificationFailed() bool {
	return len(a.FailedChannels) > 0
}
