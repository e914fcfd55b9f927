package model

import (
	"fmt"
	"time"
)

// Category is the closed set of food categories.
type Category string

const (
	CategoryVegetables    Category = "Vegetables"
	CategoryFruits        Category = "Fruits"
	CategoryDairy         Category = "Dairy"
	CategoryMeat          Category = "Meat"
	CategorySeafood       Category = "Seafood"
	CategoryBeverages     Category = "Beverages"
	CategoryCondiments    Category = "Condiments"
	CategoryLeftovers     Category = "Leftovers"
	CategoryFrozen        Category = "Frozen"
	CategoryUncategorized Category = "Uncategorized"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryVegetables,
	CategoryFruits,
	CategoryDairy,
	CategoryMeat,
	CategorySeafood,
	CategoryBeverages,
	CategoryCondiments,
	CategoryLeftovers,
	CategoryFrozen,
	CategoryUncategorized,
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Status is the urgency classification of an item, always derived from
// remaining days and never stored independently of them.
type Status string

const (
	StatusFresh    Status = "fresh"
	StatusNormal   Status = "normal"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusExpired  Status = "expired"
	StatusConsumed Status = "consumed"
)

// MatchKey associates scans with existing inventory.
type MatchKey struct {
	NormalizedName string
	Category       Category
	Location       string
}

func (k MatchKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.NormalizedName, k.Category, k.Location)
}

// FoodItem is a canonical inventory record. Writes go exclusively through
// the inventory reconciler; the expiry/status/alert stages only read.
type FoodItem struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Category       Category   `json:"category"`
	Quantity       int        `json:"quantity"`
	Unit           string     `json:"unit"`
	Location       string     `json:"location"`
	Barcode        string     `json:"barcode,omitempty"`
	ExpiryDate     time.Time  `json:"expiry_date"`
	ExpirySource   string     `json:"expiry_source"`
	Status         Status     `json:"status"`
	Confidence     float64    `json:"confidence"`
	ReviewRequired bool       `json:"review_required,omitempty"`
	LastSessionID  string     `json:"last_session_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ConsumedAt     *time.Time `json:"consumed_at,omitempty"`
}

// Key returns the item's inventory match key.
func (f *FoodItem) Key() MatchKey {
	return MatchKey{NormalizedName: f.NormalizedName, Category: f.Category, Location: f.Location}
}

// Active reports whether the item is still in live inventory.
func (f *FoodItem) Active() bool {
	return f.ConsumedAt == nil
}

// ConsumptionRecord archives a terminated item for history and waste stats.
type ConsumptionRecord struct {
	ID         string    `json:"id"`
	FoodItemID string    `json:"food_item_id"`
	Name       string    `json:"name"`
	Category   Category  `json:"category"`
	Quantity   int       `json:"quantity"`
	WasExpired bool      `json:"was_expired"`
	ConsumedAt time.Time `json:"consumed_at"`
}

// CategoryWaste summarizes consumption for one category.
type CategoryWaste struct {
	Category Category `json:"category"`
	Total    int      `json:"total"`
	Expired  int      `json:"expired"`
}

// WasteStats aggregates consumption history over a lookback window.
type WasteStats struct {
	LookbackDays int             `json:"lookback_days"`
	TotalItems   int             `json:"total_items"`
	ExpiredItems int             `json:"expired_items"`
	WasteRate    float64         `json:"waste_rate"`
	ByCategory   []CategoryWaste `json:"by_category"`
}
