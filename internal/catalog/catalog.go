// Package catalog maps barcodes to known products and their shelf life.
// The catalog is loaded once (from an XLSX export) and is read-only
// afterwards, so lookups are safe from concurrent fusion workers.
package catalog

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/normalize"
)

// Product is one catalog entry.
type Product struct {
	Barcode       string         `json:"barcode"`
	Name          string         `json:"name"`
	Category      model.Category `json:"category"`
	ShelfLifeDays int            `json:"shelf_life_days"`
}

// Catalog is an in-memory barcode index.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]Product
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{products: make(map[string]Product)}
}

// Lookup resolves a barcode. Misses are not errors; the caller falls back
// to the category shelf-life default.
func (c *Catalog) Lookup(code string) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[strings.TrimSpace(code)]
	return p, ok
}

// ExpiryFor computes the catalog-derived expiry date for a barcode scanned
// at the given time.
func (c *Catalog) ExpiryFor(code string, scannedAt time.Time) (time.Time, bool) {
	p, ok := c.Lookup(code)
	if !ok || p.ShelfLifeDays <= 0 {
		return time.Time{}, false
	}
	t := scannedAt.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, p.ShelfLifeDays), true
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.products)
}

// Add inserts or replaces one entry.
func (c *Catalog) Add(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.Barcode] = p
}

// LoadXLSX imports a product export with columns
// barcode | name | category | shelf_life_days (header row skipped).
// Rows with an unknown category are kept under Uncategorized; rows without
// a barcode are skipped. Returns the number of rows imported.
func (c *Catalog) LoadXLSX(path string) (int, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return 0, eris.New("catalog: xlsx has no sheets")
	}

	var imported, skipped int
	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue // header
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if len(cells) < 2 || cells[0] == "" {
			skipped++
			continue
		}

		p := Product{Barcode: cells[0], Name: cells[1], Category: model.CategoryUncategorized}
		if len(cells) > 2 && cells[2] != "" {
			cat := model.Category(cells[2])
			if cat.Valid() {
				p.Category = cat
			} else {
				p.Category = normalize.CategoryFor(normalize.Name(cells[1]))
			}
		}
		if len(cells) > 3 && cells[3] != "" {
			days, convErr := strconv.Atoi(cells[3])
			if convErr != nil {
				skipped++
				continue
			}
			p.ShelfLifeDays = days
		}

		c.Add(p)
		imported++
	}

	zap.L().Info("catalog: xlsx import complete",
		zap.String("path", path),
		zap.Int("imported", imported),
		zap.Int("skipped", skipped),
	)
	return imported, nil
}
