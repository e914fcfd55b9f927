package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/pantrysense/pantry-cli/internal/model"
)

func TestCatalog_AddAndLookup(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.Len())

	c.Add(Product{Barcode: "123", Name: "Milk", Category: model.CategoryDairy, ShelfLifeDays: 7})

	p, ok := c.Lookup("123")
	require.True(t, ok)
	assert.Equal(t, "Milk", p.Name)

	_, ok = c.Lookup("999")
	assert.False(t, ok)

	// Codes are trimmed on lookup.
	p, ok = c.Lookup("  123 ")
	require.True(t, ok)
	assert.Equal(t, "Milk", p.Name)
}

func TestCatalog_ExpiryFor(t *testing.T) {
	c := New()
	c.Add(Product{Barcode: "123", Name: "Milk", ShelfLifeDays: 7})
	c.Add(Product{Barcode: "456", Name: "Unknown shelf life"})

	scanned := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

	d, ok := c.ExpiryFor("123", scanned)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), d)

	_, ok = c.ExpiryFor("456", scanned)
	assert.False(t, ok)

	_, ok = c.ExpiryFor("missing", scanned)
	assert.False(t, ok)
}

func writeTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("products")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestCatalog_LoadXLSX(t *testing.T) {
	path := writeTestXLSX(t, [][]string{
		{"barcode", "name", "category", "shelf_life_days"},
		{"4006381333931", "Whole Milk", "Dairy", "7"},
		{"5012345678900", "Orange Juice", "Beverages", "30"},
		{"", "No Barcode", "Dairy", "7"},         // skipped
		{"7012345678901", "Cheddar Cheese", "NotACategory", "14"}, // keyword fallback
		{"8012345678902", "Smoked Salmon", "Seafood", "bad"}, // bad days, skipped
	})

	c := New()
	n, err := c.LoadXLSX(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, c.Len())

	p, ok := c.Lookup("4006381333931")
	require.True(t, ok)
	assert.Equal(t, model.CategoryDairy, p.Category)
	assert.Equal(t, 7, p.ShelfLifeDays)

	p, ok = c.Lookup("7012345678901")
	require.True(t, ok)
	assert.Equal(t, model.CategoryDairy, p.Category) // unknown category falls back to the name keyword table
}

func TestCatalog_LoadXLSX_MissingFile(t *testing.T) {
	c := New()
	_, err := c.LoadXLSX(filepath.Join(t.TempDir(), "absent.xlsx"))
	assert.Error(t, err)
}
