// Package cart prices a submitted cart against the catalog. The catalog
// itself is owned elsewhere; this package only reads it.
package cart

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/money"
)

// Line is one cart entry as submitted by the client.
type Line struct {
	VariantID string `json:"variant_id" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"gte=1,max=99"`
}

// PricedLine is a line with the catalog data frozen at checkout time.
type PricedLine struct {
	VariantID   string
	ProductName string
	SKU         string
	Quantity    int
	UnitPrice   money.Money
	LineTotal   money.Money
}

type Snapshot struct {
	Lines    []PricedLine
	Currency string
	Subtotal money.Money
}

type variantRow struct {
	VariantID   string `gorm:"column:variant_id"`
	SKU         string `gorm:"column:sku"`
	PriceCents  int64  `gorm:"column:price_cents"`
	Currency    string `gorm:"column:currency"`
	ProductName string `gorm:"column:product_name"`
}

type Catalog struct{ db *gorm.DB }

func NewCatalog(db *gorm.DB) *Catalog { return &Catalog{db: db} }

// Snapshot prices lines with current catalog prices. Duplicate variants are
// merged; output order is by first appearance.
func (c *Catalog) Snapshot(ctx context.Context, lines []Line) (Snapshot, error) {
	qtyByID, order := merge(lines)
	if len(order) == 0 {
		return Snapshot{}, ErrEmpty
	}

	ids := append([]string(nil), order...)
	// deterministic IN list
	sort.Strings(ids)

	var rows []variantRow
	if err := c.db.WithContext(ctx).
		Table("product_variants AS v").
		Select(`v.id AS variant_id,
			v.sku AS sku,
			v.price_cents AS price_cents,
			v.currency AS currency,
			p.name AS product_name`).
		Joins("JOIN products p ON p.id = v.product_id").
		Where("v.id IN ? AND v.is_active = ? AND p.is_active = ?", ids, true, true).
		Scan(&rows).Error; err != nil {
		return Snapshot{}, err
	}

	byID := make(map[string]variantRow, len(rows))
	for _, r := range rows {
		byID[r.VariantID] = r
	}
	return build(order, qtyByID, byID)
}

func merge(lines []Line) (map[string]int, []string) {
	qty := make(map[string]int, len(lines))
	order := make([]string, 0, len(lines))
	for _, ln := range lines {
		id := strings.TrimSpace(ln.VariantID)
		if id == "" || ln.Quantity <= 0 {
			continue
		}
		if _, ok := qty[id]; !ok {
			order = append(order, id)
		}
		qty[id] += ln.Quantity
	}
	return qty, order
}

func build(order []string, qtyByID map[string]int, byID map[string]variantRow) (Snapshot, error) {
	var missing []string
	for _, id := range order {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return Snapshot{}, &UnavailableError{VariantIDs: missing}
	}

	currency := money.NormalizeCurrency(byID[order[0]].Currency)
	snap := Snapshot{Currency: currency, Subtotal: money.Zero(currency)}
	for _, id := range order {
		r := byID[id]
		if money.NormalizeCurrency(r.Currency) != currency {
			return Snapshot{}, ErrMixedCurrency
		}
		unit := money.FromMinorUnits(r.PriceCents, r.Currency)
		line := unit.MultiplyInt(int64(qtyByID[id]))

		var err error
		if snap.Subtotal, err = snap.Subtotal.Add(line); err != nil {
			return Snapshot{}, err
		}
		snap.Lines = append(snap.Lines, PricedLine{
			VariantID:   id,
			ProductName: r.ProductName,
			SKU:         r.SKU,
			Quantity:    qtyByID[id],
			UnitPrice:   unit,
			LineTotal:   line,
		})
	}
	return snap, nil
}
