package reconcile

import (
	"sort"

	"github.com/cgu-sc/sentinela/internal/core/types"
)

// MonthlyTotals accumulates one product's sales for one calendar month,
// split into total and unsubstantiated portions.
type MonthlyTotals struct {
	QtySold    types.Quantity
	QtyUnsub   types.Quantity
	ValueSold  types.Money
	ValueUnsub types.Money
}

// MonthlyRow is one persistable aggregate row. Period is the first day of
// the month.
type MonthlyRow struct {
	ProductID  int64
	Period     types.Date
	QtySold    types.Quantity
	QtyUnsub   types.Quantity
	ValueSold  types.Money
	ValueUnsub types.Money
}

// MonthlyLedger buckets sale quantities and values by (product, month) over
// a fixed horizon. Every month of the horizon is enumerable for every
// product; only months with sold quantity > 0 are emitted as rows.
type MonthlyLedger struct {
	months  []string
	starts  map[string]types.Date
	buckets map[int64]map[string]*MonthlyTotals
}

// NewMonthlyLedger enumerates calendar months from the first of start's
// month through end, inclusive.
func NewMonthlyLedger(start, end types.Date) *MonthlyLedger {
	m := &MonthlyLedger{
		starts:  make(map[string]types.Date),
		buckets: make(map[int64]map[string]*MonthlyTotals),
	}
	for cur := start.FirstOfMonth(); !cur.After(end); cur = cur.AddMonths(1) {
		key := cur.YearMonth()
		m.months = append(m.months, key)
		m.starts[key] = cur
	}
	return m
}

// InitProduct pre-creates the dense month map for a product.
func (m *MonthlyLedger) InitProduct(productID int64) {
	if _, ok := m.buckets[productID]; ok {
		return
	}
	months := make(map[string]*MonthlyTotals, len(m.months))
	for _, key := range m.months {
		months[key] = &MonthlyTotals{}
	}
	m.buckets[productID] = months
}

// bucket returns the product/month slot, or nil when the date falls outside
// the horizon. Out-of-horizon sales stay in the ledger but are not bucketed.
func (m *MonthlyLedger) bucket(productID int64, d types.Date) *MonthlyTotals {
	months, ok := m.buckets[productID]
	if !ok {
		return nil
	}
	return months[d.YearMonth()]
}

// AddSale accumulates a sale event's full quantity and value.
func (m *MonthlyLedger) AddSale(productID int64, d types.Date, qty types.Quantity, value types.Money) {
	if b := m.bucket(productID, d); b != nil {
		b.QtySold += qty
		b.ValueSold = b.ValueSold.Add(value)
	}
}

// AddShortfall accumulates the unsubstantiated portion of a sale event.
func (m *MonthlyLedger) AddShortfall(productID int64, d types.Date, qty types.Quantity, value types.Money) {
	if b := m.bucket(productID, d); b != nil {
		b.QtyUnsub += qty
		b.ValueUnsub = b.ValueUnsub.Add(value)
	}
}

// Totals returns the totals for one product and month, if enumerated.
func (m *MonthlyLedger) Totals(productID int64, yearMonth string) (MonthlyTotals, bool) {
	months, ok := m.buckets[productID]
	if !ok {
		return MonthlyTotals{}, false
	}
	t, ok := months[yearMonth]
	if !ok {
		return MonthlyTotals{}, false
	}
	return *t, true
}

// Rows emits the nonzero aggregate rows ordered by product then month.
func (m *MonthlyLedger) Rows() []MonthlyRow {
	products := make([]int64, 0, len(m.buckets))
	for id := range m.buckets {
		products = append(products, id)
	}
	sort.Slice(products, func(i, j int) bool { return products[i] < products[j] })

	var rows []MonthlyRow
	for _, id := range products {
		months := m.buckets[id]
		for _, key := range m.months {
			t := months[key]
			if !t.QtySold.IsPositive() {
				continue
			}
			rows = append(rows, MonthlyRow{
				ProductID:  id,
				Period:     m.starts[key],
				QtySold:    t.QtySold,
				QtyUnsub:   t.QtyUnsub,
				ValueSold:  t.ValueSold,
				ValueUnsub: t.ValueUnsub,
			})
		}
	}
	return rows
}
