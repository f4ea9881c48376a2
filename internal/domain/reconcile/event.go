// Package reconcile implements the stock-reconciliation engine: an ordered
// walk over each product's merged acquisition/sale events that maintains
// running inventory, flags sales not backed by documented stock, and builds
// the movement-record ledger persisted as the memory of calculation.
package reconcile

import (
	"sort"

	"github.com/cgu-sc/sentinela/internal/core/types"
)

// EventKind distinguishes the two sides of the merged stream.
type EventKind int8

const (
	// KindAcquisition sorts before KindSale on tied dates; the stock from an
	// acquisition is available to same-day sales.
	KindAcquisition EventKind = iota
	KindSale
)

func (k EventKind) String() string {
	if k == KindSale {
		return "sale"
	}
	return "acquisition"
}

// Operation is the acquisition-side operation type as recorded upstream.
type Operation int16

const (
	OpTransferOut Operation = -1
	OpTransferIn  Operation = 0
	OpPurchase    Operation = 1
)

// Inbound reports whether the operation increases stock.
// Purchases and inbound transfers add; outbound transfers subtract.
func (o Operation) Inbound() bool {
	return o == OpPurchase || o == OpTransferIn
}

// Event is one row of the merged per-pharmacy stream.
type Event struct {
	ProductID   int64
	Kind        EventKind
	Operation   Operation
	Date        types.Date
	Quantity    types.Quantity
	Value       types.Money
	DocumentRef *string
}

// SortEvents restores the loader ordering contract:
// (product_id, date, kind) with acquisitions before sales on ties.
// The engine trusts this order and never re-sorts internally.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Kind < b.Kind
	})
}

// checkOrdered verifies the ordering contract, returning the index of the
// first violation, or -1.
func checkOrdered(events []Event) int {
	for i := 1; i < len(events); i++ {
		a, b := events[i-1], events[i]
		if a.ProductID != b.ProductID {
			if a.ProductID > b.ProductID {
				return i
			}
			continue
		}
		if a.Date.After(b.Date) {
			return i
		}
		if a.Date.Equal(b.Date) && a.Kind > b.Kind {
			return i
		}
	}
	return -1
}
