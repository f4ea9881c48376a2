// Package batch drives the reconciliation cycle: it walks the pharmacy
// portfolio group by group and runs each pending pharmacy through the
// engine, recording the outcome as a run.
package batch

import (
	"context"

	"github.com/cgu-sc/sentinela/internal/core/types"
	"github.com/cgu-sc/sentinela/internal/domain/reconcile"
)

// PharmacyInfo carries the registry data recorded on each run row.
type PharmacyInfo struct {
	CompanyName  string
	Municipality string
	State        string
}

// PortfolioRepository lists the pharmacies under analysis and prepares the
// staging data each group needs before its pharmacies are processed.
type PortfolioRepository interface {
	// Groups returns the portfolio group names in processing order.
	Groups(ctx context.Context) ([]string, error)

	// Pharmacies returns the CNPJs of one group.
	Pharmacies(ctx context.Context, group string) ([]string, error)

	// PrepareGroup refreshes the group's staging tables. Runs once per
	// group, before its first pharmacy.
	PrepareGroup(ctx context.Context, group string) error

	// PharmacyInfo returns the pharmacy's registry record. Unknown CNPJs
	// yield a zero-valued record, not an error.
	PharmacyInfo(ctx context.Context, cnpj string) (PharmacyInfo, error)

	// FirstSaleDate returns the pharmacy's earliest dispensation date, or
	// nil when the pharmacy has no sales history at all.
	FirstSaleDate(ctx context.Context, cnpj string) (*types.Date, error)
}

// EventRepository loads the merged movement stream for one pharmacy.
type EventRepository interface {
	// LoadEvents returns the pharmacy's acquisition and sale events inside
	// [from, to], sorted by (product, date, kind).
	LoadEvents(ctx context.Context, cnpj string, from, to types.Date) ([]reconcile.Event, error)

	// OpeningStockEstimates returns per-product opening stock estimates
	// for products that have one.
	OpeningStockEstimates(ctx context.Context, cnpj string) (map[int64]types.Quantity, error)
}
