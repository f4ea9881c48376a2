package run

import (
	"context"

	"github.com/cgu-sc/sentinela/internal/core/types"
	"github.com/cgu-sc/sentinela/internal/domain/reconcile"
)

// BeginParams identifies the pharmacy and window of a new run.
type BeginParams struct {
	CNPJ         string
	CompanyName  string
	Municipality string
	State        string
	PeriodStart  types.Date
	PeriodEnd    types.Date
}

// Repository defines persistence for runs and their produced artifacts.
type Repository interface {
	// Lifecycle

	// Begin inserts a Running row and returns its id.
	Begin(ctx context.Context, p BeginParams) (int64, error)

	// Complete marks a run terminal with the given status, recording how
	// many products and source records the run covered.
	Complete(ctx context.Context, runID int64, status Status, products, records int) error

	// Fail marks a run failed with a truncated error message.
	Fail(ctx context.Context, runID int64, msg string) error

	// SweepStale flips Running rows left by a dead process to Failed and
	// returns how many were flipped. Called once at startup, before any
	// pharmacy is picked up.
	SweepStale(ctx context.Context) (int64, error)

	// Latest returns the most recent run for a pharmacy, if any.
	Latest(ctx context.Context, cnpj string) (*Run, error)

	// Artifacts

	// SaveMonthlyAggregates batch inserts the per-month rows of a run.
	SaveMonthlyAggregates(ctx context.Context, runID int64, cnpj string, rows []reconcile.MonthlyRow) error

	// SaveSnapshot stores the compressed ledger blob of a run.
	SaveSnapshot(ctx context.Context, runID int64, cnpj string, blob []byte) error

	// Queries

	// Get returns one run by id.
	Get(ctx context.Context, runID int64) (*Run, error)

	// List returns runs matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Run, error)

	// LatestSnapshot returns the newest stored ledger blob for a pharmacy.
	LatestSnapshot(ctx context.Context, cnpj string) ([]byte, error)
}

// ListFilter narrows List queries.
type ListFilter struct {
	CNPJ   *string
	Status *Status
	Limit  int
	Offset int
}
