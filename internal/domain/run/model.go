// Package run tracks the lifecycle of per-pharmacy processing runs.
// Each run is one attempt at reconciling one pharmacy; its terminal status
// carries the legacy numeric codes consumed by the downstream reporting
// tooling.
package run

import (
	"time"

	"github.com/cgu-sc/sentinela/internal/core/types"
)

// Status is the legacy numeric run status.
type Status int16

const (
	StatusSuccess       Status = 1 // finished, irregularities found
	StatusRunning       Status = 2
	StatusFailed        Status = 3
	StatusNoData        Status = 4 // pharmacy has no sales history at all
	StatusNoSales       Status = 5 // no movement rows inside the analysis window
	StatusNoIssuesFound Status = 6 // finished, every sale substantiated
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	case StatusNoData:
		return "no_data"
	case StatusNoSales:
		return "no_sales"
	case StatusNoIssuesFound:
		return "no_issues_found"
	}
	return "unknown"
}

// Terminal reports whether the status is final. A Running row left behind
// by a crashed process is the only non-terminal state.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Conclusive reports whether the run settled the pharmacy, so the next
// batch cycle skips it.
func (s Status) Conclusive() bool {
	return s == StatusSuccess || s == StatusNoIssuesFound
}

// Run is one processing attempt for one pharmacy. Company identification
// is denormalized onto the row so run listings need no joins.
type Run struct {
	ID           int64       `db:"id" json:"id"`
	CNPJ         string      `db:"cnpj" json:"cnpj"`
	CompanyName  string      `db:"razao_social" json:"companyName"`
	Municipality string      `db:"municipio" json:"municipality"`
	State        string      `db:"uf" json:"state"`
	Status       Status      `db:"status" json:"status"`
	StartedAt    time.Time   `db:"started_at" json:"startedAt"`
	FinishedAt   *time.Time  `db:"finished_at" json:"finishedAt,omitempty"`
	PeriodStart  *types.Date `db:"period_start" json:"periodStart,omitempty"`
	PeriodEnd    *types.Date `db:"period_end" json:"periodEnd,omitempty"`
	Products     int         `db:"products" json:"products"`
	Records      int         `db:"records" json:"records"`
	Error        *string     `db:"error" json:"error,omitempty"`
}

// maxErrorLen bounds the persisted error text; the column is varchar(500)
// and the trace id prefix needs room.
const maxErrorLen = 450

// TruncateError trims an error message to the persistable length.
func TruncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen]
}
