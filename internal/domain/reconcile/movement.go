package reconcile

import (
	"github.com/cgu-sc/sentinela/internal/core/types"
)

// MovementKind tags the ledger record variants. The single-letter values are
// the persisted discriminators and must not change: downstream report
// regeneration dispatches on them.
type MovementKind string

const (
	KindHeader         MovementKind = "h"
	KindOpeningStock   MovementKind = "e"
	KindAcquisitionMov MovementKind = "c"
	KindTransferMov    MovementKind = "d"
	KindSaleBatch      MovementKind = "v"
	KindPartialSummary MovementKind = "s"
)

// Movement is one record of a product's calculation ledger.
//
// Per product the ledger is: one Header, then OpeningStock, acquisition and
// transfer moves and sale batches in event order, then one PartialSummary.
type Movement interface {
	MovementKind() MovementKind
	Product() int64
}

// Header marks the start of one product's ledger section.
type Header struct {
	ProductID int64
}

func (Header) MovementKind() MovementKind { return KindHeader }
func (h Header) Product() int64           { return h.ProductID }

// OpeningStock records the estimated inventory at the analysis start.
// Date is nil when no estimate existed and the product opened at zero.
type OpeningStock struct {
	ProductID int64
	Quantity  types.Quantity
	Date      *types.Date
}

func (OpeningStock) MovementKind() MovementKind { return KindOpeningStock }
func (o OpeningStock) Product() int64           { return o.ProductID }

// AcquisitionMove is a documented inbound movement (purchase or inbound
// transfer): stock increases from OpeningQty to ClosingQty.
type AcquisitionMove struct {
	ProductID   int64
	Date        types.Date
	Quantity    types.Quantity
	DocumentRef *string
	OpeningQty  types.Quantity
	ClosingQty  types.Quantity
}

func (AcquisitionMove) MovementKind() MovementKind { return KindAcquisitionMov }
func (a AcquisitionMove) Product() int64           { return a.ProductID }

// TransferMove is a documented outbound movement: stock decreases.
type TransferMove struct {
	ProductID   int64
	Date        types.Date
	Quantity    types.Quantity
	DocumentRef *string
	OpeningQty  types.Quantity
	ClosingQty  types.Quantity
}

func (TransferMove) MovementKind() MovementKind { return KindTransferMov }
func (t TransferMove) Product() int64           { return t.ProductID }

// SaleBatch aggregates a maximal contiguous run of sale events, closed by
// the next acquisition/transfer or by the end of the product's stream.
//
// ClosingQty is clamped at zero; the shortfall that would have driven it
// negative is carried in Unsubstantiated/UnsubstantiatedValue instead.
// FirstShortfall is nil while the run has no irregularity.
type SaleBatch struct {
	ProductID            int64
	PeriodStart          types.Date
	PeriodEnd            types.Date
	OpeningQty           types.Quantity
	ClosingQty           types.Quantity
	Sold                 types.Quantity
	Unsubstantiated      types.Quantity
	Value                types.Money
	UnsubstantiatedValue types.Money
	FirstShortfall       *types.Date
}

func (SaleBatch) MovementKind() MovementKind { return KindSaleBatch }
func (s SaleBatch) Product() int64           { return s.ProductID }

// HasShortfall reports whether any sale in the batch lacked stock backing.
func (s SaleBatch) HasShortfall() bool { return s.Unsubstantiated.IsPositive() }

// PartialSummary is the terminal per-product aggregate.
// NetAcquired is inbound minus outbound documented quantity.
type PartialSummary struct {
	ProductID            int64
	Sold                 types.Quantity
	Unsubstantiated      types.Quantity
	Value                types.Money
	UnsubstantiatedValue types.Money
	NetAcquired          types.Quantity
}

func (PartialSummary) MovementKind() MovementKind { return KindPartialSummary }
func (p PartialSummary) Product() int64           { return p.ProductID }
