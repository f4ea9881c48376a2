package reconcile

import (
	"fmt"

	"github.com/cgu-sc/sentinela/internal/core/apperror"
	"github.com/cgu-sc/sentinela/internal/core/types"
)

// Input is everything the engine needs for one pharmacy.
//
// Events must already satisfy the loader ordering contract; the engine
// validates it and refuses out-of-order streams rather than silently
// producing wrong stock sequencing.
type Input struct {
	CNPJ         string
	Events       []Event
	OpeningStock map[int64]types.Quantity

	// AnalysisStart is the global program floor and dates OpeningStock
	// ledger records for every pharmacy, regardless of when its own
	// history starts.
	AnalysisStart types.Date
	// PeriodStart/PeriodEnd bound the monthly aggregation horizon.
	// PeriodStart is the pharmacy's effective start snapped to the 1st.
	PeriodStart types.Date
	PeriodEnd   types.Date
}

// Result is the outcome of reconciling one pharmacy.
type Result struct {
	// Ledger is the flat movement list across all products, each product's
	// section framed by its Header and PartialSummary, in product order.
	Ledger []Movement
	// Monthly holds the per-product calendar-month aggregates.
	Monthly *MonthlyLedger
	// HasShortfall is true when any product had at least one sale without
	// stock backing. The orchestrator picks the terminal status from it.
	HasShortfall bool
	// Products is the number of distinct products processed.
	Products int
}

type priorOp int8

const (
	priorNone priorOp = iota
	priorSale
	priorAcquisition
)

// productState is the running state while scanning one product's events.
type productState struct {
	stockOpening types.Quantity
	stockCurrent types.Quantity
	prior        priorOp

	sold       types.Quantity
	unsub      types.Quantity
	value      types.Money
	unsubValue types.Money

	periodStart    *types.Date
	periodEnd      *types.Date
	firstShortfall *types.Date
}

// resetRun clears the in-flight sale run, keeping stock state.
func (st *productState) resetRun() {
	st.sold = 0
	st.unsub = 0
	st.value = types.ZeroMoney()
	st.unsubValue = types.ZeroMoney()
	st.periodStart = nil
	st.periodEnd = nil
	st.firstShortfall = nil
}

// Reconcile runs the stock reconciliation for one pharmacy.
func Reconcile(in Input) (*Result, error) {
	if i := checkOrdered(in.Events); i >= 0 {
		return nil, apperror.NewEventOrdering(in.CNPJ,
			fmt.Sprintf("event %d breaks the (product, date, kind) contract", i))
	}

	res := &Result{Monthly: NewMonthlyLedger(in.PeriodStart, in.PeriodEnd)}

	var (
		current int64
		started bool
		section []Movement
		st      productState
	)

	finalizeProduct := func() {
		if !started {
			return
		}
		if st.prior == priorSale {
			flushPending(&st, &section, current)
		}
		summary := summarize(current, section)
		if summary.Unsubstantiated.IsPositive() {
			res.HasShortfall = true
		}
		res.Ledger = append(res.Ledger, Header{ProductID: current})
		res.Ledger = append(res.Ledger, section...)
		res.Ledger = append(res.Ledger, summary)
		res.Products++
	}

	for _, ev := range in.Events {
		if !started || ev.ProductID != current {
			finalizeProduct()

			started = true
			current = ev.ProductID
			section = nil
			st = productState{value: types.ZeroMoney(), unsubValue: types.ZeroMoney()}
			res.Monthly.InitProduct(current)

			if qty, ok := in.OpeningStock[current]; ok {
				st.stockOpening = qty
				st.stockCurrent = qty
				anchor := in.AnalysisStart
				section = append(section, OpeningStock{ProductID: current, Quantity: qty, Date: &anchor})
			} else {
				section = append(section, OpeningStock{ProductID: current})
			}
		}

		// Defensive per-field guard: a row with no usable date cannot be
		// sequenced or bucketed, so it is skipped rather than trusted.
		if ev.Date.IsZero() {
			continue
		}

		switch ev.Kind {
		case KindSale:
			applySale(&st, res, ev)
		case KindAcquisition:
			applyAcquisition(&st, &section, ev)
		}
	}
	finalizeProduct()

	return res, nil
}

// applySale processes one sale event against the running state.
func applySale(st *productState, res *Result, ev Event) {
	res.Monthly.AddSale(ev.ProductID, ev.Date, ev.Quantity, ev.Value)

	// Guarded division: a zero-quantity row values at zero instead of
	// aborting the pharmacy.
	unitValue := types.ZeroMoney()
	if !ev.Quantity.IsZero() {
		unitValue = ev.Value.Div(ev.Quantity.Decimal())
	}

	tentative := st.stockCurrent - ev.Quantity
	if tentative.IsNegative() {
		if st.firstShortfall == nil {
			d := ev.Date
			st.firstShortfall = &d
		}
		short := tentative.Abs()
		shortValue := short.Decimal().Mul(unitValue)
		st.unsub += short
		st.unsubValue = st.unsubValue.Add(shortValue)
		res.Monthly.AddShortfall(ev.ProductID, ev.Date, short, shortValue)
	}

	if st.periodStart == nil {
		d := ev.Date
		st.periodStart = &d
	}
	d := ev.Date
	st.periodEnd = &d

	st.sold += ev.Quantity
	st.value = st.value.Add(ev.Value)

	// Clamp at zero: the deficit is tracked separately, the persisted
	// stock is never negative.
	if tentative.IsNegative() {
		st.stockCurrent = 0
	} else {
		st.stockCurrent = tentative
	}
	st.prior = priorSale
}

// applyAcquisition processes one acquisition/transfer event. A pending sale
// run is closed first, so sale batches never span a documented movement.
func applyAcquisition(st *productState, section *[]Movement, ev Event) {
	if st.prior == priorSale {
		flushPending(st, section, ev.ProductID)
	}

	delta := ev.Quantity
	if !ev.Operation.Inbound() {
		delta = delta.Neg()
	}
	closing := st.stockCurrent + delta

	// Asymmetric guard: the movement is only recorded while stock state is
	// non-negative; stock itself always advances.
	if !st.stockCurrent.IsNegative() {
		if ev.Operation.Inbound() {
			*section = append(*section, AcquisitionMove{
				ProductID:   ev.ProductID,
				Date:        ev.Date,
				Quantity:    ev.Quantity,
				DocumentRef: ev.DocumentRef,
				OpeningQty:  st.stockCurrent,
				ClosingQty:  closing,
			})
		} else {
			*section = append(*section, TransferMove{
				ProductID:   ev.ProductID,
				Date:        ev.Date,
				Quantity:    ev.Quantity,
				DocumentRef: ev.DocumentRef,
				OpeningQty:  st.stockCurrent,
				ClosingQty:  closing,
			})
		}
	}

	st.stockOpening = closing
	st.stockCurrent = closing
	st.prior = priorAcquisition
}

// flushPending closes the in-flight sale run into the section and resets it.
func flushPending(st *productState, section *[]Movement, productID int64) {
	batch := SaleBatch{
		ProductID:            productID,
		OpeningQty:           st.stockOpening,
		ClosingQty:           st.stockCurrent,
		Sold:                 st.sold,
		Unsubstantiated:      st.unsub,
		Value:                st.value,
		UnsubstantiatedValue: st.unsubValue,
		FirstShortfall:       st.firstShortfall,
	}
	if st.periodStart != nil {
		batch.PeriodStart = *st.periodStart
	}
	if st.periodEnd != nil {
		batch.PeriodEnd = *st.periodEnd
	}
	*section = append(*section, batch)
	st.resetRun()
}

// summarize folds a product's section into its terminal PartialSummary.
func summarize(productID int64, section []Movement) PartialSummary {
	sum := PartialSummary{
		ProductID:            productID,
		Value:                types.ZeroMoney(),
		UnsubstantiatedValue: types.ZeroMoney(),
	}
	for _, mov := range section {
		switch m := mov.(type) {
		case AcquisitionMove:
			sum.NetAcquired += m.Quantity
		case TransferMove:
			sum.NetAcquired -= m.Quantity
		case SaleBatch:
			sum.Sold += m.Sold
			sum.Unsubstantiated += m.Unsubstantiated
			sum.Value = sum.Value.Add(m.Value)
			sum.UnsubstantiatedValue = sum.UnsubstantiatedValue.Add(m.UnsubstantiatedValue)
		}
	}
	return sum
}
