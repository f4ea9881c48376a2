package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgu-sc/sentinela/internal/core/apperror"
	"github.com/cgu-sc/sentinela/internal/core/types"
)

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func saleEvent(product int64, date string, q, value float64) Event {
	return Event{
		ProductID: product,
		Kind:      KindSale,
		Date:      types.MustDate(date),
		Quantity:  qty(q),
		Value:     types.NewMoney(value),
	}
}

func acqEvent(product int64, date string, op Operation, q float64, nfe string) Event {
	ev := Event{
		ProductID: product,
		Kind:      KindAcquisition,
		Operation: op,
		Date:      types.MustDate(date),
		Quantity:  qty(q),
		Value:     types.ZeroMoney(),
	}
	if nfe != "" {
		ev.DocumentRef = &nfe
	}
	return ev
}

func baseInput(events ...Event) Input {
	return Input{
		CNPJ:          "04034484000140",
		Events:        events,
		OpeningStock:  map[int64]types.Quantity{},
		AnalysisStart: types.MustDate("2024-01-01"),
		PeriodStart:   types.MustDate("2024-01-01"),
		PeriodEnd:     types.MustDate("2024-06-30"),
	}
}

func TestReconcileCoveredSale(t *testing.T) {
	in := baseInput(saleEvent(7891234567890, "2024-01-10", 4, 40))
	in.OpeningStock[7891234567890] = qty(10)

	res, err := Reconcile(in)
	require.NoError(t, err)
	require.Len(t, res.Ledger, 4)
	assert.False(t, res.HasShortfall)
	assert.Equal(t, 1, res.Products)

	assert.IsType(t, Header{}, res.Ledger[0])

	opening, ok := res.Ledger[1].(OpeningStock)
	require.True(t, ok)
	assert.Equal(t, qty(10), opening.Quantity)
	require.NotNil(t, opening.Date)
	assert.Equal(t, "2024-01-01", opening.Date.String())

	batch, ok := res.Ledger[2].(SaleBatch)
	require.True(t, ok)
	assert.Equal(t, qty(10), batch.OpeningQty)
	assert.Equal(t, qty(6), batch.ClosingQty)
	assert.Equal(t, qty(4), batch.Sold)
	assert.True(t, batch.Unsubstantiated.IsZero())
	assert.Nil(t, batch.FirstShortfall)
	assert.Equal(t, "2024-01-10", batch.PeriodStart.String())
	assert.Equal(t, "2024-01-10", batch.PeriodEnd.String())

	summary, ok := res.Ledger[3].(PartialSummary)
	require.True(t, ok)
	assert.Equal(t, qty(4), summary.Sold)
	assert.True(t, summary.Unsubstantiated.IsZero())
}

func TestReconcileShortfallClampsStock(t *testing.T) {
	in := baseInput(
		saleEvent(100, "2024-01-10", 4, 40),
		saleEvent(100, "2024-01-15", 20, 200),
	)
	in.OpeningStock[100] = qty(10)

	res, err := Reconcile(in)
	require.NoError(t, err)
	assert.True(t, res.HasShortfall)

	batch, ok := res.Ledger[2].(SaleBatch)
	require.True(t, ok)
	assert.Equal(t, qty(24), batch.Sold)
	assert.Equal(t, qty(14), batch.Unsubstantiated)
	assert.True(t, batch.ClosingQty.IsZero())
	require.NotNil(t, batch.FirstShortfall)
	assert.Equal(t, "2024-01-15", batch.FirstShortfall.String())
	assert.True(t, batch.Value.Equal(types.NewMoney(240)))
	assert.True(t, batch.UnsubstantiatedValue.Equal(types.NewMoney(140)))
}

func TestReconcileAcquisitionSplitsSaleRuns(t *testing.T) {
	in := baseInput(
		saleEvent(200, "2024-01-05", 3, 30),
		acqEvent(200, "2024-01-10", OpPurchase, 50, "NFE-123"),
		saleEvent(200, "2024-01-20", 5, 50),
	)
	in.OpeningStock[200] = qty(8)

	res, err := Reconcile(in)
	require.NoError(t, err)
	require.Len(t, res.Ledger, 6)

	first, ok := res.Ledger[2].(SaleBatch)
	require.True(t, ok)
	assert.Equal(t, qty(3), first.Sold)
	assert.Equal(t, qty(5), first.ClosingQty)

	move, ok := res.Ledger[3].(AcquisitionMove)
	require.True(t, ok)
	assert.Equal(t, qty(5), move.OpeningQty)
	assert.Equal(t, qty(55), move.ClosingQty)
	require.NotNil(t, move.DocumentRef)
	assert.Equal(t, "NFE-123", *move.DocumentRef)

	second, ok := res.Ledger[4].(SaleBatch)
	require.True(t, ok)
	assert.Equal(t, qty(55), second.OpeningQty)
	assert.Equal(t, qty(50), second.ClosingQty)
	assert.Equal(t, qty(5), second.Sold)

	summary, ok := res.Ledger[5].(PartialSummary)
	require.True(t, ok)
	assert.Equal(t, qty(8), summary.Sold)
	assert.Equal(t, qty(50), summary.NetAcquired)
}

func TestReconcileTransferOutReducesStock(t *testing.T) {
	in := baseInput(
		acqEvent(300, "2024-01-02", OpPurchase, 30, "NFE-1"),
		acqEvent(300, "2024-01-08", OpTransferOut, 10, "TR-9"),
		saleEvent(300, "2024-01-12", 25, 125),
	)

	res, err := Reconcile(in)
	require.NoError(t, err)
	assert.True(t, res.HasShortfall)

	transfer, ok := res.Ledger[3].(TransferMove)
	require.True(t, ok)
	assert.Equal(t, qty(30), transfer.OpeningQty)
	assert.Equal(t, qty(20), transfer.ClosingQty)

	batch, ok := res.Ledger[4].(SaleBatch)
	require.True(t, ok)
	assert.Equal(t, qty(5), batch.Unsubstantiated)

	summary, ok := res.Ledger[5].(PartialSummary)
	require.True(t, ok)
	assert.Equal(t, qty(20), summary.NetAcquired)
}

func TestReconcileTransferInAddsStock(t *testing.T) {
	in := baseInput(
		acqEvent(310, "2024-01-02", OpTransferIn, 12, ""),
		saleEvent(310, "2024-01-05", 12, 96),
	)

	res, err := Reconcile(in)
	require.NoError(t, err)
	assert.False(t, res.HasShortfall)

	move, ok := res.Ledger[2].(AcquisitionMove)
	require.True(t, ok)
	assert.Equal(t, qty(12), move.ClosingQty)
}

func TestReconcileSeparateSectionsPerProduct(t *testing.T) {
	in := baseInput(
		saleEvent(100, "2024-01-10", 2, 10),
		saleEvent(200, "2024-01-11", 3, 15),
	)
	in.OpeningStock[100] = qty(5)

	res, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Products)
	require.Len(t, res.Ledger, 8)

	kinds := make([]MovementKind, 0, len(res.Ledger))
	for _, mov := range res.Ledger {
		kinds = append(kinds, mov.MovementKind())
	}
	assert.Equal(t, []MovementKind{
		KindHeader, KindOpeningStock, KindSaleBatch, KindPartialSummary,
		KindHeader, KindOpeningStock, KindSaleBatch, KindPartialSummary,
	}, kinds)

	// Product 200 has no opening estimate: undated zero record, full shortfall.
	opening, ok := res.Ledger[5].(OpeningStock)
	require.True(t, ok)
	assert.True(t, opening.Quantity.IsZero())
	assert.Nil(t, opening.Date)

	batch, ok := res.Ledger[6].(SaleBatch)
	require.True(t, ok)
	assert.Equal(t, qty(3), batch.Unsubstantiated)
}

func TestReconcileFractionalQuantities(t *testing.T) {
	// 10 authorized units over a 30-unit package: a third of a box.
	in := baseInput(
		saleEvent(400, "2024-01-10", 1.0/3.0, 25),
		saleEvent(400, "2024-02-04", 0.5, 37.5),
	)
	in.OpeningStock[400] = qty(0.5)

	res, err := Reconcile(in)
	require.NoError(t, err)
	assert.True(t, res.HasShortfall)

	batch, ok := res.Ledger[2].(SaleBatch)
	require.True(t, ok)
	assert.InDelta(t, 0.8333, batch.Sold.Float64(), 0.0001)
	assert.InDelta(t, 0.3333, batch.Unsubstantiated.Float64(), 0.0001)
}

func TestReconcileZeroQuantitySaleValuesAtZero(t *testing.T) {
	// The loader discards zero-quantity rows; if one slips through anyway
	// the engine must not divide by it or file a shortfall.
	in := baseInput(saleEvent(500, "2024-01-10", 0, 99))

	res, err := Reconcile(in)
	require.NoError(t, err)

	batch, ok := res.Ledger[2].(SaleBatch)
	require.True(t, ok)
	assert.True(t, batch.Sold.IsZero())
	assert.True(t, batch.Unsubstantiated.IsZero())
	assert.True(t, batch.Value.Equal(types.NewMoney(99)))
	assert.True(t, batch.UnsubstantiatedValue.IsZero())
}

func TestReconcileZeroBarcodeProductIsFinalized(t *testing.T) {
	// A barcode of 0 is a degenerate but possible upstream value; it must
	// get a complete section like any other product.
	in := baseInput(saleEvent(0, "2024-01-10", 2, 20))
	in.OpeningStock[0] = qty(5)

	res, err := Reconcile(in)
	require.NoError(t, err)
	require.Len(t, res.Ledger, 4)
	assert.Equal(t, 1, res.Products)

	summary, ok := res.Ledger[3].(PartialSummary)
	require.True(t, ok)
	assert.Equal(t, qty(2), summary.Sold)
}

func TestReconcileSkipsUndatedEvents(t *testing.T) {
	undated := Event{ProductID: 600, Kind: KindSale, Quantity: qty(3), Value: types.NewMoney(30)}
	in := baseInput(undated, saleEvent(600, "2024-01-10", 2, 20))
	in.OpeningStock[600] = qty(10)

	res, err := Reconcile(in)
	require.NoError(t, err)

	batch, ok := res.Ledger[2].(SaleBatch)
	require.True(t, ok)
	assert.Equal(t, qty(2), batch.Sold)
}

func TestReconcileRejectsUnorderedEvents(t *testing.T) {
	in := baseInput(
		saleEvent(700, "2024-02-10", 1, 5),
		saleEvent(700, "2024-01-10", 1, 5),
	)

	_, err := Reconcile(in)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeEventOrdering, appErr.Code)
}

func TestReconcileDeficitConservation(t *testing.T) {
	// Total sold must always equal substantiated plus unsubstantiated:
	// opening + inbound - outbound - (sold - unsub) == closing for each product.
	in := baseInput(
		acqEvent(800, "2024-01-02", OpPurchase, 10, "NFE-7"),
		saleEvent(800, "2024-01-05", 6, 60),
		acqEvent(800, "2024-01-09", OpTransferOut, 2, ""),
		saleEvent(800, "2024-01-15", 9, 90),
	)
	in.OpeningStock[800] = qty(3)

	res, err := Reconcile(in)
	require.NoError(t, err)

	var summary PartialSummary
	var closing types.Quantity
	for _, mov := range res.Ledger {
		switch m := mov.(type) {
		case PartialSummary:
			summary = m
		case SaleBatch:
			closing = m.ClosingQty
		}
	}

	substantiated := summary.Sold - summary.Unsubstantiated
	expected := qty(3) + summary.NetAcquired - substantiated
	assert.Equal(t, expected, closing)
}

func TestSortEventsOrdersAcquisitionsFirstOnTies(t *testing.T) {
	events := []Event{
		saleEvent(2, "2024-01-10", 1, 5),
		saleEvent(1, "2024-01-10", 1, 5),
		acqEvent(1, "2024-01-10", OpPurchase, 10, ""),
	}
	SortEvents(events)

	assert.Equal(t, int64(1), events[0].ProductID)
	assert.Equal(t, KindAcquisition, events[0].Kind)
	assert.Equal(t, KindSale, events[1].Kind)
	assert.Equal(t, int64(2), events[2].ProductID)
	assert.Equal(t, -1, checkOrdered(events))
}
