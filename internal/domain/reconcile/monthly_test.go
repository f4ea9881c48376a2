package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgu-sc/sentinela/internal/core/types"
)

func TestMonthlyLedgerBucketsByCalendarMonth(t *testing.T) {
	ml := NewMonthlyLedger(types.MustDate("2024-01-15"), types.MustDate("2024-03-31"))
	ml.InitProduct(100)

	ml.AddSale(100, types.MustDate("2024-01-20"), qty(3), types.NewMoney(30))
	ml.AddSale(100, types.MustDate("2024-01-28"), qty(2), types.NewMoney(20))
	ml.AddSale(100, types.MustDate("2024-03-02"), qty(1), types.NewMoney(10))
	ml.AddShortfall(100, types.MustDate("2024-03-02"), qty(1), types.NewMoney(10))

	jan, ok := ml.Totals(100, "2024-01")
	require.True(t, ok)
	assert.Equal(t, qty(5), jan.QtySold)
	assert.True(t, jan.ValueSold.Equal(types.NewMoney(50)))
	assert.True(t, jan.QtyUnsub.IsZero())

	feb, ok := ml.Totals(100, "2024-02")
	require.True(t, ok)
	assert.True(t, feb.QtySold.IsZero())

	mar, ok := ml.Totals(100, "2024-03")
	require.True(t, ok)
	assert.Equal(t, qty(1), mar.QtyUnsub)
	assert.True(t, mar.ValueUnsub.Equal(types.NewMoney(10)))
}

func TestMonthlyLedgerIgnoresOutOfHorizonDates(t *testing.T) {
	ml := NewMonthlyLedger(types.MustDate("2024-01-01"), types.MustDate("2024-02-29"))
	ml.InitProduct(100)

	ml.AddSale(100, types.MustDate("2023-12-31"), qty(9), types.NewMoney(90))
	ml.AddSale(100, types.MustDate("2024-03-01"), qty(9), types.NewMoney(90))

	for _, key := range []string{"2024-01", "2024-02"} {
		totals, ok := ml.Totals(100, key)
		require.True(t, ok)
		assert.True(t, totals.QtySold.IsZero(), key)
	}
	_, ok := ml.Totals(100, "2024-03")
	assert.False(t, ok)
}

func TestMonthlyLedgerRowsSkipZeroMonths(t *testing.T) {
	ml := NewMonthlyLedger(types.MustDate("2024-01-01"), types.MustDate("2024-04-30"))
	ml.InitProduct(200)
	ml.InitProduct(100)

	ml.AddSale(200, types.MustDate("2024-02-10"), qty(4), types.NewMoney(40))
	ml.AddSale(100, types.MustDate("2024-04-05"), qty(1), types.NewMoney(10))
	ml.AddSale(100, types.MustDate("2024-01-05"), qty(2), types.NewMoney(20))

	rows := ml.Rows()
	require.Len(t, rows, 3)

	assert.Equal(t, int64(100), rows[0].ProductID)
	assert.Equal(t, "2024-01-01", rows[0].Period.String())
	assert.Equal(t, int64(100), rows[1].ProductID)
	assert.Equal(t, "2024-04-01", rows[1].Period.String())
	assert.Equal(t, int64(200), rows[2].ProductID)
	assert.Equal(t, "2024-02-01", rows[2].Period.String())
	assert.Equal(t, qty(4), rows[2].QtySold)
}
