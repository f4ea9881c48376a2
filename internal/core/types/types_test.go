package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantityFixedPoint(t *testing.T) {
	// A third of a 30-unit box.
	q := NewQuantityFromFloat64(10.0 / 30.0)
	assert.Equal(t, Quantity(3333), q)
	assert.InDelta(t, 0.3333, q.Float64(), 0.00005)

	whole := NewQuantityFromInt(7)
	assert.Equal(t, Quantity(70000), whole)
	assert.Equal(t, 7.0, whole.Float64())
}

func TestQuantityArithmetic(t *testing.T) {
	a := NewQuantityFromFloat64(1.5)
	b := NewQuantityFromFloat64(0.25)

	assert.Equal(t, NewQuantityFromFloat64(1.75), a+b)
	assert.Equal(t, NewQuantityFromFloat64(1.25), a-b)
	assert.True(t, (a - a).IsZero())
	assert.True(t, (b - a).IsNegative())
	assert.Equal(t, a-b, (b - a).Abs())
}

func TestQuantityString(t *testing.T) {
	assert.Equal(t, "2", NewQuantityFromInt(2).String())
	assert.Equal(t, "2.5", NewQuantityFromFloat64(2.5).String())
	assert.Equal(t, "0.3333", Quantity(3333).String())
	assert.Equal(t, "-1.25", NewQuantityFromFloat64(-1.25).String())
}

func TestQuantityJSON(t *testing.T) {
	data, err := json.Marshal(NewQuantityFromFloat64(12.5))
	require.NoError(t, err)
	assert.Equal(t, "12.5", string(data))

	var q Quantity
	require.NoError(t, json.Unmarshal([]byte("0.3333"), &q))
	assert.Equal(t, Quantity(3333), q)
}

func TestDateParseAndFormat(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())
	assert.Equal(t, 2024, d.Year())

	_, err = ParseDate("29/02/2024")
	assert.Error(t, err)
}

func TestDateMonthArithmetic(t *testing.T) {
	d := MustDate("2024-03-17")
	assert.Equal(t, "2024-03-01", d.FirstOfMonth().String())
	assert.Equal(t, "2024-03", d.YearMonth())
	assert.Equal(t, "2024-04-01", d.FirstOfMonth().AddMonths(1).String())
	assert.Equal(t, "2025-01-01", MustDate("2024-12-01").AddMonths(1).String())
}

func TestDateOrdering(t *testing.T) {
	a := MustDate("2024-01-10")
	b := MustDate("2024-01-11")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.Equal(MustDate("2024-01-10")))
	assert.True(t, Date{}.IsZero())
}

func TestDateJSONTruncatesDatetime(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-05-03T14:22:00"`), &d))
	assert.Equal(t, "2024-05-03", d.String())

	data, err := json.Marshal(MustDate("2024-05-03"))
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-03"`, string(data))
}
