package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod(t *testing.T) {
	p, err := ParsePeriod("2024-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, p.Year)
	assert.Equal(t, time.January, p.Month)
	assert.Equal(t, "2023-12", p.Prev().String())
	assert.True(t, p.Prev().Before(p))
	assert.False(t, p.Before(p))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), p.Start())

	_, err = ParsePeriod("2024/01")
	assert.Error(t, err)
}

func TestPercentageChange(t *testing.T) {
	assert.True(t, d("0.25").Equal(PercentageChange(d("25000"), d("20000"))))
	assert.True(t, d("-0.5").Equal(PercentageChange(d("50"), d("100"))))
	// 上期为 0 时不论本期多少都为 0
	assert.True(t, PercentageChange(d("25000"), d("0")).IsZero())
}

func TestCategorySummary_Add(t *testing.T) {
	s := NewCategorySummary("id", 3, Period{Year: 2024, Month: time.May})
	assert.Equal(t, "2024-05", s.Period)

	s.Add(SummaryDelta{Allocated: d("1200"), Obligated: d("1000"), Count: 1})
	s.Add(SummaryDelta{Amount: d("400")})

	assert.True(t, d("400").Equal(s.Amount))
	assert.True(t, d("1200").Equal(s.Allocated))
	assert.True(t, d("800").Equal(s.Remaining))
	assert.Equal(t, int64(1), s.Count)

	s.Add(SummaryDelta{Allocated: d("1200"), Obligated: d("1000"), Count: 1}.Neg())
	assert.True(t, d("-400").Equal(s.Remaining))
	assert.Equal(t, int64(0), s.Count)
}

func TestCategorySummary_SameTotals(t *testing.T) {
	p := Period{Year: 2024, Month: time.May}
	a := NewCategorySummary("a", 1, p)
	b := NewCategorySummary("b", 1, p)
	a.Add(SummaryDelta{Amount: d("10"), Count: 1})
	b.Add(SummaryDelta{Amount: d("10.00"), Count: 1})
	assert.True(t, a.SameTotals(b))

	pc := d("0.25")
	a.PercentageChange = &pc
	assert.False(t, a.SameTotals(b))
	b.PercentageChange = &pc
	assert.True(t, a.SameTotals(b))

	b.Add(SummaryDelta{Allocated: d("1")})
	assert.False(t, a.SameTotals(b))
}

func TestSummaryDelta(t *testing.T) {
	x := SummaryDelta{Amount: d("1"), Allocated: d("2"), Obligated: d("3"), Count: 1}
	assert.True(t, x.Plus(x.Neg()).IsZero())
	assert.False(t, x.IsZero())
}
