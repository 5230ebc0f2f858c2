package aggregate

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func record(id string, kind domain.Kind, amount string, category domain.Category, at time.Time) domain.TransactionRecord {
	return domain.TransactionRecord{ID: id, Kind: kind, Amount: dec(amount), Category: category, OccurredAt: at}
}

func TestComputeTotals(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.TransactionRecord{
		record("1", domain.KindIncome, "100", "", at),
		record("2", domain.KindExpense, "40", domain.CategoryFood, at),
	}

	tests := []struct {
		name        string
		user        *domain.UserProfile
		wantBalance string
	}{
		{"no user", nil, "60"},
		{"zero declared income", &domain.UserProfile{DeclaredMonthlyIncome: decimal.Zero}, "60"},
		{"declared income", &domain.UserProfile{DeclaredMonthlyIncome: dec("2500")}, "2560"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTotals(records, tt.user)
			assert.True(t, got.Income.Equal(dec("100")), "income = %s", got.Income)
			assert.True(t, got.Expense.Equal(dec("40")), "expense = %s", got.Expense)
			assert.True(t, got.Balance.Equal(dec(tt.wantBalance)), "balance = %s", got.Balance)
		})
	}
}

func TestComputeTotals_Empty(t *testing.T) {
	got := ComputeTotals(nil, nil)
	assert.True(t, got.Income.IsZero())
	assert.True(t, got.Expense.IsZero())
	assert.True(t, got.Balance.IsZero())
}

func TestCategoryBreakdown(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.TransactionRecord{
		record("1", domain.KindExpense, "10", domain.CategoryFood, at),
		record("2", domain.KindExpense, "15", domain.CategoryFood, at),
		record("3", domain.KindExpense, "5", "", at),
		record("4", domain.KindIncome, "1000", domain.CategoryOther, at),
	}

	got := CategoryBreakdown(records)

	require.Len(t, got, 2)
	assert.Equal(t, "Food", got[0].Category)
	assert.True(t, got[0].Amount.Equal(dec("25")))
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, domain.Uncategorized, got[1].Category)
	assert.True(t, got[1].Amount.Equal(dec("5")))
}

func TestCategoryBreakdown_TiesOrderedByName(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.TransactionRecord{
		record("1", domain.KindExpense, "10", domain.CategoryTransport, at),
		record("2", domain.KindExpense, "10", domain.CategoryHealth, at),
	}

	got := CategoryBreakdown(records)

	require.Len(t, got, 2)
	assert.Equal(t, "Health", got[0].Category)
	assert.Equal(t, "Transport", got[1].Category)
}

func TestDailySeries(t *testing.T) {
	records := []domain.TransactionRecord{
		record("3", domain.KindExpense, "30", "", time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)),
		record("1", domain.KindIncome, "100", "", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		record("2", domain.KindExpense, "20", "", time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)),
	}
	user := &domain.UserProfile{DeclaredMonthlyIncome: dec("500")}

	got := DailySeries(records, user, time.UTC, SeriesOptions{Baseline: true})

	require.Len(t, got, 3)

	assert.True(t, got[0].Baseline)
	assert.Equal(t, civil.Date{Year: 2023, Month: 12, Day: 31}, got[0].Day)
	assert.True(t, got[0].Balance.Equal(dec("500")))

	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 1}, got[1].Day)
	assert.True(t, got[1].Net.Equal(dec("80")))
	assert.True(t, got[1].Balance.Equal(dec("580")))

	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 3}, got[2].Day)
	assert.True(t, got[2].Net.Equal(dec("-30")))
	assert.True(t, got[2].Balance.Equal(dec("550")))
}

func TestDailySeries_UsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 20:00 UTC on Jan 1 is already Jan 2 in Tokyo.
	records := []domain.TransactionRecord{
		record("1", domain.KindExpense, "10", "", time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)),
	}

	utc := DailySeries(records, nil, time.UTC, SeriesOptions{})
	jst := DailySeries(records, nil, tokyo, SeriesOptions{})

	require.Len(t, utc, 1)
	require.Len(t, jst, 1)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 1}, utc[0].Day)
	assert.Equal(t, civil.Date{Year: 2024, Month: 1, Day: 2}, jst[0].Day)
}

func TestDailySeries_EmptyWithBaseline(t *testing.T) {
	anchor := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &domain.UserProfile{DeclaredMonthlyIncome: dec("1200")}

	got := DailySeries(nil, user, time.UTC, SeriesOptions{Baseline: true, Anchor: anchor})

	require.Len(t, got, 1)
	assert.True(t, got[0].Baseline)
	assert.Equal(t, civil.Date{Year: 2024, Month: 6, Day: 1}, got[0].Day)
	assert.True(t, got[0].Balance.Equal(dec("1200")))
}

func TestDailySeries_EmptyWithBaselineDefaultsToToday(t *testing.T) {
	before := civil.DateOf(time.Now().UTC())
	got := DailySeries(nil, nil, time.UTC, SeriesOptions{Baseline: true})
	after := civil.DateOf(time.Now().UTC())

	require.Len(t, got, 1)
	assert.True(t, got[0].Baseline)
	assert.False(t, got[0].Day.Before(before), "baseline day %s before %s", got[0].Day, before)
	assert.False(t, got[0].Day.After(after), "baseline day %s after %s", got[0].Day, after)
}

func TestDailySeries_EmptyWithoutBaseline(t *testing.T) {
	assert.Empty(t, DailySeries(nil, nil, time.UTC, SeriesOptions{}))
}

func TestExpenseStats(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.TransactionRecord{
		record("1", domain.KindExpense, "10", "", at),
		record("2", domain.KindExpense, "25", "", at),
		record("3", domain.KindExpense, "5", "", at),
		record("4", domain.KindIncome, "999", "", at),
	}

	got := ExpenseStats(records)

	assert.Equal(t, 3, got.Count)
	assert.True(t, got.Total.Equal(dec("40")))
	assert.True(t, got.Average.Equal(dec("13.33")), "average = %s", got.Average)
	assert.True(t, got.Max.Equal(dec("25")))
	assert.True(t, got.Min.Equal(dec("5")))
}

func TestCompute_Deterministic(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.TransactionRecord{
		record("1", domain.KindExpense, "10", domain.CategoryFood, at),
		record("2", domain.KindExpense, "10", domain.CategoryHealth, at.AddDate(0, 0, 1)),
		record("3", domain.KindIncome, "50", "", at.AddDate(0, 0, 2)),
	}
	opts := SeriesOptions{Baseline: true}

	first := Compute(records, nil, time.UTC, opts)
	second := Compute(records, nil, time.UTC, opts)

	assert.Equal(t, first, second)
}
