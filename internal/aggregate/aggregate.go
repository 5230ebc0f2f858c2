// Package aggregate derives totals and rollups from a ledger snapshot.
//
// Everything here is recomputed from scratch on each call; there is no cached state.
package aggregate

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Totals are the headline figures of a ledger.
type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// DailyPoint is one calendar day of the balance series.
type DailyPoint struct {
	Day      civil.Date      `json:"day"`
	Net      decimal.Decimal `json:"net"`
	Balance  decimal.Decimal `json:"balance"`
	Baseline bool            `json:"baseline,omitempty"`
}

// CategoryAmount is the expense total of one category.
type CategoryAmount struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Count    int             `json:"count"`
}

// Stats summarizes the expense records of a ledger.
type Stats struct {
	Count   int             `json:"count"`
	Total   decimal.Decimal `json:"total"`
	Average decimal.Decimal `json:"average"`
	Max     decimal.Decimal `json:"max"`
	Min     decimal.Decimal `json:"min"`
}

// SeriesOptions controls DailySeries.
type SeriesOptions struct {
	// Baseline prepends a synthetic point holding the declared income,
	// one day before the earliest record.
	Baseline bool
	// Anchor places the baseline point when there are no records.
	// A zero Anchor means the current time.
	Anchor time.Time
}

// Summary bundles every aggregate of a snapshot.
type Summary struct {
	Totals     Totals           `json:"totals"`
	Daily      []DailyPoint     `json:"daily"`
	Categories []CategoryAmount `json:"categories"`
	Expenses   Stats            `json:"expenses"`
}

// Compute derives the full Summary. A nil loc means time.Local.
func Compute(records []domain.TransactionRecord, user *domain.UserProfile, loc *time.Location, opts SeriesOptions) Summary {
	return Summary{
		Totals:     ComputeTotals(records, user),
		Daily:      DailySeries(records, user, loc, opts),
		Categories: CategoryBreakdown(records),
		Expenses:   ExpenseStats(records),
	}
}

// ComputeTotals sums income and expense; the balance starts from the declared monthly income.
func ComputeTotals(records []domain.TransactionRecord, user *domain.UserProfile) Totals {
	income, expense := decimal.Zero, decimal.Zero
	for _, r := range records {
		switch r.Kind {
		case domain.KindIncome:
			income = income.Add(r.Amount)
		case domain.KindExpense:
			expense = expense.Add(r.Amount)
		}
	}
	return Totals{
		Income:  income,
		Expense: expense,
		Balance: declaredIncome(user).Add(income).Sub(expense),
	}
}

// DailySeries groups records by calendar day in loc, in ascending order.
// Balance is the running balance starting from the declared income.
func DailySeries(records []domain.TransactionRecord, user *domain.UserProfile, loc *time.Location, opts SeriesOptions) []DailyPoint {
	if loc == nil {
		loc = time.Local
	}

	nets := make(map[civil.Date]decimal.Decimal)
	for _, r := range records {
		day := civil.DateOf(r.OccurredAt.In(loc))
		nets[day] = nets[day].Add(r.Signed())
	}

	days := make([]civil.Date, 0, len(nets))
	for day := range nets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	start := declaredIncome(user)
	series := make([]DailyPoint, 0, len(days)+1)

	if opts.Baseline {
		var anchor civil.Date
		if len(days) > 0 {
			anchor = days[0].AddDays(-1)
		} else {
			at := opts.Anchor
			if at.IsZero() {
				at = time.Now()
			}
			anchor = civil.DateOf(at.In(loc))
		}
		series = append(series, DailyPoint{Day: anchor, Net: start, Balance: start, Baseline: true})
	}

	running := start
	for _, day := range days {
		running = running.Add(nets[day])
		series = append(series, DailyPoint{Day: day, Net: nets[day], Balance: running})
	}
	return series
}

// CategoryBreakdown totals expense records per category. Records without a
// category land in domain.Uncategorized. Ordered by amount, largest first.
func CategoryBreakdown(records []domain.TransactionRecord) []CategoryAmount {
	index := make(map[string]int)
	var out []CategoryAmount
	for _, r := range records {
		if r.Kind != domain.KindExpense {
			continue
		}
		label := r.Category.Label()
		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, CategoryAmount{Category: label, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(r.Amount)
		out[i].Count++
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// ExpenseStats reports count, total, average, max and min of the expense records.
func ExpenseStats(records []domain.TransactionRecord) Stats {
	s := Stats{Total: decimal.Zero, Average: decimal.Zero, Max: decimal.Zero, Min: decimal.Zero}
	for _, r := range records {
		if r.Kind != domain.KindExpense {
			continue
		}
		if s.Count == 0 || r.Amount.GreaterThan(s.Max) {
			s.Max = r.Amount
		}
		if s.Count == 0 || r.Amount.LessThan(s.Min) {
			s.Min = r.Amount
		}
		s.Total = s.Total.Add(r.Amount)
		s.Count++
	}
	if s.Count > 0 {
		s.Average = s.Total.DivRound(decimal.NewFromInt(int64(s.Count)), 2)
	}
	return s
}

func declaredIncome(user *domain.UserProfile) decimal.Decimal {
	if user == nil {
		return decimal.Zero
	}
	return user.DeclaredMonthlyIncome
}
