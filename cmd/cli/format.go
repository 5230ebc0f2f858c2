package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/aggregate"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// draftInput is the raw flag input of add and update.
type draftInput struct {
	title       string
	description string
	category    string
	amount      string
	kind        string
	date        string
}

// toDraft converts flag input into a Draft. Dates are YYYY-MM-DD in loc or RFC 3339.
func (in draftInput) toDraft(loc *time.Location) (domain.Draft, error) {
	d := domain.Draft{
		Title:       strings.TrimSpace(in.title),
		Description: strings.TrimSpace(in.description),
	}

	if in.amount == "" {
		return d, &domain.ValidationError{Field: "amount", Reason: "is required"}
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(in.amount))
	if err != nil {
		return d, &domain.ValidationError{Field: "amount", Reason: fmt.Sprintf("not numeric: %q", in.amount)}
	}
	d.Amount = amount

	if in.kind != "" {
		kind, ok := domain.ParseKind(in.kind)
		if !ok {
			return d, &domain.ValidationError{Field: "kind", Reason: "must be income or expense"}
		}
		d.Kind = kind
	}

	if in.category != "" {
		category, ok := domain.ParseCategory(in.category)
		if !ok {
			return d, &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", in.category)}
		}
		d.Category = category
	}

	if in.date != "" {
		at, err := parseDate(in.date, loc)
		if err != nil {
			return d, &domain.ValidationError{Field: "date", Reason: err.Error()}
		}
		d.OccurredAt = at
	}

	return d, d.Validate()
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", s)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func signedMoney(r domain.TransactionRecord) string {
	s := money(r.Signed())
	if r.Kind == domain.KindIncome {
		s = "+" + s
	}
	return s
}

func printRecords(w io.Writer, records []domain.TransactionRecord, loc *time.Location) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "%-24s  %s  %12s  %-14s  %s\n",
			r.ID,
			r.OccurredAt.In(loc).Format("2006-01-02"),
			signedMoney(r),
			r.Category.Label(),
			r.Label(),
		)
	}
}

func printTotals(w io.Writer, t aggregate.Totals) {
	fmt.Fprintf(w, "Income:   %12s\n", money(t.Income))
	fmt.Fprintf(w, "Expense:  %12s\n", money(t.Expense))
	fmt.Fprintf(w, "Balance:  %12s\n", money(t.Balance))
}

func printSummary(w io.Writer, sum aggregate.Summary) {
	fmt.Fprintln(w, "=== Totals ===")
	printTotals(w, sum.Totals)

	fmt.Fprintln(w, "\n=== Expenses by category ===")
	if len(sum.Categories) == 0 {
		fmt.Fprintln(w, "No expenses.")
	}
	for _, c := range sum.Categories {
		fmt.Fprintf(w, "%-14s  %12s  (%d)\n", c.Category, money(c.Amount), c.Count)
	}

	fmt.Fprintln(w, "\n=== Daily balance ===")
	for _, p := range sum.Daily {
		marker := ""
		if p.Baseline {
			marker = "  (declared income)"
		}
		fmt.Fprintf(w, "%s  %12s  %12s%s\n", p.Day, money(p.Net), money(p.Balance), marker)
	}

	s := sum.Expenses
	fmt.Fprintln(w, "\n=== Expense stats ===")
	fmt.Fprintf(w, "Count: %d  Total: %s  Average: %s  Max: %s  Min: %s\n",
		s.Count, money(s.Total), money(s.Average), money(s.Max), money(s.Min))
}

func printProfile(w io.Writer, u *domain.UserProfile) {
	if u == nil {
		fmt.Fprintln(w, "No profile loaded.")
		return
	}
	fmt.Fprintf(w, "ID:             %s\n", u.ID)
	fmt.Fprintf(w, "Email:          %s\n", u.Email)
	fmt.Fprintf(w, "Username:       %s\n", u.Username)
	fmt.Fprintf(w, "Full name:      %s\n", u.FullName)
	fmt.Fprintf(w, "Monthly income: %s\n", money(u.DeclaredMonthlyIncome))
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Member since:   %s\n", u.CreatedAt.Format("2006-01-02"))
	}
}
