package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-ledger/internal/aggregate"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

func TestDraftInput_ToDraft(t *testing.T) {
	madrid := time.FixedZone("CET", 3600)

	tests := []struct {
		name      string
		in        draftInput
		wantErr   string
		wantKind  domain.Kind
		wantCat   domain.Category
		wantDate  time.Time
		wantTitle string
	}{
		{
			name:      "minimal expense",
			in:        draftInput{title: " Coffee ", amount: "3.50"},
			wantTitle: "Coffee",
		},
		{
			name:     "income with category and date",
			in:       draftInput{description: "salary", amount: "1000", kind: "Income", category: "other", date: "2024-03-01"},
			wantKind: domain.KindIncome,
			wantCat:  domain.CategoryOther,
			wantDate: time.Date(2024, 3, 1, 0, 0, 0, 0, madrid),
		},
		{
			name:     "rfc3339 date",
			in:       draftInput{title: "x", amount: "1", date: "2024-03-01T10:00:00Z"},
			wantDate: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{name: "missing amount", in: draftInput{title: "x"}, wantErr: "amount"},
		{name: "bad amount", in: draftInput{title: "x", amount: "ten"}, wantErr: "amount"},
		{name: "zero amount", in: draftInput{title: "x", amount: "0"}, wantErr: "amount"},
		{name: "bad kind", in: draftInput{title: "x", amount: "1", kind: "refund"}, wantErr: "kind"},
		{name: "unknown category", in: draftInput{title: "x", amount: "1", category: "Pets"}, wantErr: "category"},
		{name: "bad date", in: draftInput{title: "x", amount: "1", date: "03/01/2024"}, wantErr: "date"},
		{name: "no text", in: draftInput{amount: "1"}, wantErr: "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.in.toDraft(madrid)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
				}
				if !domain.IsValidation(err) {
					t.Errorf("expected a validation error, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", d.Kind, tt.wantKind)
			}
			if d.Category != tt.wantCat {
				t.Errorf("category = %q, want %q", d.Category, tt.wantCat)
			}
			if !d.OccurredAt.Equal(tt.wantDate) {
				t.Errorf("date = %v, want %v", d.OccurredAt, tt.wantDate)
			}
			if tt.wantTitle != "" && d.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", d.Title, tt.wantTitle)
			}
		})
	}
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, []domain.TransactionRecord{
		{ID: "a", Title: "Salary", Amount: decimal.NewFromInt(1000), Kind: domain.KindIncome, OccurredAt: time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)},
		{ID: "b", Description: "bus", Category: domain.CategoryTransport, Amount: decimal.RequireFromString("2.5"), Kind: domain.KindExpense},
	}, time.FixedZone("CET", 3600))

	out := buf.String()
	for _, want := range []string{"2024-03-02", "+1000.00", "-2.50", "Uncategorized", "Transport", "bus"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintRecords_Empty(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, nil, time.UTC)
	if !strings.Contains(buf.String(), "No transactions") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestPrintSummary(t *testing.T) {
	records := []domain.TransactionRecord{
		{ID: "1", Category: domain.CategoryFood, Amount: decimal.NewFromInt(25), Kind: domain.KindExpense, OccurredAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)},
		{ID: "2", Amount: decimal.NewFromInt(100), Kind: domain.KindIncome, OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	sum := aggregate.Compute(records, nil, time.UTC, aggregate.SeriesOptions{Baseline: true})

	var buf bytes.Buffer
	printSummary(&buf, sum)

	out := buf.String()
	for _, want := range []string{"Balance:", "75.00", "Food", "2024-02-29", "declared income", "Count: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadLocation(t *testing.T) {
	if loc, err := loadLocation(""); err != nil || loc != time.Local {
		t.Errorf("empty name should be local, got %v, %v", loc, err)
	}
	if _, err := loadLocation("Not/AZone"); err == nil {
		t.Error("expected error for unknown zone")
	}
}
