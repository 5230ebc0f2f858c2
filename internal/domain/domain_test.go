package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
		ok    bool
	}{
		{"income", KindIncome, true},
		{"  Expense ", KindExpense, true},
		{"INCOME", KindIncome, true},
		{"transfer", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseKind(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input string
		want  Category
		ok    bool
	}{
		{"Food", CategoryFood, true},
		{"food", CategoryFood, true},
		{" transport ", CategoryTransport, true},
		{"", "", true},
		{"Alimentación", CategoryOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCategory(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestTransactionRecord_Signed(t *testing.T) {
	income := TransactionRecord{Amount: decimal.NewFromInt(100), Kind: KindIncome}
	expense := TransactionRecord{Amount: decimal.NewFromInt(40), Kind: KindExpense}

	assert.True(t, income.Signed().Equal(decimal.NewFromInt(100)))
	assert.True(t, expense.Signed().Equal(decimal.NewFromInt(-40)))
}

func TestDraft_Validate(t *testing.T) {
	tests := []struct {
		name      string
		draft     Draft
		wantField string
	}{
		{
			name:  "valid",
			draft: Draft{Title: "Coffee", Amount: decimal.NewFromFloat(3.5), Kind: KindExpense},
		},
		{
			name:  "description only",
			draft: Draft{Description: "Salary", Amount: decimal.NewFromInt(1000)},
		},
		{
			name:      "empty label",
			draft:     Draft{Title: "  ", Amount: decimal.NewFromInt(1)},
			wantField: "description",
		},
		{
			name:      "zero amount",
			draft:     Draft{Title: "Coffee"},
			wantField: "amount",
		},
		{
			name:      "negative amount",
			draft:     Draft{Title: "Coffee", Amount: decimal.NewFromInt(-3)},
			wantField: "amount",
		},
		{
			name:      "unknown kind",
			draft:     Draft{Title: "Coffee", Amount: decimal.NewFromInt(3), Kind: "transfer"},
			wantField: "kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, tt.wantField, verr.Field)
			}
		})
	}
}

func TestDraft_WithDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	d := Draft{Description: "Lunch", Amount: decimal.NewFromInt(12)}.WithDefaults(now)

	assert.Equal(t, KindExpense, d.Kind)
	assert.Equal(t, "Lunch", d.Title)
	assert.Equal(t, now, d.OccurredAt)
}

func TestErrorHelpers(t *testing.T) {
	auth := fmt.Errorf("load: %w", &AuthError{Op: "GET /expenses", Status: 401})
	notFound := fmt.Errorf("delete: %w", &NetworkError{Op: "DELETE /expenses/1", Status: 404})

	assert.True(t, IsAuth(auth))
	assert.False(t, IsNetwork(auth))
	assert.True(t, IsNetwork(notFound))
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsValidation(notFound))
	assert.True(t, IsValidation(&ValidationError{Field: "amount", Reason: "missing"}))
}
