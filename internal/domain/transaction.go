package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the direction of a transaction.
type Kind string

const (
	// KindIncome adds the amount to every total.
	KindIncome Kind = "income"
	// KindExpense subtracts the amount from every total.
	KindExpense Kind = "expense"
)

// ParseKind resolves a wire value such as "Income" or " expense ".
// The second result is false when s names neither kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindIncome):
		return KindIncome, true
	case string(KindExpense):
		return KindExpense, true
	}
	return "", false
}

// Category is the fixed spending taxonomy. The zero value means "no category".
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryUtilities     Category = "Utilities"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryEducation     Category = "Education"
	CategoryOther         Category = "Other"
)

// Uncategorized is the bucket name used for records without a category.
const Uncategorized = "Uncategorized"

// Categories lists the taxonomy in display order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryUtilities,
	CategoryEntertainment,
	CategoryHealth,
	CategoryEducation,
	CategoryOther,
}

// ParseCategory matches s case-insensitively against the taxonomy.
// Empty input yields the zero Category and true; unknown text yields CategoryOther and false.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return CategoryOther, false
}

// Label returns the category name, or Uncategorized for the zero value.
func (c Category) Label() string {
	if c == "" {
		return Uncategorized
	}
	return string(c)
}

// TransactionRecord is one normalized ledger entry.
// Amount is always a non-negative magnitude; direction lives in Kind.
type TransactionRecord struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Category    Category        `json:"category,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        Kind            `json:"kind"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Signed returns the record's contribution to a balance.
func (r TransactionRecord) Signed() decimal.Decimal {
	if r.Kind == KindExpense {
		return r.Amount.Neg()
	}
	return r.Amount
}

// Label is the text shown for the record: the title, falling back to the description.
func (r TransactionRecord) Label() string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	return strings.TrimSpace(r.Description)
}

// Draft is a client-authored transaction awaiting server confirmation.
type Draft struct {
	Title       string
	Description string
	Category    Category
	Amount      decimal.Decimal
	Kind        Kind
	OccurredAt  time.Time
}

// Validate checks the draft before it is sent upstream.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" && strings.TrimSpace(d.Description) == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if d.Kind != "" {
		if _, ok := ParseKind(string(d.Kind)); !ok {
			return &ValidationError{Field: "kind", Reason: "must be income or expense"}
		}
	}
	return nil
}

// WithDefaults fills the fields the backend requires but the caller may omit.
func (d Draft) WithDefaults(now time.Time) Draft {
	if k, ok := ParseKind(string(d.Kind)); ok {
		d.Kind = k
	} else {
		d.Kind = KindExpense
	}
	if strings.TrimSpace(d.Title) == "" {
		d.Title = strings.TrimSpace(d.Description)
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = now
	}
	return d
}
