// Package normalize turns raw API and push-channel payloads into domain records.
//
// Every write path (bulk load, create response, push notification) goes through
// the same Normalizer, so sign and type conventions are resolved in one place.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// timeLayouts are tried in order. Naive layouts are interpreted as UTC,
// matching the backend's utcnow() timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Normalizer converts raw payloads into canonical records.
type Normalizer struct {
	// Now supplies the timestamp for records that arrive without a date.
	Now func() time.Time
}

// New returns a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Transaction normalizes a raw transaction.
// The amount becomes a magnitude; the kind comes from an explicit kind/type field
// when valid, otherwise from the sign of the raw amount.
func (n *Normalizer) Transaction(raw RawTransaction) (domain.TransactionRecord, error) {
	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return domain.TransactionRecord{}, err
	}

	kind, ok := domain.ParseKind(raw.Kind)
	if !ok {
		kind, ok = domain.ParseKind(raw.Type)
	}
	if !ok {
		kind = domain.KindIncome
		if amount.IsNegative() {
			kind = domain.KindExpense
		}
	}

	occurredAt, err := n.parseDate(raw.Date)
	if err != nil {
		return domain.TransactionRecord{}, err
	}

	id, err := parseID(raw.ID)
	if err != nil {
		return domain.TransactionRecord{}, err
	}
	if id == "" {
		if id, err = parseID(raw.MongoID); err != nil {
			return domain.TransactionRecord{}, err
		}
	}

	category, _ := domain.ParseCategory(raw.Category)

	return domain.TransactionRecord{
		ID:          id,
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
		Category:    category,
		Amount:      amount.Abs(),
		Kind:        kind,
		OccurredAt:  occurredAt,
	}, nil
}

// Profile normalizes a raw user profile. A null or absent income is zero.
func (n *Normalizer) Profile(raw RawProfile) (domain.UserProfile, error) {
	id, err := parseID(raw.ID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	income := decimal.Zero
	if !isNull(raw.Income) {
		income, err = ParseAmount(raw.Income)
		if err != nil {
			return domain.UserProfile{}, &domain.ValidationError{Field: "income", Reason: "not numeric"}
		}
		if income.IsNegative() {
			return domain.UserProfile{}, &domain.ValidationError{Field: "income", Reason: "must not be negative"}
		}
	}

	var createdAt time.Time
	if raw.CreatedAt != "" {
		if createdAt, err = parseTime(raw.CreatedAt); err != nil {
			return domain.UserProfile{}, &domain.ValidationError{Field: "created_at", Reason: err.Error()}
		}
	}

	return domain.UserProfile{
		ID:                    id,
		Email:                 strings.TrimSpace(raw.Email),
		Username:              raw.Username,
		FullName:              raw.FullName,
		DeclaredMonthlyIncome: income,
		CreatedAt:             createdAt,
	}, nil
}

// ParseAmount reads a JSON number or a JSON string holding a number.
// The sign is preserved.
func ParseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if isNull(raw) {
		return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: "missing"}
	}

	text := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: "not numeric"}
		}
		text = strings.TrimSpace(s)
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: fmt.Sprintf("not numeric: %q", text)}
	}
	return d, nil
}

func (n *Normalizer) parseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		if n.Now == nil {
			return time.Now(), nil
		}
		return n.Now(), nil
	}
	t, err := parseTime(s)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: "date", Reason: err.Error()}
	}
	return t, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseID accepts a JSON string or number.
func parseID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), nil
	}
	return "", &domain.ValidationError{Field: "id", Reason: "must be a string or number"}
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
