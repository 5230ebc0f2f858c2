package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserProfile is the authenticated user as known by the remote API.
type UserProfile struct {
	ID                    string          `json:"id"`
	Email                 string          `json:"email"`
	Username              string          `json:"username,omitempty"`
	FullName              string          `json:"full_name,omitempty"`
	DeclaredMonthlyIncome decimal.Decimal `json:"declared_monthly_income"`
	CreatedAt             time.Time       `json:"created_at"`
}

// ProfilePatch carries the fields a profile update may change. Nil fields are left untouched.
type ProfilePatch struct {
	Username *string
	FullName *string
	Income   *decimal.Decimal
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.FullName == nil && p.Income == nil
}

// Validate rejects patches the backend would refuse.
func (p ProfilePatch) Validate() error {
	if p.Empty() {
		return &ValidationError{Field: "profile", Reason: "nothing to update"}
	}
	if p.Income != nil && p.Income.IsNegative() {
		return &ValidationError{Field: "income", Reason: "must not be negative"}
	}
	if p.Username != nil && len(*p.Username) < 3 {
		return &ValidationError{Field: "username", Reason: "must be at least 3 characters"}
	}
	return nil
}
