package ledger

import (
	"context"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/normalize"
)

// API defines the remote operations the store depends on.
// This interface allows for easy mocking in tests.
type API interface {
	ListTransactions(ctx context.Context) ([]normalize.RawTransaction, error)
	CreateTransaction(ctx context.Context, draft domain.Draft) (normalize.RawTransaction, error)
	UpdateTransaction(ctx context.Context, id string, draft domain.Draft) (normalize.RawTransaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	GetProfile(ctx context.Context) (normalize.RawProfile, error)
	UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (normalize.RawProfile, error)
}
