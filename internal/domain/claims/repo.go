package claims

import "context"

// UnitOfWork is the set of writes one ingestion attempt performs inside a
// single transaction.
type UnitOfWork interface {
	EntityStore
	CreateClaim(ctx context.Context) (*Claim, error)
	InsertDetails(ctx context.Context, details []ClaimDetail) error
}

// Repository is the storage port of the claims domain.
type Repository interface {
	// WithinTx runs fn in a transaction that is committed when fn returns nil
	// and rolled back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
	ListClaims(ctx context.Context, limit, offset int) ([]*Claim, int, error)
	ClaimExists(ctx context.Context, claimID int64) (bool, error)
	GetClaimDetails(ctx context.Context, claimID int64) ([]*ClaimDetailView, error)
	TopProviders(ctx context.Context, n int) ([]*ProviderNetFee, error)
}
