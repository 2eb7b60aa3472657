package users

import (
	"context"

	"github.com/google/uuid"
)

// Store persists accounts and their profiles.
type Store interface {
	ExistsUsername(ctx context.Context, username string) (bool, error)
	// ExistsEmail compares case-insensitively.
	ExistsEmail(ctx context.Context, email string) (bool, error)

	// Atomic runs fn in a transaction. Writes made through tx are committed
	// only if fn returns nil; otherwise none of them persist.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetByUsername(ctx context.Context, username string) (*Account, error)
	// List returns accounts ordered by profile creation time.
	List(ctx context.Context, limit, offset int) ([]*Account, error)
	SetVerified(ctx context.Context, username string) (*Account, error)
	// Delete removes the account and, by cascade, its profile. It returns
	// the deleted account so callers can release owned resources.
	Delete(ctx context.Context, username string) (*Account, error)
	Ping(ctx context.Context) error
}

// Tx is the write side of Store, only valid inside Atomic.
type Tx interface {
	// CreateAccount inserts a and sets its ID and CreatedAt. A duplicate
	// username or email yields *ConflictError.
	CreateAccount(ctx context.Context, a *Account) error
	// CreateProfile inserts p for the account and sets its timestamps.
	CreateProfile(ctx context.Context, accountID uuid.UUID, p *Profile) error
}
