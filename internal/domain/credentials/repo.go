package credentials

import (
	"context"

	"github.com/google/uuid"
)

type AccountRepository interface {
	// Create inserts a new account. Returns ErrDuplicateUsername or
	// ErrDuplicatePerson when a uniqueness constraint rejects the row.
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByPersonID(ctx context.Context, personID string) (*Account, error)
	// Update rewrites username, password hash and role. Returns
	// ErrDuplicateUsername when the new username is taken.
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByPersonID(ctx context.Context, personID string) error
	List(ctx context.Context, limit, offset int) ([]*Account, int, error)
}
