package credentials

import (
	"context"

	"github.com/google/uuid"
)

// Directory exposes string-keyed account lookups for packages that carry
// account IDs as opaque strings, such as token claims and message records.
type Directory struct {
	repo AccountRepository
}

func NewDirectory(repo AccountRepository) *Directory {
	return &Directory{repo: repo}
}

func (d *Directory) GetByID(ctx context.Context, id string) (*Account, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return d.repo.GetByID(ctx, uid)
}

func (d *Directory) GetByPersonID(ctx context.Context, personID string) (*Account, error) {
	return d.repo.GetByPersonID(ctx, personID)
}
