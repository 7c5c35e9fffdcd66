// Package contacts computes which accounts are allowed to message each
// other. An active doctor-patient assignment in the graph makes the two
// parties mutual contacts; nothing else does.
package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/domain/credentials"
)

// ErrInvariantViolation is returned when a doctor or patient account has no
// person link, which should be impossible for provisioned accounts.
var ErrInvariantViolation = errors.New("clinical account has no person link")

// RelationshipSource reports assignment edges from the graph. Doctor IDs
// map to the patients assigned to them and vice versa.
type RelationshipSource interface {
	AssignedDoctors(ctx context.Context, patientID string) ([]string, error)
	AssignedPatients(ctx context.Context, doctorID string) ([]string, error)
}

// AccountDirectory is the slice of the account store the resolver needs.
type AccountDirectory interface {
	GetByID(ctx context.Context, id string) (*credentials.Account, error)
	GetByPersonID(ctx context.Context, personID string) (*credentials.Account, error)
}

// Resolver derives an account's contact set fresh on every call; there is
// no caching, so assignment changes take effect immediately.
type Resolver struct {
	rels RelationshipSource
	dir  AccountDirectory
	log  zerolog.Logger
}

func NewResolver(rels RelationshipSource, dir AccountDirectory, log zerolog.Logger) *Resolver {
	return &Resolver{rels: rels, dir: dir, log: log}
}

// Resolve returns the accounts the given account may exchange messages
// with. Admin and viewer accounts always get an empty set. A doctor or
// patient with no current assignments also gets an empty set.
func (r *Resolver) Resolve(ctx context.Context, accountID string) ([]*credentials.Account, error) {
	a, err := r.dir.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !a.Role.IsClinical() {
		return nil, nil
	}
	if a.PersonID == nil || *a.PersonID == "" {
		r.log.Error().
			Str("account_id", accountID).
			Str("role", string(a.Role)).
			Msg("clinical account missing person link")
		return nil, fmt.Errorf("%w: account %s", ErrInvariantViolation, accountID)
	}

	var peers []string
	switch a.Role {
	case authz.RoleDoctor:
		peers, err = r.rels.AssignedPatients(ctx, *a.PersonID)
	case authz.RolePatient:
		peers, err = r.rels.AssignedDoctors(ctx, *a.PersonID)
	}
	if err != nil {
		return nil, err
	}

	var contacts []*credentials.Account
	for _, personID := range peers {
		peer, err := r.dir.GetByPersonID(ctx, personID)
		if errors.Is(err, credentials.ErrNotFound) {
			// Assignment to a person whose account is gone; skip rather
			// than fail the whole set.
			r.log.Warn().Str("person_id", personID).Msg("assigned person has no account")
			continue
		}
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, peer)
	}
	return contacts, nil
}

// IsContact reports whether other is in account's current contact set.
func (r *Resolver) IsContact(ctx context.Context, accountID, otherAccountID string) (bool, error) {
	set, err := r.Resolve(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, c := range set {
		if c.ID.String() == otherAccountID {
			return true, nil
		}
	}
	return false, nil
}
