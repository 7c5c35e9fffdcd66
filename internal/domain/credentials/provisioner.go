package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinicore/internal/domain/authz"
)

// Provisioner creates and removes accounts in lockstep with doctor and
// patient records. Inserting a person yields an account with derived
// credentials; deleting the person removes the account.
type Provisioner struct {
	accounts AccountRepository
	log      zerolog.Logger
}

func NewProvisioner(accounts AccountRepository, log zerolog.Logger) *Provisioner {
	return &Provisioner{accounts: accounts, log: log}
}

// OnPersonInserted provisions the account for a newly inserted doctor or
// patient. The call is idempotent: if the exact account already exists it is
// returned as-is. If the derived username or the person slot is held by a
// different account, ErrProvisioningConflict is returned and the caller must
// treat the person insert as failed.
func (p *Provisioner) OnPersonInserted(ctx context.Context, role authz.Role, personID string) (*Account, error) {
	if !role.IsClinical() {
		return nil, fmt.Errorf("role %s is not auto-provisioned", role)
	}
	if personID == "" {
		return nil, fmt.Errorf("person id is required")
	}
	derived := DeriveCredentials(role, personID)

	if existing, err := p.accounts.GetByPersonID(ctx, personID); err == nil {
		return p.checkExisting(existing, role, derived, personID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(derived.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing derived password: %w", err)
	}
	pid := personID
	a := &Account{
		Username:     derived.Username,
		PasswordHash: string(hash),
		Role:         role,
		PersonID:     &pid,
	}
	err = p.accounts.Create(ctx, a)
	switch {
	case err == nil:
		p.log.Info().Str("username", a.Username).Str("role", string(role)).Msg("account provisioned")
		return a, nil
	case errors.Is(err, ErrDuplicatePerson):
		// A concurrent insert for the same person won the race; fetch what
		// it created and verify it matches.
		existing, gerr := p.accounts.GetByPersonID(ctx, personID)
		if gerr != nil {
			return nil, gerr
		}
		return p.checkExisting(existing, role, derived, personID)
	case errors.Is(err, ErrDuplicateUsername):
		// A concurrent insert for the same person trips the username index
		// too, and the store may report that violation first. Re-check the
		// person before declaring a conflict.
		existing, gerr := p.accounts.GetByPersonID(ctx, personID)
		if gerr == nil {
			return p.checkExisting(existing, role, derived, personID)
		}
		if !errors.Is(gerr, ErrNotFound) {
			return nil, gerr
		}
		// The derived username belongs to a different person's account.
		return nil, fmt.Errorf("%w: username %s already taken", ErrProvisioningConflict, derived.Username)
	default:
		return nil, err
	}
}

func (p *Provisioner) checkExisting(existing *Account, role authz.Role, derived Derived, personID string) (*Account, error) {
	if existing.Role == role && existing.Username == derived.Username {
		return existing, nil
	}
	p.log.Warn().
		Str("person_id", personID).
		Str("existing_username", existing.Username).
		Str("existing_role", string(existing.Role)).
		Msg("provisioning collision with existing account")
	return nil, fmt.Errorf("%w: person %s already linked to account %s", ErrProvisioningConflict, personID, existing.Username)
}

// OnPersonDeleted removes the account linked to a deleted doctor or patient.
// A person with no account is not an error.
func (p *Provisioner) OnPersonDeleted(ctx context.Context, personID string) error {
	if personID == "" {
		return fmt.Errorf("person id is required")
	}
	return p.accounts.DeleteByPersonID(ctx, personID)
}
