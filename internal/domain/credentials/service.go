package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinicore/internal/domain/authz"
)

type Service struct {
	accounts AccountRepository
}

func NewService(accounts AccountRepository) *Service {
	return &Service{accounts: accounts}
}

// CreateAccount creates an account with an admin-chosen username and
// password. The password is hashed before it reaches the repository.
func (s *Service) CreateAccount(ctx context.Context, username, password string, role authz.Role, personID *string) (*Account, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	a := &Account{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		PersonID:     personID,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Authenticate verifies a username/password pair. Unknown usernames and
// wrong passwords both surface as ErrAuthFailed so callers cannot probe for
// which usernames exist.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	a, err := s.accounts.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAuthFailed
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrAuthFailed
	}
	return a, nil
}

// ChangeCredentials updates the target account's username and/or password.
// Every authenticated role may change its own credentials; changing another
// account requires the account-management permission.
func (s *Service) ChangeCredentials(ctx context.Context, actorID uuid.UUID, actorRole authz.Role, targetID uuid.UUID, newUsername, newPassword string) (*Account, error) {
	if actorID == targetID {
		if err := authz.Authorize(actorRole, authz.OpAccountSelf); err != nil {
			return nil, err
		}
	} else {
		if err := authz.Authorize(actorRole, authz.OpAccountManage); err != nil {
			return nil, err
		}
	}
	a, err := s.accounts.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if newUsername != "" {
		a.Username = newUsername
	}
	if newPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		a.PasswordHash = string(hash)
	}
	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SetRole changes an account's role; admin only.
func (s *Service) SetRole(ctx context.Context, actorRole authz.Role, targetID uuid.UUID, role authz.Role) (*Account, error) {
	if err := authz.Authorize(actorRole, authz.OpAccountManage); err != nil {
		return nil, err
	}
	a, err := s.accounts.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	linked := a.PersonID != nil && *a.PersonID != ""
	switch role {
	case authz.RoleDoctor, authz.RolePatient:
		if !linked {
			return nil, fmt.Errorf("%w: role %s needs a linked person", ErrRoleLinkMismatch, role)
		}
	default:
		if linked {
			return nil, fmt.Errorf("%w: account %s is linked to person %s", ErrRoleLinkMismatch, a.Username, *a.PersonID)
		}
	}
	a.Role = role
	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.accounts.GetByID(ctx, id)
}

func (s *Service) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return s.accounts.GetByUsername(ctx, username)
}

func (s *Service) ListAccounts(ctx context.Context, actorRole authz.Role, limit, offset int) ([]*Account, int, error) {
	if err := authz.Authorize(actorRole, authz.OpAccountManage); err != nil {
		return nil, 0, err
	}
	return s.accounts.List(ctx, limit, offset)
}

func (s *Service) DeleteAccount(ctx context.Context, actorRole authz.Role, id uuid.UUID) error {
	if err := authz.Authorize(actorRole, authz.OpAccountManage); err != nil {
		return err
	}
	return s.accounts.Delete(ctx, id)
}

// EnsureAccount creates the account if no account with that username exists.
// Used at startup to seed the built-in admin and viewer logins.
func (s *Service) EnsureAccount(ctx context.Context, username, password string, role authz.Role) error {
	_, err := s.accounts.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.CreateAccount(ctx, username, password, role, nil)
	if errors.Is(err, ErrDuplicateUsername) {
		// Lost a race with another instance seeding the same account.
		return nil
	}
	return err
}
