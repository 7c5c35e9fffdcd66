// Package credentials manages login accounts: manual accounts created by an
// administrator and accounts auto-provisioned when a doctor or patient record
// is inserted.
package credentials

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/authz"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateUsername is returned when the requested username is taken.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrDuplicatePerson is returned when the person already has an account.
	ErrDuplicatePerson = errors.New("person already has an account")
	// ErrAuthFailed covers both unknown-user and wrong-password; callers
	// cannot tell the two apart.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrProvisioningConflict is returned when auto-provisioning cannot
	// proceed because the derived username or the person slot is already
	// held by a different account.
	ErrProvisioningConflict = errors.New("account provisioning conflict")
	// ErrRoleLinkMismatch is returned when a role change would break the
	// role/person-link pairing: doctor and patient roles need a person
	// link, admin and viewer must not keep one.
	ErrRoleLinkMismatch = errors.New("role incompatible with person link")
)

type Account struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         authz.Role `json:"role"`
	// PersonID links the account to its graph node for doctor and patient
	// roles; nil for admin and viewer accounts.
	PersonID  *string   `json:"person_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Derived holds the initial credentials computed for an auto-provisioned
// account. The password is returned in clear exactly once, at derivation
// time; only its hash is stored.
type Derived struct {
	Username string
	Password string
}

// DeriveCredentials computes the initial username and password for a newly
// inserted doctor or patient from the person's identifier: "d"-prefixed for
// doctors, "p"-prefixed for patients. Pure function of its inputs.
func DeriveCredentials(role authz.Role, personID string) Derived {
	var prefix string
	switch role {
	case authz.RoleDoctor:
		prefix = "d"
	case authz.RolePatient:
		prefix = "p"
	}
	cred := prefix + personID
	return Derived{Username: cred, Password: cred}
}
