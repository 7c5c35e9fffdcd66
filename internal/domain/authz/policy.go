// Package authz holds the role/permission matrix. Every request is gated
// here; an operation not enumerated for a role is denied.
package authz

import (
	"errors"
	"fmt"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleViewer  Role = "viewer"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleViewer, RoleDoctor, RolePatient:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsClinical reports whether the role is tied to a Person in the graph.
func (r Role) IsClinical() bool {
	return r == RoleDoctor || r == RolePatient
}

type Operation string

const (
	// OpClinicalRead covers view/search of all clinical records.
	OpClinicalRead Operation = "clinical.read"
	// OpClinicalWrite covers insert/update/delete of clinical records,
	// including Assignment edges.
	OpClinicalWrite Operation = "clinical.write"
	// OpMessageSend is the capability to originate messages; the message
	// gateway additionally restricts the receiver to the sender's contact set.
	OpMessageSend Operation = "message.send"
	// OpAccountSelf covers changing one's own username/password.
	OpAccountSelf Operation = "account.self"
	// OpAccountManage covers administering other accounts (roles, links,
	// credential resets).
	OpAccountManage Operation = "account.manage"
)

var ErrPermissionDenied = errors.New("permission denied")

// permissions enumerates every allowed (role, operation) pair. Absence means
// denial; there is no allow-by-default path.
var permissions = map[Role]map[Operation]bool{
	RoleAdmin: {
		OpClinicalRead:  true,
		OpClinicalWrite: true,
		OpAccountSelf:   true,
		OpAccountManage: true,
	},
	RoleViewer: {
		OpClinicalRead: true,
		OpAccountSelf:  true,
	},
	RoleDoctor: {
		OpMessageSend: true,
		OpAccountSelf: true,
	},
	RolePatient: {
		OpMessageSend: true,
		OpAccountSelf: true,
	},
}

// Allowed is a pure function of role and operation.
func Allowed(role Role, op Operation) bool {
	return permissions[role][op]
}

// Authorize returns ErrPermissionDenied unless the matrix explicitly allows
// the operation for the role.
func Authorize(role Role, op Operation) error {
	if !Allowed(role, op) {
		return fmt.Errorf("%w: role %s may not %s", ErrPermissionDenied, role, op)
	}
	return nil
}
