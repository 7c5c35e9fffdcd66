package contacts

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/domain/credentials"
)

type mockRelationships struct {
	// doctor person ID -> assigned patient person IDs
	assignments map[string][]string
}

func (m *mockRelationships) AssignedPatients(ctx context.Context, doctorID string) ([]string, error) {
	return m.assignments[doctorID], nil
}

func (m *mockRelationships) AssignedDoctors(ctx context.Context, patientID string) ([]string, error) {
	var doctors []string
	for doc, patients := range m.assignments {
		for _, p := range patients {
			if p == patientID {
				doctors = append(doctors, doc)
			}
		}
	}
	return doctors, nil
}

type mockDirectory struct {
	accounts []*credentials.Account
}

func (m *mockDirectory) GetByID(ctx context.Context, id string) (*credentials.Account, error) {
	for _, a := range m.accounts {
		if a.ID.String() == id {
			return a, nil
		}
	}
	return nil, credentials.ErrNotFound
}

func (m *mockDirectory) GetByPersonID(ctx context.Context, personID string) (*credentials.Account, error) {
	for _, a := range m.accounts {
		if a.PersonID != nil && *a.PersonID == personID {
			return a, nil
		}
	}
	return nil, credentials.ErrNotFound
}

func account(role authz.Role, personID string) *credentials.Account {
	a := &credentials.Account{ID: uuid.New(), Username: string(role) + personID, Role: role}
	if personID != "" {
		pid := personID
		a.PersonID = &pid
	}
	return a
}

func TestResolveAssignedPair(t *testing.T) {
	doctor := account(authz.RoleDoctor, "d1")
	patient := account(authz.RolePatient, "p1")
	rels := &mockRelationships{assignments: map[string][]string{"d1": {"p1"}}}
	dir := &mockDirectory{accounts: []*credentials.Account{doctor, patient}}
	r := NewResolver(rels, dir, zerolog.Nop())

	docContacts, err := r.Resolve(context.Background(), doctor.ID.String())
	if err != nil {
		t.Fatalf("Resolve doctor: %v", err)
	}
	if len(docContacts) != 1 || docContacts[0].ID != patient.ID {
		t.Fatalf("doctor contacts = %v", docContacts)
	}

	patContacts, err := r.Resolve(context.Background(), patient.ID.String())
	if err != nil {
		t.Fatalf("Resolve patient: %v", err)
	}
	if len(patContacts) != 1 || patContacts[0].ID != doctor.ID {
		t.Fatalf("patient contacts = %v", patContacts)
	}
}

func TestResolveNoAssignmentsEmpty(t *testing.T) {
	doctor := account(authz.RoleDoctor, "d1")
	rels := &mockRelationships{assignments: map[string][]string{}}
	dir := &mockDirectory{accounts: []*credentials.Account{doctor}}
	r := NewResolver(rels, dir, zerolog.Nop())

	got, err := r.Resolve(context.Background(), doctor.ID.String())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty contact set, got %d", len(got))
	}
}

func TestResolveNonClinicalEmpty(t *testing.T) {
	admin := account(authz.RoleAdmin, "")
	viewer := account(authz.RoleViewer, "")
	dir := &mockDirectory{accounts: []*credentials.Account{admin, viewer}}
	r := NewResolver(&mockRelationships{}, dir, zerolog.Nop())

	for _, a := range []*credentials.Account{admin, viewer} {
		got, err := r.Resolve(context.Background(), a.ID.String())
		if err != nil {
			t.Fatalf("Resolve %s: %v", a.Role, err)
		}
		if len(got) != 0 {
			t.Fatalf("%s contacts should be empty", a.Role)
		}
	}
}

func TestResolveMissingPersonLink(t *testing.T) {
	broken := &credentials.Account{ID: uuid.New(), Username: "dr", Role: authz.RoleDoctor}
	dir := &mockDirectory{accounts: []*credentials.Account{broken}}
	r := NewResolver(&mockRelationships{}, dir, zerolog.Nop())

	_, err := r.Resolve(context.Background(), broken.ID.String())
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("want ErrInvariantViolation, got %v", err)
	}
}

func TestResolveReflectsAssignmentChanges(t *testing.T) {
	doctor := account(authz.RoleDoctor, "d1")
	patient := account(authz.RolePatient, "p1")
	rels := &mockRelationships{assignments: map[string][]string{"d1": {"p1"}}}
	dir := &mockDirectory{accounts: []*credentials.Account{doctor, patient}}
	r := NewResolver(rels, dir, zerolog.Nop())

	if ok, err := r.IsContact(context.Background(), doctor.ID.String(), patient.ID.String()); err != nil || !ok {
		t.Fatalf("expected contact before removal, ok=%v err=%v", ok, err)
	}

	// Remove the assignment; the next resolution must not see it.
	rels.assignments = map[string][]string{}
	if ok, err := r.IsContact(context.Background(), doctor.ID.String(), patient.ID.String()); err != nil || ok {
		t.Fatalf("expected no contact after removal, ok=%v err=%v", ok, err)
	}
}

func TestResolveSkipsUnprovisionedPeer(t *testing.T) {
	doctor := account(authz.RoleDoctor, "d1")
	rels := &mockRelationships{assignments: map[string][]string{"d1": {"ghost"}}}
	dir := &mockDirectory{accounts: []*credentials.Account{doctor}}
	r := NewResolver(rels, dir, zerolog.Nop())

	got, err := r.Resolve(context.Background(), doctor.ID.String())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected ghost peer skipped, got %d contacts", len(got))
	}
}
