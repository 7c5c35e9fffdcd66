package clinical

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/domain/credentials"
	"github.com/clinicore/clinicore/internal/platform/filestore"
)

// fakeRepo is a map-backed stand-in for the graph.
type fakeRepo struct {
	clinics      map[string]*Clinic
	departments  map[string]*Department
	doctors      map[string]*Doctor
	patients     map[string]*Patient
	appointments map[string]*Appointment
	observations map[string]*Observation
	diagnoses    map[string]*Diagnosis
	// patient ID -> doctor ID
	assignments map[string]string
	failSetFile error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clinics:      make(map[string]*Clinic),
		departments:  make(map[string]*Department),
		doctors:      make(map[string]*Doctor),
		patients:     make(map[string]*Patient),
		appointments: make(map[string]*Appointment),
		observations: make(map[string]*Observation),
		diagnoses:    make(map[string]*Diagnosis),
		assignments:  make(map[string]string),
	}
}

func (f *fakeRepo) CreateClinic(ctx context.Context, c *Clinic) error {
	f.clinics[c.ID] = c
	return nil
}

func (f *fakeRepo) GetClinic(ctx context.Context, id string) (*Clinic, error) {
	if c, ok := f.clinics[id]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) UpdateClinic(ctx context.Context, c *Clinic) error {
	if _, ok := f.clinics[c.ID]; !ok {
		return ErrNotFound
	}
	f.clinics[c.ID] = c
	return nil
}

func (f *fakeRepo) DeleteClinic(ctx context.Context, id string) error {
	if _, ok := f.clinics[id]; !ok {
		return ErrNotFound
	}
	delete(f.clinics, id)
	for did, d := range f.departments {
		if d.ClinicID == id {
			delete(f.departments, did)
		}
	}
	return nil
}

func (f *fakeRepo) ListClinics(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	var out []*Clinic
	for _, c := range f.clinics {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (f *fakeRepo) CreateDepartment(ctx context.Context, d *Department) error {
	if _, ok := f.clinics[d.ClinicID]; !ok {
		return ErrNotFound
	}
	f.departments[d.ID] = d
	return nil
}

func (f *fakeRepo) GetDepartment(ctx context.Context, id string) (*Department, error) {
	if d, ok := f.departments[id]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) UpdateDepartment(ctx context.Context, d *Department) error {
	if _, ok := f.departments[d.ID]; !ok {
		return ErrNotFound
	}
	f.departments[d.ID] = d
	return nil
}

func (f *fakeRepo) DeleteDepartment(ctx context.Context, id string) error {
	if _, ok := f.departments[id]; !ok {
		return ErrNotFound
	}
	delete(f.departments, id)
	return nil
}

func (f *fakeRepo) ListDepartmentsByClinic(ctx context.Context, clinicID string, limit, offset int) ([]*Department, int, error) {
	var out []*Department
	for _, d := range f.departments {
		if d.ClinicID == clinicID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) CreateDoctor(ctx context.Context, d *Doctor) error {
	if _, ok := f.departments[d.DepartmentID]; !ok {
		return ErrNotFound
	}
	f.doctors[d.ID] = d
	return nil
}

func (f *fakeRepo) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	if d, ok := f.doctors[id]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if _, ok := f.doctors[d.ID]; !ok {
		return ErrNotFound
	}
	f.doctors[d.ID] = d
	return nil
}

func (f *fakeRepo) DeleteDoctor(ctx context.Context, id string) error {
	if _, ok := f.doctors[id]; !ok {
		return ErrNotFound
	}
	delete(f.doctors, id)
	for pid, did := range f.assignments {
		if did == id {
			delete(f.assignments, pid)
		}
	}
	return nil
}

func (f *fakeRepo) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var out []*Doctor
	for _, d := range f.doctors {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (f *fakeRepo) CreatePatient(ctx context.Context, p *Patient) error {
	if p.DoctorID != "" {
		if _, ok := f.doctors[p.DoctorID]; !ok {
			return ErrNotFound
		}
		f.assignments[p.ID] = p.DoctorID
	}
	f.patients[p.ID] = p
	return nil
}

func (f *fakeRepo) GetPatient(ctx context.Context, id string) (*Patient, error) {
	if p, ok := f.patients[id]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) UpdatePatient(ctx context.Context, p *Patient) error {
	if _, ok := f.patients[p.ID]; !ok {
		return ErrNotFound
	}
	f.patients[p.ID] = p
	return nil
}

func (f *fakeRepo) DeletePatient(ctx context.Context, id string) error {
	if _, ok := f.patients[id]; !ok {
		return ErrNotFound
	}
	delete(f.patients, id)
	delete(f.assignments, id)
	return nil
}

func (f *fakeRepo) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range f.patients {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (f *fakeRepo) AssignPatient(ctx context.Context, patientID, doctorID string) error {
	if _, ok := f.patients[patientID]; !ok {
		return ErrNotFound
	}
	if doctorID == "" {
		delete(f.assignments, patientID)
		return nil
	}
	if _, ok := f.doctors[doctorID]; !ok {
		return ErrNotFound
	}
	f.assignments[patientID] = doctorID
	return nil
}

func (f *fakeRepo) AssignedPatients(ctx context.Context, doctorID string) ([]string, error) {
	var out []string
	for pid, did := range f.assignments {
		if did == doctorID {
			out = append(out, pid)
		}
	}
	return out, nil
}

func (f *fakeRepo) AssignedDoctors(ctx context.Context, patientID string) ([]string, error) {
	if did, ok := f.assignments[patientID]; ok {
		return []string{did}, nil
	}
	return nil, nil
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, a *Appointment) error {
	if _, ok := f.patients[a.PatientID]; !ok {
		return ErrNotFound
	}
	if _, ok := f.doctors[a.DoctorID]; !ok {
		return ErrNotFound
	}
	f.appointments[a.ID] = a
	return nil
}

func (f *fakeRepo) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	if a, ok := f.appointments[id]; ok {
		return a, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if _, ok := f.appointments[a.ID]; !ok {
		return ErrNotFound
	}
	f.appointments[a.ID] = a
	return nil
}

func (f *fakeRepo) DeleteAppointment(ctx context.Context, id string) error {
	if _, ok := f.appointments[id]; !ok {
		return ErrNotFound
	}
	delete(f.appointments, id)
	return nil
}

func (f *fakeRepo) ListAppointmentsByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range f.appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) ListAppointmentsByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range f.appointments {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) CreateObservation(ctx context.Context, o *Observation) error {
	if _, ok := f.appointments[o.AppointmentID]; !ok {
		return ErrNotFound
	}
	f.observations[o.ID] = o
	return nil
}

func (f *fakeRepo) GetObservation(ctx context.Context, id string) (*Observation, error) {
	if o, ok := f.observations[id]; ok {
		return o, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) UpdateObservation(ctx context.Context, o *Observation) error {
	if _, ok := f.observations[o.ID]; !ok {
		return ErrNotFound
	}
	f.observations[o.ID] = o
	return nil
}

func (f *fakeRepo) DeleteObservation(ctx context.Context, id string) error {
	if _, ok := f.observations[id]; !ok {
		return ErrNotFound
	}
	delete(f.observations, id)
	return nil
}

func (f *fakeRepo) ListObservationsByAppointment(ctx context.Context, appointmentID string) ([]*Observation, error) {
	var out []*Observation
	for _, o := range f.observations {
		if o.AppointmentID == appointmentID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetObservationFile(ctx context.Context, id, ref, name string) error {
	if f.failSetFile != nil {
		return f.failSetFile
	}
	o, ok := f.observations[id]
	if !ok {
		return ErrNotFound
	}
	o.FileRef, o.FileName = ref, name
	return nil
}

func (f *fakeRepo) CreateDiagnosis(ctx context.Context, d *Diagnosis) error {
	if _, ok := f.observations[d.ObservationID]; !ok {
		return ErrNotFound
	}
	f.diagnoses[d.ID] = d
	return nil
}

func (f *fakeRepo) GetDiagnosis(ctx context.Context, id string) (*Diagnosis, error) {
	if d, ok := f.diagnoses[id]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) UpdateDiagnosis(ctx context.Context, d *Diagnosis) error {
	if _, ok := f.diagnoses[d.ID]; !ok {
		return ErrNotFound
	}
	f.diagnoses[d.ID] = d
	return nil
}

func (f *fakeRepo) DeleteDiagnosis(ctx context.Context, id string) error {
	if _, ok := f.diagnoses[id]; !ok {
		return ErrNotFound
	}
	delete(f.diagnoses, id)
	return nil
}

func (f *fakeRepo) ListDiagnosesByObservation(ctx context.Context, observationID string) ([]*Diagnosis, error) {
	var out []*Diagnosis
	for _, d := range f.diagnoses {
		if d.ObservationID == observationID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetDiagnosisFile(ctx context.Context, id, ref, name string) error {
	if f.failSetFile != nil {
		return f.failSetFile
	}
	d, ok := f.diagnoses[id]
	if !ok {
		return ErrNotFound
	}
	d.FileRef, d.FileName = ref, name
	return nil
}

// fakeProvisioner records provisioning calls.
type fakeProvisioner struct {
	inserted []string
	deleted  []string
	fail     error
}

func (f *fakeProvisioner) OnPersonInserted(ctx context.Context, role authz.Role, personID string) (*credentials.Account, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.inserted = append(f.inserted, personID)
	d := credentials.DeriveCredentials(role, personID)
	return &credentials.Account{Username: d.Username, Role: role, PersonID: &personID}, nil
}

func (f *fakeProvisioner) OnPersonDeleted(ctx context.Context, personID string) error {
	f.deleted = append(f.deleted, personID)
	return nil
}

func newTestService(t *testing.T, repo Repository, prov AccountProvisioner) *Service {
	t.Helper()
	files, err := filestore.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	return NewService(repo, prov, files, zerolog.Nop())
}

// seedDepartment creates a clinic and a department to hang doctors off.
func seedDepartment(t *testing.T, svc *Service) *Department {
	t.Helper()
	cl := &Clinic{Name: "Central"}
	if err := svc.CreateClinic(context.Background(), authz.RoleAdmin, cl); err != nil {
		t.Fatalf("CreateClinic: %v", err)
	}
	dep := &Department{Name: "Cardiology", ClinicID: cl.ID}
	if err := svc.CreateDepartment(context.Background(), authz.RoleAdmin, dep); err != nil {
		t.Fatalf("CreateDepartment: %v", err)
	}
	return dep
}

func TestCreateDoctorProvisionsAccount(t *testing.T) {
	repo := newFakeRepo()
	prov := &fakeProvisioner{}
	svc := newTestService(t, repo, prov)
	dep := seedDepartment(t, svc)

	account, err := svc.CreateDoctor(context.Background(), authz.RoleAdmin, &Doctor{
		ID: "101", FirstName: "Ana", LastName: "Ruiz", DepartmentID: dep.ID,
	})
	if err != nil {
		t.Fatalf("CreateDoctor: %v", err)
	}
	if account.Username != "d101" {
		t.Fatalf("got username %q", account.Username)
	}
	if len(prov.inserted) != 1 || prov.inserted[0] != "101" {
		t.Fatalf("provisioner calls: %v", prov.inserted)
	}
}

func TestCreateDoctorRollsBackOnProvisioningConflict(t *testing.T) {
	repo := newFakeRepo()
	prov := &fakeProvisioner{fail: credentials.ErrProvisioningConflict}
	svc := newTestService(t, repo, prov)
	dep := seedDepartment(t, svc)

	_, err := svc.CreateDoctor(context.Background(), authz.RoleAdmin, &Doctor{
		ID: "101", FirstName: "Ana", LastName: "Ruiz", DepartmentID: dep.ID,
	})
	if !errors.Is(err, credentials.ErrProvisioningConflict) {
		t.Fatalf("want ErrProvisioningConflict, got %v", err)
	}
	if _, err := repo.GetDoctor(context.Background(), "101"); !errors.Is(err, ErrNotFound) {
		t.Fatal("doctor record survived a failed provision")
	}
}

func TestDeleteDoctorRetiresAccount(t *testing.T) {
	repo := newFakeRepo()
	prov := &fakeProvisioner{}
	svc := newTestService(t, repo, prov)
	dep := seedDepartment(t, svc)

	if _, err := svc.CreateDoctor(context.Background(), authz.RoleAdmin, &Doctor{
		ID: "101", FirstName: "Ana", LastName: "Ruiz", DepartmentID: dep.ID,
	}); err != nil {
		t.Fatalf("CreateDoctor: %v", err)
	}
	if err := svc.DeleteDoctor(context.Background(), authz.RoleAdmin, "101"); err != nil {
		t.Fatalf("DeleteDoctor: %v", err)
	}
	if len(prov.deleted) != 1 || prov.deleted[0] != "101" {
		t.Fatalf("provisioner deletions: %v", prov.deleted)
	}
}

func TestCreatePatientValidatesBirthDate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeProvisioner{})

	_, err := svc.CreatePatient(context.Background(), authz.RoleAdmin, &Patient{
		ID: "7", FirstName: "Iva", LastName: "Petrova", BirthDate: Date{1987, 2, 30},
	})
	if !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("want ErrInvalidDate, got %v", err)
	}
	if len(repo.patients) != 0 {
		t.Fatal("invalid patient reached the repository")
	}
}

func TestRolePermissions(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeProvisioner{})

	// Viewer reads but cannot write.
	if _, _, err := svc.ListClinics(context.Background(), authz.RoleViewer, 50, 0); err != nil {
		t.Fatalf("viewer list: %v", err)
	}
	if err := svc.CreateClinic(context.Background(), authz.RoleViewer, &Clinic{Name: "X"}); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Fatalf("viewer create: want ErrPermissionDenied, got %v", err)
	}

	// Doctors and patients stay out of the records entirely.
	for _, role := range []authz.Role{authz.RoleDoctor, authz.RolePatient} {
		if _, _, err := svc.ListClinics(context.Background(), role, 50, 0); !errors.Is(err, authz.ErrPermissionDenied) {
			t.Fatalf("%s list: want ErrPermissionDenied, got %v", role, err)
		}
	}
}

func TestAssignPatientMovesEdge(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeProvisioner{})
	dep := seedDepartment(t, svc)

	for _, id := range []string{"1", "2"} {
		if _, err := svc.CreateDoctor(context.Background(), authz.RoleAdmin, &Doctor{
			ID: id, FirstName: "Doc", LastName: id, DepartmentID: dep.ID,
		}); err != nil {
			t.Fatalf("CreateDoctor %s: %v", id, err)
		}
	}
	if _, err := svc.CreatePatient(context.Background(), authz.RoleAdmin, &Patient{
		ID: "7", FirstName: "Iva", LastName: "Petrova", BirthDate: Date{1987, 3, 5}, DoctorID: "1",
	}); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	if err := svc.AssignPatient(context.Background(), authz.RoleAdmin, "7", "2"); err != nil {
		t.Fatalf("AssignPatient: %v", err)
	}
	second, err := repo.AssignedPatients(context.Background(), "2")
	if err != nil || len(second) != 1 || second[0] != "7" {
		t.Fatalf("doctor 2 assignments: %v %v", second, err)
	}
	first, err := repo.AssignedPatients(context.Background(), "1")
	if err != nil || len(first) != 0 {
		t.Fatalf("doctor 1 should have lost the patient: %v %v", first, err)
	}
}

func TestAttachObservationFileRollsBackOnLinkFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, &fakeProvisioner{})
	dir := t.TempDir()
	files, err := filestore.NewDirStore(dir)
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	repo.failSetFile = errors.New("graph write failed")
	svc = NewService(repo, &fakeProvisioner{}, files, zerolog.Nop())

	_, err = svc.AttachObservationFile(context.Background(), authz.RoleAdmin, "obs1", "x.png", strings.NewReader("img"))
	if err == nil {
		t.Fatal("expected link failure to propagate")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("orphaned file left behind: %v", entries)
	}
}
