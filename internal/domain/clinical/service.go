package clinical

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/authz"
	"github.com/clinicore/clinicore/internal/domain/credentials"
	"github.com/clinicore/clinicore/internal/platform/filestore"
	"github.com/clinicore/clinicore/internal/platform/storage"
)

// AccountProvisioner keeps accounts in lockstep with doctor and patient
// records.
type AccountProvisioner interface {
	OnPersonInserted(ctx context.Context, role authz.Role, personID string) (*credentials.Account, error)
	OnPersonDeleted(ctx context.Context, personID string) error
}

type Service struct {
	repo  Repository
	prov  AccountProvisioner
	files filestore.Store
	log   zerolog.Logger
}

func NewService(repo Repository, prov AccountProvisioner, files filestore.Store, log zerolog.Logger) *Service {
	return &Service{repo: repo, prov: prov, files: files, log: log}
}

// -- Clinic --

func (s *Service) CreateClinic(ctx context.Context, role authz.Role, c *Clinic) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if c.Name == "" {
		return fmt.Errorf("clinic name is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return s.repo.CreateClinic(ctx, c)
}

func (s *Service) GetClinic(ctx context.Context, role authz.Role, id string) (*Clinic, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.GetClinic(ctx, id)
}

func (s *Service) UpdateClinic(ctx context.Context, role authz.Role, c *Clinic) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if c.Name == "" {
		return fmt.Errorf("clinic name is required")
	}
	return s.repo.UpdateClinic(ctx, c)
}

func (s *Service) DeleteClinic(ctx context.Context, role authz.Role, id string) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	return s.repo.DeleteClinic(ctx, id)
}

func (s *Service) ListClinics(ctx context.Context, role authz.Role, limit, offset int) ([]*Clinic, int, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, 0, err
	}
	return s.repo.ListClinics(ctx, limit, offset)
}

// -- Department --

func (s *Service) CreateDepartment(ctx context.Context, role authz.Role, d *Department) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if d.Name == "" {
		return fmt.Errorf("department name is required")
	}
	if d.ClinicID == "" {
		return fmt.Errorf("clinic_id is required")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return s.repo.CreateDepartment(ctx, d)
}

func (s *Service) GetDepartment(ctx context.Context, role authz.Role, id string) (*Department, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.GetDepartment(ctx, id)
}

func (s *Service) UpdateDepartment(ctx context.Context, role authz.Role, d *Department) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if d.Name == "" {
		return fmt.Errorf("department name is required")
	}
	return s.repo.UpdateDepartment(ctx, d)
}

func (s *Service) DeleteDepartment(ctx context.Context, role authz.Role, id string) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	return s.repo.DeleteDepartment(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, role authz.Role, clinicID string, limit, offset int) ([]*Department, int, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, 0, err
	}
	return s.repo.ListDepartmentsByClinic(ctx, clinicID, limit, offset)
}

// -- Doctor --

// CreateDoctor inserts the record and provisions its login in one go. If
// provisioning conflicts with an existing account the record is rolled back
// and the insert fails.
func (s *Service) CreateDoctor(ctx context.Context, role authz.Role, d *Doctor) (*credentials.Account, error) {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return nil, err
	}
	if d.ID == "" {
		return nil, fmt.Errorf("doctor id is required")
	}
	if d.FirstName == "" || d.LastName == "" {
		return nil, fmt.Errorf("doctor name is required")
	}
	if d.DepartmentID == "" {
		return nil, fmt.Errorf("department_id is required")
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, err
	}
	account, err := s.prov.OnPersonInserted(ctx, authz.RoleDoctor, d.ID)
	if err != nil {
		if derr := s.repo.DeleteDoctor(ctx, d.ID); derr != nil {
			s.log.Error().Err(derr).Str("doctor_id", d.ID).Msg("rollback of doctor record failed")
		}
		return nil, err
	}
	return account, nil
}

func (s *Service) GetDoctor(ctx context.Context, role authz.Role, id string) (*Doctor, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.GetDoctor(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, role authz.Role, d *Doctor) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if d.FirstName == "" || d.LastName == "" {
		return fmt.Errorf("doctor name is required")
	}
	if d.DepartmentID == "" {
		return fmt.Errorf("department_id is required")
	}
	return s.repo.UpdateDoctor(ctx, d)
}

// DeleteDoctor removes the record and retires its account.
func (s *Service) DeleteDoctor(ctx context.Context, role authz.Role, id string) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if err := s.repo.DeleteDoctor(ctx, id); err != nil {
		return err
	}
	return s.prov.OnPersonDeleted(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, role authz.Role, limit, offset int) ([]*Doctor, int, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, 0, err
	}
	return s.repo.ListDoctors(ctx, limit, offset)
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, role authz.Role, p *Patient) (*credentials.Account, error) {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, fmt.Errorf("patient id is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, fmt.Errorf("patient name is required")
	}
	if err := p.BirthDate.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	account, err := s.prov.OnPersonInserted(ctx, authz.RolePatient, p.ID)
	if err != nil {
		if derr := s.repo.DeletePatient(ctx, p.ID); derr != nil {
			s.log.Error().Err(derr).Str("patient_id", p.ID).Msg("rollback of patient record failed")
		}
		return nil, err
	}
	return account, nil
}

func (s *Service) GetPatient(ctx context.Context, role authz.Role, id string) (*Patient, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.GetPatient(ctx, id)
}

// UpdatePatient rewrites the patient's fields and re-points the assignment
// edge at p.DoctorID.
func (s *Service) UpdatePatient(ctx context.Context, role authz.Role, p *Patient) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("patient name is required")
	}
	if err := p.BirthDate.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		return err
	}
	return s.repo.AssignPatient(ctx, p.ID, p.DoctorID)
}

func (s *Service) DeletePatient(ctx context.Context, role authz.Role, id string) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if err := s.repo.DeletePatient(ctx, id); err != nil {
		return err
	}
	return s.prov.OnPersonDeleted(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, role authz.Role, limit, offset int) ([]*Patient, int, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, 0, err
	}
	return s.repo.ListPatients(ctx, limit, offset)
}

func (s *Service) AssignPatient(ctx context.Context, role authz.Role, patientID, doctorID string) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	return s.repo.AssignPatient(ctx, patientID, doctorID)
}

// -- Appointment --

func (s *Service) CreateAppointment(ctx context.Context, role authz.Role, a *Appointment) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if a.PatientID == "" || a.DoctorID == "" {
		return fmt.Errorf("patient_id and doctor_id are required")
	}
	if err := a.Date.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return s.repo.CreateAppointment(ctx, a)
}

func (s *Service) GetAppointment(ctx context.Context, role authz.Role, id string) (*Appointment, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) UpdateAppointment(ctx context.Context, role authz.Role, a *Appointment) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if err := a.Date.Validate(); err != nil {
		return err
	}
	return s.repo.UpdateAppointment(ctx, a)
}

func (s *Service) DeleteAppointment(ctx context.Context, role authz.Role, id string) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	return s.repo.DeleteAppointment(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, role authz.Role, patientID string, limit, offset int) ([]*Appointment, int, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, 0, err
	}
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListAppointmentsByDoctor(ctx context.Context, role authz.Role, doctorID string, limit, offset int) ([]*Appointment, int, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, 0, err
	}
	return s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
}

// -- Observation --

func (s *Service) CreateObservation(ctx context.Context, role authz.Role, o *Observation) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if o.AppointmentID == "" {
		return fmt.Errorf("appointment_id is required")
	}
	if err := o.Date.Validate(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return s.repo.CreateObservation(ctx, o)
}

func (s *Service) GetObservation(ctx context.Context, role authz.Role, id string) (*Observation, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.GetObservation(ctx, id)
}

func (s *Service) UpdateObservation(ctx context.Context, role authz.Role, o *Observation) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if err := o.Date.Validate(); err != nil {
		return err
	}
	return s.repo.UpdateObservation(ctx, o)
}

func (s *Service) DeleteObservation(ctx context.Context, role authz.Role, id string) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	return s.repo.DeleteObservation(ctx, id)
}

func (s *Service) ListObservations(ctx context.Context, role authz.Role, appointmentID string) ([]*Observation, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.ListObservationsByAppointment(ctx, appointmentID)
}

// AttachObservationFile stores the file first and links it afterwards; a
// failed link removes the stored file again.
func (s *Service) AttachObservationFile(ctx context.Context, role authz.Role, id, fileName string, content io.Reader) (string, error) {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return "", err
	}
	return s.attach(ctx, id, fileName, content, s.repo.SetObservationFile)
}

// -- Diagnosis --

func (s *Service) CreateDiagnosis(ctx context.Context, role authz.Role, d *Diagnosis) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if d.ObservationID == "" {
		return fmt.Errorf("observation_id is required")
	}
	if d.Description == "" {
		return fmt.Errorf("description is required")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return s.repo.CreateDiagnosis(ctx, d)
}

func (s *Service) GetDiagnosis(ctx context.Context, role authz.Role, id string) (*Diagnosis, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.GetDiagnosis(ctx, id)
}

func (s *Service) UpdateDiagnosis(ctx context.Context, role authz.Role, d *Diagnosis) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	if d.Description == "" {
		return fmt.Errorf("description is required")
	}
	return s.repo.UpdateDiagnosis(ctx, d)
}

func (s *Service) DeleteDiagnosis(ctx context.Context, role authz.Role, id string) error {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return err
	}
	return s.repo.DeleteDiagnosis(ctx, id)
}

func (s *Service) ListDiagnoses(ctx context.Context, role authz.Role, observationID string) ([]*Diagnosis, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	return s.repo.ListDiagnosesByObservation(ctx, observationID)
}

func (s *Service) AttachDiagnosisFile(ctx context.Context, role authz.Role, id, fileName string, content io.Reader) (string, error) {
	if err := authz.Authorize(role, authz.OpClinicalWrite); err != nil {
		return "", err
	}
	return s.attach(ctx, id, fileName, content, s.repo.SetDiagnosisFile)
}

// OpenFile streams a record's attachment for viewing.
func (s *Service) OpenFile(ctx context.Context, role authz.Role, ref string) (io.ReadCloser, error) {
	if err := authz.Authorize(role, authz.OpClinicalRead); err != nil {
		return nil, err
	}
	rc, err := s.files.Open(ctx, ref)
	if errors.Is(err, filestore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening file: %v", storage.ErrUnavailable, err)
	}
	return rc, nil
}

func (s *Service) attach(ctx context.Context, id, fileName string, content io.Reader, link func(context.Context, string, string, string) error) (string, error) {
	ref, err := s.files.Save(ctx, fileName, content)
	if err != nil {
		return "", fmt.Errorf("%w: storing file: %v", storage.ErrUnavailable, err)
	}
	if err := link(ctx, id, ref, fileName); err != nil {
		if derr := s.files.Delete(ctx, ref); derr != nil {
			s.log.Error().Err(derr).Str("ref", ref).Msg("orphaned file not removed")
		}
		return "", err
	}
	return ref, nil
}
