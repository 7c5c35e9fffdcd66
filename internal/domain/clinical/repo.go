package clinical

import "context"

// Repository is the record graph. Write operations that MATCH a related
// node return ErrNotFound when it is missing.
type Repository interface {
	CreateClinic(ctx context.Context, c *Clinic) error
	GetClinic(ctx context.Context, id string) (*Clinic, error)
	UpdateClinic(ctx context.Context, c *Clinic) error
	// DeleteClinic removes the clinic and its departments; doctors are not
	// cascaded because their removal also retires accounts.
	DeleteClinic(ctx context.Context, id string) error
	ListClinics(ctx context.Context, limit, offset int) ([]*Clinic, int, error)

	CreateDepartment(ctx context.Context, d *Department) error
	GetDepartment(ctx context.Context, id string) (*Department, error)
	UpdateDepartment(ctx context.Context, d *Department) error
	DeleteDepartment(ctx context.Context, id string) error
	ListDepartmentsByClinic(ctx context.Context, clinicID string, limit, offset int) ([]*Department, int, error)

	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctor(ctx context.Context, id string) (*Doctor, error)
	UpdateDoctor(ctx context.Context, d *Doctor) error
	DeleteDoctor(ctx context.Context, id string) error
	ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error)

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id string) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error
	DeletePatient(ctx context.Context, id string) error
	ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// AssignPatient replaces the patient's assignment edge; an empty
	// doctorID removes it.
	AssignPatient(ctx context.Context, patientID, doctorID string) error
	// AssignedPatients and AssignedDoctors walk the assignment edges in
	// both directions; the contact resolver runs on these.
	AssignedPatients(ctx context.Context, doctorID string) ([]string, error)
	AssignedDoctors(ctx context.Context, patientID string) ([]string, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) error
	DeleteAppointment(ctx context.Context, id string) error
	ListAppointmentsByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Appointment, int, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]*Appointment, int, error)

	CreateObservation(ctx context.Context, o *Observation) error
	GetObservation(ctx context.Context, id string) (*Observation, error)
	UpdateObservation(ctx context.Context, o *Observation) error
	DeleteObservation(ctx context.Context, id string) error
	ListObservationsByAppointment(ctx context.Context, appointmentID string) ([]*Observation, error)
	SetObservationFile(ctx context.Context, id, ref, name string) error

	CreateDiagnosis(ctx context.Context, d *Diagnosis) error
	GetDiagnosis(ctx context.Context, id string) (*Diagnosis, error)
	UpdateDiagnosis(ctx context.Context, d *Diagnosis) error
	DeleteDiagnosis(ctx context.Context, id string) error
	ListDiagnosesByObservation(ctx context.Context, observationID string) ([]*Diagnosis, error)
	SetDiagnosisFile(ctx context.Context, id, ref, name string) error
}
