package clinical

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/clinicore/clinicore/internal/platform/storage"
)

// GraphRepo implements Repository against Neo4j. Driver and result failures
// are wrapped as storage.ErrUnavailable so callers can tell a graph outage
// from a missing record.
type GraphRepo struct {
	driver neo4j.DriverWithContext
}

func NewGraphRepo(driver neo4j.DriverWithContext) *GraphRepo {
	return &GraphRepo{driver: driver}
}

func (r *GraphRepo) read(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
}

func (r *GraphRepo) write(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

// resultErr wraps a driver-side iteration failure as a storage outage.
func resultErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: reading result: %v", storage.ErrUnavailable, err)
}

func strVal(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func intVal(rec *neo4j.Record, key string) int {
	v, _ := rec.Get(key)
	if n, ok := v.(int64); ok {
		return int(n)
	}
	return 0
}

// count runs a counting query and returns the single total column.
func (r *GraphRepo) count(ctx context.Context, query string, params map[string]any) (int, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return 0, fmt.Errorf("%w: counting records: %v", storage.ErrUnavailable, err)
	}
	if result.Next(ctx) {
		return intVal(result.Record(), "total"), nil
	}
	return 0, resultErr(result.Err())
}

// -- Clinic --

func (r *GraphRepo) CreateClinic(ctx context.Context, c *Clinic) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		CREATE (c:Clinic {cli_id: $id, name: $name, address: $address})`,
		map[string]any{"id": c.ID, "name": c.Name, "address": c.Address})
	if err != nil {
		return fmt.Errorf("%w: creating clinic: %v", storage.ErrUnavailable, err)
	}
	return nil
}

func (r *GraphRepo) GetClinic(ctx context.Context, id string) (*Clinic, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (c:Clinic {cli_id: $id})
		RETURN c.cli_id AS id, c.name AS name, c.address AS address`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching clinic: %v", storage.ErrUnavailable, err)
	}
	if result.Next(ctx) {
		rec := result.Record()
		return &Clinic{ID: strVal(rec, "id"), Name: strVal(rec, "name"), Address: strVal(rec, "address")}, nil
	}
	if err := result.Err(); err != nil {
		return nil, resultErr(err)
	}
	return nil, ErrNotFound
}

func (r *GraphRepo) UpdateClinic(ctx context.Context, c *Clinic) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (c:Clinic {cli_id: $id})
		SET c.name = $name, c.address = $address
		RETURN c.cli_id AS id`,
		map[string]any{"id": c.ID, "name": c.Name, "address": c.Address})
	if err != nil {
		return fmt.Errorf("%w: updating clinic: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) DeleteClinic(ctx context.Context, id string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	// Departments fall with their clinic; doctors survive and must be
	// deleted through their own operation so account cleanup runs.
	result, err := session.Run(ctx, `
		MATCH (c:Clinic {cli_id: $id})
		OPTIONAL MATCH (d:Department)-[:BELONGS_TO]->(c)
		DETACH DELETE d, c
		RETURN count(*) AS total`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("%w: deleting clinic: %v", storage.ErrUnavailable, err)
	}
	return requireDeleted(ctx, result)
}

func (r *GraphRepo) ListClinics(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	total, err := r.count(ctx, `MATCH (c:Clinic) RETURN count(c) AS total`, nil)
	if err != nil {
		return nil, 0, err
	}
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (c:Clinic)
		RETURN c.cli_id AS id, c.name AS name, c.address AS address
		ORDER BY c.name SKIP $offset LIMIT $limit`,
		map[string]any{"offset": offset, "limit": limit})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing clinics: %v", storage.ErrUnavailable, err)
	}
	var clinics []*Clinic
	for result.Next(ctx) {
		rec := result.Record()
		clinics = append(clinics, &Clinic{ID: strVal(rec, "id"), Name: strVal(rec, "name"), Address: strVal(rec, "address")})
	}
	return clinics, total, resultErr(result.Err())
}

// -- Department --

func (r *GraphRepo) CreateDepartment(ctx context.Context, d *Department) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (c:Clinic {cli_id: $clinicID})
		CREATE (d:Department {dept_id: $id, name: $name})-[:BELONGS_TO]->(c)
		RETURN d.dept_id AS id`,
		map[string]any{"id": d.ID, "name": d.Name, "clinicID": d.ClinicID})
	if err != nil {
		return fmt.Errorf("%w: creating department: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) GetDepartment(ctx context.Context, id string) (*Department, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Department {dept_id: $id})-[:BELONGS_TO]->(c:Clinic)
		RETURN d.dept_id AS id, d.name AS name, c.cli_id AS clinic_id`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching department: %v", storage.ErrUnavailable, err)
	}
	if result.Next(ctx) {
		rec := result.Record()
		return &Department{ID: strVal(rec, "id"), Name: strVal(rec, "name"), ClinicID: strVal(rec, "clinic_id")}, nil
	}
	if err := result.Err(); err != nil {
		return nil, resultErr(err)
	}
	return nil, ErrNotFound
}

func (r *GraphRepo) UpdateDepartment(ctx context.Context, d *Department) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Department {dept_id: $id})
		SET d.name = $name
		RETURN d.dept_id AS id`,
		map[string]any{"id": d.ID, "name": d.Name})
	if err != nil {
		return fmt.Errorf("%w: updating department: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) DeleteDepartment(ctx context.Context, id string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Department {dept_id: $id})
		DETACH DELETE d
		RETURN count(*) AS total`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("%w: deleting department: %v", storage.ErrUnavailable, err)
	}
	return requireDeleted(ctx, result)
}

func (r *GraphRepo) ListDepartmentsByClinic(ctx context.Context, clinicID string, limit, offset int) ([]*Department, int, error) {
	params := map[string]any{"clinicID": clinicID}
	total, err := r.count(ctx, `
		MATCH (d:Department)-[:BELONGS_TO]->(:Clinic {cli_id: $clinicID})
		RETURN count(d) AS total`, params)
	if err != nil {
		return nil, 0, err
	}
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Department)-[:BELONGS_TO]->(c:Clinic {cli_id: $clinicID})
		RETURN d.dept_id AS id, d.name AS name, c.cli_id AS clinic_id
		ORDER BY d.name SKIP $offset LIMIT $limit`,
		map[string]any{"clinicID": clinicID, "offset": offset, "limit": limit})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing departments: %v", storage.ErrUnavailable, err)
	}
	var departments []*Department
	for result.Next(ctx) {
		rec := result.Record()
		departments = append(departments, &Department{ID: strVal(rec, "id"), Name: strVal(rec, "name"), ClinicID: strVal(rec, "clinic_id")})
	}
	return departments, total, resultErr(result.Err())
}

// -- Doctor --

func (r *GraphRepo) CreateDoctor(ctx context.Context, d *Doctor) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (dep:Department {dept_id: $deptID})
		CREATE (d:Doctor {doctor_ID: $id, first_name: $first, last_name: $last, specialty: $specialty})-[:WORKS_IN]->(dep)
		RETURN d.doctor_ID AS id`,
		map[string]any{"id": d.ID, "first": d.FirstName, "last": d.LastName, "specialty": d.Specialty, "deptID": d.DepartmentID})
	if err != nil {
		return fmt.Errorf("%w: creating doctor: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func scanDoctor(rec *neo4j.Record) *Doctor {
	return &Doctor{
		ID:           strVal(rec, "id"),
		FirstName:    strVal(rec, "first_name"),
		LastName:     strVal(rec, "last_name"),
		Specialty:    strVal(rec, "specialty"),
		DepartmentID: strVal(rec, "department_id"),
	}
}

func (r *GraphRepo) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Doctor {doctor_ID: $id})
		OPTIONAL MATCH (d)-[:WORKS_IN]->(dep:Department)
		RETURN d.doctor_ID AS id, d.first_name AS first_name, d.last_name AS last_name,
		       d.specialty AS specialty, dep.dept_id AS department_id`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching doctor: %v", storage.ErrUnavailable, err)
	}
	if result.Next(ctx) {
		return scanDoctor(result.Record()), nil
	}
	if err := result.Err(); err != nil {
		return nil, resultErr(err)
	}
	return nil, ErrNotFound
}

func (r *GraphRepo) UpdateDoctor(ctx context.Context, d *Doctor) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Doctor {doctor_ID: $id})
		SET d.first_name = $first, d.last_name = $last, d.specialty = $specialty
		WITH d
		OPTIONAL MATCH (d)-[w:WORKS_IN]->(:Department)
		DELETE w
		WITH d
		MATCH (dep:Department {dept_id: $deptID})
		CREATE (d)-[:WORKS_IN]->(dep)
		RETURN d.doctor_ID AS id`,
		map[string]any{"id": d.ID, "first": d.FirstName, "last": d.LastName, "specialty": d.Specialty, "deptID": d.DepartmentID})
	if err != nil {
		return fmt.Errorf("%w: updating doctor: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) DeleteDoctor(ctx context.Context, id string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Doctor {doctor_ID: $id})
		DETACH DELETE d
		RETURN count(*) AS total`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("%w: deleting doctor: %v", storage.ErrUnavailable, err)
	}
	return requireDeleted(ctx, result)
}

func (r *GraphRepo) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	total, err := r.count(ctx, `MATCH (d:Doctor) RETURN count(d) AS total`, nil)
	if err != nil {
		return nil, 0, err
	}
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Doctor)
		OPTIONAL MATCH (d)-[:WORKS_IN]->(dep:Department)
		RETURN d.doctor_ID AS id, d.first_name AS first_name, d.last_name AS last_name,
		       d.specialty AS specialty, dep.dept_id AS department_id
		ORDER BY d.last_name, d.first_name SKIP $offset LIMIT $limit`,
		map[string]any{"offset": offset, "limit": limit})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing doctors: %v", storage.ErrUnavailable, err)
	}
	var doctors []*Doctor
	for result.Next(ctx) {
		doctors = append(doctors, scanDoctor(result.Record()))
	}
	return doctors, total, resultErr(result.Err())
}

// -- Patient --

func (r *GraphRepo) CreatePatient(ctx context.Context, p *Patient) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	if p.DoctorID == "" {
		_, err := session.Run(ctx, `
			CREATE (:Patient {patient_ID: $id, first_name: $first, last_name: $last,
			        birth_year: $year, birth_month: $month, birth_day: $day})`,
			patientParams(p))
		if err != nil {
			return fmt.Errorf("%w: creating patient: %v", storage.ErrUnavailable, err)
		}
		return nil
	}
	result, err := session.Run(ctx, `
		MATCH (d:Doctor {doctor_ID: $doctorID})
		CREATE (p:Patient {patient_ID: $id, first_name: $first, last_name: $last,
		        birth_year: $year, birth_month: $month, birth_day: $day})-[:ASSIGNED_TO]->(d)
		RETURN p.patient_ID AS id`,
		patientParams(p))
	if err != nil {
		return fmt.Errorf("%w: creating patient: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func patientParams(p *Patient) map[string]any {
	return map[string]any{
		"id": p.ID, "first": p.FirstName, "last": p.LastName,
		"year": p.BirthDate.Year, "month": p.BirthDate.Month, "day": p.BirthDate.Day,
		"doctorID": p.DoctorID,
	}
}

func scanPatient(rec *neo4j.Record) *Patient {
	return &Patient{
		ID:        strVal(rec, "id"),
		FirstName: strVal(rec, "first_name"),
		LastName:  strVal(rec, "last_name"),
		BirthDate: Date{Year: intVal(rec, "birth_year"), Month: intVal(rec, "birth_month"), Day: intVal(rec, "birth_day")},
		DoctorID:  strVal(rec, "doctor_id"),
	}
}

const patientReturn = `
	RETURN p.patient_ID AS id, p.first_name AS first_name, p.last_name AS last_name,
	       p.birth_year AS birth_year, p.birth_month AS birth_month, p.birth_day AS birth_day,
	       d.doctor_ID AS doctor_id`

func (r *GraphRepo) GetPatient(ctx context.Context, id string) (*Patient, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (p:Patient {patient_ID: $id})
		OPTIONAL MATCH (p)-[:ASSIGNED_TO]->(d:Doctor)`+patientReturn,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching patient: %v", storage.ErrUnavailable, err)
	}
	if result.Next(ctx) {
		return scanPatient(result.Record()), nil
	}
	if err := result.Err(); err != nil {
		return nil, resultErr(err)
	}
	return nil, ErrNotFound
}

func (r *GraphRepo) UpdatePatient(ctx context.Context, p *Patient) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (p:Patient {patient_ID: $id})
		SET p.first_name = $first, p.last_name = $last,
		    p.birth_year = $year, p.birth_month = $month, p.birth_day = $day
		RETURN p.patient_ID AS id`,
		patientParams(p))
	if err != nil {
		return fmt.Errorf("%w: updating patient: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) DeletePatient(ctx context.Context, id string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (p:Patient {patient_ID: $id})
		DETACH DELETE p
		RETURN count(*) AS total`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("%w: deleting patient: %v", storage.ErrUnavailable, err)
	}
	return requireDeleted(ctx, result)
}

func (r *GraphRepo) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	total, err := r.count(ctx, `MATCH (p:Patient) RETURN count(p) AS total`, nil)
	if err != nil {
		return nil, 0, err
	}
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (p:Patient)
		OPTIONAL MATCH (p)-[:ASSIGNED_TO]->(d:Doctor)`+patientReturn+`
		ORDER BY p.last_name, p.first_name SKIP $offset LIMIT $limit`,
		map[string]any{"offset": offset, "limit": limit})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing patients: %v", storage.ErrUnavailable, err)
	}
	var patients []*Patient
	for result.Next(ctx) {
		patients = append(patients, scanPatient(result.Record()))
	}
	return patients, total, resultErr(result.Err())
}

// AssignPatient replaces the patient's assignment edge; empty doctorID only
// clears it.
func (r *GraphRepo) AssignPatient(ctx context.Context, patientID, doctorID string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	if doctorID == "" {
		result, err := session.Run(ctx, `
			MATCH (p:Patient {patient_ID: $pid})
			OPTIONAL MATCH (p)-[a:ASSIGNED_TO]->(:Doctor)
			DELETE a
			RETURN p.patient_ID AS id`,
			map[string]any{"pid": patientID})
		if err != nil {
			return fmt.Errorf("%w: clearing assignment: %v", storage.ErrUnavailable, err)
		}
		return requireRecord(ctx, result)
	}
	result, err := session.Run(ctx, `
		MATCH (p:Patient {patient_ID: $pid})
		OPTIONAL MATCH (p)-[a:ASSIGNED_TO]->(:Doctor)
		DELETE a
		WITH p
		MATCH (d:Doctor {doctor_ID: $did})
		CREATE (p)-[:ASSIGNED_TO]->(d)
		RETURN p.patient_ID AS id`,
		map[string]any{"pid": patientID, "did": doctorID})
	if err != nil {
		return fmt.Errorf("%w: assigning patient: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) AssignedPatients(ctx context.Context, doctorID string) ([]string, error) {
	return r.ids(ctx, `
		MATCH (p:Patient)-[:ASSIGNED_TO]->(:Doctor {doctor_ID: $id})
		RETURN p.patient_ID AS id`, doctorID)
}

func (r *GraphRepo) AssignedDoctors(ctx context.Context, patientID string) ([]string, error) {
	return r.ids(ctx, `
		MATCH (:Patient {patient_ID: $id})-[:ASSIGNED_TO]->(d:Doctor)
		RETURN d.doctor_ID AS id`, patientID)
}

func (r *GraphRepo) ids(ctx context.Context, query, id string) ([]string, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: walking assignments: %v", storage.ErrUnavailable, err)
	}
	var out []string
	for result.Next(ctx) {
		out = append(out, strVal(result.Record(), "id"))
	}
	return out, resultErr(result.Err())
}

// -- Appointment --

func (r *GraphRepo) CreateAppointment(ctx context.Context, a *Appointment) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (p:Patient {patient_ID: $pid}), (d:Doctor {doctor_ID: $did})
		CREATE (a:Appointment {appoint_id: $id, year: $year, month: $month, day: $day, purpose: $purpose}),
		       (a)-[:PATIENT]->(p), (a)-[:DOCTOR]->(d)
		RETURN a.appoint_id AS id`,
		map[string]any{
			"id": a.ID, "pid": a.PatientID, "did": a.DoctorID,
			"year": a.Date.Year, "month": a.Date.Month, "day": a.Date.Day, "purpose": a.Purpose,
		})
	if err != nil {
		return fmt.Errorf("%w: creating appointment: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func scanAppointment(rec *neo4j.Record) *Appointment {
	return &Appointment{
		ID:        strVal(rec, "id"),
		PatientID: strVal(rec, "patient_id"),
		DoctorID:  strVal(rec, "doctor_id"),
		Date:      Date{Year: intVal(rec, "year"), Month: intVal(rec, "month"), Day: intVal(rec, "day")},
		Purpose:   strVal(rec, "purpose"),
	}
}

const appointmentReturn = `
	RETURN a.appoint_id AS id, a.year AS year, a.month AS month, a.day AS day, a.purpose AS purpose,
	       p.patient_ID AS patient_id, d.doctor_ID AS doctor_id`

func (r *GraphRepo) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Appointment {appoint_id: $id})
		OPTIONAL MATCH (a)-[:PATIENT]->(p:Patient)
		OPTIONAL MATCH (a)-[:DOCTOR]->(d:Doctor)`+appointmentReturn,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching appointment: %v", storage.ErrUnavailable, err)
	}
	if result.Next(ctx) {
		return scanAppointment(result.Record()), nil
	}
	if err := result.Err(); err != nil {
		return nil, resultErr(err)
	}
	return nil, ErrNotFound
}

func (r *GraphRepo) UpdateAppointment(ctx context.Context, a *Appointment) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Appointment {appoint_id: $id})
		SET a.year = $year, a.month = $month, a.day = $day, a.purpose = $purpose
		RETURN a.appoint_id AS id`,
		map[string]any{"id": a.ID, "year": a.Date.Year, "month": a.Date.Month, "day": a.Date.Day, "purpose": a.Purpose})
	if err != nil {
		return fmt.Errorf("%w: updating appointment: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) DeleteAppointment(ctx context.Context, id string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Appointment {appoint_id: $id})
		DETACH DELETE a
		RETURN count(*) AS total`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("%w: deleting appointment: %v", storage.ErrUnavailable, err)
	}
	return requireDeleted(ctx, result)
}

func (r *GraphRepo) ListAppointmentsByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Appointment, int, error) {
	return r.listAppointments(ctx, `(a)-[:PATIENT]->(:Patient {patient_ID: $party})`, patientID, limit, offset)
}

func (r *GraphRepo) ListAppointmentsByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]*Appointment, int, error) {
	return r.listAppointments(ctx, `(a)-[:DOCTOR]->(:Doctor {doctor_ID: $party})`, doctorID, limit, offset)
}

func (r *GraphRepo) listAppointments(ctx context.Context, partyMatch, party string, limit, offset int) ([]*Appointment, int, error) {
	total, err := r.count(ctx, `
		MATCH (a:Appointment) MATCH `+partyMatch+`
		RETURN count(a) AS total`,
		map[string]any{"party": party})
	if err != nil {
		return nil, 0, err
	}
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Appointment) MATCH `+partyMatch+`
		OPTIONAL MATCH (a)-[:PATIENT]->(p:Patient)
		OPTIONAL MATCH (a)-[:DOCTOR]->(d:Doctor)`+appointmentReturn+`
		ORDER BY a.year, a.month, a.day SKIP $offset LIMIT $limit`,
		map[string]any{"party": party, "offset": offset, "limit": limit})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: listing appointments: %v", storage.ErrUnavailable, err)
	}
	var appointments []*Appointment
	for result.Next(ctx) {
		appointments = append(appointments, scanAppointment(result.Record()))
	}
	return appointments, total, resultErr(result.Err())
}

// -- Observation --

func (r *GraphRepo) CreateObservation(ctx context.Context, o *Observation) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Appointment {appoint_id: $aid})
		CREATE (o:Observation {obser_id: $id, year: $year, month: $month, day: $day, description: $description})-[:OF_APPOINTMENT]->(a)
		RETURN o.obser_id AS id`,
		map[string]any{
			"id": o.ID, "aid": o.AppointmentID,
			"year": o.Date.Year, "month": o.Date.Month, "day": o.Date.Day, "description": o.Description,
		})
	if err != nil {
		return fmt.Errorf("%w: creating observation: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func scanObservation(rec *neo4j.Record) *Observation {
	return &Observation{
		ID:            strVal(rec, "id"),
		AppointmentID: strVal(rec, "appointment_id"),
		Date:          Date{Year: intVal(rec, "year"), Month: intVal(rec, "month"), Day: intVal(rec, "day")},
		Description:   strVal(rec, "description"),
		FileRef:       strVal(rec, "file_ref"),
		FileName:      strVal(rec, "file_name"),
	}
}

const observationReturn = `
	RETURN o.obser_id AS id, o.year AS year, o.month AS month, o.day AS day,
	       o.description AS description, o.file_ref AS file_ref, o.file_name AS file_name,
	       a.appoint_id AS appointment_id`

func (r *GraphRepo) GetObservation(ctx context.Context, id string) (*Observation, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (o:Observation {obser_id: $id})
		OPTIONAL MATCH (o)-[:OF_APPOINTMENT]->(a:Appointment)`+observationReturn,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching observation: %v", storage.ErrUnavailable, err)
	}
	if result.Next(ctx) {
		return scanObservation(result.Record()), nil
	}
	if err := result.Err(); err != nil {
		return nil, resultErr(err)
	}
	return nil, ErrNotFound
}

func (r *GraphRepo) UpdateObservation(ctx context.Context, o *Observation) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (o:Observation {obser_id: $id})
		SET o.year = $year, o.month = $month, o.day = $day, o.description = $description
		RETURN o.obser_id AS id`,
		map[string]any{"id": o.ID, "year": o.Date.Year, "month": o.Date.Month, "day": o.Date.Day, "description": o.Description})
	if err != nil {
		return fmt.Errorf("%w: updating observation: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) DeleteObservation(ctx context.Context, id string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (o:Observation {obser_id: $id})
		OPTIONAL MATCH (b:Blob)-[:FILE]->(o)
		DETACH DELETE b, o
		RETURN count(*) AS total`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("%w: deleting observation: %v", storage.ErrUnavailable, err)
	}
	return requireDeleted(ctx, result)
}

func (r *GraphRepo) ListObservationsByAppointment(ctx context.Context, appointmentID string) ([]*Observation, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (o:Observation)-[:OF_APPOINTMENT]->(a:Appointment {appoint_id: $aid})`+observationReturn+`
		ORDER BY o.year, o.month, o.day`,
		map[string]any{"aid": appointmentID})
	if err != nil {
		return nil, fmt.Errorf("%w: listing observations: %v", storage.ErrUnavailable, err)
	}
	var observations []*Observation
	for result.Next(ctx) {
		observations = append(observations, scanObservation(result.Record()))
	}
	return observations, resultErr(result.Err())
}

func (r *GraphRepo) SetObservationFile(ctx context.Context, id, ref, name string) error {
	return r.setFile(ctx, `
		MATCH (o:Observation {obser_id: $id})
		SET o.file_ref = $ref, o.file_name = $name
		MERGE (b:Blob {ref: $ref})
		SET b.name = $name
		MERGE (b)-[:FILE]->(o)
		RETURN o.obser_id AS id`, id, ref, name)
}

// -- Diagnosis --

func (r *GraphRepo) CreateDiagnosis(ctx context.Context, d *Diagnosis) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (o:Observation {obser_id: $oid})
		CREATE (g:Diagnosis {diagn_id: $id, description: $description})-[:OF_OBSERVATION]->(o)
		RETURN g.diagn_id AS id`,
		map[string]any{"id": d.ID, "oid": d.ObservationID, "description": d.Description})
	if err != nil {
		return fmt.Errorf("%w: creating diagnosis: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func scanDiagnosis(rec *neo4j.Record) *Diagnosis {
	return &Diagnosis{
		ID:            strVal(rec, "id"),
		ObservationID: strVal(rec, "observation_id"),
		Description:   strVal(rec, "description"),
		FileRef:       strVal(rec, "file_ref"),
		FileName:      strVal(rec, "file_name"),
	}
}

const diagnosisReturn = `
	RETURN g.diagn_id AS id, g.description AS description,
	       g.file_ref AS file_ref, g.file_name AS file_name,
	       o.obser_id AS observation_id`

func (r *GraphRepo) GetDiagnosis(ctx context.Context, id string) (*Diagnosis, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (g:Diagnosis {diagn_id: $id})
		OPTIONAL MATCH (g)-[:OF_OBSERVATION]->(o:Observation)`+diagnosisReturn,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching diagnosis: %v", storage.ErrUnavailable, err)
	}
	if result.Next(ctx) {
		return scanDiagnosis(result.Record()), nil
	}
	if err := result.Err(); err != nil {
		return nil, resultErr(err)
	}
	return nil, ErrNotFound
}

func (r *GraphRepo) UpdateDiagnosis(ctx context.Context, d *Diagnosis) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (g:Diagnosis {diagn_id: $id})
		SET g.description = $description
		RETURN g.diagn_id AS id`,
		map[string]any{"id": d.ID, "description": d.Description})
	if err != nil {
		return fmt.Errorf("%w: updating diagnosis: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

func (r *GraphRepo) DeleteDiagnosis(ctx context.Context, id string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (g:Diagnosis {diagn_id: $id})
		OPTIONAL MATCH (b:Blob)-[:FILE]->(g)
		DETACH DELETE b, g
		RETURN count(*) AS total`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("%w: deleting diagnosis: %v", storage.ErrUnavailable, err)
	}
	return requireDeleted(ctx, result)
}

func (r *GraphRepo) ListDiagnosesByObservation(ctx context.Context, observationID string) ([]*Diagnosis, error) {
	session := r.read(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (g:Diagnosis)-[:OF_OBSERVATION]->(o:Observation {obser_id: $oid})`+diagnosisReturn,
		map[string]any{"oid": observationID})
	if err != nil {
		return nil, fmt.Errorf("%w: listing diagnoses: %v", storage.ErrUnavailable, err)
	}
	var diagnoses []*Diagnosis
	for result.Next(ctx) {
		diagnoses = append(diagnoses, scanDiagnosis(result.Record()))
	}
	return diagnoses, resultErr(result.Err())
}

func (r *GraphRepo) SetDiagnosisFile(ctx context.Context, id, ref, name string) error {
	return r.setFile(ctx, `
		MATCH (g:Diagnosis {diagn_id: $id})
		SET g.file_ref = $ref, g.file_name = $name
		MERGE (b:Blob {ref: $ref})
		SET b.name = $name
		MERGE (b)-[:FILE]->(g)
		RETURN g.diagn_id AS id`, id, ref, name)
}

func (r *GraphRepo) setFile(ctx context.Context, query, id, ref, name string) error {
	session := r.write(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, map[string]any{"id": id, "ref": ref, "name": name})
	if err != nil {
		return fmt.Errorf("%w: attaching file: %v", storage.ErrUnavailable, err)
	}
	return requireRecord(ctx, result)
}

// requireRecord consumes the result and maps an empty one to ErrNotFound;
// write queries RETURN a column from the matched node for exactly this.
func requireRecord(ctx context.Context, result neo4j.ResultWithContext) error {
	if result.Next(ctx) {
		return nil
	}
	if err := result.Err(); err != nil {
		return resultErr(err)
	}
	return ErrNotFound
}

// requireDeleted is requireRecord for delete queries, whose count(*)
// aggregate always yields one row. A zero total means nothing matched.
func requireDeleted(ctx context.Context, result neo4j.ResultWithContext) error {
	if result.Next(ctx) {
		if intVal(result.Record(), "total") == 0 {
			return ErrNotFound
		}
		return nil
	}
	if err := result.Err(); err != nil {
		return resultErr(err)
	}
	return ErrNotFound
}
