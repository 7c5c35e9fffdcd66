// Package clinical holds the clinic's record graph: clinics, departments,
// doctors, patients, appointments, observations and diagnoses, plus the
// assignment edges that drive messaging eligibility.
package clinical

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrInvalidDate is returned when a date's parts do not form a real
	// calendar date.
	ErrInvalidDate = errors.New("invalid date")
)

type Clinic struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

type Department struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClinicID string `json:"clinic_id"`
}

type Doctor struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Specialty    string `json:"specialty,omitempty"`
	DepartmentID string `json:"department_id"`
}

type Patient struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate Date   `json:"birth_date"`
	// DoctorID is the currently assigned doctor; empty when unassigned.
	DoctorID string `json:"doctor_id,omitempty"`
}

type Appointment struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      Date   `json:"date"`
	Purpose   string `json:"purpose,omitempty"`
}

type Observation struct {
	ID            string `json:"id"`
	AppointmentID string `json:"appointment_id"`
	Date          Date   `json:"date"`
	Description   string `json:"description"`
	FileRef       string `json:"file_ref,omitempty"`
	FileName      string `json:"file_name,omitempty"`
}

type Diagnosis struct {
	ID            string `json:"id"`
	ObservationID string `json:"observation_id"`
	Description   string `json:"description"`
	FileRef       string `json:"file_ref,omitempty"`
	FileName      string `json:"file_name,omitempty"`
}

// Date is a calendar date kept as explicit parts; records store dates this
// way rather than as timestamps.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Validate checks the parts form a real date. Years are bounded to keep
// obvious typos out of the records.
func (d Date) Validate() error {
	if d.Year < 1900 || d.Year > 3000 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidDate, d.Year)
	}
	if d.Month < 1 || d.Month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidDate, d.Month)
	}
	if d.Day < 1 || d.Day > daysIn(d.Year, d.Month) {
		return fmt.Errorf("%w: day %d out of range for %04d-%02d", ErrInvalidDate, d.Day, d.Year, d.Month)
	}
	return nil
}

func daysIn(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	default:
		if isLeap(year) {
			return 29
		}
		return 28
	}
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
