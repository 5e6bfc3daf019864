package models

import "time"

// TermType represents the type of academic term (e.g. semester, quarter).
type TermType string

const (
	TermTypeSemester TermType = "SEMESTER"
	TermTypeQuarter  TermType = "QUARTER"
	TermTypeSummer   TermType = "SUMMER"
)

// Term models an academic term with the calendar dates bounding which
// registration actions are legal.
type Term struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Type               TermType  `db:"type" json:"type"`
	AcademicYear       string    `db:"academic_year" json:"academic_year"`
	StartDate          time.Time `db:"start_date" json:"start_date"`
	EndDate            time.Time `db:"end_date" json:"end_date"`
	RegistrationStart  time.Time `db:"registration_start" json:"registration_start"`
	RegistrationEnd    time.Time `db:"registration_end" json:"registration_end"`
	AddDeadline        time.Time `db:"add_deadline" json:"add_deadline"`
	DropDeadline       time.Time `db:"drop_deadline" json:"drop_deadline"`
	WithdrawalDeadline time.Time `db:"withdrawal_deadline" json:"withdrawal_deadline"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// RegistrationOpenAt reports whether the registration window is open at the
// given instant.
func (t Term) RegistrationOpenAt(at time.Time) bool {
	return !at.Before(t.RegistrationStart) && !at.After(t.RegistrationEnd)
}
