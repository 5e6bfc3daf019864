package models

import (
	"strings"
	"time"
)

// MeetingTime is one weekly meeting of a section: a set of days plus a
// [start, end) window in minutes since midnight. Days is stored as a
// comma-separated list of MON..SUN tokens.
type MeetingTime struct {
	ID           string `db:"id" json:"id"`
	SectionID    string `db:"section_id" json:"section_id"`
	Days         string `db:"days" json:"days"`
	StartMinutes int    `db:"start_minutes" json:"start_minutes"`
	EndMinutes   int    `db:"end_minutes" json:"end_minutes"`
	Room         string `db:"room" json:"room"`
}

// DayList splits the stored day set into individual day tokens.
func (m MeetingTime) DayList() []string {
	if m.Days == "" {
		return nil
	}
	parts := strings.Split(m.Days, ",")
	days := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			days = append(days, strings.ToUpper(trimmed))
		}
	}
	return days
}

// Section is one offering of a course within a term. Enrollment and waitlist
// counters live on the row and are mutated only inside the coordinator's
// transaction scope.
type Section struct {
	ID                string    `db:"id" json:"id"`
	CourseID          string    `db:"course_id" json:"course_id"`
	TermID            string    `db:"term_id" json:"term_id"`
	SectionNumber     string    `db:"section_number" json:"section_number"`
	MaxEnrollment     int       `db:"max_enrollment" json:"max_enrollment"`
	CurrentEnrollment int       `db:"current_enrollment" json:"current_enrollment"`
	WaitlistMax       int       `db:"waitlist_max" json:"waitlist_max"`
	WaitlistCurrent   int       `db:"waitlist_current" json:"waitlist_current"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`

	Meetings []MeetingTime `json:"meetings,omitempty"`
}

// SeatsRemaining returns the open-seat count, never negative (override
// enrollments can push current past max).
func (s Section) SeatsRemaining() int {
	remaining := s.MaxEnrollment - s.CurrentEnrollment
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SectionDetail enriches Section with course and term context.
type SectionDetail struct {
	Section
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	TermName    string `db:"term_name" json:"term_name"`
}

// SectionFilter provides filters for listing sections.
type SectionFilter struct {
	TermID    string
	CourseID  string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
