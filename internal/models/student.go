package models

import "time"

// AcademicStanding buckets students for standing-based requisites and
// eligibility policies.
type AcademicStanding string

const (
	StandingGood      AcademicStanding = "GOOD"
	StandingWarning   AcademicStanding = "WARNING"
	StandingProbation AcademicStanding = "PROBATION"
	StandingSuspended AcademicStanding = "SUSPENDED"
)

// Student represents a student record. The cumulative_* columns are a cached
// projection of CourseAttempt history, recomputed on grade posting.
type Student struct {
	ID               string           `db:"id" json:"id"`
	StudentNumber    string           `db:"student_number" json:"student_number"`
	FullName         string           `db:"full_name" json:"full_name"`
	Standing         AcademicStanding `db:"standing" json:"standing"`
	Active           bool             `db:"active" json:"active"`
	AttemptedCredits float64          `db:"cumulative_attempted_credits" json:"attempted_credits"`
	EarnedCredits    float64          `db:"cumulative_earned_credits" json:"earned_credits"`
	QualityPoints    float64          `db:"cumulative_quality_points" json:"quality_points"`
	CumulativeGpa    *float64         `db:"cumulative_gpa" json:"cumulative_gpa,omitempty"`
	GpaCalculatedAt  *time.Time       `db:"gpa_calculated_at" json:"gpa_calculated_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// Hold flags a student record; registration paths refuse to proceed while a
// blocking hold is active.
type Hold struct {
	ID                 string     `db:"id" json:"id"`
	StudentID          string     `db:"student_id" json:"student_id"`
	Code               string     `db:"code" json:"code"`
	Reason             string     `db:"reason" json:"reason"`
	BlocksRegistration bool       `db:"blocks_registration" json:"blocks_registration"`
	PlacedAt           time.Time  `db:"placed_at" json:"placed_at"`
	ReleasedAt         *time.Time `db:"released_at" json:"released_at,omitempty"`
}
