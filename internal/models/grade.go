package models

import "time"

// RepeatPolicy selects which attempts of a repeated course count toward GPA.
type RepeatPolicy string

// Supported repeat policies.
const (
	// RepeatPolicyReplace keeps only the most recent graded attempt.
	RepeatPolicyReplace RepeatPolicy = "REPLACE"
	// RepeatPolicyHighest keeps the attempt with the highest grade points.
	RepeatPolicyHighest RepeatPolicy = "HIGHEST"
	// RepeatPolicyAverage includes every attempt. True per-course averaging
	// of grade points is a documented gap; this behaves like ALL_COUNT.
	RepeatPolicyAverage RepeatPolicy = "AVERAGE"
	// RepeatPolicyAllCount includes every attempt.
	RepeatPolicyAllCount RepeatPolicy = "ALL_COUNT"
)

// Valid reports whether the policy is one of the supported values.
func (p RepeatPolicy) Valid() bool {
	switch p {
	case RepeatPolicyReplace, RepeatPolicyHighest, RepeatPolicyAverage, RepeatPolicyAllCount:
		return true
	}
	return false
}

// GradeDefinition maps a grade code to its points and accounting flags.
type GradeDefinition struct {
	ID               string   `db:"id" json:"id"`
	Code             string   `db:"code" json:"code"`
	Points           *float64 `db:"points" json:"points,omitempty"`
	CountInGpa       bool     `db:"count_in_gpa" json:"count_in_gpa"`
	EarnedCredits    bool     `db:"earned_credits" json:"earned_credits"`
	AttemptedCredits bool     `db:"attempted_credits" json:"attempted_credits"`
	IsIncomplete     bool     `db:"is_incomplete" json:"is_incomplete"`
	IsWithdrawal     bool     `db:"is_withdrawal" json:"is_withdrawal"`
}

// CourseAttempt is a read-only projection of a graded registration used as
// GPA input. AttemptedAt orders attempts of the same course chronologically.
type CourseAttempt struct {
	ID            string        `db:"id" json:"id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	CourseID      string        `db:"course_id" json:"course_id"`
	CourseCode    string        `db:"course_code" json:"course_code"`
	TermID        string        `db:"term_id" json:"term_id"`
	Credits       float64       `db:"credits" json:"credits"`
	GradeCode     *string       `db:"grade_code" json:"grade_code,omitempty"`
	GradePoints   *float64      `db:"grade_points" json:"grade_points,omitempty"`
	IncludeInGpa  bool          `db:"include_in_gpa" json:"include_in_gpa"`
	CreditsEarned bool          `db:"credits_earned" json:"credits_earned"`
	RepeatPolicy  *RepeatPolicy `db:"repeat_policy" json:"repeat_policy,omitempty"`
	AttemptedAt   time.Time     `db:"attempted_at" json:"attempted_at"`
}

// Graded reports whether a grade has been assigned to the attempt.
func (a CourseAttempt) Graded() bool {
	return a.GradeCode != nil && *a.GradeCode != ""
}

// GpaAttemptDetail carries one attempt's contribution to a GPA calculation.
// Excluded attempts are retained with the reason rather than dropped.
type GpaAttemptDetail struct {
	CourseAttempt
	Excluded       bool   `json:"excluded"`
	ExcludedReason string `json:"excluded_reason,omitempty"`
}

// GpaResult is the outcome of a GPA calculation over a set of attempts.
type GpaResult struct {
	AttemptedCredits float64            `json:"attempted_credits"`
	EarnedCredits    float64            `json:"earned_credits"`
	QualityPoints    float64            `json:"quality_points"`
	GpaCredits       float64            `json:"gpa_credits"`
	CumulativeGpa    *float64           `json:"cumulative_gpa,omitempty"`
	Details          []GpaAttemptDetail `json:"details,omitempty"`
}

// TransferCredit is externally supplied transfer work merged into cumulative
// GPA without running repeat-policy logic.
type TransferCredit struct {
	QualityPoints float64 `json:"quality_points"`
	GpaCredits    float64 `json:"gpa_credits"`
	EarnedCredits float64 `json:"earned_credits"`
}

// GpaSummary is the API-facing (and cached) GPA projection for a student.
type GpaSummary struct {
	StudentID    string               `json:"student_id"`
	Cumulative   GpaResult            `json:"cumulative"`
	ByTerm       map[string]GpaResult `json:"by_term,omitempty"`
	CalculatedAt time.Time            `json:"calculated_at"`
}
