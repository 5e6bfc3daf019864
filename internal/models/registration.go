package models

import "time"

// RegistrationStatus represents the lifecycle of a registration.
type RegistrationStatus string

// Possible registration statuses.
const (
	RegistrationStatusRegistered RegistrationStatus = "REGISTERED"
	RegistrationStatusWaitlisted RegistrationStatus = "WAITLISTED"
	RegistrationStatusDropped    RegistrationStatus = "DROPPED"
	RegistrationStatusWithdrawn  RegistrationStatus = "WITHDRAWN"
	RegistrationStatusCompleted  RegistrationStatus = "COMPLETED"
)

// registrationTransitions is the table of legal status transitions. COMPLETED
// is terminal for enrollment purposes; dropped and withdrawn rows can be
// revived back to REGISTERED (re-enrollment).
var registrationTransitions = map[RegistrationStatus]map[RegistrationStatus]struct{}{
	RegistrationStatusRegistered: {
		RegistrationStatusDropped:   {},
		RegistrationStatusWithdrawn: {},
		RegistrationStatusCompleted: {},
	},
	RegistrationStatusWaitlisted: {
		RegistrationStatusRegistered: {},
		RegistrationStatusDropped:    {},
	},
	RegistrationStatusDropped: {
		RegistrationStatusRegistered: {},
	},
	RegistrationStatusWithdrawn: {
		RegistrationStatusRegistered: {},
	},
	RegistrationStatusCompleted: {},
}

// CanTransitionTo reports whether moving to next is a legal transition.
func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	allowed, ok := registrationTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// Active reports whether the status occupies the (student, section) pair for
// uniqueness purposes.
func (s RegistrationStatus) Active() bool {
	return s == RegistrationStatusRegistered || s == RegistrationStatusWaitlisted
}

// GradeMode describes how an attempt is graded.
type GradeMode string

const (
	GradeModeStandard  GradeMode = "STANDARD"
	GradeModePassFail  GradeMode = "PASS_FAIL"
	GradeModeAuditOnly GradeMode = "AUDIT"
)

// Registration is the core transactional entity: one (student, section)
// occupancy event sequence. Rows are never deleted; only the status moves.
type Registration struct {
	ID                 string             `db:"id" json:"id"`
	StudentID          string             `db:"student_id" json:"student_id"`
	SectionID          string             `db:"section_id" json:"section_id"`
	TermID             string             `db:"term_id" json:"term_id"`
	Status             RegistrationStatus `db:"status" json:"status"`
	CreditHours        float64            `db:"credit_hours" json:"credit_hours"`
	GradeMode          GradeMode          `db:"grade_mode" json:"grade_mode"`
	GradeCode          *string            `db:"grade_code" json:"grade_code,omitempty"`
	GradePoints        *float64           `db:"grade_points" json:"grade_points,omitempty"`
	CapacityOverride   bool               `db:"capacity_override" json:"capacity_override"`
	RequisiteOverride  bool               `db:"requisite_override" json:"requisite_override"`
	OverrideReason     *string            `db:"override_reason" json:"override_reason,omitempty"`
	OverrideBy         *string            `db:"override_by" json:"override_by,omitempty"`
	LastAttendanceDate *time.Time         `db:"last_attendance_date" json:"last_attendance_date,omitempty"`
	RegisteredAt       time.Time          `db:"registered_at" json:"registered_at"`
	StatusChangedAt    time.Time          `db:"status_changed_at" json:"status_changed_at"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// RegistrationDetail enriches Registration with section and course context.
type RegistrationDetail struct {
	Registration
	CourseCode    string `db:"course_code" json:"course_code"`
	CourseTitle   string `db:"course_title" json:"course_title"`
	SectionNumber string `db:"section_number" json:"section_number"`
	TermName      string `db:"term_name" json:"term_name"`
}

// WaitlistStatus represents the lifecycle of a waitlist entry.
type WaitlistStatus string

// Possible waitlist entry statuses.
const (
	WaitlistStatusWaiting  WaitlistStatus = "WAITING"
	WaitlistStatusRemoved  WaitlistStatus = "REMOVED"
	WaitlistStatusEnrolled WaitlistStatus = "ENROLLED"
)

// WaitlistEntry records a waitlist membership event. Positions are assigned
// monotonically per section and are not recompacted after removals, so the
// waiting sequence is strictly increasing but may be sparse.
type WaitlistEntry struct {
	ID        string         `db:"id" json:"id"`
	SectionID string         `db:"section_id" json:"section_id"`
	StudentID string         `db:"student_id" json:"student_id"`
	Position  int            `db:"position" json:"position"`
	Status    WaitlistStatus `db:"status" json:"status"`
	JoinedAt  time.Time      `db:"joined_at" json:"joined_at"`
	RemovedAt *time.Time     `db:"removed_at" json:"removed_at,omitempty"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	StudentID string
	SectionID string
	TermID    string
	Status    RegistrationStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
