package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

// RegistrationRepository handles persistence of registrations and waitlist
// entries. Mutating methods accept an ExtContext so the coordinator can run
// them inside one transaction together with section counter updates.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const registrationColumns = `id, student_id, section_id, term_id, status, credit_hours, grade_mode,
        grade_code, grade_points, capacity_override, requisite_override, override_reason, override_by,
        last_attendance_date, registered_at, status_changed_at, created_at, updated_at`

// List returns registrations with course/section context filtered by the criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM registrations reg
LEFT JOIN sections s ON s.id = reg.section_id
LEFT JOIN courses c ON c.id = s.course_id
LEFT JOIN terms t ON t.id = reg.term_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("reg.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("reg.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("reg.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("reg.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT reg.id, reg.student_id, reg.section_id, reg.term_id, reg.status,
        reg.credit_hours, reg.grade_mode, reg.grade_code, reg.grade_points, reg.capacity_override,
        reg.requisite_override, reg.override_reason, reg.override_by, reg.last_attendance_date,
        reg.registered_at, reg.status_changed_at, reg.created_at, reg.updated_at,
        c.code AS course_code, c.title AS course_title, s.section_number, t.name AS term_name
        %s ORDER BY reg.registered_at %s LIMIT %d OFFSET %d`, base+clause, order, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		return nil, err
	}
	return &registration, nil
}

// FindByPair returns the most recent registration row for a (student,
// section) pair, regardless of status.
func (r *RegistrationRepository) FindByPair(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations
        WHERE student_id = $1 AND section_id = $2 ORDER BY created_at DESC LIMIT 1`
	var registration models.Registration
	if err := sqlx.GetContext(ctx, r.exec(exec), &registration, query, studentID, sectionID); err != nil {
		return nil, err
	}
	return &registration, nil
}

// ExistsActivePair checks whether an active (REGISTERED or WAITLISTED)
// registration exists for the pair.
func (r *RegistrationRepository) ExistsActivePair(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM registrations
        WHERE student_id = $1 AND section_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, studentID, sectionID,
		models.RegistrationStatusRegistered, models.RegistrationStatusWaitlisted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active registration: %w", err)
	}
	return true, nil
}

// ListRegisteredByStudentAndTerm returns the student's REGISTERED rows within
// a term, used for schedule conflict detection.
func (r *RegistrationRepository) ListRegisteredByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations
        WHERE student_id = $1 AND term_id = $2 AND status = $3`
	var registrations []models.Registration
	if err := r.db.SelectContext(ctx, &registrations, query, studentID, termID, models.RegistrationStatusRegistered); err != nil {
		return nil, fmt.Errorf("list registered sections: %w", err)
	}
	return registrations, nil
}

// Create persists a new registration row.
func (r *RegistrationRepository) Create(ctx context.Context, exec sqlx.ExtContext, registration *models.Registration) error {
	now := time.Now().UTC()
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}
	if registration.RegisteredAt.IsZero() {
		registration.RegisteredAt = now
	}
	if registration.StatusChangedAt.IsZero() {
		registration.StatusChangedAt = now
	}
	if registration.Status == "" {
		registration.Status = models.RegistrationStatusRegistered
	}
	if registration.GradeMode == "" {
		registration.GradeMode = models.GradeModeStandard
	}
	registration.CreatedAt = now
	registration.UpdatedAt = now
	const query = `INSERT INTO registrations (id, student_id, section_id, term_id, status, credit_hours,
        grade_mode, grade_code, grade_points, capacity_override, requisite_override, override_reason,
        override_by, last_attendance_date, registered_at, status_changed_at, created_at, updated_at)
        VALUES (:id, :student_id, :section_id, :term_id, :status, :credit_hours,
        :grade_mode, :grade_code, :grade_points, :capacity_override, :requisite_override, :override_reason,
        :override_by, :last_attendance_date, :registered_at, :status_changed_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, registration); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// UpdateStatus moves a registration to a new status.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RegistrationStatus) error {
	const query = `UPDATE registrations SET status = $2, status_changed_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	return nil
}

// Revive returns a dropped/withdrawn row to REGISTERED, clearing any
// withdrawal grade left on it.
func (r *RegistrationRepository) Revive(ctx context.Context, exec sqlx.ExtContext, id string, creditHours float64) error {
	const query = `UPDATE registrations SET status = $2, credit_hours = $3, grade_code = NULL,
        grade_points = NULL, last_attendance_date = NULL, status_changed_at = $4, updated_at = $4
        WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, models.RegistrationStatusRegistered, creditHours, time.Now().UTC()); err != nil {
		return fmt.Errorf("revive registration: %w", err)
	}
	return nil
}

// SetOverride records override flags and the audit justification on a
// registration row.
func (r *RegistrationRepository) SetOverride(ctx context.Context, exec sqlx.ExtContext, id string, capacity, requisite bool, reason, actor string) error {
	const query = `UPDATE registrations SET capacity_override = $2, requisite_override = $3,
        override_reason = $4, override_by = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, capacity, requisite, reason, actor, time.Now().UTC()); err != nil {
		return fmt.Errorf("set registration override: %w", err)
	}
	return nil
}

// SetWithdrawal marks a registration withdrawn with the withdrawal grade and
// last attendance date.
func (r *RegistrationRepository) SetWithdrawal(ctx context.Context, exec sqlx.ExtContext, id, gradeCode string, lastAttendance *time.Time) error {
	const query = `UPDATE registrations SET status = $2, grade_code = $3, last_attendance_date = $4,
        status_changed_at = $5, updated_at = $5 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, models.RegistrationStatusWithdrawn, gradeCode, lastAttendance, time.Now().UTC()); err != nil {
		return fmt.Errorf("withdraw registration: %w", err)
	}
	return nil
}

// SetGrade records a posted grade and completes the registration.
func (r *RegistrationRepository) SetGrade(ctx context.Context, exec sqlx.ExtContext, id, gradeCode string, gradePoints *float64) error {
	const query = `UPDATE registrations SET status = $2, grade_code = $3, grade_points = $4,
        status_changed_at = $5, updated_at = $5 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, models.RegistrationStatusCompleted, gradeCode, gradePoints, time.Now().UTC()); err != nil {
		return fmt.Errorf("set registration grade: %w", err)
	}
	return nil
}

// FindWaitingEntry returns the WAITING waitlist entry for a pair, if any.
func (r *RegistrationRepository) FindWaitingEntry(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (*models.WaitlistEntry, error) {
	const query = `SELECT id, section_id, student_id, position, status, joined_at, removed_at
        FROM waitlist_entries WHERE student_id = $1 AND section_id = $2 AND status = $3 LIMIT 1`
	var entry models.WaitlistEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, studentID, sectionID, models.WaitlistStatusWaiting); err != nil {
		return nil, err
	}
	return &entry, nil
}

// NextWaitlistPosition returns MAX(position)+1 over every entry of the
// section, removed ones included, so positions stay monotonic and are never
// reused. Must run under the section row lock.
func (r *RegistrationRepository) NextWaitlistPosition(ctx context.Context, exec sqlx.ExtContext, sectionID string) (int, error) {
	const query = `SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE section_id = $1`
	var position int
	if err := sqlx.GetContext(ctx, r.exec(exec), &position, query, sectionID); err != nil {
		return 0, fmt.Errorf("next waitlist position: %w", err)
	}
	return position, nil
}

// CreateWaitlistEntry persists a waitlist membership event. Position must
// have been assigned under the section row lock.
func (r *RegistrationRepository) CreateWaitlistEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.JoinedAt.IsZero() {
		entry.JoinedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = models.WaitlistStatusWaiting
	}
	const query = `INSERT INTO waitlist_entries (id, section_id, student_id, position, status, joined_at, removed_at)
        VALUES (:id, :section_id, :student_id, :position, :status, :joined_at, :removed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("create waitlist entry: %w", err)
	}
	return nil
}

// UpdateWaitlistStatus moves a waitlist entry to a new status.
func (r *RegistrationRepository) UpdateWaitlistStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.WaitlistStatus) error {
	var removedAt *time.Time
	if status == models.WaitlistStatusRemoved {
		now := time.Now().UTC()
		removedAt = &now
	}
	const query = `UPDATE waitlist_entries SET status = $2, removed_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, removedAt); err != nil {
		return fmt.Errorf("update waitlist status: %w", err)
	}
	return nil
}

// ListWaitlist returns the WAITING entries of a section in position order.
func (r *RegistrationRepository) ListWaitlist(ctx context.Context, sectionID string) ([]models.WaitlistEntry, error) {
	const query = `SELECT id, section_id, student_id, position, status, joined_at, removed_at
        FROM waitlist_entries WHERE section_id = $1 AND status = $2 ORDER BY position`
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, sectionID, models.WaitlistStatusWaiting); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}
