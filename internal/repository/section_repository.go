package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

// SectionRepository handles persistence of sections, their meeting times and
// the enrollment/waitlist counters embedded on the section row.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `id, course_id, term_id, section_number, max_enrollment, current_enrollment,
        waitlist_max, waitlist_current, active, created_at, updated_at`

// List returns sections with course/term context filtered by the criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections s
LEFT JOIN courses c ON c.id = s.course_id
LEFT JOIN terms t ON t.id = s.term_id`
	var conditions []string
	var args []interface{}

	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("s.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"course_code":    "c.code",
		"section_number": "s.section_number",
		"created_at":     "s.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.term_id, s.section_number, s.max_enrollment,
        s.current_enrollment, s.waitlist_max, s.waitlist_current, s.active, s.created_at, s.updated_at,
        c.code AS course_code, c.title AS course_title, t.name AS term_name
        %s ORDER BY %s %s, s.section_number ASC LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// LockByID loads a section row under FOR UPDATE within the given transaction.
// Capacity checks and counter updates must read through this lock so that two
// concurrent enrollments cannot both observe the last open seat.
func (r *SectionRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1 FOR UPDATE`
	var section models.Section
	if err := tx.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// ListMeetings returns the weekly meeting times of a section.
func (r *SectionRepository) ListMeetings(ctx context.Context, sectionID string) ([]models.MeetingTime, error) {
	const query = `SELECT id, section_id, days, start_minutes, end_minutes, room
        FROM meeting_times WHERE section_id = $1 ORDER BY start_minutes`
	var meetings []models.MeetingTime
	if err := r.db.SelectContext(ctx, &meetings, query, sectionID); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return meetings, nil
}

// ListMeetingsBySections returns meeting times grouped by section ID.
func (r *SectionRepository) ListMeetingsBySections(ctx context.Context, sectionIDs []string) (map[string][]models.MeetingTime, error) {
	out := make(map[string][]models.MeetingTime, len(sectionIDs))
	if len(sectionIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT id, section_id, days, start_minutes, end_minutes, room
        FROM meeting_times WHERE section_id IN (?) ORDER BY start_minutes`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build meetings query: %w", err)
	}
	query = r.db.Rebind(query)
	var meetings []models.MeetingTime
	if err := r.db.SelectContext(ctx, &meetings, query, args...); err != nil {
		return nil, fmt.Errorf("list section meetings: %w", err)
	}
	for _, m := range meetings {
		out[m.SectionID] = append(out[m.SectionID], m)
	}
	return out, nil
}

// IncrementEnrollment bumps the seat counter inside the caller's transaction.
func (r *SectionRepository) IncrementEnrollment(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE sections SET current_enrollment = current_enrollment + 1, updated_at = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment enrollment: %w", err)
	}
	return nil
}

// DecrementEnrollment lowers the seat counter, floored at zero to guard
// against double-decrement races.
func (r *SectionRepository) DecrementEnrollment(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE sections SET current_enrollment = GREATEST(current_enrollment - 1, 0), updated_at = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("decrement enrollment: %w", err)
	}
	return nil
}

// IncrementWaitlist bumps the waitlist counter inside the caller's transaction.
func (r *SectionRepository) IncrementWaitlist(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE sections SET waitlist_current = waitlist_current + 1, updated_at = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment waitlist: %w", err)
	}
	return nil
}

// DecrementWaitlist lowers the waitlist counter, floored at zero.
func (r *SectionRepository) DecrementWaitlist(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if exec == nil {
		exec = r.db
	}
	const query = `UPDATE sections SET waitlist_current = GREATEST(waitlist_current - 1, 0), updated_at = $2 WHERE id = $1`
	if _, err := exec.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("decrement waitlist: %w", err)
	}
	return nil
}
