package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

// GradeRepository reads grade reference data and the course-attempt
// projection that feeds GPA calculation.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindDefinitionByCode returns the grade definition for a code.
func (r *GradeRepository) FindDefinitionByCode(ctx context.Context, code string) (*models.GradeDefinition, error) {
	const query = `SELECT id, code, points, count_in_gpa, earned_credits, attempted_credits,
        is_incomplete, is_withdrawal FROM grade_definitions WHERE code = $1`
	var def models.GradeDefinition
	if err := r.db.GetContext(ctx, &def, query, code); err != nil {
		return nil, err
	}
	return &def, nil
}

// ListDefinitions returns all grade definitions keyed by code.
func (r *GradeRepository) ListDefinitions(ctx context.Context) (map[string]models.GradeDefinition, error) {
	const query = `SELECT id, code, points, count_in_gpa, earned_credits, attempted_credits,
        is_incomplete, is_withdrawal FROM grade_definitions`
	var defs []models.GradeDefinition
	if err := r.db.SelectContext(ctx, &defs, query); err != nil {
		return nil, fmt.Errorf("list grade definitions: %w", err)
	}
	out := make(map[string]models.GradeDefinition, len(defs))
	for _, d := range defs {
		out[d.Code] = d
	}
	return out, nil
}

const attemptColumns = `id, student_id, course_id, course_code, term_id, credits,
        grade_code, grade_points, include_in_gpa, credits_earned, repeat_policy, attempted_at`

// ListAttemptsByStudent returns all course attempts of a student in
// chronological order.
func (r *GradeRepository) ListAttemptsByStudent(ctx context.Context, studentID string) ([]models.CourseAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM course_attempts
        WHERE student_id = $1 ORDER BY attempted_at`
	var attempts []models.CourseAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, studentID); err != nil {
		return nil, fmt.Errorf("list course attempts: %w", err)
	}
	return attempts, nil
}

// ListAttemptsByStudentAndTerm returns the attempts of a student within one term.
func (r *GradeRepository) ListAttemptsByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.CourseAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM course_attempts
        WHERE student_id = $1 AND term_id = $2 ORDER BY attempted_at`
	var attempts []models.CourseAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, studentID, termID); err != nil {
		return nil, fmt.Errorf("list term course attempts: %w", err)
	}
	return attempts, nil
}

// CreateAttempt appends a course-attempt projection row for a completed
// registration.
func (r *GradeRepository) CreateAttempt(ctx context.Context, exec sqlx.ExtContext, attempt *models.CourseAttempt) error {
	if exec == nil {
		exec = r.db
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_attempts (id, student_id, course_id, course_code, term_id, credits,
        grade_code, grade_points, include_in_gpa, credits_earned, repeat_policy, attempted_at)
        VALUES (:id, :student_id, :course_id, :course_code, :term_id, :credits,
        :grade_code, :grade_points, :include_in_gpa, :credits_earned, :repeat_policy, :attempted_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, attempt); err != nil {
		return fmt.Errorf("create course attempt: %w", err)
	}
	return nil
}
