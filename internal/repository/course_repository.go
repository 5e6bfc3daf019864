package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

// CourseRepository handles persistence of catalog courses and their
// requisite rules.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, title, default_credits, variable_credit, min_credits, max_credits,
        active, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListActiveRequisites returns the active requisite rules of the given type
// attached to a course.
func (r *CourseRepository) ListActiveRequisites(ctx context.Context, courseID string, requisiteType models.RequisiteType) ([]models.RequisiteRule, error) {
	const query = `SELECT id, course_id, type, requisite_course_id, minimum_grade, rule_tree, active, created_at
        FROM requisite_rules WHERE course_id = $1 AND type = $2 AND active = true
        ORDER BY created_at`
	var rules []models.RequisiteRule
	if err := r.db.SelectContext(ctx, &rules, query, courseID, requisiteType); err != nil {
		return nil, fmt.Errorf("list requisites: %w", err)
	}
	return rules, nil
}
