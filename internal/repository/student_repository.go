package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

// StudentRepository handles persistence of student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, student_number, full_name, standing, active,
        cumulative_attempted_credits, cumulative_earned_credits, cumulative_quality_points,
        cumulative_gpa, gpa_calculated_at, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpdateGpaSummary writes the cached GPA projection onto the student row.
func (r *StudentRepository) UpdateGpaSummary(ctx context.Context, studentID string, result models.GpaResult) error {
	const query = `UPDATE students SET
        cumulative_attempted_credits = $2,
        cumulative_earned_credits = $3,
        cumulative_quality_points = $4,
        cumulative_gpa = $5,
        gpa_calculated_at = $6,
        updated_at = $6
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, studentID,
		result.AttemptedCredits, result.EarnedCredits, result.QualityPoints,
		result.CumulativeGpa, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student gpa summary: %w", err)
	}
	return nil
}
