package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

// HoldRepository reads student holds maintained by the hold service.
type HoldRepository struct {
	db *sqlx.DB
}

// NewHoldRepository constructs the repository.
func NewHoldRepository(db *sqlx.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

// ListActiveByStudent returns unreleased holds for a student.
func (r *HoldRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Hold, error) {
	const query = `SELECT id, student_id, code, reason, blocks_registration, placed_at, released_at
        FROM holds WHERE student_id = $1 AND released_at IS NULL ORDER BY placed_at`
	var holds []models.Hold
	if err := r.db.SelectContext(ctx, &holds, query, studentID); err != nil {
		return nil, fmt.Errorf("list active holds: %w", err)
	}
	return holds, nil
}
