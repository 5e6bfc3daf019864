package service

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

type sectionCounterStore interface {
	IncrementEnrollment(ctx context.Context, exec sqlx.ExtContext, id string) error
	DecrementEnrollment(ctx context.Context, exec sqlx.ExtContext, id string) error
	IncrementWaitlist(ctx context.Context, exec sqlx.ExtContext, id string) error
	DecrementWaitlist(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// CapacityManager owns section occupancy decisions and counter mutation. All
// counter updates go through it inside the coordinator's transaction; no
// other path touches the counters.
type CapacityManager struct {
	sections sectionCounterStore
}

// NewCapacityManager constructs CapacityManager.
func NewCapacityManager(sections sectionCounterStore) *CapacityManager {
	return &CapacityManager{sections: sections}
}

// CanEnroll reports whether the section has an open seat. The section must
// have been read under the row lock for the answer to hold.
func (m *CapacityManager) CanEnroll(section *models.Section) bool {
	return section.CurrentEnrollment < section.MaxEnrollment
}

// CanWaitlist reports whether the section's waitlist accepts another entry.
func (m *CapacityManager) CanWaitlist(section *models.Section) bool {
	return section.WaitlistMax > 0 && section.WaitlistCurrent < section.WaitlistMax
}

// TakeSeat increments the enrollment counter within the transaction.
func (m *CapacityManager) TakeSeat(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	return m.sections.IncrementEnrollment(ctx, tx, sectionID)
}

// ReleaseSeat decrements the enrollment counter, floored at zero.
func (m *CapacityManager) ReleaseSeat(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	return m.sections.DecrementEnrollment(ctx, tx, sectionID)
}

// TakeWaitlistSlot increments the waitlist counter within the transaction.
func (m *CapacityManager) TakeWaitlistSlot(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	return m.sections.IncrementWaitlist(ctx, tx, sectionID)
}

// ReleaseWaitlistSlot decrements the waitlist counter, floored at zero.
func (m *CapacityManager) ReleaseWaitlistSlot(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	return m.sections.DecrementWaitlist(ctx, tx, sectionID)
}
