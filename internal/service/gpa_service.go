package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
	"github.com/noah-isme/sis-registration-api/pkg/jobs"
)

// GpaOptions tunes a GPA calculation.
type GpaOptions struct {
	RepeatPolicy   models.RepeatPolicy
	RoundingPlaces int
}

func (o GpaOptions) normalized() GpaOptions {
	if !o.RepeatPolicy.Valid() {
		o.RepeatPolicy = models.RepeatPolicyReplace
	}
	if o.RoundingPlaces <= 0 {
		o.RoundingPlaces = 3
	}
	return o
}

// roundHalfAwayFromZero rounds at the given decimal precision with ties
// moving away from zero: scale up, round, scale back.
func roundHalfAwayFromZero(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Trunc(v*p+math.Copysign(0.5, v)) / p
}

// resolveRepeats groups attempts by course and applies the repeat policy,
// marking non-counting attempts as excluded. Excluded attempts stay in the
// result with a reason; they are never dropped.
func resolveRepeats(attempts []models.CourseAttempt, defaultPolicy models.RepeatPolicy) []models.GpaAttemptDetail {
	details := make([]models.GpaAttemptDetail, len(attempts))
	byCourse := make(map[string][]int)
	for i, a := range attempts {
		details[i] = models.GpaAttemptDetail{CourseAttempt: a}
		byCourse[a.CourseID] = append(byCourse[a.CourseID], i)
	}

	for _, indexes := range byCourse {
		if len(indexes) < 2 {
			continue
		}

		policy := defaultPolicy
		for _, i := range indexes {
			if p := attempts[i].RepeatPolicy; p != nil && p.Valid() {
				policy = *p
			}
		}

		switch policy {
		case models.RepeatPolicyReplace:
			// Keep the most recent graded attempt; everything else is
			// superseded. With no graded attempt there is nothing to
			// replace with, so all attempts stay in.
			selected := -1
			for _, i := range indexes {
				if attempts[i].Graded() {
					selected = i
				}
			}
			if selected < 0 {
				continue
			}
			for _, i := range indexes {
				if i != selected {
					details[i].Excluded = true
					details[i].ExcludedReason = "superseded under replace policy"
				}
			}
		case models.RepeatPolicyHighest:
			// Ties resolve to the first encountered attempt.
			selected := -1
			var best float64
			for _, i := range indexes {
				pts := attempts[i].GradePoints
				if pts == nil {
					continue
				}
				if selected < 0 || *pts > best {
					selected = i
					best = *pts
				}
			}
			if selected < 0 {
				continue
			}
			for _, i := range indexes {
				if i != selected {
					details[i].Excluded = true
					details[i].ExcludedReason = "lower grade under highest policy"
				}
			}
		case models.RepeatPolicyAverage, models.RepeatPolicyAllCount:
			// Every attempt counts.
		}
	}
	return details
}

// CalculateGpa computes credit and quality-point totals over the attempts,
// applying the repeat policy per course first.
func CalculateGpa(attempts []models.CourseAttempt, opts GpaOptions) models.GpaResult {
	opts = opts.normalized()

	result := models.GpaResult{Details: resolveRepeats(attempts, opts.RepeatPolicy)}
	for _, d := range result.Details {
		if d.Excluded {
			continue
		}
		if d.Graded() {
			result.AttemptedCredits += d.Credits
		}
		if d.CreditsEarned {
			result.EarnedCredits += d.Credits
		}
		if d.IncludeInGpa && d.GradePoints != nil {
			result.QualityPoints += d.Credits * *d.GradePoints
			result.GpaCredits += d.Credits
		}
	}
	if result.GpaCredits > 0 {
		gpa := roundHalfAwayFromZero(result.QualityPoints/result.GpaCredits, opts.RoundingPlaces)
		result.CumulativeGpa = &gpa
	}
	return result
}

// CalculateTermGpa restricts the calculation to one term's attempts.
func CalculateTermGpa(attempts []models.CourseAttempt, termID string, opts GpaOptions) models.GpaResult {
	var termAttempts []models.CourseAttempt
	for _, a := range attempts {
		if a.TermID == termID {
			termAttempts = append(termAttempts, a)
		}
	}
	return CalculateGpa(termAttempts, opts)
}

// CalculateGpaByTerm partitions attempts by term and calculates each
// partition independently.
func CalculateGpaByTerm(attempts []models.CourseAttempt, opts GpaOptions) map[string]models.GpaResult {
	byTerm := make(map[string][]models.CourseAttempt)
	for _, a := range attempts {
		byTerm[a.TermID] = append(byTerm[a.TermID], a)
	}
	out := make(map[string]models.GpaResult, len(byTerm))
	for termID, termAttempts := range byTerm {
		out[termID] = CalculateGpa(termAttempts, opts)
	}
	return out
}

// CalculateCumulativeGpaWithTransfer merges externally supplied transfer work
// into the cumulative figure. Repeat policy never runs on transfer records.
func CalculateCumulativeGpaWithTransfer(attempts []models.CourseAttempt, transfer models.TransferCredit, opts GpaOptions) models.GpaResult {
	opts = opts.normalized()
	result := CalculateGpa(attempts, opts)
	result.QualityPoints += transfer.QualityPoints
	result.GpaCredits += transfer.GpaCredits
	result.EarnedCredits += transfer.EarnedCredits
	result.CumulativeGpa = nil
	if result.GpaCredits > 0 {
		gpa := roundHalfAwayFromZero(result.QualityPoints/result.GpaCredits, opts.RoundingPlaces)
		result.CumulativeGpa = &gpa
	}
	return result
}

type attemptsReader interface {
	ListAttemptsByStudent(ctx context.Context, studentID string) ([]models.CourseAttempt, error)
}

type gpaStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdateGpaSummary(ctx context.Context, studentID string, result models.GpaResult) error
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// GpaServiceConfig tunes the GPA service.
type GpaServiceConfig struct {
	DefaultRepeatPolicy models.RepeatPolicy
	RoundingPlaces      int
	SummaryCacheTTL     time.Duration
}

// GpaService exposes GPA summaries backed by the pure calculator, with a
// redis-cached projection and an async refresh of the student row.
type GpaService struct {
	attempts  attemptsReader
	students  gpaStudentStore
	cache     summaryCache
	queue     *jobs.Queue
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GpaServiceConfig
}

// NewGpaService constructs GpaService. The refresh queue is attached later
// via SetRefreshQueue because the queue handler needs the service itself.
func NewGpaService(attempts attemptsReader, students gpaStudentStore, cache summaryCache, validate *validator.Validate, logger *zap.Logger, cfg GpaServiceConfig) *GpaService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.DefaultRepeatPolicy.Valid() {
		cfg.DefaultRepeatPolicy = models.RepeatPolicyReplace
	}
	if cfg.RoundingPlaces <= 0 {
		cfg.RoundingPlaces = 3
	}
	if cfg.SummaryCacheTTL <= 0 {
		cfg.SummaryCacheTTL = 15 * time.Minute
	}
	return &GpaService{attempts: attempts, students: students, cache: cache, validator: validate, logger: logger, cfg: cfg}
}

// SetRefreshQueue wires the background queue used for projection refreshes.
func (s *GpaService) SetRefreshQueue(queue *jobs.Queue) {
	s.queue = queue
}

func (s *GpaService) options() GpaOptions {
	return GpaOptions{RepeatPolicy: s.cfg.DefaultRepeatPolicy, RoundingPlaces: s.cfg.RoundingPlaces}
}

func gpaSummaryKey(studentID string) string {
	return fmt.Sprintf("gpa:summary:%s", studentID)
}

// GetGpaSummary returns the cumulative and per-term GPA for a student,
// serving from cache when possible.
func (s *GpaService) GetGpaSummary(ctx context.Context, studentID string) (*models.GpaSummary, error) {
	if s.cache != nil {
		var cached models.GpaSummary
		if err := s.cache.Get(ctx, gpaSummaryKey(studentID), &cached); err == nil {
			return &cached, nil
		}
	}

	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	attempts, err := s.attempts.ListAttemptsByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course attempts")
	}

	summary := &models.GpaSummary{
		StudentID:    studentID,
		Cumulative:   CalculateGpa(attempts, s.options()),
		ByTerm:       CalculateGpaByTerm(attempts, s.options()),
		CalculatedAt: time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, gpaSummaryKey(studentID), summary, s.cfg.SummaryCacheTTL); err != nil {
			s.logger.Warn("gpa summary cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return summary, nil
}

// InvalidateStudent drops the student's cached GPA keys.
func (s *GpaService) InvalidateStudent(ctx context.Context, studentID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteByPattern(ctx, fmt.Sprintf("gpa:*:%s", studentID))
}

// EnqueueRefresh schedules an async recomputation of the student's cached
// GPA projection. Failing to enqueue is logged, not fatal; the projection is
// recomputable on demand.
func (s *GpaService) EnqueueRefresh(studentID string) {
	if s.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: "gpa_refresh", Payload: studentID}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue gpa refresh", zap.String("student_id", studentID), zap.Error(err))
	}
}

// HandleRefreshJob is the queue handler: recompute and persist the student
// projection.
func (s *GpaService) HandleRefreshJob(ctx context.Context, job jobs.Job) error {
	studentID, ok := job.Payload.(string)
	if !ok || studentID == "" {
		return fmt.Errorf("gpa refresh job %s: invalid payload", job.ID)
	}
	return s.RefreshStudentSummary(ctx, studentID)
}

// RefreshStudentSummary recomputes the cumulative projection and writes it
// onto the student row.
func (s *GpaService) RefreshStudentSummary(ctx context.Context, studentID string) error {
	attempts, err := s.attempts.ListAttemptsByStudent(ctx, studentID)
	if err != nil {
		return fmt.Errorf("load attempts for refresh: %w", err)
	}
	result := CalculateGpa(attempts, s.options())
	if err := s.students.UpdateGpaSummary(ctx, studentID, result); err != nil {
		return fmt.Errorf("persist gpa summary: %w", err)
	}
	if s.cache != nil {
		summary := models.GpaSummary{
			StudentID:    studentID,
			Cumulative:   result,
			ByTerm:       CalculateGpaByTerm(attempts, s.options()),
			CalculatedAt: time.Now().UTC(),
		}
		if err := s.cache.Set(ctx, gpaSummaryKey(studentID), summary, s.cfg.SummaryCacheTTL); err != nil {
			s.logger.Warn("gpa summary cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return nil
}
