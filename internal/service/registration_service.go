package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sis-registration-api/internal/models"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
)

const withdrawalGradeCode = "W"

type registrationStore interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindByPair(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (*models.Registration, error)
	ExistsActivePair(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (bool, error)
	ListRegisteredByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Registration, error)
	Create(ctx context.Context, exec sqlx.ExtContext, registration *models.Registration) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RegistrationStatus) error
	Revive(ctx context.Context, exec sqlx.ExtContext, id string, creditHours float64) error
	SetOverride(ctx context.Context, exec sqlx.ExtContext, id string, capacity, requisite bool, reason, actor string) error
	SetWithdrawal(ctx context.Context, exec sqlx.ExtContext, id, gradeCode string, lastAttendance *time.Time) error
	SetGrade(ctx context.Context, exec sqlx.ExtContext, id, gradeCode string, gradePoints *float64) error
	FindWaitingEntry(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (*models.WaitlistEntry, error)
	NextWaitlistPosition(ctx context.Context, exec sqlx.ExtContext, sectionID string) (int, error)
	CreateWaitlistEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error
	UpdateWaitlistStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.WaitlistStatus) error
	ListWaitlist(ctx context.Context, sectionID string) ([]models.WaitlistEntry, error)
}

type sectionStore interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Section, error)
	ListMeetings(ctx context.Context, sectionID string) ([]models.MeetingTime, error)
	ListMeetingsBySections(ctx context.Context, sectionIDs []string) (map[string][]models.MeetingTime, error)
}

type registrationStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type registrationCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type registrationTermReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type holdReader interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.Hold, error)
}

type requisiteChecker interface {
	Evaluate(ctx context.Context, studentID, courseID string) (*models.RequisiteResult, error)
}

type attemptProjector interface {
	CreateAttempt(ctx context.Context, exec sqlx.ExtContext, attempt *models.CourseAttempt) error
}

type gradeReference interface {
	FindDefinitionByCode(ctx context.Context, code string) (*models.GradeDefinition, error)
}

type gpaProjection interface {
	InvalidateStudent(ctx context.Context, studentID string) error
	EnqueueRefresh(studentID string)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type registrationMetrics interface {
	ObserveRegistration(operation, outcome string)
}

// EnrollRequest describes a single enrollment payload.
type EnrollRequest struct {
	StudentID   string   `json:"student_id" validate:"required"`
	SectionID   string   `json:"section_id" validate:"required"`
	CreditHours *float64 `json:"credit_hours" validate:"omitempty,gt=0"`
	GradeMode   string   `json:"grade_mode" validate:"omitempty,oneof=STANDARD PASS_FAIL AUDIT"`
}

// OverrideEnrollRequest enrolls past failed checks; the reason is persisted
// for audit and must not be empty.
type OverrideEnrollRequest struct {
	EnrollRequest
	CapacityOverride  bool   `json:"capacity_override"`
	RequisiteOverride bool   `json:"requisite_override"`
	OverrideReason    string `json:"override_reason" validate:"required"`
}

// WithdrawRequest carries the optional last attendance date.
type WithdrawRequest struct {
	LastAttendanceDate *time.Time `json:"last_attendance_date"`
}

// PostGradeRequest records a final grade on a registration.
type PostGradeRequest struct {
	GradeCode string `json:"grade_code" validate:"required"`
}

// WaitlistRequest identifies the student joining or leaving a waitlist.
type WaitlistRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// RegistrationCartRequest is a batch registration payload.
type RegistrationCartRequest struct {
	StudentID  string   `json:"student_id" validate:"required"`
	SectionIDs []string `json:"section_ids" validate:"required,min=1,unique,dive,required"`
}

// ValidationMessage is one enumerable check outcome.
type ValidationMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EligibilityResult is the read-only pre-flight answer for one section.
type EligibilityResult struct {
	Eligible          bool                        `json:"eligible"`
	Reasons           []ValidationMessage         `json:"reasons,omitempty"`
	MissingRequisites []models.MissingRequirement `json:"missing_requisites,omitempty"`
	Conflicts         []MeetingConflict           `json:"conflicts,omitempty"`
}

// SectionValidation accumulates per-section cart findings.
type SectionValidation struct {
	SectionID string              `json:"section_id"`
	Errors    []ValidationMessage `json:"errors,omitempty"`
	Warnings  []ValidationMessage `json:"warnings,omitempty"`
}

// CartValidationResult is the read-only whole-cart answer. Warnings never
// block; CanRegister is false iff any error was recorded.
type CartValidationResult struct {
	CanRegister  bool                `json:"can_register"`
	GlobalErrors []ValidationMessage `json:"global_errors,omitempty"`
	Sections     []SectionValidation `json:"sections"`
}

// Validation message codes.
const (
	codeHoldBlocks          = "HOLD_BLOCKS_REGISTRATION"
	codeRegistrationClosed  = "REGISTRATION_CLOSED"
	codeSectionNotFound     = "SECTION_NOT_FOUND"
	codeSectionInactive     = "SECTION_INACTIVE"
	codeSectionFull         = "SECTION_FULL"
	codeSectionNearlyFull   = "SECTION_NEARLY_FULL"
	codeWaitlistAvailable   = "WAITLIST_AVAILABLE"
	codePrerequisitesUnmet  = "PREREQUISITES_NOT_MET"
	codeScheduleConflict    = "SCHEDULE_CONFLICT"
	codeDuplicateActivePair = "DUPLICATE_REGISTRATION"
)

// RegistrationServiceConfig tunes the coordinator.
type RegistrationServiceConfig struct {
	WaitlistEnabled bool
	NearFullRatio   float64
	MaxCartSize     int
}

// RegistrationService coordinates eligibility checks, capacity, and the
// transactional state machine for registrations.
type RegistrationService struct {
	registrations registrationStore
	sections      sectionStore
	students      registrationStudentReader
	courses       registrationCourseReader
	terms         registrationTermReader
	holds         holdReader
	requisites    requisiteChecker
	gradeDefs     gradeReference
	attempts      attemptProjector
	gpa           gpaProjection
	capacity      *CapacityManager
	tx            txProvider
	metrics       registrationMetrics
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           RegistrationServiceConfig
	now           func() time.Time
}

// NewRegistrationService wires the coordinator's dependencies.
func NewRegistrationService(
	registrations registrationStore,
	sections sectionStore,
	students registrationStudentReader,
	courses registrationCourseReader,
	terms registrationTermReader,
	holds holdReader,
	requisites requisiteChecker,
	gradeDefs gradeReference,
	attempts attemptProjector,
	gpa gpaProjection,
	capacity *CapacityManager,
	tx txProvider,
	metrics registrationMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg RegistrationServiceConfig,
) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NearFullRatio <= 0 || cfg.NearFullRatio > 1 {
		cfg.NearFullRatio = 0.9
	}
	if cfg.MaxCartSize <= 0 {
		cfg.MaxCartSize = 10
	}
	return &RegistrationService{
		registrations: registrations,
		sections:      sections,
		students:      students,
		courses:       courses,
		terms:         terms,
		holds:         holds,
		requisites:    requisites,
		gradeDefs:     gradeDefs,
		attempts:      attempts,
		gpa:           gpa,
		capacity:      capacity,
		tx:            tx,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *RegistrationService) observe(operation, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRegistration(operation, outcome)
	}
}

// List returns registrations with pagination metadata.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	registrations, total, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return registrations, pagination, nil
}

type enrollmentContext struct {
	student *models.Student
	section *models.Section
	course  *models.Course
	term    *models.Term
}

func (s *RegistrationService) loadEnrollmentContext(ctx context.Context, studentID, sectionID string) (*enrollmentContext, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	course, err := s.courses.FindByID(ctx, section.CourseID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	term, err := s.terms.FindByID(ctx, section.TermID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return &enrollmentContext{student: student, section: section, course: course, term: term}, nil
}

func (s *RegistrationService) blockingHolds(ctx context.Context, studentID string) ([]models.Hold, error) {
	holds, err := s.holds.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load holds")
	}
	var blocking []models.Hold
	for _, h := range holds {
		if h.BlocksRegistration {
			blocking = append(blocking, h)
		}
	}
	return blocking, nil
}

func holdCodes(holds []models.Hold) string {
	codes := make([]string, len(holds))
	for i, h := range holds {
		codes[i] = h.Code
	}
	return strings.Join(codes, ", ")
}

func (s *RegistrationService) addWindowOpen(term *models.Term, at time.Time) bool {
	return !at.Before(term.RegistrationStart) && !at.After(term.AddDeadline)
}

// resolveCreditHours picks the registration's credit hours, honoring
// variable-credit bounds.
func (s *RegistrationService) resolveCreditHours(course *models.Course, requested *float64) (float64, error) {
	if requested == nil {
		return course.DefaultCredits, nil
	}
	if !course.VariableCredit {
		if *requested != course.DefaultCredits {
			return 0, appErrors.Clone(appErrors.ErrBadRequest, "course does not allow variable credit hours")
		}
		return course.DefaultCredits, nil
	}
	if course.MinCredits != nil && *requested < *course.MinCredits {
		return 0, appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("credit hours below course minimum of %.1f", *course.MinCredits))
	}
	if course.MaxCredits != nil && *requested > *course.MaxCredits {
		return 0, appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("credit hours above course maximum of %.1f", *course.MaxCredits))
	}
	return *requested, nil
}

// candidateConflicts compares a candidate section's meetings against every
// meeting of every currently registered section in the same term.
func (s *RegistrationService) candidateConflicts(ctx context.Context, studentID, termID, sectionID string) ([]MeetingConflict, error) {
	candidate, err := s.sections.ListMeetings(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section meetings")
	}
	if len(candidate) == 0 {
		return nil, nil
	}
	registered, err := s.registrations.ListRegisteredByStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrations")
	}
	existingIDs := make([]string, 0, len(registered))
	for _, reg := range registered {
		if reg.SectionID != sectionID {
			existingIDs = append(existingIDs, reg.SectionID)
		}
	}
	meetings, err := s.sections.ListMeetingsBySections(ctx, existingIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing meetings")
	}
	var existing []models.MeetingTime
	for _, m := range meetings {
		existing = append(existing, m...)
	}
	return MeetingConflicts(existing, candidate), nil
}

type enrollOptions struct {
	capacityOverride  bool
	requisiteOverride bool
	reason            string
	actor             string
}

// Enroll registers a student into a section after all eligibility checks.
func (s *RegistrationService) Enroll(ctx context.Context, req EnrollRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	return s.enroll(ctx, req, enrollOptions{})
}

// OverrideEnroll registers past prerequisite/capacity checks. The override
// reason and acting user are persisted on the registration for audit.
func (s *RegistrationService) OverrideEnroll(ctx context.Context, actorID string, req OverrideEnrollRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	if strings.TrimSpace(req.OverrideReason) == "" {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "override reason required")
	}
	if actorID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "override requires an authenticated acting user")
	}
	if !req.CapacityOverride && !req.RequisiteOverride {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "no override flag set")
	}
	return s.enroll(ctx, req.EnrollRequest, enrollOptions{
		capacityOverride:  req.CapacityOverride,
		requisiteOverride: req.RequisiteOverride,
		reason:            req.OverrideReason,
		actor:             actorID,
	})
}

func (s *RegistrationService) enroll(ctx context.Context, req EnrollRequest, opts enrollOptions) (*models.Registration, error) {
	ec, err := s.loadEnrollmentContext(ctx, req.StudentID, req.SectionID)
	if err != nil {
		return nil, err
	}
	if !ec.student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}

	blocking, err := s.blockingHolds(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if len(blocking) > 0 {
		s.observe("enroll", "hold")
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("registration blocked by holds: %s", holdCodes(blocking)))
	}

	if !s.addWindowOpen(ec.term, s.now()) {
		s.observe("enroll", "closed")
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "registration window closed for term")
	}

	if !opts.requisiteOverride {
		requisites, err := s.requisites.Evaluate(ctx, req.StudentID, ec.section.CourseID)
		if err != nil {
			return nil, err
		}
		if !requisites.Met {
			s.observe("enroll", "prerequisites")
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, missingSummary(requisites.Missing))
		}
	}

	conflicts, err := s.candidateConflicts(ctx, req.StudentID, ec.section.TermID, req.SectionID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.observe("enroll", "conflict")
		return nil, appErrors.Clone(appErrors.ErrConflict, "schedule conflict with a registered section")
	}

	creditHours, err := s.resolveCreditHours(ec.course, req.CreditHours)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	registration, err := s.enrollInTx(ctx, tx, req.StudentID, req.SectionID, ec.section.TermID, creditHours, models.GradeMode(defaultString(req.GradeMode, string(models.GradeModeStandard))), opts)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment")
	}
	s.observe("enroll", "registered")
	s.logger.Info("student enrolled",
		zap.String("student_id", req.StudentID),
		zap.String("section_id", req.SectionID),
		zap.Bool("override", opts.actor != ""))
	return registration, nil
}

// enrollInTx performs the locked capacity check, duplicate check, and write.
// The section lock is what makes "one seat, two callers" resolve to exactly
// one success.
func (s *RegistrationService) enrollInTx(ctx context.Context, tx *sqlx.Tx, studentID, sectionID, termID string, creditHours float64, gradeMode models.GradeMode, opts enrollOptions) (*models.Registration, error) {
	locked, err := s.sections.LockByID(ctx, tx, sectionID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock section")
	}
	if !locked.Active {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "section is not open for registration")
	}

	exists, err := s.registrations.ExistsActivePair(ctx, tx, studentID, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
	}
	if exists {
		s.observe("enroll", "duplicate")
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already registered for section")
	}

	if !opts.capacityOverride && !s.capacity.CanEnroll(locked) {
		s.observe("enroll", "full")
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "section is full")
	}

	var registration *models.Registration
	prior, err := s.registrations.FindByPair(ctx, tx, studentID, sectionID)
	switch {
	case err == nil && prior.Status.CanTransitionTo(models.RegistrationStatusRegistered):
		// Re-enrollment revives the dropped/withdrawn row instead of
		// inserting a fresh one.
		if err = s.registrations.Revive(ctx, tx, prior.ID, creditHours); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revive registration")
		}
		if opts.actor != "" {
			if err = s.registrations.SetOverride(ctx, tx, prior.ID, opts.capacityOverride, opts.requisiteOverride, opts.reason, opts.actor); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record override")
			}
		}
		revived := *prior
		revived.Status = models.RegistrationStatusRegistered
		revived.CreditHours = creditHours
		registration = &revived
	case err == nil && !prior.Status.CanTransitionTo(models.RegistrationStatusRegistered):
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("registration in status %s cannot be re-enrolled", prior.Status))
	case isNoRows(err):
		registration = &models.Registration{
			StudentID:         studentID,
			SectionID:         sectionID,
			TermID:            termID,
			Status:            models.RegistrationStatusRegistered,
			CreditHours:       creditHours,
			GradeMode:         gradeMode,
			CapacityOverride:  opts.capacityOverride,
			RequisiteOverride: opts.requisiteOverride,
		}
		if opts.actor != "" {
			registration.OverrideReason = &opts.reason
			registration.OverrideBy = &opts.actor
		}
		if err = s.registrations.Create(ctx, tx, registration); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prior registration")
	}

	if err = s.capacity.TakeSeat(ctx, tx, sectionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment counter")
	}
	return registration, nil
}

// Drop releases a registered seat before the term's drop deadline.
func (s *RegistrationService) Drop(ctx context.Context, registrationID string) (*models.Registration, error) {
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if registration.Status != models.RegistrationStatusRegistered || !registration.Status.CanTransitionTo(models.RegistrationStatusDropped) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot drop registration in status %s", registration.Status))
	}

	term, err := s.terms.FindByID(ctx, registration.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if s.now().After(term.DropDeadline) {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "drop deadline has passed")
	}

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.sections.LockByID(ctx, tx, registration.SectionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock section")
	}
	if err = s.registrations.UpdateStatus(ctx, tx, registrationID, models.RegistrationStatusDropped); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop registration")
	}
	if err = s.capacity.ReleaseSeat(ctx, tx, registration.SectionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment counter")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit drop")
	}

	s.observe("drop", "dropped")
	registration.Status = models.RegistrationStatusDropped
	return registration, nil
}

// Withdraw releases a registered seat between the drop and withdrawal
// deadlines, recording a withdrawal grade and last attendance.
func (s *RegistrationService) Withdraw(ctx context.Context, registrationID string, req WithdrawRequest) (*models.Registration, error) {
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if registration.Status != models.RegistrationStatusRegistered || !registration.Status.CanTransitionTo(models.RegistrationStatusWithdrawn) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot withdraw registration in status %s", registration.Status))
	}

	term, err := s.terms.FindByID(ctx, registration.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if s.now().After(term.WithdrawalDeadline) {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "withdrawal deadline has passed")
	}

	gradeCode := withdrawalGradeCode
	if def, defErr := s.gradeDefs.FindDefinitionByCode(ctx, withdrawalGradeCode); defErr == nil && def.IsWithdrawal {
		gradeCode = def.Code
	}

	lastAttendance := req.LastAttendanceDate
	if lastAttendance == nil {
		now := s.now()
		lastAttendance = &now
	}

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.sections.LockByID(ctx, tx, registration.SectionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock section")
	}
	if err = s.registrations.SetWithdrawal(ctx, tx, registrationID, gradeCode, lastAttendance); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw registration")
	}
	if err = s.capacity.ReleaseSeat(ctx, tx, registration.SectionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment counter")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit withdrawal")
	}

	s.observe("withdraw", "withdrawn")
	registration.Status = models.RegistrationStatusWithdrawn
	registration.GradeCode = &gradeCode
	registration.LastAttendanceDate = lastAttendance
	return registration, nil
}

// PostGrade records a final grade, completes the registration, and appends
// the course-attempt projection used by GPA calculation.
func (s *RegistrationService) PostGrade(ctx context.Context, registrationID string, req PostGradeRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	registration, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if !registration.Status.CanTransitionTo(models.RegistrationStatusCompleted) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("cannot grade registration in status %s", registration.Status))
	}

	def, err := s.gradeDefs.FindDefinitionByCode(ctx, req.GradeCode)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("unknown grade code %q", req.GradeCode))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade definition")
	}

	section, err := s.sections.FindByID(ctx, registration.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	course, err := s.courses.FindByID(ctx, section.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.registrations.SetGrade(ctx, tx, registrationID, def.Code, def.Points); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	attempt := &models.CourseAttempt{
		StudentID:     registration.StudentID,
		CourseID:      course.ID,
		CourseCode:    course.Code,
		TermID:        registration.TermID,
		Credits:       registration.CreditHours,
		GradeCode:     &def.Code,
		GradePoints:   def.Points,
		IncludeInGpa:  def.CountInGpa && registration.GradeMode == models.GradeModeStandard,
		CreditsEarned: def.EarnedCredits,
	}
	if err = s.attempts.CreateAttempt(ctx, tx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to project course attempt")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit grade")
	}

	if s.gpa != nil {
		if invErr := s.gpa.InvalidateStudent(ctx, registration.StudentID); invErr != nil {
			s.logger.Warn("gpa cache invalidation failed", zap.String("student_id", registration.StudentID), zap.Error(invErr))
		}
		s.gpa.EnqueueRefresh(registration.StudentID)
	}

	s.observe("grade", "completed")
	registration.Status = models.RegistrationStatusCompleted
	registration.GradeCode = &def.Code
	registration.GradePoints = def.Points
	return registration, nil
}

// JoinWaitlist appends the student to a section's waitlist. Position
// assignment happens under the section row lock so no two entries can share
// a position.
func (s *RegistrationService) JoinWaitlist(ctx context.Context, sectionID string, req WaitlistRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist payload")
	}
	if !s.cfg.WaitlistEnabled {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "waitlisting is disabled")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	section, err := s.sections.LockByID(ctx, tx, sectionID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock section")
	}

	exists, err := s.registrations.ExistsActivePair(ctx, tx, req.StudentID, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already registered for section")
	}
	if _, err = s.registrations.FindWaitingEntry(ctx, tx, req.StudentID, sectionID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already on waitlist")
	} else if !isNoRows(err) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check waitlist")
	}
	err = nil

	if !s.capacity.CanWaitlist(section) {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "waitlist is full")
	}

	position, err := s.registrations.NextWaitlistPosition(ctx, tx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign waitlist position")
	}
	entry := &models.WaitlistEntry{
		SectionID: sectionID,
		StudentID: req.StudentID,
		Position:  position,
		Status:    models.WaitlistStatusWaiting,
	}
	if err = s.registrations.CreateWaitlistEntry(ctx, tx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create waitlist entry")
	}
	if err = s.capacity.TakeWaitlistSlot(ctx, tx, sectionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update waitlist counter")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit waitlist join")
	}

	s.observe("waitlist", "joined")
	return entry, nil
}

// LeaveWaitlist marks the entry removed and lowers the counter. Positions of
// remaining entries stay as assigned.
func (s *RegistrationService) LeaveWaitlist(ctx context.Context, sectionID string, req WaitlistRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist payload")
	}

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.sections.LockByID(ctx, tx, sectionID); err != nil {
		if isNoRows(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock section")
	}

	entry, err := s.registrations.FindWaitingEntry(ctx, tx, req.StudentID, sectionID)
	if err != nil {
		if isNoRows(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	if err = s.registrations.UpdateWaitlistStatus(ctx, tx, entry.ID, models.WaitlistStatusRemoved); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove waitlist entry")
	}
	if err = s.capacity.ReleaseWaitlistSlot(ctx, tx, sectionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update waitlist counter")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit waitlist leave")
	}

	s.observe("waitlist", "left")
	return nil
}

// CheckEligibility answers the read-only pre-flight question for one
// section, enumerating every blocking condition rather than stopping at the
// first.
func (s *RegistrationService) CheckEligibility(ctx context.Context, studentID, sectionID string) (*EligibilityResult, error) {
	ec, err := s.loadEnrollmentContext(ctx, studentID, sectionID)
	if err != nil {
		return nil, err
	}

	result := &EligibilityResult{}

	blocking, err := s.blockingHolds(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(blocking) > 0 {
		result.Reasons = append(result.Reasons, ValidationMessage{Code: codeHoldBlocks, Message: fmt.Sprintf("registration blocked by holds: %s", holdCodes(blocking))})
	}

	if !s.addWindowOpen(ec.term, s.now()) {
		result.Reasons = append(result.Reasons, ValidationMessage{Code: codeRegistrationClosed, Message: "registration window closed for term"})
	}

	exists, err := s.registrations.ExistsActivePair(ctx, nil, studentID, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
	}
	if exists {
		result.Reasons = append(result.Reasons, ValidationMessage{Code: codeDuplicateActivePair, Message: "student already registered for section"})
	}

	if !s.capacity.CanEnroll(ec.section) {
		msg := "section is full"
		if s.capacity.CanWaitlist(ec.section) {
			msg = "section is full; waitlist available"
		}
		result.Reasons = append(result.Reasons, ValidationMessage{Code: codeSectionFull, Message: msg})
	}

	requisites, err := s.requisites.Evaluate(ctx, studentID, ec.section.CourseID)
	if err != nil {
		return nil, err
	}
	if !requisites.Met {
		result.Reasons = append(result.Reasons, ValidationMessage{Code: codePrerequisitesUnmet, Message: missingSummary(requisites.Missing)})
		result.MissingRequisites = requisites.Missing
	}

	conflicts, err := s.candidateConflicts(ctx, studentID, ec.section.TermID, sectionID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		result.Reasons = append(result.Reasons, ValidationMessage{Code: codeScheduleConflict, Message: "schedule conflict with a registered section"})
		result.Conflicts = conflicts
	}

	result.Eligible = len(result.Reasons) == 0
	return result, nil
}

// ValidateRegistrationCart runs every check over the whole cart without
// mutating anything, accumulating per-section errors and warnings for UI
// pre-flight.
func (s *RegistrationService) ValidateRegistrationCart(ctx context.Context, req RegistrationCartRequest) (*CartValidationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cart payload")
	}
	if len(req.SectionIDs) > s.cfg.MaxCartSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cart exceeds maximum of %d sections", s.cfg.MaxCartSize))
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	result := &CartValidationResult{Sections: make([]SectionValidation, 0, len(req.SectionIDs))}

	if !student.Active {
		result.GlobalErrors = append(result.GlobalErrors, ValidationMessage{Code: codeHoldBlocks, Message: "student inactive"})
	}
	blocking, err := s.blockingHolds(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if len(blocking) > 0 {
		result.GlobalErrors = append(result.GlobalErrors, ValidationMessage{Code: codeHoldBlocks, Message: fmt.Sprintf("registration blocked by holds: %s", holdCodes(blocking))})
	}

	cartMeetings, err := s.sections.ListMeetingsBySections(ctx, req.SectionIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cart meetings")
	}
	pairConflicts := CartConflicts(cartMeetings, req.SectionIDs)

	for _, sectionID := range req.SectionIDs {
		validation := SectionValidation{SectionID: sectionID}

		section, err := s.sections.FindByID(ctx, sectionID)
		if err != nil {
			if isNoRows(err) {
				validation.Errors = append(validation.Errors, ValidationMessage{Code: codeSectionNotFound, Message: "section not found"})
				result.Sections = append(result.Sections, validation)
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
		}
		if !section.Active {
			validation.Errors = append(validation.Errors, ValidationMessage{Code: codeSectionInactive, Message: "section is not open for registration"})
		}

		term, err := s.terms.FindByID(ctx, section.TermID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
		if !s.addWindowOpen(term, s.now()) {
			validation.Errors = append(validation.Errors, ValidationMessage{Code: codeRegistrationClosed, Message: "registration window closed for term"})
		}

		exists, err := s.registrations.ExistsActivePair(ctx, nil, req.StudentID, sectionID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
		}
		if exists {
			validation.Errors = append(validation.Errors, ValidationMessage{Code: codeDuplicateActivePair, Message: "student already registered for section"})
		}

		if !s.capacity.CanEnroll(section) {
			validation.Errors = append(validation.Errors, ValidationMessage{Code: codeSectionFull, Message: "section is full"})
			if s.capacity.CanWaitlist(section) {
				validation.Warnings = append(validation.Warnings, ValidationMessage{Code: codeWaitlistAvailable, Message: "waitlist has open slots"})
			}
		} else if section.MaxEnrollment > 0 && float64(section.CurrentEnrollment)/float64(section.MaxEnrollment) >= s.cfg.NearFullRatio {
			validation.Warnings = append(validation.Warnings, ValidationMessage{Code: codeSectionNearlyFull, Message: "section is nearly full"})
		}

		requisites, err := s.requisites.Evaluate(ctx, req.StudentID, section.CourseID)
		if err != nil {
			return nil, err
		}
		if !requisites.Met {
			validation.Errors = append(validation.Errors, ValidationMessage{Code: codePrerequisitesUnmet, Message: missingSummary(requisites.Missing)})
		}

		conflicts, err := s.candidateConflicts(ctx, req.StudentID, section.TermID, sectionID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			validation.Errors = append(validation.Errors, ValidationMessage{Code: codeScheduleConflict, Message: "schedule conflict with a registered section"})
		}
		if len(pairConflicts[sectionID]) > 0 {
			validation.Errors = append(validation.Errors, ValidationMessage{Code: codeScheduleConflict, Message: "schedule conflict with another cart section"})
		}

		result.Sections = append(result.Sections, validation)
	}

	result.CanRegister = len(result.GlobalErrors) == 0
	for _, v := range result.Sections {
		if len(v.Errors) > 0 {
			result.CanRegister = false
		}
	}
	return result, nil
}

// RegisterForSections commits a whole cart in one transaction: every member
// registers or none do. Section locks are taken in ID order to avoid lock
// cycles between concurrent carts.
func (s *RegistrationService) RegisterForSections(ctx context.Context, req RegistrationCartRequest) ([]models.Registration, error) {
	validation, err := s.ValidateRegistrationCart(ctx, req)
	if err != nil {
		return nil, err
	}
	if !validation.CanRegister {
		s.observe("batch", "rejected")
		return nil, cartFailure(validation)
	}

	sectionIDs := append([]string(nil), req.SectionIDs...)
	sort.Strings(sectionIDs)

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	registrations := make([]models.Registration, 0, len(sectionIDs))
	for _, sectionID := range sectionIDs {
		section, findErr := s.sections.FindByID(ctx, sectionID)
		if findErr != nil {
			err = appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
			return nil, err
		}
		course, findErr := s.courses.FindByID(ctx, section.CourseID)
		if findErr != nil {
			err = appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
			return nil, err
		}

		var registration *models.Registration
		registration, err = s.enrollInTx(ctx, tx, req.StudentID, sectionID, section.TermID, course.DefaultCredits, models.GradeModeStandard, enrollOptions{})
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, *registration)
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit batch registration")
	}

	s.observe("batch", "registered")
	s.logger.Info("cart registered",
		zap.String("student_id", req.StudentID),
		zap.Int("sections", len(registrations)))
	return registrations, nil
}

// ListWaitlist exposes a section's waiting entries in position order.
func (s *RegistrationService) ListWaitlist(ctx context.Context, sectionID string) ([]models.WaitlistEntry, error) {
	entries, err := s.registrations.ListWaitlist(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}
	return entries, nil
}

// cartFailure maps the first recorded validation error to the operation's
// error taxonomy for the committing path.
func cartFailure(validation *CartValidationResult) error {
	pick := func(msg ValidationMessage) error {
		switch msg.Code {
		case codeHoldBlocks:
			return appErrors.Clone(appErrors.ErrForbidden, msg.Message)
		case codeSectionNotFound:
			return appErrors.Clone(appErrors.ErrNotFound, msg.Message)
		case codePrerequisitesUnmet:
			return appErrors.Clone(appErrors.ErrPreconditionFailed, msg.Message)
		case codeScheduleConflict, codeDuplicateActivePair:
			return appErrors.Clone(appErrors.ErrConflict, msg.Message)
		default:
			return appErrors.Clone(appErrors.ErrBadRequest, msg.Message)
		}
	}
	if len(validation.GlobalErrors) > 0 {
		return pick(validation.GlobalErrors[0])
	}
	for _, v := range validation.Sections {
		if len(v.Errors) > 0 {
			return pick(v.Errors[0])
		}
	}
	return appErrors.Clone(appErrors.ErrBadRequest, "cart validation failed")
}

func missingSummary(missing []models.MissingRequirement) string {
	if len(missing) == 0 {
		return "prerequisites not met"
	}
	parts := make([]string, len(missing))
	for i, m := range missing {
		parts[i] = m.Description
	}
	return "prerequisites not met: " + strings.Join(parts, "; ")
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
