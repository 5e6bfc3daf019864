package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registration-api/internal/models"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
)

type mockRegStore struct {
	byID        map[string]models.Registration
	pairs       map[string]models.Registration
	activePairs map[string]bool

	created   []*models.Registration
	revived   []string
	overrides []string
	status    map[string]models.RegistrationStatus
	withdrawn map[string]string
	graded    map[string]string

	waiting        map[string]models.WaitlistEntry
	waitlistStatus map[string]models.WaitlistStatus
	entries        []*models.WaitlistEntry
	nextPosition   int
}

func pairKey(studentID, sectionID string) string { return studentID + "|" + sectionID }

func (m *mockRegStore) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	return nil, 0, nil
}

func (m *mockRegStore) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if r, ok := m.byID[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegStore) FindByPair(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (*models.Registration, error) {
	if r, ok := m.pairs[pairKey(studentID, sectionID)]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegStore) ExistsActivePair(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (bool, error) {
	return m.activePairs[pairKey(studentID, sectionID)], nil
}

func (m *mockRegStore) ListRegisteredByStudentAndTerm(ctx context.Context, studentID, termID string) ([]models.Registration, error) {
	var out []models.Registration
	for _, r := range m.byID {
		if r.StudentID == studentID && r.TermID == termID && r.Status == models.RegistrationStatusRegistered {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRegStore) Create(ctx context.Context, exec sqlx.ExtContext, registration *models.Registration) error {
	if registration.ID == "" {
		registration.ID = fmt.Sprintf("reg-%d", len(m.created)+1)
	}
	if m.byID == nil {
		m.byID = make(map[string]models.Registration)
	}
	m.byID[registration.ID] = *registration
	m.created = append(m.created, registration)
	return nil
}

func (m *mockRegStore) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RegistrationStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.RegistrationStatus)
	}
	m.status[id] = status
	return nil
}

func (m *mockRegStore) Revive(ctx context.Context, exec sqlx.ExtContext, id string, creditHours float64) error {
	m.revived = append(m.revived, id)
	return nil
}

func (m *mockRegStore) SetOverride(ctx context.Context, exec sqlx.ExtContext, id string, capacity, requisite bool, reason, actor string) error {
	m.overrides = append(m.overrides, id)
	return nil
}

func (m *mockRegStore) SetWithdrawal(ctx context.Context, exec sqlx.ExtContext, id, gradeCode string, lastAttendance *time.Time) error {
	if m.withdrawn == nil {
		m.withdrawn = make(map[string]string)
	}
	m.withdrawn[id] = gradeCode
	return nil
}

func (m *mockRegStore) SetGrade(ctx context.Context, exec sqlx.ExtContext, id, gradeCode string, gradePoints *float64) error {
	if m.graded == nil {
		m.graded = make(map[string]string)
	}
	m.graded[id] = gradeCode
	return nil
}

func (m *mockRegStore) FindWaitingEntry(ctx context.Context, exec sqlx.ExtContext, studentID, sectionID string) (*models.WaitlistEntry, error) {
	if e, ok := m.waiting[pairKey(studentID, sectionID)]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegStore) NextWaitlistPosition(ctx context.Context, exec sqlx.ExtContext, sectionID string) (int, error) {
	m.nextPosition++
	return m.nextPosition, nil
}

func (m *mockRegStore) CreateWaitlistEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("wl-%d", len(m.entries)+1)
	}
	if m.waiting == nil {
		m.waiting = make(map[string]models.WaitlistEntry)
	}
	m.waiting[pairKey(entry.StudentID, entry.SectionID)] = *entry
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockRegStore) UpdateWaitlistStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.WaitlistStatus) error {
	if m.waitlistStatus == nil {
		m.waitlistStatus = make(map[string]models.WaitlistStatus)
	}
	m.waitlistStatus[id] = status
	for key, e := range m.waiting {
		if e.ID == id && status != models.WaitlistStatusWaiting {
			delete(m.waiting, key)
		}
	}
	return nil
}

func (m *mockRegStore) ListWaitlist(ctx context.Context, sectionID string) ([]models.WaitlistEntry, error) {
	var out []models.WaitlistEntry
	for _, e := range m.waiting {
		if e.SectionID == sectionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockSectionStore struct {
	sections map[string]*models.Section
	meetings map[string][]models.MeetingTime

	seatsTaken    map[string]int
	seatsReleased map[string]int
	slotsTaken    map[string]int
	slotsReleased map[string]int
}

func (m *mockSectionStore) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionStore) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Section, error) {
	return m.FindByID(ctx, id)
}

func (m *mockSectionStore) ListMeetings(ctx context.Context, sectionID string) ([]models.MeetingTime, error) {
	return m.meetings[sectionID], nil
}

func (m *mockSectionStore) ListMeetingsBySections(ctx context.Context, sectionIDs []string) (map[string][]models.MeetingTime, error) {
	out := make(map[string][]models.MeetingTime)
	for _, id := range sectionIDs {
		if ms, ok := m.meetings[id]; ok {
			out[id] = ms
		}
	}
	return out, nil
}

func bump(m map[string]int, id string) map[string]int {
	if m == nil {
		m = make(map[string]int)
	}
	m[id]++
	return m
}

func (m *mockSectionStore) IncrementEnrollment(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.seatsTaken = bump(m.seatsTaken, id)
	m.sections[id].CurrentEnrollment++
	return nil
}

func (m *mockSectionStore) DecrementEnrollment(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.seatsReleased = bump(m.seatsReleased, id)
	if m.sections[id].CurrentEnrollment > 0 {
		m.sections[id].CurrentEnrollment--
	}
	return nil
}

func (m *mockSectionStore) IncrementWaitlist(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.slotsTaken = bump(m.slotsTaken, id)
	m.sections[id].WaitlistCurrent++
	return nil
}

func (m *mockSectionStore) DecrementWaitlist(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.slotsReleased = bump(m.slotsReleased, id)
	if m.sections[id].WaitlistCurrent > 0 {
		m.sections[id].WaitlistCurrent--
	}
	return nil
}

type mockStudentStore struct {
	students map[string]*models.Student
}

func (m *mockStudentStore) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseStore struct {
	courses map[string]*models.Course
}

func (m *mockCourseStore) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockTermStore struct {
	terms map[string]*models.Term
}

func (m *mockTermStore) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := m.terms[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

type mockHoldStore struct {
	holds map[string][]models.Hold
}

func (m *mockHoldStore) ListActiveByStudent(ctx context.Context, studentID string) ([]models.Hold, error) {
	return m.holds[studentID], nil
}

type mockRequisiteChecker struct {
	results map[string]*models.RequisiteResult
}

func (m *mockRequisiteChecker) Evaluate(ctx context.Context, studentID, courseID string) (*models.RequisiteResult, error) {
	if r, ok := m.results[courseID]; ok {
		return r, nil
	}
	return &models.RequisiteResult{Met: true}, nil
}

type mockGradeRefStore struct {
	definitions map[string]models.GradeDefinition
}

func (m *mockGradeRefStore) FindDefinitionByCode(ctx context.Context, code string) (*models.GradeDefinition, error) {
	if d, ok := m.definitions[code]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

type mockAttemptProjector struct {
	attempts []*models.CourseAttempt
}

func (m *mockAttemptProjector) CreateAttempt(ctx context.Context, exec sqlx.ExtContext, attempt *models.CourseAttempt) error {
	m.attempts = append(m.attempts, attempt)
	return nil
}

type mockGpaProjection struct {
	invalidated []string
	queued      []string
}

func (m *mockGpaProjection) InvalidateStudent(ctx context.Context, studentID string) error {
	m.invalidated = append(m.invalidated, studentID)
	return nil
}

func (m *mockGpaProjection) EnqueueRefresh(studentID string) {
	m.queued = append(m.queued, studentID)
}

type registrationFixture struct {
	svc      *RegistrationService
	regs     *mockRegStore
	sections *mockSectionStore
	students *mockStudentStore
	terms    *mockTermStore
	holds    *mockHoldStore
	reqs     *mockRequisiteChecker
	attempts *mockAttemptProjector
	gpa      *mockGpaProjection
	db       *sqlx.DB
	dbMock   sqlmock.Sqlmock
	now      time.Time
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()

	mockDB, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "sqlmock")

	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	f := &registrationFixture{
		regs: &mockRegStore{byID: map[string]models.Registration{}, pairs: map[string]models.Registration{}, activePairs: map[string]bool{}},
		sections: &mockSectionStore{
			sections: map[string]*models.Section{
				"sec-1": {ID: "sec-1", CourseID: "course-1", TermID: "term-1", MaxEnrollment: 30, CurrentEnrollment: 10, WaitlistMax: 5, Active: true},
				"sec-2": {ID: "sec-2", CourseID: "course-2", TermID: "term-1", MaxEnrollment: 30, CurrentEnrollment: 5, WaitlistMax: 5, Active: true},
			},
			meetings: map[string][]models.MeetingTime{},
		},
		students: &mockStudentStore{students: map[string]*models.Student{
			"student-1": {ID: "student-1", Active: true},
		}},
		terms: &mockTermStore{terms: map[string]*models.Term{
			"term-1": {
				ID:                 "term-1",
				RegistrationStart:  now.AddDate(0, 0, -14),
				AddDeadline:        now.AddDate(0, 0, 7),
				DropDeadline:       now.AddDate(0, 0, 21),
				WithdrawalDeadline: now.AddDate(0, 0, 60),
			},
		}},
		holds:    &mockHoldStore{holds: map[string][]models.Hold{}},
		reqs:     &mockRequisiteChecker{results: map[string]*models.RequisiteResult{}},
		attempts: &mockAttemptProjector{},
		gpa:      &mockGpaProjection{},
		db:       db,
		dbMock:   dbMock,
		now:      now,
	}

	courses := &mockCourseStore{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Code: "MATH101", DefaultCredits: 3},
		"course-2": {ID: "course-2", Code: "PHYS101", DefaultCredits: 4},
	}}
	gradeDefs := &mockGradeRefStore{definitions: map[string]models.GradeDefinition{
		"A": {Code: "A", Points: ptr(4.0), CountInGpa: true, EarnedCredits: true, AttemptedCredits: true},
		"F": {Code: "F", Points: ptr(0.0), CountInGpa: true, AttemptedCredits: true},
		"W": {Code: "W", IsWithdrawal: true},
	}}

	f.svc = NewRegistrationService(
		f.regs,
		f.sections,
		f.students,
		courses,
		f.terms,
		f.holds,
		f.reqs,
		gradeDefs,
		f.attempts,
		f.gpa,
		NewCapacityManager(f.sections),
		db,
		nil,
		nil,
		nil,
		RegistrationServiceConfig{WaitlistEnabled: true, NearFullRatio: 0.9, MaxCartSize: 10},
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *registrationFixture) expectTxCommit() {
	f.dbMock.ExpectBegin()
	f.dbMock.ExpectCommit()
}

func (f *registrationFixture) expectTxRollback() {
	f.dbMock.ExpectBegin()
	f.dbMock.ExpectRollback()
}

func TestEnrollSuccess(t *testing.T) {
	f := newRegistrationFixture(t)
	f.expectTxCommit()

	registration, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusRegistered, registration.Status)
	assert.Equal(t, 3.0, registration.CreditHours)
	assert.Equal(t, models.GradeModeStandard, registration.GradeMode)
	assert.Equal(t, 1, f.sections.seatsTaken["sec-1"])
	require.NoError(t, f.dbMock.ExpectationsWereMet())
}

func TestEnrollMissingStudent(t *testing.T) {
	f := newRegistrationFixture(t)

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "ghost", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollDuplicateActivePair(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.activePairs[pairKey("student-1", "sec-1")] = true
	f.expectTxRollback()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Zero(t, f.sections.seatsTaken["sec-1"])
}

func TestEnrollBlockedByHold(t *testing.T) {
	f := newRegistrationFixture(t)
	f.holds.holds["student-1"] = []models.Hold{{Code: "FIN", BlocksRegistration: true}}

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestEnrollNonBlockingHoldAllowed(t *testing.T) {
	f := newRegistrationFixture(t)
	f.holds.holds["student-1"] = []models.Hold{{Code: "LIB", BlocksRegistration: false}}
	f.expectTxCommit()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.NoError(t, err)
}

func TestEnrollWindowClosed(t *testing.T) {
	f := newRegistrationFixture(t)
	f.now = f.now.AddDate(0, 0, 30)

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
}

func TestEnrollPrerequisitesUnmet(t *testing.T) {
	f := newRegistrationFixture(t)
	f.reqs.results["course-1"] = &models.RequisiteResult{
		Met:     false,
		Missing: []models.MissingRequirement{{Description: "MATH100 with minimum grade C", CourseCode: "MATH100"}},
	}

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEnrollScheduleConflict(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-existing"] = models.Registration{
		ID: "reg-existing", StudentID: "student-1", SectionID: "sec-2", TermID: "term-1",
		Status: models.RegistrationStatusRegistered,
	}
	f.sections.meetings["sec-1"] = []models.MeetingTime{meeting("sec-1", "MON", 540, 600)}
	f.sections.meetings["sec-2"] = []models.MeetingTime{meeting("sec-2", "MON", 570, 630)}

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollBackToBackSectionsAllowed(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-existing"] = models.Registration{
		ID: "reg-existing", StudentID: "student-1", SectionID: "sec-2", TermID: "term-1",
		Status: models.RegistrationStatusRegistered,
	}
	f.sections.meetings["sec-1"] = []models.MeetingTime{meeting("sec-1", "MON", 600, 660)}
	f.sections.meetings["sec-2"] = []models.MeetingTime{meeting("sec-2", "MON", 540, 600)}
	f.expectTxCommit()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.NoError(t, err)
}

func TestEnrollSectionFull(t *testing.T) {
	f := newRegistrationFixture(t)
	f.sections.sections["sec-1"].CurrentEnrollment = 30
	f.expectTxRollback()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
	assert.Zero(t, f.sections.seatsTaken["sec-1"])
}

func TestEnrollLastSeatSingleWinner(t *testing.T) {
	f := newRegistrationFixture(t)
	f.sections.sections["sec-1"].CurrentEnrollment = 29
	f.students.students["student-2"] = &models.Student{ID: "student-2", Active: true}
	f.expectTxCommit()
	f.expectTxRollback()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.NoError(t, err)

	// The locked re-read sees the taken seat; the second caller is refused.
	_, err = f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-2", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, f.sections.seatsTaken["sec-1"])
}

func TestEnrollVariableCreditBounds(t *testing.T) {
	f := newRegistrationFixture(t)
	course := &models.Course{ID: "course-1", Code: "MATH101", DefaultCredits: 3, VariableCredit: true, MinCredits: ptr(1.0), MaxCredits: ptr(6.0)}
	f.svc.courses = &mockCourseStore{courses: map[string]*models.Course{"course-1": course, "course-2": course}}

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1", CreditHours: ptr(9.0)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)

	f.expectTxCommit()
	registration, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1", CreditHours: ptr(2.0)})
	require.NoError(t, err)
	assert.Equal(t, 2.0, registration.CreditHours)
}

func TestOverrideEnrollPastCapacityAndRequisites(t *testing.T) {
	f := newRegistrationFixture(t)
	f.sections.sections["sec-1"].CurrentEnrollment = 30
	f.reqs.results["course-1"] = &models.RequisiteResult{Met: false, Missing: []models.MissingRequirement{{Description: "MATH100"}}}
	f.expectTxCommit()

	registration, err := f.svc.OverrideEnroll(context.Background(), "registrar-1", OverrideEnrollRequest{
		EnrollRequest:     EnrollRequest{StudentID: "student-1", SectionID: "sec-1"},
		CapacityOverride:  true,
		RequisiteOverride: true,
		OverrideReason:    "department chair approval",
	})
	require.NoError(t, err)
	assert.True(t, registration.CapacityOverride)
	assert.True(t, registration.RequisiteOverride)
	require.NotNil(t, registration.OverrideBy)
	assert.Equal(t, "registrar-1", *registration.OverrideBy)
	// Override pushes enrollment past max.
	assert.Equal(t, 1, f.sections.seatsTaken["sec-1"])
}

func TestOverrideEnrollRequiresReasonAndFlag(t *testing.T) {
	f := newRegistrationFixture(t)

	_, err := f.svc.OverrideEnroll(context.Background(), "registrar-1", OverrideEnrollRequest{
		EnrollRequest:    EnrollRequest{StudentID: "student-1", SectionID: "sec-1"},
		CapacityOverride: true,
	})
	require.Error(t, err)

	_, err = f.svc.OverrideEnroll(context.Background(), "registrar-1", OverrideEnrollRequest{
		EnrollRequest:  EnrollRequest{StudentID: "student-1", SectionID: "sec-1"},
		OverrideReason: "no flag set",
	})
	require.Error(t, err)
}

func TestReEnrollRevivesDroppedRegistration(t *testing.T) {
	f := newRegistrationFixture(t)
	prior := models.Registration{ID: "reg-old", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1", Status: models.RegistrationStatusDropped}
	f.regs.pairs[pairKey("student-1", "sec-1")] = prior
	f.expectTxCommit()

	registration, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.NoError(t, err)
	assert.Equal(t, "reg-old", registration.ID)
	assert.Equal(t, models.RegistrationStatusRegistered, registration.Status)
	assert.Contains(t, f.regs.revived, "reg-old")
	assert.Empty(t, f.regs.created)
}

func TestReEnrollCompletedRegistrationRejected(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.pairs[pairKey("student-1", "sec-1")] = models.Registration{
		ID: "reg-done", StudentID: "student-1", SectionID: "sec-1", Status: models.RegistrationStatusCompleted,
	}
	f.expectTxRollback()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "student-1", SectionID: "sec-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDropReleasesSeat(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-1"] = models.Registration{ID: "reg-1", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1", Status: models.RegistrationStatusRegistered}
	f.expectTxCommit()

	registration, err := f.svc.Drop(context.Background(), "reg-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusDropped, registration.Status)
	assert.Equal(t, models.RegistrationStatusDropped, f.regs.status["reg-1"])
	assert.Equal(t, 1, f.sections.seatsReleased["sec-1"])
}

func TestDropAfterDeadline(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-1"] = models.Registration{ID: "reg-1", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1", Status: models.RegistrationStatusRegistered}
	f.now = f.now.AddDate(0, 0, 30)

	_, err := f.svc.Drop(context.Background(), "reg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
	assert.Zero(t, f.sections.seatsReleased["sec-1"])
}

func TestDropWrongStatus(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-1"] = models.Registration{ID: "reg-1", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1", Status: models.RegistrationStatusCompleted}

	_, err := f.svc.Drop(context.Background(), "reg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestWithdrawBetweenDeadlines(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-1"] = models.Registration{ID: "reg-1", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1", Status: models.RegistrationStatusRegistered}
	f.now = f.now.AddDate(0, 0, 30) // past drop, before withdrawal deadline
	f.expectTxCommit()

	registration, err := f.svc.Withdraw(context.Background(), "reg-1", WithdrawRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusWithdrawn, registration.Status)
	assert.Equal(t, "W", f.regs.withdrawn["reg-1"])
	require.NotNil(t, registration.LastAttendanceDate)
	assert.Equal(t, 1, f.sections.seatsReleased["sec-1"])
}

func TestWithdrawAfterDeadline(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-1"] = models.Registration{ID: "reg-1", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1", Status: models.RegistrationStatusRegistered}
	f.now = f.now.AddDate(0, 0, 90)

	_, err := f.svc.Withdraw(context.Background(), "reg-1", WithdrawRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
}

func TestPostGradeCompletesAndProjects(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-1"] = models.Registration{
		ID: "reg-1", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1",
		Status: models.RegistrationStatusRegistered, CreditHours: 3, GradeMode: models.GradeModeStandard,
	}
	f.expectTxCommit()

	registration, err := f.svc.PostGrade(context.Background(), "reg-1", PostGradeRequest{GradeCode: "A"})
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCompleted, registration.Status)
	assert.Equal(t, "A", f.regs.graded["reg-1"])

	require.Len(t, f.attempts.attempts, 1)
	attempt := f.attempts.attempts[0]
	assert.Equal(t, "course-1", attempt.CourseID)
	assert.Equal(t, 3.0, attempt.Credits)
	assert.True(t, attempt.IncludeInGpa)
	assert.True(t, attempt.CreditsEarned)

	assert.Contains(t, f.gpa.invalidated, "student-1")
	assert.Contains(t, f.gpa.queued, "student-1")
}

func TestPostGradePassFailExcludedFromGpa(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-1"] = models.Registration{
		ID: "reg-1", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1",
		Status: models.RegistrationStatusRegistered, CreditHours: 3, GradeMode: models.GradeModePassFail,
	}
	f.expectTxCommit()

	_, err := f.svc.PostGrade(context.Background(), "reg-1", PostGradeRequest{GradeCode: "A"})
	require.NoError(t, err)
	require.Len(t, f.attempts.attempts, 1)
	assert.False(t, f.attempts.attempts[0].IncludeInGpa)
}

func TestPostGradeUnknownCode(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.byID["reg-1"] = models.Registration{ID: "reg-1", StudentID: "student-1", SectionID: "sec-1", TermID: "term-1", Status: models.RegistrationStatusRegistered}

	_, err := f.svc.PostGrade(context.Background(), "reg-1", PostGradeRequest{GradeCode: "Z+"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.attempts.attempts)
}

func TestJoinWaitlistAssignsMonotonicPositions(t *testing.T) {
	f := newRegistrationFixture(t)
	f.students.students["student-2"] = &models.Student{ID: "student-2", Active: true}
	f.students.students["student-3"] = &models.Student{ID: "student-3", Active: true}
	f.expectTxCommit()
	f.expectTxCommit()
	f.expectTxCommit() // leave
	f.expectTxCommit()

	first, err := f.svc.JoinWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-1"})
	require.NoError(t, err)
	second, err := f.svc.JoinWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-2"})
	require.NoError(t, err)

	require.NoError(t, f.svc.LeaveWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-1"}))

	third, err := f.svc.JoinWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-3"})
	require.NoError(t, err)

	// Positions keep increasing; the removed entry's slot is never reused.
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, second.Position)
	assert.Equal(t, 3, third.Position)
	assert.Equal(t, 2, f.sections.slotsTaken["sec-1"]-f.sections.slotsReleased["sec-1"])
}

func TestJoinWaitlistFull(t *testing.T) {
	f := newRegistrationFixture(t)
	f.sections.sections["sec-1"].WaitlistCurrent = 5
	f.expectTxRollback()

	_, err := f.svc.JoinWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
}

func TestJoinWaitlistAlreadyRegistered(t *testing.T) {
	f := newRegistrationFixture(t)
	f.regs.activePairs[pairKey("student-1", "sec-1")] = true
	f.expectTxRollback()

	_, err := f.svc.JoinWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestJoinWaitlistTwiceRejected(t *testing.T) {
	f := newRegistrationFixture(t)
	f.expectTxCommit()
	f.expectTxRollback()

	_, err := f.svc.JoinWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-1"})
	require.NoError(t, err)

	_, err = f.svc.JoinWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestJoinWaitlistDisabled(t *testing.T) {
	f := newRegistrationFixture(t)
	f.svc.cfg.WaitlistEnabled = false

	_, err := f.svc.JoinWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
}

func TestLeaveWaitlistNotFound(t *testing.T) {
	f := newRegistrationFixture(t)
	f.expectTxRollback()

	err := f.svc.LeaveWaitlist(context.Background(), "sec-1", WaitlistRequest{StudentID: "student-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCheckEligibilityAllClear(t *testing.T) {
	f := newRegistrationFixture(t)

	result, err := f.svc.CheckEligibility(context.Background(), "student-1", "sec-1")
	require.NoError(t, err)
	assert.True(t, result.Eligible)
	assert.Empty(t, result.Reasons)
}

func TestCheckEligibilityAccumulatesReasons(t *testing.T) {
	f := newRegistrationFixture(t)
	f.holds.holds["student-1"] = []models.Hold{{Code: "FIN", BlocksRegistration: true}}
	f.sections.sections["sec-1"].CurrentEnrollment = 30
	f.reqs.results["course-1"] = &models.RequisiteResult{Met: false, Missing: []models.MissingRequirement{{Description: "MATH100", CourseCode: "MATH100"}}}

	result, err := f.svc.CheckEligibility(context.Background(), "student-1", "sec-1")
	require.NoError(t, err)
	assert.False(t, result.Eligible)

	codes := make(map[string]bool)
	for _, reason := range result.Reasons {
		codes[reason.Code] = true
	}
	assert.True(t, codes["HOLD_BLOCKS_REGISTRATION"])
	assert.True(t, codes["SECTION_FULL"])
	assert.True(t, codes["PREREQUISITES_NOT_MET"])
	assert.Len(t, result.MissingRequisites, 1)
}

func TestValidateCartWarningsDoNotBlock(t *testing.T) {
	f := newRegistrationFixture(t)
	f.sections.sections["sec-1"].CurrentEnrollment = 28 // >= 90% of 30

	result, err := f.svc.ValidateRegistrationCart(context.Background(), RegistrationCartRequest{
		StudentID:  "student-1",
		SectionIDs: []string{"sec-1", "sec-2"},
	})
	require.NoError(t, err)
	assert.True(t, result.CanRegister)

	var warned bool
	for _, v := range result.Sections {
		for _, w := range v.Warnings {
			if w.Code == "SECTION_NEARLY_FULL" {
				warned = true
			}
		}
	}
	assert.True(t, warned)
}

func TestValidateCartFullSectionWithWaitlistWarning(t *testing.T) {
	f := newRegistrationFixture(t)
	f.sections.sections["sec-1"].CurrentEnrollment = 30

	result, err := f.svc.ValidateRegistrationCart(context.Background(), RegistrationCartRequest{
		StudentID:  "student-1",
		SectionIDs: []string{"sec-1"},
	})
	require.NoError(t, err)
	assert.False(t, result.CanRegister)
	require.Len(t, result.Sections, 1)
	require.Len(t, result.Sections[0].Errors, 1)
	assert.Equal(t, "SECTION_FULL", result.Sections[0].Errors[0].Code)
	require.Len(t, result.Sections[0].Warnings, 1)
	assert.Equal(t, "WAITLIST_AVAILABLE", result.Sections[0].Warnings[0].Code)
}

func TestValidateCartUnknownSectionDoesNotAbort(t *testing.T) {
	f := newRegistrationFixture(t)

	result, err := f.svc.ValidateRegistrationCart(context.Background(), RegistrationCartRequest{
		StudentID:  "student-1",
		SectionIDs: []string{"ghost", "sec-1"},
	})
	require.NoError(t, err)
	assert.False(t, result.CanRegister)
	require.Len(t, result.Sections, 2)
	assert.Equal(t, "SECTION_NOT_FOUND", result.Sections[0].Errors[0].Code)
	assert.Empty(t, result.Sections[1].Errors)
}

func TestValidateCartPairwiseConflictReportedBothSides(t *testing.T) {
	f := newRegistrationFixture(t)
	f.sections.meetings["sec-1"] = []models.MeetingTime{meeting("sec-1", "MON", 540, 600)}
	f.sections.meetings["sec-2"] = []models.MeetingTime{meeting("sec-2", "MON", 570, 630)}

	result, err := f.svc.ValidateRegistrationCart(context.Background(), RegistrationCartRequest{
		StudentID:  "student-1",
		SectionIDs: []string{"sec-1", "sec-2"},
	})
	require.NoError(t, err)
	assert.False(t, result.CanRegister)
	for _, v := range result.Sections {
		require.NotEmpty(t, v.Errors, "section %s should report the conflict", v.SectionID)
		assert.Equal(t, "SCHEDULE_CONFLICT", v.Errors[0].Code)
	}
}

func TestValidateCartTooLarge(t *testing.T) {
	f := newRegistrationFixture(t)
	ids := make([]string, 11)
	for i := range ids {
		ids[i] = fmt.Sprintf("sec-%d", i)
	}

	_, err := f.svc.ValidateRegistrationCart(context.Background(), RegistrationCartRequest{StudentID: "student-1", SectionIDs: ids})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegisterForSectionsAllOrNothing(t *testing.T) {
	f := newRegistrationFixture(t)
	f.expectTxCommit()

	registrations, err := f.svc.RegisterForSections(context.Background(), RegistrationCartRequest{
		StudentID:  "student-1",
		SectionIDs: []string{"sec-2", "sec-1"},
	})
	require.NoError(t, err)
	require.Len(t, registrations, 2)
	assert.Equal(t, 1, f.sections.seatsTaken["sec-1"])
	assert.Equal(t, 1, f.sections.seatsTaken["sec-2"])
	// Sections are processed in ID order regardless of request order.
	assert.Equal(t, "sec-1", registrations[0].SectionID)
	require.NoError(t, f.dbMock.ExpectationsWereMet())
}

func TestRegisterForSectionsRejectsWholeCartOnOneFailure(t *testing.T) {
	f := newRegistrationFixture(t)
	f.sections.sections["sec-2"].CurrentEnrollment = 30

	_, err := f.svc.RegisterForSections(context.Background(), RegistrationCartRequest{
		StudentID:  "student-1",
		SectionIDs: []string{"sec-1", "sec-2"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBadRequest.Code, appErrors.FromError(err).Code)
	assert.Zero(t, f.sections.seatsTaken["sec-1"])
	assert.Zero(t, f.sections.seatsTaken["sec-2"])
	assert.Empty(t, f.regs.created)
}

func TestRegisterForSectionsHoldMapsToForbidden(t *testing.T) {
	f := newRegistrationFixture(t)
	f.holds.holds["student-1"] = []models.Hold{{Code: "FIN", BlocksRegistration: true}}

	_, err := f.svc.RegisterForSections(context.Background(), RegistrationCartRequest{
		StudentID:  "student-1",
		SectionIDs: []string{"sec-1"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
