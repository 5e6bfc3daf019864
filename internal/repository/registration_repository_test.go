package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sis-registration-api/internal/models"
)

func newRegistrationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func registrationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "section_id", "term_id", "status", "credit_hours", "grade_mode",
		"grade_code", "grade_points", "capacity_override", "requisite_override", "override_reason",
		"override_by", "last_attendance_date", "registered_at", "status_changed_at", "created_at", "updated_at",
	}).AddRow("reg-1", "stu-1", "sec-1", "term-1", models.RegistrationStatusRegistered, 3.0, models.GradeModeStandard,
		nil, nil, false, false, nil, nil, nil, time.Now(), time.Now(), time.Now(), time.Now())
}

func TestRegistrationRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM registrations WHERE id = \$1`).
		WithArgs("reg-1").
		WillReturnRows(registrationRows())

	registration, err := repo.FindByID(context.Background(), "reg-1")
	require.NoError(t, err)
	require.Equal(t, "reg-1", registration.ID)
	require.Equal(t, models.RegistrationStatusRegistered, registration.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryExistsActivePair(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM registrations`).
		WithArgs("stu-1", "sec-1", models.RegistrationStatusRegistered, models.RegistrationStatusWaitlisted).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActivePair(context.Background(), nil, "stu-1", "sec-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryExistsActivePairNoRows(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM registrations`).
		WithArgs("stu-1", "sec-1", models.RegistrationStatusRegistered, models.RegistrationStatusWaitlisted).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsActivePair(context.Background(), nil, "stu-1", "sec-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(`INSERT INTO registrations`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	registration := &models.Registration{StudentID: "stu-1", SectionID: "sec-1", TermID: "term-1", CreditHours: 3}
	require.NoError(t, repo.Create(context.Background(), nil, registration))
	require.NotEmpty(t, registration.ID)
	require.Equal(t, models.RegistrationStatusRegistered, registration.Status)
	require.Equal(t, models.GradeModeStandard, registration.GradeMode)
	require.False(t, registration.RegisteredAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryNextWaitlistPosition(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(4))

	position, err := repo.NextWaitlistPosition(context.Background(), nil, "sec-1")
	require.NoError(t, err)
	require.Equal(t, 4, position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryNextWaitlistPositionEmpty(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	position, err := repo.NextWaitlistPosition(context.Background(), nil, "sec-1")
	require.NoError(t, err)
	require.Equal(t, 1, position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryUpdateWaitlistStatusSetsRemovedAt(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET status = $2, removed_at = $3 WHERE id = $1")).
		WithArgs("wl-1", models.WaitlistStatusRemoved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateWaitlistStatus(context.Background(), nil, "wl-1", models.WaitlistStatusRemoved))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryRevive(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(`UPDATE registrations SET status = \$2, credit_hours = \$3, grade_code = NULL`).
		WithArgs("reg-1", models.RegistrationStatusRegistered, 3.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Revive(context.Background(), nil, "reg-1", 3.0))
	require.NoError(t, mock.ExpectationsWereMet())
}
