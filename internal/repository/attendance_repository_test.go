package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/face-attendance-api/internal/models"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
)

func newAttendanceMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.AttendanceRecord{
		StudentID: "stu-1",
		ClassID:   "cls-1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Status:    models.AttendanceStatusPresent,
		Method:    models.MethodCameraCapture,
	}
	err := repo.Insert(context.Background(), record)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.MarkedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnError(&pq.Error{Code: "23505"})

	record := &models.AttendanceRecord{
		StudentID: "stu-1",
		ClassID:   "cls-1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Status:    models.AttendanceStatusPresent,
		Method:    models.MethodCameraCapture,
	}
	err := repo.Insert(context.Background(), record)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyMarked))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindCounted(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "date", "status", "method", "confidence", "marked_at", "marked_by", "notes", "corrections", "created_at", "updated_at"}).
		AddRow("rec-1", "stu-1", "cls-1", date, "present", "camera_capture", 0.97, time.Now(), nil, nil, []byte("[]"), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records")).
		WithArgs("stu-1", "cls-1", date, models.AttendanceStatusAbsent).
		WillReturnRows(rows)

	record, err := repo.FindCounted(context.Background(), "stu-1", "cls-1", date)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryFindCountedMissing(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records")).
		WithArgs("stu-1", "cls-1", date, models.AttendanceStatusAbsent).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindCounted(context.Background(), "stu-1", "cls-1", date)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	log := models.CorrectionLog{{
		From:        models.AttendanceStatusPresent,
		To:          models.AttendanceStatusLate,
		Reason:      "arrived after roll call",
		CorrectedBy: "user-1",
		CorrectedAt: time.Now().UTC(),
	}}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_records SET status = $2, corrections = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("rec-1", models.AttendanceStatusLate, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "rec-1", models.AttendanceStatusLate, log)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_records SET status = $2, corrections = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("missing", models.AttendanceStatusLate, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.AttendanceStatusLate, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCountsByClassDate(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("present", 18).
		AddRow("late", 3).
		AddRow("excused", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count")).
		WithArgs("cls-1", date).
		WillReturnRows(rows)

	counts, err := repo.CountsByClassDate(context.Background(), "cls-1", date)
	require.NoError(t, err)
	assert.Equal(t, 18, counts[models.AttendanceStatusPresent])
	assert.Equal(t, 3, counts[models.AttendanceStatusLate])
	assert.Equal(t, 1, counts[models.AttendanceStatusExcused])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentCountsByClassRange(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"student_id", "student_code", "student_name", "present", "late", "excused"}).
		AddRow("stu-1", "S001", "Alice", 20, 2, 0).
		AddRow("stu-2", "S002", "Bob", 0, 0, 0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_students cs")).
		WithArgs("cls-1", from, to).
		WillReturnRows(rows)

	stats, err := repo.StudentCountsByClassRange(context.Background(), "cls-1", from, to)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 20, stats[0].Present)
	assert.Equal(t, 0, stats[1].Present)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newAttendanceMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_records WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
