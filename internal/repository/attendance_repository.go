package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/face-attendance-api/internal/models"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
)

const uniqueViolation = "23505"

// AttendanceRepository handles persistence for attendance records.
// Only non-absent statuses occupy rows; a partial unique index on
// (student_id, class_id, date) WHERE status <> 'absent' enforces at
// most one counted mark per student per class day.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Insert stores a new attendance record. A conflicting mark for the
// same (student, class, date) returns ErrAlreadyMarked.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.MarkedAt.IsZero() {
		record.MarkedAt = now
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Corrections == nil {
		record.Corrections = models.CorrectionLog{}
	}
	const query = `INSERT INTO attendance_records (id, student_id, class_id, date, status, method, confidence, marked_at, marked_by, notes, corrections, created_at, updated_at)
        VALUES (:id, :student_id, :class_id, :date, :status, :method, :confidence, :marked_at, :marked_by, :notes, :corrections, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return appErrors.ErrAlreadyMarked
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// FindByID fetches a single attendance record.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, class_id, date, status, method, confidence, marked_at, marked_by, notes, corrections, created_at, updated_at
        FROM attendance_records WHERE id = $1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindCounted returns the stored non-absent mark for a student on a
// class day, or sql.ErrNoRows when none exists.
func (r *AttendanceRepository) FindCounted(ctx context.Context, studentID, classID string, date time.Time) (*models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, class_id, date, status, method, confidence, marked_at, marked_by, notes, corrections, created_at, updated_at
        FROM attendance_records
        WHERE student_id = $1 AND class_id = $2 AND date = $3 AND status <> $4
        LIMIT 1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, classID, date, models.AttendanceStatusAbsent); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	base := "FROM attendance_records ar JOIN students s ON s.id = ar.student_id"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("ar.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("ar.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Method != nil && filter.Method.Valid() {
		where = append(where, fmt.Sprintf("ar.method = $%d", len(args)+1))
		args = append(args, *filter.Method)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ar.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ar.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	sortBy := filter.SortBy
	allowedSort := map[string]string{
		"date":      "ar.date",
		"status":    "ar.status",
		"marked_at": "ar.marked_at",
	}
	if sortBy == "" {
		sortBy = "marked_at"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "ar.marked_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT ar.id, ar.student_id, ar.class_id, ar.date, ar.status, ar.method, ar.confidence, ar.marked_at, ar.marked_by, ar.notes, ar.corrections, ar.created_at, ar.updated_at,
        s.student_code, s.full_name AS student_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}
	return rows, total, nil
}

// ListByClassDate returns all stored marks for a class day with
// student metadata, ordered by student name.
func (r *AttendanceRepository) ListByClassDate(ctx context.Context, classID string, date time.Time) ([]models.AttendanceRecordDetail, error) {
	const query = `SELECT ar.id, ar.student_id, ar.class_id, ar.date, ar.status, ar.method, ar.confidence, ar.marked_at, ar.marked_by, ar.notes, ar.corrections, ar.created_at, ar.updated_at,
        s.student_code, s.full_name AS student_name
        FROM attendance_records ar
        JOIN students s ON s.id = ar.student_id
        WHERE ar.class_id = $1 AND ar.date = $2
        ORDER BY s.full_name ASC`
	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, classID, date); err != nil {
		return nil, fmt.Errorf("list class day attendance: %w", err)
	}
	return rows, nil
}

// ListByClassRange returns all stored marks for a class over an
// inclusive date range with student metadata.
func (r *AttendanceRepository) ListByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.AttendanceRecordDetail, error) {
	const query = `SELECT ar.id, ar.student_id, ar.class_id, ar.date, ar.status, ar.method, ar.confidence, ar.marked_at, ar.marked_by, ar.notes, ar.corrections, ar.created_at, ar.updated_at,
        s.student_code, s.full_name AS student_name
        FROM attendance_records ar
        JOIN students s ON s.id = ar.student_id
        WHERE ar.class_id = $1 AND ar.date >= $2 AND ar.date <= $3
        ORDER BY ar.date ASC, s.full_name ASC`
	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, classID, from, to); err != nil {
		return nil, fmt.Errorf("list class range attendance: %w", err)
	}
	return rows, nil
}

// UpdateStatus changes a record's status and replaces its correction
// log with the new append-only history.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, corrections models.CorrectionLog) error {
	const query = `UPDATE attendance_records SET status = $2, corrections = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, corrections, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendance status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendance status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an attendance record.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete attendance record: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountsByClassDate returns per-status counts for one class day.
func (r *AttendanceRepository) CountsByClassDate(ctx context.Context, classID string, date time.Time) (map[models.AttendanceStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count
        FROM attendance_records
        WHERE class_id = $1 AND date = $2
        GROUP BY status`
	rows := []struct {
		Status models.AttendanceStatus `db:"status"`
		Count  int                     `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, classID, date); err != nil {
		return nil, fmt.Errorf("count class day attendance: %w", err)
	}
	counts := make(map[models.AttendanceStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountsByClassRange returns per-day per-status counts for a class
// over an inclusive date range.
func (r *AttendanceRepository) CountsByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.StatusCount, error) {
	const query = `SELECT date, status, COUNT(*) AS count
        FROM attendance_records
        WHERE class_id = $1 AND date >= $2 AND date <= $3
        GROUP BY date, status
        ORDER BY date ASC`
	var rows []models.StatusCount
	if err := r.db.SelectContext(ctx, &rows, query, classID, from, to); err != nil {
		return nil, fmt.Errorf("count class range attendance: %w", err)
	}
	return rows, nil
}

// StudentCountsByClassRange aggregates per-student status counts for a
// class roster over an inclusive date range. Students with no stored
// marks still appear with zero counts.
func (r *AttendanceRepository) StudentCountsByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.StudentRangeStats, error) {
	const query = `SELECT s.id AS student_id, s.student_code, s.full_name AS student_name,
        COALESCE(SUM(CASE WHEN ar.status = 'present' THEN 1 ELSE 0 END), 0) AS present,
        COALESCE(SUM(CASE WHEN ar.status = 'late' THEN 1 ELSE 0 END), 0) AS late,
        COALESCE(SUM(CASE WHEN ar.status = 'excused' THEN 1 ELSE 0 END), 0) AS excused
        FROM class_students cs
        JOIN students s ON s.id = cs.student_id
        LEFT JOIN attendance_records ar ON ar.student_id = s.id AND ar.class_id = cs.class_id AND ar.date >= $2 AND ar.date <= $3
        WHERE cs.class_id = $1
        GROUP BY s.id, s.student_code, s.full_name
        ORDER BY s.full_name ASC`
	var rows []models.StudentRangeStats
	if err := r.db.SelectContext(ctx, &rows, query, classID, from, to); err != nil {
		return nil, fmt.Errorf("student range attendance: %w", err)
	}
	return rows, nil
}
