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

// ClassRepository manages persistence for classes and their rosters.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching the provided filter with roster counts.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := "FROM classes c"
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("c.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d OR LOWER(c.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	whereClause := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":       "c.name",
		"code":       "c.code",
		"created_at": "c.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "c.created_at"
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
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.name, c.code, c.teacher_id, c.schedule, c.department, c.semester, c.capacity, c.active, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM class_students cs WHERE cs.class_id = c.id) AS enrolled_count
        %s WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, whereClause, column, order, size, offset)

	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID fetches a class with its roster count.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	const query = `SELECT c.id, c.name, c.code, c.teacher_id, c.schedule, c.department, c.semester, c.capacity, c.active, c.created_at, c.updated_at,
        (SELECT COUNT(*) FROM class_students cs WHERE cs.class_id = c.id) AS enrolled_count
        FROM classes c WHERE c.id = $1`
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, code, teacher_id, schedule, department, semester, capacity, active, created_at, updated_at)
        VALUES (:id, :name, :code, :teacher_id, :schedule, :department, :semester, :capacity, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies an existing class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, code = :code, teacher_id = :teacher_id, schedule = :schedule, department = :department, semester = :semester, capacity = :capacity, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Deactivate marks a class as inactive.
func (r *ClassRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE classes SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate class: %w", err)
	}
	return nil
}

// Roster returns the class roster joined with student metadata.
func (r *ClassRepository) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	const query = `SELECT cs.id, cs.class_id, cs.student_id, cs.joined_at,
        s.student_code, s.full_name AS student_name, s.face_registered
        FROM class_students cs
        JOIN students s ON s.id = cs.student_id
        WHERE cs.class_id = $1
        ORDER BY s.full_name ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, classID); err != nil {
		return nil, fmt.Errorf("class roster: %w", err)
	}
	return roster, nil
}

// RosterSize returns the number of students enrolled in a class.
func (r *ClassRepository) RosterSize(ctx context.Context, classID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM class_students WHERE class_id = $1`, classID); err != nil {
		return 0, fmt.Errorf("roster size: %w", err)
	}
	return count, nil
}

// IsEnrolled reports whether the student is on the class roster.
func (r *ClassRepository) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM class_students WHERE class_id = $1 AND student_id = $2 LIMIT 1`, classID, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// AddStudent enrolls a student into a class. The insert respects the
// class capacity and rejects duplicate enrollments.
func (r *ClassRepository) AddStudent(ctx context.Context, classID, studentID string) error {
	const query = `INSERT INTO class_students (id, class_id, student_id, joined_at)
        SELECT $1, $2, $3, $4
        WHERE (SELECT COUNT(*) FROM class_students WHERE class_id = $2) < (SELECT capacity FROM classes WHERE id = $2)`
	result, err := r.db.ExecContext(ctx, query, uuid.NewString(), classID, studentID, time.Now().UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return appErrors.ErrConflict
		}
		return fmt.Errorf("add student to class: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add student to class: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrCapacityReached
	}
	return nil
}

// RemoveStudent removes a student from the class roster.
func (r *ClassRepository) RemoveStudent(ctx context.Context, classID, studentID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM class_students WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	if err != nil {
		return fmt.Errorf("remove student from class: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove student from class: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
