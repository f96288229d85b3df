package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/models"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
)

type classStore interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Deactivate(ctx context.Context, id string) error
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
	AddStudent(ctx context.Context, classID, studentID string) error
	RemoveStudent(ctx context.Context, classID, studentID string) error
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// ClassService manages classes and their rosters.
type ClassService struct {
	repo      classStore
	students  enrollmentStudentReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService builds a ClassService.
func NewClassService(repo classStore, students enrollmentStudentReader, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, students: students, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get fetches a class with its roster count.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create registers a new class owned by the caller.
func (s *ClassService) Create(ctx context.Context, req dto.CreateClassRequest, teacherID string) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class := &models.Class{
		Name:       req.Name,
		Code:       req.Code,
		Schedule:   req.Schedule,
		Department: req.Department,
		Semester:   req.Semester,
		Capacity:   req.Capacity,
		Active:     true,
	}
	if teacherID != "" {
		class.TeacherID = &teacherID
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update modifies mutable class fields.
func (s *ClassService) Update(ctx context.Context, id string, req dto.UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	class := detail.Class

	if req.Name != nil {
		class.Name = *req.Name
	}
	if req.Code != nil {
		class.Code = *req.Code
	}
	if req.Schedule != nil {
		class.Schedule = req.Schedule
	}
	if req.Department != nil {
		class.Department = *req.Department
	}
	if req.Semester != nil {
		class.Semester = req.Semester
	}
	if req.Capacity != nil {
		if *req.Capacity < detail.EnrolledCount {
			return nil, appErrors.Clone(appErrors.ErrValidation, "capacity below current roster size")
		}
		class.Capacity = *req.Capacity
	}
	if req.Active != nil {
		class.Active = *req.Active
	}

	if err := s.repo.Update(ctx, &class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return &class, nil
}

// Delete deactivates a class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate class")
	}
	return nil
}

// Roster returns the class roster with student metadata.
func (s *ClassService) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	if _, err := s.repo.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	roster, err := s.repo.Roster(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return roster, nil
}

// Enroll adds a student to the class roster, respecting capacity.
func (s *ClassService) Enroll(ctx context.Context, classID, studentID string) error {
	if _, err := s.repo.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return appErrors.Clone(appErrors.ErrValidation, "cannot enroll an inactive student")
	}

	if err := s.repo.AddStudent(ctx, classID, studentID); err != nil {
		if errors.Is(err, appErrors.ErrCapacityReached) {
			return appErrors.ErrCapacityReached
		}
		if errors.Is(err, appErrors.ErrConflict) {
			return appErrors.Clone(appErrors.ErrConflict, "student already enrolled")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	return nil
}

// Unenroll removes a student from the class roster.
func (s *ClassService) Unenroll(ctx context.Context, classID, studentID string) error {
	if err := s.repo.RemoveStudent(ctx, classID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove student")
	}
	return nil
}
