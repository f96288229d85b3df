package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/models"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
	"github.com/noah-isme/face-attendance-api/pkg/export"
)

type studentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SetFaceRegistered(ctx context.Context, id string, registered bool) error
	Delete(ctx context.Context, id string) error
	ClassIDs(ctx context.Context, studentID string) ([]string, error)
}

type faceRegistrar interface {
	RegisterStudent(ctx context.Context, studentID, name string, faceImages []string) error
	DeleteStudent(ctx context.Context, studentID string) error
}

// StudentService manages student records and their face enrollment.
type StudentService struct {
	repo      studentStore
	faces     faceRegistrar
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService builds a StudentService.
func NewStudentService(repo studentStore, faces faceRegistrar, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, faces: faces, validator: validate, logger: logger}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get fetches a student together with their class memberships.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	classIDs, err := s.repo.ClassIDs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class memberships")
	}
	return &models.StudentDetail{Student: *student, ClassIDs: classIDs}, nil
}

// Create registers a new student. When face images are supplied they
// are enrolled with the recognition service in the same call.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	exists, err := s.repo.ExistsByCode(ctx, req.StudentCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student code already in use")
	}

	student := &models.Student{
		StudentCode: req.StudentCode,
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Department:  req.Department,
		Active:      true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if len(req.FaceImages) > 0 {
		if err := s.faces.RegisterStudent(ctx, student.ID, student.FullName, req.FaceImages); err != nil {
			s.logger.Warn("face registration failed for new student",
				zap.String("student_id", student.ID),
				zap.Error(err))
			return student, nil
		}
		student.FaceRegistered = true
		if err := s.repo.SetFaceRegistered(ctx, student.ID, true); err != nil {
			s.logger.Error("failed to persist face flag", zap.String("student_id", student.ID), zap.Error(err))
		}
	}
	return student, nil
}

// Update modifies mutable student fields.
func (s *StudentService) Update(ctx context.Context, id string, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if req.StudentCode != nil && *req.StudentCode != student.StudentCode {
		exists, err := s.repo.ExistsByCode(ctx, *req.StudentCode, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student code")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student code already in use")
		}
		student.StudentCode = *req.StudentCode
	}
	if req.FullName != nil {
		student.FullName = *req.FullName
	}
	if req.Email != nil {
		student.Email = *req.Email
	}
	if req.Phone != nil {
		student.Phone = *req.Phone
	}
	if req.Department != nil {
		student.Department = *req.Department
	}
	if req.Active != nil {
		student.Active = *req.Active
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// RegisterFace enrolls face images for an existing student.
func (s *StudentService) RegisterFace(ctx context.Context, id string, req dto.RegisterFaceRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid face payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.faces.RegisterStudent(ctx, student.ID, student.FullName, req.FaceImages); err != nil {
		return err
	}
	if err := s.repo.SetFaceRegistered(ctx, student.ID, true); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist face flag")
	}
	return nil
}

// Delete removes a student outright together with their attendance
// history, roster memberships and face encodings.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if student.FaceRegistered {
		if err := s.faces.DeleteStudent(ctx, student.ID); err != nil {
			// The row removal proceeds; encodings can be cleaned up later.
			s.logger.Warn("face deletion failed",
				zap.String("student_id", student.ID),
				zap.Error(err))
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// BulkImport creates students from a CSV or XLSX upload. Expected
// columns are student_code, full_name and optionally email, phone,
// department.
func (s *StudentService) BulkImport(ctx context.Context, filename string, raw []byte) (*models.BulkImportResult, error) {
	var dataset export.Dataset
	var err error
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		dataset, err = parseWorkbook(raw)
	} else {
		dataset, err = export.ParseCSV(raw)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable import file")
	}

	result := &models.BulkImportResult{}
	for i, row := range dataset.Rows {
		rowNum := i + 2
		code := strings.TrimSpace(row["student_code"])
		name := strings.TrimSpace(row["full_name"])
		if code == "" || name == "" {
			result.Skipped++
			result.Errors = append(result.Errors, models.BulkImportError{Row: rowNum, Reason: "missing student_code or full_name"})
			continue
		}

		exists, err := s.repo.ExistsByCode(ctx, code, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student code")
		}
		if exists {
			result.Skipped++
			result.Errors = append(result.Errors, models.BulkImportError{Row: rowNum, Reason: fmt.Sprintf("student code %s already exists", code)})
			continue
		}

		student := &models.Student{
			StudentCode: code,
			FullName:    name,
			Email:       strings.TrimSpace(row["email"]),
			Phone:       strings.TrimSpace(row["phone"]),
			Department:  strings.TrimSpace(row["department"]),
			Active:      true,
		}
		if err := s.repo.Create(ctx, student); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, models.BulkImportError{Row: rowNum, Reason: "database insert failed"})
			s.logger.Error("bulk import insert failed", zap.Int("row", rowNum), zap.Error(err))
			continue
		}
		result.Created++
	}
	return result, nil
}

func parseWorkbook(raw []byte) (export.Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return export.Dataset{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return export.Dataset{}, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return export.Dataset{}, fmt.Errorf("read workbook rows: %w", err)
	}
	if len(rows) == 0 {
		return export.Dataset{}, fmt.Errorf("workbook is empty")
	}

	headers := rows[0]
	dataset := export.Dataset{Headers: headers}
	for _, row := range rows[1:] {
		entry := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(row) {
				entry[header] = row[i]
			}
		}
		dataset.Rows = append(dataset.Rows, entry)
	}
	return dataset, nil
}
