package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/models"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
)

type mockStudentStore struct {
	students  map[string]models.Student
	codes     map[string]bool
	created   []models.Student
	updated   *models.Student
	deleted   []string
	faceFlags map[string]bool
}

func newMockStudentStore() *mockStudentStore {
	return &mockStudentStore{
		students:  make(map[string]models.Student),
		codes:     make(map[string]bool),
		faceFlags: make(map[string]bool),
	}
}

func (m *mockStudentStore) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentStore) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentStore) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	return m.codes[code], nil
}

func (m *mockStudentStore) Create(ctx context.Context, student *models.Student) error {
	student.ID = "stu-" + student.StudentCode
	m.students[student.ID] = *student
	m.codes[student.StudentCode] = true
	m.created = append(m.created, *student)
	return nil
}

func (m *mockStudentStore) Update(ctx context.Context, student *models.Student) error {
	if _, ok := m.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	m.students[student.ID] = *student
	m.updated = student
	return nil
}

func (m *mockStudentStore) SetFaceRegistered(ctx context.Context, id string, registered bool) error {
	m.faceFlags[id] = registered
	return nil
}

func (m *mockStudentStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStudentStore) ClassIDs(ctx context.Context, studentID string) ([]string, error) {
	return []string{"cls-1"}, nil
}

type mockFaceRegistrar struct {
	registered map[string]int
	deleted    []string
	err        error
}

func newMockFaceRegistrar() *mockFaceRegistrar {
	return &mockFaceRegistrar{registered: make(map[string]int)}
}

func (m *mockFaceRegistrar) RegisterStudent(ctx context.Context, studentID, name string, faceImages []string) error {
	if m.err != nil {
		return m.err
	}
	m.registered[studentID] = len(faceImages)
	return nil
}

func (m *mockFaceRegistrar) DeleteStudent(ctx context.Context, studentID string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, studentID)
	return nil
}

func TestStudentCreateWithFaceImages(t *testing.T) {
	store := newMockStudentStore()
	faces := newMockFaceRegistrar()
	svc := NewStudentService(store, faces, nil, nil)

	student, err := svc.Create(context.Background(), dto.CreateStudentRequest{
		StudentCode: "S001",
		FullName:    "Alice Tan",
		Email:       "alice@university.test",
		Department:  "Computer Science",
		FaceImages:  []string{"img1", "img2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Computer Science", student.Department)
	assert.True(t, student.FaceRegistered)
	assert.Equal(t, 2, faces.registered[student.ID])
	assert.True(t, store.faceFlags[student.ID])
}

func TestStudentCreateDuplicateCode(t *testing.T) {
	store := newMockStudentStore()
	store.codes["S001"] = true
	svc := NewStudentService(store, newMockFaceRegistrar(), nil, nil)

	_, err := svc.Create(context.Background(), dto.CreateStudentRequest{
		StudentCode: "S001",
		FullName:    "Alice Tan",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateSurvivesFaceRegistrationFailure(t *testing.T) {
	store := newMockStudentStore()
	faces := newMockFaceRegistrar()
	faces.err = errors.New("gateway unavailable")
	svc := NewStudentService(store, faces, nil, nil)

	student, err := svc.Create(context.Background(), dto.CreateStudentRequest{
		StudentCode: "S002",
		FullName:    "Bob Lee",
		FaceImages:  []string{"img1", "img2"},
	})
	require.NoError(t, err)
	assert.False(t, student.FaceRegistered)
	require.Len(t, store.created, 1)
}

func TestStudentUpdateChangesFields(t *testing.T) {
	store := newMockStudentStore()
	store.students["stu-1"] = models.Student{ID: "stu-1", StudentCode: "S001", FullName: "Alice"}
	svc := NewStudentService(store, newMockFaceRegistrar(), nil, nil)

	name := "Alice Updated"
	student, err := svc.Update(context.Background(), "stu-1", dto.UpdateStudentRequest{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice Updated", student.FullName)
	assert.Equal(t, "S001", student.StudentCode)
}

func TestStudentUpdateNotFound(t *testing.T) {
	svc := NewStudentService(newMockStudentStore(), newMockFaceRegistrar(), nil, nil)

	name := "Ghost"
	_, err := svc.Update(context.Background(), "missing", dto.UpdateStudentRequest{FullName: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentRegisterFaceRequiresTwoImages(t *testing.T) {
	store := newMockStudentStore()
	store.students["stu-1"] = models.Student{ID: "stu-1", FullName: "Alice"}
	svc := NewStudentService(store, newMockFaceRegistrar(), nil, nil)

	err := svc.RegisterFace(context.Background(), "stu-1", dto.RegisterFaceRequest{FaceImages: []string{"only-one"}})
	require.Error(t, err)
}

func TestStudentDeleteCleansUpFaceData(t *testing.T) {
	store := newMockStudentStore()
	store.students["stu-1"] = models.Student{ID: "stu-1", FaceRegistered: true}
	faces := newMockFaceRegistrar()
	svc := NewStudentService(store, faces, nil, nil)

	err := svc.Delete(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Contains(t, faces.deleted, "stu-1")
	assert.Contains(t, store.deleted, "stu-1")
	assert.NotContains(t, store.students, "stu-1")
}

func TestStudentDeleteProceedsWhenFaceCleanupFails(t *testing.T) {
	store := newMockStudentStore()
	store.students["stu-1"] = models.Student{ID: "stu-1", FaceRegistered: true}
	faces := newMockFaceRegistrar()
	faces.err = errors.New("gateway unavailable")
	svc := NewStudentService(store, faces, nil, nil)

	err := svc.Delete(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Contains(t, store.deleted, "stu-1")
}

func TestBulkImportFromCSV(t *testing.T) {
	store := newMockStudentStore()
	store.codes["S002"] = true
	svc := NewStudentService(store, newMockFaceRegistrar(), nil, nil)

	csv := "student_code,full_name,email,phone\n" +
		"S001,Alice Tan,alice@university.test,555-0001\n" +
		"S002,Bob Lee,bob@university.test,\n" +
		",No Code,,\n"
	result, err := svc.BulkImport(context.Background(), "students.csv", []byte(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 3, result.Errors[0].Row)
	assert.Equal(t, 4, result.Errors[1].Row)
	require.Len(t, store.created, 1)
	assert.Equal(t, "alice@university.test", store.created[0].Email)
}
