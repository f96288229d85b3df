package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/realtime"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
	"github.com/noah-isme/face-attendance-api/pkg/config"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
)

type mockAttendanceRepo struct {
	records    map[string]models.AttendanceRecord
	marked     map[string]bool
	counts     map[models.AttendanceStatus]int
	rangeRows  []models.StatusCount
	statRows   []models.StudentRangeStats
	insertErr  error
	inserted   []models.AttendanceRecord
	deletedIDs []string
	updated    map[string]models.AttendanceStatus
	logs       map[string]models.CorrectionLog
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{
		records: make(map[string]models.AttendanceRecord),
		marked:  make(map[string]bool),
		updated: make(map[string]models.AttendanceStatus),
		logs:    make(map[string]models.CorrectionLog),
	}
}

func markKey(studentID, classID string, date time.Time) string {
	return studentID + "|" + classID + "|" + date.Format("2006-01-02")
}

func (m *mockAttendanceRepo) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	key := markKey(record.StudentID, record.ClassID, record.Date)
	if m.marked[key] {
		return appErrors.ErrAlreadyMarked
	}
	m.marked[key] = true
	record.ID = "rec-" + record.StudentID
	m.records[record.ID] = *record
	m.inserted = append(m.inserted, *record)
	return nil
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	if rec, ok := m.records[id]; ok {
		return &rec, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) FindCounted(ctx context.Context, studentID, classID string, date time.Time) (*models.AttendanceRecord, error) {
	for _, rec := range m.records {
		if rec.StudentID == studentID && rec.ClassID == classID && rec.Date.Equal(date) {
			return &rec, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error) {
	return nil, 0, nil
}

func (m *mockAttendanceRepo) ListByClassDate(ctx context.Context, classID string, date time.Time) ([]models.AttendanceRecordDetail, error) {
	return nil, nil
}

func (m *mockAttendanceRepo) UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, corrections models.CorrectionLog) error {
	if _, ok := m.records[id]; !ok {
		return sql.ErrNoRows
	}
	m.updated[id] = status
	m.logs[id] = corrections
	rec := m.records[id]
	rec.Status = status
	rec.Corrections = corrections
	m.records[id] = rec
	return nil
}

func (m *mockAttendanceRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.records[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.records, id)
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *mockAttendanceRepo) CountsByClassDate(ctx context.Context, classID string, date time.Time) (map[models.AttendanceStatus]int, error) {
	return m.counts, nil
}

func (m *mockAttendanceRepo) CountsByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.StatusCount, error) {
	return m.rangeRows, nil
}

func (m *mockAttendanceRepo) StudentCountsByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.StudentRangeStats, error) {
	return m.statRows, nil
}

type mockRoster struct {
	class    *models.ClassDetail
	size     int
	enrolled map[string]bool
}

func (m *mockRoster) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if m.class == nil {
		return nil, sql.ErrNoRows
	}
	return m.class, nil
}

func (m *mockRoster) RosterSize(ctx context.Context, classID string) (int, error) {
	return m.size, nil
}

func (m *mockRoster) IsEnrolled(ctx context.Context, classID, studentID string) (bool, error) {
	return m.enrolled[studentID], nil
}

func testAttendanceConfig() config.AttendanceConfig {
	return config.AttendanceConfig{
		RestDay:           time.Sunday,
		DefaultConfidence: 0.9,
		StatsCacheTTL:     time.Minute,
	}
}

func newTestAttendanceService(repo *mockAttendanceRepo, roster *mockRoster) *AttendanceService {
	return NewAttendanceService(repo, roster, nil, nil, testAttendanceConfig(), nil, zap.NewNop())
}

func TestDedupeCandidatesKeepsHighestConfidence(t *testing.T) {
	candidates := []recognition.Candidate{
		{StudentID: "a", Confidence: 0.7},
		{StudentID: "b", Confidence: 0.9},
		{StudentID: "a", Confidence: 0.95},
		{StudentID: "b", Confidence: 0.8},
	}
	out := DedupeCandidates(candidates)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].StudentID)
	assert.Equal(t, 0.95, out[0].Confidence)
	assert.Equal(t, 0.9, out[1].Confidence)
}

func TestMarkCandidatesIsolatesOutcomes(t *testing.T) {
	repo := newMockAttendanceRepo()
	roster := &mockRoster{enrolled: map[string]bool{"stu-1": true, "stu-2": true}}
	svc := newTestAttendanceService(repo, roster)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo.marked[markKey("stu-2", "cls-1", date)] = true

	results := svc.MarkCandidates(context.Background(), "cls-1", date, models.MethodCameraCapture, []recognition.Candidate{
		{StudentID: "stu-1", Name: "Alice", Confidence: 0.97},
		{StudentID: "stu-2", Name: "Bob", Confidence: 0.88},
		{StudentID: "ghost", Name: "Ghost", Confidence: 0.91},
	})

	require.Len(t, results, 3)
	assert.Equal(t, models.OutcomeMarked, results[0].Outcome)
	assert.Equal(t, models.OutcomeAlreadyMarked, results[1].Outcome)
	assert.Equal(t, models.OutcomeNotEnrolled, results[2].Outcome)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, models.AttendanceStatusPresent, repo.inserted[0].Status)
	require.NotNil(t, repo.inserted[0].Confidence)
	assert.Equal(t, 0.97, *repo.inserted[0].Confidence)
}

func TestMarkCandidatesDeduplicatesBeforeMarking(t *testing.T) {
	repo := newMockAttendanceRepo()
	roster := &mockRoster{enrolled: map[string]bool{"stu-1": true}}
	svc := newTestAttendanceService(repo, roster)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	results := svc.MarkCandidates(context.Background(), "cls-1", date, models.MethodPhotoUpload, []recognition.Candidate{
		{StudentID: "stu-1", Confidence: 0.8},
		{StudentID: "stu-1", Confidence: 0.95},
	})

	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeMarked, results[0].Outcome)
	assert.Equal(t, 0.95, results[0].Confidence)
}

func TestMarkCandidatesDefaultsMissingConfidence(t *testing.T) {
	repo := newMockAttendanceRepo()
	roster := &mockRoster{enrolled: map[string]bool{"stu-1": true}}
	svc := newTestAttendanceService(repo, roster)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	results := svc.MarkCandidates(context.Background(), "cls-1", date, models.MethodManual, []recognition.Candidate{
		{StudentID: "stu-1", Name: "Alice"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeMarked, results[0].Outcome)
	assert.Equal(t, 0.9, results[0].Confidence)
	require.Len(t, repo.inserted, 1)
	require.NotNil(t, repo.inserted[0].Confidence)
	assert.Equal(t, 0.9, *repo.inserted[0].Confidence)
}

func TestMarkCandidatesReturnsExistingRecordOnDuplicate(t *testing.T) {
	repo := newMockAttendanceRepo()
	roster := &mockRoster{enrolled: map[string]bool{"stu-1": true}}
	svc := newTestAttendanceService(repo, roster)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	markedAt := date.Add(8 * time.Hour)
	repo.marked[markKey("stu-1", "cls-1", date)] = true
	repo.records["rec-existing"] = models.AttendanceRecord{
		ID:        "rec-existing",
		StudentID: "stu-1",
		ClassID:   "cls-1",
		Date:      date,
		Status:    models.AttendanceStatusLate,
		MarkedAt:  markedAt,
	}

	results := svc.MarkCandidates(context.Background(), "cls-1", date, models.MethodCameraCapture, []recognition.Candidate{
		{StudentID: "stu-1", Confidence: 0.93},
	})

	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeAlreadyMarked, results[0].Outcome)
	require.NotNil(t, results[0].Record)
	assert.Equal(t, models.AttendanceStatusLate, results[0].Record.Status)
	assert.Equal(t, markedAt, results[0].Record.MarkedAt)
}

func TestManualMarkRejectsAbsent(t *testing.T) {
	repo := newMockAttendanceRepo()
	roster := &mockRoster{class: &models.ClassDetail{}, enrolled: map[string]bool{"stu-1": true}}
	svc := newTestAttendanceService(repo, roster)

	_, err := svc.ManualMark(context.Background(), "cls-1", "stu-1", models.AttendanceStatusAbsent, time.Now(), nil, "user-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestManualMarkDuplicate(t *testing.T) {
	repo := newMockAttendanceRepo()
	roster := &mockRoster{class: &models.ClassDetail{}, enrolled: map[string]bool{"stu-1": true}}
	svc := newTestAttendanceService(repo, roster)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.ManualMark(context.Background(), "cls-1", "stu-1", models.AttendanceStatusLate, date, nil, "user-1")
	require.NoError(t, err)

	_, err = svc.ManualMark(context.Background(), "cls-1", "stu-1", models.AttendanceStatusPresent, date, nil, "user-1")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyMarked)
}

func TestCorrectAppendsToLog(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.records["rec-1"] = models.AttendanceRecord{
		ID:      "rec-1",
		ClassID: "cls-1",
		Status:  models.AttendanceStatusPresent,
	}
	svc := newTestAttendanceService(repo, &mockRoster{})

	record, err := svc.Correct(context.Background(), "rec-1", models.AttendanceStatusLate, "arrived late", "user-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.AttendanceStatusLate, record.Status)
	require.Len(t, record.Corrections, 1)
	assert.Equal(t, models.AttendanceStatusPresent, record.Corrections[0].From)
	assert.Equal(t, models.AttendanceStatusLate, record.Corrections[0].To)
	assert.Equal(t, "user-1", record.Corrections[0].CorrectedBy)
}

func TestCorrectAndDeleteBroadcastEvents(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.records["rec-1"] = models.AttendanceRecord{
		ID:      "rec-1",
		ClassID: "cls-1",
		Status:  models.AttendanceStatusPresent,
	}
	repo.records["rec-2"] = models.AttendanceRecord{
		ID:      "rec-2",
		ClassID: "cls-1",
		Status:  models.AttendanceStatusLate,
	}
	hub := &mockPublisher{}
	svc := NewAttendanceService(repo, &mockRoster{}, nil, hub, testAttendanceConfig(), nil, zap.NewNop())

	_, err := svc.Correct(context.Background(), "rec-1", models.AttendanceStatusLate, "arrived late", "user-1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), "rec-2"))

	require.Len(t, hub.events, 2)
	assert.Equal(t, realtime.EventAttendanceCorrected, hub.events[0])
	assert.Equal(t, realtime.EventAttendanceDeleted, hub.events[1])
}

func TestCorrectToAbsentDeletesRecord(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.records["rec-1"] = models.AttendanceRecord{
		ID:      "rec-1",
		ClassID: "cls-1",
		Status:  models.AttendanceStatusPresent,
	}
	svc := newTestAttendanceService(repo, &mockRoster{})

	record, err := svc.Correct(context.Background(), "rec-1", models.AttendanceStatusAbsent, "left before roll call", "user-1")
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Contains(t, repo.deletedIDs, "rec-1")
}

func TestCorrectSameStatusRejected(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.records["rec-1"] = models.AttendanceRecord{ID: "rec-1", Status: models.AttendanceStatusLate}
	svc := newTestAttendanceService(repo, &mockRoster{})

	_, err := svc.Correct(context.Background(), "rec-1", models.AttendanceStatusLate, "no change", "user-1")
	require.Error(t, err)
}

func TestDailyStatsDerivesAbsent(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.counts = map[models.AttendanceStatus]int{
		models.AttendanceStatusPresent: 18,
		models.AttendanceStatusLate:    3,
		models.AttendanceStatusExcused: 1,
	}
	svc := newTestAttendanceService(repo, &mockRoster{size: 25})

	stats, err := svc.DailyStats(context.Background(), "cls-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 25, stats.TotalEnrolled)
	assert.Equal(t, 3, stats.Absent)
	assert.InDelta(t, 84.0, stats.AttendanceRate, 0.01)
}

func TestDailyStatsAbsentNeverNegative(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.counts = map[models.AttendanceStatus]int{models.AttendanceStatusPresent: 30}
	svc := newTestAttendanceService(repo, &mockRoster{size: 25})

	stats, err := svc.DailyStats(context.Background(), "cls-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Absent)
}

func TestWorkingDaysExcludesRestDay(t *testing.T) {
	svc := newTestAttendanceService(newMockAttendanceRepo(), &mockRoster{})

	// 2026-03-02 is a Monday; the full week contains one Sunday.
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 6, svc.WorkingDays(from, to))
}

func TestRangeStatsDerivesAbsenceFromWorkingDays(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.statRows = []models.StudentRangeStats{
		{StudentID: "stu-1", Present: 4, Late: 1, Excused: 0},
		{StudentID: "stu-2", Present: 0, Late: 0, Excused: 0},
	}
	svc := newTestAttendanceService(repo, &mockRoster{})

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	stats, err := svc.RangeStats(context.Background(), "cls-1", from, to)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, 6, stats[0].WorkingDays)
	assert.Equal(t, 1, stats[0].Absent)
	assert.InDelta(t, 83.33, stats[0].AttendanceRate, 0.01)
	assert.Equal(t, 6, stats[1].Absent)
	assert.InDelta(t, 0.0, stats[1].AttendanceRate, 0.01)
}

func TestRangeStatsRejectsInvertedRange(t *testing.T) {
	svc := newTestAttendanceService(newMockAttendanceRepo(), &mockRoster{})
	_, err := svc.RangeStats(context.Background(), "cls-1", time.Now(), time.Now().AddDate(0, 0, -1))
	require.Error(t, err)
}

func TestTrendSkipsRestDays(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.rangeRows = []models.StatusCount{
		{Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Status: models.AttendanceStatusPresent, Count: 20},
	}
	svc := newTestAttendanceService(repo, &mockRoster{size: 25})

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	points, err := svc.Trend(context.Background(), "cls-1", from, to)
	require.NoError(t, err)
	require.Len(t, points, 6)
	assert.Equal(t, 20, points[0].Present)
	assert.Equal(t, 5, points[0].Absent)
	assert.Equal(t, 25, points[1].Absent)
}
