package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/realtime"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
	"github.com/noah-isme/face-attendance-api/pkg/config"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
)

type attendanceStore interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FindCounted(ctx context.Context, studentID, classID string, date time.Time) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	ListByClassDate(ctx context.Context, classID string, date time.Time) ([]models.AttendanceRecordDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.AttendanceStatus, corrections models.CorrectionLog) error
	Delete(ctx context.Context, id string) error
	CountsByClassDate(ctx context.Context, classID string, date time.Time) (map[models.AttendanceStatus]int, error)
	CountsByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.StatusCount, error)
	StudentCountsByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.StudentRangeStats, error)
}

type rosterReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassDetail, error)
	RosterSize(ctx context.Context, classID string) (int, error)
	IsEnrolled(ctx context.Context, classID, studentID string) (bool, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AttendanceService reconciles recognition candidates and manual marks
// into stored attendance records and derives statistics from them.
type AttendanceService struct {
	repo      attendanceStore
	classes   rosterReader
	cache     statsCache
	hub       eventPublisher
	cfg       config.AttendanceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService builds an AttendanceService with sane defaults.
func NewAttendanceService(
	repo attendanceStore,
	classes rosterReader,
	cache statsCache,
	hub eventPublisher,
	cfg config.AttendanceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		classes:   classes,
		cache:     cache,
		hub:       hub,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
}

// DedupeCandidates keeps the highest-confidence entry per student.
// Order of first appearance is preserved.
func DedupeCandidates(candidates []recognition.Candidate) []recognition.Candidate {
	best := make(map[string]int, len(candidates))
	out := make([]recognition.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if idx, ok := best[c.StudentID]; ok {
			if c.Confidence > out[idx].Confidence {
				out[idx] = c
			}
			continue
		}
		best[c.StudentID] = len(out)
		out = append(out, c)
	}
	return out
}

// MarkCandidates records attendance for recognized students. Failures
// are isolated per candidate; a duplicate mark never aborts the pass.
func (s *AttendanceService) MarkCandidates(ctx context.Context, classID string, date time.Time, method models.AttendanceMethod, candidates []recognition.Candidate) []models.MarkResult {
	candidates = DedupeCandidates(candidates)
	results := make([]models.MarkResult, 0, len(candidates))

	for _, candidate := range candidates {
		result := models.MarkResult{
			StudentID:   candidate.StudentID,
			StudentName: candidate.Name,
			Confidence:  candidate.Confidence,
		}

		enrolled, err := s.classes.IsEnrolled(ctx, classID, candidate.StudentID)
		if err != nil {
			result.Outcome = models.OutcomeFailed
			result.Error = "enrollment lookup failed"
			s.logger.Error("enrollment lookup failed",
				zap.String("student_id", candidate.StudentID),
				zap.String("class_id", classID),
				zap.Error(err))
			results = append(results, result)
			continue
		}
		if !enrolled {
			result.Outcome = models.OutcomeNotEnrolled
			results = append(results, result)
			continue
		}

		confidence := candidate.Confidence
		if confidence == 0 {
			confidence = s.cfg.DefaultConfidence
		}
		result.Confidence = confidence
		record := &models.AttendanceRecord{
			StudentID:  candidate.StudentID,
			ClassID:    classID,
			Date:       date,
			Status:     models.AttendanceStatusPresent,
			Method:     method,
			Confidence: &confidence,
		}
		if err := s.repo.Insert(ctx, record); err != nil {
			if errors.Is(err, appErrors.ErrAlreadyMarked) {
				result.Outcome = models.OutcomeAlreadyMarked
				if existing, lookupErr := s.repo.FindCounted(ctx, candidate.StudentID, classID, date); lookupErr == nil {
					result.Record = existing
				}
			} else {
				result.Outcome = models.OutcomeFailed
				result.Error = "failed to store attendance"
				s.logger.Error("attendance insert failed",
					zap.String("student_id", candidate.StudentID),
					zap.Error(err))
			}
			results = append(results, result)
			continue
		}

		result.Outcome = models.OutcomeMarked
		result.Record = record
		results = append(results, result)
	}

	if hasMarked(results) {
		s.invalidateStats(ctx, classID)
	}
	return results
}

func hasMarked(results []models.MarkResult) bool {
	for _, r := range results {
		if r.Outcome == models.OutcomeMarked {
			return true
		}
	}
	return false
}

// ManualMark records attendance without recognition. Absence is
// derived from the roster, so absent is not an accepted manual status.
func (s *AttendanceService) ManualMark(ctx context.Context, classID, studentID string, status models.AttendanceStatus, date time.Time, notes *string, markedBy string) (*models.AttendanceRecord, error) {
	if !status.Valid() || !status.Counted() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of present, late, excused")
	}

	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	enrolled, err := s.classes.IsEnrolled(ctx, classID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in this class")
	}

	record := &models.AttendanceRecord{
		StudentID: studentID,
		ClassID:   classID,
		Date:      date,
		Status:    status,
		Method:    models.MethodManual,
		MarkedBy:  &markedBy,
		Notes:     notes,
	}
	if err := s.repo.Insert(ctx, record); err != nil {
		if errors.Is(err, appErrors.ErrAlreadyMarked) {
			return nil, appErrors.ErrAlreadyMarked
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attendance")
	}

	s.invalidateStats(ctx, classID)
	return record, nil
}

// Correct amends a stored record's status and appends to its
// correction log. Correcting to absent removes the row since absence
// is derived.
func (s *AttendanceService) Correct(ctx context.Context, recordID string, newStatus models.AttendanceStatus, reason, correctedBy string) (*models.AttendanceRecord, error) {
	if !newStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status")
	}
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a correction reason is required")
	}

	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if record.Status == newStatus {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record already has this status")
	}

	if newStatus == models.AttendanceStatusAbsent {
		if err := s.repo.Delete(ctx, recordID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove attendance record")
		}
		s.invalidateStats(ctx, record.ClassID)
		if s.hub != nil {
			s.hub.Publish(realtime.EventAttendanceDeleted, record.ClassID, record)
		}
		return nil, nil
	}

	entry := models.Correction{
		From:        record.Status,
		To:          newStatus,
		Reason:      reason,
		CorrectedBy: correctedBy,
		CorrectedAt: time.Now().UTC(),
	}
	log := append(record.Corrections, entry)
	if err := s.repo.UpdateStatus(ctx, recordID, newStatus, log); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}

	record.Status = newStatus
	record.Corrections = log
	s.invalidateStats(ctx, record.ClassID)
	if s.hub != nil {
		s.hub.Publish(realtime.EventAttendanceCorrected, record.ClassID, record)
	}
	return record, nil
}

// Delete removes a stored attendance record outright.
func (s *AttendanceService) Delete(ctx context.Context, recordID string) error {
	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if err := s.repo.Delete(ctx, recordID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance record")
	}
	s.invalidateStats(ctx, record.ClassID)
	if s.hub != nil {
		s.hub.Publish(realtime.EventAttendanceDeleted, record.ClassID, record)
	}
	return nil
}

// List returns attendance rows matching the filter with pagination.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return rows, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Live returns all stored marks for a class day.
func (s *AttendanceService) Live(ctx context.Context, classID string, date time.Time) ([]models.AttendanceRecordDetail, error) {
	rows, err := s.repo.ListByClassDate(ctx, classID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class day attendance")
	}
	return rows, nil
}

// DailyStats derives the class day summary. Absent counts come from
// the roster size, never from stored rows.
func (s *AttendanceService) DailyStats(ctx context.Context, classID string, date time.Time) (*models.DailyStats, error) {
	cacheKey := fmt.Sprintf("stats:%s:daily:%s", classID, date.Format("2006-01-02"))
	if s.cache != nil {
		var cached models.DailyStats
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	enrolled, err := s.classes.RosterSize(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster size")
	}
	counts, err := s.repo.CountsByClassDate(ctx, classID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}

	stats := buildDailyStats(classID, date, enrolled, counts)
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, stats, s.cfg.StatsCacheTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return stats, nil
}

func buildDailyStats(classID string, date time.Time, enrolled int, counts map[models.AttendanceStatus]int) *models.DailyStats {
	present := counts[models.AttendanceStatusPresent]
	late := counts[models.AttendanceStatusLate]
	excused := counts[models.AttendanceStatusExcused]
	absent := enrolled - present - late - excused
	if absent < 0 {
		absent = 0
	}
	rate := 0.0
	if enrolled > 0 {
		rate = float64(present+late) / float64(enrolled) * 100
	}
	return &models.DailyStats{
		ClassID:        classID,
		Date:           date,
		TotalEnrolled:  enrolled,
		Present:        present,
		Late:           late,
		Excused:        excused,
		Absent:         absent,
		AttendanceRate: rate,
	}
}

// RangeStats aggregates per-student attendance across working days in
// an inclusive range.
func (s *AttendanceService) RangeStats(ctx context.Context, classID string, from, to time.Time) ([]models.StudentRangeStats, error) {
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end precedes range start")
	}

	workingDays := s.WorkingDays(from, to)
	rows, err := s.repo.StudentCountsByClassRange(ctx, classID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}

	for i := range rows {
		row := &rows[i]
		row.WorkingDays = workingDays
		row.Absent = workingDays - row.Present - row.Late - row.Excused
		if row.Absent < 0 {
			row.Absent = 0
		}
		if workingDays > 0 {
			row.AttendanceRate = float64(row.Present+row.Late) / float64(workingDays) * 100
		}
	}
	return rows, nil
}

// Trend produces a per-working-day series for a class. Days with no
// stored marks still appear with everyone absent.
func (s *AttendanceService) Trend(ctx context.Context, classID string, from, to time.Time) ([]models.TrendPoint, error) {
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "range end precedes range start")
	}

	enrolled, err := s.classes.RosterSize(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster size")
	}
	counts, err := s.repo.CountsByClassRange(ctx, classID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}

	byDay := make(map[string]map[models.AttendanceStatus]int)
	for _, row := range counts {
		key := row.Date.Format("2006-01-02")
		if byDay[key] == nil {
			byDay[key] = make(map[models.AttendanceStatus]int)
		}
		byDay[key][row.Status] = row.Count
	}

	points := make([]models.TrendPoint, 0)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == s.cfg.RestDay {
			continue
		}
		stats := buildDailyStats(classID, day, enrolled, byDay[day.Format("2006-01-02")])
		points = append(points, models.TrendPoint{
			Date:           day,
			Present:        stats.Present,
			Late:           stats.Late,
			Excused:        stats.Excused,
			Absent:         stats.Absent,
			AttendanceRate: stats.AttendanceRate,
		})
	}
	return points, nil
}

// WorkingDays counts days in the inclusive range excluding the
// configured rest day.
func (s *AttendanceService) WorkingDays(from, to time.Time) int {
	count := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == s.cfg.RestDay {
			continue
		}
		count++
	}
	return count
}

func (s *AttendanceService) invalidateStats(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("stats:%s:*", classID)); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.String("class_id", classID), zap.Error(err))
	}
}
