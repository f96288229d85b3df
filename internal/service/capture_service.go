package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/realtime"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
)

type recognizer interface {
	RecognizeSingle(ctx context.Context, imageData string) recognition.Result
	RecognizeBatch(ctx context.Context, images []string) recognition.Result
}

type candidateMarker interface {
	MarkCandidates(ctx context.Context, classID string, date time.Time, method models.AttendanceMethod, candidates []recognition.Candidate) []models.MarkResult
}

type sheetUpdater interface {
	GenerateDailySheet(ctx context.Context, classID string, date time.Time) (*models.ReportFile, error)
}

type eventPublisher interface {
	Publish(eventType, classID string, payload interface{})
}

type captureMetrics interface {
	ObserveRecognition(failure recognition.FailureKind, duration time.Duration)
	AddMarks(outcome models.MarkOutcomeKind, n int)
}

// CaptureService runs the camera and photo upload marking flows:
// recognize, reconcile, refresh the daily sheet, broadcast.
type CaptureService struct {
	recognizer recognizer
	attendance candidateMarker
	sheets     sheetUpdater
	hub        eventPublisher
	metrics    captureMetrics
	logger     *zap.Logger
}

// NewCaptureService builds a CaptureService.
func NewCaptureService(
	recognizer recognizer,
	attendance candidateMarker,
	sheets sheetUpdater,
	hub eventPublisher,
	metrics captureMetrics,
	logger *zap.Logger,
) *CaptureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptureService{
		recognizer: recognizer,
		attendance: attendance,
		sheets:     sheets,
		hub:        hub,
		metrics:    metrics,
		logger:     logger,
	}
}

// CaptureSingle processes one camera frame for a class day.
func (s *CaptureService) CaptureSingle(ctx context.Context, classID, imageData string, date time.Time) (*dto.CaptureResponse, error) {
	started := time.Now()
	result := s.recognizer.RecognizeSingle(ctx, imageData)
	if s.metrics != nil {
		s.metrics.ObserveRecognition(result.Failure, time.Since(started))
	}
	return s.reconcile(ctx, classID, date, models.MethodCameraCapture, result)
}

// CaptureBatch processes uploaded photos for a class day.
func (s *CaptureService) CaptureBatch(ctx context.Context, classID string, images []string, date time.Time) (*dto.CaptureResponse, error) {
	if len(images) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one image is required")
	}
	started := time.Now()
	result := s.recognizer.RecognizeBatch(ctx, images)
	if s.metrics != nil {
		s.metrics.ObserveRecognition(result.Failure, time.Since(started))
	}
	return s.reconcile(ctx, classID, date, models.MethodPhotoUpload, result)
}

func (s *CaptureService) reconcile(ctx context.Context, classID string, date time.Time, method models.AttendanceMethod, result recognition.Result) (*dto.CaptureResponse, error) {
	resp := &dto.CaptureResponse{
		ClassID:           classID,
		Date:              date,
		FacesDetected:     result.FacesDetected,
		UnregisteredFaces: result.UnregisteredFaces,
		ProcessingTime:    result.ProcessingTime,
		Failure:           result.Failure,
		FailureDetail:     result.FailureDetail,
		Results:           []models.MarkResult{},
	}
	if result.Failed() {
		// No marking happens on a failed pass. The handler maps the
		// failure kind to the HTTP status.
		return resp, nil
	}

	marks := s.attendance.MarkCandidates(ctx, classID, date, method, result.Recognized)
	resp.Results = marks
	for _, mark := range marks {
		switch mark.Outcome {
		case models.OutcomeMarked:
			resp.Marked++
		case models.OutcomeAlreadyMarked:
			resp.AlreadyMarked++
		}
		if s.metrics != nil {
			s.metrics.AddMarks(mark.Outcome, 1)
		}
	}

	if resp.Marked > 0 {
		if _, err := s.sheets.GenerateDailySheet(ctx, classID, date); err != nil {
			// Sheet refresh is best effort; the records are already stored.
			s.logger.Error("daily sheet refresh failed",
				zap.String("class_id", classID),
				zap.Error(err))
		}

		eventType := realtime.EventAttendanceMarked
		if method == models.MethodPhotoUpload {
			eventType = realtime.EventBatchAttendanceMarked
		}
		if s.hub != nil {
			s.hub.Publish(eventType, classID, marks)
		}
	}
	return resp, nil
}
