package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/realtime"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
)

type mockRecognizer struct {
	result recognition.Result
}

func (m *mockRecognizer) RecognizeSingle(ctx context.Context, imageData string) recognition.Result {
	return m.result
}

func (m *mockRecognizer) RecognizeBatch(ctx context.Context, images []string) recognition.Result {
	return m.result
}

type mockMarker struct {
	results []models.MarkResult
	calls   int
}

func (m *mockMarker) MarkCandidates(ctx context.Context, classID string, date time.Time, method models.AttendanceMethod, candidates []recognition.Candidate) []models.MarkResult {
	m.calls++
	return m.results
}

type mockSheets struct {
	calls int
	err   error
}

func (m *mockSheets) GenerateDailySheet(ctx context.Context, classID string, date time.Time) (*models.ReportFile, error) {
	m.calls++
	return &models.ReportFile{Filename: "daily.xlsx"}, m.err
}

type mockPublisher struct {
	events []string
}

func (m *mockPublisher) Publish(eventType, classID string, payload interface{}) {
	m.events = append(m.events, eventType)
}

func TestCaptureSingleMarksAndBroadcasts(t *testing.T) {
	recog := &mockRecognizer{result: recognition.Result{
		Recognized:    []recognition.Candidate{{StudentID: "stu-1", Confidence: 0.96}},
		FacesDetected: 2,
	}}
	marker := &mockMarker{results: []models.MarkResult{
		{StudentID: "stu-1", Outcome: models.OutcomeMarked},
	}}
	sheets := &mockSheets{}
	hub := &mockPublisher{}
	svc := NewCaptureService(recog, marker, sheets, hub, nil, nil)

	resp, err := svc.CaptureSingle(context.Background(), "cls-1", "base64", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Marked)
	assert.Equal(t, 2, resp.FacesDetected)
	assert.Equal(t, 1, sheets.calls)
	require.Len(t, hub.events, 1)
	assert.Equal(t, realtime.EventAttendanceMarked, hub.events[0])
}

func TestCaptureBatchPublishesBatchEvent(t *testing.T) {
	recog := &mockRecognizer{result: recognition.Result{
		Recognized: []recognition.Candidate{{StudentID: "stu-1"}},
	}}
	marker := &mockMarker{results: []models.MarkResult{
		{StudentID: "stu-1", Outcome: models.OutcomeMarked},
	}}
	hub := &mockPublisher{}
	svc := NewCaptureService(recog, marker, &mockSheets{}, hub, nil, nil)

	_, err := svc.CaptureBatch(context.Background(), "cls-1", []string{"img1", "img2"}, time.Now())
	require.NoError(t, err)
	require.Len(t, hub.events, 1)
	assert.Equal(t, realtime.EventBatchAttendanceMarked, hub.events[0])
}

func TestCaptureDegradedGatewaySkipsMarking(t *testing.T) {
	recog := &mockRecognizer{result: recognition.Result{
		Failure:       recognition.FailureUnavailable,
		FailureDetail: "health probe failed",
	}}
	marker := &mockMarker{}
	sheets := &mockSheets{}
	svc := NewCaptureService(recog, marker, sheets, &mockPublisher{}, nil, nil)

	resp, err := svc.CaptureSingle(context.Background(), "cls-1", "base64", time.Now())
	require.NoError(t, err)
	assert.Equal(t, recognition.FailureUnavailable, resp.Failure)
	assert.Equal(t, 0, marker.calls)
	assert.Equal(t, 0, sheets.calls)
}

func TestCaptureSheetFailureDoesNotFailRequest(t *testing.T) {
	recog := &mockRecognizer{result: recognition.Result{
		Recognized: []recognition.Candidate{{StudentID: "stu-1"}},
	}}
	marker := &mockMarker{results: []models.MarkResult{
		{StudentID: "stu-1", Outcome: models.OutcomeMarked},
	}}
	sheets := &mockSheets{err: errors.New("disk full")}
	svc := NewCaptureService(recog, marker, sheets, &mockPublisher{}, nil, nil)

	resp, err := svc.CaptureSingle(context.Background(), "cls-1", "base64", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Marked)
}

func TestCaptureNoMarksSkipsSheetAndBroadcast(t *testing.T) {
	recog := &mockRecognizer{result: recognition.Result{
		Recognized: []recognition.Candidate{{StudentID: "stu-1"}},
	}}
	marker := &mockMarker{results: []models.MarkResult{
		{StudentID: "stu-1", Outcome: models.OutcomeAlreadyMarked},
	}}
	sheets := &mockSheets{}
	hub := &mockPublisher{}
	svc := NewCaptureService(recog, marker, sheets, hub, nil, nil)

	resp, err := svc.CaptureSingle(context.Background(), "cls-1", "base64", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, resp.AlreadyMarked)
	assert.Equal(t, 0, sheets.calls)
	assert.Empty(t, hub.events)
}

func TestCaptureBatchRequiresImages(t *testing.T) {
	svc := NewCaptureService(&mockRecognizer{}, &mockMarker{}, &mockSheets{}, &mockPublisher{}, nil, nil)
	_, err := svc.CaptureBatch(context.Background(), "cls-1", nil, time.Now())
	require.Error(t, err)
}
