package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/service"
	"github.com/noah-isme/face-attendance-api/pkg/config"
	"github.com/noah-isme/face-attendance-api/pkg/storage"
)

type sheetRepoStub struct {
	daily []models.AttendanceRecordDetail
}

func (m *sheetRepoStub) ListByClassDate(ctx context.Context, classID string, date time.Time) ([]models.AttendanceRecordDetail, error) {
	return m.daily, nil
}

func (m *sheetRepoStub) ListByClassRange(ctx context.Context, classID string, from, to time.Time) ([]models.AttendanceRecordDetail, error) {
	return m.daily, nil
}

type sheetClassStub struct {
	class  *models.ClassDetail
	roster []models.RosterEntry
}

func (m *sheetClassStub) FindByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	return m.class, nil
}

func (m *sheetClassStub) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	return m.roster, nil
}

func newReportHandler(t *testing.T) *ReportHandler {
	t.Helper()
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	repo := &sheetRepoStub{daily: []models.AttendanceRecordDetail{{
		AttendanceRecord: models.AttendanceRecord{
			StudentID: "stu-1",
			Status:    models.AttendanceStatusPresent,
			Date:      date,
			Method:    models.MethodCameraCapture,
			MarkedAt:  date.Add(8 * time.Hour),
		},
	}}}
	classes := &sheetClassStub{
		class: &models.ClassDetail{Class: models.Class{ID: "cls-1", Name: "Algorithms"}},
		roster: []models.RosterEntry{{
			ClassStudent: models.ClassStudent{StudentID: "stu-1"},
			StudentCode:  "S001",
			StudentName:  "Alice",
		}},
	}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	cfg := config.AttendanceConfig{RestDay: time.Sunday, DefaultConfidence: 0.9, StatsCacheTTL: time.Minute}
	return NewReportHandler(service.NewSheetService(repo, classes, store, signer, nil, cfg, nil))
}

func TestReportHandlerGenerateAndDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newReportHandler(t)

	payload, _ := json.Marshal(dto.DailyReportRequest{ClassID: "cls-1", Date: "2026-03-02"})
	c, w := newGinContext(http.MethodPost, "/reports/daily", payload)

	handler.GenerateDaily(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.ReportFile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "daily_cls-1_2026-03-02.xlsx", envelope.Data.Filename)

	token := strings.TrimPrefix(envelope.Data.DownloadURL, "/api/v1/reports/download/")
	require.NotEqual(t, envelope.Data.DownloadURL, token)

	dc, dw := newGinContext(http.MethodGet, "/reports/download/"+token, nil)
	dc.Params = gin.Params{{Key: "token", Value: token}}

	handler.Download(dc)
	require.Equal(t, http.StatusOK, dw.Code)
	require.Contains(t, dw.Header().Get("Content-Disposition"), "daily_cls-1_2026-03-02.xlsx")
	// xlsx workbooks are zip archives.
	require.True(t, strings.HasPrefix(dw.Body.String(), "PK"))
}

func TestReportHandlerDownloadRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newReportHandler(t)

	c, w := newGinContext(http.MethodGet, "/reports/download/garbage", nil)
	c.Params = gin.Params{{Key: "token", Value: "garbage"}}

	handler.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReportHandlerGenerateMonthlyRejectsBadMonth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newReportHandler(t)

	payload, _ := json.Marshal(dto.MonthlyReportRequest{ClassID: "cls-1", Year: 2026, Month: 13})
	c, w := newGinContext(http.MethodPost, "/reports/monthly", payload)

	handler.GenerateMonthly(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
