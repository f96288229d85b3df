package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
	"github.com/noah-isme/face-attendance-api/internal/service"
)

type recognizerStub struct {
	result recognition.Result
}

func (r recognizerStub) RecognizeSingle(ctx context.Context, imageData string) recognition.Result {
	return r.result
}

func (r recognizerStub) RecognizeBatch(ctx context.Context, images []string) recognition.Result {
	return r.result
}

func TestAttendanceHandlerCaptureGatewayDownReturns503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	capture := service.NewCaptureService(recognizerStub{result: recognition.Result{
		Failure:       recognition.FailureUnavailable,
		FailureDetail: "recognition service unreachable",
	}}, nil, nil, nil, nil, nil)
	handler := NewAttendanceHandler(capture, nil)

	payload, _ := json.Marshal(dto.CaptureRequest{
		ClassID:   "cls-1",
		ImageData: "ZmFrZQ==",
		Date:      "2026-03-02",
	})
	c, w := newGinContext(http.MethodPost, "/attendance/capture", payload)

	handler.Capture(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	require.Equal(t, "recognition service unreachable", body.Error.Message)
}

func TestAttendanceHandlerManualMarkRejectsBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, nil)

	payload, _ := json.Marshal(dto.ManualMarkRequest{
		ClassID:   "cls-1",
		StudentID: "stu-1",
		Status:    models.AttendanceStatusPresent,
		Date:      "02/03/2026",
	})
	c, w := newGinContext(http.MethodPost, "/attendance/manual", payload)

	handler.ManualMark(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerListRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, nil)

	c, w := newGinContext(http.MethodGet, "/attendance?status=vanished", nil)
	c.Request.URL.RawQuery = "status=vanished"

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerRangeStatsRequiresRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAttendanceHandler(nil, nil)

	c, w := newGinContext(http.MethodGet, "/attendance/stats/range/cls-1", nil)
	c.Params = gin.Params{{Key: "classId", Value: "cls-1"}}

	handler.RangeStats(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
