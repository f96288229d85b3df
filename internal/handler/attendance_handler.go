package handler

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
	"github.com/noah-isme/face-attendance-api/internal/service"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
	"github.com/noah-isme/face-attendance-api/pkg/response"
)

const maxPhotoSize = 10 << 20

// AttendanceHandler exposes marking, correction and statistics endpoints.
type AttendanceHandler struct {
	capture    *service.CaptureService
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(capture *service.CaptureService, attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{capture: capture, attendance: attendance}
}

// Capture godoc
// @Summary Mark attendance from a single camera frame
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.CaptureRequest true "Capture payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/capture [post]
func (h *AttendanceHandler) Capture(c *gin.Context) {
	var req dto.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.capture.CaptureSingle(c.Request.Context(), req.ClassID, req.ImageData, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeCaptureResult(c, result)
}

// Upload godoc
// @Summary Mark attendance from uploaded photos
// @Tags Attendance
// @Accept multipart/form-data
// @Produce json
// @Param classId formData string true "Class ID"
// @Param date formData string false "Day (YYYY-MM-DD)"
// @Param photos formData file true "Photos, repeatable"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/upload [post]
func (h *AttendanceHandler) Upload(c *gin.Context) {
	classID := strings.TrimSpace(c.PostForm("classId"))
	if classID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "classId form field is required"))
		return
	}
	date, err := parseDate(c.PostForm("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid multipart form"))
		return
	}
	files := form.File["photos"]
	if len(files) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "at least one photo is required"))
		return
	}
	images := make([]string, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxPhotoSize {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "photo exceeds the size limit"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable photo"))
			return
		}
		raw, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable photo"))
			return
		}
		images = append(images, base64.StdEncoding.EncodeToString(raw))
	}
	result, err := h.capture.CaptureBatch(c.Request.Context(), classID, images, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeCaptureResult(c, result)
}

// writeCaptureResult maps a gateway outage to a 503 envelope. Other
// failure kinds still return 200 with the failure in the result body.
func writeCaptureResult(c *gin.Context, result *dto.CaptureResponse) {
	switch result.Failure {
	case recognition.FailureUnavailable, recognition.FailureTimeout:
		detail := result.FailureDetail
		if detail == "" {
			detail = appErrors.ErrServiceUnavailable.Message
		}
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, detail))
	default:
		response.JSON(c, http.StatusOK, result, nil)
	}
}

// ManualMark godoc
// @Summary Mark a student manually
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.ManualMarkRequest true "Manual mark payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/manual [post]
func (h *AttendanceHandler) ManualMark(c *gin.Context) {
	var req dto.ManualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	markedBy := ""
	if claims != nil {
		markedBy = claims.UserID
	}
	record, err := h.attendance.ManualMark(c.Request.Context(), req.ClassID, req.StudentID, req.Status, date, req.Notes, markedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Correct godoc
// @Summary Correct a stored attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.CorrectionRequest true "Correction payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/{id} [patch]
func (h *AttendanceHandler) Correct(c *gin.Context) {
	var req dto.CorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	correctedBy := ""
	if claims != nil {
		correctedBy = claims.UserID
	}
	record, err := h.attendance.Correct(c.Request.Context(), c.Param("id"), req.Status, req.Reason, correctedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	if record == nil {
		// Correcting to absent removes the row.
		response.NoContent(c)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Produce json
// @Param id path string true "Record ID"
// @Success 204
// @Security BearerAuth
// @Router /attendance/{id} [delete]
func (h *AttendanceHandler) Delete(c *gin.Context) {
	if err := h.attendance.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param classId query string false "Filter by class"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param dateFrom query string false "Range start (YYYY-MM-DD)"
// @Param dateTo query string false "Range end (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	var query dto.AttendanceListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	filter := models.AttendanceFilter{
		ClassID:   query.ClassID,
		StudentID: query.StudentID,
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := models.AttendanceStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status"))
			return
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Method); raw != "" {
		method := models.AttendanceMethod(raw)
		filter.Method = &method
	}
	if query.DateFrom != "" {
		from, err := parseDate(query.DateFrom)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.DateFrom = &from
	}
	if query.DateTo != "" {
		to, err := parseDate(query.DateTo)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.DateTo = &to
	}

	records, pagination, err := h.attendance.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Live godoc
// @Summary List today's marks for a class
// @Tags Attendance
// @Produce json
// @Param classId path string true "Class ID"
// @Param date query string false "Day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/live/{classId} [get]
func (h *AttendanceHandler) Live(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.attendance.Live(c.Request.Context(), c.Param("classId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// DailyStats godoc
// @Summary Daily attendance statistics for a class
// @Tags Statistics
// @Produce json
// @Param classId path string true "Class ID"
// @Param date query string false "Day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/stats/daily/{classId} [get]
func (h *AttendanceHandler) DailyStats(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.attendance.DailyStats(c.Request.Context(), c.Param("classId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// RangeStats godoc
// @Summary Per-student attendance statistics over a range
// @Tags Statistics
// @Produce json
// @Param classId path string true "Class ID"
// @Param from query string true "Range start (YYYY-MM-DD)"
// @Param to query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/stats/range/{classId} [get]
func (h *AttendanceHandler) RangeStats(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.attendance.RangeStats(c.Request.Context(), c.Param("classId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Trend godoc
// @Summary Per-day attendance trend over a range
// @Tags Statistics
// @Produce json
// @Param classId path string true "Class ID"
// @Param from query string true "Range start (YYYY-MM-DD)"
// @Param to query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /attendance/stats/trend/{classId} [get]
func (h *AttendanceHandler) Trend(c *gin.Context) {
	from, to, err := parseRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	points, err := h.attendance.Trend(c.Request.Context(), c.Param("classId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, points, nil)
}

func parseRange(c *gin.Context) (from, to time.Time, err error) {
	rawFrom := c.Query("from")
	rawTo := c.Query("to")
	if rawFrom == "" || rawTo == "" {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "from and to query parameters are required")
	}
	if from, err = parseDate(rawFrom); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to, err = parseDate(rawTo); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
