package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/service"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
	"github.com/noah-isme/face-attendance-api/pkg/response"
)

// NotificationHandler exposes attendance email dispatch endpoints.
type NotificationHandler struct {
	service *service.NotifierService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(svc *service.NotifierService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// AbsenceNotice godoc
// @Summary Email an absence notice to a student
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.AbsenceNoticeRequest true "Notice scope"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/absence [post]
func (h *NotificationHandler) AbsenceNotice(c *gin.Context) {
	var req dto.AbsenceNoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.SendAbsenceNotice(c.Request.Context(), req.StudentID, req.ClassID, date); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.NotificationDispatchResponse{Queued: 1}, nil)
}

// LowAttendanceAlerts godoc
// @Summary Email alerts to students below the attendance threshold
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.LowAttendanceAlertRequest true "Sweep scope"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/low-attendance [post]
func (h *NotificationHandler) LowAttendanceAlerts(c *gin.Context) {
	var req dto.LowAttendanceAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	from, err := parseDate(req.From)
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseDate(req.To)
	if err != nil {
		response.Error(c, err)
		return
	}
	queued, err := h.service.SendLowAttendanceAlerts(c.Request.Context(), req.ClassID, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.NotificationDispatchResponse{Queued: queued}, nil)
}

// DailySummary godoc
// @Summary Email the daily class summary
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.DailySummaryRequest true "Summary scope"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/daily-summary [post]
func (h *NotificationHandler) DailySummary(c *gin.Context) {
	var req dto.DailySummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.SendDailySummary(c.Request.Context(), req.ClassID, date, req.Recipient); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.NotificationDispatchResponse{Queued: 1}, nil)
}

// EmailReport godoc
// @Summary Email the daily attendance sheet as an attachment
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.EmailReportRequest true "Report scope"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/email [post]
func (h *NotificationHandler) EmailReport(c *gin.Context) {
	var req dto.EmailReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.EmailDailyReport(c.Request.Context(), req.ClassID, date, req.Recipient); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.NotificationDispatchResponse{Queued: 1}, nil)
}
