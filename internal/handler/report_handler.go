package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/face-attendance-api/internal/dto"
	"github.com/noah-isme/face-attendance-api/internal/service"
	appErrors "github.com/noah-isme/face-attendance-api/pkg/errors"
	"github.com/noah-isme/face-attendance-api/pkg/response"
)

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler exposes sheet generation and download endpoints.
type ReportHandler struct {
	service *service.SheetService
}

// NewReportHandler constructs a report handler.
func NewReportHandler(svc *service.SheetService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// GenerateDaily godoc
// @Summary Generate the daily attendance sheet for a class day
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.DailyReportRequest true "Report scope"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/daily [post]
func (h *ReportHandler) GenerateDaily(c *gin.Context) {
	var req dto.DailyReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.GenerateDailySheet(c.Request.Context(), req.ClassID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// GenerateMonthly godoc
// @Summary Generate the monthly attendance matrix for a class
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.MonthlyReportRequest true "Report scope"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/monthly [post]
func (h *ReportHandler) GenerateMonthly(c *gin.Context) {
	var req dto.MonthlyReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.Month < 1 || req.Month > 12 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12"))
		return
	}
	report, err := h.service.GenerateMonthlyReport(c.Request.Context(), req.ClassID, req.Year, time.Month(req.Month))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// DailySummaryPDF godoc
// @Summary Download the daily summary as PDF
// @Tags Reports
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param date query string false "Day (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /reports/daily/{classId}/pdf [get]
func (h *ReportHandler) DailySummaryPDF(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	data, filename, err := h.service.DailySummaryPDF(c.Request.Context(), c.Param("classId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", data)
}

// Download godoc
// @Summary Download a generated report by signed token
// @Tags Reports
// @Produce application/octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	path, err := h.service.ResolveToken(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := filepath.Base(path)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	mimeType := "application/octet-stream"
	if filepath.Ext(filename) == ".xlsx" {
		mimeType = xlsxMimeType
	}
	c.Header("Content-Type", mimeType)
	c.File(path)
}
