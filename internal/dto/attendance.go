package dto

import (
	"time"

	"github.com/noah-isme/face-attendance-api/internal/models"
	"github.com/noah-isme/face-attendance-api/internal/recognition"
)

// CaptureRequest carries a single camera frame for recognition marking.
type CaptureRequest struct {
	ClassID   string `json:"classId" validate:"required"`
	ImageData string `json:"imageData" validate:"required"`
	Date      string `json:"date,omitempty"`
}

// CaptureResponse summarises a recognition marking pass.
type CaptureResponse struct {
	ClassID           string                  `json:"classId"`
	Date              time.Time               `json:"date"`
	FacesDetected     int                     `json:"facesDetected"`
	UnregisteredFaces int                     `json:"unregisteredFaces"`
	ProcessingTime    float64                 `json:"processingTime"`
	Failure           recognition.FailureKind `json:"failure,omitempty"`
	FailureDetail     string                  `json:"failureDetail,omitempty"`
	Results           []models.MarkResult     `json:"results"`
	Marked            int                     `json:"marked"`
	AlreadyMarked     int                     `json:"alreadyMarked"`
}

// ManualMarkRequest records attendance without face recognition.
type ManualMarkRequest struct {
	ClassID   string                  `json:"classId" validate:"required"`
	StudentID string                  `json:"studentId" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
	Date      string                  `json:"date,omitempty"`
	Notes     *string                 `json:"notes,omitempty"`
}

// CorrectionRequest amends a stored attendance record.
type CorrectionRequest struct {
	Status models.AttendanceStatus `json:"status" validate:"required"`
	Reason string                  `json:"reason" validate:"required,min=3"`
}

// AttendanceListQuery captures list filters from query parameters.
type AttendanceListQuery struct {
	ClassID   string `form:"classId"`
	StudentID string `form:"studentId"`
	Status    string `form:"status"`
	Method    string `form:"method"`
	DateFrom  string `form:"dateFrom"`
	DateTo    string `form:"dateTo"`
	Page      int    `form:"page"`
	PageSize  int    `form:"pageSize"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}

// StatsQuery scopes daily statistics lookups.
type StatsQuery struct {
	Date string `form:"date"`
}

// RangeQuery scopes range statistics and trends.
type RangeQuery struct {
	From string `form:"from" validate:"required"`
	To   string `form:"to" validate:"required"`
}
