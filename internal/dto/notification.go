package dto

// AbsenceNoticeRequest emails an absence notice to one student.
type AbsenceNoticeRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	ClassID   string `json:"classId" validate:"required"`
	Date      string `json:"date,omitempty"`
}

// LowAttendanceAlertRequest scopes a low attendance sweep for a class
// over a date range. Students below the configured threshold receive
// an alert email.
type LowAttendanceAlertRequest struct {
	ClassID string `json:"classId" validate:"required"`
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
}

// DailySummaryRequest emails the class day summary to the class teacher.
type DailySummaryRequest struct {
	ClassID   string `json:"classId" validate:"required"`
	Date      string `json:"date,omitempty"`
	Recipient string `json:"recipient" validate:"required,email"`
}

// EmailReportRequest emails the daily sheet as an attachment.
type EmailReportRequest struct {
	ClassID   string `json:"classId" validate:"required"`
	Date      string `json:"date,omitempty"`
	Recipient string `json:"recipient" validate:"required,email"`
}

// NotificationDispatchResponse reports how many emails were queued.
type NotificationDispatchResponse struct {
	Queued int `json:"queued"`
}
