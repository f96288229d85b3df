package dto

// DailyReportRequest scopes daily sheet generation.
type DailyReportRequest struct {
	ClassID string `json:"classId" validate:"required"`
	Date    string `json:"date,omitempty"`
}

// MonthlyReportRequest scopes monthly matrix generation.
type MonthlyReportRequest struct {
	ClassID string `json:"classId" validate:"required"`
	Year    int    `json:"year" validate:"required,min=2000,max=2100"`
	Month   int    `json:"month" validate:"required,min=1,max=12"`
}
