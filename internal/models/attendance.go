package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Counted reports whether the status occupies a stored row for the day.
// Absence is derived at query time from the class roster, not stored.
func (s AttendanceStatus) Counted() bool {
	return s != AttendanceStatusAbsent
}

// AttendanceMethod records how an attendance mark was produced.
type AttendanceMethod string

const (
	MethodCameraCapture AttendanceMethod = "camera_capture"
	MethodPhotoUpload   AttendanceMethod = "photo_upload"
	MethodManual        AttendanceMethod = "manual"
	MethodBulkUpload    AttendanceMethod = "bulk_upload"
)

// Valid returns true when the method is a supported value.
func (m AttendanceMethod) Valid() bool {
	switch m {
	case MethodCameraCapture, MethodPhotoUpload, MethodManual, MethodBulkUpload:
		return true
	default:
		return false
	}
}

// Correction captures one entry of the append-only correction log.
type Correction struct {
	From        AttendanceStatus `json:"from"`
	To          AttendanceStatus `json:"to"`
	Reason      string           `json:"reason"`
	CorrectedBy string           `json:"corrected_by"`
	CorrectedAt time.Time        `json:"corrected_at"`
}

// CorrectionLog is persisted as a JSONB array on the attendance row.
type CorrectionLog []Correction

// Value marshals the log to JSON for persistence.
func (l CorrectionLog) Value() (driver.Value, error) {
	if l == nil {
		l = CorrectionLog{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal correction log: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the log.
func (l *CorrectionLog) Scan(value interface{}) error {
	if value == nil {
		*l = CorrectionLog{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for CorrectionLog", value)
	}
	if len(data) == 0 {
		*l = CorrectionLog{}
		return nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return fmt.Errorf("unmarshal correction log: %w", err)
	}
	return nil
}

// AttendanceRecord represents a single stored attendance row. Only
// non-absent statuses are stored; at most one row exists per
// (student, class, date).
type AttendanceRecord struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	ClassID     string           `db:"class_id" json:"class_id"`
	Date        time.Time        `db:"date" json:"date"`
	Status      AttendanceStatus `db:"status" json:"status"`
	Method      AttendanceMethod `db:"method" json:"method"`
	Confidence  *float64         `db:"confidence" json:"confidence,omitempty"`
	MarkedAt    time.Time        `db:"marked_at" json:"marked_at"`
	MarkedBy    *string          `db:"marked_by" json:"marked_by,omitempty"`
	Notes       *string          `db:"notes" json:"notes,omitempty"`
	Corrections CorrectionLog    `db:"corrections" json:"corrections,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail extends the row with student metadata for listings.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentCode string `db:"student_code" json:"student_code"`
	StudentName string `db:"student_name" json:"student_name"`
}

// AttendanceFilter defines query filters for listing attendance records.
type AttendanceFilter struct {
	ClassID   string
	StudentID string
	Status    *AttendanceStatus
	Method    *AttendanceMethod
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// MarkOutcome describes the result of one recognition candidate.
type MarkOutcomeKind string

const (
	OutcomeMarked        MarkOutcomeKind = "marked"
	OutcomeAlreadyMarked MarkOutcomeKind = "already_marked"
	OutcomeNotEnrolled   MarkOutcomeKind = "not_enrolled"
	OutcomeFailed        MarkOutcomeKind = "failed"
)

// MarkResult reports the per-candidate outcome of a marking pass.
type MarkResult struct {
	StudentID   string            `json:"student_id"`
	StudentName string            `json:"student_name,omitempty"`
	Outcome     MarkOutcomeKind   `json:"outcome"`
	Confidence  float64           `json:"confidence,omitempty"`
	Error       string            `json:"error,omitempty"`
	Record      *AttendanceRecord `json:"record,omitempty"`
}

// DailyStats summarises one class day. Absent is derived from the
// roster size, never stored.
type DailyStats struct {
	ClassID        string    `json:"class_id"`
	Date           time.Time `json:"date"`
	TotalEnrolled  int       `json:"total_enrolled"`
	Present        int       `json:"present"`
	Late           int       `json:"late"`
	Excused        int       `json:"excused"`
	Absent         int       `json:"absent"`
	AttendanceRate float64   `json:"attendance_rate"`
}

// StudentRangeStats aggregates one student's attendance over a date range.
type StudentRangeStats struct {
	StudentID      string  `db:"student_id" json:"student_id"`
	StudentCode    string  `db:"student_code" json:"student_code"`
	StudentName    string  `db:"student_name" json:"student_name"`
	Present        int     `db:"present" json:"present"`
	Late           int     `db:"late" json:"late"`
	Excused        int     `db:"excused" json:"excused"`
	Absent         int     `json:"absent"`
	WorkingDays    int     `json:"working_days"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// TrendPoint is one day in a class attendance trend series.
type TrendPoint struct {
	Date           time.Time `json:"date"`
	Present        int       `json:"present"`
	Late           int       `json:"late"`
	Excused        int       `json:"excused"`
	Absent         int       `json:"absent"`
	AttendanceRate float64   `json:"attendance_rate"`
}

// StatusCount is a raw grouped count row returned by aggregate queries.
type StatusCount struct {
	Date   time.Time        `db:"date" json:"date"`
	Status AttendanceStatus `db:"status" json:"status"`
	Count  int              `db:"count" json:"count"`
}
