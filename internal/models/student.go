package models

import "time"

// Student represents a learner registered for face attendance.
type Student struct {
	ID             string    `db:"id" json:"id"`
	StudentCode    string    `db:"student_code" json:"student_code"`
	FullName       string    `db:"full_name" json:"full_name"`
	Email          string    `db:"email" json:"email"`
	Phone          string    `db:"phone" json:"phone"`
	Department     string    `db:"department" json:"department,omitempty"`
	FaceRegistered bool      `db:"face_registered" json:"face_registered"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search         string
	ClassID        string
	FaceRegistered *bool
	Active         *bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// StudentDetail contains student information with class roster context.
type StudentDetail struct {
	Student
	ClassIDs []string `json:"class_ids,omitempty"`
}

// BulkImportResult reports the outcome of a CSV student import.
type BulkImportResult struct {
	Created int               `json:"created"`
	Skipped int               `json:"skipped"`
	Errors  []BulkImportError `json:"errors,omitempty"`
}

// BulkImportError pinpoints a rejected CSV row.
type BulkImportError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
