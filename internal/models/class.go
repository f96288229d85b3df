package models

import "time"

// Class represents a course section that takes attendance.
type Class struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Code       string    `db:"code" json:"code"`
	TeacherID  *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	Schedule   *string   `db:"schedule" json:"schedule,omitempty"`
	Department string    `db:"department" json:"department,omitempty"`
	Semester   *int      `db:"semester" json:"semester,omitempty"`
	Capacity   int       `db:"capacity" json:"capacity"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with the current roster size.
type ClassDetail struct {
	Class
	EnrolledCount int `db:"enrolled_count" json:"enrolled_count"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	Search    string
	TeacherID string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassStudent maps a student onto a class roster.
type ClassStudent struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

// RosterEntry is a roster row joined with student metadata.
type RosterEntry struct {
	ClassStudent
	StudentCode    string `db:"student_code" json:"student_code"`
	StudentName    string `db:"student_name" json:"student_name"`
	FaceRegistered bool   `db:"face_registered" json:"face_registered"`
}
