package dto

// CreateClassRequest defines payload for creating a class.
type CreateClassRequest struct {
	Name       string  `json:"name" validate:"required,min=2"`
	Code       string  `json:"code" validate:"required"`
	Schedule   *string `json:"schedule,omitempty"`
	Department string  `json:"department,omitempty"`
	Semester   *int    `json:"semester,omitempty" validate:"omitempty,min=1,max=14"`
	Capacity   int     `json:"capacity" validate:"required,min=1,max=500"`
}

// UpdateClassRequest defines mutable class fields.
type UpdateClassRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=2"`
	Code       *string `json:"code,omitempty"`
	Schedule   *string `json:"schedule,omitempty"`
	Department *string `json:"department,omitempty"`
	Semester   *int    `json:"semester,omitempty" validate:"omitempty,min=1,max=14"`
	Capacity   *int    `json:"capacity,omitempty" validate:"omitempty,min=1,max=500"`
	Active     *bool   `json:"active,omitempty"`
}

// EnrollStudentRequest adds a student to a class roster.
type EnrollStudentRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

// ClassListQuery captures list filters from query parameters.
type ClassListQuery struct {
	Search    string `form:"search"`
	TeacherID string `form:"teacherId"`
	Active    *bool  `form:"active"`
	Page      int    `form:"page"`
	PageSize  int    `form:"pageSize"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}
