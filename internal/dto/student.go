package dto

// CreateStudentRequest defines payload for registering a student.
type CreateStudentRequest struct {
	StudentCode string   `json:"studentCode" validate:"required"`
	FullName    string   `json:"fullName" validate:"required,min=2"`
	Email       string   `json:"email" validate:"omitempty,email"`
	Phone       string   `json:"phone,omitempty"`
	Department  string   `json:"department,omitempty"`
	FaceImages  []string `json:"faceImages,omitempty" validate:"omitempty,min=2,max=10"`
}

// UpdateStudentRequest defines mutable student fields.
type UpdateStudentRequest struct {
	StudentCode *string `json:"studentCode,omitempty"`
	FullName    *string `json:"fullName,omitempty" validate:"omitempty,min=2"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string `json:"phone,omitempty"`
	Department  *string `json:"department,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// RegisterFaceRequest enrolls face images for an existing student.
type RegisterFaceRequest struct {
	FaceImages []string `json:"faceImages" validate:"required,min=2,max=10"`
}

// StudentListQuery captures list filters from query parameters.
type StudentListQuery struct {
	Search         string `form:"search"`
	ClassID        string `form:"classId"`
	FaceRegistered *bool  `form:"faceRegistered"`
	Active         *bool  `form:"active"`
	Page           int    `form:"page"`
	PageSize       int    `form:"pageSize"`
	SortBy         string `form:"sortBy"`
	SortOrder      string `form:"sortOrder"`
}
