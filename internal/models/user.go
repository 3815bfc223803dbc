package models

// UserRole represents the roles carried in access tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// IsAdministrator reports whether the role may see and edit every course.
func (r UserRole) IsAdministrator() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Viewer is the already-authorized identity a calendar query is computed for.
type Viewer struct {
	UserID string
	Role   UserRole
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
