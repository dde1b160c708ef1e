package user

import "time"

// Role identifies what a user is allowed to do in the question workflow.
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleQuestionSubmitter Role = "question_submitter"
	RoleOCREditor         Role = "ocr_editor"
	RoleOCRReviewer       Role = "ocr_reviewer"
	RoleRewriteEditor     Role = "rewrite_editor"
	RoleRewriteReviewer   Role = "rewrite_reviewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleQuestionSubmitter, RoleOCREditor, RoleOCRReviewer,
		RoleRewriteEditor, RoleRewriteReviewer:
		return true
	}
	return false
}

// User is an authenticated workflow participant. Accounts are provisioned
// out of band; this service only reads them.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	Role      Role      `json:"role"`
	Superuser bool      `json:"superuser"`
	Active    bool      `json:"active"`
	TokenHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Satisfies reports whether the user fills the given role. Admins satisfy
// every role requirement.
func (u *User) Satisfies(role Role) bool {
	return u.Role == RoleAdmin || u.Role == role
}
