package account

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/somalabs/darasa/core"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	return all
}

// Account is an authenticated identity in the directory: a student, a
// teacher (instructor) or an admin.
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     *bool     `json:"is_active"`
	Roles        []string  `json:"roles"`
	StageID      string    `json:"stage_id,omitempty"` // empty for accounts not bound to a stage
	Unlimited    bool      `json:"unlimited_devices"`  // unlimited-tier: exempt from the device cap
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

func (a *Account) SetActive(active bool) { a.IsActive = &active }

func (a *Account) IsActivated() bool { return a.IsActive != nil && *a.IsActive }

func (a *Account) RoleStartsWith(prefix string) bool {
	for _, role := range a.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (a *Account) IsAdmin() bool   { return a.RoleStartsWith(RoleAdmin) }
func (a *Account) IsTeacher() bool { return a.RoleStartsWith(RoleTeacher) }
func (a *Account) IsStudent() bool { return a.RoleStartsWith(RoleStudent) }

// NewAccount contains information needed to create a new Account.
type NewAccount struct {
	Name      string   `json:"name" validate:"required"`
	Username  string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email     string   `json:"email" validate:"omitempty,email"`
	Password  string   `json:"password" validate:"required"`
	Roles     []string `json:"roles" validate:"omitempty,allroles"`
	StageID   string   `json:"stage_id"`
	Unlimited bool     `json:"unlimited_devices"`
}

func (na *NewAccount) Clean() {
	na.Name = core.CleanString(na.Name)
	na.Username = core.CleanString(na.Username, true /* lower */)
	na.Email = core.CleanString(na.Email, true /* lower */)
}

// GetFilter matches an Account on the first non-empty field.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
