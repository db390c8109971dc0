package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/lop69/BELL-SYSTEM-V2/core"
)

// Roles
const (
	RoleAdmin   = "Admin"
	RoleHOD     = "HOD"
	RoleStudent = "Student"

	DefaultRole       = RoleStudent
	DefaultDepartment = "General"
)

var (
	AllRoles = []string{RoleAdmin, RoleHOD, RoleStudent}

	Departments = []string{"Computer", "IT", "Electronics", "Electrical", "Mechanical", "Civil", "Pharmacy", DefaultDepartment}

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleHOD:     20,
		RoleStudent: 1,
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

type User struct {
	ID                       string      `json:"id"`
	Email                    string      `json:"email"`
	FirstName                null.String `json:"first_name"`
	LastName                 null.String `json:"last_name"`
	PhoneNumber              null.String `json:"phone_number"`
	Role                     string      `json:"role"`
	Department               string      `json:"department"`
	PushNotificationsEnabled null.Bool   `json:"push_notifications_enabled"`
	EmailSummaryEnabled      null.Bool   `json:"email_summary_enabled"`
	IsActive                 bool        `json:"is_active"`
	PasswordHash             []byte      `json:"-"`
	CreatedAt                time.Time   `json:"created_at"` // UTC
	UpdatedAt                time.Time   `json:"updated_at"` // UTC
	LastLogin                null.Time   `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// ApplyDefaults fills the profile fields the account was created without.
func (u *User) ApplyDefaults() {
	if u.Role == "" {
		u.Role = DefaultRole
	}
	if u.Department == "" {
		u.Department = DefaultDepartment
	}
}

// FullName falls back to the email when no name was given.
func (u User) FullName() string {
	name := core.CleanString(u.FirstName.String + " " + u.LastName.String)
	if name == "" {
		return u.Email
	}
	return name
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u User) IsHOD() bool { return u.Role == RoleHOD }

// IsStaff reports whether the user may manage schedules and devices.
func (u User) IsStaff() bool { return u.IsAdmin() || u.IsHOD() }

// NewUser contains information needed to sign up.
type NewUser struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"omitempty,max=50"`
	LastName        string `json:"last_name" validate:"omitempty,max=50"`
	PhoneNumber     string `json:"phone_number" validate:"omitempty,max=20"`
	Role            string `json:"role" validate:"omitempty,role"`
	Department      string `json:"department" validate:"omitempty,department"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.PhoneNumber = core.CleanString(nu.PhoneNumber)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(nu.Email)
}

// UpdateProfile defines what a user may change on their own profile. Nil fields are left untouched.
type UpdateProfile struct {
	FirstName                *string `json:"first_name" validate:"omitempty,max=50"`
	LastName                 *string `json:"last_name" validate:"omitempty,max=50"`
	PhoneNumber              *string `json:"phone_number" validate:"omitempty,max=20"`
	Role                     *string `json:"role" validate:"omitempty,role"`
	Department               *string `json:"department" validate:"omitempty,department"`
	PushNotificationsEnabled *bool   `json:"push_notifications_enabled"`
	EmailSummaryEnabled      *bool   `json:"email_summary_enabled"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	for _, s := range []*string{up.FirstName, up.LastName, up.PhoneNumber, up.Role, up.Department} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(up)
}

// TouchesNotifications reports whether only notification preferences are being changed.
func (up UpdateProfile) TouchesNotifications() bool {
	return up.PushNotificationsEnabled != nil || up.EmailSummaryEnabled != nil
}

// Apply copies the set fields onto usr.
func (up UpdateProfile) Apply(usr *User) {
	if up.FirstName != nil {
		usr.FirstName = null.NewString(*up.FirstName, *up.FirstName != "")
	}
	if up.LastName != nil {
		usr.LastName = null.NewString(*up.LastName, *up.LastName != "")
	}
	if up.PhoneNumber != nil {
		usr.PhoneNumber = null.NewString(*up.PhoneNumber, *up.PhoneNumber != "")
	}
	if up.Role != nil && *up.Role != "" {
		usr.Role = *up.Role
	}
	if up.Department != nil && *up.Department != "" {
		usr.Department = *up.Department
	}
	if up.PushNotificationsEnabled != nil {
		usr.PushNotificationsEnabled = null.BoolFromPtr(up.PushNotificationsEnabled)
	}
	if up.EmailSummaryEnabled != nil {
		usr.EmailSummaryEnabled = null.BoolFromPtr(up.EmailSummaryEnabled)
	}
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Role                string
	EmailSummaryEnabled *bool
	IsActive            *bool
}
