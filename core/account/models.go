package account

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/socportal/jumuiya/core"
)

// Roles
const (
	RoleStudent    = "student"
	RoleAlumnus    = "alumnus"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Approval statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var (
	AllRoles      = []string{RoleStudent, RoleAlumnus, RoleAdmin, RoleSuperAdmin}
	ElevatedRoles = []string{RoleAdmin, RoleSuperAdmin}
	AllStatuses   = []string{StatusPending, StatusApproved, StatusRejected}
	AllLevels     = []string{"100", "200", "300", "400", "500"}

	rolePriorities = map[string]int{
		RoleSuperAdmin: 30,
		RoleAdmin:      21,
		RoleAlumnus:    2,
		RoleStudent:    1,
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

// IsElevatedRole reports whether role is admin or super_admin.
func IsElevatedRole(role string) bool {
	return core.ContainsString(ElevatedRoles, role)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAnonymous() bool { return a.ID == "" }
func (a Actor) IsElevated() bool  { return IsElevatedRole(a.Role) }
func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// CanManage reports whether the actor owns the resource or holds an elevated role.
func (a Actor) CanManage(ownerID string) bool {
	return !a.IsAnonymous() && (a.ID == ownerID || a.IsElevated())
}

type Account struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	MatricNumber      string     `json:"matricNumber,omitempty"`
	FirstName         string     `json:"firstName"`
	LastName          string     `json:"lastName"`
	OtherName         string     `json:"otherName,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	DateOfBirth       *time.Time `json:"dateOfBirth,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	Level             string     `json:"level,omitempty"`
	Address           string     `json:"address,omitempty"`
	Bio               string     `json:"bio,omitempty"`
	AvatarURL         string     `json:"avatarUrl,omitempty"`
	PasswordHash      []byte     `json:"-"`
	Role              string     `json:"role"`
	ApprovalStatus    string     `json:"approvalStatus"`
	ProfileCompletion int        `json:"profileCompletion"`
	CreatedAt         time.Time  `json:"createdAt"` // UTC
	UpdatedAt         time.Time  `json:"updatedAt"` // UTC
	LastLogin         time.Time  `json:"lastLogin"` // UTC
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

func (a *Account) Name() string {
	return a.FirstName + " " + a.LastName
}

func (a *Account) IsApproved() bool { return a.ApprovalStatus == StatusApproved }
func (a *Account) IsElevated() bool { return IsElevatedRole(a.Role) }

func (a *Account) Actor() Actor {
	return Actor{ID: a.ID, Role: a.Role}
}

// profileFields are the fields counted by ProfileCompletion.
func (a *Account) profileFields() []bool {
	return []bool{
		a.FirstName != "",
		a.LastName != "",
		a.Email != "",
		a.MatricNumber != "",
		a.Gender != "",
		a.DateOfBirth != nil,
		a.Phone != "",
		a.Level != "",
		a.Bio != "",
		a.AvatarURL != "",
	}
}

// computeProfileCompletion returns the percentage (0 - 100) of filled profile fields.
func (a *Account) computeProfileCompletion() int {
	flds := a.profileFields()
	var filled int
	for _, ok := range flds {
		if ok {
			filled++
		}
	}
	return filled * 100 / len(flds)
}

// NewAccount contains information needed to register a new Account.
type NewAccount struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm" validate:"omitempty,eqfield=Password"`
	FirstName       string `json:"firstName" validate:"required,notblank,max=100"`
	LastName        string `json:"lastName" validate:"required,notblank,max=100"`
	OtherName       string `json:"otherName" validate:"omitempty,max=100"`
	MatricNumber    string `json:"matricNumber" validate:"omitempty,matric"`
	Level           string `json:"level" validate:"omitempty,level"`
	Gender          string `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth     string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Phone           string `json:"phone" validate:"omitempty,max=20"`
	Address         string `json:"address" validate:"omitempty,max=255"`
	AccountType     string `json:"accountType" validate:"omitempty,oneof=student alumnus"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.MatricNumber = core.CleanString(na.MatricNumber, true /* lower */)
	na.FirstName = core.CleanString(na.FirstName)
	na.LastName = core.CleanString(na.LastName)
	na.OtherName = core.CleanString(na.OtherName)
	na.Level = core.CleanString(na.Level)
	na.Gender = core.CleanString(na.Gender, true /* lower */)
	na.DateOfBirth = core.CleanString(na.DateOfBirth)
	na.Phone = core.CleanString(na.Phone)
	na.Address = core.CleanString(na.Address)
	na.AccountType = core.CleanString(na.AccountType, true /* lower */)
	if na.AccountType == "" {
		na.AccountType = RoleStudent
	}
	return validate.Struct(na)
}

// UpdateProfile defines what information an Account may change about itself.
// Role, approval status, email and matric number are not part of it.
// Blank names and level keep their value; the nullable fields are left alone when
// absent or null and cleared when set to "".
type UpdateProfile struct {
	FirstName       string      `json:"firstName" validate:"omitempty,max=100"`
	LastName        string      `json:"lastName" validate:"omitempty,max=100"`
	OtherName       null.String `json:"otherName" validate:"omitempty,max=100"`
	Gender          null.String `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth     null.String `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Phone           null.String `json:"phone" validate:"omitempty,max=20"`
	Level           string      `json:"level" validate:"omitempty,level"`
	Address         null.String `json:"address" validate:"omitempty,max=255"`
	Bio             null.String `json:"bio" validate:"omitempty,max=1000"`
	AvatarURL       null.String `json:"avatarUrl" validate:"omitempty,url"`
	Password        string      `json:"password"`
	PasswordConfirm string      `json:"passwordConfirm" validate:"required_with=Password,eqfield=Password"`

	// set by Validate, used by the password policy
	email string
}

func cleanNull(s null.String, lower ...bool) null.String {
	if s.Valid {
		s.String = core.CleanString(s.String, lower...)
	}
	return s
}

func (up *UpdateProfile) Validate(orig Account, validate *validator.Validate) error {
	keep := func(val, origVal string) string {
		if v := core.CleanString(val); v != "" {
			return v
		}
		return origVal
	}
	up.FirstName = keep(up.FirstName, orig.FirstName)
	up.LastName = keep(up.LastName, orig.LastName)
	up.Level = keep(up.Level, orig.Level)
	up.OtherName = cleanNull(up.OtherName)
	up.Gender = cleanNull(up.Gender, true /* lower */)
	up.DateOfBirth = cleanNull(up.DateOfBirth)
	up.Phone = cleanNull(up.Phone)
	up.Address = cleanNull(up.Address)
	up.Bio = cleanNull(up.Bio)
	up.AvatarURL = cleanNull(up.AvatarURL)
	up.email = orig.Email
	return validate.Struct(up)
}

// apply copies the validated changes onto acc.
func (up UpdateProfile) apply(acc *Account) error {
	set := func(dst *string, s null.String) {
		if s.Valid {
			*dst = s.String
		}
	}
	acc.FirstName = up.FirstName
	acc.LastName = up.LastName
	acc.Level = up.Level
	set(&acc.OtherName, up.OtherName)
	set(&acc.Gender, up.Gender)
	set(&acc.Phone, up.Phone)
	set(&acc.Address, up.Address)
	set(&acc.Bio, up.Bio)
	set(&acc.AvatarURL, up.AvatarURL)
	if up.DateOfBirth.Valid {
		acc.DateOfBirth = nil
		if up.DateOfBirth.String != "" {
			dob, err := time.Parse(dateLayout, up.DateOfBirth.String)
			if err != nil {
				return core.NewValidationError(err, core.FieldError{Field: "dateOfBirth", Error: "invalid date"})
			}
			acc.DateOfBirth = &dob
		}
	}
	return nil
}

type ResetPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// GetFilter selects a single Account; the first non-empty field wins.
type GetFilter struct {
	ID           string
	Email        string
	MatricNumber string
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Statuses []string `query:"status"`
	Roles    []string `query:"role"`
	Levels   []string `query:"level"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Statuses = core.CleanStrings(qf.Statuses, true /* lower */)
	qf.Roles = core.CleanStrings(qf.Roles, true /* lower */)
	qf.Levels = core.CleanStrings(qf.Levels)
}

// Match reports whether acc satisfies the filter (used by in-memory repositories).
func (qf QueryFilter) Match(acc Account) bool {
	if len(qf.Statuses) > 0 && !core.ContainsString(qf.Statuses, acc.ApprovalStatus) {
		return false
	}
	if len(qf.Roles) > 0 && !core.ContainsString(qf.Roles, acc.Role) {
		return false
	}
	if len(qf.Levels) > 0 && !core.ContainsString(qf.Levels, acc.Level) {
		return false
	}
	if qf.Search != "" {
		return core.ContainsFold(acc.FirstName, qf.Search) ||
			core.ContainsFold(acc.LastName, qf.Search) ||
			core.ContainsFold(acc.Email, qf.Search) ||
			core.ContainsFold(acc.MatricNumber, qf.Search)
	}
	return true
}

// OrderingFields maps the API ordering fields to their column names.
var OrderingFields = map[string]string{
	"created_at": "created_at",
	"createdat":  "created_at",
	"email":      "email",
	"firstname":  "first_name",
	"lastname":   "last_name",
	"level":      "level",
	"status":     "approval_status",
}
