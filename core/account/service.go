package account

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/socportal/jumuiya/core"
)

var (
	ErrNotFound        = core.NewError(core.KindNotFound, "account not found")
	ErrEmailExists     = errors.New("an account with this email already exists")
	ErrMatricExists    = errors.New("an account with this matric number already exists")
	ErrBadCredentials  = core.NewError(core.KindAuthentication, "invalid email or password")
	ErrPendingApproval = core.NewError(core.KindPendingApproval, "your account is awaiting approval")
	ErrAccountRejected = core.NewError(core.KindAccountRejected, "your registration was not approved")
	ErrForbidden       = core.NewError(core.KindAuthorization, "you do not have permission to perform this action")
	ErrSelfDemotion    = core.NewError(core.KindAuthorization, "a super admin cannot remove their own super admin role")

	errInvalidResetLink = errors.New("invalid or expired password reset link")

	// compared against when the email is unknown, so both failures cost one bcrypt comparison
	dummyHash, _ = bcrypt.GenerateFromPassword([]byte("jumuiya-dummy-password"), bcrypt.DefaultCost)
)

const dateLayout = "2006-01-02"

type (
	Repository interface {
		// CheckUniqueness returns ErrEmailExists or ErrMatricExists when another account
		// (not in excludedIDs) already uses email or matric, case-insensitively.
		CheckUniqueness(ctx context.Context, email, matric string, excludedIDs ...string) error
		// CreateAccount also reports ErrEmailExists / ErrMatricExists on a concurrent duplicate.
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter) (Account, error)
		// QueryAccounts applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on names, email or matric number.
		QueryAccounts(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Account, error)
		// The writes below only touch their own columns and return the stored account,
		// so concurrent changes to other columns are never reverted.

		// UpdateProfile writes the profile fields of acc and its completion; PasswordHash
		// is written only when non-nil.
		UpdateProfile(ctx context.Context, acc Account) (Account, error)
		SetApprovalStatus(ctx context.Context, id, status string, at time.Time) (Account, error)
		SetRole(ctx context.Context, id, role string, at time.Time) (Account, error)
		SetPasswordHash(ctx context.Context, id string, hash []byte, at time.Time) error
		SetLastLogin(ctx context.Context, id string, at time.Time) error
	}

	Service interface {
		Register(ctx context.Context, na NewAccount) (Account, error)
		// CreateApproved creates an already approved account with the given role (admin tooling).
		CreateApproved(ctx context.Context, na NewAccount, role string) (Account, error)
		Authenticate(ctx context.Context, email, pwd string) (Account, error)
		GetByID(ctx context.Context, id string) (Account, error)
		GetByEmail(ctx context.Context, email string) (Account, error)
		Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Account, error)
		UpdateProfile(ctx context.Context, id string, up UpdateProfile) (Account, error)
		SetApproval(ctx context.Context, actor Actor, id, status string) (Account, error)
		SetRole(ctx context.Context, actor Actor, id, role string) (Account, error)
		SetPassword(ctx context.Context, email, pwd string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetPassword) error
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		validate *validator.Validate
		tokenGen *resetTokenGenerator
	}
)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService, validate *validator.Validate) Service {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		validate: validate,
		tokenGen: newResetTokenGenerator(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
	}
}

func (svc *service) checkUniqueness(ctx context.Context, email, matric string, excludedIDs ...string) error {
	err := svc.repo.CheckUniqueness(ctx, email, matric, excludedIDs...)
	return uniquenessError(err)
}

func uniquenessError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmailExists):
		return core.NewConflictError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	case errors.Is(err, ErrMatricExists):
		return core.NewConflictError(ErrMatricExists, core.FieldError{Field: "matricNumber", Error: ErrMatricExists.Error()})
	default:
		return core.NewDependencyError("account.uniqueness", err)
	}
}

// newAccount validates na and stores it; an empty role means the normalised na.AccountType.
func (svc *service) newAccount(ctx context.Context, na NewAccount, role, status string) (Account, error) {
	if err := na.Validate(svc.validate); err != nil {
		return Account{}, err
	}
	if role == "" {
		role = na.AccountType
	}
	if err := svc.checkUniqueness(ctx, na.Email, na.MatricNumber); err != nil {
		return Account{}, err
	}

	now := core.NowFunc()
	acc := Account{
		ID:             uuid.NewString(),
		Email:          na.Email,
		MatricNumber:   na.MatricNumber,
		FirstName:      na.FirstName,
		LastName:       na.LastName,
		OtherName:      na.OtherName,
		Gender:         na.Gender,
		Phone:          na.Phone,
		Level:          na.Level,
		Address:        na.Address,
		Role:           role,
		ApprovalStatus: status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if na.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, na.DateOfBirth)
		if err != nil {
			return Account{}, core.NewValidationError(err, core.FieldError{Field: "dateOfBirth", Error: "invalid date"})
		}
		acc.DateOfBirth = &dob
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, err
	}
	acc.ProfileCompletion = acc.computeProfileCompletion()

	acc, err := svc.repo.CreateAccount(ctx, acc)
	if err != nil {
		return Account{}, uniquenessError(err)
	}
	return acc, nil
}

func (svc *service) Register(ctx context.Context, na NewAccount) (Account, error) {
	acc, err := svc.newAccount(ctx, na, "", StatusPending)
	if err != nil {
		return Account{}, err
	}
	svc.sendMail(acc, "Registration received", "registration_received", map[string]string{"Name": acc.Name()})
	return acc, nil
}

func (svc *service) CreateApproved(ctx context.Context, na NewAccount, role string) (Account, error) {
	if !core.ContainsString(AllRoles, role) {
		return Account{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role"})
	}
	if na.AccountType == "" && role != RoleStudent {
		na.AccountType = RoleAlumnus // level is only mandatory for students
	}
	return svc.newAccount(ctx, na, role, StatusApproved)
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (Account, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(pwd))
			return Account{}, ErrBadCredentials
		}
		return Account{}, err
	}
	if err = acc.CheckPassword(pwd); err != nil {
		return Account{}, ErrBadCredentials
	}

	switch acc.ApprovalStatus {
	case StatusPending:
		return Account{}, ErrPendingApproval
	case StatusRejected:
		return Account{}, ErrAccountRejected
	}

	now := core.NowFunc()
	if err = svc.repo.SetLastLogin(ctx, acc.ID, now); err != nil {
		return Account{}, core.NewDependencyError("account.last_login", err)
	}
	acc.LastLogin = now
	return acc, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (Account, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return Account{}, ErrNotFound
	}
	return svc.repo.GetAccount(ctx, GetFilter{Email: email})
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Account, error) {
	filter.Clean()
	return svc.repo.QueryAccounts(ctx, filter, core.FilterOrderings(ordering, OrderingFields)...)
}

func (svc *service) UpdateProfile(ctx context.Context, id string, up UpdateProfile) (Account, error) {
	acc, err := svc.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if err = up.Validate(acc, svc.validate); err != nil {
		return Account{}, err
	}

	if err = up.apply(&acc); err != nil {
		return Account{}, err
	}
	acc.PasswordHash = nil
	if up.Password != "" {
		if err = acc.SetPassword(up.Password); err != nil {
			return Account{}, err
		}
	}
	acc.ProfileCompletion = acc.computeProfileCompletion()
	acc.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateProfile(ctx, acc)
}

// SetApproval moves an account out of (or, for super admins, between) approval states.
// Deciding a pending account requires an elevated role; revising a decided one requires super_admin.
func (svc *service) SetApproval(ctx context.Context, actor Actor, id, status string) (Account, error) {
	if !actor.IsElevated() {
		return Account{}, ErrForbidden
	}
	status = core.CleanString(status, true /* lower */)
	if status != StatusApproved && status != StatusRejected && !(status == StatusPending && actor.IsSuperAdmin()) {
		return Account{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "status must be one of approved, rejected"})
	}

	acc, err := svc.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acc.ApprovalStatus == status {
		return acc, nil
	}
	if acc.ApprovalStatus != StatusPending && !actor.IsSuperAdmin() {
		return Account{}, ErrForbidden
	}

	if acc, err = svc.repo.SetApprovalStatus(ctx, id, status, core.NowFunc()); err != nil {
		return Account{}, err
	}
	if status != StatusPending {
		svc.sendMail(acc, "Your registration was "+status, "account_approval",
			map[string]string{"Name": acc.Name(), "Status": status})
	}
	return acc, nil
}

func (svc *service) SetRole(ctx context.Context, actor Actor, id, role string) (Account, error) {
	if !actor.IsSuperAdmin() {
		return Account{}, ErrForbidden
	}
	role = core.CleanString(role, true /* lower */)
	if !core.ContainsString(AllRoles, role) {
		return Account{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role"})
	}
	if actor.ID == id && role != RoleSuperAdmin {
		return Account{}, ErrSelfDemotion
	}

	acc, err := svc.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if acc.Role == role {
		return acc, nil
	}

	if acc, err = svc.repo.SetRole(ctx, id, role, core.NowFunc()); err != nil {
		return Account{}, err
	}
	svc.sendMail(acc, "Your role has changed", "role_changed", map[string]string{"Name": acc.Name(), "Role": role})
	return acc, nil
}

func (svc *service) SetPassword(ctx context.Context, email, pwd string) error {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	up := UpdateProfile{Password: pwd, PasswordConfirm: pwd}
	if err = up.Validate(acc, svc.validate); err != nil {
		return err
	}
	if err = acc.SetPassword(pwd); err != nil {
		return err
	}
	return svc.repo.SetPasswordHash(ctx, acc.ID, acc.PasswordHash, core.NowFunc())
}

// RequestPasswordReset emails a reset link. Unknown emails are silently ignored.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	svc.sendMail(acc, "Password Reset", "password_reset", map[string]string{
		"Name":  acc.Name(),
		"UID":   EncodeUID(acc),
		"Token": svc.tokenGen.makeToken(acc),
	})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	if err := rp.Validate(svc.validate); err != nil {
		return err
	}
	invalidLink := core.NewValidationError(errInvalidResetLink,
		core.FieldError{Field: "token", Error: errInvalidResetLink.Error()})

	id, err := decodeUID(rp.UID)
	if err != nil {
		return invalidLink
	}
	acc, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidLink
		}
		return err
	}
	if err = svc.tokenGen.verifyToken(acc, rp.Token); err != nil {
		return invalidLink
	}

	if err = acc.SetPassword(rp.Password); err != nil {
		return err
	}
	return svc.repo.SetPasswordHash(ctx, acc.ID, acc.PasswordHash, core.NowFunc())
}

func (svc *service) sendMail(acc Account, subject, tmpl string, data interface{}) {
	if svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acc.Name(), Address: acc.Email}},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: data,
	})
}
