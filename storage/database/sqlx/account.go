package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
)

const accountColumns = `id, email, matric_number, first_name, last_name, other_name, gender, date_of_birth,
	phone, level, address, bio, avatar_url, password_hash, role, approval_status, profile_completion,
	created_at, updated_at, last_login`

type accountRow struct {
	ID                string      `db:"id"`
	Email             string      `db:"email"`
	MatricNumber      null.String `db:"matric_number"`
	FirstName         string      `db:"first_name"`
	LastName          string      `db:"last_name"`
	OtherName         null.String `db:"other_name"`
	Gender            null.String `db:"gender"`
	DateOfBirth       null.Time   `db:"date_of_birth"`
	Phone             null.String `db:"phone"`
	Level             null.String `db:"level"`
	Address           null.String `db:"address"`
	Bio               null.String `db:"bio"`
	AvatarURL         null.String `db:"avatar_url"`
	PasswordHash      []byte      `db:"password_hash"`
	Role              string      `db:"role"`
	ApprovalStatus    string      `db:"approval_status"`
	ProfileCompletion int         `db:"profile_completion"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
	LastLogin         null.Time   `db:"last_login"`
}

type accountRepository struct {
	db *sqlx.DB
}

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &accountRepository{db: db}
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func (repo *accountRepository) boil(acc account.Account) accountRow {
	return accountRow{
		ID:                acc.ID,
		Email:             acc.Email,
		MatricNumber:      nullString(acc.MatricNumber),
		FirstName:         acc.FirstName,
		LastName:          acc.LastName,
		OtherName:         nullString(acc.OtherName),
		Gender:            nullString(acc.Gender),
		DateOfBirth:       null.TimeFromPtr(acc.DateOfBirth),
		Phone:             nullString(acc.Phone),
		Level:             nullString(acc.Level),
		Address:           nullString(acc.Address),
		Bio:               nullString(acc.Bio),
		AvatarURL:         nullString(acc.AvatarURL),
		PasswordHash:      acc.PasswordHash,
		Role:              acc.Role,
		ApprovalStatus:    acc.ApprovalStatus,
		ProfileCompletion: acc.ProfileCompletion,
		CreatedAt:         acc.CreatedAt.UTC(),
		UpdatedAt:         acc.UpdatedAt.UTC(),
		LastLogin:         null.NewTime(acc.LastLogin.UTC(), !acc.LastLogin.IsZero()),
	}
}

func (repo *accountRepository) unboil(row accountRow) account.Account {
	acc := account.Account{
		ID:                row.ID,
		Email:             row.Email,
		MatricNumber:      row.MatricNumber.String,
		FirstName:         row.FirstName,
		LastName:          row.LastName,
		OtherName:         row.OtherName.String,
		Gender:            row.Gender.String,
		Phone:             row.Phone.String,
		Level:             row.Level.String,
		Address:           row.Address.String,
		Bio:               row.Bio.String,
		AvatarURL:         row.AvatarURL.String,
		PasswordHash:      row.PasswordHash,
		Role:              row.Role,
		ApprovalStatus:    row.ApprovalStatus,
		ProfileCompletion: row.ProfileCompletion,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
		LastLogin:         row.LastLogin.Time.UTC(),
	}
	if row.DateOfBirth.Valid {
		dob := row.DateOfBirth.Time.UTC()
		acc.DateOfBirth = &dob
	}
	if !row.LastLogin.Valid {
		acc.LastLogin = time.Time{}
	}
	return acc
}

// trapUniqueErr maps unique index violations to the account uniqueness errors.
func trapUniqueErr(err error, msg string) error {
	if constraint, ok := uniqueViolationOn(err); ok {
		switch {
		case strings.Contains(constraint, "email"):
			return account.ErrEmailExists
		case strings.Contains(constraint, "matric"):
			return account.ErrMatricExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *accountRepository) CheckUniqueness(ctx context.Context, email, matric string, excludedIDs ...string) error {
	q := `SELECT LOWER(email) = LOWER($2) AS email_taken FROM accounts
		WHERE id <> ALL($1) AND (LOWER(email) = LOWER($2) OR ($3 <> '' AND LOWER(matric_number) = LOWER($3)))
		ORDER BY email_taken DESC LIMIT 1`

	var emailTaken bool
	err := repo.db.GetContext(ctx, &emailTaken, q, pq.StringArray(append([]string{}, excludedIDs...)), email, matric)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return errors.Wrap(err, "checking account uniqueness")
	case emailTaken:
		return account.ErrEmailExists
	default:
		return account.ErrMatricExists
	}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account) (account.Account, error) {
	q := `INSERT INTO accounts (` + accountColumns + `) VALUES (:id, :email, :matric_number, :first_name, :last_name,
		:other_name, :gender, :date_of_birth, :phone, :level, :address, :bio, :avatar_url, :password_hash, :role,
		:approval_status, :profile_completion, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.boil(acc)); err != nil {
		return account.Account{}, trapUniqueErr(err, "inserting account")
	}
	return acc, nil
}

func (repo *accountRepository) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	var w where
	switch {
	case filter.ID != "":
		w.add("id = ?", filter.ID)
	case filter.Email != "":
		w.add("LOWER(email) = LOWER(?)", filter.Email)
	case filter.MatricNumber != "":
		w.add("LOWER(matric_number) = LOWER(?)", filter.MatricNumber)
	default:
		return account.Account{}, account.ErrNotFound
	}

	var row accountRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts`+w.String(), w.args...); err != nil {
		return account.Account{}, trapNoRowsErr(err, account.ErrNotFound, "finding account")
	}
	return repo.unboil(row), nil
}

func (repo *accountRepository) QueryAccounts(ctx context.Context, filter account.QueryFilter, ordering ...core.DBOrdering) ([]account.Account, error) {
	var w where
	if filter.Search != "" {
		val := likePattern(filter.Search)
		w.add("(first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR matric_number ILIKE ?)", val, val, val, val)
	}
	if len(filter.Statuses) > 0 {
		w.add("approval_status = ANY(?)", pq.StringArray(filter.Statuses))
	}
	if len(filter.Roles) > 0 {
		w.add("role = ANY(?)", pq.StringArray(filter.Roles))
	}
	if len(filter.Levels) > 0 {
		w.add("level = ANY(?)", pq.StringArray(filter.Levels))
	}

	var rows []accountRow
	q := `SELECT ` + accountColumns + ` FROM accounts` + w.String() + orderBy(ordering, "created_at DESC")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying accounts")
	}
	accs := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		accs = append(accs, repo.unboil(row))
	}
	return accs, nil
}

// updateReturning runs an UPDATE ... RETURNING the account row.
func (repo *accountRepository) updateReturning(ctx context.Context, msg, q string, args ...interface{}) (account.Account, error) {
	var row accountRow
	if err := repo.db.GetContext(ctx, &row, q+` RETURNING `+accountColumns, args...); err != nil {
		return account.Account{}, trapNoRowsErr(err, account.ErrNotFound, msg)
	}
	return repo.unboil(row), nil
}

func (repo *accountRepository) UpdateProfile(ctx context.Context, acc account.Account) (account.Account, error) {
	q, args, err := sqlx.Named(`UPDATE accounts SET first_name = :first_name, last_name = :last_name,
		other_name = :other_name, gender = :gender, date_of_birth = :date_of_birth, phone = :phone,
		level = :level, address = :address, bio = :bio, avatar_url = :avatar_url,
		password_hash = COALESCE(:password_hash, password_hash),
		profile_completion = :profile_completion, updated_at = :updated_at
		WHERE id = :id`, repo.boil(acc))
	if err != nil {
		return account.Account{}, errors.Wrap(err, "binding profile update")
	}
	return repo.updateReturning(ctx, "updating profile", repo.db.Rebind(q), args...)
}

func (repo *accountRepository) SetApprovalStatus(ctx context.Context, id, status string, at time.Time) (account.Account, error) {
	q := `UPDATE accounts SET approval_status = $1, updated_at = $2 WHERE id = $3`
	return repo.updateReturning(ctx, "setting approval status", q, status, at.UTC(), id)
}

func (repo *accountRepository) SetRole(ctx context.Context, id, role string, at time.Time) (account.Account, error) {
	q := `UPDATE accounts SET role = $1, updated_at = $2 WHERE id = $3`
	return repo.updateReturning(ctx, "setting role", q, role, at.UTC(), id)
}

func (repo *accountRepository) SetPasswordHash(ctx context.Context, id string, hash []byte, at time.Time) error {
	q := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`
	_, err := repo.updateReturning(ctx, "setting password", q, hash, at.UTC(), id)
	return err
}

func (repo *accountRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := repo.db.ExecContext(ctx, `UPDATE accounts SET last_login = $1 WHERE id = $2`, at.UTC(), id); err != nil {
		return errors.Wrap(err, "setting last login")
	}
	return nil
}
