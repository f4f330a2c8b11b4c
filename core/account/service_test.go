package account_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	inmemdb "github.com/socportal/jumuiya/storage/database/inmem"
	"github.com/socportal/jumuiya/testutil"
)

func newStudent(email, matric string) account.NewAccount {
	return account.NewAccount{
		Email:           email,
		Password:        testutil.Password,
		PasswordConfirm: testutil.Password,
		FirstName:       "Amani",
		LastName:        "Okafor",
		MatricNumber:    matric,
		Level:           "200",
	}
}

func TestService_Register(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	acc, err := env.Accounts.Register(ctx, newStudent(" Amani@Example.com ", "SOC/2021/001"))
	require.NoError(t, err)
	assert.Equal(t, "amani@example.com", acc.Email)
	assert.Equal(t, "soc/2021/001", acc.MatricNumber)
	assert.Equal(t, account.RoleStudent, acc.Role)
	assert.Equal(t, account.StatusPending, acc.ApprovalStatus)
	assert.Greater(t, acc.ProfileCompletion, 0)
	assert.NotContains(t, mustJSON(t, acc), testutil.Password)

	msg, ok := env.Mail.Last("amani@example.com")
	require.True(t, ok, "registration email not sent")
	assert.Equal(t, "registration_received", msg.TemplateName)
	assert.Contains(t, msg.TextContent, "Amani Okafor")

	tests := []struct {
		name     string
		na       account.NewAccount
		wantKind core.Kind
	}{
		{name: "duplicate email (case-insensitive)", na: newStudent("AMANI@example.com", ""), wantKind: core.KindConflict},
		{name: "duplicate matric", na: newStudent("other@example.com", "soc/2021/001"), wantKind: core.KindConflict},
		{name: "matric outside the department", na: newStudent("eng@example.com", "ENG/2021/001"), wantKind: core.KindValidation},
		{name: "invalid email", na: newStudent("not-an-email", ""), wantKind: core.KindValidation},
		{
			name: "student without level",
			na: func() account.NewAccount {
				na := newStudent("nolevel@example.com", "")
				na.Level = ""
				return na
			}(),
			wantKind: core.KindValidation,
		},
		{
			name: "weak password",
			na: func() account.NewAccount {
				na := newStudent("weak@example.com", "")
				na.Password, na.PasswordConfirm = "12345678", "12345678"
				return na
			}(),
			wantKind: core.KindValidation,
		},
		{
			name: "password confirmation mismatch",
			na: func() account.NewAccount {
				na := newStudent("mismatch@example.com", "")
				na.PasswordConfirm = "Another-Passw0rd"
				return na
			}(),
			wantKind: core.KindValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Accounts.Register(ctx, tt.na)
			assert.Equal(t, tt.wantKind, core.KindOf(err), "err = %v", err)
		})
	}

	t.Run("alumnus needs no level", func(t *testing.T) {
		na := newStudent("alumna@example.com", "")
		na.Level = ""
		na.AccountType = account.RoleAlumnus
		acc, err := env.Accounts.Register(ctx, na)
		require.NoError(t, err)
		assert.Equal(t, account.RoleAlumnus, acc.Role)
	})
}

func TestService_Authenticate(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	approved := env.CreateAccount(t, "approved@example.com", "Imani", "Bello", account.RoleStudent)

	pending, err := env.Accounts.Register(ctx, newStudent("pending@example.com", ""))
	require.NoError(t, err)

	rejected, err := env.Accounts.Register(ctx, newStudent("rejected@example.com", ""))
	require.NoError(t, err)
	admin := env.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)
	_, err = env.Accounts.SetApproval(ctx, admin.Actor(), rejected.ID, account.StatusRejected)
	require.NoError(t, err)

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "unknown email", email: "ghost@example.com", pwd: testutil.Password, wantErr: account.ErrBadCredentials},
		{name: "wrong password", email: approved.Email, pwd: "Wrong-Passw0rd", wantErr: account.ErrBadCredentials},
		{name: "wrong password on pending account", email: pending.Email, pwd: "Wrong-Passw0rd", wantErr: account.ErrBadCredentials},
		{name: "pending", email: pending.Email, pwd: testutil.Password, wantErr: account.ErrPendingApproval},
		{name: "rejected", email: rejected.Email, pwd: testutil.Password, wantErr: account.ErrAccountRejected},
		{name: "approved (email case-insensitive)", email: "APPROVED@example.com", pwd: testutil.Password},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := env.Accounts.Authenticate(ctx, tt.email, tt.pwd)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, approved.ID, acc.ID)
			assert.False(t, acc.LastLogin.IsZero())
		})
	}
}

func TestService_SetApproval(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	student := env.CreateAccount(t, "student@example.com", "Imani", "Bello", account.RoleStudent)
	admin := env.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)
	super := env.CreateAccount(t, "super@example.com", "Zuri", "Mensah", account.RoleSuperAdmin)

	register := func(email string) account.Account {
		acc, err := env.Accounts.Register(ctx, newStudent(email, ""))
		require.NoError(t, err)
		return acc
	}

	t.Run("non elevated actor", func(t *testing.T) {
		acc := register("p1@example.com")
		_, err := env.Accounts.SetApproval(ctx, student.Actor(), acc.ID, account.StatusApproved)
		assert.ErrorIs(t, err, account.ErrForbidden)
	})

	t.Run("invalid status", func(t *testing.T) {
		acc := register("p2@example.com")
		_, err := env.Accounts.SetApproval(ctx, admin.Actor(), acc.ID, "maybe")
		assert.True(t, core.Is(err, core.KindValidation))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := env.Accounts.SetApproval(ctx, admin.Actor(), "nope", account.StatusApproved)
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("admin approves a pending account", func(t *testing.T) {
		acc := register("p3@example.com")
		env.Mail.Reset()

		got, err := env.Accounts.SetApproval(ctx, admin.Actor(), acc.ID, " Approved ")
		require.NoError(t, err)
		assert.Equal(t, account.StatusApproved, got.ApprovalStatus)

		msg, ok := env.Mail.Last(acc.Email)
		require.True(t, ok)
		assert.Equal(t, "account_approval", msg.TemplateName)

		_, err = env.Accounts.Authenticate(ctx, acc.Email, testutil.Password)
		assert.NoError(t, err)

		// same status again is a no-op
		env.Mail.Reset()
		_, err = env.Accounts.SetApproval(ctx, admin.Actor(), acc.ID, account.StatusApproved)
		assert.NoError(t, err)
		assert.Empty(t, env.Mail.Sent())
	})

	t.Run("only super admins revise a decision", func(t *testing.T) {
		acc := register("p4@example.com")
		_, err := env.Accounts.SetApproval(ctx, admin.Actor(), acc.ID, account.StatusRejected)
		require.NoError(t, err)

		_, err = env.Accounts.SetApproval(ctx, admin.Actor(), acc.ID, account.StatusApproved)
		assert.ErrorIs(t, err, account.ErrForbidden)

		_, err = env.Accounts.SetApproval(ctx, admin.Actor(), acc.ID, account.StatusPending)
		assert.True(t, core.Is(err, core.KindValidation))

		got, err := env.Accounts.SetApproval(ctx, super.Actor(), acc.ID, account.StatusApproved)
		require.NoError(t, err)
		assert.Equal(t, account.StatusApproved, got.ApprovalStatus)
	})
}

func TestService_SetRole(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	student := env.CreateAccount(t, "student@example.com", "Imani", "Bello", account.RoleStudent)
	admin := env.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)
	super := env.CreateAccount(t, "super@example.com", "Zuri", "Mensah", account.RoleSuperAdmin)

	tests := []struct {
		name     string
		actor    account.Actor
		id       string
		role     string
		wantKind core.Kind
		wantRole string
	}{
		{name: "admin cannot assign roles", actor: admin.Actor(), id: student.ID, role: account.RoleAdmin, wantKind: core.KindAuthorization},
		{name: "invalid role", actor: super.Actor(), id: student.ID, role: "dean", wantKind: core.KindValidation},
		{name: "self demotion", actor: super.Actor(), id: super.ID, role: account.RoleAdmin, wantKind: core.KindAuthorization},
		{name: "unknown account", actor: super.Actor(), id: "nope", role: account.RoleAdmin, wantKind: core.KindNotFound},
		{name: "promote", actor: super.Actor(), id: student.ID, role: "ADMIN", wantRole: account.RoleAdmin},
		{name: "demote", actor: super.Actor(), id: admin.ID, role: account.RoleAlumnus, wantRole: account.RoleAlumnus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := env.Accounts.SetRole(ctx, tt.actor, tt.id, tt.role)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, core.KindOf(err), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, acc.Role)
		})
	}
}

func TestService_PasswordReset(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	acc := env.CreateAccount(t, "student@example.com", "Imani", "Bello", account.RoleStudent)
	const newPwd = "Silver-Lantern-77"

	// unknown emails are ignored
	require.NoError(t, env.Accounts.RequestPasswordReset(ctx, "ghost@example.com"))
	assert.Empty(t, env.Mail.Sent())

	require.NoError(t, env.Accounts.RequestPasswordReset(ctx, "Student@Example.com"))
	msg, ok := env.Mail.Last(acc.Email)
	require.True(t, ok)
	assert.Equal(t, "password_reset", msg.TemplateName)
	data := msg.TemplateData.(map[string]string)
	assert.Contains(t, msg.TextContent, data["Token"])

	rp := func(uid, token string) account.ResetPassword {
		return account.ResetPassword{UID: uid, Token: token, Password: newPwd, PasswordConfirm: newPwd}
	}

	err := env.Accounts.ResetPassword(ctx, rp("garbage", data["Token"]))
	assert.True(t, core.Is(err, core.KindValidation))

	err = env.Accounts.ResetPassword(ctx, rp(data["UID"], "HE4TS-forged"))
	assert.True(t, core.Is(err, core.KindValidation))

	require.NoError(t, env.Accounts.ResetPassword(ctx, rp(data["UID"], data["Token"])))

	_, err = env.Accounts.Authenticate(ctx, acc.Email, testutil.Password)
	assert.ErrorIs(t, err, account.ErrBadCredentials)
	_, err = env.Accounts.Authenticate(ctx, acc.Email, newPwd)
	assert.NoError(t, err)

	// tokens are single use
	err = env.Accounts.ResetPassword(ctx, rp(data["UID"], data["Token"]))
	assert.True(t, core.Is(err, core.KindValidation))
}

func TestService_UpdateProfile(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	acc := env.CreateAccount(t, "student@example.com", "Imani", "Bello", account.RoleStudent)

	got, err := env.Accounts.UpdateProfile(ctx, acc.ID, account.UpdateProfile{
		Bio:         null.StringFrom("Distributed systems enthusiast"),
		Phone:       null.StringFrom("+254700000000"),
		DateOfBirth: null.StringFrom("2001-04-12"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Imani", got.FirstName, "blank fields keep their value")
	assert.Equal(t, "Distributed systems enthusiast", got.Bio)
	require.NotNil(t, got.DateOfBirth)
	assert.Equal(t, 2001, got.DateOfBirth.Year())
	assert.Greater(t, got.ProfileCompletion, acc.ProfileCompletion)
	assert.Equal(t, account.RoleStudent, got.Role)

	// null leaves a field alone, "" clears it
	cleared, err := env.Accounts.UpdateProfile(ctx, acc.ID, account.UpdateProfile{
		Bio:         null.StringFrom(""),
		DateOfBirth: null.StringFrom(" "),
	})
	require.NoError(t, err)
	assert.Empty(t, cleared.Bio)
	assert.Nil(t, cleared.DateOfBirth)
	assert.Equal(t, "+254700000000", cleared.Phone)
	assert.Less(t, cleared.ProfileCompletion, got.ProfileCompletion)

	_, err = env.Accounts.UpdateProfile(ctx, acc.ID, account.UpdateProfile{Gender: null.StringFrom("robot")})
	assert.True(t, core.Is(err, core.KindValidation))

	_, err = env.Accounts.UpdateProfile(ctx, acc.ID, account.UpdateProfile{Level: "700"})
	assert.True(t, core.Is(err, core.KindValidation))

	_, err = env.Accounts.UpdateProfile(ctx, acc.ID, account.UpdateProfile{Password: "Silver-Lantern-77", PasswordConfirm: "nope"})
	assert.True(t, core.Is(err, core.KindValidation))

	_, err = env.Accounts.UpdateProfile(ctx, "nope", account.UpdateProfile{})
	assert.ErrorIs(t, err, account.ErrNotFound)
}

// interleavingRepo runs interleave once, right after the next account read.
type interleavingRepo struct {
	account.Repository
	interleave func()
}

func (repo *interleavingRepo) GetAccount(ctx context.Context, filter account.GetFilter) (account.Account, error) {
	acc, err := repo.Repository.GetAccount(ctx, filter)
	if fn := repo.interleave; fn != nil {
		repo.interleave = nil
		fn()
	}
	return acc, err
}

func TestService_UpdateProfile_keepsConcurrentChanges(t *testing.T) {
	ctx := context.Background()
	const newPwd = "Brisk-Lantern-97"

	tests := []struct {
		name   string
		during func(t *testing.T, svc account.Service, super, acc account.Account)
		check  func(t *testing.T, svc account.Service, got account.Account)
	}{
		{
			name: "approval and promotion",
			during: func(t *testing.T, svc account.Service, super, acc account.Account) {
				_, err := svc.SetApproval(ctx, super.Actor(), acc.ID, account.StatusApproved)
				require.NoError(t, err)
				_, err = svc.SetRole(ctx, super.Actor(), acc.ID, account.RoleAdmin)
				require.NoError(t, err)
			},
			check: func(t *testing.T, _ account.Service, got account.Account) {
				assert.Equal(t, account.StatusApproved, got.ApprovalStatus)
				assert.Equal(t, account.RoleAdmin, got.Role)
			},
		},
		{
			name: "password change",
			during: func(t *testing.T, svc account.Service, _, acc account.Account) {
				require.NoError(t, svc.SetPassword(ctx, acc.Email, newPwd))
			},
			check: func(t *testing.T, _ account.Service, got account.Account) {
				assert.NoError(t, got.CheckPassword(newPwd))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			validate, _ := testutil.NewValidator(conf)
			repo := &interleavingRepo{Repository: inmemdb.NewAccountRepository(inmemdb.Open())}
			svc := account.NewService(conf, repo, nil, validate)

			super, err := svc.CreateApproved(ctx, account.NewAccount{
				Email: "root@example.com", Password: testutil.Password, FirstName: "Zuri", LastName: "Mensah",
			}, account.RoleSuperAdmin)
			require.NoError(t, err)
			acc, err := svc.Register(ctx, newStudent("amani@example.com", ""))
			require.NoError(t, err)

			repo.interleave = func() { tt.during(t, svc, super, acc) }
			got, err := svc.UpdateProfile(ctx, acc.ID, account.UpdateProfile{Bio: null.StringFrom("Hello")})
			require.NoError(t, err)
			assert.Equal(t, "Hello", got.Bio)
			tt.check(t, svc, got)

			stored, err := svc.GetByID(ctx, acc.ID)
			require.NoError(t, err)
			assert.Equal(t, "Hello", stored.Bio)
			tt.check(t, svc, stored)
		})
	}
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv(t, nil)
	ctx := context.Background()

	env.CreateAccount(t, "a@example.com", "Imani", "Bello", account.RoleStudent, "300")
	env.CreateAccount(t, "b@example.com", "Baraka", "Otieno", account.RoleStudent)
	env.CreateAccount(t, "c@example.com", "Chiamaka", "Eze", account.RoleAdmin)

	accs, err := env.Accounts.Query(ctx, account.QueryFilter{Roles: []string{"Student"}})
	require.NoError(t, err)
	assert.Len(t, accs, 2)

	accs, err = env.Accounts.Query(ctx, account.QueryFilter{Levels: []string{"300"}})
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Equal(t, "a@example.com", accs[0].Email)

	accs, err = env.Accounts.Query(ctx, account.QueryFilter{Search: "eze"})
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Equal(t, account.RoleAdmin, accs[0].Role)
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
