package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/socportal/jumuiya/apps/api/echo"
	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/testutil"
)

func registration(email, matric string) map[string]string {
	return map[string]string{
		"email":           email,
		"password":        testutil.Password,
		"passwordConfirm": testutil.Password,
		"firstName":       "Alice",
		"lastName":        "Wanjiru",
		"matricNumber":    matric,
		"level":           "200",
	}
}

func Test_accountApi_register(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(t, http.MethodPost, "/register", "", registration("alice@x.edu", "soc/21/001"))
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "password")

	var acc account.Account
	decode(t, rec, &acc)
	assert.Equal(t, account.StatusPending, acc.ApprovalStatus)
	assert.Equal(t, account.RoleStudent, acc.Role)

	missingLevel := registration("nolevel@x.edu", "")
	delete(missingLevel, "level")

	// role and approval fields in the body are ignored
	sneaky := registration("sneaky@x.edu", "")
	sneaky["role"] = account.RoleSuperAdmin
	sneaky["approvalStatus"] = account.StatusApproved

	app.run(t, []httpTest{
		{
			name: "duplicate email", method: http.MethodPost, path: "/register",
			body: registration("ALICE@x.edu", "soc/21/002"), wantCode: http.StatusConflict, wantKind: core.KindConflict,
		},
		{
			name: "foreign matric", method: http.MethodPost, path: "/register",
			body: registration("bob@x.edu", "ABC/ARTS/2021"), wantCode: http.StatusBadRequest, wantKind: core.KindValidation,
		},
		{
			name: "missing level", method: http.MethodPost, path: "/register",
			body: missingLevel, wantCode: http.StatusBadRequest, wantKind: core.KindValidation,
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/register",
			body: `{"email": 42`, wantCode: http.StatusBadRequest, wantKind: core.KindValidation,
		},
		{name: "ignores privileged fields", method: http.MethodPost, path: "/register", body: sneaky, wantCode: http.StatusCreated},
	})

	got, err := app.Accounts.GetByEmail(context.Background(), "sneaky@x.edu")
	require.NoError(t, err)
	assert.Equal(t, account.RoleStudent, got.Role)
	assert.Equal(t, account.StatusPending, got.ApprovalStatus)

	rec = app.request(t, http.MethodPost, "/register", "", missingLevel)
	errRes := decodeError(t, rec)
	assert.Equal(t, "level is required for students", errRes.Fields["level"])
}

func Test_accountApi_login(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	approved := app.CreateAccount(t, "approved@x.edu", "Imani", "Bello", account.RoleStudent)
	_, err := app.Accounts.Register(ctx, account.NewAccount{
		Email: "pending@x.edu", Password: testutil.Password, PasswordConfirm: testutil.Password,
		FirstName: "Kofi", LastName: "Asante", Level: "100",
	})
	require.NoError(t, err)

	login := func(email, pwd string) echoapi.LoginRequest { return echoapi.LoginRequest{Email: email, Password: pwd} }

	app.run(t, []httpTest{
		{
			name: "pending account", method: http.MethodPost, path: "/login",
			body: login("pending@x.edu", testutil.Password), wantCode: http.StatusForbidden, wantKind: core.KindPendingApproval,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/login",
			body: login(approved.Email, "Wrong-Passw0rd"), wantCode: http.StatusUnauthorized, wantKind: core.KindAuthentication,
		},
	})

	// wrong password and unknown email are indistinguishable
	wrongPwd := decodeError(t, app.request(t, http.MethodPost, "/login", "", login(approved.Email, "Wrong-Passw0rd")))
	unknown := decodeError(t, app.request(t, http.MethodPost, "/login", "", login("ghost@x.edu", "Wrong-Passw0rd")))
	assert.Equal(t, wrongPwd, unknown)

	t.Run("cookie over plain http", func(t *testing.T) {
		rec := app.request(t, http.MethodPost, "/login", "", login(approved.Email, testutil.Password))
		require.Equal(t, http.StatusOK, rec.Code)

		var res echoapi.LoginResponse
		decode(t, rec, &res)
		assert.Equal(t, approved.ID, res.Account.ID)
		assert.NotEmpty(t, res.Token)
		assert.NotContains(t, strings.ToLower(rec.Body.String()), "passwordhash")

		cookie := sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.Equal(t, res.Token, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.False(t, cookie.Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		assert.Equal(t, "/", cookie.Path)
		assert.Equal(t, 7*24*60*60, cookie.MaxAge)
	})

	t.Run("cookie over tls", func(t *testing.T) {
		rec := app.request(t, http.MethodPost, "/login", "", login(approved.Email, testutil.Password), func(req *http.Request) {
			req.Header.Set("X-Forwarded-Proto", "https")
		})
		require.Equal(t, http.StatusOK, rec.Code)
		cookie := sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.True(t, cookie.Secure)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	})
}

func Test_accountApi_session(t *testing.T) {
	app := newTestApp(t)
	student, _, _ := app.accounts(t)
	token := app.login(t, student.Email)

	app.run(t, []httpTest{
		{name: "no session", path: "/user", wantCode: http.StatusUnauthorized, wantKind: core.KindAuthentication},
		{name: "garbage token", path: "/user", token: "garbage", wantCode: http.StatusUnauthorized, wantKind: core.KindAuthentication},
		{name: "bearer token", path: "/user", token: token, wantCode: http.StatusOK},
	})

	t.Run("cookie session", func(t *testing.T) {
		rec := app.request(t, http.MethodGet, "/user", "", nil, func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "session", Value: token})
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var acc account.Account
		decode(t, rec, &acc)
		assert.Equal(t, student.ID, acc.ID)
	})

	t.Run("reset tokens are not sessions", func(t *testing.T) {
		require.NoError(t, app.Accounts.RequestPasswordReset(context.Background(), student.Email))
		msg, ok := app.Mail.Last(student.Email)
		require.True(t, ok)
		resetToken := msg.TemplateData.(map[string]string)["Token"]

		rec := app.request(t, http.MethodGet, "/user", resetToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("logout revokes the session", func(t *testing.T) {
		other := app.login(t, student.Email)

		rec := app.request(t, http.MethodPost, "/logout", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		cookie := sessionCookie(rec)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.Less(t, cookie.MaxAge, 0)

		rec = app.request(t, http.MethodGet, "/user", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = app.request(t, http.MethodGet, "/user", other, nil)
		assert.Equal(t, http.StatusOK, rec.Code, "other sessions stay valid")
	})

	t.Run("logout without session", func(t *testing.T) {
		rec := app.request(t, http.MethodPost, "/logout", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("revocation store down", func(t *testing.T) {
		fresh := app.login(t, student.Email)
		app.redis.SetError("server unavailable")
		defer app.redis.SetError("")

		rec := app.request(t, http.MethodGet, "/user", fresh, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, core.KindDependency, decodeError(t, rec).Kind)
	})
}

func Test_accountApi_profile(t *testing.T) {
	app := newTestApp(t)
	student, _, _ := app.accounts(t)
	token := app.login(t, student.Email)

	rec := app.request(t, http.MethodPut, "/profile", token, map[string]string{
		"bio":            "Backend engineer in training",
		"role":           account.RoleSuperAdmin,
		"approvalStatus": account.StatusRejected,
		"email":          "hijack@x.edu",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var acc account.Account
	decode(t, rec, &acc)
	assert.Equal(t, "Backend engineer in training", acc.Bio)
	assert.Equal(t, account.RoleStudent, acc.Role)
	assert.Equal(t, account.StatusApproved, acc.ApprovalStatus)
	assert.Equal(t, student.Email, acc.Email)

	// absent and null keep the bio
	for _, body := range []map[string]interface{}{{"phone": "+254700000000"}, {"bio": nil}} {
		rec = app.request(t, http.MethodPut, "/profile", token, body)
		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
		acc = account.Account{}
		decode(t, rec, &acc)
		assert.Equal(t, "Backend engineer in training", acc.Bio)
	}

	rec = app.request(t, http.MethodPut, "/profile", token, map[string]interface{}{"bio": ""})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	acc = account.Account{}
	decode(t, rec, &acc)
	assert.Empty(t, acc.Bio)
	assert.Equal(t, "+254700000000", acc.Phone)

	rec = app.request(t, http.MethodPut, "/profile", token, map[string]string{"level": "999"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_accountApi_passwordReset(t *testing.T) {
	app := newTestApp(t)
	student, _, _ := app.accounts(t)
	const newPwd = "Silver-Lantern-77"

	for _, email := range []string{"ghost@x.edu", student.Email} {
		rec := app.request(t, http.MethodPost, "/forgot-password", "", map[string]string{"email": email})
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	require.Len(t, app.Mail.Sent(), 1)
	data := app.Mail.Sent()[0].TemplateData.(map[string]string)

	reset := map[string]string{"uid": data["UID"], "token": data["Token"], "password": newPwd, "passwordConfirm": newPwd}
	rec := app.request(t, http.MethodPost, "/reset-password", "", reset)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = app.request(t, http.MethodPost, "/reset-password", "", reset)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "token")

	rec = app.request(t, http.MethodPost, "/login", "", echoapi.LoginRequest{Email: student.Email, Password: newPwd})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_accountApi_admin(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	student, admin, super := app.accounts(t)

	pending, err := app.Accounts.Register(ctx, account.NewAccount{
		Email: "pending@x.edu", Password: testutil.Password, PasswordConfirm: testutil.Password,
		FirstName: "Kofi", LastName: "Asante", Level: "100",
	})
	require.NoError(t, err)

	studentToken := app.Token(t, student)
	adminToken := app.Token(t, admin)
	superToken := app.Token(t, super)
	approvalPath := "/admin/users/" + pending.ID + "/approval"

	app.run(t, []httpTest{
		{name: "list requires session", path: "/admin/users", wantCode: http.StatusUnauthorized},
		{name: "list requires elevated role", path: "/admin/users", token: studentToken, wantCode: http.StatusForbidden, wantKind: core.KindAuthorization},
		{
			name: "student cannot approve", method: http.MethodPut, path: approvalPath, token: studentToken,
			body: echoapi.ApprovalRequest{Status: account.StatusApproved}, wantCode: http.StatusForbidden, wantKind: core.KindAuthorization,
		},
		{
			name: "invalid status", method: http.MethodPut, path: approvalPath, token: adminToken,
			body: echoapi.ApprovalRequest{Status: "maybe"}, wantCode: http.StatusBadRequest, wantKind: core.KindValidation,
		},
		{
			name: "unknown account", method: http.MethodPut, path: "/admin/users/nope/approval", token: adminToken,
			body: echoapi.ApprovalRequest{Status: account.StatusApproved}, wantCode: http.StatusNotFound, wantKind: core.KindNotFound,
		},
		{
			name: "admin cannot assign roles", method: http.MethodPut, path: "/admin/users/" + student.ID + "/role", token: adminToken,
			body: echoapi.RoleRequest{Role: account.RoleAdmin}, wantCode: http.StatusForbidden,
		},
		{
			name: "super admin self demotion", method: http.MethodPut, path: "/admin/users/" + super.ID + "/role", token: superToken,
			body: echoapi.RoleRequest{Role: account.RoleStudent}, wantCode: http.StatusForbidden,
		},
	})

	got, err := app.Accounts.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StatusPending, got.ApprovalStatus, "rejected attempts leave the status unchanged")

	rec := app.request(t, http.MethodGet, "/admin/users?status=pending", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var accs []account.Account
	decode(t, rec, &accs)
	require.Len(t, accs, 1)
	assert.Equal(t, pending.ID, accs[0].ID)
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "passwordhash")

	rec = app.request(t, http.MethodPut, approvalPath, adminToken, echoapi.ApprovalRequest{Status: account.StatusApproved})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	msg, ok := app.Mail.Last(pending.Email)
	require.True(t, ok)
	assert.Equal(t, "account_approval", msg.TemplateName)

	rec = app.request(t, http.MethodPut, "/admin/users/"+student.ID+"/role", superToken, echoapi.RoleRequest{Role: account.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	var promoted account.Account
	decode(t, rec, &promoted)
	assert.Equal(t, account.RoleAdmin, promoted.Role)
}
