package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/socportal/jumuiya/apps/api/echo"
	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/account"
	"github.com/socportal/jumuiya/services/metrics"
	"github.com/socportal/jumuiya/services/revocation"
	"github.com/socportal/jumuiya/testutil"
)

type testApp struct {
	*testutil.Env
	srv     *echoapi.Server
	metrics *metrics.Metrics
	redis   *miniredis.Miniredis
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := testutil.NewEnv(t, revocation.NewRedisRevoker(client))
	m := metrics.New()
	srv := echoapi.NewServer(&echoapi.Options{
		Conf:           env.Conf,
		Logger:         core.NopLogger{},
		Translator:     env.Translator,
		Metrics:        m,
		DisableReqLogs: true,
		Deps: &echoapi.Deps{
			AccountSvc:    env.Accounts,
			BlogSvc:       env.Blogs,
			EngagementSvc: env.Engagement,
			PollSvc:       env.Polls,
			EventSvc:      env.Events,
			ResourceSvc:   env.Resources,
			StatsSvc:      env.Stats,
			Sessions:      env.Sessions,
		},
	})
	return &testApp{Env: env, srv: srv, metrics: m, redis: mr}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantKind core.Kind
}

func (app *testApp) request(t *testing.T, method, path, token string, body interface{}, mutators ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, mutate := range mutators {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	app.srv.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.request(t, method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, decodeError(t, rec).Kind)
			}
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "body: %s", rec.Body.String())
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) echoapi.ErrorResponse {
	t.Helper()
	var res echoapi.ErrorResponse
	decode(t, rec, &res)
	return res
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

// login authenticates through the API and returns the issued token.
func (app *testApp) login(t *testing.T, email string) string {
	t.Helper()
	rec := app.request(t, http.MethodPost, "/login", "", echoapi.LoginRequest{Email: email, Password: testutil.Password})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	var res echoapi.LoginResponse
	decode(t, rec, &res)
	return res.Token
}

func (app *testApp) accounts(t *testing.T) (student, admin, super account.Account) {
	t.Helper()
	student = app.CreateAccount(t, "student@example.com", "Imani", "Bello", account.RoleStudent, "200")
	admin = app.CreateAccount(t, "admin@example.com", "Ada", "Eze", account.RoleAdmin)
	super = app.CreateAccount(t, "super@example.com", "Zuri", "Mensah", account.RoleSuperAdmin)
	return
}
