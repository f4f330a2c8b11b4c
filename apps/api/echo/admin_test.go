package echoapi_test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/engagement"
	"github.com/socportal/jumuiya/core/event"
	"github.com/socportal/jumuiya/core/resource"
	"github.com/socportal/jumuiya/core/stats"
)

func Test_eventApi(t *testing.T) {
	app := newTestApp(t)
	student, admin, _ := app.accounts(t)
	other := app.CreateAccount(t, "other@x.edu", "Other", "Student", "student")
	studentToken := app.Token(t, student)
	otherToken := app.Token(t, other)
	adminToken := app.Token(t, admin)

	rec := app.request(t, http.MethodPost, "/events", adminToken, event.EventInput{
		Title:    "Career fair",
		StartsAt: time.Now().UTC().Add(48 * time.Hour),
		Capacity: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	var fair event.Event
	decode(t, rec, &fair)
	past := app.CreateEvent(t, admin, "Orientation", 0, -48*time.Hour)

	app.run(t, []httpTest{
		{name: "create requires elevated role", method: http.MethodPost, path: "/events", token: studentToken, body: event.EventInput{Title: "T", StartsAt: time.Now()}, wantCode: http.StatusForbidden},
		{name: "create validates", method: http.MethodPost, path: "/events", token: adminToken, body: event.EventInput{StartsAt: time.Now()}, wantCode: http.StatusBadRequest},
		{name: "registration requires session", method: http.MethodPost, path: "/events/" + fair.ID + "/registration", wantCode: http.StatusUnauthorized},
		{name: "unknown event", method: http.MethodPost, path: "/events/nope/registration", token: studentToken, wantCode: http.StatusNotFound},
		{name: "ended event", method: http.MethodPost, path: "/events/" + past.ID + "/registration", token: studentToken, wantCode: http.StatusBadRequest, wantKind: core.KindValidation},
		{name: "register", method: http.MethodPost, path: "/events/" + fair.ID + "/registration", token: studentToken, wantCode: http.StatusOK},
		{name: "register again", method: http.MethodPost, path: "/events/" + fair.ID + "/registration", token: studentToken, wantCode: http.StatusOK},
		{name: "full", method: http.MethodPost, path: "/events/" + fair.ID + "/registration", token: otherToken, wantCode: http.StatusConflict, wantKind: core.KindEventFull},
	})

	rec = app.request(t, http.MethodGet, "/events/"+fair.ID, studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got event.Event
	decode(t, rec, &got)
	assert.Equal(t, 1, got.Registered)
	assert.True(t, got.IsRegistered)

	rec = app.request(t, http.MethodDelete, "/events/"+fair.ID+"/registration", studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got = event.Event{}
	decode(t, rec, &got)
	assert.Equal(t, 0, got.Registered)
	assert.False(t, got.IsRegistered)

	// the freed seat can be taken
	rec = app.request(t, http.MethodPost, "/events/"+fair.ID+"/registration", otherToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = app.request(t, http.MethodDelete, "/events/"+past.ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func Test_resourceApi(t *testing.T) {
	app := newTestApp(t)
	student, admin, _ := app.accounts(t)
	other := app.CreateAccount(t, "other@x.edu", "Other", "Student", "student")
	studentToken := app.Token(t, student)
	otherToken := app.Token(t, other)
	adminToken := app.Token(t, admin)

	rec := app.request(t, http.MethodPost, "/resources", studentToken, resource.NewResource{
		Title:       "Compilers notes",
		Course:      "csc 401",
		FileName:    "notes.pdf",
		ContentType: "application/pdf",
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	var upload resource.Upload
	decode(t, rec, &upload)
	assert.Equal(t, "CSC 401", upload.Resource.Course)
	assert.True(t, strings.HasPrefix(upload.UploadURL, "http://files.test/"), upload.UploadURL)
	id := upload.Resource.ID

	app.run(t, []httpTest{
		{name: "requires session", path: "/resources", wantCode: http.StatusUnauthorized},
		{name: "create validates", method: http.MethodPost, path: "/resources", token: studentToken, body: resource.NewResource{Title: "T"}, wantCode: http.StatusBadRequest},
		{name: "list", path: "/resources?course=CSC%20401", token: otherToken, wantCode: http.StatusOK},
		{name: "unknown", path: "/resources/nope", token: studentToken, wantCode: http.StatusNotFound},
		{name: "update requires ownership", method: http.MethodPut, path: "/resources/" + id, token: otherToken, body: resource.UpdateResource{Title: "Mine"}, wantCode: http.StatusForbidden},
		{name: "owner updates", method: http.MethodPut, path: "/resources/" + id, token: studentToken, body: resource.UpdateResource{Title: "Compilers, part 1"}, wantCode: http.StatusOK},
	})

	for i := 1; i <= 2; i++ {
		rec = app.request(t, http.MethodGet, "/resources/"+id+"/download", otherToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
		var dl resource.Download
		decode(t, rec, &dl)
		assert.Equal(t, i, dl.Downloads)
		assert.NotEmpty(t, dl.URL)
	}

	rec = app.request(t, http.MethodDelete, "/resources/"+id, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = app.request(t, http.MethodDelete, "/resources/"+id, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.request(t, http.MethodGet, "/resources/"+id, studentToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_adminApi(t *testing.T) {
	app := newTestApp(t)
	student, admin, super := app.accounts(t)
	studentToken := app.Token(t, student)
	adminToken := app.Token(t, admin)
	superToken := app.Token(t, super)

	post := app.CreatePost(t, student, "Lab tips")
	rec := app.request(t, http.MethodPut, "/admin/blogs/"+post.ID+"/moderation", adminToken, map[string]string{"status": "published"})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	rec = app.request(t, http.MethodPost, "/blogs/"+post.ID+"/like", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	app.run(t, []httpTest{
		{name: "leaderboard is public", path: "/leaderboard", wantCode: http.StatusOK},
		{name: "leaderboard bad limit", path: "/leaderboard?limit=abc", wantCode: http.StatusBadRequest, wantKind: core.KindValidation},
		{name: "stats require session", path: "/admin/stats", wantCode: http.StatusUnauthorized},
		{name: "stats require elevated role", path: "/admin/stats", token: studentToken, wantCode: http.StatusForbidden},
		{name: "reconcile requires super admin", method: http.MethodPost, path: "/admin/engagement/reconcile", token: adminToken, wantCode: http.StatusForbidden},
	})

	rec = app.request(t, http.MethodGet, "/leaderboard?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board []stats.LeaderboardEntry
	decode(t, rec, &board)
	require.Len(t, board, 1)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, student.ID, board[0].AccountID)
	assert.Equal(t, stats.PointsPerPost+stats.PointsPerLikeReceived, board[0].Points)

	rec = app.request(t, http.MethodGet, "/admin/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dash stats.Dashboard
	decode(t, rec, &dash)
	assert.Equal(t, 3, dash.Accounts.Approved)
	assert.Equal(t, 1, dash.Posts)
	assert.Equal(t, 1, dash.Likes)

	rec = app.request(t, http.MethodPost, "/admin/engagement/reconcile", superToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report engagement.Report
	decode(t, rec, &report)
	assert.Empty(t, report.Drifts)
	assert.Equal(t, 0, report.Repaired)
}

func Test_serverEndpoints(t *testing.T) {
	app := newTestApp(t)

	rec := app.request(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	decode(t, rec, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, app.Conf.AppName, health["app"])

	rec = app.request(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, core.KindNotFound, decodeError(t, rec).Kind)

	rec = app.request(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="/",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
