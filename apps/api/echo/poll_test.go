package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socportal/jumuiya/core"
	"github.com/socportal/jumuiya/core/poll"
)

func Test_pollApi(t *testing.T) {
	app := newTestApp(t)
	student, admin, _ := app.accounts(t)
	studentToken := app.Token(t, student)
	adminToken := app.Token(t, admin)

	rec := app.request(t, http.MethodPost, "/polls", adminToken, poll.NewPoll{
		Question: "Next hackathon theme?",
		Options:  []string{"Health", "Fintech"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	var open poll.Poll
	decode(t, rec, &open)
	require.Len(t, open.Options, 2)

	finalYears := app.CreatePoll(t, admin, poll.NewPoll{Question: "Project supervisor?", Options: []string{"A", "B"}, TargetLevels: []string{"400"}})
	closed := app.CreatePoll(t, admin, poll.NewPoll{Question: "Old poll?", Options: []string{"Yes", "No"}})
	rec = app.request(t, http.MethodPut, "/polls/"+closed.ID+"/close", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	vote := func(optionID string) map[string]string { return map[string]string{"optionId": optionID} }

	app.run(t, []httpTest{
		{name: "create requires elevated role", method: http.MethodPost, path: "/polls", token: studentToken, body: poll.NewPoll{Question: "Q?", Options: []string{"A", "B"}}, wantCode: http.StatusForbidden},
		{name: "create validates", method: http.MethodPost, path: "/polls", token: adminToken, body: poll.NewPoll{Question: "Q?", Options: []string{"A"}}, wantCode: http.StatusBadRequest, wantKind: core.KindValidation},
		{name: "vote requires session", method: http.MethodPost, path: "/polls/" + open.ID + "/vote", body: vote(open.Options[0].ID), wantCode: http.StatusUnauthorized},
		{name: "vote without option", method: http.MethodPost, path: "/polls/" + open.ID + "/vote", token: studentToken, body: vote(""), wantCode: http.StatusBadRequest, wantKind: core.KindValidation},
		{name: "unknown poll", method: http.MethodPost, path: "/polls/nope/vote", token: studentToken, body: vote("x"), wantCode: http.StatusNotFound, wantKind: core.KindNotFound},
		{name: "level not eligible", method: http.MethodPost, path: "/polls/" + finalYears.ID + "/vote", token: studentToken, body: vote(finalYears.Options[0].ID), wantCode: http.StatusBadRequest, wantKind: core.KindEligibility},
		{name: "closed poll", method: http.MethodPost, path: "/polls/" + closed.ID + "/vote", token: studentToken, body: vote(closed.Options[0].ID), wantCode: http.StatusBadRequest, wantKind: core.KindPollClosed},
		{name: "foreign option", method: http.MethodPost, path: "/polls/" + open.ID + "/vote", token: studentToken, body: vote(closed.Options[0].ID), wantCode: http.StatusBadRequest, wantKind: core.KindInvalidOption},
		{name: "vote", method: http.MethodPost, path: "/polls/" + open.ID + "/vote", token: studentToken, body: vote(open.Options[1].ID), wantCode: http.StatusOK},
		{name: "second vote", method: http.MethodPost, path: "/polls/" + open.ID + "/vote", token: studentToken, body: vote(open.Options[0].ID), wantCode: http.StatusBadRequest, wantKind: core.KindDuplicateVote},
		{name: "student cannot close", method: http.MethodPut, path: "/polls/" + open.ID + "/close", token: studentToken, wantCode: http.StatusForbidden},
	})

	rec = app.request(t, http.MethodGet, "/polls/"+open.ID, studentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got poll.Poll
	decode(t, rec, &got)
	assert.Equal(t, 1, got.TotalVotes)
	assert.Equal(t, 0, got.Options[0].Votes)
	assert.Equal(t, 1, got.Options[1].Votes)
	assert.Equal(t, []string{open.Options[1].ID}, got.UserVotes)

	rec = app.request(t, http.MethodGet, "/polls?status=closed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var polls []poll.Poll
	decode(t, rec, &polls)
	require.Len(t, polls, 1)
	assert.Equal(t, closed.ID, polls[0].ID)

	rec = app.request(t, http.MethodDelete, "/polls/"+open.ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = app.request(t, http.MethodGet, "/polls/"+open.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
