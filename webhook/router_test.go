package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gh "github.com/google/go-github/v60/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReviewer struct {
	comments []*gh.IssueCommentEvent
	events   []*gh.PullRequestEvent
	err      error
}

func (f *fakeReviewer) OnReviewComment(_ context.Context, ev *gh.IssueCommentEvent) error {
	f.comments = append(f.comments, ev)
	return f.err
}

func (f *fakeReviewer) OnReviewEvent(_ context.Context, ev *gh.PullRequestEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

const (
	prComment = `{"action":"created","issue":{"number":7,"pull_request":{"url":"https://api.github.com/repos/acme/api/pulls/7"}},
		"comment":{"body":"/devx review"},"repository":{"full_name":"acme/api"},"installation":{"id":42}}`
	issueComment = `{"action":"created","issue":{"number":8},"comment":{"body":"/devx review"},"repository":{"full_name":"acme/api"}}`
	prOpened     = `{"action":"opened","number":7,"pull_request":{"number":7,"body":"OPS-1"},"repository":{"full_name":"acme/api"}}`
)

func post(t *testing.T, h http.Handler, secret, event, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/github/webhook", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "d-1")
	if secret != "" {
		req.Header.Set("X-Hub-Signature-256", Sign(secret, []byte(body)))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterPRComment(t *testing.T) {
	rev := &fakeReviewer{}
	rt := NewRouter(NewVerifier("s3cr3t"), rev, false)

	rec := post(t, rt, "s3cr3t", "issue_comment", prComment)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"PR comment processed"}`, rec.Body.String())
	require.Len(t, rev.comments, 1)
	assert.Equal(t, 7, rev.comments[0].GetIssue().GetNumber())
	assert.EqualValues(t, 42, rev.comments[0].GetInstallation().GetID())
}

func TestRouterIgnoresOtherEvents(t *testing.T) {
	rev := &fakeReviewer{}
	rt := NewRouter(NewVerifier(""), rev, false)

	rec := post(t, rt, "", "issue_comment", issueComment)
	assert.JSONEq(t, `{"message":"Event type issue_comment ignored"}`, rec.Body.String())

	rec = post(t, rt, "", "push", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Event type push ignored"}`, rec.Body.String())

	rec = post(t, rt, "", "pull_request", prOpened)
	assert.JSONEq(t, `{"message":"Event type pull_request ignored"}`, rec.Body.String())

	assert.Empty(t, rev.comments)
	assert.Empty(t, rev.events)
}

func TestRouterPullRequestEvents(t *testing.T) {
	rev := &fakeReviewer{}
	rt := NewRouter(NewVerifier(""), rev, true)

	rec := post(t, rt, "", "pull_request", prOpened)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"PR event processed"}`, rec.Body.String())
	require.Len(t, rev.events, 1)
	assert.Equal(t, "opened", rev.events[0].GetAction())
}

func TestRouterRejectsBadSignature(t *testing.T) {
	rev := &fakeReviewer{}
	rt := NewRouter(NewVerifier("s3cr3t"), rev, false)

	rec := post(t, rt, "wrong", "issue_comment", prComment)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid signature"}`, rec.Body.String())

	rec = post(t, rt, "", "issue_comment", prComment)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"No signature header"}`, rec.Body.String())
	assert.Empty(t, rev.comments)
}

func TestRouterHandlerFailure(t *testing.T) {
	rev := &fakeReviewer{err: errors.New("jira down")}
	rt := NewRouter(NewVerifier(""), rev, false)

	rec := post(t, rt, "", "issue_comment", prComment)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"jira down"}`, rec.Body.String())
}

func TestRouterMalformedPayload(t *testing.T) {
	rt := NewRouter(NewVerifier(""), &fakeReviewer{}, false)
	rec := post(t, rt, "", "issue_comment", `{not json`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
