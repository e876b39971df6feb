package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog/log"
)

const maxPayloadBytes = 25 << 20

// Reviewer reacts to pull request activity.
type Reviewer interface {
	OnReviewComment(ctx context.Context, ev *gh.IssueCommentEvent) error
	OnReviewEvent(ctx context.Context, ev *gh.PullRequestEvent) error
}

// Router serves POST /github/webhook.
type Router struct {
	verifier           *Verifier
	reviewer           Reviewer
	handlePullRequests bool
}

// NewRouter returns a Router. pull_request events are only acted on when
// handlePullRequests is set.
func NewRouter(verifier *Verifier, reviewer Reviewer, handlePullRequests bool) *Router {
	return &Router{verifier: verifier, reviewer: reviewer, handlePullRequests: handlePullRequests}
}

type response struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, response{Message: "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "failed to read body"})
		return
	}

	event := r.Header.Get(gh.EventTypeHeader)
	logger := log.With().Str("component", "webhook").Str("event", event).
		Str("delivery", r.Header.Get(gh.DeliveryIDHeader)).Logger()

	if err := rt.verifier.Verify(body, r.Header.Get(gh.SHA256SignatureHeader)); err != nil {
		logger.Warn().Err(err).Msg("rejected webhook")
		writeJSON(w, http.StatusUnauthorized, response{Message: err.Error()})
		return
	}

	msg, err := rt.route(r.Context(), event, body)
	if err != nil {
		logger.Error().Err(err).Msg("webhook handling failed")
		writeJSON(w, http.StatusInternalServerError, response{Message: err.Error()})
		return
	}
	logger.Info().Msg(msg)
	writeJSON(w, http.StatusOK, response{Message: msg})
}

func (rt *Router) route(ctx context.Context, event string, body []byte) (string, error) {
	ignored := fmt.Sprintf("Event type %s ignored", event)

	switch {
	case event == "issue_comment":
		payload, err := gh.ParseWebHook(event, body)
		if err != nil {
			return "", fmt.Errorf("invalid issue_comment payload: %w", err)
		}
		ev := payload.(*gh.IssueCommentEvent)
		if !ev.GetIssue().IsPullRequest() {
			return ignored, nil
		}
		if err := rt.reviewer.OnReviewComment(ctx, ev); err != nil {
			return "", err
		}
		return "PR comment processed", nil

	case event == "pull_request" && rt.handlePullRequests:
		payload, err := gh.ParseWebHook(event, body)
		if err != nil {
			return "", fmt.Errorf("invalid pull_request payload: %w", err)
		}
		if err := rt.reviewer.OnReviewEvent(ctx, payload.(*gh.PullRequestEvent)); err != nil {
			return "", err
		}
		return "PR event processed", nil
	}
	return ignored, nil
}

// Health serves GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
