package github

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justmike1/devx/apperr"
	"github.com/justmike1/devx/jira"
	"github.com/justmike1/devx/refs"
)

// Host is the part of App the reviewer needs.
type Host interface {
	ListChangedFiles(ctx context.Context, repo Repo, number int) ([]PullRequestFile, error)
	RepositoryContext(ctx context.Context, repo Repo, files []PullRequestFile) (string, error)
	PostComment(ctx context.Context, repo Repo, number int, body string) error
	FindInstallation(ctx context.Context, owner, repo string) (int64, error)
}

// Composer writes reviews and analyses.
type Composer interface {
	ReviewPR(ctx context.Context, diff, repoContext string) (string, error)
	AnalyzeCode(ctx context.Context, code, instructions string) (string, error)
}

// TicketEvents links pull request activity to tickets.
type TicketEvents interface {
	HandleReviewEvent(ctx context.Context, reviewURL, action, description string) error
}

// Reviewer runs the pull request review pipeline.
type Reviewer struct {
	host     Host
	composer Composer
	tickets  TicketEvents
	trigger  string
}

// NewReviewer returns a Reviewer reacting to comments that start with trigger.
// tickets may be nil when pull_request events are not handled.
func NewReviewer(host Host, composer Composer, tickets TicketEvents, trigger string) *Reviewer {
	return &Reviewer{
		host:     host,
		composer: composer,
		tickets:  tickets,
		trigger:  strings.ToLower(strings.TrimSpace(trigger)),
	}
}

// IsTrigger reports whether a comment body asks for a review.
func (r *Reviewer) IsTrigger(body string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(body)), r.trigger)
}

// OnReviewComment reviews the pull request when the comment asks for it and
// posts the result back as a comment.
func (r *Reviewer) OnReviewComment(ctx context.Context, ev *gh.IssueCommentEvent) error {
	logger := log.With().Str("component", "reviewer").Logger()

	if !r.IsTrigger(ev.GetComment().GetBody()) {
		logger.Info().Str("repo", ev.GetRepo().GetFullName()).Msg("Ignoring non-review comment")
		return nil
	}

	repo, err := ParseFullName(ev.GetInstallation().GetID(), ev.GetRepo().GetFullName())
	if err != nil {
		return err
	}
	number := ev.GetIssue().GetNumber()
	logger = logger.With().Str("repo", repo.FullName()).Int("pr", number).Logger()
	logger.Info().Msg("review requested")

	return r.postReview(ctx, repo, number, logger)
}

// OnReviewEvent updates referenced tickets for a pull_request event and
// reviews newly opened or updated pull requests.
func (r *Reviewer) OnReviewEvent(ctx context.Context, ev *gh.PullRequestEvent) error {
	pr := ev.GetPullRequest()
	action := ev.GetAction()
	switch {
	case action == "closed" && pr.GetMerged():
		action = jira.ActionMerged
	case action == "synchronize":
		action = jira.ActionUpdated
	}

	logger := log.With().Str("component", "reviewer").Str("repo", ev.GetRepo().GetFullName()).
		Int("pr", pr.GetNumber()).Str("action", action).Logger()

	// Ticket failures do not block the review; they are reported together.
	var ticketErr error
	if r.tickets != nil {
		if ticketErr = r.tickets.HandleReviewEvent(ctx, pr.GetHTMLURL(), action, pr.GetBody()); ticketErr != nil {
			logger.Error().Err(ticketErr).Msg("failed to update tickets")
		}
	}

	if action != jira.ActionOpened && action != jira.ActionUpdated {
		return ticketErr
	}

	repo, err := ParseFullName(ev.GetInstallation().GetID(), ev.GetRepo().GetFullName())
	if err != nil {
		return errors.Join(ticketErr, err)
	}
	if err := r.postReview(ctx, repo, pr.GetNumber(), logger); err != nil {
		return errors.Join(ticketErr, err)
	}
	return ticketErr
}

// postReview reviews the pull request and comments the result on it. A pull
// request without changed files is skipped.
func (r *Reviewer) postReview(ctx context.Context, repo Repo, number int, logger zerolog.Logger) error {
	files, err := r.host.ListChangedFiles(ctx, repo, number)
	if err != nil {
		logger.Error().Err(err).Msg("review failed")
		return err
	}
	if len(files) == 0 {
		logger.Info().Msg("no changed files, review skipped")
		return nil
	}
	review, err := r.reviewFiles(ctx, repo, files)
	if err != nil {
		logger.Error().Err(err).Msg("review failed")
		return err
	}
	if err := r.host.PostComment(ctx, repo, number, review); err != nil {
		logger.Error().Err(err).Msg("failed to post review")
		return err
	}
	logger.Info().Msg("review posted")
	return nil
}

// Review reviews the linked pull request and returns the text without
// posting it.
func (r *Reviewer) Review(ctx context.Context, link refs.PRLink) (string, error) {
	repo, err := r.locate(ctx, link)
	if err != nil {
		return "", err
	}
	return r.review(ctx, repo, link.Number)
}

// Analyze answers question about the changes of the linked pull request.
func (r *Reviewer) Analyze(ctx context.Context, link refs.PRLink, question string) (string, error) {
	repo, err := r.locate(ctx, link)
	if err != nil {
		return "", err
	}
	files, err := r.host.ListChangedFiles(ctx, repo, link.Number)
	if err != nil {
		return "", err
	}
	if question = strings.TrimSpace(question); question == "" {
		question = "Summarize what this change does and point out anything risky."
	}
	return r.composer.AnalyzeCode(ctx, DiffBundle(files), question)
}

func (r *Reviewer) locate(ctx context.Context, link refs.PRLink) (Repo, error) {
	id, err := r.host.FindInstallation(ctx, link.Owner, link.Repo)
	if err != nil {
		return Repo{}, err
	}
	return Repo{Installation: id, Owner: link.Owner, Name: link.Repo}, nil
}

func (r *Reviewer) review(ctx context.Context, repo Repo, number int) (string, error) {
	files, err := r.host.ListChangedFiles(ctx, repo, number)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", apperr.New(apperr.KindValidation, apperr.ServiceGitHub,
			fmt.Sprintf("PR #%d in %s has no changed files", number, repo.FullName()))
	}
	return r.reviewFiles(ctx, repo, files)
}

func (r *Reviewer) reviewFiles(ctx context.Context, repo Repo, files []PullRequestFile) (string, error) {
	repoContext, err := r.host.RepositoryContext(ctx, repo, files)
	if err != nil {
		return "", err
	}
	return r.composer.ReviewPR(ctx, DiffBundle(files), repoContext)
}
