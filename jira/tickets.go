package jira

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/justmike1/devx/apperr"
	"github.com/justmike1/devx/refs"
)

// API is the subset of the Jira REST API the ticket lifecycle needs.
type API interface {
	CreateIssue(ctx context.Context, input CreateIssueInput) (*Issue, error)
	GetIssue(ctx context.Context, key string) (*IssueSummary, error)
	AddComment(ctx context.Context, key, body string, format Format) error
	ListComments(ctx context.Context, key string) ([]Comment, error)
	ListTransitions(ctx context.Context, key string) ([]Transition, error)
	DoTransition(ctx context.Context, key, transitionID string) error
}

// Review actions as reported on tickets.
const (
	ActionOpened  = "opened"
	ActionMerged  = "merged"
	ActionClosed  = "closed"
	ActionUpdated = "updated"
)

const timestampLayout = "2006-01-02 15:04:05"

var (
	projectPrefix = regexp.MustCompile(`^\[([A-Z]+)\]`)

	closeStatuses = []string{"done", "closed", "complete"}

	linkTemplates = map[string]string{
		ActionOpened:  "🔍 New Pull Request opened at %[1]s\nLink: %[2]s\nStatus: In Review",
		ActionMerged:  "✅ Pull Request merged at %[1]s\nLink: %[2]s\nStatus: Changes merged to target branch",
		ActionClosed:  "❌ Pull Request closed without merging at %[1]s\nLink: %[2]s\nStatus: Closed",
		ActionUpdated: "📝 Pull Request updated at %[1]s\nLink: %[2]s\nStatus: Changes pushed to PR",
	}
)

// Tickets carries out ticket lifecycle operations on top of the REST API.
type Tickets struct {
	api            API
	defaultProject string
	now            func() time.Time
}

type TicketsOption func(*Tickets)

// WithClock overrides the clock used for review link timestamps.
func WithClock(now func() time.Time) TicketsOption {
	return func(t *Tickets) { t.now = now }
}

func NewTickets(api API, defaultProject string, opts ...TicketsOption) *Tickets {
	t := &Tickets{api: api, defaultProject: defaultProject, now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ProjectKey returns the project named by a leading [KEY] in title, or the
// default project.
func (t *Tickets) ProjectKey(title string) string {
	if m := projectPrefix.FindStringSubmatch(strings.TrimSpace(title)); m != nil {
		return m[1]
	}
	return t.defaultProject
}

// Create opens a ticket. An empty issueType means "Task".
func (t *Tickets) Create(ctx context.Context, title, description, issueType string) (*Issue, error) {
	project := t.ProjectKey(title)
	issue, err := t.api.CreateIssue(ctx, CreateIssueInput{
		Project:     project,
		Summary:     title,
		Description: description,
		IssueType:   issueType,
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket in %s: %w", project, err)
	}
	log.Info().Str("component", "jira").Str("ticket", issue.Key).Str("project", project).Msg("ticket created")
	return issue, nil
}

func (t *Tickets) Get(ctx context.Context, id string) (*IssueSummary, error) {
	return t.api.GetIssue(ctx, id)
}

// Comment adds text to the ticket as typed, without markdown parsing.
func (t *Tickets) Comment(ctx context.Context, id, text string) error {
	return t.comment(ctx, id, text, FormatPlain)
}

// CommentMarkdown adds generated markdown, rendered as rich text.
func (t *Tickets) CommentMarkdown(ctx context.Context, id, text string) error {
	return t.comment(ctx, id, text, FormatMarkdown)
}

func (t *Tickets) comment(ctx context.Context, id, text string, format Format) error {
	if err := t.api.AddComment(ctx, id, text, format); err != nil {
		return fmt.Errorf("comment on %s: %w", id, err)
	}
	return nil
}

// Close comments with the reason and moves the ticket through the first
// transition named done, closed or complete.
func (t *Tickets) Close(ctx context.Context, id, reason string) error {
	if err := t.Comment(ctx, id, "Ticket closed with reason:\n"+reason); err != nil {
		return err
	}

	transitions, err := t.api.ListTransitions(ctx, id)
	if err != nil {
		return fmt.Errorf("list transitions for %s: %w", id, err)
	}
	for _, tr := range transitions {
		if IsClosed(tr.Name) {
			return t.apply(ctx, id, tr)
		}
	}
	return apperr.Configuration(apperr.ServiceJira, "could not find appropriate transition to close ticket %s", id)
}

// Transition moves a ticket through the transition whose name equals target,
// ignoring case. A non-empty comment is added first.
func (t *Tickets) Transition(ctx context.Context, id, target, comment string) error {
	if comment != "" {
		if err := t.Comment(ctx, id, comment); err != nil {
			return err
		}
	}

	transitions, err := t.api.ListTransitions(ctx, id)
	if err != nil {
		return fmt.Errorf("list transitions for %s: %w", id, err)
	}
	for _, tr := range transitions {
		if strings.EqualFold(tr.Name, target) {
			return t.apply(ctx, id, tr)
		}
	}
	return apperr.Configuration(apperr.ServiceJira, "could not find transition to status %q for %s", target, id)
}

func (t *Tickets) apply(ctx context.Context, id string, tr Transition) error {
	if err := t.api.DoTransition(ctx, id, tr.ID); err != nil {
		return fmt.Errorf("transition %s to %s: %w", id, tr.Name, err)
	}
	log.Info().Str("component", "jira").Str("ticket", id).Str("transition", tr.Name).Msg("ticket transitioned")
	return nil
}

// LinkReview records a pull request event on the ticket.
func (t *Tickets) LinkReview(ctx context.Context, id, reviewURL, action string) error {
	return t.CommentMarkdown(ctx, id, LinkComment(action, reviewURL, t.now()))
}

// LinkComment renders the ticket comment for a pull request event.
func LinkComment(action, reviewURL string, at time.Time) string {
	ts := at.Format(timestampLayout)
	if tmpl, ok := linkTemplates[action]; ok {
		return fmt.Sprintf(tmpl, ts, reviewURL)
	}
	return fmt.Sprintf("Pull Request %s at %s\n%s", action, ts, reviewURL)
}

// HandleReviewEvent links the pull request to every ticket named in
// description and moves those tickets along: In Review when opened, Done when
// merged. A failing ticket does not stop the others; all failures are
// returned joined once every ticket has been attempted.
func (t *Tickets) HandleReviewEvent(ctx context.Context, reviewURL, action, description string) error {
	ids := refs.ExtractTicketIDs(description)
	if len(ids) == 0 {
		log.Info().Str("component", "jira").Str("pr", reviewURL).Msg("no ticket references found in PR description")
		return nil
	}

	var errs []error
	for _, id := range ids {
		if err := t.updateForReview(ctx, id, reviewURL, action); err != nil {
			log.Error().Err(err).Str("component", "jira").Str("ticket", id).Str("pr", reviewURL).
				Msg("failed to update ticket for PR event")
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tickets) updateForReview(ctx context.Context, id, reviewURL, action string) error {
	if err := t.LinkReview(ctx, id, reviewURL, action); err != nil {
		return err
	}
	switch action {
	case ActionOpened:
		return t.Transition(ctx, id, "In Review", "PR opened for review")
	case ActionMerged:
		return t.Transition(ctx, id, "Done", "PR merged successfully")
	}
	return nil
}

// IsClosed reports whether a status or transition name means finished work.
func IsClosed(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, status := range closeStatuses {
		if name == status {
			return true
		}
	}
	return false
}

// Status returns the name of the ticket's current status.
func (t *Tickets) Status(ctx context.Context, id string) (string, error) {
	issue, err := t.api.GetIssue(ctx, id)
	if err != nil {
		return "", err
	}
	return issue.Status, nil
}

// LinkedReviews returns the pull request links mentioned in the ticket's
// comments, oldest first and without duplicates.
func (t *Tickets) LinkedReviews(ctx context.Context, id string) ([]string, error) {
	comments, err := t.api.ListComments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list comments for %s: %w", id, err)
	}
	var bodies []string
	for _, c := range comments {
		bodies = append(bodies, c.Body)
	}
	return refs.ExtractPRURLs(strings.Join(bodies, "\n")), nil
}
