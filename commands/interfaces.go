package commands

import (
	"context"

	slacklib "github.com/slack-go/slack"

	"github.com/justmike1/devx/jira"
	"github.com/justmike1/devx/refs"
)

// Tickets is the ticket lifecycle the commands drive.
type Tickets interface {
	Create(ctx context.Context, title, description, issueType string) (*jira.Issue, error)
	Get(ctx context.Context, id string) (*jira.IssueSummary, error)
	Status(ctx context.Context, id string) (string, error)
	Comment(ctx context.Context, id, text string) error
	CommentMarkdown(ctx context.Context, id, text string) error
	Close(ctx context.Context, id, reason string) error
	LinkedReviews(ctx context.Context, id string) ([]string, error)
}

// Reviewer reviews pull requests on request from chat.
type Reviewer interface {
	Review(ctx context.Context, link refs.PRLink) (string, error)
	Analyze(ctx context.Context, link refs.PRLink, question string) (string, error)
}

// Composer writes free-form text.
type Composer interface {
	RefineTicket(ctx context.Context, description, technicalContext string) (string, error)
	ChatReply(ctx context.Context, message, msgContext string) (string, error)
}

// History reads recent channel messages.
type History interface {
	FetchChannelHistory(ctx context.Context, channelID string, limit int) ([]slacklib.Message, error)
}

// Reply is one chat message. Blocks, when set, carry an interactive form and
// Text is the notification fallback.
type Reply struct {
	Text   string
	Blocks []slacklib.Block
}

// Responder delivers replies to wherever the request came from.
type Responder interface {
	Respond(ctx context.Context, reply Reply) error
}
