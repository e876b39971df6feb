package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/justmike1/devx/refs"
)

// Action is a button press on one of the forms, with the form's current
// input values keyed by block id then action id.
type Action struct {
	ID        string
	Value     string
	UserID    string
	ChannelID string
	Values    map[string]map[string]string
}

func (a Action) input(blockID, actionID string) string {
	return a.Values[blockID][actionID]
}

// HandleAction handles a form submission. Inputs are validated again since
// nothing is remembered between showing a form and its submission.
func (d *Dispatcher) HandleAction(ctx context.Context, action Action, out Responder) {
	logger := log.With().Str("component", "commands").Str("action", action.ID).
		Str("user", action.UserID).Str("channel", action.ChannelID).Logger()
	logger.Info().Msg("form action")

	var err error
	switch {
	case strings.HasSuffix(action.ID, "_cancel"):
		err = out.Respond(ctx, Reply{Text: "❌ Action cancelled."})
	case action.ID == ActionCreateSubmit:
		err = d.submitCreate(ctx, action, out)
	case action.ID == ActionCloseSubmit:
		err = d.submitClose(ctx, action, out)
	case action.ID == ActionReviewSubmit:
		err = d.submitReview(ctx, action, out)
	default:
		logger.Warn().Msg("unknown action ignored")
	}
	if err != nil {
		d.fail(ctx, logger, err, out)
	}
}

func (d *Dispatcher) submitCreate(ctx context.Context, action Action, out Responder) error {
	t, err := title(action.input(BlockTicketTitle, ActionTitleInput)).Unpack()
	if err != nil {
		return err
	}
	desc, err := minLength(action.input(BlockTicketDescription, ActionDescriptionInput), "Description", minDescriptionLength).Unpack()
	if err != nil {
		return err
	}
	issue, err := d.tickets.Create(ctx, t, desc, "")
	if err != nil {
		return err
	}
	return out.Respond(ctx, Reply{Text: "✅ Created ticket " + issue.Key})
}

func (d *Dispatcher) submitClose(ctx context.Context, action Action, out Responder) error {
	id, err := ticketID(action.Value, closeUsage).Unpack()
	if err != nil {
		return err
	}
	reason, err := minLength(action.input(BlockCloseReason, ActionReasonInput), "Closing reason", minReasonLength).Unpack()
	if err != nil {
		return err
	}
	if err := d.tickets.Close(ctx, id, reason); err != nil {
		return err
	}
	return out.Respond(ctx, Reply{Text: "✅ Closed ticket " + id})
}

func (d *Dispatcher) submitReview(ctx context.Context, action Action, out Responder) error {
	link, err := refs.ParsePRURL(unlink(strings.TrimSpace(action.input(BlockPRURL, ActionPRURLInput))))
	if err != nil {
		return err
	}
	progress := fmt.Sprintf("🔍 Reviewing PR #%d in %s...", link.Number, link.FullName())
	if err := out.Respond(ctx, Reply{Text: progress}); err != nil {
		return err
	}
	review, err := d.reviewer.Review(ctx, link)
	if err != nil {
		return err
	}
	return out.Respond(ctx, Reply{Text: "✅ Review completed! Here's my feedback:\n\n" + review})
}
