package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justmike1/devx/apperr"
	"github.com/justmike1/devx/jira"
	"github.com/justmike1/devx/refs"
)

const helpText = "*DevX commands*\n" +
	"• `/devx create` open a form to create a Jira ticket\n" +
	"• `/devx close ticket PROJ-123` close a ticket with a reason\n" +
	"• `/devx update ticket PROJ-123 Your comment here` comment on a ticket\n" +
	"• `/devx review [PR URL]` review a pull request\n" +
	"• `/devx refine PROJ-123` add a technical refinement to a ticket\n" +
	"• `/devx analyze PR-URL [question]` ask about the code in a pull request\n" +
	"• `/devx help` show this message"

// Dispatcher carries out /devx commands and form submissions.
type Dispatcher struct {
	tickets  Tickets
	reviewer Reviewer
	composer Composer
	channels *ChannelContext
}

// NewDispatcher wires the command handlers. channels may be nil, in which
// case chat replies get no channel history as context.
func NewDispatcher(tickets Tickets, reviewer Reviewer, composer Composer, channels *ChannelContext) *Dispatcher {
	return &Dispatcher{
		tickets:  tickets,
		reviewer: reviewer,
		composer: composer,
		channels: channels,
	}
}

// Handle runs a slash command. Failures are reported to out, never returned.
func (d *Dispatcher) Handle(ctx context.Context, cmd SlashCommand, out Responder) {
	logger := log.With().Str("component", "commands").Str("subcommand", cmd.Sub.String()).
		Str("user", cmd.UserID).Str("channel", cmd.ChannelID).Logger()
	logger.Info().Str("args", cmd.Rest).Msg("slash command")

	if err := d.dispatch(ctx, cmd, out); err != nil {
		d.fail(ctx, logger, err, out)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd SlashCommand, out Responder) error {
	switch cmd.Sub {
	case SubHelp:
		return out.Respond(ctx, Reply{Text: helpText})
	case SubCreate:
		return out.Respond(ctx, createForm())
	case SubClose:
		return d.closeTicket(ctx, cmd, out)
	case SubUpdate:
		return d.updateTicket(ctx, cmd, out)
	case SubReview:
		return d.review(ctx, cmd, out)
	case SubRefine:
		return d.refine(ctx, cmd, out)
	case SubAnalyze:
		return d.analyze(ctx, cmd, out)
	default:
		return out.Respond(ctx, Reply{Text: "I don't understand that command.\n\n" + helpText})
	}
}

func (d *Dispatcher) closeTicket(ctx context.Context, cmd SlashCommand, out Responder) error {
	var first string
	if args := cmd.Args(); len(args) > 0 {
		first = args[0]
	}
	id, err := ticketID(first, closeUsage).Unpack()
	if err != nil {
		return err
	}
	status, err := d.tickets.Status(ctx, id)
	if err != nil {
		return err
	}
	if jira.IsClosed(status) {
		return out.Respond(ctx, Reply{Text: fmt.Sprintf("ℹ️ Ticket %s is already %s.", id, status)})
	}
	return out.Respond(ctx, closeForm(id))
}

func (d *Dispatcher) updateTicket(ctx context.Context, cmd SlashCommand, out Responder) error {
	req, err := parseUpdate(cmd.Rest).Unpack()
	if err != nil {
		return err
	}
	if err := d.tickets.Comment(ctx, req.ticket, req.comment); err != nil {
		return err
	}
	return out.Respond(ctx, Reply{Text: "✅ Added comment to ticket " + req.ticket})
}

func (d *Dispatcher) review(ctx context.Context, cmd SlashCommand, out Responder) error {
	args := cmd.Args()
	if len(args) == 0 {
		return out.Respond(ctx, reviewForm())
	}
	link, err := refs.ParsePRURL(unlink(args[0]))
	if err != nil {
		return err
	}
	review, err := d.reviewer.Review(ctx, link)
	if err != nil {
		return err
	}
	return out.Respond(ctx, Reply{Text: fmt.Sprintf("🔍 Here's my review of %s:\n\n%s", link, review)})
}

func (d *Dispatcher) refine(ctx context.Context, cmd SlashCommand, out Responder) error {
	var first string
	if args := cmd.Args(); len(args) > 0 {
		first = args[0]
	}
	id, err := ticketID(first, refineUsage).Unpack()
	if err != nil {
		return err
	}
	issue, err := d.tickets.Get(ctx, id)
	if err != nil {
		return err
	}
	links, err := d.tickets.LinkedReviews(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("component", "commands").Str("ticket", id).Msg("could not read linked reviews")
	}

	refined, err := d.composer.RefineTicket(ctx, issue.Description, technicalContext(issue.Summary, issue.IssueType, issue.Status, links))
	if err != nil {
		return err
	}
	if err := d.tickets.CommentMarkdown(ctx, id, refined); err != nil {
		return err
	}
	return out.Respond(ctx, Reply{Text: fmt.Sprintf("✅ I've refined ticket %s with technical context!", id)})
}

func technicalContext(summary, issueType, status string, links []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summary: %s\nType: %s\nStatus: %s", summary, issueType, status)
	if len(links) > 0 {
		sb.WriteString("\nLinked pull requests:")
		for _, l := range links {
			sb.WriteString("\n- " + l)
		}
	}
	return sb.String()
}

func (d *Dispatcher) analyze(ctx context.Context, cmd SlashCommand, out Responder) error {
	req, err := parseAnalyze(cmd.Rest).Unpack()
	if err != nil {
		return err
	}
	analysis, err := d.reviewer.Analyze(ctx, req.link, req.question)
	if err != nil {
		return err
	}
	return out.Respond(ctx, Reply{Text: fmt.Sprintf("🔍 Analysis of %s:\n\n%s", req.link, analysis)})
}

// fail reports err to the user. Errors we cannot describe are logged in
// full and shown generically.
func (d *Dispatcher) fail(ctx context.Context, logger zerolog.Logger, err error, out Responder) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindCommand:
		logger.Info().Err(err).Msg("command rejected")
	case apperr.KindUnclassified, apperr.KindConfiguration:
		logger.Error().Err(err).Msg("command failed")
	default:
		logger.Warn().Err(err).Str("service", apperr.ServiceOf(err)).Msg("command failed")
	}
	if rerr := out.Respond(ctx, Reply{Text: Render(err)}); rerr != nil {
		logger.Error().Err(rerr).Msg("failed to send error to user")
	}
}
