package commands

import (
	"fmt"

	slacklib "github.com/slack-go/slack"
)

// Block and action identifiers of the interactive forms.
const (
	BlockTicketTitle       = "ticket_title"
	ActionTitleInput       = "title_input"
	BlockTicketDescription = "ticket_description"
	ActionDescriptionInput = "description_input"
	BlockCloseReason       = "close_reason"
	ActionReasonInput      = "reason_input"
	BlockPRURL             = "pr_url"
	ActionPRURLInput       = "pr_url_input"

	ActionCreateSubmit = "create_ticket_submit"
	ActionCreateCancel = "create_ticket_cancel"
	ActionCloseSubmit  = "close_ticket_submit"
	ActionCloseCancel  = "close_ticket_cancel"
	ActionReviewSubmit = "review_pr_submit"
	ActionReviewCancel = "review_pr_cancel"
)

func plain(text string) *slacklib.TextBlockObject {
	return slacklib.NewTextBlockObject(slacklib.PlainTextType, text, false, false)
}

func mrkdwn(text string) *slacklib.SectionBlock {
	return slacklib.NewSectionBlock(slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false), nil, nil)
}

func textInput(blockID, label, actionID string, configure func(*slacklib.PlainTextInputBlockElement)) *slacklib.InputBlock {
	el := slacklib.NewPlainTextInputBlockElement(nil, actionID)
	if configure != nil {
		configure(el)
	}
	return slacklib.NewInputBlock(blockID, plain(label), nil, el)
}

func buttons(submitID, submitLabel, value, cancelID string) *slacklib.ActionBlock {
	submit := slacklib.NewButtonBlockElement(submitID, value, plain(submitLabel)).WithStyle(slacklib.StylePrimary)
	cancel := slacklib.NewButtonBlockElement(cancelID, "", plain("Cancel")).WithStyle(slacklib.StyleDanger)
	return slacklib.NewActionBlock("", submit, cancel)
}

func createForm() Reply {
	intro := "Let's create a new ticket! Please provide the following information:"
	return Reply{
		Text: intro,
		Blocks: []slacklib.Block{
			mrkdwn(intro),
			textInput(BlockTicketTitle, "Ticket Title", ActionTitleInput, func(el *slacklib.PlainTextInputBlockElement) {
				el.MinLength = minTitleLength
				el.MaxLength = maxTitleLength
			}),
			textInput(BlockTicketDescription, "Description", ActionDescriptionInput, func(el *slacklib.PlainTextInputBlockElement) {
				el.Multiline = true
				el.MinLength = minDescriptionLength
			}),
			buttons(ActionCreateSubmit, "Create Ticket", "", ActionCreateCancel),
		},
	}
}

func closeForm(ticket string) Reply {
	intro := fmt.Sprintf("Please provide a reason for closing ticket *%s*:", ticket)
	return Reply{
		Text: intro,
		Blocks: []slacklib.Block{
			mrkdwn(intro),
			textInput(BlockCloseReason, "Reason", ActionReasonInput, func(el *slacklib.PlainTextInputBlockElement) {
				el.Multiline = true
				el.MinLength = minReasonLength
			}),
			buttons(ActionCloseSubmit, "Close Ticket", ticket, ActionCloseCancel),
		},
	}
}

func reviewForm() Reply {
	intro := "I'll help you review a PR. Please provide the following:"
	return Reply{
		Text: intro,
		Blocks: []slacklib.Block{
			mrkdwn(intro),
			textInput(BlockPRURL, "Pull Request URL", ActionPRURLInput, func(el *slacklib.PlainTextInputBlockElement) {
				el.Placeholder = plain("https://github.com/owner/repo/pull/123")
			}),
			buttons(ActionReviewSubmit, "Review PR", "", ActionReviewCancel),
		},
	}
}
