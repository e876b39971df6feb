package commands

import (
	"errors"

	"github.com/justmike1/devx/apperr"
)

const unexpectedError = "❌ An unexpected error occurred. The development team has been notified."

// Render turns any failure into the message shown in chat. Only classified
// errors are described; everything else gets a generic reply.
func Render(err error) string {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return unexpectedError
	}

	switch e.Kind {
	case apperr.KindValidation, apperr.KindCommand:
		return "❌ Command error: " + e.Msg
	}

	switch e.Service {
	case apperr.ServiceJira:
		switch e.Kind {
		case apperr.KindNotFound:
			return "❌ JIRA ticket not found. Please check the ticket ID and try again."
		case apperr.KindPermission:
			return "❌ Permission denied. I don't have access to perform this action in JIRA."
		case apperr.KindUpstream:
			return "❌ JIRA error: " + e.Msg
		}
	case apperr.ServiceGitHub:
		switch e.Kind {
		case apperr.KindNotFound:
			return "❌ GitHub repository or PR not found. Please check the URL and try again."
		case apperr.KindPermission:
			return "❌ Permission denied. I don't have access to the GitHub repository."
		case apperr.KindUpstream:
			return "❌ GitHub error: " + e.Msg
		}
	}
	return unexpectedError
}
