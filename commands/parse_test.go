package commands

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/justmike1/devx/apperr"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		sub  Subcommand
		rest string
	}{
		{"", SubHelp, ""},
		{"   ", SubHelp, ""},
		{"help", SubHelp, ""},
		{"create", SubCreate, ""},
		{"close ticket PROJ-1", SubClose, "PROJ-1"},
		{"close PROJ-1", SubClose, "PROJ-1"},
		{"CLOSE Ticket PROJ-1", SubClose, "PROJ-1"},
		{"update ticket PROJ-1  fixed in  main ", SubUpdate, "PROJ-1  fixed in  main"},
		{"review https://github.com/a/b/pull/1", SubReview, "https://github.com/a/b/pull/1"},
		{"refine PROJ-2", SubRefine, "PROJ-2"},
		{"analyze https://github.com/a/b/pull/1 why?", SubAnalyze, "https://github.com/a/b/pull/1 why?"},
		{"deploy prod", SubUnknown, "prod"},
	}
	for _, tt := range tests {
		cmd := Parse(tt.text)
		assert.Equal(t, tt.sub, cmd.Sub, tt.text)
		assert.Equal(t, tt.rest, cmd.Rest, tt.text)
	}
}

func TestParseNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		cmd := Parse(text)
		if cmd.Sub != SubHelp && cmd.Sub != SubUnknown {
			assert.NotEmpty(t, cmd.Name)
		}
	})
}

func TestValidation(t *testing.T) {
	id, err := ticketID("OPS-12", closeUsage).Unpack()
	require.NoError(t, err)
	assert.Equal(t, "OPS-12", id)

	_, err = ticketID("ops-12", closeUsage).Unpack()
	assert.Equal(t, apperr.KindCommand, apperr.KindOf(err))

	v, err := minLength("  0123456789  ", "Comment", 10).Unpack()
	require.NoError(t, err)
	assert.Equal(t, "0123456789", v)

	_, err = minLength("ünïcødé", "Comment", 10).Unpack()
	assert.EqualError(t, err, "Comment must be at least 10 characters long")

	_, err = title(strings.Repeat("x", 256)).Unpack()
	assert.EqualError(t, err, "Title must be at most 255 characters long")
}

func TestUnlink(t *testing.T) {
	assert.Equal(t, "https://github.com/a/b/pull/1", unlink("<https://github.com/a/b/pull/1>"))
	assert.Equal(t, "https://github.com/a/b/pull/1", unlink("<https://github.com/a/b/pull/1|a/b#1>"))
	assert.Equal(t, "https://github.com/a/b/pull/1", unlink("https://github.com/a/b/pull/1"))
}

func TestRender(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{apperr.Command("Comment must be at least 10 characters long"), "❌ Command error: Comment must be at least 10 characters long"},
		{apperr.Validation("Invalid PR URL format"), "❌ Command error: Invalid PR URL format"},
		{apperr.FromStatus(apperr.ServiceJira, http.StatusNotFound, "x"), "❌ JIRA ticket not found. Please check the ticket ID and try again."},
		{apperr.FromStatus(apperr.ServiceJira, http.StatusForbidden, "x"), "❌ Permission denied. I don't have access to perform this action in JIRA."},
		{apperr.FromStatus(apperr.ServiceJira, http.StatusBadRequest, "Field 'summary' is required"), "❌ JIRA error: Field 'summary' is required"},
		{apperr.FromStatus(apperr.ServiceGitHub, http.StatusNotFound, "x"), "❌ GitHub repository or PR not found. Please check the URL and try again."},
		{apperr.FromStatus(apperr.ServiceGitHub, http.StatusUnauthorized, "x"), "❌ Permission denied. I don't have access to the GitHub repository."},
		{apperr.FromStatus(apperr.ServiceGitHub, http.StatusUnprocessableEntity, "Validation Failed"), "❌ GitHub error: Validation Failed"},
		{apperr.Configuration(apperr.ServiceJira, "no close transition"), unexpectedError},
		{assert.AnError, unexpectedError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Render(tt.err), tt.err.Error())
	}
}
