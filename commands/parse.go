package commands

import (
	"strings"
	"unicode"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/justmike1/devx/apperr"
	"github.com/justmike1/devx/refs"
)

type Subcommand int

const (
	SubUnknown Subcommand = iota
	SubHelp
	SubCreate
	SubClose
	SubUpdate
	SubReview
	SubRefine
	SubAnalyze
)

var subcommands = map[string]Subcommand{
	"help":    SubHelp,
	"create":  SubCreate,
	"close":   SubClose,
	"update":  SubUpdate,
	"review":  SubReview,
	"refine":  SubRefine,
	"analyze": SubAnalyze,
}

func (s Subcommand) String() string {
	for name, sub := range subcommands {
		if sub == s {
			return name
		}
	}
	return "unknown"
}

// SlashCommand is a parsed "/devx <subcommand> [args]" invocation.
type SlashCommand struct {
	Sub Subcommand
	// Name is the subcommand as typed.
	Name string
	// Rest is everything after the subcommand, with an optional leading
	// "ticket" word removed.
	Rest string

	ChannelID string
	UserID    string
}

// Parse splits text into subcommand and arguments. Empty text asks for help.
func Parse(text string) SlashCommand {
	name, rest := cutField(text)
	if name == "" {
		return SlashCommand{Sub: SubHelp}
	}
	cmd := SlashCommand{Sub: subcommands[strings.ToLower(name)], Name: name}
	if word, after := cutField(rest); strings.EqualFold(word, "ticket") {
		rest = after
	}
	cmd.Rest = rest
	return cmd
}

// Args returns the whitespace separated arguments.
func (c SlashCommand) Args() []string {
	return strings.Fields(c.Rest)
}

// cutField returns the first whitespace separated word of s and the trimmed
// remainder.
func cutField(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// Input limits shared by commands and form submissions.
const (
	minTitleLength       = 5
	maxTitleLength       = 255
	minDescriptionLength = 10
	minCommentLength     = 10
	minReasonLength      = 10
)

const (
	closeUsage   = "Please provide a ticket ID: `/devx close ticket PROJ-123`"
	updateUsage  = "Please use the format: `/devx update ticket PROJ-123 Your comment here`"
	refineUsage  = "Please provide a ticket ID: `/devx refine PROJ-123`"
	analyzeUsage = "Please provide a PR URL: `/devx analyze https://github.com/owner/repo/pull/123 [question]`"
)

func ticketID(raw, usage string) fn.Result[string] {
	if raw == "" {
		return fn.Err[string](apperr.Command("%s", usage))
	}
	if !refs.ValidTicketID(raw) {
		return fn.Err[string](apperr.Command("Invalid ticket ID format: %s. Expected format: PROJ-123", raw))
	}
	return fn.Ok(raw)
}

// minLength returns the trimmed value when it has at least n characters.
func minLength(value, field string, n int) fn.Result[string] {
	value = strings.TrimSpace(value)
	if len([]rune(value)) < n {
		return fn.Err[string](apperr.Command("%s must be at least %d characters long", field, n))
	}
	return fn.Ok(value)
}

func title(value string) fn.Result[string] {
	r := minLength(value, "Title", minTitleLength)
	if v, err := r.Unpack(); err == nil && len([]rune(v)) > maxTitleLength {
		return fn.Err[string](apperr.Command("Title must be at most %d characters long", maxTitleLength))
	}
	return r
}

type update struct {
	ticket  string
	comment string
}

func parseUpdate(rest string) fn.Result[update] {
	id, comment := cutField(rest)
	if id == "" || comment == "" {
		return fn.Err[update](apperr.Command("%s", updateUsage))
	}
	ticket, err := ticketID(id, updateUsage).Unpack()
	if err != nil {
		return fn.Err[update](err)
	}
	comment, err = minLength(comment, "Comment", minCommentLength).Unpack()
	if err != nil {
		return fn.Err[update](err)
	}
	return fn.Ok(update{ticket: ticket, comment: comment})
}

type analyze struct {
	link     refs.PRLink
	question string
}

func parseAnalyze(rest string) fn.Result[analyze] {
	raw, question := cutField(rest)
	if raw == "" {
		return fn.Err[analyze](apperr.Command("%s", analyzeUsage))
	}
	link, err := refs.ParsePRURL(unlink(raw))
	if err != nil {
		return fn.Err[analyze](err)
	}
	return fn.Ok(analyze{link: link, question: question})
}

// unlink turns a Slack formatted link "<url|label>" back into the url.
func unlink(s string) string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	return s
}
