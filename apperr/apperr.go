// Package apperr classifies failures coming out of the tracker, source host,
// chat and LLM adapters so a single boundary can turn them into replies.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnclassified Kind = iota
	KindAuthentication
	KindValidation
	KindCommand
	KindNotFound
	KindPermission
	KindConfiguration
	// KindUpstream is a vendor API rejection that is neither a missing
	// entity nor a permission problem. Its message comes from the vendor.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	case KindCommand:
		return "command"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	default:
		return "unclassified"
	}
}

// Services that raise classified errors.
const (
	ServiceJira   = "jira"
	ServiceGitHub = "github"
	ServiceSlack  = "slack"
	ServiceLLM    = "llm"
)

// Error is a classified failure. Err, when set, is the underlying cause.
type Error struct {
	Kind    Kind
	Service string
	Msg     string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, service, msg string) *Error {
	return &Error{Kind: kind, Service: service, Msg: msg}
}

func Wrap(kind Kind, service string, err error, msg string) *Error {
	return &Error{Kind: kind, Service: service, Msg: msg, Err: err}
}

// Validation reports malformed user input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Command reports a slash command that cannot be carried out as typed.
func Command(format string, args ...any) *Error {
	return &Error{Kind: KindCommand, Msg: fmt.Sprintf(format, args...)}
}

// Configuration reports an operation that cannot succeed with the current
// setup of the remote system, e.g. a workflow with no usable transition.
func Configuration(service, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Service: service, Msg: fmt.Sprintf(format, args...)}
}

func Authentication(msg string) *Error {
	return &Error{Kind: KindAuthentication, Msg: msg}
}

// FromStatus maps a vendor HTTP status to a classified error.
func FromStatus(service string, status int, msg string) *Error {
	kind := KindUpstream
	switch status {
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindPermission
	}
	return &Error{Kind: kind, Service: service, Status: status, Msg: msg}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnclassified
}

// ServiceOf returns the service of the first classified error in err's chain.
func ServiceOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Service
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
