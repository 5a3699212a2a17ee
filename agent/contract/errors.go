package contract

import (
	"errors"
	"strings"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrValidation      = errors.New("validation failed")
	ErrBackend         = errors.New("backend request failed")
	ErrSessionClosed   = errors.New("call session is closed")
	ErrSessionNotFound = errors.New("call session not found")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrPromptMissing   = errors.New("required prompt is missing")
)

// ErrorKind classifies a failed tool invocation for the model runtime.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindBackend       ErrorKind = "backend"
	KindPrecondition  ErrorKind = "precondition"
	KindSessionClosed ErrorKind = "session_closed"
	KindInternal      ErrorKind = "internal"
)

// KindOf maps an error chain onto the tool error taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownTool):
		return KindValidation
	case errors.Is(err, ErrBackend):
		return KindBackend
	case errors.Is(err, ErrSessionClosed):
		return KindSessionClosed
	default:
		return KindInternal
	}
}

// PublicMessage strips sentinel prefixes so the text can be shown to the model.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, sentinel := range []error{ErrValidation, ErrConfiguration, ErrBackend, ErrUnknownTool, ErrSessionClosed} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}
