package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

const maxErrorMessageLen = 500

// Error is a normalized backend failure. Error() returns only the message so
// it can be handed to the model as-is.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return contractx.ErrBackend
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.StatusCode == http.StatusNotFound
}

type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
}

// normalizeStatusError prefers the backend message field, then the raw body
// when it is text, then a generic status message.
func normalizeStatusError(status int, body []byte) *Error {
	if msg := messageField(body); msg != "" {
		return &Error{StatusCode: status, Message: msg}
	}
	if text := textualBody(body); text != "" {
		return &Error{StatusCode: status, Message: text}
	}
	return &Error{StatusCode: status, Message: fmt.Sprintf("reservation service returned status %d", status)}
}

func normalizeTransportError(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Message: "reservation service did not respond in time"}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Message: "request to reservation service was cancelled"}
	}
	return &Error{Message: "reservation service is unreachable"}
}

func messageField(body []byte) string {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}

	if len(parsed.Message) > 0 {
		var single string
		if err := json.Unmarshal(parsed.Message, &single); err == nil {
			if s := strings.TrimSpace(single); s != "" {
				return truncate(s)
			}
		}
		var many []string
		if err := json.Unmarshal(parsed.Message, &many); err == nil {
			parts := make([]string, 0, len(many))
			for _, m := range many {
				if s := strings.TrimSpace(m); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return truncate(strings.Join(parts, "; "))
			}
		}
	}
	return truncate(strings.TrimSpace(parsed.Error))
}

func textualBody(body []byte) string {
	if !utf8.Valid(body) {
		return ""
	}
	text := strings.TrimSpace(string(body))
	if text == "" || strings.ContainsRune(text, 0) {
		return ""
	}
	return truncate(text)
}

func truncate(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
