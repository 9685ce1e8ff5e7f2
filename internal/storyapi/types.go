package storyapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const DefaultUserMessage = "Failed to generate story"

var ErrMalformedResponse = errors.New("malformed story response")

// Error is every failure of a generation call: transport errors, non-2xx
// answers and unusable bodies.
type Error struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("story api")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " %d", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user when generation fails.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Detail) != "" {
		return strings.TrimSpace(apiErr.Detail)
	}
	return DefaultUserMessage
}

type storyResponse struct {
	Story string `json:"story"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// text flattens detail. Validation failures carry a list instead of a
// string; those are passed through as raw JSON.
func (r errorResponse) text() string {
	raw := strings.TrimSpace(string(r.Detail))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return raw
}
