package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrReauthRequired matches any ReauthRequiredError via errors.Is.
var ErrReauthRequired = errors.New("re-authentication required")

const reauthMessage = "Session expired. Please log in again."

// APIError is a non-2xx response from the CS backend.
type APIError struct {
	Status  int
	Detail  json.RawMessage
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// ReauthRequiredError means credentials were rejected and could not be refreshed.
// Stored credentials have already been cleared.
type ReauthRequiredError struct {
	APIError
	LoginPath string
}

func (e *ReauthRequiredError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrReauthRequired) match.
func (e *ReauthRequiredError) Is(target error) bool {
	return target == ErrReauthRequired
}

func newReauthError(loginPath string) *ReauthRequiredError {
	return &ReauthRequiredError{
		APIError:  APIError{Status: 401, Message: reauthMessage},
		LoginPath: loginPath,
	}
}

// IsCanceled reports whether err came from a canceled or expired context.
// Cancellation is never wrapped in an APIError.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorMessage returns the user-facing message for any error.
func ErrorMessage(err error) string {
	var reauth *ReauthRequiredError
	if errors.As(err, &reauth) {
		return reauth.Message
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return "Unexpected error"
}

type validationDetail struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// detailMessage renders an error body's detail field.
//
//	string detail            -> verbatim
//	[{loc, msg}, ...]        -> "a.b: msg | c: msg"
//	absent, null, "" or []   -> "Request failed with status N"
//	anything else            -> "Request failed"
func detailMessage(detail json.RawMessage, status int) string {
	fallback := fmt.Sprintf("Request failed with status %d", status)

	trimmed := strings.TrimSpace(string(detail))
	if trimmed == "" || trimmed == "null" {
		return fallback
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(detail, &s); err != nil {
			return "Request failed"
		}
		if s == "" {
			return fallback
		}
		return s
	case '[':
		var items []validationDetail
		if err := json.Unmarshal(detail, &items); err != nil {
			return "Request failed"
		}
		if len(items) == 0 {
			return fallback
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			loc := make([]string, 0, len(item.Loc))
			for _, l := range item.Loc {
				loc = append(loc, fmt.Sprint(l))
			}
			parts = append(parts, strings.Join(loc, ".")+": "+item.Msg)
		}
		return strings.Join(parts, " | ")
	}
	return "Request failed"
}

func buildAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		envelope.Detail = nil
	}
	return &APIError{
		Status:  status,
		Detail:  envelope.Detail,
		Message: detailMessage(envelope.Detail, status),
	}
}
