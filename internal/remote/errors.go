package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuthentication indicates rejected credentials or a token rejected after re-authentication.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRemote indicates a non-2xx response without a more specific kind.
	ErrRemote = errors.New("remote error")
	// ErrMalformedResponse indicates a 2xx response whose body could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError carries the status code and the server's embedded error text.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return ErrRemote
}

// newStatusError extracts response.error from a JSON error body, falling back to the raw text.
func newStatusError(status int, body []byte) *StatusError {
	var payload struct {
		Response struct {
			Error string `json:"error"`
		} `json:"response"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.Response.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &StatusError{StatusCode: status, Message: msg}
}
