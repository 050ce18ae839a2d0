package api

import (
	"errors"
	"fmt"
	"net/http"

	"code-relay-backend/internal/queue"
	"code-relay-backend/internal/websocket"
)

type HTTPError struct {
	StatusCode int
	Message    string
	ErrorLog   error
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.ErrorLog
}

type ApiError struct {
	Error string `json:"message"`
}

// RelayError maps relay failures onto HTTP statuses.
func RelayError(err error) *HTTPError {
	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, websocket.ErrUnknownSession):
		return &HTTPError{StatusCode: http.StatusNotFound, Message: "Session not found", ErrorLog: err}
	case errors.Is(err, websocket.ErrSessionClosed):
		return &HTTPError{StatusCode: http.StatusGone, Message: "Session closed", ErrorLog: err}
	case errors.Is(err, websocket.ErrMalformedFrame):
		return &HTTPError{StatusCode: http.StatusBadRequest, Message: "Malformed frame", ErrorLog: err}
	case errors.Is(err, websocket.ErrRateLimited):
		return &HTTPError{StatusCode: http.StatusTooManyRequests, Message: "Too many frames", ErrorLog: err}
	case errors.Is(err, websocket.ErrHubClosed), errors.Is(err, queue.ErrQueueClosed):
		return &HTTPError{StatusCode: http.StatusServiceUnavailable, Message: "Relay unavailable", ErrorLog: err}
	default:
		return &HTTPError{StatusCode: http.StatusInternalServerError, Message: "Internal server error", ErrorLog: err}
	}
}

func MethodNotAllowed(method string) *HTTPError {
	return &HTTPError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    "Method not allowed.",
		ErrorLog:   fmt.Errorf("method %s not allowed", method),
	}
}
