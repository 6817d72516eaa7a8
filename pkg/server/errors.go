package server

import (
	"errors"
	"net/http"

	"github.com/entrhq/hammer/pkg/dispatch"
	"github.com/entrhq/hammer/pkg/session"
)

// statusFor maps a dispatch error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrUnknownAction), errors.Is(err, dispatch.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrURLNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, session.ErrSessionLimit), errors.Is(err, session.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// detailFor renders the client-facing failure message.
func detailFor(req *dispatch.Request, err error) string {
	switch statusFor(err) {
	case http.StatusNotFound:
		return "❌ Session " + req.SessionID + " not found"
	case http.StatusBadRequest:
		if errors.Is(err, dispatch.ErrUnknownAction) {
			return "❌ Unknown action: " + req.Action
		}
		return "❌ " + err.Error()
	case http.StatusInternalServerError:
		return "❌ Browser error: " + err.Error()
	default:
		return "❌ " + err.Error()
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action,omitempty"`
	Detail  string `json:"detail"`
}
