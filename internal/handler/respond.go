package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/ledger"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status code and writes it.
func WriteError(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	kind := string(appErrors.KindOf(err))
	switch {
	case errors.Is(err, ledger.ErrQueueFull), errors.Is(err, ledger.ErrClosed):
		kind = "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "cancelled"
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	WriteJSON(w, code, ErrorBody{Error: kind, Message: msg})
}

// StatusFor returns the HTTP status for a ledger error.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrQueueFull), errors.Is(err, ledger.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	switch appErrors.KindOf(err) {
	case appErrors.KindValidation:
		return http.StatusBadRequest
	case appErrors.KindNotFound:
		return http.StatusNotFound
	case appErrors.KindAuthorization:
		return http.StatusForbidden
	case appErrors.KindState, appErrors.KindStateConflict:
		return http.StatusConflict
	case appErrors.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case appErrors.KindCooldownActive:
		return http.StatusTooManyRequests
	case appErrors.KindOracle:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
