package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/parnexcodes/pairlink/internal/logging"
	"github.com/parnexcodes/pairlink/internal/pairing"
	"github.com/parnexcodes/pairlink/internal/phone"
)

// Pairer starts a pairing session and returns its code
type Pairer interface {
	BeginPairing(ctx context.Context, raw string) (string, error)
	Active() int
}

// Handler serves the pairing endpoints
type Handler struct {
	pairer  Pairer
	metrics http.Handler
}

// NewHandler creates a handler; metrics may be nil to leave /metrics unrouted
func NewHandler(pairer Pairer, metrics http.Handler) *Handler {
	return &Handler{pairer: pairer, metrics: metrics}
}

type codeResponse struct {
	Code string `json:"code"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

// Code answers GET /code?number= with a pairing code
func (h *Handler) Code(w http.ResponseWriter, r *http.Request) {
	code, err := h.pairer.BeginPairing(r.Context(), r.URL.Query().Get("number"))
	if err != nil {
		status, message := classify(err)
		if status >= http.StatusInternalServerError {
			logging.ErrorContext("pairing_request", err, map[string]interface{}{"status": status})
		}
		writeJSON(w, status, messageResponse{Message: message})
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{Code: code})
}

// Health reports liveness and the number of running sessions
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ActiveSessions: h.pairer.Active()})
}

// classify maps a pairing error to a status and a message safe to show the caller
func classify(err error) (int, string) {
	var vErr *phone.ValidationError
	switch {
	case errors.Is(err, pairing.ErrMissingNumber):
		return http.StatusTeapot, "Phone number is required"
	case errors.As(err, &vErr):
		return http.StatusBadRequest, "Invalid phone number provided."
	case errors.Is(err, pairing.ErrBusy):
		return http.StatusServiceUnavailable, "Too many pairing requests in progress, try again shortly"
	case errors.Is(err, pairing.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "Service Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.ErrorContext("response_write", err, nil)
	}
}
