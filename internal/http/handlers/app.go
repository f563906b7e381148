package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"editserver/internal/domain"
	"editserver/internal/edits"
	"editserver/internal/infra"
)

type App struct {
	Service *edits.Service
	Log     infra.Logger
}

func NewApp(service *edits.Service, log infra.Logger) *App {
	return &App{Service: service, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// fail maps a service error to an HTTP response. Unrecognized errors become
// an opaque 500; the detail stays in the log.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrInvalidPrompt):
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required and must be at most 2000 characters")
	case errors.Is(err, domain.ErrInvalidImage):
		a.error(w, http.StatusBadRequest, "bad_request", "image must be a base64 payload up to 10MB")
	case errors.Is(err, domain.ErrInvalidRating):
		a.error(w, http.StatusBadRequest, "bad_request", "rating must be 0 or 1, thumbs down requires text")
	case errors.Is(err, domain.ErrParentNotReady):
		a.error(w, http.StatusConflict, "parent_not_ready", "parent edit has not completed")
	case errors.Is(err, domain.ErrChainTooLong):
		a.error(w, http.StatusConflict, "chain_limit_reached", "edit chain is at maximum length")
	case errors.Is(err, domain.ErrFeedbackExists):
		a.error(w, http.StatusConflict, "feedback_exists", "feedback already submitted for this edit")
	case errors.Is(err, domain.ErrEditNotDone):
		a.error(w, http.StatusConflict, "edit_not_completed", "feedback is only accepted for completed edits")
	default:
		a.Log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
