package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"editserver/internal/edits"
)

type feedbackResponse struct {
	EditUUID  string    `json:"edit_uuid"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text,omitempty"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *App) CreateFeedback(w http.ResponseWriter, r *http.Request) {
	var req edits.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if _, err := uuid.Parse(req.EditUUID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "edit_uuid must be a UUID")
		return
	}
	req.UserIP = clientIP(r)
	fb, err := a.Service.CreateFeedback(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, feedbackResponse{
		EditUUID:  fb.EditUUID,
		Rating:    fb.Rating,
		Text:      fb.Text,
		Country:   fb.Country,
		CreatedAt: fb.CreatedAt,
	})
}

func (a *App) GetFeedback(w http.ResponseWriter, r *http.Request) {
	editUUID := chi.URLParam(r, "edit_uuid")
	if _, err := uuid.Parse(editUUID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "edit uuid must be a UUID")
		return
	}
	fb, err := a.Service.GetFeedback(r.Context(), editUUID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, feedbackResponse{
		EditUUID:  fb.EditUUID,
		Rating:    fb.Rating,
		Text:      fb.Text,
		Country:   fb.Country,
		CreatedAt: fb.CreatedAt,
	})
}
