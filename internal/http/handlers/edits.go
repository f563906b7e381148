package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"editserver/internal/edits"
)

func (a *App) SubmitEdit(w http.ResponseWriter, r *http.Request) {
	var req edits.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.ParentEditUUID != "" {
		if _, err := uuid.Parse(req.ParentEditUUID); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "parent_edit_uuid must be a UUID")
			return
		}
	}
	result, err := a.Service.Submit(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, result)
}

func (a *App) EditStatus(w http.ResponseWriter, r *http.Request) {
	editUUID := chi.URLParam(r, "uuid")
	if _, err := uuid.Parse(editUUID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "edit uuid must be a UUID")
		return
	}
	st, err := a.Service.GetStatus(r.Context(), editUUID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, st)
}

func (a *App) EditChain(w http.ResponseWriter, r *http.Request) {
	editUUID := chi.URLParam(r, "uuid")
	if _, err := uuid.Parse(editUUID); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "edit uuid must be a UUID")
		return
	}
	ch, err := a.Service.GetChain(r.Context(), editUUID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, ch)
}
