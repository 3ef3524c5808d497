package handlers

import (
	"net/http"
	"strconv"

	"github.com/marcogenualdo/session-demo/internal/middleware"
)

// EventHandler receives the browser events posted by the page script.
type EventHandler struct{}

func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

func (h *EventHandler) Activity(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	kind := r.FormValue("kind")
	if kind == "" {
		kind = "activity"
	}
	c.Activity(kind)
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	hidden, err := strconv.ParseBool(r.FormValue("hidden"))
	if err != nil {
		http.Error(w, "hidden must be true or false", http.StatusBadRequest)
		return
	}
	c.Visibility(r.Context(), hidden)
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventHandler) PageShow(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	persisted, _ := strconv.ParseBool(r.FormValue("persisted"))
	c.PageShow(r.Context(), persisted)
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventHandler) PageHide(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.GetController(r.Context())
	if !ok {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	c.PageHide()
	w.WriteHeader(http.StatusNoContent)
}
