package handlers

import (
	"log"
	"net/http"

	"github.com/oshop/backoffice/internal/web"
)

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// render drains the flash queues and the authenticated user into the page
// data, then writes the view.
func (h *UserHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data web.Data) {
	success, errs, err := h.sessions.PopFlashes(w, r)
	if err != nil {
		h.logError(r, err)
	}
	data.Success = success
	data.Errors = errs

	if user, ok := h.sessions.CurrentUser(r); ok {
		data.CurrentUser = &user
	}

	if err := h.views.Render(w, status, page, data); err != nil {
		h.logError(r, err)
	}
}

// serverError renders the generic failure page for errors the visitor cannot
// fix by retrying the form.
func (h *UserHandler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, err)
	if err := h.views.Render(w, http.StatusInternalServerError, "error", web.Data{Title: "Error"}); err != nil {
		h.logError(r, err)
	}
}

func (h *UserHandler) flashSuccess(w http.ResponseWriter, r *http.Request, msg string) {
	if err := h.sessions.AddSuccess(w, r, msg); err != nil {
		h.logError(r, err)
	}
}

func (h *UserHandler) flashError(w http.ResponseWriter, r *http.Request, msg string) {
	if err := h.sessions.AddError(w, r, msg); err != nil {
		h.logError(r, err)
	}
}

func (h *UserHandler) logError(r *http.Request, err error) {
	log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
}
