package http

import (
	"errors"
	"net/http"

	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/atinyakov/LegalLens/internal/pages"
	"github.com/atinyakov/LegalLens/internal/service"
	"github.com/atinyakov/LegalLens/internal/session"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// multipartMemory is the part of an upload kept in memory while parsing.
const multipartMemory = 8 << 20

// signedIn resolves the session and redirects when nobody is signed in.
func (h *Handler) signedIn(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	if s.Controller.State() != session.Yes {
		redirect(w, r, "/")
		return nil, false
	}
	return s, true
}

// Upload handles POST /upload with a multipart "file" field and navigates
// to the analysis of the stored document.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	s, ok := h.signedIn(w, r)
	if !ok {
		return
	}
	route := s.Controller.Navigate(models.PageUpload, models.RouteParams{})
	fail := func(status int, edit func(*pages.View)) {
		h.show(w, r, s, route, status, edit)
	}

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, func(v *pages.View) { v.Error = service.ErrFileTooLarge.Error() })
			return
		}
		fail(http.StatusBadRequest, func(v *pages.View) { v.Error = "Choose a file to upload." })
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		fail(http.StatusBadRequest, func(v *pages.View) { v.Error = "Choose a file to upload." })
		return
	}
	defer file.Close()

	doc, err := h.Documents.Upload(r.Context(), s.Tokens, header.Filename, file)
	switch {
	case errors.Is(err, service.ErrUnsupportedFile):
		fail(http.StatusUnsupportedMediaType, func(v *pages.View) { v.Error = err.Error() })
		return
	case errors.Is(err, service.ErrFileTooLarge):
		fail(http.StatusRequestEntityTooLarge, func(v *pages.View) { v.Error = err.Error() })
		return
	case err != nil:
		h.log().Error("upload failed", zap.String("filename", header.Filename), zap.Error(err))
		fail(http.StatusBadGateway, func(v *pages.View) { v.BackendNotice = backendNotice(err) })
		return
	}

	notify(s, models.NotifySuccess, "Document uploaded. Analysis is on its way.")
	next := s.Controller.Navigate(models.PageAnalysis, models.RouteParams{ID: doc.ID})
	redirect(w, r, pages.PageURL(next.Page, next.Params.ID))
}

// Ask handles POST /chat/{id} with the question form field.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	s, ok := h.signedIn(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	back := pages.PageURL(models.PageChat, id)

	_, err := h.Documents.Ask(r.Context(), s.Tokens, id, r.PostForm.Get("question"))
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		notify(s, models.NotifyError, "Type a question first.")
	case err != nil:
		h.log().Error("question failed", zap.String("document", id), zap.Error(err))
		notify(s, models.NotifyError, backendNotice(err))
	}
	redirect(w, r, back)
}
