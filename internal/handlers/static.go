package handlers

import (
	"net/http"

	"chatproxy/internal/services"
)

type StaticHandler struct {
	page services.StaticPage
}

func NewStaticHandler(page services.StaticPage) *StaticHandler {
	return &StaticHandler{page: page}
}

func (h *StaticHandler) Index(w http.ResponseWriter, r *http.Request) {
	html, ok := h.page.Contents()
	if !ok {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(services.NotFoundMessage))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}
