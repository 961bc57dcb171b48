package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"chatproxy/internal/services"
)

type chatProxy interface {
	Handle(ctx context.Context, in services.ChatInput) services.Result
}

type ChatHandler struct {
	proxy        chatProxy
	maxBodyBytes int64
}

func NewChatHandler(proxy chatProxy, maxBodyBytes int64) *ChatHandler {
	return &ChatHandler{proxy: proxy, maxBodyBytes: maxBodyBytes}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("REQUEST_TOO_LARGE", "request too large", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("MALFORMED_REQUEST", "malformed request", r))
		return
	}

	session, _ := uuid.Parse(r.Header.Get("X-Session-ID"))

	res := h.proxy.Handle(r.Context(), services.ChatInput{
		Body:      body,
		RequestID: r.Header.Get("X-Request-ID"),
		SessionID: session,
	})

	writeRawJSON(w, res.Status, res.Body)
}
