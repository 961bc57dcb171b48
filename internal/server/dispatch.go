package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"chatproxy/internal/rawhttp"
	"chatproxy/internal/services"
)

// Route labels used for logging and metrics.
const (
	RouteStatic    = "/"
	RouteChat      = "/api/chat"
	RouteHealth    = "/health"
	RoutePreflight = "preflight"
	RouteNotFound  = "not_found"
	RouteMalformed = "malformed"
)

// ChatHandler is the part of the chat proxy the dispatcher needs.
type ChatHandler interface {
	Handle(ctx context.Context, in services.ChatInput) services.Result
}

// Dispatcher classifies a parsed request and produces its response.
type Dispatcher struct {
	page services.StaticPage
	chat ChatHandler
}

func NewDispatcher(page services.StaticPage, chat ChatHandler) *Dispatcher {
	return &Dispatcher{page: page, chat: chat}
}

// Dispatch routes req. It returns the response and the route label it matched.
func (d *Dispatcher) Dispatch(ctx context.Context, req *rawhttp.Request) (*rawhttp.Response, string) {
	switch {
	case req.Method == http.MethodOptions:
		return preflight(), RoutePreflight
	case req.Method == http.MethodGet && req.Path == "/":
		return d.static(), RouteStatic
	case req.Method == http.MethodPost && req.Path == "/api/chat":
		return d.chatResponse(ctx, req), RouteChat
	case req.Method == http.MethodGet && req.Path == "/health":
		return rawhttp.JSON(http.StatusOK, []byte(`{"status":"ok"}`)), RouteHealth
	default:
		return rawhttp.Text(http.StatusNotFound, "Not Found"), RouteNotFound
	}
}

func (d *Dispatcher) static() *rawhttp.Response {
	html, ok := d.page.Contents()
	if !ok {
		return rawhttp.Text(http.StatusNotFound, services.NotFoundMessage)
	}
	return &rawhttp.Response{
		Status:      http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
	}
}

func (d *Dispatcher) chatResponse(ctx context.Context, req *rawhttp.Request) *rawhttp.Response {
	requestID := services.RequestIDOrNew(req.Header.Get("X-Request-ID"))
	session, _ := uuid.Parse(req.Header.Get("X-Session-ID"))

	res := d.chat.Handle(ctx, services.ChatInput{
		Body:      req.Body,
		RequestID: requestID,
		SessionID: session,
	})

	resp := rawhttp.JSON(res.Status, res.Body)
	resp.Header = http.Header{"X-Request-Id": {requestID}}
	return resp
}

func preflight() *rawhttp.Response {
	return &rawhttp.Response{
		Status: http.StatusOK,
		Header: http.Header{
			"Access-Control-Allow-Methods": {"POST, GET, OPTIONS"},
			"Access-Control-Allow-Headers": {"Content-Type"},
		},
	}
}
