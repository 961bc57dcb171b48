package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"chatproxy/internal/handlers"
	"chatproxy/internal/middleware"
)

// Options wires the optional endpoints; nil handlers are not mounted.
type Options struct {
	Static   *handlers.StaticHandler
	Chat     *handlers.ChatHandler
	Metrics  http.Handler
	WS       http.HandlerFunc
	Observer middleware.RequestObserver
}

// New builds the relay variant's HTTP surface.
func New(opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	if opts.Observer != nil {
		r.Use(middleware.Metrics(opts.Observer))
	}
	r.Use(middleware.CORS)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.NotFound)

	// Health check
	r.Get("/health", handlers.Health)

	if opts.Static != nil {
		r.Get("/", opts.Static.Index)
	}
	if opts.Chat != nil {
		r.Post("/api/chat", opts.Chat.Chat)
	}
	if opts.WS != nil {
		r.Get("/api/ws", opts.WS)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return r
}

// NewOps builds the side listener the socket variants use for the
// endpoints a raw accept loop cannot serve (metrics scraping, websockets).
func NewOps(opts Options) http.Handler {
	return New(Options{Metrics: opts.Metrics, WS: opts.WS})
}
