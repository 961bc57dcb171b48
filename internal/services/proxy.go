package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"chatproxy/internal/models"
)

// ProxyConfig is everything the chat proxy needs to know about its deployment.
// It is built once at startup; the proxy never reads the environment.
type ProxyConfig struct {
	Variant         string
	APIKey          string
	APIKeyName      string // environment variable named in the missing-key error
	Model           string
	UseTemplate     bool
	Reshape         bool
	MaxMessageRunes int
}

// EventPublisher receives pipeline stage updates for live subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, update models.StatusUpdate)
}

// AuditSink receives one record per finished exchange.
type AuditSink interface {
	Submit(ex models.Exchange)
}

// UpstreamObserver records the outcome of each upstream call.
type UpstreamObserver interface {
	ObserveUpstream(provider, model string, status int, elapsed time.Duration)
}

type ChatProxy struct {
	cfg      ProxyConfig
	provider Provider
	template TemplateSource
	events   EventPublisher
	audit    AuditSink
	observer UpstreamObserver
}

type ProxyOption func(*ChatProxy)

func WithEvents(p EventPublisher) ProxyOption {
	return func(c *ChatProxy) { c.events = p }
}

func WithAudit(s AuditSink) ProxyOption {
	return func(c *ChatProxy) { c.audit = s }
}

func WithObserver(o UpstreamObserver) ProxyOption {
	return func(c *ChatProxy) { c.observer = o }
}

// WithTemplate replaces the default synapse template. Pass a *TemplateFile
// to pick up edits without a restart.
func WithTemplate(t TemplateSource) ProxyOption {
	return func(c *ChatProxy) { c.template = t }
}

func NewChatProxy(cfg ProxyConfig, provider Provider, opts ...ProxyOption) *ChatProxy {
	c := &ChatProxy{
		cfg:      cfg,
		provider: provider,
		template: SynapseTemplate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatInput is the transport-independent view of a POST /api/chat request.
type ChatInput struct {
	Body      []byte
	RequestID string
	SessionID uuid.UUID // uuid.Nil when the client did not ask for live updates
}

// Result is what the transport writes back. Body is always JSON.
type Result struct {
	Status    int
	Body      []byte
	ErrorCode string
}

// exchange carries per-request bookkeeping through Handle.
type exchange struct {
	in       ChatInput
	start    time.Time
	record   models.Exchange
	attempts int
}

// Handle runs one chat request end to end. It never panics on bad input
// or a misbehaving upstream; every failure becomes a JSON error Result.
func (c *ChatProxy) Handle(ctx context.Context, in ChatInput) Result {
	ex := &exchange{
		in:    in,
		start: time.Now(),
		record: models.Exchange{
			ID:        uuid.New(),
			RequestID: in.RequestID,
			Variant:   c.cfg.Variant,
			Provider:  c.provider.Name(),
			Model:     c.cfg.Model,
		},
	}
	c.publish(ctx, in, models.StageReceived, 0, "")

	res := c.handle(ctx, ex)

	stage := models.StageCompleted
	if res.ErrorCode != "" {
		stage = models.StageFailed
	}
	c.publish(ctx, in, stage, res.Status, res.ErrorCode)
	c.record(ex, res)
	return res
}

func (c *ChatProxy) handle(ctx context.Context, ex *exchange) Result {
	if len(bytes.TrimSpace(ex.in.Body)) == 0 {
		return c.fail(ex, http.StatusBadRequest, "EMPTY_BODY", "Empty request body")
	}

	var req models.ChatRequest
	if err := json.Unmarshal(ex.in.Body, &req); err != nil || req.Message == nil {
		return c.fail(ex, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON or missing 'message'")
	}
	message := *req.Message
	ex.record.Fingerprint = Fingerprint(message)

	if c.cfg.APIKey == "" {
		return c.fail(ex, http.StatusInternalServerError, "CONFIG_ERROR", c.missingKeyMessage())
	}

	prompt := message
	if c.cfg.UseTemplate {
		prompt = c.template.Current().Render(message, c.cfg.MaxMessageRunes)
	}
	ex.record.PromptLength = len(prompt)

	c.publish(ctx, ex.in, models.StageForwarded, 0, "")

	started := time.Now()
	reply, err := c.provider.Complete(ctx, Call{
		APIKey: c.cfg.APIKey,
		Model:  c.cfg.Model,
		Prompt: prompt,
	})
	status := 0
	if reply != nil {
		status = reply.StatusCode
		ex.attempts = reply.Attempts
	}
	if c.observer != nil {
		c.observer.ObserveUpstream(c.provider.Name(), c.cfg.Model, status, time.Since(started))
	}

	if err != nil {
		var uerr *UpstreamError
		if errors.As(err, &uerr) {
			ex.attempts = uerr.Attempts
		}
		log.Printf("chat %s: upstream call failed: %v", ex.in.RequestID, err)
		switch {
		case errors.Is(err, ErrNoAPIKey):
			return c.fail(ex, http.StatusInternalServerError, "CONFIG_ERROR", c.missingKeyMessage())
		case isTimeout(err):
			return c.fail(ex, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "upstream request timed out")
		default:
			return c.fail(ex, http.StatusBadGateway, "UPSTREAM_ERROR", "upstream request failed")
		}
	}

	if !c.cfg.Reshape {
		return c.relay(ex, reply)
	}
	return c.reshape(ex, reply)
}

// relay hands the upstream body back untouched.
func (c *ChatProxy) relay(ex *exchange, reply *Reply) Result {
	if reply.OK() {
		return Result{Status: http.StatusOK, Body: reply.Body}
	}
	log.Printf("chat %s: upstream answered HTTP %d", ex.in.RequestID, reply.StatusCode)
	if json.Valid(reply.Body) {
		return Result{Status: http.StatusBadGateway, Body: reply.Body, ErrorCode: "UPSTREAM_ERROR"}
	}
	return c.fail(ex, http.StatusBadGateway, "UPSTREAM_ERROR", fmt.Sprintf("upstream returned HTTP %d", reply.StatusCode))
}

// reshape extracts the completion text and re-wraps it in the candidates schema.
func (c *ChatProxy) reshape(ex *exchange, reply *Reply) Result {
	if !reply.OK() {
		log.Printf("chat %s: upstream answered HTTP %d", ex.in.RequestID, reply.StatusCode)
		return c.fail(ex, http.StatusBadGateway, "UPSTREAM_ERROR", fmt.Sprintf("upstream returned HTTP %d", reply.StatusCode))
	}

	text, err := c.provider.ExtractText(reply.Body)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			log.Printf("chat %s: %v", ex.in.RequestID, perr)
			return c.fail(ex, http.StatusBadGateway, "INVALID_UPSTREAM_JSON", "invalid json from upstream")
		}
		return c.fail(ex, http.StatusBadGateway, "MISSING_CONTENT", "missing content")
	}

	body, err := marshalCompact(models.NewCandidatesResponse(text))
	if err != nil {
		return c.fail(ex, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode response")
	}
	return Result{Status: http.StatusOK, Body: body}
}

func (c *ChatProxy) missingKeyMessage() string {
	if c.cfg.APIKeyName == "" {
		return "API key missing"
	}
	return c.cfg.APIKeyName + " missing"
}

func (c *ChatProxy) fail(ex *exchange, status int, code, message string) Result {
	return Result{
		Status:    status,
		Body:      ErrorBody(code, message, ex.in.RequestID),
		ErrorCode: code,
	}
}

func (c *ChatProxy) publish(ctx context.Context, in ChatInput, stage string, status int, code string) {
	if c.events == nil || in.SessionID == uuid.Nil {
		return
	}
	c.events.Publish(ctx, models.StatusUpdate{
		SessionID: in.SessionID,
		RequestID: in.RequestID,
		Stage:     stage,
		Status:    status,
		ErrorCode: code,
	})
}

func (c *ChatProxy) record(ex *exchange, res Result) {
	if c.audit == nil {
		return
	}
	rec := ex.record
	rec.Status = res.Status
	rec.Attempts = ex.attempts
	rec.DurationMS = time.Since(ex.start).Milliseconds()
	rec.CreatedAt = ex.start
	if res.ErrorCode != "" {
		code := res.ErrorCode
		rec.ErrorCode = &code
	}
	c.audit.Submit(rec)
}

// ErrorBody renders the {"error": "..."} object every failure path returns.
func ErrorBody(code, message, requestID string) []byte {
	body, err := marshalCompact(models.ErrorResponse{Error: message, Code: code, RequestID: requestID})
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return body
}

// Fingerprint is a stable, non-reversible digest of a user message.
func Fingerprint(message string) string {
	sum := blake2b.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// marshalCompact encodes v without HTML escaping and without a trailing newline.
func marshalCompact(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
