package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chatproxy/internal/models"
)

func newTestProvider(url string, retries int) *OpenAIProvider {
	p := NewOpenAIProvider(url, 2*time.Second, retries)
	p.retryDelay = time.Millisecond
	return p
}

func TestOpenAIProvider_Complete_Success(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer Authorization header, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type")
		}

		var req models.CompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o-mini" {
			t.Errorf("expected model gpt-4o-mini, got %s", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != `say "hi"` {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Write([]byte(helloCompletion))
	}))
	defer server.Close()

	p := newTestProvider(server.URL+"/", 1)
	reply, err := p.Complete(context.Background(), Call{APIKey: "test-key", Model: "gpt-4o-mini", Prompt: `say "hi"`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reply.OK() || string(reply.Body) != helloCompletion {
		t.Errorf("unexpected reply: %d %s", reply.StatusCode, reply.Body)
	}
	if reply.Attempts != 1 || atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected exactly one attempt, got %d (hits %d)", reply.Attempts, hits)
	}
}

func TestOpenAIProvider_Complete_RetriesOnceOn5xx(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(helloCompletion))
	}))
	defer server.Close()

	reply, err := newTestProvider(server.URL, 1).Complete(context.Background(), Call{APIKey: "k", Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reply.OK() || reply.Attempts != 2 {
		t.Errorf("expected success on second attempt, got status %d attempts %d", reply.StatusCode, reply.Attempts)
	}
}

func TestOpenAIProvider_Complete_NoRetryOn4xx(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	reply, err := newTestProvider(server.URL, 1).Complete(context.Background(), Call{APIKey: "k", Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 relayed, got %d", reply.StatusCode)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected a single attempt, got %d", hits)
	}
}

func TestOpenAIProvider_Complete_GivesUpAfterRetries(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	reply, err := newTestProvider(server.URL, 1).Complete(context.Background(), Call{APIKey: "k", Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.StatusCode != http.StatusBadGateway || reply.Attempts != 2 {
		t.Errorf("expected last 502 after 2 attempts, got %d after %d", reply.StatusCode, reply.Attempts)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected 2 hits, got %d", hits)
	}
}

func TestOpenAIProvider_Complete_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestProvider(url, 1).Complete(context.Background(), Call{APIKey: "k", Prompt: "p"})
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if uerr.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", uerr.Attempts)
	}
}

func TestOpenAIProvider_Complete_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := NewOpenAIProvider(server.URL, 50*time.Millisecond, 0)
	_, err := p.Complete(context.Background(), Call{APIKey: "k", Prompt: "p"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !isTimeout(err) {
		t.Errorf("expected a timeout, got %v", err)
	}
}

func TestOpenAIProvider_Complete_MissingKey(t *testing.T) {
	_, err := NewOpenAIProvider("http://127.0.0.1:1", time.Second, 0).Complete(context.Background(), Call{Prompt: "p"})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestOpenAIProvider_ExtractText(t *testing.T) {
	p := &OpenAIProvider{}

	text, err := p.ExtractText([]byte(helloCompletion))
	if err != nil || text != "hello" {
		t.Errorf("expected hello, got %q (%v)", text, err)
	}

	_, err = p.ExtractText([]byte("nope"))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Errorf("expected ParseError, got %v", err)
	}

	_, err = p.ExtractText([]byte(`{"choices":[]}`))
	if !errors.Is(err, ErrMissingContent) {
		t.Errorf("expected ErrMissingContent, got %v", err)
	}
}

func TestGeminiProvider_ExtractText(t *testing.T) {
	p := &GeminiProvider{}

	text, err := p.ExtractText([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`))
	if err != nil || text != "hello" {
		t.Errorf("expected hello, got %q (%v)", text, err)
	}

	_, err = p.ExtractText([]byte(`{"candidates":[]}`))
	if !errors.Is(err, ErrMissingContent) {
		t.Errorf("expected ErrMissingContent, got %v", err)
	}
}

func TestGeminiProvider_WithoutKey(t *testing.T) {
	p, err := NewGeminiProvider(context.Background(), "", "gemini-2.0-flash", time.Second, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	if _, err := p.Complete(context.Background(), Call{Prompt: "hi"}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}
