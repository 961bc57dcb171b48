package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"chatproxy/internal/models"
)

const maxUpstreamBody = 8 << 20

type OpenAIProvider struct {
	httpClient *http.Client
	baseURL    string
	retries    int
	retryDelay time.Duration
}

// NewOpenAIProvider builds a chat-completion client. timeout bounds each attempt;
// retries is the number of extra attempts after a retryable failure.
func NewOpenAIProvider(baseURL string, timeout time.Duration, retries int) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		httpClient: newHTTPClient(timeout),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		retries:    retries,
		retryDelay: 500 * time.Millisecond,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 5
	transport.IdleConnTimeout = 60 * time.Second
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, call Call) (*Reply, error) {
	if call.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	body, err := json.Marshal(models.CompletionRequest{
		Model:    call.Model,
		Messages: []models.ChatMessage{{Role: "user", Content: call.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"

	var lastErr error
	var reply *Reply
	attempts := 0
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &UpstreamError{Provider: p.Name(), Attempts: attempts, Err: ctx.Err()}
			case <-time.After(p.retryDelay):
			}
			log.Printf("openai: retrying completion (attempt %d)", attempt+1)
		}
		attempts++

		reply, lastErr = p.post(ctx, url, call.APIKey, body)
		if lastErr != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		reply.Attempts = attempts
		if !retryable(reply.StatusCode) {
			return reply, nil
		}
	}

	if lastErr == nil && reply != nil {
		// Out of attempts on a retryable status; hand the last answer back.
		return reply, nil
	}
	return nil, &UpstreamError{Provider: p.Name(), Attempts: attempts, Err: lastErr}
}

func (p *OpenAIProvider) post(ctx context.Context, url, apiKey string, body []byte) (*Reply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Reply{StatusCode: resp.StatusCode, Body: data}, nil
}

// ExtractText pulls choices[0].message.content out of a completion reply.
func (p *OpenAIProvider) ExtractText(body []byte) (string, error) {
	if !json.Valid(body) {
		return "", &ParseError{Provider: p.Name(), Input: string(body), Err: errors.New("not a JSON document")}
	}
	var cr models.CompletionResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", ErrMissingContent
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == nil {
		return "", ErrMissingContent
	}
	return *cr.Choices[0].Message.Content, nil
}

// isTimeout reports whether err came from a deadline rather than a refused connection.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
