package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"chatproxy/internal/models"
)

// generateFunc performs one GenerateContent round trip.
type generateFunc func(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error)

// GeminiProvider talks to Gemini through the official SDK and renders
// every answer in the candidates schema, so passthrough and reshape agree.
type GeminiProvider struct {
	client     *genai.Client
	model      string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	generate   generateFunc
}

// NewGeminiProvider returns a provider without a client when apiKey is empty;
// its Complete then fails with ErrNoAPIKey. timeout bounds each attempt;
// retries is the number of extra attempts after a retryable failure.
func NewGeminiProvider(ctx context.Context, apiKey, model string, timeout time.Duration, retries int) (*GeminiProvider, error) {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	p := &GeminiProvider{
		model:      model,
		timeout:    timeout,
		retries:    retries,
		retryDelay: 500 * time.Millisecond,
	}
	if apiKey == "" {
		return p, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p.client = client
	p.generate = func(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error) {
		return client.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	}
	return p, nil
}

func (p *GeminiProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) Complete(ctx context.Context, call Call) (*Reply, error) {
	if p.generate == nil {
		return nil, ErrNoAPIKey
	}
	name := call.Model
	if name == "" {
		name = p.model
	}

	var (
		resp     *genai.GenerateContentResponse
		lastErr  error
		attempts int
	)
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &UpstreamError{Provider: p.Name(), Attempts: attempts, Err: ctx.Err()}
			case <-time.After(p.retryDelay):
			}
			log.Printf("gemini: retrying completion (attempt %d)", attempt+1)
		}
		attempts++

		resp, lastErr = p.attempt(ctx, name, call.Prompt)
		if lastErr == nil {
			break
		}

		var gerr *googleapi.Error
		if errors.As(lastErr, &gerr) && gerr.Code > 0 {
			if retryable(gerr.Code) && attempt < p.retries {
				continue
			}
			body, _ := json.Marshal(models.ErrorResponse{Error: gerr.Message, Code: "UPSTREAM_ERROR"})
			return &Reply{StatusCode: gerr.Code, Body: body, Attempts: attempts}, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		return nil, &UpstreamError{Provider: p.Name(), Attempts: attempts, Err: lastErr}
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Printf("WARNING: Gemini candidate %d stopped due to %s", i, cand.FinishReason)
		}
	}

	body, err := marshalCompact(models.NewCandidatesResponse(extractText(resp)))
	if err != nil {
		return nil, err
	}
	return &Reply{StatusCode: 200, Body: body, Attempts: attempts}, nil
}

// attempt runs one call under its own deadline. The SDK may report the
// deadline as a transport status, so it is rewrapped as DeadlineExceeded.
func (p *GeminiProvider) attempt(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.generate(attemptCtx, model, prompt)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("gemini attempt timed out after %s: %w (%v)", p.timeout, context.DeadlineExceeded, err)
	}
	return resp, err
}

// ExtractText reads candidates[0].content.parts[0].text.
func (p *GeminiProvider) ExtractText(body []byte) (string, error) {
	if !json.Valid(body) {
		return "", &ParseError{Provider: p.Name(), Input: string(body), Err: errors.New("not a JSON document")}
	}
	var cr models.CandidatesResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", ErrMissingContent
	}
	if len(cr.Candidates) == 0 || len(cr.Candidates[0].Content.Parts) == 0 {
		return "", ErrMissingContent
	}
	return cr.Candidates[0].Content.Parts[0].Text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
