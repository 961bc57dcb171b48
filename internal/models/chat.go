package models

// ChatRequest is the payload sent to the chat endpoint.
// Message is a pointer so a missing field can be told apart from an empty one.
type ChatRequest struct {
	Message *string `json:"message"`
}

// ChatMessage represents a single message in an upstream completion request.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest is the body posted to the chat-completion endpoint.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// CompletionResponse is the subset of the upstream reply the proxy reads.
type CompletionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CandidatesResponse is the schema the synapse frontend expects:
// candidates[0].content.parts[0].text
type CandidatesResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content CandidateContent `json:"content"`
}

type CandidateContent struct {
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

// NewCandidatesResponse wraps text in a single-candidate, single-part response.
func NewCandidatesResponse(text string) CandidatesResponse {
	return CandidatesResponse{
		Candidates: []Candidate{
			{Content: CandidateContent{Parts: []Part{{Text: text}}}},
		},
	}
}

// API Error response. Error is always a plain string; the frontends only look at it.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
