package services

import (
	"strings"
	"unicode"
)

// Template wraps a user message between a fixed prefix and suffix.
type Template struct {
	Prefix string
	Suffix string
}

// TemplateSource yields the template to use for the next request.
type TemplateSource interface {
	Current() Template
}

// Current lets a fixed Template act as its own source.
func (t Template) Current() Template { return t }

// Render embeds the sanitized message. The message sits inside single quotes
// in the synapse template, so quotes and backslashes are escaped.
func (t Template) Render(message string, maxRunes int) string {
	return t.Prefix + SanitizeMessage(message, maxRunes) + t.Suffix
}

// SanitizeMessage drops control characters other than newline and tab,
// escapes backslashes and single quotes, and caps the length at maxRunes
// (zero or less means no cap).
func SanitizeMessage(message string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(message))

	n := 0
	for _, r := range message {
		if maxRunes > 0 && n >= maxRunes {
			break
		}
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\'':
			b.WriteString(`\'`)
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
		n++
	}
	return strings.TrimSpace(b.String())
}

// SynapseTemplate asks the model for a startup idea plus a comparables analysis,
// answered as a single JSON document.
var SynapseTemplate = Template{
	Prefix: `Act as the "Synergistic Market Cap Hyper-Projection Nexus (Synapse-MX)", an unbiased AI financial analyst.
Your task is to:
1. Generate a highly buzzword-heavy, future-proof startup idea that aligns with the user's input: '`,
	Suffix: `'. If the input is too vague, generate a cutting-edge, general tech startup (e.g., "Decentralized Quantum Edge Computing Platform").
2. Analyze the market for this startup.
3. Find 3 to 5 closely aligned public companies (competitors or analogous businesses) for comparison. Use realistic, illustrative, or current financial data.
4. Provide the required financial metrics for the comparable companies: Revenue (in billions, e.g., $15.5B), Market Cap (in billions, e.g., $150B), 3-year Revenue Projection (YoY growth rate, e.g., +15%), and P/E Ratio (e.g., 35.2x).
5. Provide a final, unbiased assessment (GOOD or BAD idea) and a rationale.

You MUST respond with a single JSON object (AS PLAIN TEXT) following this exact schema. DO NOT include any introductory or concluding text, or markdown code blocks (e.g., ` + "```json" + `).

{
  "startupName": "...",
  "startupIdea": "...",
  "assessment": "GOOD" or "BAD",
  "rationale": "...",
  "comparables": [
    {
      "company": "...",
      "industry": "...",
      "revenueB": "...",
      "marketCapB": "...",
      "projectionYoY": "...",
      "peRatio": "..."
    }
  ],
  "metricsExplanation": "A brief, buzzword-heavy explanation of why these metrics matter for the startup's Total Addressable Market (TAM) and long-term Scalability Matrix."
}
`,
}
