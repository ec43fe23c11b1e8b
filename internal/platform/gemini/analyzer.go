package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"google.golang.org/genai"

	"github.com/threadsift/threadsift/internal/analysis"
)

// Config holds the settings for the Gemini analyzer.
type Config struct {
	APIKey string
	Model  string

	// MaxComments caps how many comments are inlined into the prompt.
	// Zero means DefaultMaxComments.
	MaxComments int
}

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// DefaultMaxComments bounds prompt size for very large threads.
const DefaultMaxComments = 500

// promptTemplate renders the thread into the analysis prompt. The model is
// instructed to answer with bare JSON matching responseSchema.
const promptTemplate = `You are analyzing a social media comment thread.

Platform: {{.Platform}}
Thread URL: {{.URL}}
Comment count: {{len .Comments}}

Comments:
{{range .Comments}}- {{.Author}}: {{.Text}}{{if .Likes}} ({{.Likes}} likes){{end}}
{{end}}
Respond with a JSON object only, no prose, in this exact shape:
{"summary": "<2-4 sentence summary of the discussion>",
 "sentiment": "<one of: positive, negative, mixed, neutral>",
 "topics": ["<up to 5 main topics>"]}`

// responseSchema is the JSON shape the model is asked to produce.
type responseSchema struct {
	Summary   string   `json:"summary"`
	Sentiment string   `json:"sentiment"`
	Topics    []string `json:"topics"`
}

// Analyzer calls the Gemini API to produce thread reports.
type Analyzer struct {
	client *genai.Client
	model  string
	max    int
	tmpl   *template.Template
	logger *slog.Logger
}

// NewAnalyzer validates the configuration and creates the API client.
func NewAnalyzer(ctx context.Context, cfg Config, logger *slog.Logger) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", analysis.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxComments <= 0 {
		cfg.MaxComments = DefaultMaxComments
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	tmpl, err := template.New("analysis_prompt").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	return &Analyzer{
		client: client,
		model:  cfg.Model,
		max:    cfg.MaxComments,
		tmpl:   tmpl,
		logger: logger.With("component", "gemini_analyzer", "model", cfg.Model),
	}, nil
}

// Analyze runs one model call for the thread. Transient API failures come
// back wrapped in analysis.ErrTransientFailure so callers can retry them;
// malformed or blocked responses are permanent.
func (a *Analyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Report, error) {
	if len(req.Comments) == 0 {
		return nil, analysis.ErrEmptyThread
	}

	prompt, err := a.buildPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrAnalysisFailed, err)
	}

	a.logger.DebugContext(ctx, "calling gemini",
		"comments", len(req.Comments),
		"prompt_length", len(prompt))

	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		// API-level failures (network, rate limits, 5xx) are worth retrying.
		return nil, fmt.Errorf("%w: %v", analysis.ErrTransientFailure, err)
	}

	report, err := a.parseResponse(resp)
	if err != nil {
		return nil, err
	}
	report.TokensUsed = tokensUsed(resp)

	a.logger.InfoContext(ctx, "thread analysis complete",
		"sentiment", report.Sentiment,
		"topics", len(report.Topics),
		"tokens_used", report.TokensUsed)
	return report, nil
}

// Model reports the configured model name.
func (a *Analyzer) Model() string {
	return a.model
}

func (a *Analyzer) buildPrompt(req analysis.Request) (string, error) {
	comments := req.Comments
	if len(comments) > a.max {
		comments = comments[:a.max]
	}
	var buf bytes.Buffer
	err := a.tmpl.Execute(&buf, analysis.Request{
		URL:      req.URL,
		Platform: req.Platform,
		Comments: comments,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (a *Analyzer) parseResponse(resp *genai.GenerateContentResponse) (*analysis.Report, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", analysis.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: finish reason safety", analysis.ErrContentBlocked)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", analysis.ErrInvalidResponse)
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrInvalidResponse, err)
	}
	if parsed.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary", analysis.ErrInvalidResponse)
	}

	return &analysis.Report{
		Summary:   parsed.Summary,
		Sentiment: normalizeSentiment(parsed.Sentiment),
		Topics:    parsed.Topics,
	}, nil
}

func tokensUsed(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata == nil {
		return 0
	}
	return int(resp.UsageMetadata.TotalTokenCount)
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "negative", "mixed", "neutral":
		return strings.ToLower(strings.TrimSpace(s))
	default:
		return "neutral"
	}
}

var _ analysis.Analyzer = (*Analyzer)(nil)
