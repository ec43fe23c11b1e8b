// Package analysis defines the interface for AI comment-thread analysis and
// its error taxonomy. Concrete implementations live under internal/platform.
package analysis

import "context"

// Comment is one scraped comment handed to the analyzer.
type Comment struct {
	Author string `json:"author"`
	Text   string `json:"text"`
	Likes  int    `json:"likes,omitempty"`
}

// Request carries a comment thread to analyze.
type Request struct {
	URL      string
	Platform string
	Comments []Comment
}

// Report is the analyzer's output for a thread.
type Report struct {
	Summary    string   `json:"summary"`
	Sentiment  string   `json:"sentiment"`
	Topics     []string `json:"topics"`
	TokensUsed int      `json:"tokens_used"`
}

// Analyzer produces a report for a comment thread.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Report, error)
}
