package gemini

import (
	"context"
	"strings"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadsift/threadsift/internal/analysis"
)

func testAnalyzer(t *testing.T, max int) *Analyzer {
	t.Helper()
	tmpl, err := template.New("analysis_prompt").Parse(promptTemplate)
	require.NoError(t, err)
	return &Analyzer{model: DefaultModel, max: max, tmpl: tmpl}
}

func TestBuildPromptIncludesComments(t *testing.T) {
	t.Parallel()

	a := testAnalyzer(t, 10)
	prompt, err := a.buildPrompt(analysis.Request{
		URL:      "https://example.com/t/1",
		Platform: "reddit",
		Comments: []analysis.Comment{
			{Author: "alice", Text: "great thread", Likes: 3},
			{Author: "bob", Text: "disagree"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Platform: reddit")
	assert.Contains(t, prompt, "alice: great thread (3 likes)")
	assert.Contains(t, prompt, "bob: disagree")
	assert.Contains(t, prompt, `"sentiment"`)
}

func TestBuildPromptTruncatesLargeThreads(t *testing.T) {
	t.Parallel()

	a := testAnalyzer(t, 2)
	comments := []analysis.Comment{
		{Author: "a", Text: "first"},
		{Author: "b", Text: "second"},
		{Author: "c", Text: "third"},
	}
	prompt, err := a.buildPrompt(analysis.Request{Comments: comments})
	require.NoError(t, err)

	assert.Contains(t, prompt, "first")
	assert.Contains(t, prompt, "second")
	assert.NotContains(t, prompt, "third")
	assert.Contains(t, prompt, "Comment count: 2")
}

func TestNormalizeSentiment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"positive", "positive"},
		{" Negative ", "negative"},
		{"MIXED", "mixed"},
		{"neutral", "neutral"},
		{"enthusiastic", "neutral"},
		{"", "neutral"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizeSentiment(tc.in), "input %q", tc.in)
	}
}

func TestNewAnalyzerRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewAnalyzer(context.Background(), Config{}, nil)
	require.ErrorIs(t, err, analysis.ErrInvalidConfig)
}

func TestPromptTemplateParses(t *testing.T) {
	t.Parallel()

	_, err := template.New("p").Parse(promptTemplate)
	require.NoError(t, err)
	assert.True(t, strings.Contains(promptTemplate, "JSON object only"))
}
