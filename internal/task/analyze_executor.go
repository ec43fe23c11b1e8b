package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/threadsift/threadsift/internal/analysis"
	"github.com/threadsift/threadsift/internal/retry"
)

// AnalyzeRetry configures the retry policy around analyzer calls.
type AnalyzeRetry struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (c AnalyzeRetry) withDefaults() AnalyzeRetry {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// NewAnalyzeExecutor builds the executor for analyze tasks: it runs the
// supplied comment thread through the analyzer, retrying transient model
// failures, and reports token usage into the record. The comments live only
// in this closure, which is exactly why interrupted analyze tasks cannot be
// resumed after a restart.
func NewAnalyzeExecutor(
	svc *Service,
	analyzer analysis.Analyzer,
	comments []analysis.Comment,
	cfg AnalyzeRetry,
	logger *slog.Logger,
) Executor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, rec Record, tok *CancelToken) (Result, error) {
		log := logger.With("task_id", rec.ID, "platform", rec.Platform)
		svc.UpdateDetailedProgress(rec.ID, ProgressUpdate{
			Stage:        "initializing",
			StageMessage: "preparing analysis",
		})

		report, err := retry.Do(ctx, retry.Config[*analysis.Report]{
			MaxAttempts:    cfg.MaxAttempts,
			InitialDelay:   cfg.InitialDelay,
			MaxDelay:       cfg.MaxDelay,
			RetryableKinds: []error{analysis.ErrTransientFailure},
			OnRetry: func(attempt int, err error) {
				log.Warn("analysis attempt failed, retrying",
					"attempt", attempt, "error", err)
				svc.UpdateDetailedProgress(rec.ID, ProgressUpdate{
					Stage:        "analyzing",
					StageMessage: "retrying analysis",
				})
			},
		}, func(ctx context.Context) (*analysis.Report, error) {
			if tok.Cancelled() {
				return nil, ErrCancelled
			}
			svc.UpdateDetailedProgress(rec.ID, ProgressUpdate{
				Stage:        "analyzing",
				Current:      0,
				Total:        0,
				StageMessage: "analyzing comment thread",
			})
			return analyzer.Analyze(ctx, analysis.Request{
				URL:      rec.URL,
				Platform: rec.Platform,
				Comments: comments,
			})
		})
		if err != nil {
			if errors.Is(err, context.Canceled) && tok.Cancelled() {
				return Result{}, ErrCancelled
			}
			return Result{}, err
		}

		log.Info("thread analyzed",
			"comments", len(comments),
			"sentiment", report.Sentiment,
			"tokens_used", report.TokensUsed)
		svc.UpdateProgress(rec.ID, 95, report.Summary)
		return Result{TokensUsed: report.TokensUsed, ItemCount: len(comments)}, nil
	}
}
