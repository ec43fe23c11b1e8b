package analysis

import "errors"

// Common errors returned by analyzers.
var (
	// ErrAnalysisFailed is returned when analysis fails for a general reason.
	ErrAnalysisFailed = errors.New("failed to analyze comment thread")

	// ErrInvalidResponse is returned when the model response cannot be parsed.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors worth retrying.
	ErrTransientFailure = errors.New("transient error during analysis")

	// ErrInvalidConfig is returned when the analyzer configuration is invalid.
	ErrInvalidConfig = errors.New("invalid analyzer configuration")

	// ErrEmptyThread is returned when there are no comments to analyze.
	ErrEmptyThread = errors.New("no comments to analyze")
)
