package ingest

import (
	"time"

	"github.com/neuralstark/kbindex/internal/extract"
)

// RetryPolicy bounds how often a failing job is re-attempted and how long to
// wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy retries three times with ten seconds between attempts.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 10 * time.Second}

// Retryable reports whether a failure is worth another attempt. Extraction
// failures are terminal: the file content will not get better by waiting.
// Everything else (locked database, embedder hiccup, IO) is retried.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !extract.IsExtractionError(err)
}
