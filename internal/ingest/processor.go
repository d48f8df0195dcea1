// Package ingest turns filesystem events into index mutations: extract,
// chunk, embed and store on create/modify, purge on delete. Failed jobs are
// retried with a bounded policy and parked in a dead letter list when
// exhausted.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/chunker"
	"github.com/neuralstark/kbindex/internal/extract"
	"github.com/neuralstark/kbindex/internal/models"
	"github.com/neuralstark/kbindex/internal/store"
)

// Documents above largeDocThreshold chunks are written in slices of
// largeDocBatch so one giant file cannot hold the index lock for the whole
// upsert. Ordinals stay contiguous across slices.
const (
	largeDocThreshold = 1000
	largeDocBatch     = 100
)

// NewJob builds an ingestion job for a filesystem event.
func NewJob(path string, event models.EventType) models.IngestionJob {
	return models.IngestionJob{
		ID:       uuid.NewString(),
		Path:     models.NormalizePath(path),
		Event:    event,
		Enqueued: time.Now(),
	}
}

// Processor executes ingestion jobs against an index.
type Processor struct {
	index        *store.Index
	extractor    *extract.Extractor
	splitter     *chunker.Splitter
	internalRoot string
	externalRoot string
	retry        RetryPolicy
	softLimit    time.Duration
	hardLimit    time.Duration
	logger       *zap.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger sets the processor logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ProcessorOption {
	return func(p *Processor) { p.retry = policy }
}

// WithTimeLimits sets the per-attempt soft (warn) and hard (cancel) limits.
func WithTimeLimits(soft, hard time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.softLimit = soft
		p.hardLimit = hard
	}
}

// NewProcessor creates a processor writing to index. internalRoot and
// externalRoot classify each document's origin.
func NewProcessor(index *store.Index, extractor *extract.Extractor, splitter *chunker.Splitter, internalRoot, externalRoot string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		index:        index,
		extractor:    extractor,
		splitter:     splitter,
		internalRoot: internalRoot,
		externalRoot: externalRoot,
		retry:        DefaultRetryPolicy,
		softLimit:    5 * time.Minute,
		hardLimit:    10 * time.Minute,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes a job with retries. Terminal outcomes (indexed, deleted,
// no_content, failed_extraction) return immediately; retryable failures wait
// out the policy delay and try again until attempts are exhausted, then the
// job is reported as dead_letter.
func (p *Processor) Run(ctx context.Context, job models.IngestionJob) models.JobResult {
	var result models.JobResult
	for {
		job.Attempt++
		result = p.processOnce(ctx, job)
		if result.Status != models.StatusRetry {
			return result
		}
		if job.Attempt >= p.retry.MaxAttempts {
			result.Status = models.StatusDeadLetter
			p.logger.Error("job moved to dead letter",
				zap.String("job_id", job.ID),
				zap.String("path", job.Path),
				zap.Int("attempts", job.Attempt),
				zap.String("error", result.Err))
			return result
		}
		p.logger.Warn("job retry scheduled",
			zap.String("job_id", job.ID),
			zap.String("path", job.Path),
			zap.Int("attempt", job.Attempt),
			zap.Duration("delay", p.retry.Delay),
			zap.String("error", result.Err))
		select {
		case <-ctx.Done():
			result.Status = models.StatusDeadLetter
			result.Err = ctx.Err().Error()
			return result
		case <-time.After(p.retry.Delay):
		}
	}
}

// processOnce runs a single attempt under the hard time limit, logging if the
// soft limit passes.
func (p *Processor) processOnce(ctx context.Context, job models.IngestionJob) models.JobResult {
	attemptCtx, cancel := context.WithTimeout(ctx, p.hardLimit)
	defer cancel()

	softTimer := time.AfterFunc(p.softLimit, func() {
		p.logger.Warn("job exceeded soft time limit",
			zap.String("job_id", job.ID),
			zap.String("path", job.Path),
			zap.Duration("soft_limit", p.softLimit))
	})
	defer softTimer.Stop()

	result := p.apply(attemptCtx, job)
	if result.Err != "" && result.Status == models.StatusRetry {
		return result
	}
	p.logger.Info("job processed",
		zap.String("job_id", job.ID),
		zap.String("path", job.Path),
		zap.String("event", string(job.Event)),
		zap.String("status", string(result.Status)),
		zap.Int("chunks", result.ChunksIndexed))
	return result
}

func (p *Processor) apply(ctx context.Context, job models.IngestionJob) models.JobResult {
	result := models.JobResult{Job: job}

	if job.Event == models.EventDeleted {
		deleted, err := p.index.DeleteWhere(ctx, store.BySource(job.Path))
		if err != nil {
			return p.failure(result, err)
		}
		result.Status = models.StatusDeleted
		result.ChunksIndexed = deleted
		return result
	}

	text, err := p.extractor.Extract(job.Path)
	if err != nil {
		return p.failure(result, err)
	}
	if strings.TrimSpace(text) == "" {
		result.Status = models.StatusFailedExtraction
		result.Err = fmt.Sprintf("no text extracted from %s", job.Path)
		return result
	}

	pieces := p.splitter.Split(text)
	if len(pieces) == 0 {
		result.Status = models.StatusNoContent
		return result
	}

	// Modified documents may have shrunk; drop the old chunks so no stale
	// tail survives the upsert. Only after extraction produced replacement
	// content: a failed re-extraction keeps the last good state. Best
	// effort: an error here still lets the reinsert proceed.
	if job.Event == models.EventModified {
		if _, err := p.index.DeleteWhere(ctx, store.BySource(job.Path)); err != nil {
			p.logger.Warn("pre-update delete failed",
				zap.String("path", job.Path), zap.Error(err))
		}
	}

	chunks := make([]*models.Chunk, len(pieces))
	now := time.Now()
	for i, piece := range pieces {
		chunks[i] = &models.Chunk{
			Text:       piece,
			Source:     job.Path,
			FileName:   filepath.Base(job.Path),
			SourceType: models.SourceTypeFor(job.Path, p.internalRoot, p.externalRoot),
			EventType:  job.Event,
			Ordinal:    i,
			ModTime:    now,
		}
	}

	if len(chunks) > largeDocThreshold {
		for start := 0; start < len(chunks); start += largeDocBatch {
			end := start + largeDocBatch
			if end > len(chunks) {
				end = len(chunks)
			}
			if err := p.index.Upsert(ctx, chunks[start:end]); err != nil {
				return p.failure(result, err)
			}
		}
	} else {
		if err := p.index.Upsert(ctx, chunks); err != nil {
			return p.failure(result, err)
		}
	}

	result.Status = models.StatusIndexed
	result.ChunksIndexed = len(chunks)
	return result
}

func (p *Processor) failure(result models.JobResult, err error) models.JobResult {
	result.Err = err.Error()
	if p.retry.Retryable(err) {
		result.Status = models.StatusRetry
	} else {
		result.Status = models.StatusFailedExtraction
	}
	return result
}
