package models

import "time"

// JobStatus is the terminal or intermediate state of an ingestion job.
type JobStatus string

const (
	StatusEnqueued         JobStatus = "enqueued"
	StatusRunning          JobStatus = "running"
	StatusDeleted          JobStatus = "deleted"
	StatusIndexed          JobStatus = "indexed"
	StatusNoContent        JobStatus = "no_content"
	StatusFailedExtraction JobStatus = "failed_extraction"
	StatusRetry            JobStatus = "retry"
	StatusDeadLetter       JobStatus = "dead_letter"
)

// IngestionJob is one unit of ingestion work: apply a filesystem change to the
// index. Attempt counts delivery attempts; it is incremented on each retry.
type IngestionJob struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Event    EventType `json:"event_type"`
	Attempt  int       `json:"attempt"`
	Enqueued time.Time `json:"enqueued_at"`
}

// JobResult reports the outcome of processing a job.
type JobResult struct {
	Job           IngestionJob `json:"job"`
	Status        JobStatus    `json:"status"`
	ChunksIndexed int          `json:"chunks_indexed,omitempty"`
	Err           string       `json:"error,omitempty"`
}
