package models

// QueryCandidate is a chunk returned by first-stage similarity search together
// with its raw distance (lower = more relevant; cosine distance in [0,2]).
type QueryCandidate struct {
	Chunk    *Chunk  `json:"chunk"`
	Distance float64 `json:"distance"`
}

// RerankedResult is a candidate after second-stage cross-encoder scoring
// (higher = more relevant).
type RerankedResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}

// QueryStatus classifies a retrieval outcome. Callers never see a raw error
// from the pipeline, only one of these.
type QueryStatus string

const (
	// QueryOK means context and sources were assembled.
	QueryOK QueryStatus = "ok"
	// QueryNoInformation means the index is reachable but nothing relevant survived.
	QueryNoInformation QueryStatus = "no_information"
	// QueryUnavailable means the index could not be reached or the query timed out.
	QueryUnavailable QueryStatus = "unavailable"
)

// QueryResponse is the assembled answer context for a retrieval query.
type QueryResponse struct {
	Status      QueryStatus `json:"status"`
	Context     string      `json:"context,omitempty"`
	Sources     []string    `json:"sources,omitempty"`
	QueryTimeMS int64       `json:"query_time_ms"`
}
