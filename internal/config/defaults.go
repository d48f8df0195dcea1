package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Watch.InternalDir == "" {
		cfg.Watch.InternalDir = "/usr/local/var/kbindex/knowledge_base/internal"
	}
	if cfg.Watch.ExternalDir == "" {
		cfg.Watch.ExternalDir = "/usr/local/var/kbindex/knowledge_base/external"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".odt", ".rtf", ".xlsx"}
	}
	if cfg.Store.IndexDir == "" {
		cfg.Store.IndexDir = "/usr/local/var/kbindex/data/index"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kbindex/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 8
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Rerank.ModelPath == "" {
		cfg.Rerank.ModelPath = "/usr/local/var/kbindex/data/models/ms-marco-MiniLM-L-6-v2.onnx"
	}
	if cfg.Rerank.MaxTokens == 0 {
		cfg.Rerank.MaxTokens = 256
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1200
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 250
	}
	if cfg.Retrieval.CandidateK == 0 {
		cfg.Retrieval.CandidateK = 10
	}
	if cfg.Retrieval.ScoreThreshold == 0 {
		cfg.Retrieval.ScoreThreshold = 0.3
	}
	if cfg.Retrieval.RerankTopN == 0 {
		cfg.Retrieval.RerankTopN = 5
	}
	if cfg.Retrieval.TimeoutSeconds == 0 {
		cfg.Retrieval.TimeoutSeconds = 30
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 2
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 256
	}
	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 3
	}
	if cfg.Ingest.RetryDelaySecs == 0 {
		cfg.Ingest.RetryDelaySecs = 10
	}
	if cfg.Ingest.SoftTimeLimitSec == 0 {
		cfg.Ingest.SoftTimeLimitSec = 300
	}
	if cfg.Ingest.HardTimeLimitSec == 0 {
		cfg.Ingest.HardTimeLimitSec = 600
	}
	if cfg.Health.BackupRetention == 0 {
		cfg.Health.BackupRetention = 10
	}
	if cfg.Health.CheckIntervalMin == 0 {
		cfg.Health.CheckIntervalMin = 5
	}
}
