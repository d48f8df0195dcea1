// Package config provides configuration loading for the kbindex daemon.
// Values come from a YAML file, then environment variables override
// individual fields: either the structured form (KBINDEX_CHUNKING_CHUNK_SIZE)
// or the bare name from the envconfig tag (CHUNK_SIZE).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for structured environment variable overrides
// (e.g. KBINDEX_CHUNKING_CHUNK_SIZE, KBINDEX_RETRIEVAL_CANDIDATE_K).
const EnvPrefix = "kbindex"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug" envconfig:"DEBUG"`
	Watch     WatchConfig     `yaml:"watch"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Health    HealthConfig    `yaml:"health"`
}

// WatchConfig holds the two watched document roots.
type WatchConfig struct {
	InternalDir string   `yaml:"internal_dir" envconfig:"INTERNAL_DIR"`
	ExternalDir string   `yaml:"external_dir" envconfig:"EXTERNAL_DIR"`
	Extensions  []string `yaml:"extensions" envconfig:"WATCH_EXTENSIONS"`
}

// StoreConfig holds paths for the persisted index and its backups.
type StoreConfig struct {
	IndexDir  string `yaml:"index_dir" envconfig:"INDEX_DIR"`
	BackupDir string `yaml:"backup_dir" envconfig:"BACKUP_DIR"`
}

// JournalPath returns the path of the health/recovery journal, kept next to
// the index directory so it survives index wipes.
func (s *StoreConfig) JournalPath() string {
	return filepath.Join(filepath.Dir(s.IndexDir), "index_journal.json")
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path" envconfig:"EMBEDDING_MODEL_PATH"`
	Dimensions int    `yaml:"dimensions" envconfig:"EMBEDDING_DIMENSIONS"`
	MaxTokens  int    `yaml:"max_tokens" envconfig:"EMBEDDING_MAX_TOKENS"`
	BatchSize  int    `yaml:"batch_size" envconfig:"EMBEDDING_BATCH_SIZE"`
	CacheSize  int    `yaml:"cache_size" envconfig:"EMBEDDING_CACHE_SIZE"`
}

// RerankConfig holds cross-encoder reranker settings.
type RerankConfig struct {
	ModelPath string `yaml:"model_path" envconfig:"RERANKER_MODEL_PATH"`
	MaxTokens int    `yaml:"max_tokens" envconfig:"RERANKER_MAX_TOKENS"`
}

// ChunkingConfig holds text splitting settings (sizes are in characters).
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" envconfig:"CHUNK_SIZE"`
	ChunkOverlap int `yaml:"chunk_overlap" envconfig:"CHUNK_OVERLAP"`
}

// RetrievalConfig holds query pipeline settings.
type RetrievalConfig struct {
	CandidateK     int     `yaml:"candidate_k" envconfig:"RETRIEVAL_K"`
	ScoreThreshold float64 `yaml:"score_threshold" envconfig:"RETRIEVAL_SCORE_THRESHOLD"`
	RerankTopN     int     `yaml:"rerank_top_n" envconfig:"RERANKER_TOP_N"`
	TimeoutSeconds int     `yaml:"timeout_seconds" envconfig:"RETRIEVAL_TIMEOUT_SECONDS"`
}

// Timeout returns the default per-query deadline.
func (r *RetrievalConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// IngestConfig holds worker pool and retry settings.
type IngestConfig struct {
	Workers          int `yaml:"workers" envconfig:"INGEST_WORKERS"`
	QueueSize        int `yaml:"queue_size" envconfig:"INGEST_QUEUE_SIZE"`
	MaxRetries       int `yaml:"max_retries" envconfig:"INGEST_MAX_RETRIES"`
	RetryDelaySecs   int `yaml:"retry_delay_seconds" envconfig:"INGEST_RETRY_DELAY_SECONDS"`
	SoftTimeLimitSec int `yaml:"soft_time_limit_seconds" envconfig:"TASK_SOFT_TIME_LIMIT"`
	HardTimeLimitSec int `yaml:"hard_time_limit_seconds" envconfig:"TASK_TIME_LIMIT"`
}

// RetryDelay returns the fixed backoff between attempts.
func (i *IngestConfig) RetryDelay() time.Duration {
	return time.Duration(i.RetryDelaySecs) * time.Second
}

// SoftTimeLimit returns the duration after which a slow job is logged.
func (i *IngestConfig) SoftTimeLimit() time.Duration {
	return time.Duration(i.SoftTimeLimitSec) * time.Second
}

// HardTimeLimit returns the duration after which a job is killed and requeued.
func (i *IngestConfig) HardTimeLimit() time.Duration {
	return time.Duration(i.HardTimeLimitSec) * time.Second
}

// HealthConfig holds backup retention and periodic health check settings.
type HealthConfig struct {
	BackupRetention  int `yaml:"backup_retention" envconfig:"BACKUP_RETENTION"`
	CheckIntervalMin int `yaml:"check_interval_minutes" envconfig:"HEALTH_CHECK_INTERVAL_MINUTES"`
}

// CheckInterval returns the period between background health checks.
func (h *HealthConfig) CheckInterval() time.Duration {
	return time.Duration(h.CheckIntervalMin) * time.Minute
}

// Load reads and parses the config file at path, applies defaults, applies
// environment overrides, and expands paths. A missing file is not an error:
// defaults plus environment are used, so the daemon can run with no config
// file at all.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			configDir = filepath.Dir(path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.Watch.InternalDir = expandPath(cfg.Watch.InternalDir, configDir)
	cfg.Watch.ExternalDir = expandPath(cfg.Watch.ExternalDir, configDir)
	cfg.Store.IndexDir = expandPath(cfg.Store.IndexDir, configDir)
	cfg.Store.BackupDir = expandPath(cfg.Store.BackupDir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Rerank.ModelPath = expandPath(cfg.Rerank.ModelPath, configDir)

	if cfg.Store.BackupDir == "" {
		cfg.Store.BackupDir = filepath.Join(filepath.Dir(cfg.Store.IndexDir), "index_backups")
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
