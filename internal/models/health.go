package models

import "time"

// HealthReport is a snapshot of index health. Issues make the index unhealthy;
// warnings do not.
type HealthReport struct {
	Timestamp time.Time         `json:"timestamp"`
	Healthy   bool              `json:"healthy"`
	Issues    []string          `json:"issues"`
	Warnings  []string          `json:"warnings"`
	Stats     map[string]string `json:"stats"`
}

// AddIssue records a problem and marks the report unhealthy.
func (r *HealthReport) AddIssue(msg string) {
	r.Issues = append(r.Issues, msg)
	r.Healthy = false
}

// AddWarning records a non-fatal observation.
func (r *HealthReport) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// BackupInfo describes one timestamped, reason-tagged copy of the index directory.
type BackupInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// RecoveryEvent is one entry in the recovery journal.
type RecoveryEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Action         string    `json:"action"`
	CorruptionType string    `json:"corruption_type,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	BackupPath     string    `json:"backup_path,omitempty"`
	Success        bool      `json:"success"`
}
