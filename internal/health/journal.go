package health

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/neuralstark/kbindex/internal/models"
)

// Journal is an append-only JSON record of recovery actions, kept next to the
// index directory so it survives index wipes.
type Journal struct {
	path string
	mu   sync.Mutex
}

// NewJournal creates a journal backed by the file at path.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Append adds an event to the journal. Journal write failures are swallowed;
// recovery must not fail because its paper trail could not be written.
func (j *Journal) Append(event models.RecoveryEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	events, _ := j.readLocked()
	events = append(events, event)
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(j.path), 0755)
	_ = os.WriteFile(j.path, data, 0644)
}

// Events returns all recorded events, oldest first.
func (j *Journal) Events() ([]models.RecoveryEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.readLocked()
}

func (j *Journal) readLocked() ([]models.RecoveryEvent, error) {
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var events []models.RecoveryEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}
