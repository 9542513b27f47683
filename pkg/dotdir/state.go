package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	stateFile = "backfill.json"
)

// BackfillState records the outcome of the most recent backfill run so the
// status command can report when usage was last exported.
type BackfillState struct {
	// LastRunAt is when the run finished.
	LastRunAt time.Time `json:"last_run_at"`

	// RecordsSent is the number of usage records delivered in that run.
	RecordsSent int `json:"records_sent"`

	// BatchesSent is the number of batches delivered in that run.
	BatchesSent int `json:"batches_sent"`

	// FailedBatches is the number of batches that failed permanently.
	FailedBatches int `json:"failed_batches"`
}

// LoadBackfillState loads the last-run state from a target .ccmeter/backfill.json.
// Returns nil, nil if no state exists (no backfill has completed yet).
// If overrideDir is non-empty, it is used instead of the default ~/.ccmeter/ location.
func (m *Manager) LoadBackfillState(overrideDir string) (*BackfillState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backfill state: %w", err)
	}

	state := &BackfillState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing backfill state: %w", err)
	}

	return state, nil
}

// SaveBackfillState persists the last-run state to a target .ccmeter/backfill.json.
func (m *Manager) SaveBackfillState(state *BackfillState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil backfill state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling backfill state: %w", err)
	}

	path := filepath.Join(dir, stateFile)
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // state holds no secrets
		return fmt.Errorf("writing backfill state: %w", err)
	}

	return nil
}

// ClearBackfillState removes the state file.
// Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearBackfillState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, stateFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing backfill state: %w", err)
	}

	return nil
}
