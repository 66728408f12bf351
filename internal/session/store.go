package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store persists agent snapshots under <base>/snapshots/<runID>/.
type Store struct {
	basePath string
}

// NewStore creates a snapshot store. configPath is typically ~/.kestrel.
func NewStore(configPath string) *Store {
	return &Store{
		basePath: filepath.Join(configPath, "snapshots"),
	}
}

// Save persists a snapshot to disk, stamping UpdatedAt.
func (s *Store) Save(runID string, snap *Snapshot) error {
	snap.UpdatedAt = time.Now().UTC()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = snap.UpdatedAt
	}

	dir := filepath.Join(s.basePath, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.json", snap.AgentID))
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	return nil
}

// Load retrieves the snapshot for a specific agent.
func (s *Store) Load(runID, agentID string) (*Snapshot, error) {
	filename := filepath.Join(s.basePath, runID, fmt.Sprintf("%s.json", agentID))

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// List returns the snapshots of a run, newest first.
func (s *Store) List(runID string) ([]SnapshotMeta, error) {
	dir := filepath.Join(s.basePath, runID)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []SnapshotMeta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot directory: %w", err)
	}

	var metas []SnapshotMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}

		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue // Skip invalid files
		}

		metas = append(metas, SnapshotMeta{
			AgentID:   snap.AgentID,
			AgentName: snap.AgentName,
			AgentType: snap.AgentType,
			Task:      snap.Task,
			UpdatedAt: snap.UpdatedAt,
			Completed: snap.Completed,
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})

	return metas, nil
}
