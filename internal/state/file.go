package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go-portal-harvester/internal/models"
)

type fileSnapshot struct {
	Cycle   *models.CycleState   `json:"cycle,omitempty"`
	Session *models.SessionState `json:"session,omitempty"`
}

// FileStore keeps both states in one JSON file. Every save rewrites the
// file through a temp file and rename.
type FileStore struct {
	mu       sync.Mutex
	filePath string
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{filePath: path}, nil
}

func (f *FileStore) LoadCycle(ctx context.Context) (*models.CycleState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.load()
	if err != nil {
		return nil, err
	}
	return snap.Cycle, nil
}

func (f *FileStore) SaveCycle(ctx context.Context, s *models.CycleState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.load()
	if err != nil {
		return err
	}
	snap.Cycle = s
	return f.save(snap)
}

func (f *FileStore) LoadSession(ctx context.Context) (*models.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.load()
	if err != nil {
		return nil, err
	}
	return snap.Session, nil
}

func (f *FileStore) SaveSession(ctx context.Context, s *models.SessionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.load()
	if err != nil {
		return err
	}
	snap.Session = s
	return f.save(snap)
}

// load reads the snapshot; a missing file is an empty snapshot
func (f *FileStore) load() (*fileSnapshot, error) {
	snap := &fileSnapshot{}
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return snap, nil
}

func (f *FileStore) save(snap *fileSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := f.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, f.filePath); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
