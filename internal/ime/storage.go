package ime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// stateFile is the persisted front-end state.
type stateFile struct {
	InputMode InputMode `json:"input_mode"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileModeStore persists the input mode as JSON in a per-user directory.
type FileModeStore struct {
	mu   sync.Mutex
	path string
}

// NewFileModeStore creates a store under dir. If dir is empty, the
// platform data directory is used.
func NewFileModeStore(dir string) (*FileModeStore, error) {
	if dir == "" {
		var err error
		dir, err = defaultStateDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileModeStore{path: filepath.Join(dir, "state.json")}, nil
}

func defaultStateDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "kanaime"), nil

	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			return "", errors.New("LOCALAPPDATA not set")
		}
		return filepath.Join(localAppData, "kanaime"), nil

	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "kanaime"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "kanaime"), nil
	}
}

// Path returns the state file location.
func (s *FileModeStore) Path() string {
	return s.path
}

// LoadMode reads the saved mode. It returns an error wrapping
// os.ErrNotExist when nothing was saved yet.
func (s *FileModeStore) LoadMode() (InputMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return ModeLatin, err
	}
	var st stateFile
	if err := json.Unmarshal(data, &st); err != nil {
		return ModeLatin, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return st.InputMode, nil
}

// SaveMode writes mode atomically using a temp file and rename.
func (s *FileModeStore) SaveMode(mode InputMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(stateFile{InputMode: mode, UpdatedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
