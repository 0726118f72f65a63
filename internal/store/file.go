package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/chaseai/chaseai/internal/model"
)

// fileContainer is the on-disk JSON layout.
type fileContainer struct {
	Contexts []fileEntry `json:"contexts"`
}

type fileEntry struct {
	Port    uint16                   `json:"port"`
	Context model.InstructionContext `json:"context"`
}

// FileStore keeps the mapping in a single JSON file, rewritten atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore at path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// LoadAll reads the file. A missing file is an empty mapping.
func (s *FileStore) LoadAll() (Contexts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Contexts{}, nil
		}
		return nil, fmt.Errorf("read contexts: %w", err)
	}

	var c fileContainer
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse contexts %s: %w", s.path, err)
	}

	out := make(Contexts, len(c.Contexts))
	for _, e := range c.Contexts {
		out[e.Port] = e.Context
	}
	return out, nil
}

// SaveAll writes the full mapping with 0600 permissions.
func (s *FileStore) SaveAll(contexts Contexts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ports := make([]int, 0, len(contexts))
	for p := range contexts {
		ports = append(ports, int(p))
	}
	sort.Ints(ports)

	c := fileContainer{Contexts: make([]fileEntry, 0, len(ports))}
	for _, p := range ports {
		c.Contexts = append(c.Contexts, fileEntry{Port: uint16(p), Context: contexts[uint16(p)]})
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
