// Package approval keeps pending human-approval requests on disk so a
// separate process (the chaseai CLI) can resolve them.
package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// Status represents the state of an approval request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// ErrNotPending is returned when resolving a request that is already closed.
var ErrNotPending = errors.New("approval is not pending")

// Approval is one verification prompt waiting for a human.
type Approval struct {
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	TaskID     string     `json:"task_id"`
	Action     string     `json:"action"`
	Reason     string     `json:"reason"`
	Context    string     `json:"context,omitempty"`
	Buttons    []string   `json:"buttons"`
	Selected   int        `json:"selected"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// SelectedButton returns the chosen label, or "" if none.
func (a Approval) SelectedButton() string {
	if a.Selected < 0 || a.Selected >= len(a.Buttons) {
		return ""
	}
	return a.Buttons[a.Selected]
}

// Store manages approval files on disk.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Request creates a pending approval file. It fails if key already exists.
func (s *Store) Request(a Approval) error {
	if err := validateKey(a.Key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(a.Key)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("approval %q already exists", a.Key)
	}

	a.Status = StatusPending
	a.Selected = -1
	a.ResolvedAt = nil
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return s.writeAtomic(path, a)
}

// Resolve records the human's button choice.
func (s *Store) Resolve(key string, index int, message string) error {
	return s.close(key, func(a *Approval) error {
		if index < 0 || index >= len(a.Buttons) {
			return fmt.Errorf("button index %d out of range (0-%d)", index, len(a.Buttons)-1)
		}
		a.Status = StatusResolved
		a.Selected = index
		a.Message = message
		return nil
	})
}

// Cancel closes a pending request without a selection.
func (s *Store) Cancel(key, message string) error {
	return s.close(key, func(a *Approval) error {
		a.Status = StatusCancelled
		a.Selected = -1
		a.Message = message
		return nil
	})
}

func (s *Store) close(key string, apply func(*Approval) error) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval %q not found: %w", key, err)
	}
	if a.Status != StatusPending {
		return fmt.Errorf("approval %q: %w", key, ErrNotPending)
	}
	if err := apply(a); err != nil {
		return err
	}
	now := time.Now().UTC()
	a.ResolvedAt = &now
	return s.writeAtomic(s.path(key), *a)
}

// Get returns the approval for key.
func (s *Store) Get(key string) (*Approval, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return nil, fmt.Errorf("approval %q not found", key)
	}
	return a, nil
}

// Remove deletes the approval file for key. Missing files are ignored.
func (s *Store) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all approvals in the store, oldest first.
func (s *Store) List() ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var approvals []Approval
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		a, err := s.read(key)
		if err != nil {
			continue
		}
		approvals = append(approvals, *a)
	}

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].CreatedAt.Before(approvals[j].CreatedAt)
	})
	return approvals, nil
}

// Pending returns only approvals still waiting for a human.
func (s *Store) Pending() ([]Approval, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []Approval
	for _, a := range all {
		if a.Status == StatusPending {
			out = append(out, a)
		}
	}
	return out, nil
}

// Cleanup removes every request that is no longer pending and returns
// how many were removed. Pending requests are left for their waiter.
func (s *Store) Cleanup() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err == nil && a.Status == StatusPending {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Approval, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}

	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}

	return &a, nil
}

func (s *Store) writeAtomic(path string, a Approval) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
