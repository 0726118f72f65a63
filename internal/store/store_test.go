package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chaseai/chaseai/internal/model"
)

func sampleContexts() Contexts {
	return Contexts{
		9001: {System: "S", Role: "R", BaseInstruction: "do X", AllowedActions: []string{"run"}},
		9002: {System: "T", Role: "Q", BaseInstruction: "do Y", AllowedActions: []string{"read", "write"}, VerificationRequired: true},
	}
}

func assertRoundTrip(t *testing.T, s Store) {
	t.Helper()

	empty, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll on empty store: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty store, got %d entries", len(empty))
	}

	want := sampleContexts()
	if err := s.SaveAll(want); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	got, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for port, c := range want {
		if !got[port].Equal(c) {
			t.Errorf("port %d: expected %+v, got %+v", port, c, got[port])
		}
	}

	delete(want, 9001)
	if err := s.SaveAll(want); err != nil {
		t.Fatalf("SaveAll after delete: %v", err)
	}
	got, _ = s.LoadAll()
	if _, ok := got[9001]; ok {
		t.Error("expected port 9001 to be gone after save")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	assertRoundTrip(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "contexts.json")))
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contexts.json")
	s := NewFileStore(path)
	if err := s.SaveAll(sampleContexts()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temp file to be renamed away")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contexts.json")
	os.WriteFile(path, []byte("{not json"), 0600)

	if _, err := NewFileStore(path).LoadAll(); err == nil {
		t.Error("expected parse error for corrupt file")
	}
}

func TestFileStoreReadsContainerFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contexts.json")
	raw := `{"contexts":[{"port":3000,"context":{"system":"sys","role":"role","base_instruction":"inst","allowed_actions":["action"],"verification_required":false}}]}`
	os.WriteFile(path, []byte(raw), 0600)

	got, err := NewFileStore(path).LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	want := model.InstructionContext{System: "sys", Role: "role", BaseInstruction: "inst", AllowedActions: []string{"action"}}
	if !got[3000].Equal(want) {
		t.Errorf("expected %+v, got %+v", want, got[3000])
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "contexts.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	assertRoundTrip(t, s)
}

func TestOpenDrivers(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open("json", filepath.Join(dir, "c.json")); err != nil {
		t.Errorf("json driver: %v", err)
	}
	s, err := Open("sqlite", filepath.Join(dir, "c.db"))
	if err != nil {
		t.Fatalf("sqlite driver: %v", err)
	}
	s.(*SQLiteStore).Close()
	if _, err := Open("bolt", filepath.Join(dir, "c.bolt")); err == nil {
		t.Error("expected error for unknown driver")
	}
}
