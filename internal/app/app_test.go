package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/chaseai/chaseai/internal/audit"
	"github.com/chaseai/chaseai/internal/config"
	"github.com/chaseai/chaseai/internal/instruction"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/prompt"
	"github.com/chaseai/chaseai/internal/store"
)

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer ln.Close()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func newTestApp(t *testing.T, dir string) *App {
	t.Helper()
	a, err := New(Options{Dir: dir, Version: "test", Prompter: prompt.Static{Index: 1}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func configWith(port uint16, enabled bool) *model.NetworkConfig {
	cfg := model.DefaultNetworkConfig()
	cfg.PortBindings = []model.Binding{{
		Port:      port,
		Interface: model.LoopbackInterface("lo0"),
		Role:      model.RoleInstruction,
		Enabled:   enabled,
	}}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewDefaults(t *testing.T) {
	a := newTestApp(t, t.TempDir())
	cfg := a.Config()
	if len(cfg.PortBindings) != 1 || cfg.PortBindings[0].Port != 9999 {
		t.Errorf("expected default config, got %+v", cfg.PortBindings)
	}
	if a.Pool().Count() != 0 {
		t.Errorf("expected idle pool, got %d", a.Pool().Count())
	}
}

func TestConfigIsACopy(t *testing.T) {
	a := newTestApp(t, t.TempDir())
	cfg := a.Config()
	cfg.PortBindings[0].Enabled = true
	if a.Config().PortBindings[0].Enabled {
		t.Error("mutating Config() result leaked into app state")
	}
}

func TestApplyReconciles(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := newTestApp(t, t.TempDir())
	port := freePort(t)

	res := a.Apply(context.Background(), configWith(port, true))
	if len(res.Started) != 1 || !a.Pool().Has(port) {
		t.Fatalf("expected port %d started, got %+v", port, res)
	}

	if err := a.Manager().SetContext(port, model.InstructionContext{
		System: "S", Role: "R", BaseInstruction: "do X", AllowedActions: []string{"run"},
	}, a.Config()); err != nil {
		t.Errorf("SetContext against applied config: %v", err)
	}

	a.Apply(context.Background(), configWith(port, false))
	if a.Pool().Count() != 0 {
		t.Errorf("expected pool empty after disable, got %v", a.Pool().Ports())
	}
}

func TestRunFollowsConfigFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	port := freePort(t)
	paths := config.PathsIn(dir, "")
	if err := config.Save(paths.Network, configWith(port, true)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	a := newTestApp(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, "initial reconcile", func() bool { return a.Pool().Has(port) })

	other, err := instruction.NewManager(store.NewFileStore(paths.Contexts))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := other.SetContext(port, model.InstructionContext{
		System: "S", Role: "R", BaseInstruction: "do X", AllowedActions: []string{"run"},
	}, configWith(port, true)); err != nil {
		t.Fatalf("SetContext from second process: %v", err)
	}
	waitFor(t, "context reload", func() bool {
		_, ok := a.Manager().GetContext(port)
		return ok
	})

	if err := config.Save(paths.Network, configWith(port, false)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	waitFor(t, "reconcile after disable", func() bool { return a.Pool().Count() == 0 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNotifyKeepsLatest(t *testing.T) {
	a := newTestApp(t, t.TempDir())
	first := configWith(1111, true)
	second := configWith(2222, true)
	a.Notify(first)
	a.Notify(second)

	got := <-a.changes
	if got.PortBindings[0].Port != 2222 {
		t.Errorf("expected latest config, got port %d", got.PortBindings[0].Port)
	}
}

func TestVerifyDecisionsAudited(t *testing.T) {
	dir := t.TempDir()
	a := newTestApp(t, dir)
	if a.audit == nil {
		t.Fatal("expected audit log open by default")
	}
	a.audit.Record(audit.Entry{Port: 9001, Action: "deploy", Decision: audit.DecisionApproved})
	a.Close()

	if res := audit.Verify(a.Paths().AuditLog); !res.Valid || res.Lines != 1 {
		t.Errorf("expected valid audit log with 1 line, got %+v", res)
	}
}

func TestNewSQLiteDriver(t *testing.T) {
	a, err := New(Options{Dir: t.TempDir(), Driver: "sqlite", Prompter: prompt.Static{}, NoAudit: true})
	if err != nil {
		t.Fatalf("New sqlite: %v", err)
	}
	defer a.Close()
	if a.Paths().Contexts != filepath.Join(a.Paths().Dir, config.ContextsDB) {
		t.Errorf("unexpected store path %q", a.Paths().Contexts)
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := New(Options{Dir: t.TempDir(), Driver: "mongo", Prompter: prompt.Static{}}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
