package cli

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chaseai/chaseai/internal/approval"
	"github.com/chaseai/chaseai/internal/config"
	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/netif"
)

// setupDir points every command at a fresh config directory with a fake
// loopback interface.
func setupDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	configDir = dir
	storeDriver = "json"
	t.Cleanup(func() { configDir = "" })

	orig := detector
	detector = netif.NewDetector(func() ([]netif.Addr, error) {
		return []netif.Addr{
			{Name: "lo0", IP: netip.MustParseAddr("127.0.0.1")},
			{Name: "en0", IP: netip.MustParseAddr("192.168.1.20")},
		}, nil
	})
	t.Cleanup(func() { detector = orig })

	return dir
}

func resetContextFlags() {
	ctxFile = ""
	ctxSystem = "payments"
	ctxRole = "reviewer"
	ctxInstruction = "Review every refund over 100 EUR."
	ctxActions = []string{"read-ledger", "issue-refund"}
	ctxVerification = true
}

func addPort(t *testing.T, port, role string) {
	t.Helper()
	portsInterface = "lo0"
	portsRole = role
	portsDisabled = false
	if err := runPortsAdd(nil, []string{port}); err != nil {
		t.Fatalf("runPortsAdd %s: %v", port, err)
	}
}

func TestParsePort(t *testing.T) {
	if p, err := parsePort("9001"); err != nil || p != 9001 {
		t.Errorf("expected 9001, got %d (%v)", p, err)
	}
	for _, bad := range []string{"", "0", "abc", "70000", "-1"} {
		if _, err := parsePort(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestPortsAddRemove(t *testing.T) {
	dir := setupDir(t)

	addPort(t, "9001", "instruction")

	cfg, err := config.Load(filepath.Join(dir, config.NetworkFile))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, ok := cfg.Binding(9001)
	if !ok {
		t.Fatal("expected binding for 9001")
	}
	if b.Interface.IPAddress != "127.0.0.1" || b.Role != model.RoleInstruction || !b.Enabled {
		t.Errorf("unexpected binding %+v", b)
	}

	if err := runPortsAdd(nil, []string{"9001"}); !errs.Has(err, errs.CodeConfiguration) {
		t.Errorf("expected CONFIGURATION for duplicate port, got %v", err)
	}

	if err := runPortsRemove(nil, []string{"9001"}); err != nil {
		t.Fatalf("runPortsRemove: %v", err)
	}
	cfg, _ = config.Load(filepath.Join(dir, config.NetworkFile))
	if _, ok := cfg.Binding(9001); ok {
		t.Error("expected 9001 to be removed")
	}

	if err := runPortsRemove(nil, []string{"9001"}); !errs.Has(err, errs.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestPortsAddRejects(t *testing.T) {
	setupDir(t)
	portsInterface = "lo0"
	portsRole = "instruction"

	if err := runPortsAdd(nil, []string{"80"}); !errs.Has(err, errs.CodeValidation) {
		t.Errorf("expected VALIDATION for privileged port, got %v", err)
	}

	portsRole = "boss"
	if err := runPortsAdd(nil, []string{"9001"}); err == nil {
		t.Error("expected error for unknown role")
	}

	portsRole = "instruction"
	portsInterface = "wlan9"
	if err := runPortsAdd(nil, []string{"9001"}); !errs.Has(err, errs.CodeNotFound) {
		t.Errorf("expected NOT_FOUND for unknown interface, got %v", err)
	}
}

func TestPortsEnableDisable(t *testing.T) {
	dir := setupDir(t)
	addPort(t, "9002", "verification")

	if err := setPortEnabled("9002", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	cfg, _ := config.Load(filepath.Join(dir, config.NetworkFile))
	if b, _ := cfg.Binding(9002); b.Enabled {
		t.Error("expected 9002 disabled")
	}

	if err := setPortEnabled("9002", true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	cfg, _ = config.Load(filepath.Join(dir, config.NetworkFile))
	if b, _ := cfg.Binding(9002); !b.Enabled {
		t.Error("expected 9002 enabled")
	}

	if err := setPortEnabled("9555", true); !errs.Has(err, errs.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestContextLifecycle(t *testing.T) {
	setupDir(t)
	addPort(t, "9001", "instruction")
	resetContextFlags()

	if err := runContextSet(nil, []string{"9001"}); err != nil {
		t.Fatalf("runContextSet: %v", err)
	}

	m, closeStore, err := openManager()
	if err != nil {
		t.Fatalf("openManager: %v", err)
	}
	ic, ok := m.GetContext(9001)
	closeStore()
	if !ok {
		t.Fatal("expected context for 9001")
	}
	if ic.System != "payments" || len(ic.AllowedActions) != 2 || !ic.VerificationRequired {
		t.Errorf("unexpected context %+v", ic)
	}

	if err := runContextGet(nil, []string{"9001"}); err != nil {
		t.Errorf("runContextGet: %v", err)
	}
	if err := runContextList(nil, nil); err != nil {
		t.Errorf("runContextList: %v", err)
	}

	if err := runContextDelete(nil, []string{"9001"}); err != nil {
		t.Fatalf("runContextDelete: %v", err)
	}
	if err := runContextGet(nil, []string{"9001"}); err == nil {
		t.Error("expected error after delete")
	}
}

func TestContextSetRequiresEnabledBinding(t *testing.T) {
	setupDir(t)
	resetContextFlags()

	// The default config only has a disabled 9999 binding.
	if err := runContextSet(nil, []string{"9999"}); !errs.Has(err, errs.CodeConfiguration) {
		t.Errorf("expected CONFIGURATION for disabled port, got %v", err)
	}
	if err := runContextSet(nil, []string{"9001"}); !errs.Has(err, errs.CodeConfiguration) {
		t.Errorf("expected CONFIGURATION for unbound port, got %v", err)
	}
}

func TestContextSetInvalid(t *testing.T) {
	setupDir(t)
	addPort(t, "9001", "instruction")
	resetContextFlags()
	ctxActions = []string{"Issue Refund"}

	if err := runContextSet(nil, []string{"9001"}); !errs.Has(err, errs.CodeValidation) {
		t.Errorf("expected VALIDATION, got %v", err)
	}
}

func TestContextSetFromFile(t *testing.T) {
	dir := setupDir(t)
	addPort(t, "9001", "instruction")
	resetContextFlags()

	ctxFile = filepath.Join(dir, "ctx.yaml")
	defer func() { ctxFile = "" }()
	os.WriteFile(ctxFile, []byte(`system: infra
role: operator
base_instruction: Keep the cluster healthy.
allowed_actions: [restart-pod, scale-deployment]
verification_required: false
`), 0600)

	if err := runContextSet(nil, []string{"9001"}); err != nil {
		t.Fatalf("runContextSet: %v", err)
	}

	m, closeStore, err := openManager()
	if err != nil {
		t.Fatalf("openManager: %v", err)
	}
	defer closeStore()
	ic, _ := m.GetContext(9001)
	if ic.System != "infra" || ic.AllowedActions[1] != "scale-deployment" {
		t.Errorf("expected file contents, got %+v", ic)
	}
}

func TestContextSQLiteStore(t *testing.T) {
	dir := setupDir(t)
	addPort(t, "9001", "instruction")
	storeDriver = "sqlite"
	defer func() { storeDriver = "json" }()
	resetContextFlags()

	if err := runContextSet(nil, []string{"9001"}); err != nil {
		t.Fatalf("runContextSet: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, config.ContextsDB)); err != nil {
		t.Errorf("expected sqlite database: %v", err)
	}
}

func TestConfigShowAndInit(t *testing.T) {
	dir := setupDir(t)

	for _, f := range []string{"json", "yaml", "markdown", "agent_rule", "bogus"} {
		configFormat = f
		if err := runConfigShow(nil, nil); err != nil {
			t.Errorf("format %s: %v", f, err)
		}
	}

	configForce = false
	if err := runConfigInit(nil, nil); err != nil {
		t.Fatalf("runConfigInit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, config.NetworkFile)); err != nil {
		t.Fatalf("network config not written: %v", err)
	}
	if err := runConfigInit(nil, nil); err == nil {
		t.Error("expected error without --force")
	}
	configForce = true
	defer func() { configForce = false }()
	if err := runConfigInit(nil, nil); err != nil {
		t.Errorf("runConfigInit --force: %v", err)
	}
}

func TestConfigExportWritesEveryFormat(t *testing.T) {
	dir := setupDir(t)
	out := filepath.Join(dir, "export")

	if err := runConfigExport(nil, []string{out}); err != nil {
		t.Fatalf("runConfigExport: %v", err)
	}
	for _, name := range []string{"chaseai.json", "chaseai.yaml", "chaseai.md", "chaseai.rules"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Errorf("expected %s: %v", name, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("expected %s to have content", name)
		}
	}
}

func TestPendingCleanKeepsOpenRequests(t *testing.T) {
	dir := setupDir(t)
	s := queueRequest(t, dir, "req-open", []string{"Reject", "Approve Once"})
	queueRequest(t, dir, "req-done", []string{"Reject", "Approve Once"})
	if err := s.Resolve("req-done", 0, ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	pendingClean = true
	defer func() { pendingClean = false }()
	if err := runPending(nil, nil); err != nil {
		t.Fatalf("runPending: %v", err)
	}

	list, _ := s.List()
	if len(list) != 1 || list[0].Key != "req-open" {
		t.Errorf("expected only req-open left, got %+v", list)
	}
}

func TestApproveIndex(t *testing.T) {
	buttons := []string{"Reject", "Approve Once", "Approve Session"}
	if got := approveIndex(buttons, false); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := approveIndex(buttons, true); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := approveIndex([]string{"No", "Yes"}, false); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
	if got := denyIndex(buttons); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := denyIndex([]string{"Approve", "Approve Session"}); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func queueRequest(t *testing.T, dir, key string, buttons []string) *approval.Store {
	t.Helper()
	s, err := approval.NewStore(filepath.Join(dir, config.ApprovalsDir))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	err = s.Request(approval.Approval{
		Key:       key,
		TaskID:    "Verification",
		Action:    "issue-refund",
		Reason:    "customer complaint",
		Buttons:   buttons,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	return s
}

func TestApproveResolvesRequest(t *testing.T) {
	dir := setupDir(t)
	s := queueRequest(t, dir, "req-1", []string{"Reject", "Approve Once", "Approve Session"})

	approveSession = true
	approveMessage = "ok for now"
	defer func() { approveSession = false; approveMessage = "" }()

	if err := runPending(nil, nil); err != nil {
		t.Errorf("runPending: %v", err)
	}
	if err := runApprove(nil, []string{"req-1"}); err != nil {
		t.Fatalf("runApprove: %v", err)
	}

	a, err := s.Get("req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Status != approval.StatusResolved || a.Selected != 2 || a.Message != "ok for now" {
		t.Errorf("unexpected approval %+v", a)
	}

	if err := runApprove(nil, []string{"req-1"}); err == nil {
		t.Error("expected error approving a resolved request")
	}
}

func TestDenyResolvesOrCancels(t *testing.T) {
	dir := setupDir(t)
	s := queueRequest(t, dir, "req-1", []string{"Reject", "Approve Once"})
	queueRequest(t, dir, "req-2", []string{"Approve Once", "Approve Session"})

	if err := runDeny(nil, []string{"req-1"}); err != nil {
		t.Fatalf("runDeny: %v", err)
	}
	a, _ := s.Get("req-1")
	if a.Status != approval.StatusResolved || a.SelectedButton() != "Reject" {
		t.Errorf("expected Reject selected, got %+v", a)
	}

	if err := runDeny(nil, []string{"req-2"}); err != nil {
		t.Fatalf("runDeny: %v", err)
	}
	a, _ = s.Get("req-2")
	if a.Status != approval.StatusCancelled {
		t.Errorf("expected cancelled, got %s", a.Status)
	}

	if err := runDeny(nil, []string{"missing"}); err == nil {
		t.Error("expected error for unknown key")
	}
}
