package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/generator"
	"github.com/chaseai/chaseai/internal/instruction"
	"github.com/chaseai/chaseai/internal/model"
	"github.com/chaseai/chaseai/internal/prompt"
	"github.com/chaseai/chaseai/internal/store"
)

var testClient = &http.Client{
	Timeout:   5 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

func freePort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer ln.Close()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func instructionBinding(port uint16) model.Binding {
	return model.Binding{
		Port:      port,
		Interface: model.LoopbackInterface("lo0"),
		Role:      model.RoleInstruction,
		Enabled:   true,
	}
}

func newTestManager(t *testing.T) *instruction.Manager {
	t.Helper()
	m, err := instruction.NewManager(store.NewFileStore(filepath.Join(t.TempDir(), "contexts.json")))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func scenarioContext() model.InstructionContext {
	return model.InstructionContext{
		System:               "S",
		Role:                 "R",
		BaseInstruction:      "do X",
		AllowedActions:       []string{"run"},
		VerificationRequired: false,
	}
}

func startServer(t *testing.T, b model.Binding, deps Deps) *Server {
	t.Helper()
	s := New(b, deps)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { stopServer(t, s) })
	return s
}

// stopServer stops s and waits for its in-flight requests.
func stopServer(t *testing.T, s *Server) {
	t.Helper()
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait failed: %v", err)
	}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := testClient.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestScenarioContextHealthAndUnboundPort(t *testing.T) {
	defer goleak.VerifyNone(t)

	port := freePort(t)
	unbound := freePort(t)
	cfg := &model.NetworkConfig{PortBindings: []model.Binding{instructionBinding(port)}}

	m := newTestManager(t)
	if err := m.SetContext(port, scenarioContext(), cfg); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}

	s := New(instructionBinding(port), Deps{Contexts: m, Renderer: generator.New("test")})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	base := "http://" + s.Addr()
	resp, body := get(t, base+"/context")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got model.InstructionContext
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode context: %v", err)
	}
	if !got.Equal(scenarioContext()) {
		t.Errorf("expected %+v, got %+v", scenarioContext(), got)
	}

	resp, body = get(t, base+"/health")
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Errorf("expected empty 200 health, got %d %q", resp.StatusCode, body)
	}

	if _, err := testClient.Get("http://127.0.0.1:" + strconv.Itoa(int(unbound)) + "/context"); err == nil {
		t.Error("expected connection refused on unbound port")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestNoCrossServing(t *testing.T) {
	defer goleak.VerifyNone(t)

	portA, portB := freePort(t), freePort(t)
	cfg := &model.NetworkConfig{PortBindings: []model.Binding{instructionBinding(portA), instructionBinding(portB)}}

	m := newTestManager(t)
	ctxA := scenarioContext()
	ctxB := scenarioContext()
	ctxB.System = "other system"
	ctxB.AllowedActions = []string{"deploy", "rollback"}
	m.SetContext(portA, ctxA, cfg)
	m.SetContext(portB, ctxB, cfg)

	a := New(instructionBinding(portA), Deps{Contexts: m})
	b := New(instructionBinding(portB), Deps{Contexts: m})
	for _, s := range []*Server{a, b} {
		if err := s.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}

	for i := 0; i < 10; i++ {
		_, bodyA := get(t, "http://"+a.Addr()+"/context")
		_, bodyB := get(t, "http://"+b.Addr()+"/context")
		var gotA, gotB model.InstructionContext
		json.Unmarshal(bodyA, &gotA)
		json.Unmarshal(bodyB, &gotB)
		if !gotA.Equal(ctxA) {
			t.Fatalf("port A served %+v", gotA)
		}
		if !gotB.Equal(ctxB) {
			t.Fatalf("port B served %+v", gotB)
		}
	}

	stopServer(t, a)
	stopServer(t, b)
}

func TestContextNotFound(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := startServer(t, instructionBinding(freePort(t)), Deps{Contexts: newTestManager(t)})
	resp, body := get(t, "http://"+s.Addr()+"/context")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var payload errorBody
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("expected structured error, got %q", body)
	}
	if payload.Error.Code != string(errs.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %q", payload.Error.Code)
	}
	stopServer(t, s)
}

func TestDoubleStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(instructionBinding(freePort(t)), Deps{Contexts: newTestManager(t)})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := New(instructionBinding(freePort(t)), Deps{Contexts: newTestManager(t)})
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}

func TestStartBindError(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	s := New(instructionBinding(port), Deps{Contexts: newTestManager(t)})
	err = s.Start()
	if !errs.Has(err, errs.CodeBind) {
		t.Fatalf("expected BIND error, got %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestStartTwice(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := startServer(t, instructionBinding(freePort(t)), Deps{Contexts: newTestManager(t)})
	if err := s.Start(); err == nil {
		t.Error("expected error starting twice")
	}
	stopServer(t, s)
}

func TestReadyAfterFirstAccept(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := startServer(t, instructionBinding(freePort(t)), Deps{Contexts: newTestManager(t)})

	select {
	case <-s.Ready():
		t.Fatal("ready before any connection")
	default:
	}

	get(t, "http://"+s.Addr()+"/health")

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("ready not signalled after first accept")
	}
	stopServer(t, s)
}

func TestOtherRoutesResponsiveDuringPrompt(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := prompt.Func(func(ctx context.Context, _ prompt.Request) (prompt.Response, error) {
		close(entered)
		select {
		case <-release:
			return prompt.Response{Index: 1}, nil
		case <-ctx.Done():
			return prompt.Response{}, ctx.Err()
		}
	})

	s := startServer(t, instructionBinding(freePort(t)), Deps{Contexts: newTestManager(t), Prompter: blocking})
	base := "http://" + s.Addr()

	verifyDone := make(chan VerifyResponse, 1)
	go func() {
		resp, err := testClient.Post(base+"/verify", "application/json", jsonBody(`{"action":"deploy","reason":"r"}`))
		if err != nil {
			verifyDone <- VerifyResponse{}
			return
		}
		defer resp.Body.Close()
		var out VerifyResponse
		json.NewDecoder(resp.Body).Decode(&out)
		verifyDone <- out
	}()

	<-entered
	resp, _ := get(t, base+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected health to answer during prompt, got %d", resp.StatusCode)
	}

	close(release)
	if out := <-verifyDone; out.Status != StatusApproved {
		t.Errorf("expected approved, got %+v", out)
	}
	stopServer(t, s)
}

func TestStopKeepsPendingVerify(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	slow := prompt.Func(func(ctx context.Context, _ prompt.Request) (prompt.Response, error) {
		close(entered)
		select {
		case <-time.After(400 * time.Millisecond):
			return prompt.Response{Index: 1}, nil
		case <-ctx.Done():
			return prompt.Response{}, ctx.Err()
		}
	})

	s := New(instructionBinding(freePort(t)), Deps{Contexts: newTestManager(t), Prompter: slow})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	base := "http://" + s.Addr()

	type result struct {
		status int
		out    VerifyResponse
		err    error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := testClient.Post(base+"/verify", "application/json", jsonBody(`{"action":"deploy","reason":"r"}`))
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		var out VerifyResponse
		json.NewDecoder(resp.Body).Decode(&out)
		done <- result{status: resp.StatusCode, out: out}
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("expected Stop to return without waiting for the prompt, took %s", elapsed)
	}

	if _, err := testClient.Get(base + "/health"); err == nil {
		t.Error("expected stopped server to refuse new connections")
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("pending verify failed: %v", r.err)
	}
	if r.status != http.StatusOK || r.out.Status != StatusApproved {
		t.Errorf("expected 200 approved, got %d %+v", r.status, r.out)
	}

	select {
	case <-s.Drained():
	case <-time.After(2 * time.Second):
		t.Fatal("expected server to drain after the prompt answered")
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait failed: %v", err)
	}
}

func TestWaitClosesAfterDeadline(t *testing.T) {
	defer goleak.VerifyNone(t)

	entered := make(chan struct{})
	blocking := prompt.Func(func(ctx context.Context, _ prompt.Request) (prompt.Response, error) {
		close(entered)
		<-ctx.Done()
		return prompt.Response{}, ctx.Err()
	})

	s := New(instructionBinding(freePort(t)), Deps{Contexts: newTestManager(t), Prompter: blocking})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		resp, err := testClient.Post("http://"+s.Addr()+"/verify", "application/json", jsonBody(`{"action":"deploy","reason":"r"}`))
		if err == nil {
			resp.Body.Close()
		}
		errc <- err
	}()
	<-entered

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Error("expected Wait to report the deadline")
	}
	if err := <-errc; err == nil {
		t.Error("expected the open request to be cut off")
	}
}

func TestWaitBeforeStop(t *testing.T) {
	s := New(instructionBinding(freePort(t)), Deps{})
	if err := s.Wait(context.Background()); !errs.Has(err, errs.CodeInternal) {
		t.Errorf("expected INTERNAL, got %v", err)
	}
}
