package core_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/core/coretest"
	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

const testURL = "ws://device:7497/api/v0.1"

type fixedBackoff time.Duration

func (b fixedBackoff) Next() time.Duration { return time.Duration(b) }
func (b fixedBackoff) Reset()              {}

func testConfig() core.ManagerConfig {
	cfg := core.DefaultManagerConfig()
	cfg.GracePeriod = 100 * time.Millisecond
	cfg.ConnectTimeout = time.Second
	cfg.Backoff = fixedBackoff(20 * time.Millisecond)
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

type stateRecorder struct {
	mu     sync.Mutex
	states []core.ConnectionState
}

func (r *stateRecorder) record(_, to core.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *stateRecorder) snapshot() []core.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ConnectionState(nil), r.states...)
}

func waitForState(t *testing.T, m *core.ConnectionManager, want core.ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", m.State(), want)
}

func TestConnectTransitions(t *testing.T) {
	dialer := coretest.NewDialer()
	m := core.NewConnectionManager(testURL, dialer, testConfig())
	defer m.Destroy()

	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	if m.State() != core.StateIdle {
		t.Fatalf("initial state = %v, want idle", m.State())
	}

	opened := make(chan struct{}, 1)
	m.SetHandlers(func() { opened <- struct{}{} }, nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !m.IsConnected() {
		t.Fatalf("state = %v, want connected", m.State())
	}

	select {
	case <-opened:
	default:
		t.Error("open hook did not run before Connect returned")
	}

	got := rec.snapshot()
	want := []core.ConnectionState{core.StateConnecting, core.StateConnected}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestSendRequiresConnection(t *testing.T) {
	dialer := coretest.NewDialer()
	m := core.NewConnectionManager(testURL, dialer, testConfig())
	defer m.Destroy()

	if err := m.Send([]byte("x")); !errors.Is(err, models.ErrNotConnected) {
		t.Fatalf("Send() before connect error = %v, want ErrNotConnected", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := m.Send([]byte(`{"jsonrpc":"2.0"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if written := dialer.Last().Written(); len(written) != 1 {
		t.Errorf("written frames = %d, want 1", len(written))
	}
}

func TestInboundFramesReachHandler(t *testing.T) {
	dialer := coretest.NewDialer()
	m := core.NewConnectionManager(testURL, dialer, testConfig())
	defer m.Destroy()

	frames := make(chan string, 2)
	m.SetHandlers(nil, func(data []byte) { frames <- string(data) })
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	dialer.Last().Deliver([]byte("one"))
	dialer.Last().Deliver([]byte("two"))

	for _, want := range []string{"one", "two"} {
		select {
		case got := <-frames:
			if got != want {
				t.Errorf("frame = %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("frame %q never delivered", want)
		}
	}
}

func TestDropWithinGraceReconnects(t *testing.T) {
	dialer := coretest.NewDialer()
	m := core.NewConnectionManager(testURL, dialer, testConfig())
	defer m.Destroy()

	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	var opens sync.WaitGroup
	opens.Add(2)
	m.SetHandlers(func() { opens.Done() }, nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first := dialer.Last()
	first.Drop(errors.New("wifi blip"))

	waitForState(t, m, core.StateConnected)
	opens.Wait()

	if dialer.Last() == first {
		t.Fatal("expected a new socket after reconnect")
	}
	for _, s := range rec.snapshot() {
		if s == core.StateDisconnected {
			t.Errorf("blip within grace surfaced as disconnected: %v", rec.snapshot())
		}
	}
	if m.Reconnects() != 1 {
		t.Errorf("Reconnects() = %d, want 1", m.Reconnects())
	}
}

func TestGraceExpiryReportsDisconnected(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = 30 * time.Millisecond
	cfg.Backoff = fixedBackoff(50 * time.Millisecond)

	dialer := coretest.NewDialer()
	m := core.NewConnectionManager(testURL, dialer, cfg)
	defer m.Destroy()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	refused := errors.New("connection refused")
	dialer.Script(
		coretest.DialResult{Err: refused},
		coretest.DialResult{Err: refused},
	)
	dialer.Last().Drop(io.EOF)

	waitForState(t, m, core.StateDisconnected)
	waitForState(t, m, core.StateConnected)
	if dialer.Dials() < 4 {
		t.Errorf("Dials() = %d, want at least 4", dialer.Dials())
	}
}

func TestRetryableDialFailureSchedulesRetry(t *testing.T) {
	dialer := coretest.NewDialer(coretest.DialResult{Err: errors.New("connection refused")})
	m := core.NewConnectionManager(testURL, dialer, testConfig())
	defer m.Destroy()

	opened := make(chan struct{}, 1)
	m.SetHandlers(func() { opened <- struct{}{} }, nil)

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("Connect() error = nil, want dial failure")
	}
	if m.State() != core.StateDisconnected {
		t.Fatalf("state = %v, want disconnected", m.State())
	}

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("retry never connected")
	}
	if m.State() != core.StateConnected {
		t.Errorf("state = %v, want connected", m.State())
	}
}

func TestNonRetryableDialFailureMovesToError(t *testing.T) {
	fatal := &models.ConnectionError{URL: testURL, Retryable: false, Cause: errors.New("403")}
	dialer := coretest.NewDialer(coretest.DialResult{Err: fatal})
	m := core.NewConnectionManager(testURL, dialer, testConfig())
	defer m.Destroy()

	err := m.Connect(context.Background())
	var ce *models.ConnectionError
	if !errors.As(err, &ce) || ce.Retryable {
		t.Fatalf("Connect() error = %v, want fatal ConnectionError", err)
	}
	if m.State() != core.StateError {
		t.Fatalf("state = %v, want error", m.State())
	}

	time.Sleep(60 * time.Millisecond)
	if dialer.Dials() != 1 {
		t.Errorf("Dials() = %d, want no automatic retry", dialer.Dials())
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("explicit Connect() after error = %v", err)
	}
	if !m.IsConnected() {
		t.Errorf("state = %v, want connected", m.State())
	}
}

func TestMaxReconnectAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 3
	refused := errors.New("connection refused")
	dialer := coretest.NewDialer(
		coretest.DialResult{Err: refused},
		coretest.DialResult{Err: refused},
		coretest.DialResult{Err: refused},
	)
	m := core.NewConnectionManager(testURL, dialer, cfg)
	defer m.Destroy()

	_ = m.Connect(context.Background())
	waitForState(t, m, core.StateError)

	if dialer.Dials() != 3 {
		t.Errorf("Dials() = %d, want 3", dialer.Dials())
	}
	if !errors.Is(m.LastError(), refused) {
		t.Errorf("LastError() = %v, want %v", m.LastError(), refused)
	}
}

func TestPartialConfigKeepsDefaultBackoff(t *testing.T) {
	refused := errors.New("connection refused")
	script := make([]coretest.DialResult, 64)
	for i := range script {
		script[i] = coretest.DialResult{Err: refused}
	}
	dialer := coretest.NewDialer(script...)
	m := core.NewConnectionManager(testURL, dialer, core.ManagerConfig{
		GracePeriod: 300 * time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	defer m.Destroy()

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("Connect() error = nil, want dial failure")
	}
	time.Sleep(100 * time.Millisecond)

	if got := dialer.Dials(); got > 2 {
		t.Errorf("Dials() = %d in 100ms, zero backoff is spinning", got)
	}
	if m.State() != core.StateDisconnected {
		t.Errorf("state = %v, want disconnected while waiting to retry", m.State())
	}
}

func TestDestroyIsTerminal(t *testing.T) {
	dialer := coretest.NewDialer()
	m := core.NewConnectionManager(testURL, dialer, testConfig())

	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	socket := dialer.Last()

	m.Destroy()
	m.Destroy()

	if !socket.Closed() {
		t.Error("Destroy() left the socket open")
	}
	if m.State() != core.StateDisconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}
	if err := m.Send([]byte("x")); !errors.Is(err, models.ErrManagerDestroyed) {
		t.Errorf("Send() error = %v, want ErrManagerDestroyed", err)
	}
	if err := m.Connect(context.Background()); !errors.Is(err, models.ErrManagerDestroyed) {
		t.Errorf("Connect() error = %v, want ErrManagerDestroyed", err)
	}

	time.Sleep(50 * time.Millisecond)
	states := rec.snapshot()
	if last := states[len(states)-1]; last != core.StateDisconnected {
		t.Errorf("last transition = %v, want disconnected", last)
	}
	if dialer.Dials() != 1 {
		t.Errorf("Dials() = %d, destroyed manager kept dialing", dialer.Dials())
	}
}

func TestDestroyDuringReconnectStopsRetries(t *testing.T) {
	dialer := coretest.NewDialer()
	m := core.NewConnectionManager(testURL, dialer, testConfig())

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	release := dialer.Block()
	dialer.Last().Drop(io.EOF)
	waitForState(t, m, core.StateReconnecting)

	time.Sleep(40 * time.Millisecond)
	m.Destroy()
	release()

	time.Sleep(60 * time.Millisecond)
	if m.State() != core.StateDisconnected {
		t.Errorf("state = %v, want disconnected", m.State())
	}
	for _, s := range dialer.Sockets()[1:] {
		if !s.Closed() {
			t.Error("socket dialed after Destroy was left open")
		}
	}
}

func TestConnectionStateString(t *testing.T) {
	tests := map[core.ConnectionState]string{
		core.StateIdle:         "idle",
		core.StateConnecting:   "connecting",
		core.StateConnected:    "connected",
		core.StateReconnecting: "reconnecting",
		core.StateDisconnected: "disconnected",
		core.StateError:        "error",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
