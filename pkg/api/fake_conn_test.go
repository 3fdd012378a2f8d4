package api

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
	"github.com/jowharshamshiri/GoZaparoo/pkg/protocol"
)

// fakeConn is a scripted Connection
type fakeConn struct {
	mu        sync.Mutex
	connected bool
	destroyed bool
	sent      [][]byte
	fail      func(env *models.Envelope) error
	onOpen    func()
	onMessage func([]byte)
	codec     *protocol.Codec
}

func newFakeConn(connected bool) *fakeConn {
	return &fakeConn{connected: connected, codec: protocol.NewCodec()}
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return models.ErrNotConnected
	}
	if f.fail != nil {
		env, _ := f.codec.Decode(data)
		if err := f.fail(env); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) Destroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

func (f *fakeConn) SetHandlers(onOpen func(), onMessage func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onOpen = onOpen
	f.onMessage = onMessage
}

func (f *fakeConn) failWith(fn func(env *models.Envelope) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fn
}

func (f *fakeConn) open() {
	f.mu.Lock()
	f.connected = true
	onOpen := f.onOpen
	f.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}
}

func (f *fakeConn) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeConn) deliver(data []byte) {
	f.mu.Lock()
	onMessage := f.onMessage
	f.mu.Unlock()
	if onMessage != nil {
		onMessage(data)
	}
}

func (f *fakeConn) requests(t *testing.T) []*models.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	envs := make([]*models.Envelope, 0, len(f.sent))
	for _, frame := range f.sent {
		env, err := f.codec.Decode(frame)
		if err != nil {
			t.Fatalf("sent invalid frame %s: %v", frame, err)
		}
		envs = append(envs, env)
	}
	return envs
}

func (f *fakeConn) methods(t *testing.T) []string {
	t.Helper()
	var methods []string
	for _, env := range f.requests(t) {
		methods = append(methods, env.Method)
	}
	return methods
}

func (f *fakeConn) respond(t *testing.T, id string, result any) {
	t.Helper()
	data, err := f.codec.EncodeResponse(id, result)
	if err != nil {
		t.Fatalf("EncodeResponse() error = %v", err)
	}
	f.deliver(data)
}

func (f *fakeConn) respondError(t *testing.T, id string, rpcErr *models.JSONRPCError) {
	t.Helper()
	data, err := f.codec.EncodeError(id, rpcErr)
	if err != nil {
		t.Fatalf("EncodeError() error = %v", err)
	}
	f.deliver(data)
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testClient(conn Connection, mutate ...func(*Config)) *Client {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 2 * time.Second
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, fn := range mutate {
		fn(&cfg)
	}
	return New(conn, cfg)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
